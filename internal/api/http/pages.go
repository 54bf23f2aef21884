package http

import (
	"embed"
	"html"
	"html/template"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/browse"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/resolver"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the landing and error pages. Register with
// gin.Engine.SetHTMLTemplate.
func Templates() *template.Template {
	funcs := template.FuncMap{
		"proxied": func(target string, tor bool) string {
			mode := resolver.Direct
			if tor {
				mode = resolver.Anonymized
			}
			return resolver.ProxiedURL(resolver.NormalizedURL(target), mode)
		},
	}
	return template.Must(template.New("pages").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}

// Site is one landing page entry
type Site struct {
	Name string
	URL  string
}

// Section groups landing page entries
type Section struct {
	Title string
	Sites []Site
}

// DefaultSections is the landing page news list
var DefaultSections = []Section{
	{
		Title: "News Sources",
		Sites: []Site{
			{"BBC News", "https://www.bbc.com/news"},
			{"Reuters", "https://www.reuters.com/"},
			{"Associated Press", "https://apnews.com/"},
			{"CNN", "https://www.cnn.com/"},
			{"The Guardian", "https://www.theguardian.com/international"},
			{"Wall Street Journal", "https://www.wsj.com/"},
			{"Washington Post", "https://www.washingtonpost.com/"},
		},
	},
	{
		Title: "International News",
		Sites: []Site{
			{"Al Jazeera", "https://www.aljazeera.com/"},
			{"NDTV", "https://www.ndtv.com/"},
			{"India.com", "https://www.india.com/"},
			{"Ynet News", "https://www.ynetnews.com/"},
			{"The Moscow Times", "https://www.themoscowtimes.com/"},
			{"Kyiv Post", "https://www.kyivpost.com/"},
			{"Deutsche Welle", "https://www.dw.com/en/"},
			{"The Local Sweden", "https://www.thelocal.se/"},
			{"Buenos Aires Times", "https://www.batimes.com.ar/"},
			{"AllAfrica", "https://allafrica.com/"},
			{"The National", "https://www.thenationalnews.com/"},
		},
	},
	{
		Title: "Technology News",
		Sites: []Site{
			{"The Verge", "https://www.theverge.com/"},
			{"Wired", "https://www.wired.com/"},
			{"Ars Technica", "https://arstechnica.com/"},
		},
	},
	{
		Title: "Search",
		Sites: []Site{
			{"DuckDuckGo", "https://duckduckgo.com/"},
		},
	},
}

type landingPage struct {
	Sections []Section
	Phase    string
}

// Link is one retry action on an error page
type Link struct {
	Name  string
	Label string
	Href  string
}

type errorPage struct {
	Status  int
	Mode    string
	Title   string
	Summary string
	Reasons []string
	Actions []Link
	Details string
}

// detailPolicy strips all markup from error text. Its output is entity
// encoded, so it is decoded again before the template escapes it.
var detailPolicy = bluemonday.StrictPolicy()

func browseHref(target string, mode resolver.Mode, extra ...string) string {
	q := url.Values{}
	q.Set("url", target)
	if mode == resolver.Anonymized {
		q.Set("tor", "true")
	}
	for i := 0; i+1 < len(extra); i += 2 {
		q.Set(extra[i], extra[i+1])
	}
	return "/browse?" + q.Encode()
}

func homeLink() Link {
	return Link{Name: "home", Label: "Return to homepage", Href: "/"}
}

func toggleLink(target string, mode resolver.Mode) Link {
	label := "Try with Tor"
	if mode == resolver.Anonymized {
		label = "Try without Tor"
	}
	return Link{Name: "toggle", Label: label, Href: browseHref(target, mode.Toggle())}
}

func refreshLink(target string, mode resolver.Mode) Link {
	return Link{Name: "bypass", Label: "Refresh the page", Href: browseHref(target, mode, "bypass_cache", "true")}
}

// newErrorPage builds the retry page for a failed browse
func newErrorPage(be *browse.Error) errorPage {
	page := errorPage{
		Status:  be.Kind.HTTPStatus(),
		Mode:    be.Mode.String(),
		Details: strings.TrimSpace(html.UnescapeString(detailPolicy.Sanitize(be.Err.Error()))),
	}

	switch be.Kind {
	case browse.KindConnectivityUnavailable:
		page.Title = "Tor Connection Unavailable"
		page.Summary = "The Tor network could not be reached, so the page was not loaded."
		page.Reasons = []string{
			"The Tor proxy is still bootstrapping",
			"The Tor network is unreachable from this host",
		}
		page.Actions = []Link{
			{Name: "direct", Label: "Browse this page directly (without Tor)", Href: browseHref(be.URL, resolver.Direct)},
			{Name: "retry", Label: "Retry via Tor", Href: browseHref(be.URL, resolver.Anonymized, "bypass_cache", "true")},
			{Name: "check", Label: "Check Tor status", Href: "/check-tor?force=true"},
			homeLink(),
		}
	case browse.KindNavigationTimeout:
		page.Title = "Page Load Timeout"
		page.Summary = "The page took too long to load."
		page.Reasons = []string{
			"The site is blocking automated browsers",
			"The site is experiencing high load",
			"There are network connectivity issues",
		}
		if be.Mode == resolver.Anonymized {
			page.Reasons = append(page.Reasons, "The Tor network is experiencing slowdowns")
		}
		page.Actions = []Link{refreshLink(be.URL, be.Mode), toggleLink(be.URL, be.Mode), homeLink()}
	default:
		page.Title = "Error Loading Page"
		page.Summary = "There was a problem loading the requested page."
		page.Reasons = []string{
			"The website is blocking our access",
			"The website requires JavaScript for core functionality",
			"There was a network error",
		}
		page.Actions = []Link{refreshLink(be.URL, be.Mode), toggleLink(be.URL, be.Mode), homeLink()}
	}
	return page
}
