package rewrite

import (
	"context"
	_ "embed"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/microcosm-cc/bluemonday"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/resolver"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/providers/browser/sandbox"
	"go.uber.org/zap"
)

//go:embed assets/intercept.js
var interceptJS string

//go:embed assets/overlay.css
var overlayCSS string

const (
	metaBaseURL     = "base-url"
	metaRoutingMode = "routing-mode"
	attrOriginalURL = "data-original-url"
	attrOriginalAct = "data-original-action"
	markerAttr      = "data-newsproxy"
)

// Rewriter routes a rendered page's navigation back through the proxy
type Rewriter struct {
	script  string
	overlay *bluemonday.Policy
	logger  *zap.Logger
}

// New validates the interception script before any page can receive it
func New(ctx context.Context, logger *zap.Logger) (*Rewriter, error) {
	if _, err := sandbox.Check(ctx, "intercept.js", interceptJS); err != nil {
		return nil, fmt.Errorf("interception script: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rewriter{
		script:  interceptJS,
		overlay: overlayPolicy(),
		logger:  logger,
	}, nil
}

func overlayPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("div", "span", "a")
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^[a-z0-9 -]+$`)).OnElements("div", "span", "a")
	p.AllowAttrs(markerAttr).Matching(regexp.MustCompile(`^[a-z]+$`)).OnElements("div")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("title").OnElements("span")
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes("http", "https")
	return p
}

// Rewrite returns doc with anchors proxied, forms annotated, and the
// interception script and status overlay appended
func (r *Rewriter) Rewrite(doc string, base resolver.NormalizedURL, mode resolver.Mode) (string, error) {
	if !utf8.ValidString(doc) {
		decoded, err := ToUTF8([]byte(doc))
		if err != nil {
			return "", stageError("decode", err)
		}
		doc = decoded
	}

	if mt := mimetype.Detect([]byte(doc)); !mt.Is("text/html") {
		return "", stageError("detect", fmt.Errorf("%w: detected %s", ErrNotHTML, mt.String()))
	}

	page, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return "", stageError("parse", err)
	}

	effective := effectiveBase(page, base)

	head := page.Find("head").First()
	head.PrependHtml(fmt.Sprintf(`<meta name="%s" content="%s"><meta name="%s" content="%s">`,
		metaBaseURL, html.EscapeString(string(effective)),
		metaRoutingMode, mode.String()))

	rewritten := 0
	page.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		target, ok := resolver.Resolve(effective, href)
		if !ok {
			return
		}
		a.SetAttr("href", resolver.ProxiedURL(target, mode))
		a.SetAttr(attrOriginalURL, href)
		rewritten++
	})

	page.Find("form").Each(func(_ int, form *goquery.Selection) {
		action, _ := form.Attr("action")
		if strings.TrimSpace(action) == "" {
			form.SetAttr(attrOriginalAct, string(effective))
			return
		}
		if target, ok := resolver.Resolve(effective, action); ok {
			form.SetAttr(attrOriginalAct, string(target))
		}
	})

	container := page.Find("body").First()
	if container.Length() == 0 {
		container = page.Find("html").First()
	}
	container.AppendHtml(`<script ` + markerAttr + `="intercept">` + r.script + `</script>`)
	container.AppendHtml(`<style ` + markerAttr + `="overlay">` + overlayCSS + `</style>`)
	container.AppendHtml(r.renderOverlay(effective, mode))

	out, err := page.Html()
	if err != nil {
		return "", stageError("serialize", err)
	}

	r.logger.Debug("Rewrote page",
		zap.String("base", string(effective)),
		zap.Stringer("mode", mode),
		zap.Int("links", rewritten))
	return out, nil
}

// RewriteOrOriginal never fails: on any error the input is returned as is
func (r *Rewriter) RewriteOrOriginal(doc string, base resolver.NormalizedURL, mode resolver.Mode) string {
	out, err := r.Rewrite(doc, base, mode)
	if err != nil {
		r.logger.Warn("Serving page without rewriting",
			zap.String("base", string(base)),
			zap.Stringer("mode", mode),
			zap.Error(err))
		return doc
	}
	return out
}

// effectiveBase honours a <base href> in the page, resolved against base
func effectiveBase(page *goquery.Document, base resolver.NormalizedURL) resolver.NormalizedURL {
	href, ok := page.Find("base[href]").First().Attr("href")
	if !ok {
		return base
	}
	if resolved, ok := resolver.Resolve(base, href); ok {
		return resolved
	}
	return base
}

func (r *Rewriter) renderOverlay(base resolver.NormalizedURL, mode resolver.Mode) string {
	badge := "nb-badge nb-badge-" + mode.String()
	raw := fmt.Sprintf(`<div class="nb-overlay" %s="overlay">`+
		`<span class="nb-overlay-url" title="%[2]s">%[2]s</span>`+
		`<span class="%[3]s">%[4]s</span>`+
		`<a class="nb-overlay-home" href="/">Home</a>`+
		`</div>`,
		markerAttr, html.EscapeString(string(base)), badge, html.EscapeString(mode.Label()))
	return r.overlay.Sanitize(raw)
}
