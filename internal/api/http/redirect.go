package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/resolver"
)

// skipRedirect lists paths the catch-all never reinterprets
func skipRedirect(path string) bool {
	return path == "/" || path == "/health" || path == "/check-tor" || strings.HasPrefix(path, "/browse")
}

// Redirect is the NoRoute handler: a stray request is treated as navigation
// that escaped the rewriter and sent back through /browse.
func (h *Handlers) Redirect(c *gin.Context) {
	if target, ok := h.redirectTarget(c.Request); ok {
		c.Redirect(http.StatusFound, target)
		return
	}
	c.String(http.StatusNotFound, "Not Found")
}

func (h *Handlers) redirectTarget(r *http.Request) (string, bool) {
	if skipRedirect(r.URL.Path) {
		return "", false
	}

	uri := r.RequestURI
	if uri == "" {
		uri = r.URL.RequestURI()
	}

	// a full URL pasted after the host
	if strings.Contains(uri, "://") {
		return "/browse?url=" + url.QueryEscape(strings.TrimPrefix(uri, "/")), true
	}

	if base, mode, ok := refererPage(r); ok {
		if target, ok := resolver.Resolve(base, uri); ok {
			return resolver.ProxiedURL(target, mode), true
		}
	}

	bare := strings.TrimPrefix(uri, "/")
	host, _, _ := strings.Cut(bare, "/")
	host, _, _ = strings.Cut(host, "?")
	if looksLikeDomain(host) {
		return resolver.ProxiedURL(resolver.NormalizedURL("https://"+bare), resolver.Direct), true
	}
	return "", false
}

// refererPage recovers the page a request came from when the referer is a
// /browse URL of this host
func refererPage(r *http.Request) (resolver.NormalizedURL, resolver.Mode, bool) {
	ref := r.Header.Get("Referer")
	if ref == "" {
		return "", resolver.Direct, false
	}
	parsed, err := url.Parse(ref)
	if err != nil || parsed.Path != "/browse" {
		return "", resolver.Direct, false
	}
	if parsed.Host != "" && !strings.EqualFold(parsed.Host, r.Host) {
		return "", resolver.Direct, false
	}

	q := parsed.Query()
	base := q.Get("url")
	if base == "" {
		return "", resolver.Direct, false
	}
	return resolver.NormalizedURL(resolver.EnsureScheme(base)), resolver.ParseMode(q.Get("tor")), true
}

// staticSuffixes are asset names a browser asks for on its own, never domains
var staticSuffixes = []string{".ico", ".png", ".jpg", ".svg", ".css", ".js", ".map", ".txt", ".json", ".xml"}

func looksLikeDomain(host string) bool {
	if !strings.Contains(host, ".") || strings.HasPrefix(host, ".") {
		return false
	}
	lower := strings.ToLower(host)
	for _, suffix := range staticSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	return true
}
