package rewrite

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/resolver"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/providers/browser/sandbox"
	"golang.org/x/net/html"
)

const articlePage = `<!DOCTYPE html>
<html>
<head><title>World News</title></head>
<body>
  <a id="root" href="/world">World</a>
  <a id="rel" href="story.html">Story</a>
  <a id="abs" href="https://other.org/x?y=1">Other</a>
  <a id="proto" href="//cdn.example.com/a">CDN</a>
  <a id="frag" href="#top">Top</a>
  <a id="js" href="javascript:void(0)">JS</a>
  <a id="mail" href="mailto:desk@example.com">Mail</a>
  <a id="empty" href="">Empty</a>
  <form id="search" action="/search" method="get"><input name="q"></form>
  <form id="self"><input name="x"></form>
</body>
</html>`

func newTestRewriter(t *testing.T) *Rewriter {
	t.Helper()
	r, err := New(context.Background(), nil)
	require.NoError(t, err)
	return r
}

func parse(t *testing.T, out string) *html.Node {
	t.Helper()
	doc, err := htmlquery.Parse(strings.NewReader(out))
	require.NoError(t, err)
	return doc
}

func attr(t *testing.T, doc *html.Node, xpath, name string) string {
	t.Helper()
	node := htmlquery.FindOne(doc, xpath)
	require.NotNil(t, node, xpath)
	return htmlquery.SelectAttr(node, name)
}

func TestRewriteAnchors(t *testing.T) {
	r := newTestRewriter(t)
	out, err := r.Rewrite(articlePage, "https://example.com/news/", resolver.Direct)
	require.NoError(t, err)
	doc := parse(t, out)

	tests := []struct {
		id       string
		wantHref string
	}{
		{"root", "/browse?url=https%3A%2F%2Fexample.com%2Fworld"},
		{"rel", "/browse?url=https%3A%2F%2Fexample.com%2Fnews%2Fstory.html"},
		{"abs", "/browse?url=https%3A%2F%2Fother.org%2Fx%3Fy%3D1"},
		{"proto", "/browse?url=https%3A%2F%2Fcdn.example.com%2Fa"},
		{"frag", "#top"},
		{"js", "javascript:void(0)"},
		{"mail", "mailto:desk@example.com"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.wantHref, attr(t, doc, `//a[@id="`+tt.id+`"]`, "href"))
		})
	}

	assert.Equal(t, "/world", attr(t, doc, `//a[@id="root"]`, attrOriginalURL))
	assert.Empty(t, attr(t, doc, `//a[@id="frag"]`, attrOriginalURL))
}

func TestRewriteAnonymizedMode(t *testing.T) {
	r := newTestRewriter(t)
	out, err := r.Rewrite(articlePage, "https://example.com/news/", resolver.Anonymized)
	require.NoError(t, err)
	doc := parse(t, out)

	assert.Equal(t, "/browse?url=https%3A%2F%2Fexample.com%2Fworld&tor=true", attr(t, doc, `//a[@id="root"]`, "href"))
	assert.Equal(t, "tor", attr(t, doc, `//meta[@name="routing-mode"]`, "content"))

	badge := htmlquery.FindOne(doc, `//div[@data-newsproxy="overlay"]//span[contains(@class,"nb-badge-tor")]`)
	require.NotNil(t, badge)
	assert.Equal(t, "Tor", htmlquery.InnerText(badge))
}

func TestRewriteInsertsMarkersFirst(t *testing.T) {
	r := newTestRewriter(t)
	out, err := r.Rewrite(articlePage, "https://example.com/news/", resolver.Direct)
	require.NoError(t, err)
	doc := parse(t, out)

	first := htmlquery.FindOne(doc, `//head/*[1]`)
	require.NotNil(t, first)
	assert.Equal(t, "meta", first.Data)
	assert.Equal(t, "base-url", htmlquery.SelectAttr(first, "name"))
	assert.Equal(t, "https://example.com/news/", htmlquery.SelectAttr(first, "content"))
}

func TestRewriteAnnotatesForms(t *testing.T) {
	r := newTestRewriter(t)
	out, err := r.Rewrite(articlePage, "https://example.com/news/", resolver.Direct)
	require.NoError(t, err)
	doc := parse(t, out)

	assert.Equal(t, "https://example.com/search", attr(t, doc, `//form[@id="search"]`, attrOriginalAct))
	assert.Equal(t, "https://example.com/news/", attr(t, doc, `//form[@id="self"]`, attrOriginalAct))
	// the action itself is left for the interception script
	assert.Equal(t, "/search", attr(t, doc, `//form[@id="search"]`, "action"))
}

func TestRewriteHonoursBaseElement(t *testing.T) {
	page := `<html><head><base href="https://static.example.net/edition/"></head>
<body><a id="a" href="page.html">x</a></body></html>`

	r := newTestRewriter(t)
	out, err := r.Rewrite(page, "https://example.com/", resolver.Direct)
	require.NoError(t, err)
	doc := parse(t, out)

	assert.Equal(t, "/browse?url=https%3A%2F%2Fstatic.example.net%2Fedition%2Fpage.html", attr(t, doc, `//a[@id="a"]`, "href"))
	assert.Equal(t, "https://static.example.net/edition/", attr(t, doc, `//meta[@name="base-url"]`, "content"))
}

func TestRewriteAppendsScriptAndOverlay(t *testing.T) {
	r := newTestRewriter(t)
	out, err := r.Rewrite(articlePage, "https://example.com/news/", resolver.Direct)
	require.NoError(t, err)
	doc := parse(t, out)

	scripts := htmlquery.Find(doc, `//body/script[@data-newsproxy="intercept"]`)
	require.Len(t, scripts, 1)
	assert.Contains(t, htmlquery.InnerText(scripts[0]), "addEventListener('click'")

	overlay := htmlquery.FindOne(doc, `//body/div[@data-newsproxy="overlay"]`)
	require.NotNil(t, overlay)
	assert.Contains(t, htmlquery.InnerText(overlay), "https://example.com/news/")
	assert.Contains(t, htmlquery.InnerText(overlay), "Direct")
	home := htmlquery.FindOne(overlay, `.//a`)
	require.NotNil(t, home)
	assert.Equal(t, "/", htmlquery.SelectAttr(home, "href"))
}

func TestOverlayEscapesBaseURL(t *testing.T) {
	r := newTestRewriter(t)
	base := resolver.NormalizedURL(`https://example.com/"><script>alert(1)</script>`)
	out, err := r.Rewrite(`<html><body><p>hi</p></body></html>`, base, resolver.Direct)
	require.NoError(t, err)
	doc := parse(t, out)

	for _, s := range htmlquery.Find(doc, `//script`) {
		assert.NotContains(t, htmlquery.InnerText(s), "alert(1)")
	}
	overlay := htmlquery.FindOne(doc, `//div[@data-newsproxy="overlay"]`)
	require.NotNil(t, overlay)
	assert.Nil(t, htmlquery.FindOne(overlay, `.//script`))
}

func TestRewriteRejectsNonHTML(t *testing.T) {
	r := newTestRewriter(t)

	for _, input := range []string{"", `{"IsTor":true}`, "%PDF-1.7 binary"} {
		_, err := r.Rewrite(input, "https://example.com/", resolver.Direct)
		var rerr *RewriteError
		require.True(t, errors.As(err, &rerr), "input %q", input)
		assert.Equal(t, "detect", rerr.Stage)
		assert.ErrorIs(t, err, ErrNotHTML)

		assert.Equal(t, input, r.RewriteOrOriginal(input, "https://example.com/", resolver.Direct))
	}
}

func TestRewriteDecodesLegacyCharset(t *testing.T) {
	// "Café" in ISO-8859-1
	raw := []byte("<html><head><meta charset=\"iso-8859-1\"></head><body><p id=\"p\">Caf\xe9</p></body></html>")

	r := newTestRewriter(t)
	out, err := r.Rewrite(string(raw), "https://example.com/", resolver.Direct)
	require.NoError(t, err)
	doc := parse(t, out)

	p := htmlquery.FindOne(doc, `//p[@id="p"]`)
	require.NotNil(t, p)
	assert.Equal(t, "Café", htmlquery.InnerText(p))
}

func TestInterceptScriptRegistersHandlers(t *testing.T) {
	rt, err := sandbox.New(sandbox.DefaultConfig())
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.Execute(context.Background(), interceptJS)
	require.NoError(t, err)
	assert.Equal(t, 1, rt.Listeners("click"))
	assert.Equal(t, 1, rt.Listeners("submit"))

	// window.open is wrapped and refuses non-navigable targets
	v, err := rt.Eval("window.open('javascript:alert(1)')")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestToUTF8PassesValidInput(t *testing.T) {
	out, err := ToUTF8([]byte("<p>Привет</p>"))
	require.NoError(t, err)
	assert.Equal(t, "<p>Привет</p>", out)
}

func TestRewriteKeepsDoctype(t *testing.T) {
	r := newTestRewriter(t)
	out, err := r.Rewrite(articlePage, "https://example.com/news/", resolver.Direct)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"), out[:min(len(out), 40)])
}
