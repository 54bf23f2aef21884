package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base NormalizedURL = "https://www.bbc.com/news/world?edition=int"

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		base      NormalizedURL
		candidate string
		want      NormalizedURL
		wantOK    bool
	}{
		{"empty", base, "", "", false},
		{"whitespace", base, "   ", "", false},
		{"fragment", base, "#top", "", false},
		{"javascript", base, "javascript:void(0)", "", false},
		{"javascript upper case", base, "JavaScript:alert(1)", "", false},
		{"mailto", base, "mailto:news@bbc.com", "", false},
		{"tel", base, "tel:+441234", "", false},
		{"absolute https", base, "https://example.com/a?b=c", "https://example.com/a?b=c", true},
		{"absolute http upper case", base, "HTTP://Example.com", "HTTP://Example.com", true},
		{"protocol relative", base, "//cdn.bbc.co.uk/x.js", "https://cdn.bbc.co.uk/x.js", true},
		{"protocol relative http base", "http://example.com/", "//other.org/", "http://other.org/", true},
		{"protocol relative without base", "", "//other.org/p", "https://other.org/p", true},
		{"root relative", base, "/sport", "https://www.bbc.com/sport", true},
		{"root relative keeps query", base, "/search?q=go", "https://www.bbc.com/search?q=go", true},
		{"relative path", base, "africa", "https://www.bbc.com/news/africa", true},
		{"dot segments", base, "../weather", "https://www.bbc.com/weather", true},
		{"query only", base, "?page=2", "https://www.bbc.com/news/world?page=2", true},
		{"other scheme", base, "ftp://files.example.com", "", false},
		{"relative without base", "", "africa", "", false},
		{"root relative without base", "", "/sport", "", false},
		{"bad escape falls back to nothing", base, "%zz", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.base, tt.candidate)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveAbsolutePassThrough(t *testing.T) {
	for _, u := range []string{
		"https://example.com",
		"http://example.com:8080/path;params?q=1#frag",
		"https://user@host.example/a%20b",
	} {
		got, ok := Resolve(base, u)
		require.True(t, ok, u)
		assert.Equal(t, NormalizedURL(u), got)
	}
}

func TestResolveRootRelativeJoin(t *testing.T) {
	bases := []NormalizedURL{"https://a.example/x/y", "http://b.example:8080/", "https://c.example"}
	paths := []string{"/", "/one", "/one/two?three=4"}

	for _, b := range bases {
		for _, p := range paths {
			got, ok := Resolve(b, p)
			require.True(t, ok)
			assert.Equal(t, NormalizedURL(Origin(b)+p), got)
		}
	}
}

func TestEnsureScheme(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"example.com", "https://example.com"},
		{"//example.com/a", "https://example.com/a"},
		{"/example.com", "https://example.com"},
		{"http://example.com", "http://example.com"},
		{"HTTPS://example.com", "HTTPS://example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			once := EnsureScheme(tt.raw)
			assert.Equal(t, tt.want, once)
			assert.Equal(t, once, EnsureScheme(once), "must be idempotent")
		})
	}
}

func TestProxiedURL(t *testing.T) {
	assert.Equal(t,
		"/browse?url=https%3A%2F%2Fexample.com%2Fa%3Fb%3Dc",
		ProxiedURL("https://example.com/a?b=c", Direct))
	assert.Equal(t,
		"/browse?url=https%3A%2F%2Fexample.com&tor=true",
		ProxiedURL("https://example.com", Anonymized))
}

func TestNormalize(t *testing.T) {
	r := New(DefaultOverrides())

	tests := []struct {
		raw     string
		want    NormalizedURL
		wantErr error
	}{
		{"example.com", "https://example.com", nil},
		{"  https://example.com/a  ", "https://example.com/a", nil},
		{"moscowtimes.com/news", "https://www.themoscowtimes.com/news", nil},
		{"https://www.themoscowtimes.com/x", "https://www.themoscowtimes.com/x", nil},
		{"www.moscowtimes.com", "https://www.themoscowtimes.com", nil},
		{"", "", ErrMissingURL},
		{"https://", "", ErrInvalidURL},
		{"http://exa mple.com", "", ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := r.Normalize(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeWithoutOverrides(t *testing.T) {
	got, err := New(nil).Normalize("moscowtimes.com")
	require.NoError(t, err)
	assert.Equal(t, NormalizedURL("https://moscowtimes.com"), got)
}

func TestLoadOverridesByExtension(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "overrides.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("domains:\n  nyt.com: https://www.nytimes.com\n"), 0o600))

	tomlPath := filepath.Join(dir, "overrides.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("[domains]\n\"nyt.com\" = \"https://www.nytimes.com/\"\n"), 0o600))

	for _, path := range []string{yamlPath, tomlPath} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			o, err := LoadOverrides(path)
			require.NoError(t, err)
			assert.Equal(t, 1, o.Len())

			got, ok := o.Apply("nyt.com/section/world")
			assert.True(t, ok)
			assert.Equal(t, "https://www.nytimes.com/section/world", got)
		})
	}
}

func TestLoadOverridesRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("domains:\n  x.com: ftp://x.com\n"), 0o600))
	_, err := LoadOverrides(bad)
	assert.Error(t, err)

	json := filepath.Join(dir, "overrides.json")
	require.NoError(t, os.WriteFile(json, []byte("{}"), 0o600))
	_, err = LoadOverrides(json)
	assert.Error(t, err)

	_, err = LoadOverrides(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultOverrides(t *testing.T) {
	o, err := LoadOverrides("")
	require.NoError(t, err)
	assert.Equal(t, 3, o.Len())
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, Anonymized, ParseMode("true"))
	assert.Equal(t, Anonymized, ParseMode("TRUE"))
	assert.Equal(t, Direct, ParseMode(""))
	assert.Equal(t, Direct, ParseMode("1"))
	assert.Equal(t, "tor", Anonymized.String())
	assert.Equal(t, "direct", Direct.String())
	assert.Equal(t, Direct, Anonymized.Toggle())
}
