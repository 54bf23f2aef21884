package resolver

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrMissingURL is returned when no URL was supplied.
	ErrMissingURL = errors.New("missing URL parameter")
	// ErrInvalidURL is returned when the URL cannot be parsed into scheme and host.
	ErrInvalidURL = errors.New("invalid URL format")
)

// NormalizedURL is an absolute URL that always starts with http:// or https://.
type NormalizedURL string

func (u NormalizedURL) String() string { return string(u) }

// nonNavigable prefixes never produce a page load.
var nonNavigable = []string{"#", "javascript:", "mailto:", "tel:", "data:"}

// IsNavigable reports whether a link target would navigate somewhere.
func IsNavigable(candidate string) bool {
	c := strings.TrimSpace(candidate)
	if c == "" {
		return false
	}
	lower := strings.ToLower(c)
	for _, p := range nonNavigable {
		if strings.HasPrefix(lower, p) {
			return false
		}
	}
	return true
}

// HasHTTPScheme reports whether raw starts with http:// or https:// (any case).
func HasHTTPScheme(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// EnsureScheme prefixes https:// when raw carries no http(s) scheme, after
// stripping leading slashes. Idempotent.
func EnsureScheme(raw string) string {
	if HasHTTPScheme(raw) {
		return raw
	}
	return "https://" + strings.TrimLeft(raw, "/")
}

// Resolve resolves candidate against base. An empty base means no page
// context. The boolean is false when the candidate must not be rewritten.
func Resolve(base NormalizedURL, candidate string) (NormalizedURL, bool) {
	c := strings.TrimSpace(candidate)
	if !IsNavigable(c) {
		return "", false
	}

	if HasHTTPScheme(c) {
		return NormalizedURL(c), true
	}

	var baseURL *url.URL
	if base != "" {
		parsed, err := url.Parse(string(base))
		if err == nil && parsed.Host != "" {
			baseURL = parsed
		}
	}

	switch {
	case strings.HasPrefix(c, "//"):
		scheme := "https"
		if baseURL != nil {
			scheme = baseURL.Scheme
		}
		return checked(scheme + ":" + c)

	case strings.HasPrefix(c, "/"):
		if baseURL == nil {
			return fallback(base, c)
		}
		return checked(baseURL.Scheme + "://" + baseURL.Host + c)
	}

	if baseURL == nil {
		return "", false
	}
	ref, err := url.Parse(c)
	if err != nil {
		return fallback(base, c)
	}
	return checked(baseURL.ResolveReference(ref).String())
}

// fallback joins the origin of base and a root-relative candidate by plain
// concatenation, for inputs url.Parse rejects.
func fallback(base NormalizedURL, candidate string) (NormalizedURL, bool) {
	if base == "" || !strings.HasPrefix(candidate, "/") {
		return "", false
	}
	return checked(Origin(base) + candidate)
}

func checked(raw string) (NormalizedURL, bool) {
	if !HasHTTPScheme(raw) {
		return "", false
	}
	return NormalizedURL(raw), true
}

// Origin returns scheme://host of u, or u without trailing slashes when it
// does not parse.
func Origin(u NormalizedURL) string {
	parsed, err := url.Parse(string(u))
	if err != nil || parsed.Host == "" {
		return strings.TrimRight(string(u), "/")
	}
	return parsed.Scheme + "://" + parsed.Host
}

// ProxiedURL returns the in-proxy link that renders target in the given mode.
func ProxiedURL(target NormalizedURL, mode Mode) string {
	proxied := "/browse?url=" + url.QueryEscape(string(target))
	if mode == Anonymized {
		proxied += "&tor=true"
	}
	return proxied
}

// Resolver normalizes user-supplied URLs, applying the domain override table.
type Resolver struct {
	overrides *Overrides
}

// New creates a resolver. A nil table applies no overrides.
func New(overrides *Overrides) *Resolver {
	if overrides == nil {
		overrides = &Overrides{}
	}
	return &Resolver{overrides: overrides}
}

// Normalize turns raw user input into a NormalizedURL.
func (r *Resolver) Normalize(raw string) (NormalizedURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingURL
	}

	if rewritten, ok := r.overrides.Apply(raw); ok {
		raw = rewritten
	}
	raw = EnsureScheme(raw)

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Host == "" || parsed.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidURL, raw)
	}
	if strings.ContainsAny(parsed.Host, " \t") {
		return "", fmt.Errorf("%w: malformed host %q", ErrInvalidURL, parsed.Host)
	}

	return NormalizedURL(raw), nil
}

// Overrides returns the active domain override table.
func (r *Resolver) Overrides() *Overrides {
	return r.overrides
}
