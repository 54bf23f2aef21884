package browser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultBrandingGlobs keep site identity assets even when media is blocked
var DefaultBrandingGlobs = []string{
	"**/*logo*",
	"**/*brand*",
	"**/*icon*",
	"**/*header*",
}

// DefaultTrackerGlobs are hosts whose requests are always aborted
var DefaultTrackerGlobs = []string{
	"*.google-analytics.com",
	"*.googletagmanager.com",
	"*.googlesyndication.com",
	"*.doubleclick.net",
	"*.facebook.net",
	"*.hotjar.com",
	"*.scorecardresearch.com",
	"*.quantserve.com",
	"*.chartbeat.com",
	"*.taboola.com",
	"*.outbrain.com",
}

// blockedResourceTypes use the DevTools protocol resource type names
var blockedResourceTypes = map[string]struct{}{
	"Image": {},
	"Font":  {},
	"Media": {},
}

// RequestFilter decides which subresource requests a render may make
type RequestFilter struct {
	branding []string
	trackers []string
}

// NewRequestFilter validates the glob lists
func NewRequestFilter(branding, trackers []string) (*RequestFilter, error) {
	for _, g := range append(append([]string(nil), branding...), trackers...) {
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("invalid filter pattern %q", g)
		}
	}
	return &RequestFilter{
		branding: lower(branding),
		trackers: lower(trackers),
	}, nil
}

// DefaultRequestFilter blocks trackers and heavy media
func DefaultRequestFilter() *RequestFilter {
	f, err := NewRequestFilter(DefaultBrandingGlobs, DefaultTrackerGlobs)
	if err != nil {
		panic(err)
	}
	return f
}

// Allow reports whether a request for rawURL of resourceType may proceed
func (f *RequestFilter) Allow(rawURL, resourceType string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}

	if f.isTracker(strings.ToLower(u.Hostname())) {
		return false
	}

	if _, heavy := blockedResourceTypes[resourceType]; !heavy {
		return true
	}
	return f.isBranding(strings.ToLower(strings.TrimPrefix(u.Path, "/")))
}

func (f *RequestFilter) isTracker(host string) bool {
	if host == "" {
		return false
	}
	for _, g := range f.trackers {
		if strings.TrimPrefix(g, "*.") == host {
			return true
		}
		if ok, _ := doublestar.Match(g, host); ok {
			return true
		}
	}
	return false
}

func (f *RequestFilter) isBranding(path string) bool {
	for _, g := range f.branding {
		if ok, _ := doublestar.Match(g, path); ok {
			return true
		}
	}
	return false
}

func lower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
