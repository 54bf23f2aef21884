package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/resolver"
)

var (
	ErrNavigationTimeout = errors.New("navigation timeout")
	ErrProxyConnection   = errors.New("proxy connection failed")
	ErrPoolClosed        = errors.New("render pool is closed")
)

// RenderOptions bounds a single page render
type RenderOptions struct {
	Timeout time.Duration
	// SettleMax caps the randomized scroll/settle phase after DOMContentLoaded
	SettleMax time.Duration
}

// Page is the serialized DOM of a rendered page
type Page struct {
	HTML     string
	Status   int
	FinalURL string
}

// Browser is one running engine process. Implementations are not safe for
// concurrent renders; the pool hands each out to one caller at a time.
type Browser interface {
	Render(ctx context.Context, url string, opts RenderOptions) (*Page, error)
	// Version is the liveness probe
	Version(ctx context.Context) (string, error)
	Close() error
}

// Engine launches browsers with mode-specific egress
type Engine interface {
	Launch(ctx context.Context, mode resolver.Mode) (Browser, error)
}

// StatusError is returned when the document responds with status >= 400
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.Status, e.URL)
}

// NavigationError carries Chrome's net error text for a failed navigation
type NavigationError struct {
	URL    string
	Reason string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s: %s", e.URL, e.Reason)
}

// Unwrap classifies the net error so callers can use errors.Is
func (e *NavigationError) Unwrap() error {
	switch {
	case isProxyReason(e.Reason):
		return ErrProxyConnection
	case strings.Contains(e.Reason, "ERR_TIMED_OUT"), strings.Contains(e.Reason, "ERR_CONNECTION_TIMED_OUT"):
		return ErrNavigationTimeout
	}
	return nil
}

var proxyReasons = []string{
	"ERR_PROXY_CONNECTION_FAILED",
	"ERR_SOCKS_CONNECTION_FAILED",
	"ERR_SOCKS_CONNECTION_HOST_UNREACHABLE",
	"ERR_TUNNEL_CONNECTION_FAILED",
	"ERR_PROXY_CERTIFICATE_INVALID",
}

func isProxyReason(reason string) bool {
	for _, r := range proxyReasons {
		if strings.Contains(reason, r) {
			return true
		}
	}
	return false
}

// IsProxyError reports whether err means the anonymizing proxy itself failed
func IsProxyError(err error) bool {
	return errors.Is(err, ErrProxyConnection)
}
