package browse

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/resolver"
)

// ErrConnectivityUnavailable means the anonymizing proxy could not be verified
var ErrConnectivityUnavailable = errors.New("anonymity network unavailable")

// Kind classifies a failed browse
type Kind int

const (
	KindInvalidInput Kind = iota
	KindConnectivityUnavailable
	KindNavigationTimeout
	KindRenderFailure
	// KindCanceled means the caller went away before the page was ready
	KindCanceled
)

// StatusClientClosedRequest is the non-standard status logged for KindCanceled
const StatusClientClosedRequest = 499

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindConnectivityUnavailable:
		return "connectivity_unavailable"
	case KindNavigationTimeout:
		return "navigation_timeout"
	case KindRenderFailure:
		return "render_failure"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// HTTPStatus is the response status for the kind
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConnectivityUnavailable:
		return http.StatusServiceUnavailable
	case KindNavigationTimeout:
		return http.StatusGatewayTimeout
	case KindCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error carries enough context to build a retry link
type Error struct {
	Kind Kind
	// URL is the normalized target, or the raw input for KindInvalidInput
	URL  string
	Mode resolver.Mode
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("browse %s (%s): %s: %v", e.URL, e.Mode, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a *Error from err
func AsError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
