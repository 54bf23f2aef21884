package connectivity

import (
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// BackoffPolicy computes exponential delays between probe attempts
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff matches the probe schedule: 5s doubling, capped at 30s
var DefaultBackoff = BackoffPolicy{Base: 5 * time.Second, Max: 30 * time.Second}

// Delay returns min(Base * 2^attempt, Max)
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return retryablehttp.DefaultBackoff(p.Base, p.Max, attempt, nil)
}

// Backoff returns the default delay for attempt
func Backoff(attempt int) time.Duration {
	return DefaultBackoff.Delay(attempt)
}
