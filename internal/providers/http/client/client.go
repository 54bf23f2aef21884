package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/infrastructure/resilience"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/providers/browser"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
)

// DefaultUserAgent matches the rendering engine, so checks and page loads
// present the same browser to exit nodes
var DefaultUserAgent = browser.DefaultStealthProfile().UserAgent

// defaultAccept is what Chrome sends on a top-level navigation
const defaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"

// Options configures a Client
type Options struct {
	// SOCKSAddr routes every connection through a SOCKS5 proxy when set
	SOCKSAddr   string
	Timeout     time.Duration
	DialTimeout time.Duration
	UserAgent   string
	// RateLimit caps requests per second; zero means unlimited
	RateLimit float64
}

// Client wraps resty with rate limiting, circuit breaker and optional SOCKS egress
type Client struct {
	Resty   *resty.Client
	Limiter *rate.Limiter
	Breaker *resilience.Breaker
	Mu      sync.RWMutex

	transport *http.Transport
}

// NewClient creates a client; it fails only if the SOCKS dialer cannot be built
func NewClient(opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	// Start from the pooled transport retryablehttp tunes for long-lived clients
	base := retryablehttp.NewClient().HTTPClient.Transport.(*http.Transport)
	transport := base.Clone()
	transport.Proxy = nil

	if opts.SOCKSAddr != "" {
		forward := &net.Dialer{Timeout: opts.DialTimeout, KeepAlive: 30 * time.Second}
		dialer, err := proxy.SOCKS5("tcp", opts.SOCKSAddr, nil, forward)
		if err != nil {
			return nil, fmt.Errorf("socks dialer for %s: %w", opts.SOCKSAddr, err)
		}
		cd, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, errors.New("socks dialer does not support contexts")
		}
		transport.DialContext = cd.DialContext
	}

	restyClient := resty.New().
		SetTransport(transport).
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", defaultAccept).
		SetHeader("Accept-Language", "en-US,en;q=0.9")

	breaker := resilience.New("http-probe", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 10 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
		// Callers abandoning a request say nothing about the upstream
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	c := &Client{
		Resty:     restyClient,
		Limiter:   rate.NewLimiter(rate.Inf, 0),
		Breaker:   breaker,
		transport: transport,
	}
	c.SetRateLimit(opts.RateLimit)
	return c, nil
}

// SetHeader adds default header
func (c *Client) SetHeader(key, value string) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetHeader(key, value)
}

// SetTimeout configures request timeout
func (c *Client) SetTimeout(duration time.Duration) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetTimeout(duration)
}

// SetRateLimit configures rate limiting (requests per second)
func (c *Client) SetRateLimit(rps float64) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if rps <= 0 {
		c.Limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Request creates new request with rate limiting and circuit breaker protection
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	if c.Breaker.State() == resilience.StateOpen {
		return nil, resilience.ErrCircuitOpen
	}

	c.Mu.RLock()
	limiter := c.Limiter
	c.Mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return c.Resty.R().SetContext(ctx), nil
}

// ExecuteWithBreaker executes an HTTP operation with circuit breaker protection
func (c *Client) ExecuteWithBreaker(fn func() (*resty.Response, error)) (*resty.Response, error) {
	resp, err := resilience.Execute(c.Breaker, fn)
	if resilience.IsRejection(err) {
		return nil, fmt.Errorf("external service unavailable: %w", err)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.Breaker.State()
}

// BreakerCounts returns circuit breaker statistics
func (c *Client) BreakerCounts() resilience.Counts {
	return c.Breaker.Counts()
}

// Close drops pooled connections
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}
