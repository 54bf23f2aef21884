package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines per-client rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// ExemptPrefixes are never limited (health checks from the orchestrator).
	ExemptPrefixes []string
	// IdleTTL drops per-client limiters not seen for this long.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns the rate limit configuration for the proxy.
// The event stream is exempt since one upgrade holds a connection for minutes.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		Burst:             40,
		ExemptPrefixes:    []string{"/health", "/metrics", "/events"},
		IdleTTL:           10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientTable hands out one token bucket per client IP
type clientTable struct {
	cfg RateLimitConfig

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

func (t *clientTable) get(ip string, now time.Time) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cfg.IdleTTL > 0 && now.Sub(t.lastSweep) > t.cfg.IdleTTL {
		for key, cl := range t.clients {
			if now.Sub(cl.lastSeen) > t.cfg.IdleTTL {
				delete(t.clients, key)
			}
		}
		t.lastSweep = now
	}

	cl, ok := t.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(t.cfg.RequestsPerSecond), t.cfg.Burst)}
		t.clients[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// RateLimit creates a per-IP rate limiting middleware. Rejected requests get
// 429 with a Retry-After hint in whole seconds.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	table := &clientTable{
		cfg:       cfg,
		clients:   make(map[string]*clientLimiter),
		lastSweep: time.Now(),
	}

	return func(c *gin.Context) {
		if exempt(c.Request.URL.Path, cfg.ExemptPrefixes) {
			c.Next()
			return
		}

		now := time.Now()
		limiter := table.get(c.ClientIP(), now)
		if limiter.AllowN(now, 1) {
			c.Next()
			return
		}

		if wait := retryAfter(limiter, now); wait > 0 {
			c.Header("Retry-After", strconv.Itoa(wait))
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "rate limit exceeded",
		})
	}
}

// retryAfter is the seconds until one token is available again
func retryAfter(l *rate.Limiter, now time.Time) int {
	if l.Limit() <= 0 || l.Limit() == rate.Inf {
		return 0
	}
	missing := 1 - l.TokensAt(now)
	if missing <= 0 {
		return 0
	}
	return int(math.Ceil(missing / float64(l.Limit())))
}

func exempt(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
