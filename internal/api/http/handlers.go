package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/browse"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/connectivity"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/resolver"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/infrastructure/tracing"
)

// Browser runs the browse pipeline
type Browser interface {
	Browse(ctx context.Context, req browse.Request) (*browse.Response, error)
}

// Connectivity is the part of the monitor the handlers use
type Connectivity interface {
	EnsureConnected(ctx context.Context) (bool, error)
	Recheck(ctx context.Context) (bool, error)
	Snapshot() connectivity.State
}

// Handlers contains all HTTP handlers
type Handlers struct {
	browser      Browser
	connectivity Connectivity
	stats        *StatsAggregator
	sections     []Section
	logger       *zap.Logger
	now          func() time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(browser Browser, conn Connectivity, stats *StatsAggregator, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		browser:      browser,
		connectivity: conn,
		stats:        stats,
		sections:     DefaultSections,
		logger:       logger,
		now:          time.Now,
	}
}

// Health is the liveness check
func (h *Handlers) Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// Landing serves the news site list
func (h *Handlers) Landing(c *gin.Context) {
	c.HTML(http.StatusOK, "landing.html", landingPage{
		Sections: h.sections,
		Phase:    h.connectivity.Snapshot().Phase.String(),
	})
}

const torSuggestion = "Please try again later or use direct access"

// CheckTor reports whether anonymized egress works. force=true re-probes
// even when already connected.
func (h *Handlers) CheckTor(c *gin.Context) {
	check := h.connectivity.EnsureConnected
	if c.Query("force") == "true" {
		check = h.connectivity.Recheck
	}

	ok, err := check(c.Request.Context())
	timestamp := h.now().UTC().Format(time.RFC3339)

	if err != nil {
		h.logger.Error("Tor check failed", zap.Error(err), tracing.Field(c.Request.Context()))
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":     "error",
			"message":    err.Error(),
			"suggestion": torSuggestion,
			"timestamp":  timestamp,
		})
		return
	}

	state := h.connectivity.Snapshot()
	if !ok {
		body := gin.H{
			"status":     "error",
			"message":    "Tor connection failed after multiple retries",
			"suggestion": torSuggestion,
			"timestamp":  timestamp,
		}
		if state.LastError != "" {
			body["lastError"] = state.LastError
		}
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	body := gin.H{
		"status":    "ok",
		"message":   "Tor connection is working",
		"timestamp": timestamp,
	}
	if state.ExitIP != "" {
		body["exitIp"] = state.ExitIP
	}
	if state.Endpoint != "" {
		body["endpoint"] = state.Endpoint
	}
	c.JSON(http.StatusOK, body)
}

// Browse renders, rewrites and serves the requested page
func (h *Handlers) Browse(c *gin.Context) {
	raw := c.Query("url")
	if strings.TrimSpace(raw) == "" {
		c.String(http.StatusBadRequest, "Missing URL parameter")
		return
	}

	req := browse.Request{
		RawURL:      raw,
		Mode:        resolver.ParseMode(c.Query("tor")),
		BypassCache: c.Query("bypass_cache") == "true",
	}

	resp, err := h.browser.Browse(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		be, ok := browse.AsError(err)
		if !ok {
			be = &browse.Error{Kind: browse.KindRenderFailure, URL: raw, Mode: req.Mode, Err: err}
		}
		switch be.Kind {
		case browse.KindInvalidInput:
			c.String(http.StatusBadRequest, "Invalid URL format: %s", be.Err.Error())
			return
		case browse.KindCanceled:
			// nobody is reading; the status only reaches the access log
			c.Status(be.Kind.HTTPStatus())
			return
		}
		c.HTML(be.Kind.HTTPStatus(), "error.html", newErrorPage(be))
		return
	}

	if resp.CacheHit {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(resp.HTML))
}

// Stats serves pool, cache and connectivity snapshots
func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.Collect())
}
