package browse

import (
	"context"
	"errors"
	"time"

	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/cache"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/resolver"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/infrastructure/monitoring"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/infrastructure/tracing"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/providers/browser"
	"go.uber.org/zap"
)

// PageCache stores rewritten pages per (url, mode)
type PageCache interface {
	Get(key cache.Key) (string, bool)
	Put(key cache.Key, html string)
}

// Connectivity reports whether anonymized egress works
type Connectivity interface {
	EnsureConnected(ctx context.Context) (bool, error)
	MarkFailed(cause error)
}

// InstancePool hands out render instances
type InstancePool interface {
	Acquire(ctx context.Context, mode resolver.Mode) (*browser.Instance, error)
	Release(inst *browser.Instance)
	Discard(inst *browser.Instance)
}

// Rewriter makes page navigation stay inside the proxy
type Rewriter interface {
	RewriteOrOriginal(doc string, base resolver.NormalizedURL, mode resolver.Mode) string
}

// Config holds per-mode render budgets
type Config struct {
	TimeoutDirect time.Duration
	TimeoutTor    time.Duration
	SettleMax     time.Duration
	// AcquireTimeout bounds the pool slot wait plus any launch.
	// Zero uses the mode's render timeout.
	AcquireTimeout time.Duration
}

func (c Config) timeout(mode resolver.Mode) time.Duration {
	if mode == resolver.Anonymized {
		return c.TimeoutTor
	}
	return c.TimeoutDirect
}

func (c Config) acquireTimeout(mode resolver.Mode) time.Duration {
	if c.AcquireTimeout > 0 {
		return c.AcquireTimeout
	}
	return c.timeout(mode)
}

// Request is one parsed /browse call
type Request struct {
	RawURL      string
	Mode        resolver.Mode
	BypassCache bool
}

// Response is a page ready to send
type Response struct {
	HTML     string
	URL      resolver.NormalizedURL
	Mode     resolver.Mode
	CacheHit bool
}

// Service runs the browse pipeline:
// validate, cache lookup, connectivity, acquire, render, rewrite, store, release.
type Service struct {
	cfg          Config
	resolver     *resolver.Resolver
	cache        PageCache
	connectivity Connectivity
	pool         InstancePool
	rewriter     Rewriter
	tracer       *tracing.Tracer
	metrics      *monitoring.Metrics
	logger       *zap.Logger
}

// Deps groups the collaborators of a Service
type Deps struct {
	Resolver     *resolver.Resolver
	Cache        PageCache
	Connectivity Connectivity
	Pool         InstancePool
	Rewriter     Rewriter
	Tracer       *tracing.Tracer
	Metrics      *monitoring.Metrics
	Logger       *zap.Logger
}

// NewService creates the orchestrator
func NewService(cfg Config, deps Deps) *Service {
	if cfg.TimeoutDirect <= 0 {
		cfg.TimeoutDirect = 30 * time.Second
	}
	if cfg.TimeoutTor <= 0 {
		cfg.TimeoutTor = 60 * time.Second
	}
	if deps.Resolver == nil {
		deps.Resolver = resolver.New(resolver.DefaultOverrides())
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{
		cfg:          cfg,
		resolver:     deps.Resolver,
		cache:        deps.Cache,
		connectivity: deps.Connectivity,
		pool:         deps.Pool,
		rewriter:     deps.Rewriter,
		tracer:       deps.Tracer,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
	}
}

// Browse returns the rewritten page for req. Every failure is a *Error.
func (s *Service) Browse(ctx context.Context, req Request) (resp *Response, err error) {
	mode := req.Mode
	defer func() {
		outcome := "ok"
		if be, ok := AsError(err); ok {
			outcome = be.Kind.String()
		} else if resp != nil && resp.CacheHit {
			outcome = "hit"
		}
		s.metrics.RecordBrowse(mode.String(), outcome)
	}()

	target, err := s.resolver.Normalize(req.RawURL)
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, URL: req.RawURL, Mode: mode, Err: err}
	}
	fail := func(kind Kind, cause error) error {
		return &Error{Kind: kind, URL: string(target), Mode: mode, Err: cause}
	}

	log := s.logger.With(zap.String("url", string(target)), zap.Stringer("mode", mode), tracing.Field(ctx))
	key := cache.Key{URL: target, Mode: mode}

	if !req.BypassCache {
		span, _ := s.tracer.StartSpan(ctx, "browse.cache")
		html, hit := s.cache.Get(key)
		span.Annotate(zap.Bool("hit", hit))
		s.tracer.End(span, nil)
		if hit {
			log.Info("Serving cached page")
			return &Response{HTML: html, URL: target, Mode: mode, CacheHit: true}, nil
		}
	}

	if mode == resolver.Anonymized {
		if err := s.ensureConnectivity(ctx); err != nil {
			log.Warn("Anonymity network unavailable", zap.Error(err))
			return nil, fail(KindConnectivityUnavailable, err)
		}
	}

	log.Info("Browsing")

	inst, err := s.acquire(ctx, mode)
	if err != nil {
		kind := KindRenderFailure
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			kind = KindCanceled
		case errors.Is(err, context.DeadlineExceeded):
			kind = KindNavigationTimeout
		}
		log.Warn("No render instance", zap.String("kind", kind.String()), zap.Error(err))
		return nil, fail(kind, err)
	}
	discard := false
	defer func() {
		if discard {
			s.pool.Discard(inst)
		} else {
			s.pool.Release(inst)
		}
	}()

	renderSpan, rctx := s.tracer.StartSpan(ctx, "browse.render")
	renderSpan.SetTag("instance", inst.ID)
	timer := monitoring.NewTimer(s.metrics, "render")
	page, err := inst.Render(rctx, string(target), browser.RenderOptions{
		Timeout:   s.cfg.timeout(mode),
		SettleMax: s.cfg.SettleMax,
	})
	s.tracer.End(renderSpan, err)
	if err != nil {
		kind, drop := s.classifyRender(ctx, mode, err)
		timer.Stop(kind.String())
		discard = drop
		if kind == KindCanceled {
			log.Info("Client disconnected during render")
		} else {
			log.Error("Render failed", zap.String("kind", kind.String()), zap.Error(err))
		}
		return nil, fail(kind, err)
	}
	timer.Stop("ok")

	base := target
	if resolver.HasHTTPScheme(page.FinalURL) {
		base = resolver.NormalizedURL(page.FinalURL)
	}

	rewriteSpan, _ := s.tracer.StartSpan(ctx, "browse.rewrite")
	timer = monitoring.NewTimer(s.metrics, "rewrite")
	html := s.rewriter.RewriteOrOriginal(page.HTML, base, mode)
	timer.Stop("ok")
	s.tracer.End(rewriteSpan, nil)

	s.cache.Put(key, html)
	return &Response{HTML: html, URL: target, Mode: mode}, nil
}

// acquire checks out an instance within the mode's acquire budget
func (s *Service) acquire(ctx context.Context, mode resolver.Mode) (*browser.Instance, error) {
	span, actx := s.tracer.StartSpan(ctx, "browse.acquire")
	actx, cancel := context.WithTimeout(actx, s.cfg.acquireTimeout(mode))
	defer cancel()

	timer := monitoring.NewTimer(s.metrics, "acquire")
	inst, err := s.pool.Acquire(actx, mode)
	s.tracer.End(span, err)
	if err != nil {
		timer.Stop("error")
		return nil, err
	}
	timer.Stop("ok")
	return inst, nil
}

func (s *Service) ensureConnectivity(ctx context.Context) error {
	span, cctx := s.tracer.StartSpan(ctx, "browse.connectivity")
	timer := monitoring.NewTimer(s.metrics, "connectivity")

	ok, err := s.connectivity.EnsureConnected(cctx)
	if err == nil && !ok {
		err = ErrConnectivityUnavailable
	}
	if err != nil {
		timer.Stop("error")
		s.tracer.End(span, err)
		return err
	}
	timer.Stop("ok")
	s.tracer.End(span, nil)
	return nil
}

// classifyRender maps a render error to a Kind and says whether the
// instance should be thrown away rather than reused. Every RenderFailure
// discards, a bad document status included. A caller that disconnected
// says nothing about the instance, so it is kept.
func (s *Service) classifyRender(ctx context.Context, mode resolver.Mode, err error) (Kind, bool) {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return KindCanceled, false
	case errors.Is(err, browser.ErrNavigationTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindNavigationTimeout, false
	case browser.IsProxyError(err) && mode == resolver.Anonymized:
		s.connectivity.MarkFailed(err)
		return KindConnectivityUnavailable, false
	default:
		return KindRenderFailure, true
	}
}
