package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/visusharma/Privacy-first-dockerised-News-browser/internal/api/http"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/api/middleware"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/api/ws"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/browse"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/cache"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/connectivity"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/resolver"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/rewrite"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/infrastructure/config"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/infrastructure/logging"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/infrastructure/monitoring"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/infrastructure/tracing"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/providers/browser"
	httpclient "github.com/visusharma/Privacy-first-dockerised-News-browser/internal/providers/http/client"
)

const shutdownTimeout = 15 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     *config.Config
	logger     *logging.Logger
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer

	monitor *connectivity.Monitor
	pool    *browser.Pool
	pages   *cache.Cache
	probes  *httpclient.Client

	stop      context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewServer builds every component from cfg. Nothing touches the network
// until Run.
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing news proxy",
		zap.String("port", cfg.Server.Port),
		zap.String("tor_proxy", cfg.Tor.Address()),
		zap.Int("pool_size", cfg.Browser.PoolSize),
		zap.Int("max_active", cfg.Browser.MaxActive),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)
	tracer := tracing.New("news-proxy", logger.Component("trace"))

	overrides, err := resolver.LoadOverrides(cfg.Resolver.OverridesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load domain overrides: %w", err)
	}
	logger.Info("Domain overrides loaded", zap.Int("count", overrides.Len()))

	pages, err := cache.New(cache.Config{
		TTL:           cfg.Cache.TTL,
		PruneInterval: cfg.Cache.PruneInterval,
		MaxEntries:    cfg.Cache.MaxEntries,
	}, logger.Component("cache"), metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create page cache: %w", err)
	}

	probes, err := httpclient.NewClient(httpclient.Options{
		SOCKSAddr:   cfg.Tor.Address(),
		Timeout:     cfg.Tor.ProbeTimeout,
		DialTimeout: cfg.Tor.DialTimeout,
	})
	if err != nil {
		pages.Close()
		return nil, fmt.Errorf("failed to create probe client: %w", err)
	}

	monitor := connectivity.NewMonitor(connectivity.Config{
		ProxyAddr:     cfg.Tor.Address(),
		InitialWait:   cfg.Tor.InitialWait,
		PortWait:      cfg.Tor.PortWait,
		PortRetry:     cfg.Tor.PortRetry,
		DialTimeout:   cfg.Tor.DialTimeout,
		ProbeTimeout:  cfg.Tor.ProbeTimeout,
		MaxRetries:    cfg.Tor.MaxRetries,
		Backoff:       connectivity.BackoffPolicy{Base: cfg.Tor.BackoffBase, Max: cfg.Tor.BackoffMax},
		CheckInterval: cfg.Tor.CheckInterval,
		Endpoints:     cfg.Tor.Endpoints,
	}, connectivity.NewTCPProber(), connectivity.NewHTTPVerifier(probes),
		logger.Component("connectivity"), connectivity.WithMetrics(metrics))

	engine, err := browser.NewChromeEngine(browser.ChromeConfig{
		ExecPath:  cfg.Browser.ExecPath,
		Headless:  cfg.Browser.Headless,
		ProxyAddr: cfg.Tor.Address(),
	}, logger.Component("chrome"))
	if err != nil {
		pages.Close()
		probes.Close()
		return nil, fmt.Errorf("failed to create rendering engine: %w", err)
	}
	pool := browser.NewPool(engine, browser.PoolConfig{
		MaxIdle:   cfg.Browser.PoolSize,
		MaxActive: cfg.Browser.MaxActive,
	}, logger.Component("pool"), metrics)

	rewriter, err := rewrite.New(context.Background(), logger.Component("rewrite"))
	if err != nil {
		pages.Close()
		probes.Close()
		return nil, fmt.Errorf("failed to create rewriter: %w", err)
	}

	service := browse.NewService(browse.Config{
		TimeoutDirect:  cfg.Browser.TimeoutDirect,
		TimeoutTor:     cfg.Browser.TimeoutTor,
		SettleMax:      cfg.Browser.SettleMax,
		AcquireTimeout: cfg.Browser.AcquireTimeout,
	}, browse.Deps{
		Resolver:     resolver.New(overrides),
		Cache:        pages,
		Connectivity: monitor,
		Pool:         pool,
		Rewriter:     rewriter,
		Tracer:       tracer,
		Metrics:      metrics,
		Logger:       logger.Component("browse"),
	})

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.RequestLogger(logger.Component("http")))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limits))
	}

	router.SetHTMLTemplate(apihttp.Templates())

	stats := apihttp.NewStatsAggregator(pool, pages, monitor, metrics)
	handlers := apihttp.NewHandlers(service, monitor, stats, logger.Component("http"))
	wsHandler := ws.NewHandler(monitor, metrics, logger.Component("ws"))

	router.GET("/", handlers.Landing)
	router.GET("/health", handlers.Health)
	router.GET("/check-tor", handlers.CheckTor)
	router.GET("/browse", handlers.Browse)
	router.GET("/stats", handlers.Stats)
	router.GET("/events", wsHandler.HandleConnection)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))
	router.NoRoute(handlers.Redirect)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		monitor: monitor,
		pool:    pool,
		pages:   pages,
		probes:  probes,
	}, nil
}

// Handler exposes the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the background loops and serves HTTP until Close
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.pages.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.monitor.Start(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.metrics.UpdateUptime(ctx.Done())
	}()

	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Close gracefully shuts down the server
func (s *Server) Close() error {
	var shutdownErr error
	s.closeOnce.Do(func() {
		s.logger.Info("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP shutdown incomplete", zap.Error(err))
			shutdownErr = fmt.Errorf("failed to shut down http server: %w", err)
		}

		if s.stop != nil {
			s.stop()
		}
		s.monitor.Close()
		s.wg.Wait()

		if err := s.pool.Close(); err != nil {
			s.logger.Error("Failed to close render pool", zap.Error(err))
		}
		s.pages.Close()
		s.probes.Close()
		s.tracer.Close()

		_ = s.logger.Sync()
	})
	return shutdownErr
}
