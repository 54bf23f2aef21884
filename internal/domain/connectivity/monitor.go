package connectivity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/infrastructure/monitoring"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Config holds probe timings and targets
type Config struct {
	ProxyAddr     string
	InitialWait   time.Duration
	PortWait      time.Duration
	PortRetry     time.Duration
	DialTimeout   time.Duration
	ProbeTimeout  time.Duration
	MaxRetries    int
	Backoff       BackoffPolicy
	CheckInterval time.Duration
	Endpoints     []string
}

const probeKey = "probe"

// Monitor tracks whether the anonymizing proxy is usable.
// A single Monitor is shared by every request in the process.
type Monitor struct {
	cfg      Config
	prober   PortProber
	verifier Verifier
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	group singleflight.Group

	mu    sync.RWMutex
	state State

	subMu   sync.Mutex
	subs    map[int]chan Transition
	nextSub int

	// probes outlive the callers that triggered them, but not the monitor
	life   context.Context
	cancel context.CancelFunc
}

// Option customizes a Monitor
type Option func(*Monitor)

// WithClock replaces time.Now and the sleep used between attempts
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
		if sleep != nil {
			m.sleep = sleep
		}
	}
}

// WithMetrics records phases and probe results
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// NewMonitor creates a monitor in the Uninitialized phase
func NewMonitor(cfg Config, prober PortProber, verifier Verifier, logger *zap.Logger, opts ...Option) *Monitor {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	life, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		cfg:      cfg,
		prober:   prober,
		verifier: verifier,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
		subs:     make(map[int]chan Transition),
		life:     life,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state.LastTransitionAt = m.now()
	return m
}

// Snapshot returns the current state
func (m *Monitor) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// EnsureConnected returns immediately when Connected; otherwise it joins or
// starts the shared probe sequence. The error is non-nil only when ctx ends
// first or the monitor is closed.
func (m *Monitor) EnsureConnected(ctx context.Context) (bool, error) {
	if m.Snapshot().Connected() {
		return true, nil
	}
	return m.await(ctx)
}

// Recheck runs a probe sequence even when already Connected
func (m *Monitor) Recheck(ctx context.Context) (bool, error) {
	return m.await(ctx)
}

// MarkFailed demotes a Connected monitor after a proxy error seen elsewhere
func (m *Monitor) MarkFailed(cause error) {
	m.mu.Lock()
	if m.state.Phase != Connected {
		m.mu.Unlock()
		return
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	tr := m.transitionLocked(Failed, func(s *State) { s.LastError = msg })
	m.mu.Unlock()

	m.logger.Warn("Proxy marked failed", zap.String("error", msg))
	m.publish(tr)
}

// Start probes once, then re-probes every CheckInterval while not Connected.
// It blocks until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	if _, err := m.EnsureConnected(ctx); err != nil && ctx.Err() != nil {
		return
	}

	if m.cfg.CheckInterval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.Snapshot().Connected() {
				continue
			}
			m.logger.Info("Re-probing proxy", zap.Stringer("phase", m.Snapshot().Phase))
			if _, err := m.EnsureConnected(ctx); err != nil && ctx.Err() != nil {
				return
			}
		}
	}
}

// Subscribe returns a channel of transitions and a func to stop receiving.
// Slow subscribers miss transitions rather than blocking the monitor.
func (m *Monitor) Subscribe() (<-chan Transition, func()) {
	ch := make(chan Transition, 16)

	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

// Close stops any in-flight probe sequence
func (m *Monitor) Close() {
	m.cancel()
}

func (m *Monitor) await(ctx context.Context) (bool, error) {
	ch := m.group.DoChan(probeKey, func() (interface{}, error) {
		return m.run(m.life), nil
	})

	select {
	case res := <-ch:
		if m.life.Err() != nil {
			return false, fmt.Errorf("connectivity monitor closed: %w", m.life.Err())
		}
		return res.Val.(bool), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// run executes one full probe sequence and reports whether it ended Connected
func (m *Monitor) run(ctx context.Context) bool {
	if m.Snapshot().Phase == Uninitialized {
		m.setPhase(WaitingForProxyPort, nil)
		m.logger.Info("Waiting for proxy to warm up", zap.Duration("wait", m.cfg.InitialWait))
		if err := m.sleep(ctx, m.cfg.InitialWait); err != nil {
			m.fail(err)
			return false
		}
	} else {
		m.setPhase(WaitingForProxyPort, nil)
	}

	if err := m.waitForPort(ctx); err != nil {
		m.fail(err)
		return false
	}

	m.setPhase(ProbingEndpoints, nil)

	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxRetries; attempt++ {
		result, err := m.verify(ctx)
		if err == nil {
			m.setPhase(Connected, func(s *State) {
				s.ConsecutiveFailures = 0
				s.LastError = ""
				s.ExitIP = result.ExitIP
				s.Endpoint = result.Endpoint
			})
			m.logger.Info("Proxy connectivity verified",
				zap.String("endpoint", result.Endpoint),
				zap.String("exit_ip", result.ExitIP),
				zap.Bool("is_tor", result.IsTor),
				zap.Int("attempt", attempt))
			return true
		}
		lastErr = err

		m.mu.Lock()
		m.state.ConsecutiveFailures++
		m.state.LastError = err.Error()
		m.mu.Unlock()

		if ctx.Err() != nil || attempt == m.cfg.MaxRetries {
			break
		}

		delay := m.cfg.Backoff.Delay(attempt)
		m.logger.Warn("Proxy verification failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", m.cfg.MaxRetries),
			zap.Duration("backoff", delay))
		if err := m.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	m.fail(lastErr)
	return false
}

// waitForPort polls the proxy port until it accepts a connection or PortWait elapses
func (m *Monitor) waitForPort(ctx context.Context) error {
	deadline := m.now().Add(m.cfg.PortWait)
	for {
		err := m.probePort(ctx)
		m.metrics.RecordProbe("port", err == nil)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !m.now().Add(m.cfg.PortRetry).Before(deadline) {
			return fmt.Errorf("%w: %s not reachable after %s", ErrProxyPortUnreachable, m.cfg.ProxyAddr, m.cfg.PortWait)
		}
		m.logger.Debug("Proxy port not ready", zap.String("addr", m.cfg.ProxyAddr), zap.Error(err))
		if err := m.sleep(ctx, m.cfg.PortRetry); err != nil {
			return err
		}
	}
}

func (m *Monitor) probePort(ctx context.Context) error {
	dialCtx := ctx
	if m.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, m.cfg.DialTimeout)
		defer cancel()
	}
	return m.prober.Probe(dialCtx, m.cfg.ProxyAddr)
}

// verify checks the port once more, then tries endpoints in order
func (m *Monitor) verify(ctx context.Context) (Verification, error) {
	if err := m.probePort(ctx); err != nil {
		m.metrics.RecordProbe("port", false)
		return Verification{}, err
	}

	var errs []error
	for _, endpoint := range m.cfg.Endpoints {
		probeCtx := ctx
		var cancel context.CancelFunc = func() {}
		if m.cfg.ProbeTimeout > 0 {
			probeCtx, cancel = context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		}
		result, err := m.verifier.Verify(probeCtx, endpoint)
		cancel()

		m.metrics.RecordProbe("endpoint", err == nil)
		if err == nil {
			if result.Endpoint == "" {
				result.Endpoint = endpoint
			}
			return result, nil
		}
		m.logger.Debug("Verification endpoint failed", zap.String("endpoint", endpoint), zap.Error(err))
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return Verification{}, fmt.Errorf("%w: %w", ErrVerificationFailed, errors.Join(errs...))
}

func (m *Monitor) fail(err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	m.setPhase(Failed, func(s *State) { s.LastError = msg })
	m.logger.Error("Proxy connectivity failed", zap.String("error", msg))
}

func (m *Monitor) setPhase(phase Phase, mutate func(*State)) {
	m.mu.Lock()
	tr := m.transitionLocked(phase, mutate)
	m.mu.Unlock()
	m.publish(tr)
}

// transitionLocked applies the change; callers hold m.mu
func (m *Monitor) transitionLocked(phase Phase, mutate func(*State)) Transition {
	from := m.state.Phase
	if mutate != nil {
		mutate(&m.state)
	}
	m.state.Phase = phase
	if from != phase {
		m.state.LastTransitionAt = m.now()
	}
	m.metrics.SetConnectivityPhase(int(phase))
	return Transition{From: from, To: phase, At: m.state.LastTransitionAt, State: m.state}
}

func (m *Monitor) publish(tr Transition) {
	if tr.From == tr.To {
		return
	}
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- tr:
		default:
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
