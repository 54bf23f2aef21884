package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/resolver"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/infrastructure/monitoring"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/infrastructure/resilience"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Instance is a launched browser checked out to at most one caller
type Instance struct {
	ID              string
	Mode            resolver.Mode
	LaunchedAt      time.Time
	LastValidatedAt time.Time

	browser    Browser
	checkedOut atomic.Bool
}

// Render loads url in a new tab of this instance
func (i *Instance) Render(ctx context.Context, url string, opts RenderOptions) (*Page, error) {
	return i.browser.Render(ctx, url, opts)
}

// PoolConfig sizes the pool
type PoolConfig struct {
	// MaxIdle bounds idle instances kept for reuse, across both modes
	MaxIdle int
	// MaxActive bounds instances checked out at once
	MaxActive int
	// ProbeTimeout bounds the liveness check of a reused instance
	ProbeTimeout time.Duration
}

// PoolStats is a snapshot for /stats
type PoolStats struct {
	Idle           int    `json:"idle"`
	IdleDirect     int    `json:"idleDirect"`
	IdleAnonymized int    `json:"idleAnonymized"`
	Active         int    `json:"active"`
	MaxIdle        int    `json:"maxIdle"`
	MaxActive      int    `json:"maxActive"`
	Launches       uint64 `json:"launches"`
	Discards       uint64 `json:"discards"`
	Breaker        string `json:"breaker"`
	BreakerTrips   uint64 `json:"breakerTrips"`
}

// Pool reuses browser instances per egress mode. Idle instances form a
// single LIFO stack; Acquire takes the most recently released one of the
// requested mode.
type Pool struct {
	engine  Engine
	cfg     PoolConfig
	logger  *zap.Logger
	metrics *monitoring.Metrics
	breaker *resilience.Breaker
	sem     *semaphore.Weighted
	now     func() time.Time

	mu     sync.Mutex
	idle   []*Instance
	active int
	closed bool

	launches atomic.Uint64
	discards atomic.Uint64
}

// NewPool creates an empty pool; instances are launched on demand
func NewPool(engine Engine, cfg PoolConfig, logger *zap.Logger, metrics *monitoring.Metrics) *Pool {
	if cfg.MaxIdle < 0 {
		cfg.MaxIdle = 0
	}
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 4
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		engine:  engine,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		sem:     semaphore.NewWeighted(int64(cfg.MaxActive)),
		now:     time.Now,
	}
	p.breaker = resilience.New("browser-launch", resilience.Settings{
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Launch breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})
	return p
}

// Acquire waits for an admission slot, then reuses or launches an instance
func (p *Pool) Acquire(ctx context.Context, mode resolver.Mode) (*Instance, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	start := p.now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	p.metrics.ObserveAdmissionWait(p.now().Sub(start))

	inst, err := p.checkout(ctx, mode)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	return inst, nil
}

func (p *Pool) checkout(ctx context.Context, mode resolver.Mode) (*Instance, error) {
	for {
		inst, err := p.popIdle(mode)
		if err != nil {
			return nil, err
		}
		if inst == nil {
			break
		}

		if err := p.probe(ctx, inst); err != nil {
			if ctx.Err() != nil {
				// our deadline, not the instance's fault
				if !p.pushIdle(inst) {
					p.terminate(inst, "overflow")
				}
				return nil, ctx.Err()
			}
			p.logger.Info("Removing dead browser from pool",
				zap.String("instance", inst.ID),
				zap.Stringer("mode", mode),
				zap.Error(err))
			p.terminate(inst, "dead")
			continue
		}

		inst.LastValidatedAt = p.now()
		return p.markActive(inst), nil
	}

	b, err := resilience.Execute(p.breaker, func() (Browser, error) {
		return p.engine.Launch(ctx, mode)
	})
	if err != nil {
		p.metrics.RecordLaunch(mode.String(), "failure")
		return nil, err
	}
	p.metrics.RecordLaunch(mode.String(), "success")
	p.launches.Add(1)

	now := p.now()
	inst := &Instance{
		ID:              uuid.NewString(),
		Mode:            mode,
		LaunchedAt:      now,
		LastValidatedAt: now,
		browser:         b,
	}
	p.logger.Debug("Launched browser", zap.String("instance", inst.ID), zap.Stringer("mode", mode))

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		_ = b.Close()
		return nil, ErrPoolClosed
	}
	return p.markActive(inst), nil
}

func (p *Pool) probe(ctx context.Context, inst *Instance) error {
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()
	_, err := inst.browser.Version(probeCtx)
	return err
}

// popIdle removes the most recent idle instance of mode from the stack
func (p *Pool) popIdle(mode resolver.Mode) (*Instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	for i := len(p.idle) - 1; i >= 0; i-- {
		inst := p.idle[i]
		if inst.Mode != mode {
			continue
		}
		p.idle = append(p.idle[:i], p.idle[i+1:]...)
		p.updateIdleMetricsLocked()
		return inst, nil
	}
	return nil, nil
}

func (p *Pool) pushIdle(inst *Instance) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.idle) >= p.cfg.MaxIdle {
		return false
	}
	p.idle = append(p.idle, inst)
	p.updateIdleMetricsLocked()
	return true
}

func (p *Pool) markActive(inst *Instance) *Instance {
	inst.checkedOut.Store(true)
	p.mu.Lock()
	p.active++
	p.metrics.SetPoolActive(p.active)
	p.mu.Unlock()
	return inst
}

// checkin ends a checkout; false when the instance was already returned
func (p *Pool) checkin(inst *Instance) bool {
	if inst == nil || !inst.checkedOut.CompareAndSwap(true, false) {
		return false
	}
	p.mu.Lock()
	p.active--
	p.metrics.SetPoolActive(p.active)
	p.mu.Unlock()
	return true
}

// Release returns inst for reuse, or terminates it when the idle stack is full
func (p *Pool) Release(inst *Instance) {
	if !p.checkin(inst) {
		return
	}
	defer p.sem.Release(1)

	if !p.pushIdle(inst) {
		p.terminate(inst, "overflow")
	}
}

// Discard terminates inst instead of reusing it
func (p *Pool) Discard(inst *Instance) {
	if !p.checkin(inst) {
		return
	}
	defer p.sem.Release(1)
	p.terminate(inst, "render_failure")
}

func (p *Pool) terminate(inst *Instance, reason string) {
	p.discards.Add(1)
	p.metrics.RecordDiscard(reason)
	if err := inst.browser.Close(); err != nil {
		p.logger.Warn("Failed to close browser",
			zap.String("instance", inst.ID),
			zap.String("reason", reason),
			zap.Error(err))
	}
}

// Stats returns pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	breaker := p.breaker.Status()
	stats := PoolStats{
		Idle:         len(p.idle),
		Active:       p.active,
		MaxIdle:      p.cfg.MaxIdle,
		MaxActive:    p.cfg.MaxActive,
		Launches:     p.launches.Load(),
		Discards:     p.discards.Load(),
		Breaker:      breaker.State.String(),
		BreakerTrips: breaker.Trips,
	}
	for _, inst := range p.idle {
		if inst.Mode == resolver.Anonymized {
			stats.IdleAnonymized++
		} else {
			stats.IdleDirect++
		}
	}
	return stats
}

// Close terminates idle instances; checked-out ones are terminated on return
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.updateIdleMetricsLocked()
	p.mu.Unlock()

	for _, inst := range idle {
		p.terminate(inst, "shutdown")
	}
	return nil
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) updateIdleMetricsLocked() {
	var direct, anon int
	for _, inst := range p.idle {
		if inst.Mode == resolver.Anonymized {
			anon++
		} else {
			direct++
		}
	}
	p.metrics.SetPoolIdle(resolver.Direct.String(), direct)
	p.metrics.SetPoolIdle(resolver.Anonymized.String(), anon)
}
