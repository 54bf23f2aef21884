package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State is where the breaker sits in its cycle
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON snapshots
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Settings tunes a Breaker. Zero values take the defaults applied by New.
type Settings struct {
	// MaxRequests caps trial calls while half-open; that many successes close it
	MaxRequests uint32
	// Interval clears the closed-state counts when it elapses
	Interval time.Duration
	// Timeout is how long the breaker stays open
	Timeout time.Duration
	// ReadyToTrip is consulted after every closed-state failure
	ReadyToTrip func(counts Counts) bool
	// IsSuccessful classifies the guarded call's error. Defaults to err == nil.
	IsSuccessful  func(err error) bool
	OnStateChange func(name string, from State, to State)
	Now           func() time.Time
}

// Counts are the tallies for the current window
type Counts struct {
	Requests             uint32 `json:"requests"`
	TotalSuccesses       uint32 `json:"totalSuccesses"`
	TotalFailures        uint32 `json:"totalFailures"`
	ConsecutiveSuccesses uint32 `json:"consecutiveSuccesses"`
	ConsecutiveFailures  uint32 `json:"consecutiveFailures"`
}

func (c *Counts) success() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) failure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Status is a point-in-time view for stats endpoints
type Status struct {
	Name   string    `json:"name"`
	State  State     `json:"state"`
	Counts Counts    `json:"counts"`
	Trips  uint64    `json:"trips"`
	Until  time.Time `json:"until,omitzero"`
}

// Breaker fails calls fast while a dependency keeps failing.
// Each state change starts a new generation; outcomes reported against an
// older generation are dropped.
type Breaker struct {
	name string
	cfg  Settings

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	trips      uint64
	// deadline ends the closed window, or the open period; zero while half-open
	deadline time.Time
}

// New builds a closed breaker
func New(name string, settings Settings) *Breaker {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Interval <= 0 {
		settings.Interval = time.Minute
	}
	if settings.Timeout <= 0 {
		settings.Timeout = time.Minute
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts Counts) bool { return counts.ConsecutiveFailures > 5 }
	}
	if settings.IsSuccessful == nil {
		settings.IsSuccessful = func(err error) bool { return err == nil }
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}

	return &Breaker{
		name:     name,
		cfg:      settings,
		deadline: settings.Now().Add(settings.Interval),
	}
}

func (b *Breaker) Name() string { return b.name }

// State advances any elapsed deadline before answering
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tick(b.cfg.Now())
	return b.state
}

func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tick(b.cfg.Now())
	st := Status{Name: b.name, State: b.state, Counts: b.counts, Trips: b.trips}
	if b.state == StateOpen {
		st.Until = b.deadline
	}
	return st
}

// Do runs fn unless the breaker rejects it. A panic in fn counts as a failure.
func (b *Breaker) Do(fn func() error) error {
	gen, err := b.admit()
	if err != nil {
		return err
	}

	ok := false
	defer func() {
		if !ok {
			b.report(gen, false)
		}
	}()

	err = fn()
	ok = true
	b.report(gen, b.cfg.IsSuccessful(err))
	return err
}

// Execute is Do for calls that return a value
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var result T
	err := b.Do(func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}

// IsRejection reports whether err came from the breaker rather than the guarded call
func IsRejection(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tick(b.cfg.Now())
	switch {
	case b.state == StateOpen:
		return b.generation, ErrCircuitOpen
	case b.state == StateHalfOpen && b.counts.Requests >= b.cfg.MaxRequests:
		return b.generation, ErrTooManyRequests
	}
	b.counts.Requests++
	return b.generation, nil
}

func (b *Breaker) report(gen uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Now()
	b.tick(now)
	if gen != b.generation {
		return
	}

	if !success {
		b.counts.failure()
		if b.state == StateHalfOpen || b.cfg.ReadyToTrip(b.counts) {
			b.move(StateOpen, now)
		}
		return
	}

	b.counts.success()
	if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.cfg.MaxRequests {
		b.move(StateClosed, now)
	}
}

// tick applies deadlines that passed since the last call
func (b *Breaker) tick(now time.Time) {
	if b.deadline.IsZero() || !now.After(b.deadline) {
		return
	}
	switch b.state {
	case StateClosed:
		b.generation++
		b.counts = Counts{}
		b.deadline = now.Add(b.cfg.Interval)
	case StateOpen:
		b.move(StateHalfOpen, now)
	}
}

func (b *Breaker) move(to State, now time.Time) {
	from := b.state
	if from == to {
		return
	}

	b.state = to
	b.generation++
	b.counts = Counts{}

	switch to {
	case StateClosed:
		b.deadline = now.Add(b.cfg.Interval)
	case StateOpen:
		b.trips++
		b.deadline = now.Add(b.cfg.Timeout)
	case StateHalfOpen:
		b.deadline = time.Time{}
	}

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}
