package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errLaunch = errors.New("chrome exited")

func fail() error    { return errLaunch }
func succeed() error { return nil }

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		requests      []func() error
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			requests:      []func() error{succeed, succeed, succeed},
			expectedState: StateClosed,
		},
		{
			name:          "opens after consecutive failures",
			requests:      []func() error{fail, fail, fail},
			expectedState: StateOpen,
		},
		{
			name:          "success resets the failure streak",
			requests:      []func() error{fail, fail, succeed, fail, fail},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := New("launch", Settings{
				ReadyToTrip: func(counts Counts) bool {
					return counts.ConsecutiveFailures >= 3
				},
			})

			for _, req := range tt.requests {
				_ = breaker.Do(req)
			}

			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	breaker := New("launch", Settings{
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 2 },
	})

	_ = breaker.Do(fail)
	_ = breaker.Do(fail)
	require.Equal(t, StateOpen, breaker.State())

	called := false
	err := breaker.Do(func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejection(err))
	assert.False(t, called)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	clock := newFakeClock()
	var transitions []string

	breaker := New("launch", Settings{
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 2 },
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
		Now: clock.Now,
	})

	_ = breaker.Do(fail)
	_ = breaker.Do(fail)
	require.Equal(t, StateOpen, breaker.State())

	clock.Advance(31 * time.Second)
	require.Equal(t, StateHalfOpen, breaker.State())

	require.NoError(t, breaker.Do(succeed))
	require.NoError(t, breaker.Do(succeed))

	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	breaker := New("launch", Settings{
		Timeout:     time.Second,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
		Now:         clock.Now,
	})

	_ = breaker.Do(fail)
	clock.Advance(2 * time.Second)
	require.Equal(t, StateHalfOpen, breaker.State())

	_ = breaker.Do(fail)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestIsSuccessfulIgnoresCallerCancellation(t *testing.T) {
	breaker := New("probe", Settings{
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	err := breaker.Do(func() error { return context.Canceled })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestExecuteReturnsTypedResult(t *testing.T) {
	breaker := New("probe", Settings{})

	got, err := Execute(breaker, func() (string, error) { return "198.51.100.7", nil })
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.7", got)

	counts := breaker.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
}

func TestStatusReportsTripsAndReopenTime(t *testing.T) {
	clock := newFakeClock()
	breaker := New("launch", Settings{
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
		Now:         clock.Now,
	})

	_ = breaker.Do(fail)

	st := breaker.Status()
	assert.Equal(t, "launch", st.Name)
	assert.Equal(t, StateOpen, st.State)
	assert.Equal(t, uint64(1), st.Trips)
	assert.Equal(t, clock.Now().Add(10*time.Second), st.Until)

	clock.Advance(11 * time.Second)
	st = breaker.Status()
	assert.Equal(t, StateHalfOpen, st.State)
	assert.True(t, st.Until.IsZero())
}

func TestPanicCountsAsFailure(t *testing.T) {
	breaker := New("launch", Settings{
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})

	assert.Panics(t, func() {
		_ = breaker.Do(func() error { panic("devtools closed") })
	})
	assert.Equal(t, StateOpen, breaker.State())
}

func TestClosedWindowClearsCounts(t *testing.T) {
	clock := newFakeClock()
	breaker := New("probe", Settings{
		Interval:    time.Minute,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 3 },
		Now:         clock.Now,
	})

	_ = breaker.Do(fail)
	_ = breaker.Do(fail)
	clock.Advance(2 * time.Minute)
	_ = breaker.Do(fail)

	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, uint32(1), breaker.Counts().ConsecutiveFailures)
}
