/*
Package resilience provides circuit breaker implementation for graceful degradation.

# Overview

Guards the two external dependencies that fail in bursts: launching Chrome
processes for the render pool, and fetching anonymity verification endpoints.
When Chrome cannot start (missing binary, exhausted shared memory) requests
fail fast instead of each paying the full launch timeout.

# Features

- Three-state circuit breaker (Closed, Open, Half-Open)
- Configurable failure thresholds, timeouts and success predicate
- State change callbacks for logging
- Injectable clock
- Status snapshots (state, counts, trips, reopen time) for /stats

# Usage

	// Create a circuit breaker
	breaker := resilience.New("service", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	// Execute request through breaker
	err := breaker.Do(func() error {
		return launch(ctx)
	})

	// Or keep the typed result
	inst, err := resilience.Execute(breaker, func() (*Instance, error) {
		return engine.Launch(ctx, opts)
	})

# States

- Closed: Normal operation, requests pass through
- Open: Service unavailable, requests fail immediately
- Half-Open: Testing if service recovered, limited requests allowed

# Pattern

The circuit breaker transitions between states based on success/failure rates:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
