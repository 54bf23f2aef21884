package http

import (
	"time"

	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/cache"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/connectivity"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/infrastructure/monitoring"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/providers/browser"
)

// PoolStater exposes render pool counters
type PoolStater interface {
	Stats() browser.PoolStats
}

// CacheStater exposes page cache counters
type CacheStater interface {
	Stats() cache.Stats
}

// StateSource exposes the connectivity state
type StateSource interface {
	Snapshot() connectivity.State
}

// StatsSnapshot is the /stats document
type StatsSnapshot struct {
	Timestamp    time.Time           `json:"timestamp"`
	Pool         browser.PoolStats   `json:"pool"`
	Cache        cache.Stats         `json:"cache"`
	Connectivity connectivity.State  `json:"connectivity"`
	Requests     monitoring.Snapshot `json:"requests"`
}

// StatsAggregator collects snapshots from every component
type StatsAggregator struct {
	pool    PoolStater
	cache   CacheStater
	state   StateSource
	metrics *monitoring.Metrics
}

// NewStatsAggregator creates an aggregator. A nil source is reported as zero.
func NewStatsAggregator(pool PoolStater, pages CacheStater, state StateSource, metrics *monitoring.Metrics) *StatsAggregator {
	return &StatsAggregator{pool: pool, cache: pages, state: state, metrics: metrics}
}

// Collect takes one snapshot
func (a *StatsAggregator) Collect() StatsSnapshot {
	snap := StatsSnapshot{
		Timestamp: time.Now().UTC(),
		Requests:  a.metrics.Snapshot(),
	}
	if a.pool != nil {
		snap.Pool = a.pool.Stats()
	}
	if a.cache != nil {
		snap.Cache = a.cache.Stats()
	}
	if a.state != nil {
		snap.Connectivity = a.state.Snapshot()
	}
	return snap
}
