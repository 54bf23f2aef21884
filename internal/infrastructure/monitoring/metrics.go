package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Pipeline metrics
	BrowseTotal   *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	// Cache metrics
	CacheLookups   *prometheus.CounterVec
	CacheEntries   prometheus.Gauge
	CacheEvictions *prometheus.CounterVec

	// Render pool metrics
	PoolIdle     *prometheus.GaugeVec
	PoolActive   prometheus.Gauge
	PoolLaunches *prometheus.CounterVec
	PoolDiscards *prometheus.CounterVec
	PoolWait     prometheus.Histogram

	// Connectivity metrics
	ConnectivityPhase  prometheus.Gauge
	ConnectivityProbes *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds running totals for the JSON stats endpoint
type Snapshot struct {
	TotalRequests int64   `json:"totalRequests"`
	TotalErrors   int64   `json:"totalErrors"`
	CacheHits     int64   `json:"cacheHits"`
	CacheMisses   int64   `json:"cacheMisses"`
	AvgLatencyMs  float64 `json:"avgLatencyMs"`
	UptimeSeconds float64 `json:"uptimeSeconds"`

	totalDuration float64
}

// NewMetrics creates a metrics collector registered on reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsproxy_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newsproxy_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newsproxy_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		BrowseTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsproxy_browse_total",
				Help: "Browse requests by routing mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newsproxy_stage_duration_seconds",
				Help:    "Duration of browse pipeline stages",
				Buckets: []float64{.001, .01, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage", "outcome"},
		),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsproxy_cache_lookups_total",
				Help: "Page cache lookups by result",
			},
			[]string{"result"},
		),
		CacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "newsproxy_cache_entries",
				Help: "Number of entries held by the page cache",
			},
		),
		CacheEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsproxy_cache_evictions_total",
				Help: "Page cache evictions by reason",
			},
			[]string{"reason"},
		),

		PoolIdle: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "newsproxy_pool_idle_instances",
				Help: "Idle render instances by routing mode",
			},
			[]string{"mode"},
		),
		PoolActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "newsproxy_pool_active_instances",
				Help: "Render instances checked out by requests",
			},
		),
		PoolLaunches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsproxy_pool_launches_total",
				Help: "Render instance launches by routing mode and status",
			},
			[]string{"mode", "status"},
		),
		PoolDiscards: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsproxy_pool_discards_total",
				Help: "Render instances terminated by reason",
			},
			[]string{"reason"},
		),
		PoolWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "newsproxy_pool_admission_wait_seconds",
				Help:    "Time spent waiting for an admission slot",
				Buckets: []float64{.001, .01, .1, .5, 1, 5, 10, 30},
			},
		),

		ConnectivityPhase: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "newsproxy_connectivity_phase",
				Help: "Anonymity network phase (0 uninitialized, 1 waiting for port, 2 probing, 3 connected, 4 failed)",
			},
		),
		ConnectivityProbes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsproxy_connectivity_probes_total",
				Help: "Connectivity probes by kind and result",
			},
			[]string{"kind", "result"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "newsproxy_ws_connections",
				Help: "Number of active event stream connections",
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "newsproxy_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordBrowse records the outcome of a browse request
func (m *Metrics) RecordBrowse(mode, outcome string) {
	if m == nil {
		return
	}
	m.BrowseTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordStage records the duration of one pipeline stage
func (m *Metrics) RecordStage(stage, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage, outcome).Observe(duration.Seconds())
}

// RecordCacheLookup records a cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()

	m.mu.Lock()
	if hit {
		m.snapshot.CacheHits++
	} else {
		m.snapshot.CacheMisses++
	}
	m.mu.Unlock()
}

// SetCacheEntries sets the current number of cache entries
func (m *Metrics) SetCacheEntries(count int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(count))
}

// RecordCacheEviction records removed cache entries
func (m *Metrics) RecordCacheEviction(reason string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.CacheEvictions.WithLabelValues(reason).Add(float64(count))
}

// SetPoolIdle sets the number of idle instances for a routing mode
func (m *Metrics) SetPoolIdle(mode string, count int) {
	if m == nil {
		return
	}
	m.PoolIdle.WithLabelValues(mode).Set(float64(count))
}

// SetPoolActive sets the number of checked-out instances
func (m *Metrics) SetPoolActive(count int) {
	if m == nil {
		return
	}
	m.PoolActive.Set(float64(count))
}

// RecordLaunch records an instance launch attempt
func (m *Metrics) RecordLaunch(mode, status string) {
	if m == nil {
		return
	}
	m.PoolLaunches.WithLabelValues(mode, status).Inc()
}

// RecordDiscard records a terminated instance
func (m *Metrics) RecordDiscard(reason string) {
	if m == nil {
		return
	}
	m.PoolDiscards.WithLabelValues(reason).Inc()
}

// ObserveAdmissionWait records time spent waiting for an admission slot
func (m *Metrics) ObserveAdmissionWait(d time.Duration) {
	if m == nil {
		return
	}
	m.PoolWait.Observe(d.Seconds())
}

// SetConnectivityPhase records the current connectivity phase ordinal
func (m *Metrics) SetConnectivityPhase(phase int) {
	if m == nil {
		return
	}
	m.ConnectivityPhase.Set(float64(phase))
}

// RecordProbe records a connectivity probe result
func (m *Metrics) RecordProbe(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.ConnectivityProbes.WithLabelValues(kind, result).Inc()
}

// IncWSConnections increments event stream connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements event stream connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// Snapshot returns the running totals
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	if s.TotalRequests > 0 {
		s.AvgLatencyMs = s.totalDuration / float64(s.TotalRequests) * 1000
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}

// UpdateUptime refreshes the uptime gauge every second until stop is closed
func (m *Metrics) UpdateUptime(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		case <-stop:
			return
		}
	}
}
