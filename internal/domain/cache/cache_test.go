package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/resolver"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/infrastructure/monitoring"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(t *testing.T, cfg Config) (*Cache, *clock, *monitoring.Metrics) {
	t.Helper()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	c, err := New(cfg, zap.NewNop(), metrics)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	clk := &clock{now: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)}
	c.now = clk.Now
	return c, clk, metrics
}

var (
	directKey = Key{URL: "https://example.com", Mode: resolver.Direct}
	torKey    = Key{URL: "https://example.com", Mode: resolver.Anonymized}
)

func TestRoundTrip(t *testing.T) {
	c, _, _ := newTestCache(t, Config{TTL: 5 * time.Minute})

	html := "<html><body>" + strings.Repeat("<p>headline</p>", 200) + "</body></html>"
	c.Put(directKey, html)

	got, ok := c.Get(directKey)
	require.True(t, ok)
	assert.Equal(t, html, got)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(len(html)), stats.RawBytes)
	assert.Less(t, stats.CompressedBytes, stats.RawBytes)
}

func TestModesAreSeparate(t *testing.T) {
	c, _, _ := newTestCache(t, Config{TTL: time.Minute})

	c.Put(directKey, "direct")

	_, ok := c.Get(torKey)
	assert.False(t, ok)

	got, ok := c.Get(directKey)
	require.True(t, ok)
	assert.Equal(t, "direct", got)
}

func TestLazyExpiryWithoutPrune(t *testing.T) {
	c, clk, metrics := newTestCache(t, Config{TTL: 5 * time.Minute})

	c.Put(directKey, "page")

	clk.Advance(5*time.Minute - time.Second)
	_, ok := c.Get(directKey)
	assert.True(t, ok, "still fresh just before TTL")

	clk.Advance(time.Second)
	_, ok = c.Get(directKey)
	assert.False(t, ok, "expired exactly at TTL")
	assert.Equal(t, 0, c.Stats().Entries, "expired entry evicted on read")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheEvictions.WithLabelValues("expired")))
}

func TestPutResetsTTL(t *testing.T) {
	c, clk, _ := newTestCache(t, Config{TTL: time.Minute})

	c.Put(directKey, "v1")
	clk.Advance(50 * time.Second)
	c.Put(directKey, "v2")
	clk.Advance(50 * time.Second)

	got, ok := c.Get(directKey)
	require.True(t, ok)
	assert.Equal(t, "v2", got)
}

func TestPrune(t *testing.T) {
	c, clk, _ := newTestCache(t, Config{TTL: time.Minute})

	c.Put(directKey, "old")
	clk.Advance(30 * time.Second)
	c.Put(torKey, "newer")
	clk.Advance(40 * time.Second)

	assert.Equal(t, 1, c.Prune())
	assert.Equal(t, 1, c.Stats().Entries)

	_, ok := c.Get(torKey)
	assert.True(t, ok)
}

func TestMaxEntriesEvictsOldest(t *testing.T) {
	c, clk, _ := newTestCache(t, Config{TTL: time.Hour, MaxEntries: 2})

	for i := 0; i < 3; i++ {
		c.Put(Key{URL: resolver.NormalizedURL(fmt.Sprintf("https://site%d.example", i))}, "page")
		clk.Advance(time.Second)
	}

	assert.Equal(t, 2, c.Stats().Entries)
	_, ok := c.Get(Key{URL: "https://site0.example"})
	assert.False(t, ok)
	_, ok = c.Get(Key{URL: "https://site2.example"})
	assert.True(t, ok)
}

func TestRunStopsWithContext(t *testing.T) {
	c, _, _ := newTestCache(t, Config{TTL: time.Minute, PruneInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c, _, _ := newTestCache(t, Config{TTL: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := Key{URL: resolver.NormalizedURL(fmt.Sprintf("https://site%d.example", i%4))}
			c.Put(key, "page")
			c.Get(key)
			c.Prune()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, c.Stats().Entries)
}

func TestNewRejectsZeroTTL(t *testing.T) {
	_, err := New(Config{}, zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "https://example.com-tor", torKey.String())
	assert.Equal(t, "https://example.com-direct", directKey.String())
}
