// Package cache holds rendered pages in memory for a fixed TTL.
//
// Entries are keyed by normalized URL and routing mode, so a page fetched
// through Tor is never served to a direct request and vice versa. Payloads
// are stored zstd-compressed; a typical news front page shrinks about 6x.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/domain/resolver"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/infrastructure/monitoring"
)

// Key identifies a cached page.
type Key struct {
	URL  resolver.NormalizedURL
	Mode resolver.Mode
}

// String renders the key as "<url>-<mode>".
func (k Key) String() string {
	return fmt.Sprintf("%s-%s", k.URL, k.Mode)
}

type entry struct {
	payload  []byte
	rawSize  int
	storedAt time.Time
	ttl      time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return !now.Before(e.storedAt.Add(e.ttl))
}

// Config configures a Cache.
type Config struct {
	TTL           time.Duration
	PruneInterval time.Duration
	// MaxEntries bounds the entry count; 0 means unbounded.
	MaxEntries int
}

// Stats describes the cache contents.
type Stats struct {
	Entries         int   `json:"entries"`
	CompressedBytes int64 `json:"compressedBytes"`
	RawBytes        int64 `json:"rawBytes"`
}

// Cache is a TTL page cache safe for concurrent use.
type Cache struct {
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics
	now     func() time.Time

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu      sync.RWMutex
	entries map[Key]*entry
}

// New creates a cache.
func New(cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) (*Cache, error) {
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %s", cfg.TTL)
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = time.Minute
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Cache{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		encoder: encoder,
		decoder: decoder,
		entries: make(map[Key]*entry),
	}, nil
}

// Get returns the cached HTML for key. Expired entries are evicted and reported as a miss.
func (c *Cache) Get(key Key) (string, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.metrics.RecordCacheLookup(false)
		return "", false
	}

	if e.expired(now) {
		c.mu.Lock()
		// Only drop the entry we saw; a concurrent Put may have replaced it.
		if current, still := c.entries[key]; still && current == e {
			delete(c.entries, key)
			c.metrics.RecordCacheEviction("expired", 1)
		}
		c.metrics.SetCacheEntries(len(c.entries))
		c.mu.Unlock()

		c.metrics.RecordCacheLookup(false)
		return "", false
	}

	html, err := c.decoder.DecodeAll(e.payload, make([]byte, 0, e.rawSize))
	if err != nil {
		c.logger.Warn("dropping undecodable cache entry", zap.String("key", key.String()), zap.Error(err))
		c.Delete(key)
		c.metrics.RecordCacheLookup(false)
		return "", false
	}

	c.metrics.RecordCacheLookup(true)
	return string(html), true
}

// Put stores html under key, replacing any previous entry and resetting its TTL.
func (c *Cache) Put(key Key, html string) {
	payload := c.encoder.EncodeAll([]byte(html), nil)
	e := &entry{
		payload:  payload,
		rawSize:  len(html),
		storedAt: c.now(),
		ttl:      c.cfg.TTL,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.cfg.MaxEntries > 0 && len(c.entries) >= c.cfg.MaxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = e
	c.metrics.SetCacheEntries(len(c.entries))
}

// Delete removes key.
func (c *Cache) Delete(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	c.metrics.SetCacheEntries(len(c.entries))
}

// Prune removes every expired entry and returns how many were removed.
func (c *Cache) Prune() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}

	c.metrics.RecordCacheEviction("expired", removed)
	c.metrics.SetCacheEntries(len(c.entries))
	return removed
}

// Run prunes on the configured interval until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.safePrune()
		}
	}
}

// safePrune keeps the prune loop alive across unexpected panics.
func (c *Cache) safePrune() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("cache prune failed", zap.Any("panic", r))
		}
	}()

	if removed := c.Prune(); removed > 0 {
		c.logger.Debug("pruned expired pages", zap.Int("removed", removed))
	}
}

// Stats returns current entry count and sizes.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{Entries: len(c.entries)}
	for _, e := range c.entries {
		s.CompressedBytes += int64(len(e.payload))
		s.RawBytes += int64(e.rawSize)
	}
	return s
}

// Close releases the compression resources.
func (c *Cache) Close() {
	c.decoder.Close()
	_ = c.encoder.Close()
}

func (c *Cache) evictOldestLocked() {
	var (
		oldestKey  Key
		oldestTime time.Time
		found      bool
	)
	for key, e := range c.entries {
		if !found || e.storedAt.Before(oldestTime) {
			oldestKey, oldestTime, found = key, e.storedAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
		c.metrics.RecordCacheEviction("capacity", 1)
	}
}
