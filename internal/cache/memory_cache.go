// Package cache implements the process-local read cache that sits in front
// of Postgres. Entries expire after a TTL and the whole store is flushed
// after every market refresh.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultTTL is used when a cache is built with a non-positive TTL
const DefaultTTL = 300 * time.Second

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Stats is a point-in-time view of cache activity
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Keys    int   `json:"keys"`
	Flushes int64 `json:"flushes"`
}

// MemoryCache is a mutex guarded key/value store with per-entry expiry.
// An entry past its expiry is reported absent even before the sweeper
// removes it.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]entry
	ttl     time.Duration
	now     func() time.Time
	hits    int64
	misses  int64
	flushes int64
}

// Option configures a MemoryCache
type Option func(*MemoryCache)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(c *MemoryCache) {
		c.now = now
	}
}

// NewMemoryCache creates a cache whose Set uses ttl
func NewMemoryCache(ttl time.Duration, opts ...Option) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &MemoryCache{
		items: make(map[string]entry),
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the default entry lifetime
func (c *MemoryCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the live value stored under key
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok || !c.now().Before(e.expiresAt) {
		if ok {
			delete(c.items, key)
		}
		c.misses++
		return nil, false
	}
	c.hits++
	return e.value, true
}

// Set stores value under key with the default TTL
func (c *MemoryCache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key, replacing any previous value and expiry
func (c *MemoryCache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	c.items[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Has reports whether key holds a live value. It does not count as a hit or miss.
func (c *MemoryCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	return ok && c.now().Before(e.expiresAt)
}

// Delete removes key. Deleting a missing key is a no-op.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// FlushAll drops every entry. Safe to call concurrently and repeatedly.
func (c *MemoryCache) FlushAll() {
	c.mu.Lock()
	c.items = make(map[string]entry)
	c.flushes++
	c.mu.Unlock()
}

// DeleteExpired removes expired entries and returns how many were dropped
func (c *MemoryCache) DeleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.items {
		if !now.Before(e.expiresAt) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// Stats returns hit/miss counters and the number of stored keys
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Keys: len(c.items), Flushes: c.flushes}
}

// StartSweeper removes expired entries every interval until ctx is done
func (c *MemoryCache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.DeleteExpired()
			}
		}
	}()
}

// Key helpers. Every read path derives its key from the coin identifier.

// TopCoinsKey is the key of a top-N listing
func TopCoinsKey(count int) string {
	return fmt.Sprintf("top_coins_%d", count)
}

// CoinDetailKey is the key of a single snapshot
func CoinDetailKey(coinID string) string {
	return "coin_detail_" + coinID
}

// HistoryKey is the key of a trimmed historical series
func HistoryKey(coinID string, days int) string {
	return fmt.Sprintf("historical_data_%s_%d", coinID, days)
}

// AllCoinsKey is the key of the listing projection
const AllCoinsKey = "all_coins"
