package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (m *manualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func newTestCache(ttl time.Duration) (*MemoryCache, *manualClock) {
	clock := &manualClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewMemoryCache(ttl, WithClock(clock.Now)), clock
}

func TestMemoryCache_SetGet(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	c.Set("coin_detail_bitcoin", 50000.0)

	v, ok := c.Get("coin_detail_bitcoin")
	require.True(t, ok)
	assert.Equal(t, 50000.0, v)
	assert.True(t, c.Has("coin_detail_bitcoin"))
}

func TestMemoryCache_ExpiresAfterTTL(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	c.Set("k", "v")

	clock.Advance(59 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.False(t, c.Has("k"))
}

func TestMemoryCache_LaterSetReplacesExpiry(t *testing.T) {
	c, clock := newTestCache(time.Minute)

	c.SetWithTTL("k", "long", time.Hour)
	c.SetWithTTL("k", "short", 10*time.Second)
	clock.Advance(11 * time.Second)

	_, ok := c.Get("k")
	assert.False(t, ok, "shorter TTL must fully replace the earlier expiry")
}

func TestMemoryCache_DeleteAndFlush(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	c.Delete("missing")
	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("b"))

	c.FlushAll()
	c.FlushAll()
	assert.False(t, c.Has("b"))
	assert.Equal(t, 0, c.Stats().Keys)
	assert.Equal(t, int64(2), c.Stats().Flushes)
}

func TestMemoryCache_StatsCountHitsAndMisses(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Set("a", 1)

	c.Get("a")
	c.Get("a")
	c.Get("nope")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Keys)
}

func TestMemoryCache_DeleteExpired(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	c.SetWithTTL("old", 1, time.Second)
	c.Set("fresh", 2)

	clock.Advance(2 * time.Second)

	assert.Equal(t, 1, c.DeleteExpired())
	assert.Equal(t, 1, c.Stats().Keys)
}

func TestMemoryCache_SweeperStopsWithContext(t *testing.T) {
	c := NewMemoryCache(time.Millisecond)
	c.Set("k", 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.StartSweeper(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return c.Stats().Keys == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(TopCoinsKey(j%5), i)
				c.Get(TopCoinsKey(j % 5))
				if j%25 == 0 {
					c.FlushAll()
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Stats().Keys, 5)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "top_coins_10", TopCoinsKey(10))
	assert.Equal(t, "coin_detail_ethereum", CoinDetailKey("ethereum"))
	assert.Equal(t, "historical_data_solana_7", HistoryKey("solana", 7))
}

func TestMemoryCache_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("set then get returns the value", prop.ForAll(
		func(key string, value int) bool {
			c, _ := newTestCache(time.Minute)
			c.Set(key, value)
			got, ok := c.Get(key)
			return ok && got == value
		},
		gen.AnyString(),
		gen.Int(),
	))

	properties.Property("value is absent once the ttl has elapsed", prop.ForAll(
		func(key string, ttlSeconds int) bool {
			c, clock := newTestCache(time.Minute)
			ttl := time.Duration(ttlSeconds) * time.Second
			c.SetWithTTL(key, "v", ttl)
			clock.Advance(ttl)
			_, ok := c.Get(key)
			return !ok
		},
		gen.AnyString(),
		gen.IntRange(1, 86400),
	))

	properties.Property("flush removes every key", prop.ForAll(
		func(keys []string) bool {
			c, _ := newTestCache(time.Minute)
			for _, k := range keys {
				c.Set(k, k)
			}
			c.FlushAll()
			for _, k := range keys {
				if c.Has(k) {
					return false
				}
			}
			return c.Stats().Keys == 0
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
