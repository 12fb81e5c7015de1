package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/analysis"
)

// MemoryPriceCache is a bounded in-process cache with least-recently-used eviction and a TTL.
type MemoryPriceCache struct {
	lru   *expirable.LRU[Key, Entry]
	ttl   time.Duration
	stats *counters
	now   func() time.Time
}

// NewMemoryPriceCache creates a cache holding at most capacity series.
func NewMemoryPriceCache(capacity int, ttl time.Duration) *MemoryPriceCache {
	if capacity <= 0 {
		capacity = 1
	}
	stats := &counters{}
	onEvict := func(Key, Entry) {
		stats.evictions.Add(1)
	}
	return &MemoryPriceCache{
		lru:   expirable.NewLRU[Key, Entry](capacity, onEvict, ttl),
		ttl:   ttl,
		stats: stats,
		now:   time.Now,
	}
}

// Backend returns "memory".
func (c *MemoryPriceCache) Backend() string {
	return "memory"
}

// Get returns a live entry and marks it most recently used. Expired entries are dropped.
func (c *MemoryPriceCache) Get(_ context.Context, key Key) ([]analysis.Candle, bool) {
	entry, ok := c.lru.Get(key)
	if !ok {
		c.stats.misses.Add(1)
		return nil, false
	}
	if c.now().After(entry.ExpiresAt) {
		c.lru.Remove(key)
		c.stats.misses.Add(1)
		return nil, false
	}

	c.stats.hits.Add(1)
	return entry.Candles, true
}

// Set stores a series, evicting the least recently used entry when full.
func (c *MemoryPriceCache) Set(_ context.Context, key Key, candles []analysis.Candle) error {
	now := c.now()
	c.lru.Add(key, Entry{Candles: candles, CachedAt: now, ExpiresAt: now.Add(c.ttl)})
	c.stats.sets.Add(1)
	return nil
}

// Invalidate drops every entry.
func (c *MemoryPriceCache) Invalidate(_ context.Context) (int, error) {
	n := c.lru.Len()
	c.lru.Purge()
	return n, nil
}

// Len returns the number of stored entries, including expired ones not yet dropped.
func (c *MemoryPriceCache) Len() int {
	return c.lru.Len()
}

// Stats returns current cache statistics
func (c *MemoryPriceCache) Stats() Stats {
	return c.stats.snapshot()
}
