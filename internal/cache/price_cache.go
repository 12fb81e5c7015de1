// Package cache keeps fetched price series keyed by (coin, quote currency, lookback days).
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/analysis"
)

// Key identifies one cached price series.
type Key struct {
	CoinID     string
	VsCurrency string
	Days       int
}

// String renders the key as coin:currency:days.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%d", k.CoinID, k.VsCurrency, k.Days)
}

// Entry is a cached series with its metadata.
type Entry struct {
	Candles   []analysis.Candle `json:"candles"`
	CachedAt  time.Time         `json:"cached_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// PriceCache stores price series. Implementations are safe for concurrent use.
type PriceCache interface {
	Get(ctx context.Context, key Key) ([]analysis.Candle, bool)
	Set(ctx context.Context, key Key, candles []analysis.Candle) error
	// Invalidate removes every cached series.
	Invalidate(ctx context.Context) (int, error)
	Stats() Stats
	Backend() string
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Evictions int64 `json:"evictions"`
}

// HitRate returns hits / (hits + misses) as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

type counters struct {
	hits, misses, sets, evictions atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Sets:      c.sets.Load(),
		Evictions: c.evictions.Load(),
	}
}
