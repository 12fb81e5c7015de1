package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/analysis"
)

const redisKeyPrefix = "price_cache:"

// RedisPriceCache implements PriceCache using Redis with a per-key TTL.
type RedisPriceCache struct {
	redis  *redis.Client
	ttl    time.Duration
	stats  counters
	prefix string
	logger *logrus.Logger
}

// NewRedisPriceCache creates a new Redis-based price cache
func NewRedisPriceCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisPriceCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisPriceCache{
		redis:  redisClient,
		ttl:    ttl,
		prefix: redisKeyPrefix,
		logger: logger,
	}
}

// Backend returns "redis".
func (c *RedisPriceCache) Backend() string {
	return "redis"
}

// Get retrieves a series from Redis. Redis errors and corrupt entries count as misses.
func (c *RedisPriceCache) Get(ctx context.Context, key Key) ([]analysis.Candle, bool) {
	cacheKey := c.prefix + key.String()

	data, err := c.redis.Get(ctx, cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		c.stats.misses.Add(1)
		return nil, false
	}
	if err != nil {
		c.logger.WithFields(logrus.Fields{"key": cacheKey, "error": err}).Warn("Redis error reading price cache")
		c.stats.misses.Add(1)
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.WithFields(logrus.Fields{"key": cacheKey, "error": err}).Warn("Discarding corrupt price cache entry")
		c.stats.misses.Add(1)
		return nil, false
	}

	c.stats.hits.Add(1)
	return entry.Candles, true
}

// Set stores a series in Redis with the configured TTL.
func (c *RedisPriceCache) Set(ctx context.Context, key Key, candles []analysis.Candle) error {
	cacheKey := c.prefix + key.String()

	now := time.Now()
	entry := Entry{
		Candles:   candles,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("error serializing price series %s: %w", key, err)
	}

	if err := c.redis.Set(ctx, cacheKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis error caching price series %s: %w", key, err)
	}

	c.stats.sets.Add(1)
	c.logger.WithFields(logrus.Fields{
		"key":     cacheKey,
		"candles": len(candles),
		"ttl":     c.ttl.String(),
	}).Debug("Cached price series")
	return nil
}

// Invalidate removes all cached series.
func (c *RedisPriceCache) Invalidate(ctx context.Context) (int, error) {
	keys, err := c.keys(ctx)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("error clearing price cache: %w", err)
	}

	c.stats.evictions.Add(int64(len(keys)))
	c.logger.WithField("entries", len(keys)).Info("Cleared price cache")
	return len(keys), nil
}

// CachedKeys lists the cache keys currently stored, without the prefix.
func (c *RedisPriceCache) CachedKeys(ctx context.Context) ([]string, error) {
	keys, err := c.keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if len(k) > len(c.prefix) {
			out = append(out, k[len(c.prefix):])
		}
	}
	return out, nil
}

func (c *RedisPriceCache) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("error scanning cache keys: %w", err)
	}
	return keys, nil
}

// Stats returns current cache statistics
func (c *RedisPriceCache) Stats() Stats {
	return c.stats.snapshot()
}
