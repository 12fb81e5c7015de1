package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/analysis"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/cache"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/coingecko"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/config"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/metrics"
)

var (
	// ErrUnknownCoin is returned for coin IDs outside the configured catalogue.
	ErrUnknownCoin = errors.New("unknown coin")
	// ErrUpstreamUnavailable wraps failures talking to the market data provider.
	ErrUpstreamUnavailable = errors.New("market data provider unavailable")
)

// MarketDataProvider is the subset of the CoinGecko client used by the services.
type MarketDataProvider interface {
	MarketChart(ctx context.Context, coinID, vsCurrency string, days int) (*coingecko.MarketChart, error)
	CoinInfo(ctx context.Context, coinID string) (*coingecko.CoinInfo, error)
}

// MarketDataService loads price series for catalogue coins, going through the cache first and
// the upstream provider, guarded by a circuit breaker, on a miss.
type MarketDataService struct {
	provider   MarketDataProvider
	cache      cache.PriceCache
	breaker    *CircuitBreaker
	metrics    *metrics.Metrics
	logger     *logrus.Logger
	tracer     trace.Tracer
	vsCurrency string
	coins      []config.CoinConfig
}

// NewMarketDataService creates a new market data service.
//
// Parameters:
//
//	provider: Upstream price source.
//	priceCache: Cache for fetched series.
//	breaker: Circuit breaker guarding the provider.
//	m: Metrics sink; may be nil.
//	cfg: Application configuration (coin catalogue and quote currency).
//	logger: Logger instance.
//
// Returns:
//
//	*MarketDataService: Initialized service.
func NewMarketDataService(provider MarketDataProvider, priceCache cache.PriceCache, breaker *CircuitBreaker, m *metrics.Metrics, cfg *config.Config, logger *logrus.Logger) *MarketDataService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	vs := cfg.CoinGecko.VsCurrency
	if vs == "" {
		vs = "usd"
	}
	coins := make([]config.CoinConfig, len(cfg.Coins))
	copy(coins, cfg.Coins)

	return &MarketDataService{
		provider:   provider,
		cache:      priceCache,
		breaker:    breaker,
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer("services.market_data"),
		vsCurrency: strings.ToLower(vs),
		coins:      coins,
	}
}

// Coins returns the configured coin catalogue.
func (s *MarketDataService) Coins() []config.CoinConfig {
	out := make([]config.CoinConfig, len(s.coins))
	copy(out, s.coins)
	return out
}

// Coin looks up a catalogue entry by ID.
func (s *MarketDataService) Coin(id string) (config.CoinConfig, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, c := range s.coins {
		if c.ID == id {
			return c, nil
		}
	}
	return config.CoinConfig{}, fmt.Errorf("%w: %q", ErrUnknownCoin, id)
}

// VsCurrency returns the quote currency prices are fetched in.
func (s *MarketDataService) VsCurrency() string {
	return s.vsCurrency
}

// PriceSeries returns the daily price series of coinID over the last days days.
func (s *MarketDataService) PriceSeries(ctx context.Context, coinID string, days int) (analysis.PriceSeries, error) {
	return s.load(ctx, coinID, days, true)
}

// Refresh fetches the series from the provider and overwrites the cached copy.
func (s *MarketDataService) Refresh(ctx context.Context, coinID string, days int) (analysis.PriceSeries, error) {
	return s.load(ctx, coinID, days, false)
}

func (s *MarketDataService) load(ctx context.Context, coinID string, days int, useCache bool) (analysis.PriceSeries, error) {
	coin, err := s.Coin(coinID)
	if err != nil {
		return analysis.PriceSeries{}, err
	}
	if days <= 0 {
		return analysis.PriceSeries{}, analysis.NewValidationErrorf("days", "must be >= 1, got %d", days)
	}

	ctx, span := s.tracer.Start(ctx, "MarketDataService.load", trace.WithAttributes(
		attribute.String("coin.id", coin.ID),
		attribute.Int("days", days),
		attribute.Bool("refresh", !useCache),
	))
	defer span.End()

	key := cache.Key{CoinID: coin.ID, VsCurrency: s.vsCurrency, Days: days}
	if s.cache != nil && useCache {
		candles, ok := s.cache.Get(ctx, key)
		s.metrics.ObserveCache(s.cache.Backend(), ok)
		if ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return analysis.NewPriceSeries(candles)
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	var chart *coingecko.MarketChart
	err = s.guard(ctx, func(ctx context.Context) error {
		var fetchErr error
		chart, fetchErr = s.provider.MarketChart(ctx, coin.ID, s.vsCurrency, days)
		return fetchErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return analysis.PriceSeries{}, s.upstreamError("market_chart", coin.ID, err)
	}

	candles := coingecko.ToCandles(chart)
	if len(candles) == 0 {
		return analysis.PriceSeries{}, fmt.Errorf("%w: provider returned no prices for %s", analysis.ErrInsufficientData, coin.ID)
	}
	series, err := analysis.NewPriceSeries(candles)
	if err != nil {
		return analysis.PriceSeries{}, fmt.Errorf("failed to build price series for %s: %w", coin.ID, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, candles); err != nil {
			s.logger.WithFields(logrus.Fields{
				"coin":  coin.ID,
				"key":   key.String(),
				"error": err.Error(),
			}).Warn("Failed to cache price series")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"coin":    coin.ID,
		"days":    days,
		"candles": series.Len(),
	}).Debug("Fetched price series")
	return series, nil
}

// Info returns current market data for coinID.
func (s *MarketDataService) Info(ctx context.Context, coinID string) (*coingecko.CoinInfo, error) {
	coin, err := s.Coin(coinID)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "MarketDataService.Info", trace.WithAttributes(attribute.String("coin.id", coin.ID)))
	defer span.End()

	var info *coingecko.CoinInfo
	err = s.guard(ctx, func(ctx context.Context) error {
		var fetchErr error
		info, fetchErr = s.provider.CoinInfo(ctx, coin.ID)
		return fetchErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, s.upstreamError("coin_info", coin.ID, err)
	}
	return info, nil
}

// InvalidateCache drops every cached series and returns how many were removed.
func (s *MarketDataService) InvalidateCache(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	n, err := s.cache.Invalidate(ctx)
	if err != nil {
		return n, fmt.Errorf("failed to invalidate price cache: %w", err)
	}
	s.logger.WithField("removed", n).Info("Price cache invalidated")
	return n, nil
}

// CacheStats returns the cache counters, or zero stats without a cache.
func (s *MarketDataService) CacheStats() cache.Stats {
	if s.cache == nil {
		return cache.Stats{}
	}
	return s.cache.Stats()
}

// CacheBackend names the cache implementation in use, or "none".
func (s *MarketDataService) CacheBackend() string {
	if s.cache == nil {
		return "none"
	}
	return s.cache.Backend()
}

// BreakerStats returns the upstream circuit breaker statistics.
func (s *MarketDataService) BreakerStats() CircuitBreakerStats {
	if s.breaker == nil {
		return CircuitBreakerStats{State: Closed.String()}
	}
	return s.breaker.GetStats()
}

func (s *MarketDataService) guard(ctx context.Context, fn func(context.Context) error) error {
	if s.breaker == nil {
		return fn(ctx)
	}
	return s.breaker.Execute(ctx, fn)
}

func (s *MarketDataService) upstreamError(endpoint, coinID string, err error) error {
	if errors.Is(err, coingecko.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownCoin, coinID)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"coin":     coinID,
		"endpoint": endpoint,
		"error":    err.Error(),
	}).Error("Market data request failed")
	return fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, endpoint, err)
}

// IsUpstreamFailure reports whether err should count against the provider circuit breaker.
func IsUpstreamFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, coingecko.ErrNotFound) &&
		!errors.Is(err, context.Canceled)
}

// BreakerMetricsHook publishes breaker transitions to m.
func BreakerMetricsHook(m *metrics.Metrics) func(name string, from, to CircuitBreakerState) {
	return func(_ string, _, to CircuitBreakerState) {
		m.SetBreakerState(int(to))
	}
}

// NewPriceCache builds the configured cache backend. The Redis backend needs a client; without
// one the memory backend is used.
func NewPriceCache(cfg config.CacheConfig, redisClient *redis.Client, logger *logrus.Logger) cache.PriceCache {
	ttl := cacheTTL(cfg)
	if cfg.Backend == "redis" && redisClient != nil {
		return cache.NewRedisPriceCache(redisClient, ttl, logger)
	}
	if cfg.Backend == "redis" && logger != nil {
		logger.Warn("Redis cache requested without a Redis connection, using memory cache")
	}
	return cache.NewMemoryPriceCache(cfg.MaxEntries, ttl)
}

// cacheTTL parses the configured cache TTL with a fallback.
func cacheTTL(cfg config.CacheConfig) time.Duration {
	if d := config.Duration(cfg.TTL); d > 0 {
		return d
	}
	return 10 * time.Minute
}
