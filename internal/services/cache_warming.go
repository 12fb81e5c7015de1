package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/analysis"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/config"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/metrics"
)

// Warming outcomes reported to metrics.
const (
	WarmingOK      = "ok"
	WarmingPartial = "partial"
	WarmingFailed  = "failed"
)

// SeriesRefresher fetches a series from upstream and stores it in the cache.
type SeriesRefresher interface {
	Coins() []config.CoinConfig
	Refresh(ctx context.Context, coinID string, days int) (analysis.PriceSeries, error)
}

// CacheWarmingService keeps the price cache populated for every catalogue coin and lookback.
type CacheWarmingService struct {
	refresher SeriesRefresher
	cfg       config.WarmingConfig
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	timeouts  *TimeoutManager

	mu      sync.Mutex
	cron    *cron.Cron
	running sync.Mutex
}

// NewCacheWarmingService creates a new cache warming service.
//
// Parameters:
//
//	refresher: Source of fresh series.
//	cfg: Warming schedule and lookbacks.
//	m: Metrics sink; may be nil.
//	logger: Logger instance.
//
// Returns:
//
//	*CacheWarmingService: Initialized service.
func NewCacheWarmingService(refresher SeriesRefresher, cfg config.WarmingConfig, m *metrics.Metrics, logger *logrus.Logger) *CacheWarmingService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CacheWarmingService{
		refresher: refresher,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
	}
}

// WithTimeouts bounds each refresh by the refresh deadline of tm.
func (c *CacheWarmingService) WithTimeouts(tm *TimeoutManager) *CacheWarmingService {
	c.timeouts = tm
	return c
}

func (c *CacheWarmingService) refresh(ctx context.Context, coinID string, days int) (analysis.PriceSeries, error) {
	if c.timeouts == nil {
		return c.refresher.Refresh(ctx, coinID, days)
	}
	var series analysis.PriceSeries
	err := c.timeouts.ExecuteWithTimeout(ctx, KindRefresh, func(ctx context.Context) error {
		var err error
		series, err = c.refresher.Refresh(ctx, coinID, days)
		return err
	})
	return series, err
}

// WarmCache refreshes every configured coin for every warming lookback. Individual failures are
// logged and joined into the returned error; the remaining pairs are still warmed.
//
// Parameters:
//
//	ctx: Context.
//
// Returns:
//
//	error: Error if warming fails (partially or fully).
func (c *CacheWarmingService) WarmCache(ctx context.Context) error {
	// Skip if a previous run is still in progress
	if !c.running.TryLock() {
		c.logger.Warn("Cache warming already running, skipping")
		return nil
	}
	defer c.running.Unlock()

	c.logger.Info("Starting cache warming")
	start := time.Now()

	var (
		errs   []error
		total  int
		warmed int
	)
	for _, coin := range c.refresher.Coins() {
		for _, days := range c.cfg.Days {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}
			total++
			series, err := c.refresh(ctx, coin.ID, days)
			if err != nil {
				c.logger.WithFields(logrus.Fields{
					"coin":  coin.ID,
					"days":  days,
					"error": err.Error(),
				}).Warn("Failed to warm price series")
				errs = append(errs, fmt.Errorf("%s/%dd: %w", coin.ID, days, err))
				continue
			}
			warmed++
			c.logger.WithFields(logrus.Fields{
				"coin":    coin.ID,
				"days":    days,
				"candles": series.Len(),
			}).Debug("Price series warmed")
		}
	}

	outcome := WarmingOK
	switch {
	case warmed == 0 && total > 0:
		outcome = WarmingFailed
	case len(errs) > 0:
		outcome = WarmingPartial
	}
	c.metrics.ObserveWarming(outcome)

	c.logger.WithFields(logrus.Fields{
		"duration_ms": time.Since(start).Milliseconds(),
		"warmed":      warmed,
		"total":       total,
		"outcome":     outcome,
	}).Info("Cache warming completed")
	return errors.Join(errs...)
}

// Start runs WarmCache on the configured schedule until Stop is called or ctx is done.
func (c *CacheWarmingService) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return errors.New("cache warming already started")
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(c.cfg.Schedule, func() {
		if err := c.WarmCache(ctx); err != nil {
			c.logger.WithError(err).Warn("Scheduled cache warming finished with errors")
		}
	}); err != nil {
		return fmt.Errorf("register cache warming schedule %q: %w", c.cfg.Schedule, err)
	}
	scheduler.Start()
	c.cron = scheduler

	c.logger.WithField("schedule", c.cfg.Schedule).Info("Cache warming scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running warm-up to finish or ctx to expire.
func (c *CacheWarmingService) Stop(ctx context.Context) {
	c.mu.Lock()
	scheduler := c.cron
	c.cron = nil
	c.mu.Unlock()
	if scheduler == nil {
		return
	}

	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
	}
	c.logger.Info("Cache warming scheduler stopped")
}
