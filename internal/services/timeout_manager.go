package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/config"
)

// TimeoutConfig defines deadlines for the analytics operation kinds
type TimeoutConfig struct {
	// Computation bounds loading a series and computing indicators, returns, risk or exports.
	Computation time.Duration
	// Forecast bounds loading a series and fitting a forecast model.
	Forecast time.Duration
	// Refresh bounds one cache warming fetch.
	Refresh time.Duration
}

// DefaultTimeoutConfig returns default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		Computation: 20 * time.Second,
		Forecast:    30 * time.Second,
		Refresh:     20 * time.Second,
	}
}

// TimeoutConfigFrom converts the configured duration strings, keeping defaults for unset values.
func TimeoutConfigFrom(cfg config.TimeoutsConfig) *TimeoutConfig {
	tc := DefaultTimeoutConfig()
	if d := config.Duration(cfg.Computation); d > 0 {
		tc.Computation = d
	}
	if d := config.Duration(cfg.Forecast); d > 0 {
		tc.Forecast = d
	}
	if d := config.Duration(cfg.Refresh); d > 0 {
		tc.Refresh = d
	}
	return tc
}

// TimeoutManager applies per-kind deadlines to analytics operations
type TimeoutManager struct {
	mu     sync.RWMutex
	config *TimeoutConfig
	logger *logrus.Logger
	active atomic.Int64
}

// NewTimeoutManager creates a new timeout manager
func NewTimeoutManager(config *TimeoutConfig, logger *logrus.Logger) *TimeoutManager {
	if config == nil {
		config = DefaultTimeoutConfig()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TimeoutManager{config: config, logger: logger}
}

// Timeout returns the deadline applied to operations of kind.
func (tm *TimeoutManager) Timeout(kind string) time.Duration {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	switch kind {
	case KindForecast:
		return tm.config.Forecast
	case KindRefresh:
		return tm.config.Refresh
	default:
		return tm.config.Computation
	}
}

// ExecuteWithTimeout runs operation under the deadline for kind. Computations do not poll the
// context, so an operation that returns after its deadline still fails with
// context.DeadlineExceeded.
func (tm *TimeoutManager) ExecuteWithTimeout(ctx context.Context, kind string, operation func(ctx context.Context) error) error {
	timeout := tm.Timeout(kind)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tm.active.Add(1)
	defer tm.active.Add(-1)

	started := time.Now()
	err := operation(ctx)
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("%s exceeded %s: %w", kind, timeout, ctx.Err())
	}

	fields := logrus.Fields{
		"operation_type": kind,
		"duration":       time.Since(started),
	}
	if ctx.Err() == context.DeadlineExceeded {
		fields["timeout"] = timeout
		tm.logger.WithFields(fields).Warn("Operation timed out")
		return err
	}
	tm.logger.WithFields(fields).Debug("Operation completed")
	return err
}

// GetActiveOperationCount returns the number of operations currently running
func (tm *TimeoutManager) GetActiveOperationCount() int {
	return int(tm.active.Load())
}

// UpdateTimeoutConfig replaces the deadlines for subsequent operations
func (tm *TimeoutManager) UpdateTimeoutConfig(config *TimeoutConfig) {
	if config == nil {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.config = config
}

// GetTimeoutConfig returns a copy of the current deadlines
func (tm *TimeoutManager) GetTimeoutConfig() TimeoutConfig {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return *tm.config
}
