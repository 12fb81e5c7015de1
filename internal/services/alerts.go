package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/analysis"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/config"
)

// Alert statuses.
const (
	AlertReached = "reached"
	AlertNear    = "near"
	AlertBelow   = "below"
)

// RSI signals.
const (
	RSIOverbought = "overbought"
	RSIOversold   = "oversold"
	RSINeutral    = "neutral"
)

// AlertRequest asks whether coinID has reached TargetPrice.
type AlertRequest struct {
	CoinID      string  `json:"coin_id" binding:"required"`
	TargetPrice float64 `json:"target_price" binding:"required,gt=0"`
	Days        int     `json:"days"`
	Notify      bool    `json:"notify"`
}

// AlertResult is the evaluated alert.
type AlertResult struct {
	CoinID       string   `json:"coin_id"`
	CurrentPrice float64  `json:"current_price"`
	TargetPrice  float64  `json:"target_price"`
	Status       string   `json:"status"`
	Message      string   `json:"message"`
	RSI          *float64 `json:"rsi,omitempty"`
	RSISignal    string   `json:"rsi_signal"`
	Warnings     []string `json:"warnings,omitempty"`
	Notified     bool     `json:"notified"`
	NotifyError  string   `json:"notify_error,omitempty"`
}

// AlertService evaluates price and RSI alerts against the latest close.
type AlertService struct {
	source   SeriesSource
	cfg      config.AnalyticsConfig
	notifier Notifier
	logger   *logrus.Logger
}

// NewAlertService creates a new alert service. notifier may be nil.
func NewAlertService(source SeriesSource, cfg config.AnalyticsConfig, notifier Notifier, logger *logrus.Logger) *AlertService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AlertService{source: source, cfg: cfg, notifier: notifier, logger: logger}
}

// Check evaluates req. A failed notification does not fail the check; it is reported in the
// result instead.
func (s *AlertService) Check(ctx context.Context, req AlertRequest) (*AlertResult, error) {
	if req.TargetPrice <= 0 || math.IsNaN(req.TargetPrice) || math.IsInf(req.TargetPrice, 0) {
		return nil, analysis.NewValidationErrorf("target_price", "must be a positive number, got %g", req.TargetPrice)
	}
	if req.Days == 0 {
		req.Days = s.cfg.DefaultDays
	}
	if !s.cfg.IsAllowedDays(req.Days) {
		return nil, analysis.NewValidationErrorf("days", "must be one of %v, got %d", s.cfg.AllowedDays, req.Days)
	}

	series, err := s.source.PriceSeries(ctx, req.CoinID, req.Days)
	if err != nil {
		return nil, err
	}
	last, ok := series.Last()
	if !ok {
		return nil, fmt.Errorf("%w: empty price series", analysis.ErrInsufficientData)
	}

	result := EvaluatePriceAlert(req.CoinID, last.Close, req.TargetPrice, s.cfg.AlertNearFraction)

	rsi, err := analysis.RSI(series, s.cfg.RSI)
	if err != nil {
		return nil, fmt.Errorf("rsi: %w", err)
	}
	if n := len(rsi); n > 0 {
		v := rsi[n-1].Value
		result.RSI = &v
		result.RSISignal = ClassifyRSI(v, s.cfg.RSIOverbought, s.cfg.RSIOversold)
		switch result.RSISignal {
		case RSIOverbought:
			result.Warnings = append(result.Warnings, fmt.Sprintf("RSI is %.1f - potentially overbought", v))
		case RSIOversold:
			result.Warnings = append(result.Warnings, fmt.Sprintf("RSI is %.1f - potentially oversold", v))
		}
	}

	if req.Notify && s.notifier != nil {
		if err := s.notifier.NotifyAlert(ctx, result); err != nil {
			result.NotifyError = err.Error()
			if !errors.Is(err, ErrNotifierDisabled) {
				s.logger.WithFields(logrus.Fields{
					"coin":  req.CoinID,
					"error": err.Error(),
				}).Warn("Failed to send alert notification")
			}
		} else {
			result.Notified = true
		}
	}
	return result, nil
}

// EvaluatePriceAlert compares price with target. The alert is reached at or above target, near
// within nearFraction of it and below otherwise.
func EvaluatePriceAlert(coinID string, price, target, nearFraction float64) *AlertResult {
	if nearFraction <= 0 || nearFraction >= 1 {
		nearFraction = 0.95
	}
	r := &AlertResult{
		CoinID:       coinID,
		CurrentPrice: price,
		TargetPrice:  target,
		RSISignal:    RSINeutral,
	}
	switch {
	case price >= target:
		r.Status = AlertReached
		r.Message = fmt.Sprintf("%s has reached %.2f", coinID, price)
	case price >= target*nearFraction:
		r.Status = AlertNear
		r.Message = fmt.Sprintf("%s is at %.2f, within %.0f%% of the target %.2f", coinID, price, (1-nearFraction)*100, target)
	default:
		r.Status = AlertBelow
		r.Message = fmt.Sprintf("%s is at %.2f, still below the alert threshold of %.2f", coinID, price, target)
	}
	return r
}

// ClassifyRSI labels an RSI value against the overbought and oversold thresholds.
func ClassifyRSI(value, overbought, oversold float64) string {
	switch {
	case value > overbought:
		return RSIOverbought
	case value < oversold:
		return RSIOversold
	default:
		return RSINeutral
	}
}
