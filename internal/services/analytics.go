package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/analysis"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/config"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/metrics"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/telemetry"
)

// Computation kinds used for metrics and logs.
const (
	KindIndicators = "indicators"
	KindReturns    = "returns"
	KindRisk       = "risk"
	KindForecast   = "forecast"
	KindSummary    = "summary"
	KindCompare    = "compare"
	KindDataset    = "dataset"
	KindRefresh    = "refresh"
)

// SeriesSource provides price series for catalogue coins.
type SeriesSource interface {
	PriceSeries(ctx context.Context, coinID string, days int) (analysis.PriceSeries, error)
}

// AnalyticsService runs the indicator, risk and forecast engines over fetched price series.
// Every call recomputes from the series; nothing derived is cached.
type AnalyticsService struct {
	source   SeriesSource
	cfg      config.AnalyticsConfig
	forecast config.ForecastConfig
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	tracer   *telemetry.BusinessTracer
	timeouts *TimeoutManager
}

// IndicatorParams selects the indicators to compute and their parameters.
type IndicatorParams struct {
	MovingAverages []analysis.MovingAverageConfig `json:"moving_averages"`
	EMAs           []analysis.EMAConfig           `json:"emas"`
	Bollinger      analysis.BollingerConfig       `json:"bollinger"`
	RSI            analysis.RSIConfig             `json:"rsi"`
	MACD           analysis.MACDConfig            `json:"macd"`
}

// IndicatorReport is the output of Indicators.
type IndicatorReport struct {
	CoinID         string                              `json:"coin_id"`
	Days           int                                 `json:"days"`
	Prices         []analysis.Point                    `json:"prices"`
	MovingAverages map[string]analysis.IndicatorSeries `json:"moving_averages"`
	EMAs           map[string]analysis.IndicatorSeries `json:"emas,omitempty"`
	Bollinger      analysis.BollingerBands             `json:"bollinger"`
	RSI            analysis.IndicatorSeries            `json:"rsi"`
	MACD           []analysis.MACDPoint                `json:"macd"`
}

// ReturnsParams controls the returns computation. A nil VolatilityWindow uses the configured
// window.
type ReturnsParams struct {
	VolatilityWindow *int `json:"volatility_window,omitempty"`
	Log              bool `json:"log"`
}

// ReturnsReport is the output of Returns. Stats is nil when the series is too short to describe.
type ReturnsReport struct {
	CoinID     string                   `json:"coin_id"`
	Days       int                      `json:"days"`
	Log        bool                     `json:"log"`
	Returns    analysis.ReturnSeries    `json:"returns"`
	Volatility analysis.IndicatorSeries `json:"volatility"`
	Stats      *analysis.ReturnStats    `json:"stats,omitempty"`
}

// RiskReport is the output of Risk.
type RiskReport struct {
	CoinID       string  `json:"coin_id"`
	Days         int     `json:"days"`
	RiskFreeRate float64 `json:"risk_free_rate"`
	analysis.RiskSummary
}

// ForecastParams overrides the configured model and horizon.
type ForecastParams struct {
	Horizon int    `json:"horizon"`
	Model   string `json:"model"`
}

// ForecastPoint is one dated step of a forecast.
type ForecastPoint struct {
	Time      time.Time `json:"time"`
	Predicted float64   `json:"predicted"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
}

// ForecastReport is the output of Forecast.
type ForecastReport struct {
	CoinID string `json:"coin_id"`
	Days   int    `json:"days"`
	analysis.ForecastResult
	Points        []ForecastPoint `json:"points"`
	LastPrice     float64         `json:"last_price"`
	EndPrice      float64         `json:"end_price"`
	ChangePercent float64         `json:"change_percent"`
}

// SummaryReport is the dashboard metric row. Risk fields are nil when the series has too few or
// constant returns for them to be defined.
type SummaryReport struct {
	CoinID               string                `json:"coin_id"`
	Name                 string                `json:"name,omitempty"`
	Days                 int                   `json:"days"`
	AsOf                 time.Time             `json:"as_of"`
	CurrentPrice         decimal.Decimal       `json:"current_price"`
	PeriodHigh           decimal.Decimal       `json:"period_high"`
	PeriodLow            decimal.Decimal       `json:"period_low"`
	TotalReturn          float64               `json:"total_return"`
	AverageVolume        decimal.Decimal       `json:"average_volume"`
	SharpeRatio          *float64              `json:"sharpe_ratio"`
	MaxDrawdown          float64               `json:"max_drawdown"`
	AnnualizedVolatility *float64              `json:"annualized_volatility"`
	CurrentRSI           *float64              `json:"current_rsi"`
	Stats                *analysis.ReturnStats `json:"stats,omitempty"`
}

// ComparePoint is one aligned observation of two coins.
type ComparePoint struct {
	Time            time.Time `json:"time"`
	BasePrice       float64   `json:"base_price"`
	OtherPrice      float64   `json:"other_price"`
	OtherNormalized float64   `json:"other_normalized"`
}

// CompareReport overlays a second coin rescaled to start at the first coin's initial price.
type CompareReport struct {
	BaseID  string         `json:"base_id"`
	OtherID string         `json:"other_id"`
	Days    int            `json:"days"`
	Points  []ComparePoint `json:"points"`
}

// NewAnalyticsService creates a new analytics service.
func NewAnalyticsService(source SeriesSource, cfg *config.Config, m *metrics.Metrics, logger *logrus.Logger) *AnalyticsService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AnalyticsService{
		source:   source,
		cfg:      cfg.Analytics,
		forecast: cfg.Forecast,
		metrics:  m,
		logger:   logger,
		tracer:   telemetry.NewBusinessTracer(),
	}
}

// WithTimeouts bounds every computation by the deadline tm assigns to its kind.
func (s *AnalyticsService) WithTimeouts(tm *TimeoutManager) *AnalyticsService {
	s.timeouts = tm
	return s
}

// DefaultIndicatorParams returns the configured indicator parameters.
func (s *AnalyticsService) DefaultIndicatorParams() IndicatorParams {
	mas := make([]analysis.MovingAverageConfig, len(s.cfg.MovingAverages))
	copy(mas, s.cfg.MovingAverages)
	return IndicatorParams{
		MovingAverages: mas,
		Bollinger:      s.cfg.Bollinger,
		RSI:            s.cfg.RSI,
		MACD:           s.cfg.MACD,
	}
}

// DefaultDays returns the configured lookback.
func (s *AnalyticsService) DefaultDays() int {
	return s.cfg.DefaultDays
}

// DefaultHorizon returns the configured forecast horizon.
func (s *AnalyticsService) DefaultHorizon() int {
	return s.forecast.DefaultHorizon
}

// RiskConfig returns the configured risk parameters.
func (s *AnalyticsService) RiskConfig() analysis.RiskConfig {
	return s.cfg.Risk
}

// Indicators computes the requested indicators over the last days days of coinID.
func (s *AnalyticsService) Indicators(ctx context.Context, coinID string, days int, params IndicatorParams) (*IndicatorReport, error) {
	var report *IndicatorReport
	err := s.run(ctx, KindIndicators, coinID, days, func(ctx context.Context, series analysis.PriceSeries) error {
		r := &IndicatorReport{
			CoinID:         coinID,
			Days:           days,
			Prices:         closePoints(series),
			MovingAverages: make(map[string]analysis.IndicatorSeries, len(params.MovingAverages)),
		}
		for _, ma := range params.MovingAverages {
			values, err := analysis.MovingAverage(series, ma)
			if err != nil {
				return fmt.Errorf("moving average %d: %w", ma.Window, err)
			}
			r.MovingAverages[fmt.Sprintf("ma_%d", ma.Window)] = values
		}
		if len(params.EMAs) > 0 {
			r.EMAs = make(map[string]analysis.IndicatorSeries, len(params.EMAs))
			for _, e := range params.EMAs {
				values, err := analysis.ExponentialMovingAverage(series, e)
				if err != nil {
					return fmt.Errorf("ema %d: %w", e.Window, err)
				}
				r.EMAs[fmt.Sprintf("ema_%d", e.Window)] = values
			}
		}

		var err error
		if r.Bollinger, err = analysis.Bollinger(series, params.Bollinger); err != nil {
			return fmt.Errorf("bollinger bands: %w", err)
		}
		if r.RSI, err = analysis.RSI(series, params.RSI); err != nil {
			return fmt.Errorf("rsi: %w", err)
		}
		if r.MACD, err = analysis.MACD(series, params.MACD); err != nil {
			return fmt.Errorf("macd: %w", err)
		}
		report = r
		return nil
	})
	return report, err
}

// Returns computes period returns, rolling volatility and distribution statistics.
func (s *AnalyticsService) Returns(ctx context.Context, coinID string, days int, params ReturnsParams) (*ReturnsReport, error) {
	window := s.cfg.VolatilityWindow
	if params.VolatilityWindow != nil {
		window = *params.VolatilityWindow
	}
	if window <= 0 {
		return nil, analysis.NewValidationErrorf("vol_window", "must be >= 1, got %d", window)
	}

	var report *ReturnsReport
	err := s.run(ctx, KindReturns, coinID, days, func(ctx context.Context, series analysis.PriceSeries) error {
		returns := analysis.DailyReturns(series)
		if params.Log {
			returns = analysis.LogReturns(series)
		}
		vol, err := analysis.RollingVolatility(returns, window)
		if err != nil {
			return fmt.Errorf("rolling volatility: %w", err)
		}

		r := &ReturnsReport{
			CoinID:     coinID,
			Days:       days,
			Log:        params.Log,
			Returns:    returns,
			Volatility: vol,
		}
		stats, err := analysis.DescribeReturns(returns)
		switch {
		case err == nil:
			r.Stats = &stats
		case !errors.Is(err, analysis.ErrInsufficientData):
			return fmt.Errorf("return statistics: %w", err)
		}
		report = r
		return nil
	})
	return report, err
}

// Risk computes the Sharpe ratio, maximum drawdown and annualized volatility. A nil riskFreeRate
// uses the configured rate.
func (s *AnalyticsService) Risk(ctx context.Context, coinID string, days int, riskFreeRate *float64) (*RiskReport, error) {
	cfg := s.cfg.Risk
	if riskFreeRate != nil {
		cfg.RiskFreeRate = *riskFreeRate
	}

	var report *RiskReport
	err := s.run(ctx, KindRisk, coinID, days, func(ctx context.Context, series analysis.PriceSeries) error {
		summary, err := analysis.Summarize(series, cfg)
		if err != nil {
			return err
		}
		report = &RiskReport{
			CoinID:       coinID,
			Days:         days,
			RiskFreeRate: cfg.RiskFreeRate,
			RiskSummary:  summary,
		}
		return nil
	})
	return report, err
}

// Forecast predicts the closing price params.Horizon days past the last observation.
func (s *AnalyticsService) Forecast(ctx context.Context, coinID string, days int, params ForecastParams) (*ForecastReport, error) {
	if params.Horizon == 0 {
		params.Horizon = s.forecast.DefaultHorizon
	}
	if params.Horizon < s.forecast.MinHorizon || params.Horizon > s.forecast.MaxHorizon {
		return nil, analysis.NewValidationErrorf("horizon", "must be between %d and %d, got %d",
			s.forecast.MinHorizon, s.forecast.MaxHorizon, params.Horizon)
	}
	fcfg := s.forecast.ForecastConfig
	if params.Model != "" {
		fcfg.Model = strings.ToLower(params.Model)
	}

	var report *ForecastReport
	err := s.run(ctx, KindForecast, coinID, days, func(ctx context.Context, series analysis.PriceSeries) error {
		result, err := analysis.Forecast(series.Closes(), params.Horizon, fcfg)
		if err != nil {
			return err
		}
		s.tracer.TraceForecast(trace.SpanFromContext(ctx), result.Model, result.Horizon, result.Confidence)
		last, _ := series.Last()

		points := make([]ForecastPoint, result.Horizon)
		for i := range points {
			points[i] = ForecastPoint{
				Time:      last.Time.AddDate(0, 0, i+1),
				Predicted: result.Predicted[i],
				Lower:     result.LowerBound[i],
				Upper:     result.UpperBound[i],
			}
		}
		end := result.Predicted[len(result.Predicted)-1]

		r := &ForecastReport{
			CoinID:         coinID,
			Days:           days,
			ForecastResult: result,
			Points:         points,
			LastPrice:      last.Close,
			EndPrice:       end,
		}
		if last.Close != 0 {
			r.ChangePercent = (end/last.Close - 1) * 100
		}
		report = r
		return nil
	})
	return report, err
}

// Summary builds the dashboard metric row for coinID.
func (s *AnalyticsService) Summary(ctx context.Context, coinID string, days int) (*SummaryReport, error) {
	var report *SummaryReport
	err := s.run(ctx, KindSummary, coinID, days, func(ctx context.Context, series analysis.PriceSeries) error {
		r, err := s.summarize(coinID, days, series)
		if err != nil {
			return err
		}
		report = r
		return nil
	})
	return report, err
}

func (s *AnalyticsService) summarize(coinID string, days int, series analysis.PriceSeries) (*SummaryReport, error) {
	last, ok := series.Last()
	if !ok {
		return nil, fmt.Errorf("%w: empty price series", analysis.ErrInsufficientData)
	}
	first := series.At(0)

	high, low := first.Close, first.Close
	var volumeSum float64
	for _, c := range series.Candles() {
		if c.Close > high {
			high = c.Close
		}
		if c.Close < low {
			low = c.Close
		}
		volumeSum += c.Volume
	}

	r := &SummaryReport{
		CoinID:        coinID,
		Days:          days,
		AsOf:          last.Time,
		CurrentPrice:  decimal.NewFromFloat(last.Close),
		PeriodHigh:    decimal.NewFromFloat(high),
		PeriodLow:     decimal.NewFromFloat(low),
		AverageVolume: decimal.NewFromFloat(volumeSum).Div(decimal.NewFromInt(int64(series.Len()))),
	}
	if first.Close != 0 {
		r.TotalReturn = last.Close/first.Close - 1
	}

	returns := analysis.DailyReturns(series)
	r.MaxDrawdown = analysis.MaxDrawdown(returns)
	if sharpe, err := analysis.SharpeRatio(returns, s.cfg.Risk); err == nil {
		r.SharpeRatio = &sharpe
	} else if !errors.Is(err, analysis.ErrInsufficientData) {
		return nil, fmt.Errorf("sharpe ratio: %w", err)
	}
	if vol, err := analysis.AnnualizedVolatility(returns, s.cfg.Risk); err == nil {
		r.AnnualizedVolatility = &vol
	} else if !errors.Is(err, analysis.ErrInsufficientData) {
		return nil, fmt.Errorf("annualized volatility: %w", err)
	}

	rsi, err := analysis.RSI(series, s.cfg.RSI)
	if err != nil {
		return nil, fmt.Errorf("rsi: %w", err)
	}
	if n := len(rsi); n > 0 {
		v := rsi[n-1].Value
		r.CurrentRSI = &v
	}

	if stats, err := analysis.DescribeReturns(returns); err == nil {
		r.Stats = &stats
	}
	return r, nil
}

// Compare aligns otherID with coinID on common timestamps and rescales it so both start at the
// base coin's first price.
func (s *AnalyticsService) Compare(ctx context.Context, coinID, otherID string, days int) (*CompareReport, error) {
	if strings.EqualFold(coinID, otherID) {
		return nil, analysis.NewValidationErrorf("other", "cannot compare %s with itself", coinID)
	}

	var report *CompareReport
	err := s.run(ctx, KindCompare, coinID, days, func(ctx context.Context, base analysis.PriceSeries) error {
		other, err := s.source.PriceSeries(ctx, otherID, days)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", otherID, err)
		}

		// Series are matched by UTC day because the latest upstream point carries the fetch time
		byDay := make(map[time.Time]float64, other.Len())
		for _, c := range other.Candles() {
			byDay[compareDay(c.Time)] = c.Close
		}

		var points []ComparePoint
		var baseStart, otherStart float64
		for _, c := range base.Candles() {
			day := compareDay(c.Time)
			o, ok := byDay[day]
			if !ok {
				continue
			}
			// the later observation of a day replaces the earlier one
			if n := len(points); n > 0 && compareDay(points[n-1].Time).Equal(day) {
				points = points[:n-1]
			}
			if len(points) == 0 {
				if o == 0 {
					continue
				}
				baseStart, otherStart = c.Close, o
			}
			points = append(points, ComparePoint{
				Time:            c.Time,
				BasePrice:       c.Close,
				OtherPrice:      o,
				OtherNormalized: o / otherStart * baseStart,
			})
		}
		if len(points) == 0 {
			return fmt.Errorf("%w: %s and %s share no timestamps", analysis.ErrInsufficientData, coinID, otherID)
		}

		report = &CompareReport{BaseID: coinID, OtherID: otherID, Days: days, Points: points}
		return nil
	})
	return report, err
}

// ValidateDays checks days against the allowed lookback options.
func (s *AnalyticsService) ValidateDays(days int) error {
	if !s.cfg.IsAllowedDays(days) {
		return analysis.NewValidationErrorf("days", "must be one of %v, got %d", s.cfg.AllowedDays, days)
	}
	return nil
}

// run loads the series and executes fn inside a span, recording metrics and logs.
func (s *AnalyticsService) run(ctx context.Context, kind, coinID string, days int, fn func(context.Context, analysis.PriceSeries) error) error {
	started := time.Now()
	ctx, span := s.tracer.TraceComputation(ctx, kind, coinID, days)
	defer span.End()

	err := s.ValidateDays(days)
	if err == nil {
		compute := func(ctx context.Context) error {
			series, err := s.source.PriceSeries(ctx, coinID, days)
			if err != nil {
				return err
			}
			return fn(ctx, series)
		}
		if s.timeouts != nil {
			err = s.timeouts.ExecuteWithTimeout(ctx, kind, compute)
		} else {
			err = compute(ctx)
		}
	}

	outcome := Outcome(err)
	s.metrics.ObserveComputation(kind, started, outcome)
	fields := logrus.Fields{
		"kind":        kind,
		"coin":        coinID,
		"days":        days,
		"outcome":     outcome,
		"duration_ms": time.Since(started).Milliseconds(),
	}
	s.tracer.RecordOutcome(span, outcome, err)
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Warn("Computation failed")
		return err
	}
	s.logger.WithFields(fields).Debug("Computation completed")
	return nil
}

// Outcome classifies err for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, analysis.ErrInvalidParameter):
		return metrics.OutcomeInvalidParameter
	case errors.Is(err, analysis.ErrInsufficientData):
		return metrics.OutcomeInsufficientData
	case errors.Is(err, analysis.ErrNonConvergence):
		return metrics.OutcomeNonConvergence
	default:
		return metrics.OutcomeError
	}
}

func closePoints(series analysis.PriceSeries) []analysis.Point {
	out := make([]analysis.Point, series.Len())
	for i, c := range series.Candles() {
		out[i] = analysis.Point{Time: c.Time, Value: c.Close}
	}
	return out
}

func compareDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
