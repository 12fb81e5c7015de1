package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// RiskSummary holds the scalar risk statistics of a price series.
type RiskSummary struct {
	SharpeRatio          float64 `json:"sharpe_ratio"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
}

// SharpeRatio is mean(r - rf/periods) / stdev(r) * sqrt(periods).
// It is undefined for fewer than two returns or zero dispersion.
func SharpeRatio(returns ReturnSeries, cfg RiskConfig) (float64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	if len(returns) < 2 {
		return 0, insufficientDataf("sharpe ratio needs at least 2 returns, got %d", len(returns))
	}

	periods := float64(cfg.PeriodsPerYear)
	perPeriodRate := cfg.RiskFreeRate / periods
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r.Value - perPeriodRate
	}

	mean, std := stat.MeanStdDev(excess, nil)
	if std == 0 || !isFinite(std) {
		return 0, insufficientDataf("sharpe ratio undefined for zero volatility")
	}
	return mean / std * math.Sqrt(periods), nil
}

// MaxDrawdown is the largest peak-to-trough decline of the value series that starts at 1 and
// compounds every return. The result lies in [-1, 0].
func MaxDrawdown(returns ReturnSeries) float64 {
	value, peak, worst := 1.0, 1.0, 0.0
	for _, r := range returns {
		value *= 1 + r.Value
		if value > peak {
			peak = value
		}
		if dd := (value - peak) / peak; dd < worst {
			worst = dd
		}
	}
	if worst < -1 {
		return -1
	}
	return worst
}

// AnnualizedVolatility scales the sample standard deviation of returns by sqrt(periods).
func AnnualizedVolatility(returns ReturnSeries, cfg RiskConfig) (float64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	if len(returns) < 2 {
		return 0, insufficientDataf("volatility needs at least 2 returns, got %d", len(returns))
	}
	return sampleStdDev(returns.Values()) * math.Sqrt(float64(cfg.PeriodsPerYear)), nil
}

// Summarize computes the RiskSummary of the daily returns of s.
func Summarize(s PriceSeries, cfg RiskConfig) (RiskSummary, error) {
	returns := DailyReturns(s)
	return SummarizeReturns(returns, cfg)
}

// SummarizeReturns computes the RiskSummary of an existing return series.
func SummarizeReturns(returns ReturnSeries, cfg RiskConfig) (RiskSummary, error) {
	if err := cfg.Validate(); err != nil {
		return RiskSummary{}, err
	}
	if len(returns) < 2 {
		return RiskSummary{}, insufficientDataf("risk summary needs at least 2 returns, got %d", len(returns))
	}

	sharpe, err := SharpeRatio(returns, cfg)
	if err != nil {
		return RiskSummary{}, err
	}
	vol, err := AnnualizedVolatility(returns, cfg)
	if err != nil {
		return RiskSummary{}, err
	}

	return RiskSummary{
		SharpeRatio:          sharpe,
		MaxDrawdown:          MaxDrawdown(returns),
		AnnualizedVolatility: vol,
	}, nil
}
