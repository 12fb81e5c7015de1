package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ReturnStats describes the distribution of a return series.
type ReturnStats struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// minDescribeReturns is the smallest sample with a defined excess kurtosis.
const minDescribeReturns = 4

// DailyReturns computes (close[t] - close[t-1]) / close[t-1]. Points whose previous close is
// zero are skipped.
func DailyReturns(s PriceSeries) ReturnSeries {
	if s.Len() < 2 {
		return ReturnSeries{}
	}
	out := make(ReturnSeries, 0, s.Len()-1)
	for i := 1; i < s.Len(); i++ {
		prev := s.At(i - 1).Close
		if prev == 0 {
			continue
		}
		cur := s.At(i)
		out = append(out, Point{Time: cur.Time, Value: (cur.Close - prev) / prev})
	}
	return out
}

// LogReturns computes ln(close[t] / close[t-1]), skipping non-positive prices.
func LogReturns(s PriceSeries) ReturnSeries {
	if s.Len() < 2 {
		return ReturnSeries{}
	}
	out := make(ReturnSeries, 0, s.Len()-1)
	for i := 1; i < s.Len(); i++ {
		prev := s.At(i - 1).Close
		cur := s.At(i)
		if prev <= 0 || cur.Close <= 0 {
			continue
		}
		out = append(out, Point{Time: cur.Time, Value: math.Log(cur.Close / prev)})
	}
	return out
}

// RollingVolatility is the trailing sample standard deviation of returns over window points.
// The result has max(0, n-window+1) points.
func RollingVolatility(returns ReturnSeries, window int) (IndicatorSeries, error) {
	if err := requirePositive("window", window); err != nil {
		return nil, err
	}
	if len(returns) < window {
		return IndicatorSeries{}, nil
	}
	deviations := rollingStdDev(returns.Values(), window)
	out := make(IndicatorSeries, len(deviations))
	for i, d := range deviations {
		out[i] = Point{Time: returns[window-1+i].Time, Value: d}
	}
	return out, nil
}

// DescribeReturns summarizes the return distribution.
func DescribeReturns(returns ReturnSeries) (ReturnStats, error) {
	if len(returns) < minDescribeReturns {
		return ReturnStats{}, insufficientDataf("need at least %d returns, got %d", minDescribeReturns, len(returns))
	}
	values := returns.Values()
	mean, std := stat.MeanStdDev(values, nil)
	result := ReturnStats{
		Count:  len(values),
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(values),
		Max:    floats.Max(values),
	}
	if std > 0 {
		result.Skewness = stat.Skew(values, nil)
		result.Kurtosis = stat.ExKurtosis(values, nil)
	}
	return result, nil
}
