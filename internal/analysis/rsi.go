package analysis

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
)

// RSI computes the Wilder-smoothed Relative Strength Index of the close.
// The first window points are undefined, so the result has max(0, n-window) points,
// each within [0, 100].
func RSI(s PriceSeries, cfg RSIConfig) (IndicatorSeries, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if s.Len() <= cfg.Window {
		return IndicatorSeries{}, nil
	}

	rsi := momentum.NewRsiWithPeriod[float64](cfg.Window)
	values := helper.ChanToSlice(rsi.Compute(helper.SliceToChan(s.Closes())))
	for i, v := range values {
		values[i] = boundRSI(v)
	}

	return alignTail(s, values), nil
}

// boundRSI maps the undefined ratios to their limits: no movement at all is 50 and no losses
// is 100.
func boundRSI(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 50
	case math.IsInf(v, 0):
		return 100
	}
	return math.Max(0, math.Min(100, v))
}
