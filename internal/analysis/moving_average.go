package analysis

import (
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

// MovingAverage computes the arithmetic mean of the close over the trailing window.
// The result has max(0, n-window+1) points.
func MovingAverage(s PriceSeries, cfg MovingAverageConfig) (IndicatorSeries, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := s.Len()
	if n < cfg.Window {
		return IndicatorSeries{}, nil
	}

	sma := trend.NewSmaWithPeriod[float64](cfg.Window)
	values := helper.ChanToSlice(sma.Compute(helper.SliceToChan(s.Closes())))

	return alignTail(s, values), nil
}

// ExponentialMovingAverage computes an EMA seeded with the SMA of the first window closes.
// The result has max(0, n-window+1) points.
func ExponentialMovingAverage(s PriceSeries, cfg EMAConfig) (IndicatorSeries, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if s.Len() < cfg.Window {
		return IndicatorSeries{}, nil
	}

	ema := trend.NewEmaWithPeriod[float64](cfg.Window)
	values := helper.ChanToSlice(ema.Compute(helper.SliceToChan(s.Closes())))

	return alignTail(s, values), nil
}

// alignTail pairs values with the last len(values) timestamps of s.
func alignTail(s PriceSeries, values []float64) IndicatorSeries {
	offset := s.Len() - len(values)
	out := make(IndicatorSeries, len(values))
	for i, v := range values {
		out[i] = Point{Time: s.At(offset + i).Time, Value: v}
	}
	return out
}
