package analysis

import (
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

// MACDPoint is one MACD observation.
type MACDPoint struct {
	Time      time.Time `json:"time"`
	MACD      float64   `json:"macd"`
	Signal    float64   `json:"signal"`
	Histogram float64   `json:"histogram"`
}

// MACD computes the fast-minus-slow EMA line, its signal EMA and the histogram.
// Points start where the signal line is defined: max(0, n-slow-signal+2) of them.
func MACD(s PriceSeries, cfg MACDConfig) ([]MACDPoint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if s.Len() < cfg.Slow+cfg.Signal-1 {
		return []MACDPoint{}, nil
	}

	macd := trend.NewMacdWithPeriod[float64](cfg.Fast, cfg.Slow, cfg.Signal)
	lines, signals := macd.Compute(helper.SliceToChan(s.Closes()))

	// Both outputs share unbuffered pipelines and must be read together
	var line []float64
	done := make(chan struct{})
	go func() {
		defer close(done)
		line = helper.ChanToSlice(lines)
	}()
	signal := helper.ChanToSlice(signals)
	<-done

	n := min(len(line), len(signal))
	line, signal = line[len(line)-n:], signal[len(signal)-n:]

	start := s.Len() - n
	out := make([]MACDPoint, n)
	for i := range n {
		out[i] = MACDPoint{
			Time:      s.At(start + i).Time,
			MACD:      line[i],
			Signal:    signal[i],
			Histogram: line[i] - signal[i],
		}
	}
	return out, nil
}
