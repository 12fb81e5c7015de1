// Package analysis is the computational core of the dashboard: indicators, return and risk
// statistics, and univariate forecasts over an in-memory price series. Every function is pure
// and safe to call concurrently.
package analysis

import (
	"time"
)

// Candle is one OHLCV record of a price series.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceSeries is an immutable, strictly time-ordered sequence of candles.
type PriceSeries struct {
	candles []Candle
}

// Point is a single value of a derived series.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// IndicatorSeries is a derived series sharing the source series' time index.
type IndicatorSeries []Point

// ReturnSeries holds period-over-period changes of the closing price.
type ReturnSeries []Point

// NewPriceSeries copies candles into a PriceSeries. Timestamps must be strictly increasing.
func NewPriceSeries(candles []Candle) (PriceSeries, error) {
	for i := 1; i < len(candles); i++ {
		if !candles[i].Time.After(candles[i-1].Time) {
			return PriceSeries{}, NewValidationErrorf("candles",
				"timestamps must be strictly increasing (index %d: %s after %s)",
				i, candles[i].Time.Format(time.RFC3339), candles[i-1].Time.Format(time.RFC3339))
		}
	}
	owned := make([]Candle, len(candles))
	copy(owned, candles)
	return PriceSeries{candles: owned}, nil
}

// NewCloseSeries builds a series from closing prices only, one point per day starting at start.
// Open, high and low are set to the close.
func NewCloseSeries(start time.Time, closes []float64) PriceSeries {
	candles := make([]Candle, len(closes))
	for i, c := range closes {
		candles[i] = Candle{
			Time:  start.AddDate(0, 0, i),
			Open:  c,
			High:  c,
			Low:   c,
			Close: c,
		}
	}
	return PriceSeries{candles: candles}
}

// Len returns the number of candles.
func (s PriceSeries) Len() int {
	return len(s.candles)
}

// At returns the candle at index i.
func (s PriceSeries) At(i int) Candle {
	return s.candles[i]
}

// Candles returns a copy of the underlying candles.
func (s PriceSeries) Candles() []Candle {
	out := make([]Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Closes returns the closing prices in time order.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Close
	}
	return out
}

// Volumes returns the traded volumes in time order.
func (s PriceSeries) Volumes() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Volume
	}
	return out
}

// Times returns the timestamps in order.
func (s PriceSeries) Times() []time.Time {
	out := make([]time.Time, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Time
	}
	return out
}

// Last returns the most recent candle.
func (s PriceSeries) Last() (Candle, bool) {
	if len(s.candles) == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Values extracts the numeric values of a derived series.
func (is IndicatorSeries) Values() []float64 {
	out := make([]float64, len(is))
	for i, p := range is {
		out[i] = p.Value
	}
	return out
}

// Values extracts the numeric values of a return series.
func (rs ReturnSeries) Values() []float64 {
	return IndicatorSeries(rs).Values()
}

// ResampleDaily groups candles by UTC calendar day.
func ResampleDaily(s PriceSeries) PriceSeries {
	if len(s.candles) == 0 {
		return PriceSeries{}
	}

	var out []Candle
	for _, c := range s.candles {
		day := c.Time.UTC().Truncate(24 * time.Hour)
		if n := len(out); n > 0 && out[n-1].Time.Equal(day) {
			cur := &out[n-1]
			if c.High > cur.High {
				cur.High = c.High
			}
			if c.Low < cur.Low {
				cur.Low = c.Low
			}
			cur.Close = c.Close
			cur.Volume += c.Volume
			continue
		}
		out = append(out, Candle{
			Time:   day,
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}
	return PriceSeries{candles: out}
}
