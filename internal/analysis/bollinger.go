package analysis

// BollingerBands holds the three band series. All three share the same timestamps.
type BollingerBands struct {
	Upper  IndicatorSeries `json:"upper"`
	Middle IndicatorSeries `json:"middle"`
	Lower  IndicatorSeries `json:"lower"`
}

// Len returns the number of band points.
func (b BollingerBands) Len() int {
	return len(b.Middle)
}

// Bollinger computes volatility bands around the moving average of the close.
// upper/lower = middle ± K × rolling sample standard deviation over the same window.
func Bollinger(s PriceSeries, cfg BollingerConfig) (BollingerBands, error) {
	if err := cfg.Validate(); err != nil {
		return BollingerBands{}, err
	}

	middle, err := MovingAverage(s, MovingAverageConfig{Window: cfg.Window})
	if err != nil {
		return BollingerBands{}, err
	}
	if len(middle) == 0 {
		return BollingerBands{Upper: IndicatorSeries{}, Middle: IndicatorSeries{}, Lower: IndicatorSeries{}}, nil
	}

	deviations := rollingStdDev(s.Closes(), cfg.Window)

	bands := BollingerBands{
		Upper:  make(IndicatorSeries, len(middle)),
		Middle: middle,
		Lower:  make(IndicatorSeries, len(middle)),
	}
	for i, m := range middle {
		offset := cfg.K * deviations[i]
		bands.Upper[i] = Point{Time: m.Time, Value: m.Value + offset}
		bands.Lower[i] = Point{Time: m.Time, Value: m.Value - offset}
	}
	return bands, nil
}
