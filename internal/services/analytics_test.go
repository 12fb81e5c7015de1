package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/analysis"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/metrics"
)

func newTestAnalytics(source SeriesSource, m *metrics.Metrics) *AnalyticsService {
	return NewAnalyticsService(source, testConfig(), m, quietLogger())
}

func seriesOf(closes ...float64) analysis.PriceSeries {
	return analysis.NewCloseSeries(testStart, closes)
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, metrics.OutcomeOK},
		{"invalid", analysis.NewValidationErrorf("window", "bad"), metrics.OutcomeInvalidParameter},
		{"insufficient", analysis.ErrInsufficientData, metrics.OutcomeInsufficientData},
		{"non-convergence", analysis.ErrNonConvergence, metrics.OutcomeNonConvergence},
		{"other", errors.New("boom"), metrics.OutcomeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(tt.err))
		})
	}
}

func TestAnalyticsService_Indicators(t *testing.T) {
	source := &MockSeriesSource{}
	closes := wave(60)
	source.On("PriceSeries", mock.Anything, "bitcoin", 90).Return(seriesOf(closes...), nil)
	m := metrics.New()
	svc := newTestAnalytics(source, m)

	params := svc.DefaultIndicatorParams()
	params.EMAs = []analysis.EMAConfig{{Window: 12}}
	report, err := svc.Indicators(context.Background(), "bitcoin", 90, params)
	require.NoError(t, err)

	assert.Len(t, report.Prices, 60)
	assert.Len(t, report.MovingAverages["ma_7"], 54)
	assert.Len(t, report.MovingAverages["ma_30"], 31)
	assert.Contains(t, report.EMAs, "ema_12")
	assert.Equal(t, report.Bollinger.Middle, mustMA(t, seriesOf(closes...), 20))
	for _, p := range report.RSI {
		assert.GreaterOrEqual(t, p.Value, 0.0)
		assert.LessOrEqual(t, p.Value, 100.0)
	}
	assert.NotEmpty(t, report.MACD)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ComputationsTotal.WithLabelValues(KindIndicators, metrics.OutcomeOK)))
}

func mustMA(t *testing.T, s analysis.PriceSeries, window int) analysis.IndicatorSeries {
	t.Helper()
	ma, err := analysis.MovingAverage(s, analysis.MovingAverageConfig{Window: window})
	require.NoError(t, err)
	return ma
}

func TestAnalyticsService_IndicatorsInvalidWindow(t *testing.T) {
	source := &MockSeriesSource{}
	source.On("PriceSeries", mock.Anything, "bitcoin", 30).Return(seriesOf(wave(30)...), nil)
	m := metrics.New()
	svc := newTestAnalytics(source, m)

	params := svc.DefaultIndicatorParams()
	params.MovingAverages = []analysis.MovingAverageConfig{{Window: 0}}
	_, err := svc.Indicators(context.Background(), "bitcoin", 30, params)
	assert.ErrorIs(t, err, analysis.ErrInvalidParameter)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ComputationsTotal.WithLabelValues(KindIndicators, metrics.OutcomeInvalidParameter)))
}

func TestAnalyticsService_RejectsDisallowedDays(t *testing.T) {
	source := &MockSeriesSource{}
	svc := newTestAnalytics(source, nil)

	_, err := svc.Risk(context.Background(), "bitcoin", 14, nil)
	assert.ErrorIs(t, err, analysis.ErrInvalidParameter)
	source.AssertNotCalled(t, "PriceSeries", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyticsService_Returns(t *testing.T) {
	source := &MockSeriesSource{}
	source.On("PriceSeries", mock.Anything, "bitcoin", 7).Return(seriesOf(100, 110, 121), nil)
	svc := newTestAnalytics(source, nil)

	window := 2
	report, err := svc.Returns(context.Background(), "bitcoin", 7, ReturnsParams{VolatilityWindow: &window})
	require.NoError(t, err)
	require.Len(t, report.Returns, 2)
	assert.InDelta(t, 0.10, report.Returns[0].Value, 1e-12)
	assert.InDelta(t, 0.10, report.Returns[1].Value, 1e-12)
	require.Len(t, report.Volatility, 1)
	assert.InDelta(t, 0, report.Volatility[0].Value, 1e-12)
	assert.Nil(t, report.Stats, "two returns are too few to describe")
}

func TestAnalyticsService_ReturnsVolatilityWindow(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i%4)*3
	}
	source := &MockSeriesSource{}
	source.On("PriceSeries", mock.Anything, "bitcoin", 30).Return(seriesOf(closes...), nil)
	svc := newTestAnalytics(source, nil)

	report, err := svc.Returns(context.Background(), "bitcoin", 30, ReturnsParams{})
	require.NoError(t, err)
	assert.Len(t, report.Volatility, len(report.Returns)-testConfig().Analytics.VolatilityWindow+1,
		"nil window uses the configured one")

	for _, window := range []int{0, -2} {
		w := window
		_, err := svc.Returns(context.Background(), "bitcoin", 30, ReturnsParams{VolatilityWindow: &w})
		require.Error(t, err, "window %d", window)
		assert.ErrorIs(t, err, analysis.ErrInvalidParameter)
		var verr *analysis.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "vol_window", verr.Field)
	}
	source.AssertNumberOfCalls(t, "PriceSeries", 1)
}

func TestAnalyticsService_Risk(t *testing.T) {
	source := &MockSeriesSource{}
	source.On("PriceSeries", mock.Anything, "bitcoin", 7).Return(seriesOf(100, 50, 100, 90), nil)
	svc := newTestAnalytics(source, nil)

	rf := 0.02
	report, err := svc.Risk(context.Background(), "bitcoin", 7, &rf)
	require.NoError(t, err)
	assert.InDelta(t, -0.5, report.MaxDrawdown, 1e-12)
	assert.Equal(t, 0.02, report.RiskFreeRate)
	assert.Greater(t, report.AnnualizedVolatility, 0.0)
}

func TestAnalyticsService_RiskFlatSeries(t *testing.T) {
	source := &MockSeriesSource{}
	source.On("PriceSeries", mock.Anything, "bitcoin", 7).Return(seriesOf(100, 100, 100, 100), nil)
	svc := newTestAnalytics(source, nil)

	_, err := svc.Risk(context.Background(), "bitcoin", 7, nil)
	assert.ErrorIs(t, err, analysis.ErrInsufficientData)
}

func TestAnalyticsService_Forecast(t *testing.T) {
	source := &MockSeriesSource{}
	source.On("PriceSeries", mock.Anything, "bitcoin", 90).Return(seriesOf(wave(90)...), nil)
	svc := newTestAnalytics(source, nil)

	report, err := svc.Forecast(context.Background(), "bitcoin", 90, ForecastParams{Horizon: 10, Model: "AR1"})
	require.NoError(t, err)
	require.Len(t, report.Points, 10)
	assert.Equal(t, "AR(1)", report.Model)

	last := testStart.AddDate(0, 0, 89)
	for i, p := range report.Points {
		assert.True(t, p.Time.Equal(last.AddDate(0, 0, i+1)))
		assert.LessOrEqual(t, p.Lower, p.Predicted)
		assert.LessOrEqual(t, p.Predicted, p.Upper)
	}
	assert.Equal(t, report.Predicted[9], report.EndPrice)
	assert.InDelta(t, (report.EndPrice/report.LastPrice-1)*100, report.ChangePercent, 1e-9)
}

func TestAnalyticsService_ForecastHorizonBounds(t *testing.T) {
	svc := newTestAnalytics(&MockSeriesSource{}, nil)

	for _, h := range []int{-1, 1, 6, 91} {
		_, err := svc.Forecast(context.Background(), "bitcoin", 90, ForecastParams{Horizon: h})
		assert.ErrorIs(t, err, analysis.ErrInvalidParameter, "horizon %d", h)
	}
}

func TestAnalyticsService_ForecastInsufficientData(t *testing.T) {
	source := &MockSeriesSource{}
	source.On("PriceSeries", mock.Anything, "bitcoin", 7).Return(seriesOf(1, 2, 3, 4, 5, 6, 7), nil)
	svc := newTestAnalytics(source, nil)

	_, err := svc.Forecast(context.Background(), "bitcoin", 7, ForecastParams{})
	assert.ErrorIs(t, err, analysis.ErrInsufficientData)
}

func TestAnalyticsService_Summary(t *testing.T) {
	source := &MockSeriesSource{}
	closes := wave(40)
	series := seriesOf(closes...)
	source.On("PriceSeries", mock.Anything, "bitcoin", 30).Return(series, nil)
	svc := newTestAnalytics(source, nil)

	report, err := svc.Summary(context.Background(), "bitcoin", 30)
	require.NoError(t, err)

	high, low := closes[0], closes[0]
	for _, c := range closes {
		high = max(high, c)
		low = min(low, c)
	}
	assert.InDelta(t, closes[39], report.CurrentPrice.InexactFloat64(), 1e-9)
	assert.InDelta(t, high, report.PeriodHigh.InexactFloat64(), 1e-9)
	assert.InDelta(t, low, report.PeriodLow.InexactFloat64(), 1e-9)
	assert.InDelta(t, closes[39]/closes[0]-1, report.TotalReturn, 1e-12)
	assert.True(t, report.AverageVolume.IsZero())
	require.NotNil(t, report.SharpeRatio)
	require.NotNil(t, report.CurrentRSI)
	require.NotNil(t, report.Stats)
	assert.LessOrEqual(t, report.MaxDrawdown, 0.0)
}

func TestAnalyticsService_SummaryFlatSeries(t *testing.T) {
	source := &MockSeriesSource{}
	source.On("PriceSeries", mock.Anything, "bitcoin", 7).Return(seriesOf(100, 100, 100, 100), nil)
	svc := newTestAnalytics(source, nil)

	report, err := svc.Summary(context.Background(), "bitcoin", 7)
	require.NoError(t, err)
	assert.Nil(t, report.SharpeRatio)
	assert.Equal(t, 0.0, report.MaxDrawdown)
	assert.Equal(t, 0.0, report.TotalReturn)
	assert.Nil(t, report.CurrentRSI, "four points are too few for a 14-period RSI")
}

func TestAnalyticsService_Compare(t *testing.T) {
	source := &MockSeriesSource{}
	source.On("PriceSeries", mock.Anything, "bitcoin", 7).Return(seriesOf(100, 110, 120), nil)
	source.On("PriceSeries", mock.Anything, "ethereum", 7).Return(seriesOf(10, 5, 20), nil)
	svc := newTestAnalytics(source, nil)

	report, err := svc.Compare(context.Background(), "bitcoin", "ethereum", 7)
	require.NoError(t, err)
	require.Len(t, report.Points, 3)
	assert.InDelta(t, 100, report.Points[0].OtherNormalized, 1e-12)
	assert.InDelta(t, 50, report.Points[1].OtherNormalized, 1e-12)
	assert.InDelta(t, 200, report.Points[2].OtherNormalized, 1e-12)

	_, err = svc.Compare(context.Background(), "bitcoin", "BITCOIN", 7)
	assert.ErrorIs(t, err, analysis.ErrInvalidParameter)
}

func TestAnalyticsService_CompareAlignsByDay(t *testing.T) {
	candles := func(closes []float64, last time.Time) analysis.PriceSeries {
		cs := make([]analysis.Candle, len(closes))
		for i, c := range closes {
			cs[i] = analysis.Candle{Time: testStart.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
		}
		cs[len(cs)-1].Time = last
		series, err := analysis.NewPriceSeries(cs)
		require.NoError(t, err)
		return series
	}
	// the final point of each fetch is stamped with its own fetch time
	base := candles([]float64{100, 110, 120, 130}, testStart.AddDate(0, 0, 2).Add(14*time.Hour+30*time.Minute))
	other := candles([]float64{10, 12, 9, 11}, testStart.AddDate(0, 0, 2).Add(14*time.Hour+31*time.Minute+7*time.Second))

	source := &MockSeriesSource{}
	source.On("PriceSeries", mock.Anything, "bitcoin", 7).Return(base, nil)
	source.On("PriceSeries", mock.Anything, "ethereum", 7).Return(other, nil)
	svc := newTestAnalytics(source, nil)

	report, err := svc.Compare(context.Background(), "bitcoin", "ethereum", 7)
	require.NoError(t, err)
	require.Len(t, report.Points, 3, "one point per shared day")

	last := report.Points[2]
	assert.Equal(t, 130.0, last.BasePrice, "the intraday point replaces the midnight one")
	assert.Equal(t, 11.0, last.OtherPrice)
	assert.InDelta(t, 110, last.OtherNormalized, 1e-9)
	assert.InDelta(t, 120, report.Points[1].OtherNormalized, 1e-9)
}

func TestAnalyticsService_PropagatesSourceErrors(t *testing.T) {
	source := &MockSeriesSource{}
	source.On("PriceSeries", mock.Anything, "bitcoin", 30).Return(analysis.PriceSeries{}, ErrUpstreamUnavailable)
	m := metrics.New()
	svc := newTestAnalytics(source, m)

	_, err := svc.Summary(context.Background(), "bitcoin", 30)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ComputationsTotal.WithLabelValues(KindSummary, metrics.OutcomeError)))
}
