package handlers

import (
	"encoding/json"
	"io"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/analysis"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/cache"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/coingecko"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/config"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/services"
)

var testStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	router   *gin.Engine
	provider *services.MockMarketDataProvider
	notifier *services.MockNotifier
	market   *services.MarketDataService
}

func testConfig() *config.Config {
	fc := analysis.DefaultForecastConfig()
	return &config.Config{
		CoinGecko: config.CoinGeckoConfig{VsCurrency: "usd"},
		Cache:     config.CacheConfig{Backend: "memory", TTL: "10m", MaxEntries: 32},
		Analytics: config.AnalyticsConfig{
			DefaultDays:       30,
			AllowedDays:       []int{7, 30, 90},
			MovingAverages:    []analysis.MovingAverageConfig{{Window: 7}, {Window: 30}},
			Bollinger:         analysis.DefaultBollingerConfig(),
			RSI:               analysis.DefaultRSIConfig(),
			MACD:              analysis.DefaultMACDConfig(),
			Risk:              analysis.DefaultRiskConfig(),
			VolatilityWindow:  7,
			RSIOverbought:     70,
			RSIOversold:       30,
			AlertNearFraction: 0.95,
		},
		Forecast: config.ForecastConfig{
			ForecastConfig: fc,
			MinHorizon:     7,
			MaxHorizon:     90,
			DefaultHorizon: 14,
		},
		Coins: []config.CoinConfig{
			{ID: "bitcoin", Name: "Bitcoin", Symbol: "BTC"},
			{ID: "ethereum", Name: "Ethereum", Symbol: "ETH"},
		},
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newTestEnv wires real services over a mocked provider and registers every handler.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig()
	logger := quietLogger()
	provider := &services.MockMarketDataProvider{}
	notifier := &services.MockNotifier{}
	breaker := services.NewCircuitBreaker("coingecko", services.CircuitBreakerConfig{FailureThreshold: 5, Timeout: time.Minute},
		logger, services.WithFailurePredicate(services.IsUpstreamFailure))
	market := services.NewMarketDataService(provider, cache.NewMemoryPriceCache(32, time.Minute), breaker, nil, cfg, logger)
	analytics := services.NewAnalyticsService(market, cfg, nil, logger)
	alerts := services.NewAlertService(market, cfg.Analytics, notifier, logger)

	marketHandler := NewMarketHandler(market, cfg.Analytics)
	analysisHandler := NewAnalysisHandler(analytics, market.VsCurrency())
	alertHandler := NewAlertHandler(alerts)
	cacheHandler := NewCacheHandler(market)
	healthHandler := NewHealthHandler(nil, market, nil, "test")

	router := gin.New()
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/live", healthHandler.LivenessCheck)
	v1 := router.Group("/api/v1")
	v1.GET("/coins", marketHandler.ListCoins)
	v1.GET("/coins/:id/info", marketHandler.GetCoinInfo)
	v1.GET("/coins/:id/chart", marketHandler.GetChart)
	v1.GET("/coins/:id/indicators", analysisHandler.GetIndicators)
	v1.GET("/coins/:id/returns", analysisHandler.GetReturns)
	v1.GET("/coins/:id/risk", analysisHandler.GetRisk)
	v1.GET("/coins/:id/forecast", analysisHandler.GetForecast)
	v1.GET("/coins/:id/summary", analysisHandler.GetSummary)
	v1.GET("/coins/:id/compare/:other", analysisHandler.GetComparison)
	v1.GET("/coins/:id/export.csv", analysisHandler.ExportDataset)
	v1.GET("/coins/:id/summary.csv", analysisHandler.ExportSummary)
	v1.POST("/alerts/check", alertHandler.CheckAlert)
	v1.GET("/cache/stats", cacheHandler.GetCacheStats)
	v1.DELETE("/cache", cacheHandler.InvalidateCache)

	return &testEnv{router: router, provider: provider, notifier: notifier, market: market}
}

// wave returns n positive closes with some oscillation.
func wave(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 10*math.Sin(float64(i)/3) + float64(i)*0.5
	}
	return out
}

func chartFromCloses(closes []float64) *coingecko.MarketChart {
	chart := &coingecko.MarketChart{}
	for i, c := range closes {
		ts := testStart.AddDate(0, 0, i)
		chart.Prices = append(chart.Prices, coingecko.DataPoint{Time: ts, Value: c})
		chart.TotalVolumes = append(chart.TotalVolumes, coingecko.DataPoint{Time: ts, Value: 1000 + float64(i)})
	}
	return chart
}

func (e *testEnv) withChart(coinID string, days int, closes []float64) {
	e.provider.On("MarketChart", mock.Anything, coinID, "usd", days).Return(chartFromCloses(closes), nil)
}

func (e *testEnv) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// envelope decodes the success envelope into data.
func envelope(t *testing.T, w *httptest.ResponseRecorder, data interface{}) {
	t.Helper()
	var body struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	require.True(t, body.Success, w.Body.String())
	require.NoError(t, json.Unmarshal(body.Data, data))
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	require.False(t, resp.Success)
	return resp
}
