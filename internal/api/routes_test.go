package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/analysis"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/coingecko"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/config"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/database"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/logging"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/metrics"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/services"
)

type stack struct {
	router        *gin.Engine
	upstreamCalls *atomic.Int32
	logs          *bytes.Buffer
	redis         *miniredis.Miniredis
}

// fakeCoinGecko serves market_chart with n daily closes starting on 2024-01-01.
func fakeCoinGecko(t *testing.T, n int, calls *atomic.Int32) *httptest.Server {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/market_chart") || !strings.HasPrefix(r.URL.Path, "/coins/bitcoin") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"coin not found"}`)
			return
		}
		var prices, volumes []string
		for i := 0; i < n; i++ {
			ms := start.AddDate(0, 0, i).UnixMilli()
			prices = append(prices, fmt.Sprintf("[%d,%g]", ms, 40000+float64(i%5)*250+float64(i)*10))
			volumes = append(volumes, fmt.Sprintf("[%d,%d]", ms, 1000000+i))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"prices":[%s],"market_caps":[],"total_volumes":[%s]}`,
			strings.Join(prices, ","), strings.Join(volumes, ","))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	calls := &atomic.Int32{}
	upstream := fakeCoinGecko(t, 40, calls)

	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{AllowedOrigins: []string{"http://localhost:8501"}},
		CoinGecko:   config.CoinGeckoConfig{BaseURL: upstream.URL, VsCurrency: "usd", Timeout: "2s"},
		Cache:       config.CacheConfig{Backend: "redis", TTL: "10m", MaxEntries: 16},
		Redis:       config.RedisConfig{Host: mr.Host(), Port: port},
		Analytics: config.AnalyticsConfig{
			DefaultDays:       30,
			AllowedDays:       []int{7, 30, 90},
			MovingAverages:    analysis.DefaultMovingAverageConfigs(),
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
			ForecastConfig: analysis.DefaultForecastConfig(),
			MinHorizon:     7,
			MaxHorizon:     90,
			DefaultHorizon: 30,
		},
		Coins: []config.CoinConfig{{ID: "bitcoin", Name: "Bitcoin", Symbol: "BTC"}},
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logs := &bytes.Buffer{}
	m := metrics.New()

	rc, err := database.NewRedisConnection(cfg.Redis, logger)
	require.NoError(t, err)
	t.Cleanup(rc.Close)

	client := coingecko.NewClient(cfg.CoinGecko, coingecko.WithObserver(m), coingecko.WithLogger(logger))
	breaker := services.NewCircuitBreaker("coingecko", services.CircuitBreakerConfig{FailureThreshold: 3, Timeout: time.Minute},
		logger, services.WithFailurePredicate(services.IsUpstreamFailure), services.WithStateChangeHook(services.BreakerMetricsHook(m)))
	market := services.NewMarketDataService(client, services.NewPriceCache(cfg.Cache, rc.Client, logger), breaker, m, cfg, logger)
	analytics := services.NewAnalyticsService(market, cfg, m, logger)
	alerts := services.NewAlertService(market, cfg.Analytics, nil, logger)

	router := gin.New()
	SetupRoutes(router, Dependencies{
		Config:    cfg,
		Market:    market,
		Analytics: analytics,
		Alerts:    alerts,
		Redis:     rc,
		Metrics:   m,
		Logger:    logging.NewStandardLoggerWithWriter(logs, "info", "test"),
	})

	return &stack{router: router, upstreamCalls: calls, logs: logs, redis: mr}
}

func (s *stack) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestSetupRoutes_Health(t *testing.T) {
	s := newStack(t)

	w := s.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
		Version  string            `json:"version"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "redis", resp.Services["cache"])
	assert.Equal(t, "healthy", resp.Services["redis"])
	assert.Equal(t, "disabled", resp.Services["telegram"])
	assert.NotEmpty(t, resp.Version)

	w = s.do(http.MethodHead, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRoutes_AnalyticsThroughRedisCache(t *testing.T) {
	s := newStack(t)

	for _, target := range []string{
		"/api/v1/coins/bitcoin/summary",
		"/api/v1/coins/bitcoin/indicators",
		"/api/v1/coins/bitcoin/risk",
		"/api/v1/coins/bitcoin/returns",
		"/api/v1/coins/bitcoin/forecast?model=ar1&horizon=7",
	} {
		w := s.do(http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, w.Code, "%s: %s", target, w.Body.String())
	}
	assert.Equal(t, int32(1), s.upstreamCalls.Load(), "later requests are served from Redis")
	assert.NotEmpty(t, s.redis.Keys())

	w := s.do(http.MethodGet, "/api/v1/cache/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"backend":"redis"`)

	w = s.do(http.MethodDelete, "/api/v1/cache", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, s.redis.Keys())
}

func TestSetupRoutes_RequestIDAndLogging(t *testing.T) {
	s := newStack(t)

	w := s.do(http.MethodGet, "/api/v1/coins", http.Header{"X-Request-Id": {"req-123"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	w = s.do(http.MethodGet, "/api/v1/coins", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	assert.Contains(t, s.logs.String(), `"request_id":"req-123"`)
	assert.Contains(t, s.logs.String(), `"msg":"API request"`)
}

func TestSetupRoutes_Metrics(t *testing.T) {
	s := newStack(t)

	w := s.do(http.MethodGet, "/api/v1/coins/bitcoin/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/api/v1/coins/dogecoin/summary", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `crypto_analytics_http_requests_total{method="GET",route="/api/v1/coins/:id/summary",status="200"} 1`)
	assert.Contains(t, body, `crypto_analytics_http_requests_total{method="GET",route="/api/v1/coins/:id/summary",status="404"} 1`)
	assert.Contains(t, body, `crypto_analytics_computations_total{kind="summary",outcome="ok"} 1`)
	assert.Contains(t, body, `crypto_analytics_price_cache_misses_total{backend="redis"} 1`)
	assert.Contains(t, body, "crypto_analytics_upstream_requests_total")
}

func TestSetupRoutes_CORS(t *testing.T) {
	s := newStack(t)

	w := s.do(http.MethodOptions, "/api/v1/coins", http.Header{
		"Origin":                        {"http://localhost:8501"},
		"Access-Control-Request-Method": {"GET"},
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:8501", w.Header().Get("Access-Control-Allow-Origin"))

	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Request-Id")

	w = s.do(http.MethodGet, "/api/v1/coins", http.Header{"Origin": {"http://localhost:8501"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Request-Id")

	w = s.do(http.MethodGet, "/api/v1/coins", http.Header{"Origin": {"https://evil.example"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSetupRoutes_UnknownRoute(t *testing.T) {
	s := newStack(t)

	w := s.do(http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
