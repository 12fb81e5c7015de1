package coingecko

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/config"
)

const chartBody = `{
  "prices": [[1709337600000, 62000.5], [1709251200000, 61000.25], [1709424000000, 63000.0], [1709424000000, 63100.0]],
  "market_caps": [[1709251200000, 1.2e12]],
  "total_volumes": [[1709251200000, 3.5e10], [1709337600000, 3.6e10], [1709424000000, 3.7e10]]
}`

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveUpstream(endpoint string, status string, _ time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, endpoint+":"+status)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := config.CoinGeckoConfig{
		BaseURL:    srv.URL + "/",
		APIKey:     "demo-key",
		Timeout:    "2s",
		MaxRetries: 2,
	}
	opts = append([]Option{WithLogger(logger), WithInitialBackoff(time.Millisecond)}, opts...)
	return NewClient(cfg, opts...)
}

func TestClient_MarketChart(t *testing.T) {
	obs := &recordingObserver{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/bitcoin/market_chart", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		assert.Equal(t, "30", r.URL.Query().Get("days"))
		assert.Equal(t, "daily", r.URL.Query().Get("interval"))
		assert.Equal(t, "demo-key", r.Header.Get("x-cg-demo-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chartBody))
	}, WithObserver(obs))

	chart, err := client.MarketChart(context.Background(), "bitcoin", "usd", 30)
	require.NoError(t, err)
	require.Len(t, chart.Prices, 4)
	assert.Equal(t, 62000.5, chart.Prices[0].Value)
	assert.Equal(t, time.UnixMilli(1709337600000).UTC(), chart.Prices[0].Time)
	assert.Equal(t, []string{"market_chart:200"}, obs.calls)
	assert.NotContains(t, client.BaseURL(), "//coins")
}

func TestToCandles(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(chartBody))
	})
	chart, err := client.MarketChart(context.Background(), "bitcoin", "usd", 30)
	require.NoError(t, err)

	candles := ToCandles(chart)
	require.Len(t, candles, 3)
	assert.Equal(t, 61000.25, candles[0].Close)
	assert.Equal(t, 3.5e10, candles[0].Volume)
	assert.Equal(t, 62000.5, candles[1].Close)
	assert.Equal(t, 63100.0, candles[2].Close, "later duplicate wins")
	for i := 1; i < len(candles); i++ {
		assert.True(t, candles[i].Time.After(candles[i-1].Time))
	}
	assert.Nil(t, ToCandles(nil))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(chartBody))
	})

	_, err := client.MarketChart(context.Background(), "ethereum", "usd", 7)
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"status":{"error_code":429,"error_message":"rate limited"}}`))
	})

	_, err := client.MarketChart(context.Background(), "ethereum", "usd", 7)
	require.Error(t, err)
	assert.Equal(t, int32(3), attempts.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "rate limited", apiErr.Message)
}

func TestClient_NotFoundIsPermanent(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"coin not found"}`))
	})

	_, err := client.CoinInfo(context.Background(), "nocoin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_BadRequestIsPermanent(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad days"))
	})

	_, err := client.MarketChart(context.Background(), "bitcoin", "usd", -1)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad days", apiErr.Message)
	assert.Equal(t, int32(1), attempts.Load())
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestClient_CoinInfo(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/solana", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("tickers"))
		_, _ = w.Write([]byte(`{
			"id": "solana", "symbol": "sol", "name": "Solana",
			"market_data": {
				"current_price": {"usd": 142.5},
				"market_cap": {"usd": 6.3e10},
				"price_change_percentage_24h": -1.5,
				"price_change_percentage_7d": 4.25,
				"price_change_percentage_30d": 12,
				"market_cap_rank": 5,
				"last_updated": "2024-03-03T10:00:00.000Z"
			}
		}`))
	})

	info, err := client.CoinInfo(context.Background(), "solana")
	require.NoError(t, err)
	assert.Equal(t, "Solana", info.Name)
	assert.Equal(t, 142.5, info.MarketData.CurrentPrice["usd"])
	assert.Equal(t, 6.3e10, info.MarketData.MarketCap["usd"])
	assert.Equal(t, -1.5, info.MarketData.PriceChangePercentage24h)
	assert.Equal(t, 4.25, info.MarketData.PriceChangePercentage7d)
	assert.Equal(t, 12.0, info.MarketData.PriceChangePercentage30d)
	assert.Equal(t, 5, info.MarketData.MarketCapRank)
}

func TestClient_MalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"prices": [[1, 2, 3]]}`))
	})

	_, err := client.MarketChart(context.Background(), "bitcoin", "usd", 7)
	assert.ErrorContains(t, err, "expected 2 elements")
}

func TestClient_ContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.MarketChart(ctx, "bitcoin", "usd", 7)
	assert.Error(t, err)
}

func TestClient_Ping(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ping", r.URL.Path)
		_, _ = w.Write([]byte(`{"gecko_says":"(V3) To the Moon!"}`))
	})
	assert.NoError(t, client.Ping(context.Background()))
}
