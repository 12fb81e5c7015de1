// Package coingecko is the HTTP client for the CoinGecko public API.
package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/analysis"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/config"
)

// ErrNotFound is returned when CoinGecko does not know the requested coin.
var ErrNotFound = errors.New("coin not found")

// APIError is a non-success response from CoinGecko.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coingecko error (%d): %s", e.StatusCode, e.Message)
}

// Observer receives one call per completed upstream request.
type Observer interface {
	ObserveUpstream(endpoint string, status string, started time.Time)
}

// Client represents the CoinGecko HTTP client.
type Client struct {
	HTTPClient *http.Client
	baseURL    string
	apiKey     string
	maxRetries uint
	// initialBackoff is the first retry delay; tests shrink it.
	initialBackoff time.Duration
	logger         *logrus.Logger
	observer       Observer
	tracer         trace.Tracer
}

// Option customizes a Client.
type Option func(*Client)

// WithObserver reports request outcomes to o.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithInitialBackoff sets the first retry delay.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) { c.initialBackoff = d }
}

// NewClient creates a new CoinGecko client instance.
//
// Parameters:
//
//	cfg: CoinGecko configuration.
//	opts: Optional settings.
//
// Returns:
//
//	*Client: Initialized client.
func NewClient(cfg config.CoinGeckoConfig, opts ...Option) *Client {
	timeout := config.Duration(cfg.Timeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	c := &Client{
		HTTPClient:     &http.Client{Timeout: timeout},
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		maxRetries:     uint(retries),
		initialBackoff: 500 * time.Millisecond,
		logger:         logrus.StandardLogger(),
		tracer:         otel.Tracer("coingecko"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base URL of the API.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// MarketChart fetches daily prices and volumes for the last days days.
func (c *Client) MarketChart(ctx context.Context, coinID, vsCurrency string, days int) (*MarketChart, error) {
	params := url.Values{}
	params.Set("vs_currency", vsCurrency)
	params.Set("days", strconv.Itoa(days))
	params.Set("interval", "daily")

	var chart MarketChart
	path := "/coins/" + url.PathEscape(coinID) + "/market_chart"
	if err := c.get(ctx, "market_chart", path, params, &chart); err != nil {
		return nil, fmt.Errorf("failed to fetch market chart for %s: %w", coinID, err)
	}
	return &chart, nil
}

// CoinInfo fetches current market data for a coin.
func (c *Client) CoinInfo(ctx context.Context, coinID string) (*CoinInfo, error) {
	params := url.Values{}
	params.Set("localization", "false")
	params.Set("tickers", "false")
	params.Set("community_data", "false")
	params.Set("developer_data", "false")

	var info CoinInfo
	if err := c.get(ctx, "coin", "/coins/"+url.PathEscape(coinID), params, &info); err != nil {
		return nil, fmt.Errorf("failed to fetch coin info for %s: %w", coinID, err)
	}
	return &info, nil
}

// Ping checks that the API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, "ping", "/ping", nil, nil)
}

// get performs a GET with retries on transport errors, 429 and 5xx responses.
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, result interface{}) error {
	ctx, span := c.tracer.Start(ctx, "coingecko."+endpoint, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("http.route", path))

	started := time.Now()
	status := "error"
	defer func() {
		if c.observer != nil {
			c.observer.ObserveUpstream(endpoint, status, started)
		}
	}()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.MaxInterval = 10 * c.initialBackoff

	attempt := 0
	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		b, code, err := c.do(ctx, path, params)
		if code > 0 {
			status = strconv.Itoa(code)
		}
		return b, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.maxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.WithFields(logrus.Fields{
				"endpoint": endpoint,
				"attempt":  attempt,
				"retry_in": next.String(),
				"error":    err,
			}).Warn("CoinGecko request failed, retrying")
		}),
	)
	span.SetAttributes(attribute.Int("coingecko.attempts", attempt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// do performs one request. Errors that must not be retried are wrapped with backoff.Permanent.
func (c *Client) do(ctx context.Context, path string, params url.Values) ([]byte, int, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "crypto-time-series-analysis/1.0")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, backoff.Permanent(fmt.Errorf("failed to make request: %w", err))
		}
		return nil, 0, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WithError(err).Debug("Error closing response body")
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 400 {
		return respBody, resp.StatusCode, nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	var errorResp ErrorResponse
	if json.Unmarshal(respBody, &errorResp) == nil && errorResp.message() != "" {
		apiErr.Message = errorResp.message()
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, resp.StatusCode, backoff.Permanent(fmt.Errorf("%w: %w", ErrNotFound, apiErr))
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return nil, resp.StatusCode, backoff.RetryAfter(secs)
		}
		return nil, resp.StatusCode, apiErr
	case resp.StatusCode >= 500:
		return nil, resp.StatusCode, apiErr
	default:
		return nil, resp.StatusCode, backoff.Permanent(apiErr)
	}
}

// ToCandles merges prices and volumes into daily candles sorted by time. Points sharing a
// timestamp are collapsed, the later one winning. Open, high and low equal the close because
// market_chart only carries one price per point.
func ToCandles(chart *MarketChart) []analysis.Candle {
	if chart == nil {
		return nil
	}
	volumes := make(map[int64]float64, len(chart.TotalVolumes))
	for _, v := range chart.TotalVolumes {
		volumes[v.Time.UnixMilli()] = v.Value
	}

	prices := make([]DataPoint, len(chart.Prices))
	copy(prices, chart.Prices)
	sort.SliceStable(prices, func(i, j int) bool { return prices[i].Time.Before(prices[j].Time) })

	out := make([]analysis.Candle, 0, len(prices))
	for _, p := range prices {
		c := analysis.Candle{
			Time:   p.Time,
			Open:   p.Value,
			High:   p.Value,
			Low:    p.Value,
			Close:  p.Value,
			Volume: volumes[p.Time.UnixMilli()],
		}
		if n := len(out); n > 0 && out[n-1].Time.Equal(p.Time) {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}
