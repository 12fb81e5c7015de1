// Package metrics exposes Prometheus instruments for the analytics service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crypto_analytics"

// Computation outcomes used as the "outcome" label.
const (
	OutcomeOK               = "ok"
	OutcomeInvalidParameter = "invalid_parameter"
	OutcomeInsufficientData = "insufficient_data"
	OutcomeNonConvergence   = "non_convergence"
	OutcomeError            = "error"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	registry *prometheus.Registry

	// Computations by kind (indicators, risk, forecast, ...) and outcome
	ComputationsTotal  *prometheus.CounterVec
	ComputationSeconds *prometheus.HistogramVec

	// Price cache
	CacheHits   *prometheus.CounterVec // labels: backend
	CacheMisses *prometheus.CounterVec // labels: backend

	// Upstream data provider
	UpstreamRequests *prometheus.CounterVec // labels: endpoint, status
	UpstreamSeconds  prometheus.Histogram
	BreakerState     prometheus.Gauge // 0=closed, 1=open, 2=half-open

	// HTTP API
	HTTPRequests *prometheus.CounterVec // labels: method, route, status

	// Background cache warming
	WarmingRuns *prometheus.CounterVec // labels: outcome
}

// New creates and registers every metric on a dedicated registry, together with the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ComputationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "computations_total",
			Help:      "Analytics computations by kind and outcome",
		}, []string{"kind", "outcome"}),
		ComputationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "computation_duration_seconds",
			Help:      "Analytics computation latency",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"kind"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_cache_hits_total",
			Help:      "Price series served from cache",
		}, []string{"backend"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_cache_misses_total",
			Help:      "Price series lookups that went upstream",
		}, []string{"backend"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Requests to the market data provider",
		}, []string{"endpoint", "status"}),
		UpstreamSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Market data provider latency including retries",
			Buckets:   prometheus.DefBuckets,
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_circuit_breaker_state",
			Help:      "Circuit breaker state: 0=closed, 1=open, 2=half-open",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests",
		}, []string{"method", "route", "status"}),
		WarmingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_warming_runs_total",
			Help:      "Cache warming runs by outcome",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ComputationsTotal,
		m.ComputationSeconds,
		m.CacheHits,
		m.CacheMisses,
		m.UpstreamRequests,
		m.UpstreamSeconds,
		m.BreakerState,
		m.HTTPRequests,
		m.WarmingRuns,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveComputation records one computation that started at started.
func (m *Metrics) ObserveComputation(kind string, started time.Time, outcome string) {
	if m == nil {
		return
	}
	m.ComputationsTotal.WithLabelValues(kind, outcome).Inc()
	m.ComputationSeconds.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// ObserveCache records a cache lookup.
func (m *Metrics) ObserveCache(backend string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.WithLabelValues(backend).Inc()
		return
	}
	m.CacheMisses.WithLabelValues(backend).Inc()
}

// ObserveUpstream records a completed upstream call.
func (m *Metrics) ObserveUpstream(endpoint string, status string, started time.Time) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(endpoint, status).Inc()
	m.UpstreamSeconds.Observe(time.Since(started).Seconds())
}

// SetBreakerState publishes the circuit breaker state.
func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(state))
}

// ObserveWarming records the outcome of a cache warming run.
func (m *Metrics) ObserveWarming(outcome string) {
	if m == nil {
		return
	}
	m.WarmingRuns.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest records one served API request. route is the matched route template so
// path parameters do not inflate label cardinality.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
