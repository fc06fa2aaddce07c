// Package metrics exposes Prometheus instrumentation for the dashboard
// backend: HTTP traffic, indicator computation, cache effectiveness,
// strategy runs, and WebSocket fan-out.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the dashboard backend. Each
// instance carries its own registry so tests can construct it freely.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec // labels: route, method, status
	HTTPDuration prometheus.Histogram

	IndicatorComputeDur prometheus.Histogram
	IndicatorsTotal     *prometheus.CounterVec // labels: kind

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	ExchangeRequests *prometheus.CounterVec // labels: endpoint
	OrdersPlaced     *prometheus.CounterVec // labels: side

	StrategyRuns   prometheus.Counter
	StrategyErrors prometheus.Counter

	WSClients prometheus.Gauge
	WSDrops   prometheus.Counter
}

// New registers and returns all metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedeck_http_requests_total",
			Help: "HTTP requests by route, method, and status",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradedeck_http_duration_seconds",
			Help:    "HTTP request handling duration",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}),
		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradedeck_indicator_compute_seconds",
			Help:    "Time to compute one indicator request over a series",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		IndicatorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedeck_indicators_total",
			Help: "Indicator computations by kind",
		}, []string{"kind"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradedeck_series_cache_hits_total",
			Help: "Series cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradedeck_series_cache_misses_total",
			Help: "Series cache misses",
		}),
		ExchangeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedeck_exchange_requests_total",
			Help: "Exchange API calls by endpoint",
		}, []string{"endpoint"}),
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedeck_orders_placed_total",
			Help: "Market orders placed by side",
		}, []string{"side"}),
		StrategyRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradedeck_strategy_runs_total",
			Help: "Strategy executions (manual and scheduled)",
		}),
		StrategyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradedeck_strategy_errors_total",
			Help: "Strategy executions that failed",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradedeck_ws_clients",
			Help: "Currently connected WebSocket clients",
		}),
		WSDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradedeck_ws_dropped_messages_total",
			Help: "Messages dropped due to slow WebSocket clients",
		}),
	}

	m.registry.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.IndicatorComputeDur,
		m.IndicatorsTotal,
		m.CacheHits,
		m.CacheMisses,
		m.ExchangeRequests,
		m.OrdersPlaced,
		m.StrategyRuns,
		m.StrategyErrors,
		m.WSClients,
		m.WSDrops,
	)

	return m
}

// Handler returns the scrape handler for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
