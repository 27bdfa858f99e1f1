package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServiceName is reported by /health and attached to every log line.
const ServiceName = "climate-query-service"

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request, labelled by route template.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation of the connection pool.
	HTTPRequestsInFlight prometheus.Gauge

	// Store query outcomes per named query (success, error).
	StoreQueriesTotal *prometheus.CounterVec

	// Store query latency. Watch for: p95 growth as the dataset grows.
	StoreQueryDuration *prometheus.HistogramVec

	// Store errors by category (timeout, connection, schema, canceled, unknown).
	StoreErrorsTotal *prometheus.CounterVec

	// Circuit breaker state per component: 0=closed, 1=open, 2=half_open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions. Watch for: flapping between open and half_open.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Requests still in flight when shutdown began.
	ShutdownInFlightRequests prometheus.Gauge
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	StoreQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeQueriesTotal",
			Help: "Total number of dataset queries by query name and status",
		},
		[]string{"query", "status"},
	)
	StoreQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storeQueryDurationSeconds",
			Help:    "Dataset query latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"query"},
	)
	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeErrorsTotal",
			Help: "Dataset query errors by query name and category",
		},
		[]string{"query", "category"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	ShutdownInFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdownInFlightRequests",
			Help: "Requests in flight when graceful shutdown started",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		StoreQueriesTotal, StoreQueryDuration, StoreErrorsTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		ShutdownInFlightRequests,
	)
}

// RecordStoreQuery records one dataset query outcome. category is ignored on success.
func RecordStoreQuery(query string, seconds float64, err error, category string) {
	StoreQueryDuration.WithLabelValues(query).Observe(seconds)
	if err != nil {
		StoreQueriesTotal.WithLabelValues(query, "error").Inc()
		StoreErrorsTotal.WithLabelValues(query, category).Inc()
		return
	}
	StoreQueriesTotal.WithLabelValues(query, "success").Inc()
}

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, toValue int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(toValue))
}

// RecordShutdownInFlight records the in-flight count observed at shutdown.
func RecordShutdownInFlight(n int64) {
	ShutdownInFlightRequests.Set(float64(n))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
