package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPMetrics holds the Prometheus metrics exposed on /metrics.
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimited     *prometheus.CounterVec
	approvals       prometheus.Counter
	oracleAccounts  prometheus.Gauge
	oracleReloads   prometheus.Counter

	registry *prometheus.Registry
}

// NewHTTPMetrics creates the metrics on a private registry.
func NewHTTPMetrics() *HTTPMetrics {
	registry := prometheus.NewRegistry()

	m := &HTTPMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookgate_http_requests_total",
				Help: "Total number of API requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hookgate_http_request_duration_seconds",
				Help:    "API request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),

		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookgate_http_rate_limited_total",
				Help: "Requests rejected by the per-caller rate limiter",
			},
			[]string{"route"},
		),

		approvals: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hookgate_hook_approvals_total",
				Help: "Hooks added to the whitelist since start",
			},
		),

		oracleAccounts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hookgate_oracle_accounts",
				Help: "Token accounts in the current balance snapshot",
			},
		),

		oracleReloads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hookgate_oracle_reloads_total",
				Help: "Balance snapshot loads",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.rateLimited,
		m.approvals,
		m.oracleAccounts,
		m.oracleReloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying registry.
func (m *HTTPMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *HTTPMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one completed API request.
func (m *HTTPMetrics) ObserveRequest(route, method string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// ObserveRateLimited counts a rejected request.
func (m *HTTPMetrics) ObserveRateLimited(route string) {
	m.rateLimited.WithLabelValues(route).Inc()
}

// ObserveApproval counts an approved hook.
func (m *HTTPMetrics) ObserveApproval() {
	m.approvals.Inc()
}

// ObserveOracleReload records a balance snapshot load.
func (m *HTTPMetrics) ObserveOracleReload(accounts int) {
	m.oracleReloads.Inc()
	m.oracleAccounts.Set(float64(accounts))
}
