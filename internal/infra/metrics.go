package infra

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "xrpqr"

// Metrics holds the Prometheus collectors. All methods are safe on a nil
// *Metrics so components can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	conversions   *prometheus.CounterVec
	rateFetches   *prometheus.CounterVec
	fetchLatency  prometheus.Histogram
	breakerState  *prometheus.GaugeVec
	generateFails *prometheus.CounterVec
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "conversions_total",
			Help:      "Completed conversions by target asset and rate provenance.",
		}, []string{"asset", "provenance"}),
		rateFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_fetches_total",
			Help:      "Price lookups by result (ok, error, cache_hit, skipped).",
		}, []string{"result"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "rate_fetch_duration_seconds",
			Help:      "Price service request latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "circuit_breaker_state",
			Help:      "0 closed, 1 open, 2 half-open.",
		}, []string{"name"}),
		generateFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "generate_failures_total",
			Help:      "Rejected generate actions by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(m.conversions, m.rateFetches, m.fetchLatency, m.breakerState, m.generateFails)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveConversion counts one finished conversion.
func (m *Metrics) ObserveConversion(asset, provenance string) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(asset, provenance).Inc()
}

// ObserveRateFetch counts a lookup; elapsed is recorded only for real requests.
func (m *Metrics) ObserveRateFetch(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.rateFetches.WithLabelValues(result).Inc()
	if elapsed > 0 {
		m.fetchLatency.Observe(elapsed.Seconds())
	}
}

// SetBreakerState matches CircuitBreakerConfig.OnStateChange.
func (m *Metrics) SetBreakerState(name string, s State) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(s))
}

// ObserveGenerateFailure counts a rejected generate action.
func (m *Metrics) ObserveGenerateFailure(reason string) {
	if m == nil {
		return
	}
	m.generateFails.WithLabelValues(reason).Inc()
}
