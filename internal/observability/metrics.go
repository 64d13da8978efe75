package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the price engine.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	ProviderCalls   *prometheus.CounterVec
	Resolutions     *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	RequestDuration prometheus.Histogram
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricelens_requests_total",
			Help: "Price lookups by outcome.",
		},
		[]string{"outcome"},
	)
	providerCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricelens_provider_calls_total",
			Help: "Shopping provider calls by strategy and status.",
		},
		[]string{"strategy", "status"},
	)
	resolutions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricelens_resolution_total",
			Help: "Direct URL resolutions by the step that succeeded.",
		},
		[]string{"step"},
	)
	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricelens_cache_total",
			Help: "Result cache lookups by tier and result.",
		},
		[]string{"tier", "result"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricelens_request_duration_seconds",
			Help:    "End-to-end price lookup latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
	)

	registry.MustRegister(requests, providerCalls, resolutions, cacheLookups, duration)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		ProviderCalls:   providerCalls,
		Resolutions:     resolutions,
		CacheLookups:    cacheLookups,
		RequestDuration: duration,
	}
}

// IncRequest counts a finished lookup.
func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// IncProviderCall counts a shopping provider call.
func (m *Metrics) IncProviderCall(strategy, status string) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(strategy, status).Inc()
}

// IncResolution counts a URL resolution step outcome.
func (m *Metrics) IncResolution(step string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(step).Inc()
}

// IncCache counts a cache lookup.
func (m *Metrics) IncCache(tier, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(tier, result).Inc()
}

// ObserveDuration records a lookup duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}
