package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics receives router events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// RecordAttempt is called once per adapter attempt; outcome is "success"
	// or the failure kind.
	RecordAttempt(provider, outcome string, latency time.Duration)
	// RecordCompletion is called once per Complete call.
	RecordCompletion(provider, outcome string)
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) RecordAttempt(string, string, time.Duration) {}
func (NopMetrics) RecordCompletion(string, string)             {}

// PrometheusMetrics exports router events on its own registry
type PrometheusMetrics struct {
	registry        *prometheus.Registry
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	completions     *prometheus.CounterVec
}

// NewPrometheusMetrics creates and registers the router collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nimbus_router_attempts_total",
				Help: "Total number of provider attempts made by the completion router",
			},
			[]string{"provider", "outcome"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nimbus_router_attempt_duration_milliseconds",
				Help:    "Provider attempt duration in milliseconds",
				Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000},
			},
			[]string{"provider"},
		),
		completions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nimbus_router_completions_total",
				Help: "Total number of completion calls by serving provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
	}

	m.registry.MustRegister(
		m.attempts,
		m.attemptDuration,
		m.completions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *PrometheusMetrics) RecordAttempt(provider, outcome string, latency time.Duration) {
	m.attempts.WithLabelValues(provider, outcome).Inc()
	m.attemptDuration.WithLabelValues(provider).Observe(float64(latency) / float64(time.Millisecond))
}

func (m *PrometheusMetrics) RecordCompletion(provider, outcome string) {
	m.completions.WithLabelValues(provider, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
