// Package metrics exposes Prometheus collectors for dispatches and webhook calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "creditflow"

// Metrics holds the collectors registered for one process.
type Metrics struct {
	registry        *prometheus.Registry
	dispatchTotal   *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Dispatch attempts by final state and reason.",
		}, []string{"state", "reason"}),
		webhookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_duration_seconds",
			Help:      "Latency of outbound webhook calls by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		m.dispatchTotal,
		m.webhookDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveDispatch counts a finished dispatch.
func (m *Metrics) ObserveDispatch(state, reason string) {
	if m == nil {
		return
	}

	m.dispatchTotal.WithLabelValues(state, reason).Inc()
}

// ObserveWebhook records the duration of a webhook call.
func (m *Metrics) ObserveWebhook(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.webhookDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
