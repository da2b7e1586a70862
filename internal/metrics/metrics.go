// Package metrics keeps per-run Prometheus counters. The CLI has no long-lived
// process to scrape, so the registry is exported as a node_exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors recorded during one run.
type Metrics struct {
	registry *prometheus.Registry

	Documents       *prometheus.CounterVec
	Attempts        *prometheus.CounterVec
	InvokeDuration  prometheus.Histogram
	RetryBudgetLeft prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Documents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reasoner_documents_total",
				Help: "Source documents processed, by ingestion status.",
			},
			[]string{"status"},
		),
		Attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reasoner_invoke_attempts_total",
				Help: "Reasoning endpoint attempts, by result class.",
			},
			[]string{"class"},
		),
		InvokeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reasoner_invoke_duration_seconds",
			Help:    "Wall time of the resilient invocation including backoff.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		RetryBudgetLeft: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reasoner_retry_budget_remaining",
			Help: "Retry budget left when the invocation finished.",
		}),
	}
	m.registry.MustRegister(m.Documents, m.Attempts, m.InvokeDuration, m.RetryBudgetLeft)
	return m
}

// Registry exposes the underlying registry (tests, custom exporters).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDocument counts one ingested document.
func (m *Metrics) ObserveDocument(status string) {
	if m == nil {
		return
	}
	m.Documents.WithLabelValues(status).Inc()
}

// ObserveAttempt counts one endpoint attempt.
func (m *Metrics) ObserveAttempt(class string) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(class).Inc()
}

// ObserveInvocation records the overall invocation outcome.
func (m *Metrics) ObserveInvocation(d time.Duration, remaining int) {
	if m == nil {
		return
	}
	m.InvokeDuration.Observe(d.Seconds())
	m.RetryBudgetLeft.Set(float64(remaining))
}

// WriteTextfile writes the registry in Prometheus text format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
