// Package telemetry exposes remediation metrics over Prometheus.
//
// Metrics live in a local registry rather than the process-global default,
// so tests and embedded uses never collide.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the instrument set for one engine instance.
type Metrics struct {
	registry *prometheus.Registry

	attempts   *prometheus.CounterVec
	violations *prometheus.CounterVec
	scans      prometheus.Counter
	duration   prometheus.Histogram
}

// New creates a metric set backed by a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modguard",
			Name:      "remediation_attempts_total",
			Help:      "Remediation attempts by rule and outcome status.",
		}, []string{"rule", "status"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modguard",
			Name:      "violations_detected_total",
			Help:      "Violations detected by rule.",
		}, []string{"rule"}),
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "modguard",
			Name:      "scans_total",
			Help:      "Completed tree scans.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "modguard",
			Name:      "run_duration_seconds",
			Help:      "Duration of one full detect-and-repair run.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.attempts, m.violations, m.scans, m.duration)
	return m
}

// RecordAttempt counts one remediation attempt outcome.
func (m *Metrics) RecordAttempt(rule, status string) {
	m.attempts.WithLabelValues(rule, status).Inc()
}

// RecordViolation counts one detected violation.
func (m *Metrics) RecordViolation(rule string) {
	m.violations.WithLabelValues(rule).Inc()
}

// RecordScan counts one completed scan.
func (m *Metrics) RecordScan() {
	m.scans.Inc()
}

// ObserveRunDuration records the wall time of one run in seconds.
func (m *Metrics) ObserveRunDuration(seconds float64) {
	m.duration.Observe(seconds)
}

// Handler serves the metric set in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gather exposes the raw registry for tests.
func (m *Metrics) Gather() *prometheus.Registry {
	return m.registry
}
