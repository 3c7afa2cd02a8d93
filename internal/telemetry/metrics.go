// Package telemetry exposes Prometheus metrics for refreshes and reports.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	projectFetches  *prometheus.CounterVec
	projectMRR      *prometheus.GaugeVec
	lastRefresh     prometheus.Gauge
	reports         *prometheus.CounterVec
	reportAttempts  prometheus.Histogram
}

// New registers the pulse collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Name:      "refreshes_total",
			Help:      "Refresh cycles by outcome (ok, partial, failed, skipped).",
		}, []string{"outcome"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pulse",
			Name:      "refresh_duration_seconds",
			Help:      "Wall time of a full refresh cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		projectFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Name:      "project_fetches_total",
			Help:      "Per-project dashboard fetches by outcome.",
		}, []string{"project", "outcome"}),
		projectMRR: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pulse",
			Name:      "project_mrr",
			Help:      "Latest MRR per project in the display currency.",
		}, []string{"project", "currency"}),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulse",
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time of the last completed refresh.",
		}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Name:      "reports_total",
			Help:      "Generated reports by outcome (approved, exhausted, failed).",
		}, []string{"outcome"}),
		reportAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pulse",
			Name:      "report_attempts",
			Help:      "Generator calls per report.",
			Buckets:   prometheus.LinearBuckets(1, 1, 5),
		}),
	}
	m.registry.MustRegister(
		m.refreshes, m.refreshDuration, m.projectFetches, m.projectMRR,
		m.lastRefresh, m.reports, m.reportAttempts,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRefresh records one finished cycle.
func (m *Metrics) ObserveRefresh(outcome string, took time.Duration, at time.Time) {
	m.refreshes.WithLabelValues(outcome).Inc()
	if outcome == "skipped" {
		return
	}
	m.refreshDuration.Observe(took.Seconds())
	m.lastRefresh.Set(float64(at.Unix()))
}

// ObserveProject records one project fetch. mrr is ignored on failure.
func (m *Metrics) ObserveProject(project string, ok bool, mrr float64, currency string) {
	if !ok {
		m.projectFetches.WithLabelValues(project, "error").Inc()
		return
	}
	m.projectFetches.WithLabelValues(project, "ok").Inc()
	m.projectMRR.WithLabelValues(project, currency).Set(mrr)
}

// ForgetProject drops the per-project series of a removed project.
func (m *Metrics) ForgetProject(project string) {
	m.projectFetches.DeletePartialMatch(prometheus.Labels{"project": project})
	m.projectMRR.DeletePartialMatch(prometheus.Labels{"project": project})
}

// ObserveReport records one report run.
func (m *Metrics) ObserveReport(outcome string, attempts int) {
	m.reports.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		m.reportAttempts.Observe(float64(attempts))
	}
}
