// Package metrics exposes Prometheus metrics for mailing runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sheetmail/sheetmail/internal/pipeline"
)

// Metrics holds all Prometheus metrics for sheetmail
type Metrics struct {
	MessagesSentTotal   *prometheus.CounterVec
	MessagesFailedTotal *prometheus.CounterVec
	DuplicatesTotal     prometheus.Counter
	RunsTotal           *prometheus.CounterVec
	RunActive           prometheus.Gauge
	SendDurationSeconds prometheus.Histogram
	ReportRowsTotal     prometheus.Counter

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		MessagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetmail_messages_sent_total",
				Help: "Total number of successfully submitted messages",
			},
			[]string{"domain"},
		),
		MessagesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetmail_messages_failed_total",
				Help: "Total number of failed recipients",
			},
			[]string{"domain", "reason"},
		),
		DuplicatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sheetmail_duplicates_total",
				Help: "Total number of recipients skipped as duplicates",
			},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetmail_runs_total",
				Help: "Total number of mailing runs",
			},
			[]string{"status"},
		),
		RunActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sheetmail_run_active",
				Help: "Whether a mailing run is currently in progress",
			},
		),
		SendDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sheetmail_send_duration_seconds",
				Help:    "Duration of individual send attempts",
				Buckets: prometheus.DefBuckets,
			},
		),
		ReportRowsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sheetmail_report_rows_total",
				Help: "Total number of data rows written to reports",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.MessagesSentTotal,
		m.MessagesFailedTotal,
		m.DuplicatesTotal,
		m.RunsTotal,
		m.RunActive,
		m.SendDurationSeconds,
		m.ReportRowsTotal,
	)

	return m
}

// Registry returns the metrics registry for the HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveOutcome updates the per-recipient counters for one outcome.
// Safe to use as a pipeline progress hook alongside others.
func (m *Metrics) ObserveOutcome(out pipeline.Outcome, domain string) {
	switch out.Status {
	case pipeline.StatusOK:
		m.MessagesSentTotal.WithLabelValues(domain).Inc()
		m.SendDurationSeconds.Observe(out.Duration.Seconds())
	case pipeline.StatusFail:
		reason := "transport"
		if out.Error == pipeline.ErrInvalidEmail {
			reason = "invalid_email"
		} else {
			m.SendDurationSeconds.Observe(out.Duration.Seconds())
		}
		m.MessagesFailedTotal.WithLabelValues(domain, reason).Inc()
	case pipeline.StatusDuplicate:
		m.DuplicatesTotal.Inc()
	}
}
