// Package metrics defines the Prometheus collectors exported by logfire.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values.
const (
	Fail    = "fail"
	Invalid = "invalid"
	Ok      = "ok"
	Skipped = "skipped"
)

// Metrics holds logfire's collectors.
type Metrics struct {
	EventsCreatedTotal   *prometheus.CounterVec
	QueriesTotal         *prometheus.CounterVec
	QueryDurationSeconds prometheus.Histogram
	FlushRunsTotal       *prometheus.CounterVec
	FlushRemovedTotal    *prometheus.CounterVec
	ScriptErrorsTotal    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsCreatedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "logfire_events_created_total",
			Help: "Cumulative number of events created, by event type.",
		}, []string{"event"}),
		QueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "logfire_queries_total",
			Help: "Cumulative number of queries, by status.",
		}, []string{"status"}),
		QueryDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "logfire_query_duration_seconds",
			Help:    "Duration of query executions.",
			Buckets: prometheus.DefBuckets,
		}),
		FlushRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "logfire_flush_runs_total",
			Help: "Cumulative number of TTL sweeper ticks, by result.",
		}, []string{"result"}),
		FlushRemovedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "logfire_flush_removed_total",
			Help: "Cumulative number of expired events removed, by event type.",
		}, []string{"event"}),
		ScriptErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "logfire_script_errors_total",
			Help: "Cumulative number of failed script executions, by operation.",
		}, []string{"op"}),
	}
}

// EventCreated counts one created event.
func (m *Metrics) EventCreated(event string) {
	if m == nil {
		return
	}
	m.EventsCreatedTotal.WithLabelValues(event).Inc()
}

// QueryDone records a finished query.
func (m *Metrics) QueryDone(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(status).Inc()
	m.QueryDurationSeconds.Observe(d.Seconds())
}

// FlushRun counts one sweeper tick.
func (m *Metrics) FlushRun(result string) {
	if m == nil {
		return
	}
	m.FlushRunsTotal.WithLabelValues(result).Inc()
}

// FlushRemoved adds n removed events of one type.
func (m *Metrics) FlushRemoved(event string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.FlushRemovedTotal.WithLabelValues(event).Add(float64(n))
}

// ScriptError counts one failed script run.
func (m *Metrics) ScriptError(op string) {
	if m == nil {
		return
	}
	m.ScriptErrorsTotal.WithLabelValues(op).Inc()
}
