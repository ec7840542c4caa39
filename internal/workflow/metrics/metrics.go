// Package metrics exposes Prometheus instrumentation for the workflow.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the workflow's Prometheus collectors.
type Metrics struct {
	SolicitudesCreated prometheus.Counter
	EventsApplied      *prometheus.CounterVec
	RuleViolations     *prometheus.CounterVec
	TransitionDuration prometheus.Histogram
}

// New creates and registers all workflow metrics with the default registry.
func New() *Metrics {
	return &Metrics{
		SolicitudesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "solicitudes_created_total",
			Help: "Total number of solicitudes created",
		}),
		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "solicitudes_process_events_applied_total",
			Help: "Process events applied, labeled by event name and resulting status",
		}, []string{"event", "status"}),
		RuleViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "solicitudes_rule_violations_total",
			Help: "Rejected process events, labeled by violation kind",
		}, []string{"kind"}),
		TransitionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "solicitudes_transition_duration_seconds",
			Help:    "End-to-end latency of a process-event application including the transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveTransition records one completed transition attempt.
func (m *Metrics) ObserveTransition(start time.Time) {
	if m == nil {
		return
	}
	m.TransitionDuration.Observe(time.Since(start).Seconds())
}

// RecordEventApplied counts a successful application.
func (m *Metrics) RecordEventApplied(event, status string) {
	if m == nil {
		return
	}
	m.EventsApplied.WithLabelValues(event, status).Inc()
}

// RecordRuleViolation counts a rejected application by violation kind.
func (m *Metrics) RecordRuleViolation(kind string) {
	if m == nil {
		return
	}
	m.RuleViolations.WithLabelValues(kind).Inc()
}

// RecordSolicitudCreated counts a created solicitud.
func (m *Metrics) RecordSolicitudCreated() {
	if m == nil {
		return
	}
	m.SolicitudesCreated.Inc()
}
