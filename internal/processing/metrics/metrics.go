package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the processing module. Tracks request
// volume by choice, status transitions, and recovery sweep outcomes.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	TransitionsTotal  *prometheus.CounterVec
	RecoverySweeps    prometheus.Counter
	RecoveryReDriven  prometheus.Counter
	SetStatusDuration prometheus.Histogram
}

// New creates a Metrics instance with all processing module metrics
// registered.
func New() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "admin_user_data_processing_requests_total",
			Help: "Total processing requests accepted, by choice",
		}, []string{"choice"}),
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "admin_user_data_processing_transitions_total",
			Help: "Total status transitions recorded, by source and target",
		}, []string{"from", "to"}),
		RecoverySweeps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "admin_recovery_sweeps_total",
			Help: "Total recovery sweeps over FAILED records",
		}),
		RecoveryReDriven: promauto.NewCounter(prometheus.CounterOpts{
			Name: "admin_recovery_redriven_total",
			Help: "Total FAILED records re-driven through the saga",
		}),
		SetStatusDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "admin_set_status_duration_seconds",
			Help:    "Duration of SetStatus operations (admin critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementRequest records an accepted processing request.
func (m *Metrics) IncrementRequest(choice string) {
	m.RequestsTotal.WithLabelValues(choice).Inc()
}

// RecordTransition records one status transition.
func (m *Metrics) RecordTransition(from, to string) {
	m.TransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordSweep records one recovery sweep and how many records it re-drove.
func (m *Metrics) RecordSweep(reDriven int) {
	m.RecoverySweeps.Inc()
	m.RecoveryReDriven.Add(float64(reDriven))
}

// ObserveSetStatus records the duration of a SetStatus operation. Call with
// time.Now() at the start of the operation.
func (m *Metrics) ObserveSetStatus(start time.Time) {
	m.SetStatusDuration.Observe(time.Since(start).Seconds())
}
