package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics records reconcile outcomes and ID generation. A nil *DispatchMetrics is a no-op.
type DispatchMetrics struct {
	reconcileDuration *prometheus.HistogramVec
	reconciles        *prometheus.CounterVec
	assignments       *prometheus.CounterVec
	rejections        *prometheus.CounterVec
	retries           prometheus.Counter
	idsIssued         *prometheus.CounterVec
}

// NewDispatchMetrics registers the dispatch metrics on the provided registerer
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	reconcileDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dispatch",
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of reconcile calls in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
	reconciles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "reconciles_total",
		Help:      "Reconcile calls by outcome.",
	}, []string{"outcome"})
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "assignment_changes_total",
		Help:      "Assignments created or cancelled by reconciles and operator transitions.",
	}, []string{"change"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "candidate_rejections_total",
		Help:      "Candidate riders that failed availability or conflict checks.",
	}, []string{"reason"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "reconcile_retries_total",
		Help:      "Reconcile attempts retried after a concurrent modification.",
	})
	idsIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "ids_issued_total",
		Help:      "Request and assignment IDs issued.",
	}, []string{"kind"})
	reg.MustRegister(reconcileDuration, reconciles, assignments, rejections, retries, idsIssued)
	return &DispatchMetrics{
		reconcileDuration: reconcileDuration,
		reconciles:        reconciles,
		assignments:       assignments,
		rejections:        rejections,
		retries:           retries,
		idsIssued:         idsIssued,
	}
}

// ObserveReconcile records one finished reconcile call
func (m *DispatchMetrics) ObserveReconcile(outcome string, duration time.Duration) {
	if m == nil || m.reconciles == nil {
		return
	}
	outcome = normalizeLabel(outcome)
	m.reconciles.WithLabelValues(outcome).Inc()
	m.reconcileDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// AddAssignmentChanges counts created and cancelled assignments
func (m *DispatchMetrics) AddAssignmentChanges(created, cancelled int) {
	if m == nil || m.assignments == nil {
		return
	}
	m.assignments.WithLabelValues("created").Add(float64(created))
	m.assignments.WithLabelValues("cancelled").Add(float64(cancelled))
}

// IncRejection counts a candidate that failed a check ("inactive", "availability" or "conflict")
func (m *DispatchMetrics) IncRejection(reason string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *DispatchMetrics) IncRetry() {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Inc()
}

// IncIDIssued counts a generated ID ("request" or "assignment")
func (m *DispatchMetrics) IncIDIssued(kind string) {
	if m == nil || m.idsIssued == nil {
		return
	}
	m.idsIssued.WithLabelValues(normalizeLabel(kind)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
