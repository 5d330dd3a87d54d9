package metrics

import "github.com/prometheus/client_golang/prometheus"

// DeskMetrics exposes counters/histograms for the radiology desk flows.
// A nil *DeskMetrics is valid and records nothing.
type DeskMetrics struct {
	intakeRecords   *prometheus.CounterVec
	intakeGroups    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	purged          prometheus.Counter
	allocatorChecks *prometheus.HistogramVec
}

func NewDeskMetrics(reg prometheus.Registerer) *DeskMetrics {
	m := &DeskMetrics{
		intakeRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "radiology",
			Subsystem: "intake",
			Name:      "records_total",
			Help:      "Raw feed records received from the bridge",
		}, []string{"status"}),
		intakeGroups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "radiology",
			Subsystem: "intake",
			Name:      "appointments_total",
			Help:      "Grouped appointments written by intake",
		}, []string{"modality"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "radiology",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Appointment state transitions by action and outcome",
		}, []string{"action", "outcome"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radiology",
			Subsystem: "archive",
			Name:      "purged_total",
			Help:      "Appointments deleted by bulk purge",
		}),
		allocatorChecks: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "radiology",
			Subsystem: "quota",
			Name:      "check_latency_seconds",
			Help:      "Latency of quota and slot availability checks",
			Buckets:   prometheus.DefBuckets,
		}, []string{"modality", "available"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.intakeRecords, m.intakeGroups, m.transitions, m.purged, m.allocatorChecks)
	return m
}

func (m *DeskMetrics) ObserveIntakeRecords(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.intakeRecords.WithLabelValues(status).Add(float64(n))
}

func (m *DeskMetrics) ObserveIntakeGroup(modality string) {
	if m == nil {
		return
	}
	m.intakeGroups.WithLabelValues(modality).Inc()
}

func (m *DeskMetrics) ObserveTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, outcome).Inc()
}

func (m *DeskMetrics) ObservePurged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(float64(n))
}

func (m *DeskMetrics) ObserveAllocatorCheck(modality string, available bool, seconds float64) {
	if m == nil {
		return
	}
	label := "false"
	if available {
		label = "true"
	}
	m.allocatorChecks.WithLabelValues(modality, label).Observe(seconds)
}
