package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeskMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDeskMetrics(reg)
	m.ObserveIntakeRecords("accepted", 3)
	m.ObserveIntakeGroup("MRI")
	m.ObserveIntakeGroup("MRI")
	m.ObserveTransition("accept", "ok")
	m.ObservePurged(500)
	m.ObserveAllocatorCheck("CT", true, 0.01)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.intakeRecords.WithLabelValues("accepted")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.intakeGroups.WithLabelValues("MRI")))
	assert.Equal(t, float64(500), testutil.ToFloat64(m.purged))
}

func TestDeskMetricsHistogramLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDeskMetrics(reg)
	m.ObserveAllocatorCheck("MRI", false, 0.2)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "radiology_quota_check_latency_seconds" {
			found = f
		}
	}
	require.NotNil(t, found)
	h := found.GetMetric()[0]
	assert.Equal(t, uint64(1), h.GetHistogram().GetSampleCount())
	labels := map[string]string{}
	for _, lp := range h.GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	assert.Equal(t, "false", labels["available"])
}

func TestDeskMetricsNilSafe(t *testing.T) {
	var m *DeskMetrics
	m.ObserveIntakeRecords("accepted", 1)
	m.ObserveIntakeGroup("CT")
	m.ObserveTransition("book", "ok")
	m.ObservePurged(1)
	m.ObserveAllocatorCheck("US", true, 0.1)
}
