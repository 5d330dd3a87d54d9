package quota

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/radiology-ops/internal/appointments"
	"github.com/wolfman30/radiology-ops/internal/modality"
	"github.com/wolfman30/radiology-ops/internal/observability/metrics"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

func scheduledAt(times ...string) []appointments.Appointment {
	out := make([]appointments.Appointment, len(times))
	for i, tm := range times {
		out[i] = appointments.Appointment{Status: appointments.StatusScheduled, Time: tm}
	}
	return out
}

func TestEvaluate_QuotaBoundary(t *testing.T) {
	s := Settings{Limit: 3}

	below := Evaluate(s, scheduledAt("09:00", "10:00"))
	assert.True(t, below.Available)
	assert.Equal(t, 1, below.Remaining)
	assert.True(t, below.FreeText)
	assert.Empty(t, below.CandidateSlots)

	at := Evaluate(s, scheduledAt("09:00", "10:00", "11:00"))
	assert.False(t, at.Available)
	assert.Equal(t, 0, at.Remaining)

	over := Evaluate(s, scheduledAt("09:00", "10:00", "11:00", "12:00"))
	assert.False(t, over.Available)
	assert.Equal(t, 0, over.Remaining)
}

func TestEvaluate_SlotFiltering(t *testing.T) {
	s := Settings{Limit: 10, Slots: []string{"08:00", "09:00", "10:00", "11:00"}}
	got := Evaluate(s, scheduledAt("09:00", "11:00"))
	assert.True(t, got.Available)
	assert.Equal(t, []string{"08:00", "10:00"}, got.CandidateSlots)
	assert.True(t, got.Allows("08:00"))
	assert.False(t, got.Allows("09:00"))
}

func TestEvaluate_FullHasNoCandidates(t *testing.T) {
	s := Settings{Limit: 1, Slots: []string{"08:00", "09:00"}}
	got := Evaluate(s, scheduledAt("08:00"))
	assert.False(t, got.Available)
	assert.Empty(t, got.CandidateSlots)
	assert.False(t, got.Allows("09:00"))
}

func TestAllocator_CheckCountsOnlyScheduledForDay(t *testing.T) {
	ctx := context.Background()
	store := appointments.NewMemoryStore()
	require.NoError(t, store.MergeMany(ctx, []appointments.Appointment{
		{ID: "p1", ExamType: modality.MRI, ExamList: []string{"MRI BRAIN"}, Date: "2024-05-01", Time: "09:00"},
	}))
	for _, a := range []appointments.Appointment{
		{ID: "s1", ExamType: modality.MRI, Status: appointments.StatusScheduled, ScheduledDate: "2024-05-02", Time: "08:00", ExamList: []string{"x"}},
		{ID: "s2", ExamType: modality.MRI, Status: appointments.StatusScheduled, ScheduledDate: "2024-05-03", Time: "09:00", ExamList: []string{"x"}},
		{ID: "s3", ExamType: modality.CT, Status: appointments.StatusScheduled, ScheduledDate: "2024-05-02", Time: "09:00", ExamList: []string{"x"}},
	} {
		a := a
		require.NoError(t, store.Create(ctx, &a))
	}

	m := metrics.NewDeskMetrics(prometheus.NewRegistry())
	alloc := NewAllocator(NewMemoryConfigStore(nil), store, m, logging.Default())
	got, err := alloc.Check(ctx, modality.MRI, "2024-05-02")
	require.NoError(t, err)
	assert.Equal(t, 20, got.Limit)
	assert.Equal(t, 19, got.Remaining)
	assert.NotContains(t, got.CandidateSlots, "08:00")
	assert.Contains(t, got.CandidateSlots, "09:00")
	assert.Equal(t, modality.MRI, got.Modality)
}

func TestNormalize(t *testing.T) {
	got, err := Normalize(Settings{Limit: 5, Slots: []string{"08:00", "09:00", "08:00"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00", "09:00"}, got.Slots)

	_, err = Normalize(Settings{Limit: 0})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	_, err = Normalize(Settings{Limit: 2, Slots: []string{"8am"}})
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestDefaultSettings(t *testing.T) {
	d := DefaultSettings()
	assert.Len(t, d, len(modality.All()))
	assert.Len(t, d[modality.MRI].Slots, 8)
	assert.Equal(t, "15:00", d[modality.MRI].Slots[7])
	assert.True(t, d[modality.CT].FreeText())
	assert.Equal(t, 60, d[modality.XRay].Limit)
}

func TestRedisConfigStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisConfigStore(client, nil)
	ctx := context.Background()

	def, err := store.Get(ctx, modality.CT)
	require.NoError(t, err)
	assert.Equal(t, 30, def.Limit)

	require.NoError(t, store.Set(ctx, modality.CT, Settings{Limit: 12, Slots: []string{"10:00"}}))
	assert.True(t, mr.Exists("radiology:modality:CT"))

	got, err := store.Get(ctx, modality.CT)
	require.NoError(t, err)
	assert.Equal(t, Settings{Limit: 12, Slots: []string{"10:00"}}, got)

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, all[modality.CT].Limit)
	assert.Equal(t, 20, all[modality.MRI].Limit)
}

func TestMemoryConfigStoreIsolatesCallers(t *testing.T) {
	store := NewMemoryConfigStore(nil)
	ctx := context.Background()
	got, _ := store.Get(ctx, modality.MRI)
	got.Slots[0] = "23:00"
	again, _ := store.Get(ctx, modality.MRI)
	assert.Equal(t, "08:00", again.Slots[0])
}
