package reports

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/radiology-ops/internal/appointments"
	"github.com/wolfman30/radiology-ops/internal/modality"
)

func TestBucketKey(t *testing.T) {
	tests := []struct {
		date   string
		bucket Bucket
		want   string
		ok     bool
	}{
		{"2024-05-01", BucketDay, "2024-05-01", true},
		{"2024-05-01", BucketWeek, "2024-W18", true},
		{"2024-05-01", BucketMonth, "2024-05", true},
		{"2024-12-30", BucketWeek, "2025-W01", true},
		{"2024-05-01T23:10:00Z", BucketDay, "2024-05-01", true},
		{"01/05/2024", BucketDay, "", false},
		{"", BucketMonth, "", false},
	}
	for _, tt := range tests {
		got, ok := BucketKey(tt.date, tt.bucket)
		assert.Equal(t, tt.ok, ok, tt.date)
		assert.Equal(t, tt.want, got, tt.date)
	}
}

func done(id, staff string, tag modality.Tag, completed string) appointments.Appointment {
	at, _ := time.Parse(time.RFC3339, completed)
	return appointments.Appointment{
		ID: id, ExamType: tag, Status: appointments.StatusDone,
		PerformedByName: staff, PerformedBy: "id-" + staff, Date: "2024-04-01", CompletedAt: &at,
	}
}

func TestCountByBucketUsesCompletionDate(t *testing.T) {
	appts := []appointments.Appointment{
		done("1", "Amal", modality.MRI, "2024-05-02T08:00:00Z"),
		done("2", "Badr", modality.CT, "2024-04-30T08:00:00Z"),
		done("3", "Amal", modality.MRI, "2024-05-02T11:00:00Z"),
		{ID: "4", Date: "2024-05-03", ScheduledDate: "2024-05-06"},
		{ID: "5", Date: "bad"},
	}

	assert.Equal(t, []Group{
		{Key: "2024-04-30", Value: 1},
		{Key: "2024-05-02", Value: 2},
		{Key: "2024-05-06", Value: 1},
	}, CountByBucket(appts, BucketDay))

	assert.Equal(t, []Group{
		{Key: "2024-04", Value: 1},
		{Key: "2024-05", Value: 3},
	}, CountByBucket(appts, BucketMonth))
}

func TestCountByStaffAndModality(t *testing.T) {
	appts := []appointments.Appointment{
		done("1", "Amal", modality.MRI, "2024-05-02T08:00:00Z"),
		done("2", "Badr", modality.CT, "2024-05-02T08:00:00Z"),
		done("3", "Amal", modality.MRI, "2024-05-02T08:00:00Z"),
		{ID: "4", ExamType: modality.US, PerformedBy: "tech-9"},
		{ID: "5", ExamType: modality.US},
	}
	assert.Equal(t, []Group{{"Amal", 2}, {"Badr", 1}, {"tech-9", 1}}, CountByStaff(appts))
	assert.Equal(t, []Group{{"MRI", 2}, {"CT", 1}, {"US", 2}}, CountByModality(appts))
}

func TestSumByMaterialFoldsCase(t *testing.T) {
	usages := []MaterialUsage{
		{Material: "Contrast 50ml", Quantity: 2},
		{Material: "Syringe", Quantity: 1},
		{Material: "contrast 50ML ", Quantity: 1.5},
		{Material: " ", Quantity: 9},
	}
	assert.Equal(t, []Group{{"Contrast 50ml", 3.5}, {"Syringe", 1}}, SumByMaterial(usages))
}

func TestRankTieBreaks(t *testing.T) {
	groups := []Group{{"Zaid", 3}, {"Badr", 5}, {"Amal", 3}, {"Huda", 3}}

	assert.Equal(t, []Group{{"Badr", 5}, {"Zaid", 3}, {"Amal", 3}, {"Huda", 3}}, Rank(groups, TieBreakFirstSeen))
	assert.Equal(t, []Group{{"Badr", 5}, {"Amal", 3}, {"Huda", 3}, {"Zaid", 3}}, Rank(groups, TieBreakAlphabetical))
	assert.Equal(t, []Group{{"Badr", 5}, {"Zaid", 3}}, Top(groups, 2, TieBreakFirstSeen))
	assert.Len(t, Top(groups, 0, TieBreakFirstSeen), 4)
	assert.Equal(t, Group{"Zaid", 3}, groups[0], "input must not be reordered")
	assert.Equal(t, 14.0, Total(groups))
}

func TestParseHelpers(t *testing.T) {
	b, ok := ParseBucket("WEEK")
	assert.True(t, ok)
	assert.Equal(t, BucketWeek, b)
	_, ok = ParseBucket("year")
	assert.False(t, ok)

	tb, ok := ParseTieBreak("")
	assert.True(t, ok)
	assert.Equal(t, TieBreakFirstSeen, tb)
	_, ok = ParseTieBreak("random")
	assert.False(t, ok)
}

func TestInReportRange(t *testing.T) {
	appts := []appointments.Appointment{
		done("late", "Amal", modality.MRI, "2024-05-02T08:00:00Z"),
		done("early", "Badr", modality.CT, "2024-04-20T08:00:00Z"),
		{ID: "booked", ScheduledDate: "2024-05-03", Date: "2024-04-01"},
	}
	got := InReportRange(appts, "2024-05-01", "2024-05-31")
	require.Len(t, got, 2)
	assert.Equal(t, "late", got[0].ID)
	assert.Equal(t, "booked", got[1].ID)

	assert.Len(t, InReportRange(appts, "", ""), 3)
}
