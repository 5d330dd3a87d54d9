// Package reports aggregates fetched appointments and material usages into
// ranked groups for the desk's report views. Nothing here touches storage.
package reports

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/radiology-ops/internal/appointments"
)

// Bucket is a calendar grouping unit.
type Bucket string

const (
	BucketDay   Bucket = "day"
	BucketWeek  Bucket = "week"
	BucketMonth Bucket = "month"
)

// ParseBucket accepts day, week or month in any case. Empty means day.
func ParseBucket(raw string) (Bucket, bool) {
	switch Bucket(strings.ToLower(strings.TrimSpace(raw))) {
	case "", BucketDay:
		return BucketDay, true
	case BucketWeek:
		return BucketWeek, true
	case BucketMonth:
		return BucketMonth, true
	}
	return "", false
}

// TieBreak orders groups that share a value.
type TieBreak string

const (
	// TieBreakFirstSeen keeps input order among equals.
	TieBreakFirstSeen TieBreak = "firstSeen"
	// TieBreakAlphabetical orders equals by key.
	TieBreakAlphabetical TieBreak = "alphabetical"
)

// ParseTieBreak defaults to TieBreakFirstSeen.
func ParseTieBreak(raw string) (TieBreak, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "firstseen", "first_seen":
		return TieBreakFirstSeen, true
	case "alphabetical", "alpha":
		return TieBreakAlphabetical, true
	}
	return "", false
}

// Group is one aggregated row.
type Group struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// MaterialUsage is one consumable drawn for an exam.
type MaterialUsage struct {
	Material      string  `json:"material" validate:"required,max=200"`
	Quantity      float64 `json:"quantity" validate:"gt=0"`
	StaffName     string  `json:"staffName" validate:"max=200"`
	Date          string  `json:"date" validate:"required,isodate"`
	AppointmentID string  `json:"appointmentId,omitempty" validate:"max=128"`
}

// BucketKey maps a YYYY-MM-DD date (or an RFC 3339 timestamp) to its bucket
// label: the date itself, an ISO week such as 2024-W18, or a month such as
// 2024-05.
func BucketKey(date string, b Bucket) (string, bool) {
	date = strings.TrimSpace(date)
	if len(date) < 10 {
		return "", false
	}
	t, err := time.Parse("2006-01-02", date[:10])
	if err != nil {
		return "", false
	}
	switch b {
	case BucketWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), true
	case BucketMonth:
		return t.Format("2006-01"), true
	default:
		return t.Format("2006-01-02"), true
	}
}

// ReportDate is the calendar date an appointment counts under: completion
// day when done, else the booked day, else the feed day.
func ReportDate(a appointments.Appointment) string {
	if a.CompletedAt != nil {
		return a.CompletedAt.UTC().Format("2006-01-02")
	}
	if a.ScheduledDate != "" {
		return a.ScheduledDate
	}
	return a.Date
}

// InReportRange keeps appointments whose ReportDate falls within [from, to].
// Empty bounds are open.
func InReportRange(appts []appointments.Appointment, from, to string) []appointments.Appointment {
	if from == "" && to == "" {
		return appts
	}
	out := make([]appointments.Appointment, 0, len(appts))
	for _, a := range appts {
		d := ReportDate(a)
		if (from == "" || d >= from) && (to == "" || d <= to) {
			out = append(out, a)
		}
	}
	return out
}

// CountByBucket counts appointments per calendar bucket, oldest first.
// Records without a usable date are skipped.
func CountByBucket(appts []appointments.Appointment, b Bucket) []Group {
	acc := newAccumulator()
	for _, a := range appts {
		if key, ok := BucketKey(ReportDate(a), b); ok {
			acc.add(key, 1)
		}
	}
	out := acc.groups()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// CountByStaff counts appointments per performer in first-seen order. The
// display name wins over the id; records nobody performed are skipped.
func CountByStaff(appts []appointments.Appointment) []Group {
	acc := newAccumulator()
	for _, a := range appts {
		name := strings.TrimSpace(a.PerformedByName)
		if name == "" {
			name = strings.TrimSpace(a.PerformedBy)
		}
		if name != "" {
			acc.add(name, 1)
		}
	}
	return acc.groups()
}

// CountByModality counts appointments per exam type in first-seen order.
func CountByModality(appts []appointments.Appointment) []Group {
	acc := newAccumulator()
	for _, a := range appts {
		acc.add(string(a.ExamType), 1)
	}
	return acc.groups()
}

// SumByMaterial totals quantities per material name in first-seen order.
// Names compare case-insensitively; the first spelling seen is kept.
func SumByMaterial(usages []MaterialUsage) []Group {
	acc := newAccumulator()
	spelling := make(map[string]string)
	for _, u := range usages {
		name := strings.TrimSpace(u.Material)
		if name == "" {
			continue
		}
		fold := strings.ToLower(name)
		if first, ok := spelling[fold]; ok {
			name = first
		} else {
			spelling[fold] = name
		}
		acc.add(name, u.Quantity)
	}
	return acc.groups()
}

// Rank returns a copy of groups ordered by value, highest first.
func Rank(groups []Group, tb TieBreak) []Group {
	out := append([]Group(nil), groups...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		if tb == TieBreakAlphabetical {
			return out[i].Key < out[j].Key
		}
		return false
	})
	return out
}

// Top returns the n highest ranked groups. n <= 0 returns all of them.
func Top(groups []Group, n int, tb TieBreak) []Group {
	ranked := Rank(groups, tb)
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Total sums every group's value.
func Total(groups []Group) float64 {
	var sum float64
	for _, g := range groups {
		sum += g.Value
	}
	return sum
}

type accumulator struct {
	order []string
	sums  map[string]float64
}

func newAccumulator() *accumulator {
	return &accumulator{sums: make(map[string]float64)}
}

func (a *accumulator) add(key string, v float64) {
	if _, ok := a.sums[key]; !ok {
		a.order = append(a.order, key)
	}
	a.sums[key] += v
}

func (a *accumulator) groups() []Group {
	out := make([]Group, 0, len(a.order))
	for _, k := range a.order {
		out = append(out, Group{Key: k, Value: a.sums[k]})
	}
	return out
}
