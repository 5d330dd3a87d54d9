package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/radiology-ops/internal/appointments"
	"github.com/wolfman30/radiology-ops/internal/modality"
	"github.com/wolfman30/radiology-ops/internal/observability/metrics"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

// Lister is the read side of the appointment store the allocator needs.
type Lister interface {
	List(ctx context.Context, q appointments.Query) ([]appointments.Appointment, error)
}

// Availability is the answer to "can this modality take one more on this day".
type Availability struct {
	Modality       modality.Tag `json:"modality"`
	Date           string       `json:"date"`
	Available      bool         `json:"available"`
	Remaining      int          `json:"remaining"`
	Limit          int          `json:"limit"`
	CandidateSlots []string     `json:"candidateSlots"`
	FreeText       bool         `json:"freeText"`
}

// Allows reports whether clock time t may be booked under a.
func (a Availability) Allows(t string) bool {
	if !a.Available {
		return false
	}
	if a.FreeText {
		return true
	}
	for _, slot := range a.CandidateSlots {
		if slot == t {
			return true
		}
	}
	return false
}

// Allocator combines settings with the scheduled snapshot for a day.
type Allocator struct {
	settings ConfigStore
	lister   Lister
	metrics  *metrics.DeskMetrics
	logger   *logging.Logger
}

// NewAllocator wires an allocator. metrics may be nil.
func NewAllocator(settings ConfigStore, lister Lister, m *metrics.DeskMetrics, logger *logging.Logger) *Allocator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Allocator{settings: settings, lister: lister, metrics: m, logger: logger}
}

// Check loads the scheduled appointments for tag on date and evaluates them.
func (a *Allocator) Check(ctx context.Context, tag modality.Tag, date string) (Availability, error) {
	start := time.Now()
	s, err := a.settings.Get(ctx, tag)
	if err != nil {
		return Availability{}, fmt.Errorf("quota: load settings: %w", err)
	}
	scheduled, err := a.lister.List(ctx, appointments.Query{
		Status:        appointments.StatusScheduled,
		ExamType:      tag,
		ScheduledDate: date,
	})
	if err != nil {
		return Availability{}, fmt.Errorf("quota: list scheduled: %w", err)
	}

	avail := Evaluate(s, scheduled)
	avail.Modality = tag
	avail.Date = date
	a.metrics.ObserveAllocatorCheck(string(tag), avail.Available, time.Since(start).Seconds())
	a.logger.Debug("quota checked", "modality", tag, "date", date, "remaining", avail.Remaining, "available", avail.Available)
	return avail, nil
}

// Evaluate is the pure core of Check: settings plus the day's scheduled
// snapshot in, availability out. Slot conflicts are exact string matches on
// the booked time.
func Evaluate(s Settings, scheduled []appointments.Appointment) Availability {
	count := len(scheduled)
	remaining := s.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	out := Availability{
		Limit:          s.Limit,
		Remaining:      remaining,
		Available:      count < s.Limit,
		FreeText:       s.FreeText(),
		CandidateSlots: []string{},
	}
	if !out.Available || out.FreeText {
		return out
	}

	booked := make(map[string]struct{}, count)
	for _, appt := range scheduled {
		booked[appt.Time] = struct{}{}
	}
	for _, slot := range s.Slots {
		if _, taken := booked[slot]; !taken {
			out.CandidateSlots = append(out.CandidateSlots, slot)
		}
	}
	return out
}
