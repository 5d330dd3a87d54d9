package appointments

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/radiology-ops/internal/modality"
)

// Status tracks where a visit is in the desk workflow.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusDone      Status = "done"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusDone:
		return true
	}
	return false
}

// Appointment is one scheduled or completed visit-exam group.
type Appointment struct {
	ID              string       `json:"id" dynamodbav:"id"`
	PatientName     string       `json:"patientName" dynamodbav:"patientName"`
	FileNumber      string       `json:"fileNumber" dynamodbav:"fileNumber"`
	PatientAge      string       `json:"patientAge,omitempty" dynamodbav:"patientAge,omitempty"`
	ExamType        modality.Tag `json:"examType" dynamodbav:"examType"`
	ExamList        []string     `json:"examList" dynamodbav:"examList"`
	DoctorName      string       `json:"doctorName,omitempty" dynamodbav:"doctorName,omitempty"`
	RefNo           string       `json:"refNo,omitempty" dynamodbav:"refNo,omitempty"`
	Date            string       `json:"date" dynamodbav:"date"`
	Time            string       `json:"time" dynamodbav:"time"`
	Status          Status       `json:"status" dynamodbav:"status"`
	ScheduledDate   string       `json:"scheduledDate,omitempty" dynamodbav:"scheduledDate,omitempty"`
	RoomNumber      string       `json:"roomNumber,omitempty" dynamodbav:"roomNumber,omitempty"`
	Preparation     string       `json:"preparation,omitempty" dynamodbav:"preparation,omitempty"`
	PerformedBy     string       `json:"performedBy,omitempty" dynamodbav:"performedBy,omitempty"`
	PerformedByName string       `json:"performedByName,omitempty" dynamodbav:"performedByName,omitempty"`
	CompletedAt     *time.Time   `json:"completedAt,omitempty" dynamodbav:"completedAt,omitempty"`
	CreatedBy       string       `json:"createdBy,omitempty" dynamodbav:"createdBy,omitempty"`
	CreatedByName   string       `json:"createdByName,omitempty" dynamodbav:"createdByName,omitempty"`
	CreatedAt       time.Time    `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt" dynamodbav:"updatedAt"`
	Version         int64        `json:"version" dynamodbav:"version"`
}

// Clone returns a deep copy so callers can mutate without touching store state.
func (a Appointment) Clone() Appointment {
	out := a
	if a.ExamList != nil {
		out.ExamList = append([]string(nil), a.ExamList...)
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// ClearCompletion drops the performer fields set by acceptance.
func (a *Appointment) ClearCompletion() {
	a.PerformedBy = ""
	a.PerformedByName = ""
	a.CompletedAt = nil
}

// ClearScheduling drops the booking metadata.
func (a *Appointment) ClearScheduling() {
	a.ScheduledDate = ""
	a.RoomNumber = ""
	a.Preparation = ""
}

// Merge applies a feed write on top of an existing record. Non-empty patch
// fields overwrite, empty ones keep the stored value. Workflow state (status,
// booking and completion fields) is never touched by a feed write, so a
// re-sent payload cannot reopen a finished exam. Time is the queue time only
// while pending; once booked it holds the slot and the feed leaves it alone.
func Merge(existing Appointment, patch Appointment) Appointment {
	out := existing.Clone()
	setIf := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	setIf(&out.PatientName, patch.PatientName)
	setIf(&out.FileNumber, patch.FileNumber)
	setIf(&out.PatientAge, patch.PatientAge)
	setIf(&out.DoctorName, patch.DoctorName)
	setIf(&out.RefNo, patch.RefNo)
	setIf(&out.Date, patch.Date)
	if existing.Status == StatusPending || existing.Status == "" {
		setIf(&out.Time, patch.Time)
	}
	if patch.ExamType != "" {
		out.ExamType = patch.ExamType
	}
	if len(patch.ExamList) > 0 {
		out.ExamList = append([]string(nil), patch.ExamList...)
	}
	if !patch.CreatedAt.IsZero() {
		out.CreatedAt = patch.CreatedAt
	}
	return out
}

// NewManualID returns a time-based unique key for hand-entered records.
func NewManualID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return "manual_" + strconv.FormatInt(now.UnixMilli(), 36) + "_" + suffix
}

// Query filters List results. Zero values match everything. ScheduledDate
// matches the booked date rather than the feed date.
type Query struct {
	Status        Status
	ExamType      modality.Tag
	Date          string
	ScheduledDate string
	From          string
	To            string
	Limit         int
}

// Matches reports whether a satisfies q.
func (q Query) Matches(a Appointment) bool {
	if q.Status != "" && a.Status != q.Status {
		return false
	}
	if q.ExamType != "" && a.ExamType != q.ExamType {
		return false
	}
	if q.Date != "" && a.Date != q.Date {
		return false
	}
	if q.ScheduledDate != "" && a.ScheduledDate != q.ScheduledDate {
		return false
	}
	if q.From != "" && a.Date < q.From {
		return false
	}
	if q.To != "" && a.Date > q.To {
		return false
	}
	return true
}

// SortQueue orders appointments for the desk list: latest queue time first,
// then most recently refreshed.
func SortQueue(list []Appointment) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Time != list[j].Time {
			return list[i].Time > list[j].Time
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}
