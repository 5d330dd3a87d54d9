// Package acceptance owns the appointment workflow: booking, the at-most-once
// accept, undo and removal.
package acceptance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/radiology-ops/internal/appointments"
	"github.com/wolfman30/radiology-ops/internal/audit"
	"github.com/wolfman30/radiology-ops/internal/events"
	"github.com/wolfman30/radiology-ops/internal/modality"
	"github.com/wolfman30/radiology-ops/internal/observability/metrics"
	"github.com/wolfman30/radiology-ops/internal/quota"
	"github.com/wolfman30/radiology-ops/internal/shifts"
	"github.com/wolfman30/radiology-ops/internal/staff"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

var acceptanceTracer = otel.Tracer("radiology.internal.acceptance")

var (
	ErrValidation           = errors.New("acceptance: validation failed")
	ErrAlreadyTaken         = errors.New("acceptance: already taken by a colleague")
	ErrForbidden            = errors.New("acceptance: not permitted")
	ErrConfirmationRequired = errors.New("acceptance: confirmation required")
	ErrQuotaFull            = errors.New("acceptance: modality is fully booked for that day")
	ErrSlotTaken            = errors.New("acceptance: slot is not available")
	ErrInvalidTransition    = errors.New("acceptance: invalid status transition")
)

// AvailabilityChecker answers quota questions for booking.
type AvailabilityChecker interface {
	Check(ctx context.Context, tag modality.Tag, date string) (quota.Availability, error)
}

// BookRequest carries the booking form.
type BookRequest struct {
	Date        string `json:"date" validate:"required,isodate"`
	Time        string `json:"time" validate:"required"`
	RoomNumber  string `json:"roomNumber" validate:"max=32"`
	Preparation string `json:"preparation" validate:"max=2000"`
}

// ManualRequest is a hand-entered appointment.
type ManualRequest struct {
	PatientName string       `json:"patientName" validate:"required,max=200"`
	FileNumber  string       `json:"fileNumber" validate:"max=64"`
	PatientAge  string       `json:"patientAge" validate:"max=16"`
	ExamType    modality.Tag `json:"examType"`
	ExamList    []string     `json:"examList" validate:"required,min=1,dive,required"`
	DoctorName  string       `json:"doctorName" validate:"max=200"`
	RefNo       string       `json:"refNo" validate:"max=64"`
	Date        string       `json:"date" validate:"required,isodate"`
	Time        string       `json:"time"`
}

// Coordinator applies workflow transitions to the store.
type Coordinator struct {
	store    appointments.Store
	quota    AvailabilityChecker
	audit    audit.Recorder
	emitter  events.Emitter
	notifier appointments.ChangeNotifier
	metrics  *metrics.DeskMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

func WithAudit(r audit.Recorder) Option { return func(c *Coordinator) { c.audit = r } }

func WithEmitter(e events.Emitter) Option { return func(c *Coordinator) { c.emitter = e } }

func WithMetrics(m *metrics.DeskMetrics) Option { return func(c *Coordinator) { c.metrics = m } }

func WithNotifier(n appointments.ChangeNotifier) Option {
	return func(c *Coordinator) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithClock overrides time.Now; tests only.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// NewCoordinator wires a coordinator. checker may be nil, which skips quota
// enforcement on booking.
func NewCoordinator(store appointments.Store, checker AvailabilityChecker, logger *logging.Logger, opts ...Option) *Coordinator {
	if store == nil {
		panic("acceptance: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Coordinator{
		store:    store,
		quota:    checker,
		notifier: appointments.NopNotifier{},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Book moves a pending appointment to scheduled. The quota and slot checks run
// before the write, so two desks booking the same slot at once can both
// succeed; the write itself never reopens a done appointment.
func (c *Coordinator) Book(ctx context.Context, caller staff.Caller, id string, req BookRequest) (*appointments.Appointment, error) {
	ctx, span := acceptanceTracer.Start(ctx, "acceptance.book", spanFor(id))
	defer span.End()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	date, slot, err := normalizeBooking(req)
	if err != nil {
		return nil, err
	}

	appt, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, c.fail("book", id, err)
	}
	if appt.Status == appointments.StatusDone {
		return nil, c.fail("book", id, fmt.Errorf("%w: appointment is already done", ErrInvalidTransition))
	}

	if c.quota != nil {
		avail, err := c.quota.Check(ctx, appt.ExamType, date)
		if err != nil {
			return nil, c.fail("book", id, fmt.Errorf("acceptance: check availability: %w", err))
		}
		// A rebook on the same day already holds one unit and its own slot.
		rebook := appt.Status == appointments.StatusScheduled && appt.ScheduledDate == date
		if !avail.Available && !rebook {
			return nil, c.fail("book", id, ErrQuotaFull)
		}
		if rebook {
			avail.Available = true
		}
		if !avail.Allows(slot) && !(rebook && appt.Time == slot) {
			return nil, c.fail("book", id, fmt.Errorf("%w: %s", ErrSlotTaken, slot))
		}
	}

	room := strings.TrimSpace(req.RoomNumber)
	prep := strings.TrimSpace(req.Preparation)
	// The write re-reads the row so an accept that landed after the quota
	// check is never overwritten.
	appt, err = c.store.Transact(ctx, id, func(a *appointments.Appointment) error {
		if a.Status == appointments.StatusDone {
			return fmt.Errorf("%w: appointment is already done", ErrInvalidTransition)
		}
		a.Status = appointments.StatusScheduled
		a.ScheduledDate = date
		a.Time = slot
		a.RoomNumber = room
		a.Preparation = prep
		return nil
	})
	if err != nil {
		return nil, c.fail("book", id, fmt.Errorf("acceptance: save booking: %w", err))
	}

	c.record(ctx, "book", audit.ActionBook, events.TypeBooked, caller, appt, map[string]string{"date": date, "time": slot, "room": appt.RoomNumber})
	return appt, nil
}

// Accept moves pending or scheduled to done inside a store transaction. When
// the record is already done the transaction aborts with ErrAlreadyTaken and
// nothing is written.
func (c *Coordinator) Accept(ctx context.Context, caller staff.Caller, id string) (*appointments.Appointment, error) {
	ctx, span := acceptanceTracer.Start(ctx, "acceptance.accept", spanFor(id))
	defer span.End()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	now := c.now()
	appt, err := c.store.Transact(ctx, id, func(a *appointments.Appointment) error {
		if a.Status == appointments.StatusDone {
			return ErrAlreadyTaken
		}
		a.Status = appointments.StatusDone
		a.PerformedBy = caller.ID
		a.PerformedByName = caller.Name
		a.CompletedAt = &now
		return nil
	})
	if errors.Is(err, ErrAlreadyTaken) {
		c.metrics.ObserveTransition("accept", "taken")
		c.logger.Info("accept lost to a colleague", "appointment_id", id, "caller", caller.ID)
		return nil, err
	}
	if err != nil {
		span.RecordError(err)
		return nil, c.fail("accept", id, err)
	}

	c.record(ctx, "accept", audit.ActionAccept, events.TypeAccepted, caller, appt, nil)
	return appt, nil
}

// Undo returns a done appointment to pending. Only the performer or a
// supervisor may undo; booking metadata is cleared along with completion.
func (c *Coordinator) Undo(ctx context.Context, caller staff.Caller, id string) (*appointments.Appointment, error) {
	ctx, span := acceptanceTracer.Start(ctx, "acceptance.undo", spanFor(id))
	defer span.End()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	var previous string
	appt, err := c.store.Transact(ctx, id, func(a *appointments.Appointment) error {
		if a.Status != appointments.StatusDone {
			return fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, a.Status)
		}
		if a.PerformedBy != caller.ID && !caller.IsSupervisor() {
			return ErrForbidden
		}
		previous = a.PerformedBy
		a.Status = appointments.StatusPending
		a.ClearCompletion()
		a.ClearScheduling()
		return nil
	})
	if err != nil {
		return nil, c.fail("undo", id, err)
	}

	c.record(ctx, "undo", audit.ActionUndo, events.TypeUndone, caller, appt, map[string]string{"previousPerformer": previous})
	return appt, nil
}

// Remove permanently deletes an appointment. Supervisors only, and the caller
// must confirm.
func (c *Coordinator) Remove(ctx context.Context, caller staff.Caller, id string, confirm bool) error {
	ctx, span := acceptanceTracer.Start(ctx, "acceptance.remove", spanFor(id))
	defer span.End()

	if err := requireCaller(caller); err != nil {
		return err
	}
	if !caller.IsSupervisor() {
		return c.fail("remove", id, ErrForbidden)
	}
	if !confirm {
		return c.fail("remove", id, ErrConfirmationRequired)
	}

	appt, err := c.store.Get(ctx, id)
	if err != nil {
		return c.fail("remove", id, err)
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return c.fail("remove", id, err)
	}

	c.record(ctx, "remove", audit.ActionDelete, events.TypeRemoved, caller, appt, map[string]string{"status": string(appt.Status)})
	return nil
}

// CreateManual stores a hand-entered pending appointment under a time-based id.
func (c *Coordinator) CreateManual(ctx context.Context, caller staff.Caller, req ManualRequest) (*appointments.Appointment, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	exams := make([]string, 0, len(req.ExamList))
	for _, e := range req.ExamList {
		if e = strings.TrimSpace(e); e != "" {
			exams = append(exams, e)
		}
	}
	if strings.TrimSpace(req.PatientName) == "" || len(exams) == 0 {
		return nil, fmt.Errorf("%w: patient name and at least one exam are required", ErrValidation)
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}

	tag := req.ExamType
	if tag != "" {
		parsed, ok := modality.Parse(string(tag))
		if !ok {
			return nil, fmt.Errorf("%w: unknown exam type %q", ErrValidation, tag)
		}
		tag = parsed
	} else {
		tag = modality.Classify(exams[0])
	}
	tm := "00:00"
	if strings.TrimSpace(req.Time) != "" {
		normalized, ok := shifts.NormalizeTime(req.Time)
		if !ok {
			return nil, fmt.Errorf("%w: unrecognized time %q", ErrValidation, req.Time)
		}
		tm = normalized
	}

	now := c.now()
	appt := &appointments.Appointment{
		ID:            appointments.NewManualID(now),
		PatientName:   strings.TrimSpace(req.PatientName),
		FileNumber:    strings.TrimSpace(req.FileNumber),
		PatientAge:    strings.TrimSpace(req.PatientAge),
		ExamType:      tag,
		ExamList:      exams,
		DoctorName:    strings.TrimSpace(req.DoctorName),
		RefNo:         strings.TrimSpace(req.RefNo),
		Date:          req.Date,
		Time:          tm,
		Status:        appointments.StatusPending,
		CreatedBy:     caller.ID,
		CreatedByName: caller.Name,
		CreatedAt:     now,
	}
	if err := c.store.Create(ctx, appt); err != nil {
		return nil, c.fail("create", appt.ID, fmt.Errorf("acceptance: create manual: %w", err))
	}

	c.record(ctx, "create", audit.ActionManualCreate, events.TypeCreated, caller, appt, nil)
	return appt, nil
}

func spanFor(id string) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String("appointment.id", id))
}

func (c *Coordinator) fail(action, id string, err error) error {
	c.metrics.ObserveTransition(action, outcomeFor(err))
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrForbidden), errors.Is(err, ErrConfirmationRequired),
		errors.Is(err, ErrQuotaFull), errors.Is(err, ErrSlotTaken), errors.Is(err, ErrInvalidTransition),
		errors.Is(err, appointments.ErrNotFound):
		c.logger.Info("appointment action rejected", "action", action, "appointment_id", id, "reason", err)
	default:
		c.logger.Error("appointment action failed", "action", action, "appointment_id", id, "error", err)
	}
	return err
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, appointments.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, appointments.ErrConflict):
		return "conflict"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfirmationRequired),
		errors.Is(err, ErrQuotaFull), errors.Is(err, ErrSlotTaken), errors.Is(err, ErrInvalidTransition):
		return "rejected"
	}
	return "error"
}

// record runs the post-write side effects. Failures here are logged and never
// undo the transition.
func (c *Coordinator) record(ctx context.Context, action string, auditAction audit.Action, eventType string, caller staff.Caller, appt *appointments.Appointment, details any) {
	c.metrics.ObserveTransition(action, "ok")
	c.notifier.AppointmentsChanged(ctx)

	if c.audit != nil {
		evt := audit.Event{
			Action:         auditAction,
			ActorID:        caller.ID,
			ActorName:      caller.Name,
			AppointmentIDs: []string{appt.ID},
		}
		if details != nil {
			evt.Details = audit.Details(details)
		}
		if err := c.audit.Record(ctx, evt); err != nil {
			c.logger.Warn("failed to audit appointment action", "action", action, "appointment_id", appt.ID, "error", err)
		}
	}
	if c.emitter != nil {
		payload := events.TransitionV1{
			AppointmentID: appt.ID,
			PatientName:   appt.PatientName,
			ExamType:      string(appt.ExamType),
			Status:        string(appt.Status),
			ActorID:       caller.ID,
			ActorName:     caller.Name,
			OccurredAt:    c.now(),
		}
		if err := c.emitter.Emit(ctx, eventType, payload); err != nil {
			c.logger.Warn("failed to emit appointment event", "type", eventType, "appointment_id", appt.ID, "error", err)
		}
	}
	c.logger.Info("appointment action applied", "action", action, "appointment_id", appt.ID, "status", appt.Status, "caller", caller.ID)
}

func requireCaller(caller staff.Caller) error {
	if strings.TrimSpace(caller.ID) == "" {
		return fmt.Errorf("%w: caller identity required", ErrForbidden)
	}
	return nil
}

func normalizeBooking(req BookRequest) (string, string, error) {
	date := strings.TrimSpace(req.Date)
	if date == "" || strings.TrimSpace(req.Time) == "" {
		return "", "", fmt.Errorf("%w: date and time are required", ErrValidation)
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", "", fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}
	slot, ok := shifts.NormalizeTime(req.Time)
	if !ok {
		return "", "", fmt.Errorf("%w: unrecognized time %q", ErrValidation, req.Time)
	}
	return date, slot, nil
}
