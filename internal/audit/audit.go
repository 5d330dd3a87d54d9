// Package audit keeps an immutable trail of who changed which appointments.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Action names a desk operation.
type Action string

const (
	ActionIngest       Action = "appointments.ingest"
	ActionManualCreate Action = "appointments.manual_create"
	ActionBook         Action = "appointments.book"
	ActionAccept       Action = "appointments.accept"
	ActionUndo         Action = "appointments.undo"
	ActionDelete       Action = "appointments.delete"
	ActionArchive      Action = "appointments.archive"
	ActionPurge        Action = "appointments.purge"
	ActionSettings     Action = "modality.settings_updated"
)

// Event is one audit record.
type Event struct {
	ID             string          `json:"id"`
	Action         Action          `json:"action"`
	ActorID        string          `json:"actorId,omitempty"`
	ActorName      string          `json:"actorName,omitempty"`
	AppointmentIDs []string        `json:"appointmentIds,omitempty"`
	Details        json.RawMessage `json:"details,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Recorder records audit events.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Details marshals v for Event.Details, swallowing errors into an empty object.
func Details(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// Service writes audit events to Postgres through database/sql.
type Service struct {
	db *sql.DB
}

// NewService creates a new audit service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Record inserts e, filling in id and timestamp when unset.
func (s *Service) Record(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if len(e.Details) == 0 {
		e.Details = json.RawMessage(`{}`)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, action, actor_id, actor_name, appointment_ids, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID,
		string(e.Action),
		nullString(e.ActorID),
		nullString(e.ActorName),
		pq.Array(e.AppointmentIDs),
		[]byte(e.Details),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: record event: %w", err)
	}
	return nil
}

// Filter narrows Query results.
type Filter struct {
	Action        Action
	ActorID       string
	AppointmentID string
	Since         time.Time
	Limit         int
}

// Query returns matching events newest first.
func (s *Service) Query(ctx context.Context, f Filter) ([]Event, error) {
	query := `
		SELECT id, action, actor_id, actor_name, appointment_ids, details, created_at
		FROM audit_events
		WHERE 1 = 1`
	var args []any
	argIdx := 1

	if f.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, string(f.Action))
		argIdx++
	}
	if f.ActorID != "" {
		query += fmt.Sprintf(" AND actor_id = $%d", argIdx)
		args = append(args, f.ActorID)
		argIdx++
	}
	if f.AppointmentID != "" {
		query += fmt.Sprintf(" AND $%d = ANY(appointment_ids)", argIdx)
		args = append(args, f.AppointmentID)
		argIdx++
	}
	if !f.Since.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, f.Since)
		argIdx++
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e               Event
			action          string
			actorID, actorN sql.NullString
			details         []byte
		)
		if err := rows.Scan(&e.ID, &action, &actorID, &actorN, pq.Array(&e.AppointmentIDs), &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		e.Action = Action(action)
		e.ActorID = actorID.String
		e.ActorName = actorN.String
		e.Details = details
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate events: %w", err)
	}
	return events, nil
}

// MemoryRecorder keeps events in memory; used by the memory backend and tests.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemoryRecorder) Record(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	return nil
}

// Events returns a copy of everything recorded so far.
func (m *MemoryRecorder) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
