package events

import "time"

// Event types written to the outbox.
const (
	TypeIngested = "appointments.ingested.v1"
	TypeCreated  = "appointments.created.v1"
	TypeBooked   = "appointments.booked.v1"
	TypeAccepted = "appointments.accepted.v1"
	TypeUndone   = "appointments.undone.v1"
	TypeRemoved  = "appointments.removed.v1"
	TypePurged   = "appointments.purged.v1"
)

// IngestedV1 is emitted after a feed batch is merged into the store.
type IngestedV1 struct {
	Count      int       `json:"count"`
	Records    int       `json:"records"`
	IDs        []string  `json:"ids"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TransitionV1 is emitted for every workflow change on one appointment.
type TransitionV1 struct {
	AppointmentID string    `json:"appointment_id"`
	PatientName   string    `json:"patient_name,omitempty"`
	ExamType      string    `json:"exam_type,omitempty"`
	Status        string    `json:"status,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	ActorName     string    `json:"actor_name,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// PurgedV1 is emitted after a bulk purge, including partial ones.
type PurgedV1 struct {
	Deleted    int       `json:"deleted"`
	Requested  int       `json:"requested"`
	ArchiveKey string    `json:"archive_key,omitempty"`
	Failed     bool      `json:"failed"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
