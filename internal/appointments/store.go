package appointments

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no appointment has the requested id.
	ErrNotFound = errors.New("appointments: not found")

	// ErrConflict is returned when a compare-and-swap write keeps losing.
	ErrConflict = errors.New("appointments: concurrent update conflict")

	// ErrExists is returned when Create hits an existing id.
	ErrExists = errors.New("appointments: already exists")
)

// MutateFunc edits an appointment inside a transaction. Returning an error
// aborts the write.
type MutateFunc func(a *Appointment) error

// Store persists appointment records.
type Store interface {
	Create(ctx context.Context, a *Appointment) error
	// MergeMany upserts feed records by id with Merge semantics.
	MergeMany(ctx context.Context, patches []Appointment) error
	// Update is a last-write-wins replace of an existing record.
	Update(ctx context.Context, a *Appointment) error
	// Transact runs fn as a read-modify-write that no concurrent Transact on
	// the same id can interleave with.
	Transact(ctx context.Context, id string, fn MutateFunc) (*Appointment, error)
	Get(ctx context.Context, id string) (*Appointment, error)
	List(ctx context.Context, q Query) ([]Appointment, error)
	Delete(ctx context.Context, id string) error
	// DeleteMany removes one batch and returns the ids that actually went
	// away. Ids already missing are skipped.
	DeleteMany(ctx context.Context, ids []string) ([]string, error)
}

// ChangeNotifier is told after any successful write so live views can refresh.
type ChangeNotifier interface {
	AppointmentsChanged(ctx context.Context)
}

// NopNotifier ignores change notifications.
type NopNotifier struct{}

func (NopNotifier) AppointmentsChanged(context.Context) {}
