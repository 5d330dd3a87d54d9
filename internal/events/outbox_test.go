package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := NewOutboxStore(mock)

	mock.ExpectExec("INSERT INTO outbox").WithArgs(pgxmock.AnyArg(), TypeIngested, pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := store.Emit(context.Background(), TypeIngested, IngestedV1{Count: 2}); err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "type", "payload", "created_at"}).AddRow(id, TypeIngested, []byte(`{"count":2}`), now)
	mock.ExpectQuery("SELECT id").WithArgs(int32(10)).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch pending failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	mock.ExpectExec("UPDATE outbox").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	if !ok {
		t.Fatal("expected mark delivered to report success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type stubSource struct {
	pending   []OutboxEntry
	delivered []uuid.UUID
}

func (s *stubSource) FetchPending(context.Context, int32) ([]OutboxEntry, error) {
	out := s.pending
	s.pending = nil
	return out, nil
}

func (s *stubSource) MarkDelivered(_ context.Context, id uuid.UUID) (bool, error) {
	s.delivered = append(s.delivered, id)
	return true, nil
}

type handlerFunc func(ctx context.Context, entry OutboxEntry) error

func (f handlerFunc) Handle(ctx context.Context, entry OutboxEntry) error { return f(ctx, entry) }

func TestDelivererSkipsFailedEntries(t *testing.T) {
	good, bad := uuid.New(), uuid.New()
	src := &stubSource{pending: []OutboxEntry{{ID: bad, Type: TypeAccepted}, {ID: good, Type: TypeBooked}}}
	handler := handlerFunc(func(_ context.Context, e OutboxEntry) error {
		if e.ID == bad {
			return errors.New("socket closed")
		}
		return nil
	})

	NewDeliverer(src, handler, nil).drain(context.Background())

	if len(src.delivered) != 1 || src.delivered[0] != good {
		t.Fatalf("expected only the good entry to be marked, got %v", src.delivered)
	}
}

func TestDirectEmitterDelivers(t *testing.T) {
	var got []string
	emitter := NewDirectEmitter(handlerFunc(func(_ context.Context, e OutboxEntry) error {
		got = append(got, e.Type)
		return errors.New("ignored")
	}), nil)

	if err := emitter.Emit(context.Background(), TypeUndone, TransitionV1{AppointmentID: "a1"}); err != nil {
		t.Fatalf("emit failed: %v", err)
	}
	if len(got) != 1 || got[0] != TypeUndone {
		t.Fatalf("unexpected deliveries: %v", got)
	}
}
