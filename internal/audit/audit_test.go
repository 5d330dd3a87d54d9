package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewService(db)

	tests := []struct {
		name  string
		event Event
	}{
		{
			name: "accept",
			event: Event{
				Action:         ActionAccept,
				ActorID:        "u1",
				ActorName:      "Tech One",
				AppointmentIDs: []string{"20240501_12345_MRI"},
			},
		},
		{
			name: "purge without actor name",
			event: Event{
				Action:         ActionPurge,
				ActorID:        "sup",
				AppointmentIDs: []string{"a", "b"},
				Details:        Details(map[string]any{"deleted": 2}),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectExec("INSERT INTO audit_events").
				WithArgs(sqlmock.AnyArg(), string(tt.event.Action), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(1, 1))
			assert.NoError(t, service.Record(context.Background(), tt.event))
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Query(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewService(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "action", "actor_id", "actor_name", "appointment_ids", "details", "created_at",
	}).AddRow("e1", string(ActionUndo), "u1", nil, []byte(`{"a1","a2"}`), []byte(`{}`), now)

	mock.ExpectQuery(`SELECT (.+) FROM audit_events WHERE 1 = 1 AND action = \$1 AND \$2 = ANY\(appointment_ids\)`).
		WithArgs(string(ActionUndo), "a1").
		WillReturnRows(rows)

	events, err := service.Query(context.Background(), Filter{Action: ActionUndo, AppointmentID: "a1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ActionUndo, events[0].Action)
	assert.Equal(t, []string{"a1", "a2"}, events[0].AppointmentIDs)
	assert.Equal(t, "", events[0].ActorName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryRecorder(t *testing.T) {
	rec := &MemoryRecorder{}
	require.NoError(t, rec.Record(context.Background(), Event{Action: ActionBook}))
	events := rec.Events()
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].CreatedAt.IsZero())
}
