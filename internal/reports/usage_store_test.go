package reports

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresUsageStore_Record(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO material_usages`).
		WithArgs(pgxmock.AnyArg(), "contrast", 2.5, "Noor", "2024-05-01", "a1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewPostgresUsageStore(mock)
	id, err := store.Record(context.Background(), MaterialUsage{
		Material: "contrast", Quantity: 2.5, StaffName: "Noor", Date: "2024-05-01", AppointmentID: "a1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUsageStore_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"material", "quantity", "staff_name", "usage_date", "appointment_id"}).
		AddRow("contrast", 2.5, "Noor", "2024-05-01", "a1").
		AddRow("film", 1.0, "Sami", "2024-05-02", "")
	mock.ExpectQuery(`SELECT material, quantity, staff_name, usage_date, appointment_id\s+FROM material_usages`).
		WithArgs("2024-05-01", "").
		WillReturnRows(rows)

	got, err := NewPostgresUsageStore(mock).List(context.Background(), "2024-05-01", "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "contrast", got[0].Material)
	assert.Equal(t, "2024-05-02", got[1].Date)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUsageStore_ListError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM material_usages`).WillReturnError(errors.New("boom"))

	_, err = NewPostgresUsageStore(mock).List(context.Background(), "", "")
	assert.ErrorContains(t, err, "reports: list usages")
}

func TestMemoryUsageStore_ListBounds(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryUsageStore()
	for _, d := range []string{"2024-04-30", "2024-05-01", "2024-05-03"} {
		_, err := store.Record(ctx, MaterialUsage{Material: "film", Quantity: 1, Date: d})
		require.NoError(t, err)
	}

	got, err := store.List(ctx, "2024-05-01", "2024-05-02")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-05-01", got[0].Date)

	all, err := store.List(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
