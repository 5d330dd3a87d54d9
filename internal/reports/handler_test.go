package reports

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/radiology-ops/internal/appointments"
	"github.com/wolfman30/radiology-ops/internal/modality"
)

func seeded(t *testing.T) *appointments.MemoryStore {
	t.Helper()
	store := appointments.NewMemoryStore()
	records := []appointments.Appointment{
		done("1", "Amal", modality.MRI, "2024-05-02T08:00:00Z"),
		done("2", "Badr", modality.CT, "2024-05-02T08:00:00Z"),
		done("3", "Amal", modality.MRI, "2024-05-09T08:00:00Z"),
		{ID: "4", ExamType: modality.US, Date: "2024-04-01"},
	}
	require.NoError(t, store.MergeMany(context.Background(), records))
	return store
}

func getReport(t *testing.T, h *Handler, method, target, body string) (int, Report) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	var report Report
	if rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	}
	return rec.Code, report
}

func TestHandler_AppointmentReports(t *testing.T) {
	h := NewHandler(seeded(t), nil, nil)

	code, report := getReport(t, h, http.MethodGet, "/appointments?bucket=week", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "bucket", report.GroupBy)
	assert.Equal(t, []Group{{"2024-W18", 2}, {"2024-W19", 1}}, report.Groups)
	assert.Equal(t, 3.0, report.Total)

	code, report = getReport(t, h, http.MethodGet, "/appointments?groupBy=staff&top=1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []Group{{"Amal", 2}}, report.Groups)

	code, _ = getReport(t, h, http.MethodGet, "/appointments?groupBy=room", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = getReport(t, h, http.MethodGet, "/appointments?from=May", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandler_AppointmentRangeUsesCompletionDate(t *testing.T) {
	// Every seeded exam was queued on 2024-04-01 and completed in May.
	h := NewHandler(seeded(t), nil, nil)

	code, report := getReport(t, h, http.MethodGet, "/appointments?from=2024-05-01&to=2024-05-05&bucket=day", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []Group{{"2024-05-02", 2}}, report.Groups)
	assert.Equal(t, 2.0, report.Total)

	code, report = getReport(t, h, http.MethodGet, "/appointments?to=2024-04-30", "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, report.Groups)
}

func TestHandler_StoredMaterialsCountsEveryRow(t *testing.T) {
	ctx := context.Background()
	usages := NewMemoryUsageStore()
	for i := 0; i < 6000; i++ {
		material := "Gloves"
		if i%3 == 0 {
			material = "Syringe"
		}
		_, err := usages.Record(ctx, MaterialUsage{Material: material, Quantity: 1, Date: "2024-05-01"})
		require.NoError(t, err)
	}
	h := NewHandler(appointments.NewMemoryStore(), usages, nil)

	code, report := getReport(t, h, http.MethodGet, "/materials", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 6000.0, report.Total)
	assert.Equal(t, []Group{{"Gloves", 4000}, {"Syringe", 2000}}, report.Groups)
}

func TestHandler_Materials(t *testing.T) {
	usages := NewMemoryUsageStore()
	h := NewHandler(appointments.NewMemoryStore(), usages, nil)

	code, report := getReport(t, h, http.MethodPost, "/materials?tieBreak=alphabetical", `{"usages":[
		{"material":"Syringe","quantity":2,"date":"2024-05-01"},
		{"material":"Contrast","quantity":2,"date":"2024-05-01"}
	]}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []Group{{"Contrast", 2}, {"Syringe", 2}}, report.Groups)

	code, _ = getReport(t, h, http.MethodPost, "/materials", `{"usages":[{"material":"x","quantity":0,"date":"2024-05-01"}]}`)
	assert.Equal(t, http.StatusBadRequest, code)

	req := httptest.NewRequest(http.MethodPost, "/usages", strings.NewReader(`{"material":"Gloves","quantity":4,"date":"2024-05-03","staffName":"Amal"}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	code, report = getReport(t, h, http.MethodGet, "/materials?from=2024-05-01", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []Group{{"Gloves", 4}}, report.Groups)

	code, report = getReport(t, h, http.MethodGet, "/materials?to=2024-05-02", "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, report.Groups)
}

func TestPostgresUsageStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewPostgresUsageStore(mock)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO material_usages`).
		WithArgs(pgxmock.AnyArg(), "Contrast", 1.5, "Amal", "2024-05-01", "a1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	id, err := store.Record(ctx, MaterialUsage{Material: "Contrast", Quantity: 1.5, StaffName: "Amal", Date: "2024-05-01", AppointmentID: "a1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	mock.ExpectQuery(`(?s)SELECT material, quantity, staff_name, usage_date, appointment_id\s+FROM material_usages`).
		WithArgs("2024-05-01", "").
		WillReturnRows(pgxmock.NewRows([]string{"material", "quantity", "staff_name", "usage_date", "appointment_id"}).
			AddRow("Contrast", 1.5, "Amal", "2024-05-01", "a1"))
	got, err := store.List(ctx, "2024-05-01", "")
	require.NoError(t, err)
	assert.Equal(t, []MaterialUsage{{Material: "Contrast", Quantity: 1.5, StaffName: "Amal", Date: "2024-05-01", AppointmentID: "a1"}}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}
