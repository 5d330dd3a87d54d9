package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/radiology-ops/internal/acceptance"
	"github.com/wolfman30/radiology-ops/internal/appointments"
	"github.com/wolfman30/radiology-ops/internal/archive"
	httpmiddleware "github.com/wolfman30/radiology-ops/internal/http/middleware"
	"github.com/wolfman30/radiology-ops/internal/intake"
	"github.com/wolfman30/radiology-ops/internal/live"
	"github.com/wolfman30/radiology-ops/internal/observability/metrics"
	"github.com/wolfman30/radiology-ops/internal/quota"
	"github.com/wolfman30/radiology-ops/internal/reports"
	"github.com/wolfman30/radiology-ops/internal/staff"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

const testSecret = "router-secret"

func newTestRouter(t *testing.T, checks map[string]HealthCheck) http.Handler {
	t.Helper()

	logger := logging.Default()
	store := appointments.NewMemoryStore()
	reg := prometheus.NewRegistry()
	m := metrics.NewDeskMetrics(reg)
	settings := quota.NewMemoryConfigStore(nil)
	allocator := quota.NewAllocator(settings, store, m, logger)
	hub := live.NewHub(store, logger)
	sink := archive.NewDirStore(t.TempDir())

	ingest := intake.NewService(store, logger, intake.WithMetrics(m), intake.WithNotifier(hub))
	coordinator := acceptance.NewCoordinator(store, allocator, logger, acceptance.WithNotifier(hub))
	purger := archive.NewPurger(store, sink, logger)

	return New(&Config{
		Logger:             logger,
		IntakeHandler:      intake.NewHandler(ingest, nil, "https://desk.example", logger),
		AppointmentHandler: acceptance.NewHandler(coordinator, store, logger),
		ModalityHandler:    quota.NewHandler(allocator, settings, nil, logger),
		ReportsHandler:     reports.NewHandler(store, reports.NewMemoryUsageStore(), logger),
		LiveHandler:        live.NewHandler(hub, nil, logger),
		ArchiveHandler:     archive.NewHandler(purger, sink, logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		StaffAuthSecret:    testSecret,
		StoreBackend:       "memory",
		HealthChecks:       checks,
	})
}

func bearer(t *testing.T, role staff.Role) string {
	t.Helper()
	token, err := httpmiddleware.SignStaffToken(testSecret, staff.Caller{ID: "tech-1", Name: "Tech One", Role: role}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return "Bearer " + token
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, map[string]HealthCheck{"redis": func(context.Context) error { return nil }})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp struct {
		Status string            `json:"status"`
		Store  string            `json:"store"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp.Status != "ok" || resp.Store != "memory" || resp.Checks["redis"] != "ok" {
		t.Errorf("unexpected health response %+v", resp)
	}
}

func TestRouterHealthDegraded(t *testing.T) {
	router := newTestRouter(t, map[string]HealthCheck{"postgres": func(context.Context) error { return errors.New("connection refused") }})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
}

func TestRouterBridgeThenList(t *testing.T) {
	router := newTestRouter(t, nil)

	envelope := `{"type":"SMART_SYNC_DATA","payload":[
		{"patientName":"Sara Ali","fileNumber":"12345","examName":"MRI BRAIN","date":"2024-05-01","time":"9"},
		{"patientName":"Sara Ali","fileNumber":"12345","examName":"CT HEAD","date":"2024-05-01","time":"9"}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/intake/bridge", strings.NewReader(envelope))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"processed":2`) {
		t.Fatalf("expected two appointments processed, got %s", rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/appointments?status=pending", nil)
	req.Header.Set("Authorization", bearer(t, staff.RoleStaff))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var list struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if list.Count != 2 {
		t.Fatalf("expected 2 pending appointments, got %d", list.Count)
	}
}

func TestRouterDeskRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t, nil)

	for _, route := range []string{"/appointments", "/modalities/settings", "/reports/appointments", "/live/stats"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, route, nil))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected status %d, got %d", route, http.StatusUnauthorized, rr.Code)
		}
	}
}

func TestRouterArchiveRequiresSupervisor(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/archive/purge", strings.NewReader(`{"keyword":"DELETE ALL"}`))
	req.Header.Set("Authorization", bearer(t, staff.RoleStaff))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/archive/purge", strings.NewReader(`{"keyword":"DELETE ALL"}`))
	req.Header.Set("Authorization", bearer(t, staff.RoleSupervisor))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d for empty purge, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
}

func TestRouterMetricsExposed(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}
