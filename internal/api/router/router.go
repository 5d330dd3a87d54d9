package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/radiology-ops/internal/acceptance"
	"github.com/wolfman30/radiology-ops/internal/archive"
	"github.com/wolfman30/radiology-ops/internal/http/httpjson"
	httpmiddleware "github.com/wolfman30/radiology-ops/internal/http/middleware"
	"github.com/wolfman30/radiology-ops/internal/intake"
	"github.com/wolfman30/radiology-ops/internal/live"
	"github.com/wolfman30/radiology-ops/internal/quota"
	"github.com/wolfman30/radiology-ops/internal/reports"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	IntakeHandler      *intake.Handler
	AppointmentHandler *acceptance.Handler
	ModalityHandler    *quota.Handler
	ReportsHandler     *reports.Handler
	LiveHandler        *live.Handler
	ArchiveHandler     *archive.Handler
	MetricsHandler     http.Handler
	StaffAuthSecret    string
	CORSAllowedOrigins []string
	// IntakeRateLimit is bridge requests per second per client IP; zero disables it.
	IntakeRateLimit float64
	IntakeBurst     int
	StoreBackend    string
	HealthChecks    map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (bridge relay, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", health(cfg))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.IntakeHandler != nil {
			public.With(httpmiddleware.RateLimit(cfg.IntakeRateLimit, cfg.IntakeBurst)).Mount("/intake", cfg.IntakeHandler.Routes())
		}
	})

	// Desk routes (staff JWT)
	r.Group(func(desk chi.Router) {
		desk.Use(httpmiddleware.StaffJWT(cfg.StaffAuthSecret))
		// The websocket upgrade must not be gzip-wrapped, so compression is
		// applied per mount.
		compress := middleware.Compress(5)
		if cfg.AppointmentHandler != nil {
			desk.With(compress).Mount("/appointments", cfg.AppointmentHandler.Routes())
		}
		if cfg.ModalityHandler != nil {
			desk.With(compress).Mount("/modalities", cfg.ModalityHandler.Routes())
		}
		if cfg.ReportsHandler != nil {
			desk.With(compress).Mount("/reports", cfg.ReportsHandler.Routes())
		}
		if cfg.LiveHandler != nil {
			desk.Mount("/live", cfg.LiveHandler.Routes())
		}
		if cfg.ArchiveHandler != nil {
			desk.With(compress, httpmiddleware.RequireSupervisor).Mount("/archive", cfg.ArchiveHandler.Routes())
		}
	})

	return r
}

func health(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(cfg.HealthChecks))
		for name, check := range cfg.HealthChecks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				checks[name] = err.Error()
				if cfg.Logger != nil {
					cfg.Logger.Warn("health check failed", "dependency", name, "error", err)
				}
				continue
			}
			checks[name] = "ok"
		}
		body := map[string]any{"status": "ok", "store": cfg.StoreBackend, "checks": checks}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		httpjson.Write(w, status, body)
	}
}
