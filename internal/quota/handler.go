package quota

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/radiology-ops/internal/audit"
	"github.com/wolfman30/radiology-ops/internal/http/httpjson"
	"github.com/wolfman30/radiology-ops/internal/modality"
	"github.com/wolfman30/radiology-ops/internal/staff"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

// Handler exposes availability checks and supervisor settings edits.
type Handler struct {
	allocator *Allocator
	settings  ConfigStore
	audit     audit.Recorder
	logger    *logging.Logger
}

// NewHandler creates a new modality HTTP handler. recorder may be nil.
func NewHandler(allocator *Allocator, settings ConfigStore, recorder audit.Recorder, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{allocator: allocator, settings: settings, audit: recorder, logger: logger}
}

// Routes returns a chi router with modality routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/settings", h.ListSettings)
	r.Get("/{tag}/availability", h.Availability)
	r.Put("/{tag}/settings", h.UpdateSettings)
	return r
}

// Availability reports remaining capacity and free slots.
// GET /modalities/{tag}/availability?date=YYYY-MM-DD
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	tag, ok := modality.Parse(chi.URLParam(r, "tag"))
	if !ok {
		httpjson.Error(w, http.StatusBadRequest, "unknown modality")
		return
	}
	date := r.URL.Query().Get("date")
	if err := httpjson.Validate(struct {
		Date string `validate:"required,isodate"`
	}{date}); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	avail, err := h.allocator.Check(r.Context(), tag, date)
	if err != nil {
		h.logger.Error("availability check failed", "modality", tag, "date", date, "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httpjson.Write(w, http.StatusOK, avail)
}

// ListSettings returns every modality's effective settings.
// GET /modalities/settings
func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	all, err := h.settings.All(r.Context())
	if err != nil {
		h.logger.Error("failed to load modality settings", "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httpjson.Write(w, http.StatusOK, all)
}

// UpdateSettingsRequest is the body of a settings edit.
type UpdateSettingsRequest struct {
	Limit int      `json:"limit" validate:"required,min=1,max=1000"`
	Slots []string `json:"slots" validate:"omitempty,dive,hhmm"`
}

// UpdateSettings replaces one modality's settings. Supervisors only.
// PUT /modalities/{tag}/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	caller, ok := staff.FromContext(r.Context())
	if !ok || !caller.IsSupervisor() {
		httpjson.Error(w, http.StatusForbidden, "supervisor role required")
		return
	}
	tag, ok := modality.Parse(chi.URLParam(r, "tag"))
	if !ok {
		httpjson.Error(w, http.StatusBadRequest, "unknown modality")
		return
	}

	var req UpdateSettingsRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	settings, err := Normalize(Settings{Limit: req.Limit, Slots: req.Slots})
	if errors.Is(err, ErrInvalidSettings) {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.settings.Set(r.Context(), tag, settings); err != nil {
		h.logger.Error("failed to save modality settings", "modality", tag, "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	if h.audit != nil {
		if err := h.audit.Record(r.Context(), audit.Event{
			Action:    audit.ActionSettings,
			ActorID:   caller.ID,
			ActorName: caller.Name,
			Details:   audit.Details(map[string]any{"modality": tag, "limit": settings.Limit, "slots": settings.Slots}),
		}); err != nil {
			h.logger.Warn("failed to audit settings change", "modality", tag, "error", err)
		}
	}

	h.logger.Info("modality settings updated", "modality", tag, "limit", settings.Limit, "slots", len(settings.Slots), "by", caller.ID)
	httpjson.Write(w, http.StatusOK, settings)
}
