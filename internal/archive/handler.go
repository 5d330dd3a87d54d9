package archive

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/radiology-ops/internal/http/httpjson"
	"github.com/wolfman30/radiology-ops/internal/staff"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

// Handler exposes export, purge and the read-only viewer.
type Handler struct {
	purger *Purger
	sink   Sink
	logger *logging.Logger
}

// NewHandler creates a new archive HTTP handler.
func NewHandler(purger *Purger, sink Sink, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{purger: purger, sink: sink, logger: logger}
}

// Routes returns a chi router with archive routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/export", h.Export)
	r.Post("/purge", h.Purge)
	r.Get("/view", h.View)
	return r
}

// Export archives matching appointments without deleting them.
// POST /archive/export
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	caller, _ := staff.FromContext(r.Context())
	var f Filter
	if err := httpjson.Decode(r, &f); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.purger.Export(r.Context(), caller, f)
	if err != nil {
		h.writeError(w, "export", result, err)
		return
	}
	httpjson.Write(w, http.StatusOK, result)
}

// Purge archives then deletes matching appointments.
// POST /archive/purge
func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	caller, _ := staff.FromContext(r.Context())
	var req PurgeRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.purger.Purge(r.Context(), caller, req)
	if err != nil {
		h.writeError(w, "purge", result, err)
		return
	}
	httpjson.Write(w, http.StatusOK, result)
}

// View returns the records and summary of one archive file.
// GET /archive/view?key=archives/appointments/...&status=&examType=
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	key := v.Get("key")
	if key == "" {
		httpjson.Error(w, http.StatusBadRequest, "key is required")
		return
	}
	data, err := h.sink.Get(r.Context(), key)
	switch {
	case errors.Is(err, ErrObjectNotFound):
		httpjson.Error(w, http.StatusNotFound, "archive not found")
		return
	case errors.Is(err, ErrNotConfigured):
		httpjson.Error(w, http.StatusNotFound, "archive store not configured")
		return
	case err != nil:
		h.logger.Error("failed to read archive", "key", key, "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	records, err := Decode(bytes.NewReader(data))
	if err != nil {
		h.logger.Warn("archive file is not a record array", "key", key, "error", err)
		httpjson.Error(w, http.StatusUnprocessableEntity, "archive file is malformed")
		return
	}
	for _, field := range []string{"status", "examType"} {
		if want := v.Get(field); want != "" {
			records = FilterRecords(records, field, want)
		}
	}
	SortByDate(records)
	httpjson.Write(w, http.StatusOK, map[string]any{"summary": Summarize(records), "records": records})
}

func (h *Handler) writeError(w http.ResponseWriter, action string, result PurgeResult, err error) {
	switch {
	case errors.Is(err, ErrForbidden):
		httpjson.Error(w, http.StatusForbidden, "supervisor role required")
	case errors.Is(err, ErrPurgeKeyword):
		httpjson.Error(w, http.StatusBadRequest, `type "DELETE ALL" to confirm`)
	case errors.Is(err, ErrInvalidFilter):
		httpjson.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNothingToDo):
		httpjson.Write(w, http.StatusOK, result)
	case errors.Is(err, ErrNotConfigured):
		httpjson.Error(w, http.StatusServiceUnavailable, "archive store not configured")
	default:
		h.logger.Error("archive action failed", "action", action, "deleted", result.Deleted, "error", err)
		httpjson.Write(w, http.StatusInternalServerError, map[string]any{
			"error":  "archive action failed partway",
			"result": result,
		})
	}
}
