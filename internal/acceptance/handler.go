package acceptance

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/radiology-ops/internal/appointments"
	"github.com/wolfman30/radiology-ops/internal/http/httpjson"
	"github.com/wolfman30/radiology-ops/internal/modality"
	"github.com/wolfman30/radiology-ops/internal/staff"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

const maxListLimit = 500

// Handler exposes appointment reads and workflow actions over HTTP.
type Handler struct {
	coordinator *Coordinator
	store       appointments.Store
	logger      *logging.Logger
}

// NewHandler creates a new appointments HTTP handler.
func NewHandler(coordinator *Coordinator, store appointments.Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{coordinator: coordinator, store: store, logger: logger}
}

// Routes returns a chi router with appointment routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.CreateManual)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Remove)
	r.Post("/{id}/book", h.Book)
	r.Post("/{id}/accept", h.Accept)
	r.Post("/{id}/undo", h.Undo)
	return r
}

// List returns appointments filtered by query parameters.
// GET /appointments?status=&date=&examType=&scheduledDate=&from=&to=&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := h.store.List(r.Context(), q)
	if err != nil {
		h.logger.Error("failed to list appointments", "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"appointments": list, "count": len(list)})
}

// Get returns one appointment.
// GET /appointments/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, appt)
}

// CreateManual stores a hand-entered appointment.
// POST /appointments
func (h *Handler) CreateManual(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req ManualRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	appt, err := h.coordinator.CreateManual(r.Context(), caller, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, appt)
}

// Book schedules an appointment.
// POST /appointments/{id}/book
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req BookRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	appt, err := h.coordinator.Book(r.Context(), caller, chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, appt)
}

// Accept marks an appointment done for the caller.
// POST /appointments/{id}/accept
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}
	appt, err := h.coordinator.Accept(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, appt)
}

// Undo returns a done appointment to pending.
// POST /appointments/{id}/undo
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}
	appt, err := h.coordinator.Undo(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, appt)
}

// Remove deletes an appointment.
// DELETE /appointments/{id}?confirm=true
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}
	confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if err := h.coordinator.Remove(r.Context(), caller, chi.URLParam(r, "id"), confirm); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAlreadyTaken):
		httpjson.Error(w, http.StatusConflict, "already taken by a colleague")
	case errors.Is(err, appointments.ErrConflict):
		httpjson.Error(w, http.StatusConflict, "appointment changed concurrently, refresh and retry")
	case errors.Is(err, ErrQuotaFull), errors.Is(err, ErrSlotTaken):
		httpjson.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, appointments.ErrNotFound):
		httpjson.Error(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, ErrForbidden):
		httpjson.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfirmationRequired), errors.Is(err, ErrInvalidTransition):
		httpjson.Error(w, http.StatusBadRequest, err.Error())
	default:
		httpjson.Error(w, http.StatusInternalServerError, "internal server error")
	}
}

func callerOrUnauthorized(w http.ResponseWriter, r *http.Request) (staff.Caller, bool) {
	caller, ok := staff.FromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "staff token required")
		return staff.Caller{}, false
	}
	return caller, true
}

func parseQuery(r *http.Request) (appointments.Query, error) {
	v := r.URL.Query()
	q := appointments.Query{
		Status:        appointments.Status(v.Get("status")),
		Date:          v.Get("date"),
		ScheduledDate: v.Get("scheduledDate"),
		From:          v.Get("from"),
		To:            v.Get("to"),
	}
	if q.Status != "" && !q.Status.Valid() {
		return q, errors.New("unknown status")
	}
	if raw := v.Get("examType"); raw != "" {
		tag, ok := modality.Parse(raw)
		if !ok {
			return q, errors.New("unknown examType")
		}
		q.ExamType = tag
	}
	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, errors.New("limit must be a non-negative integer")
		}
		if n > maxListLimit {
			n = maxListLimit
		}
		q.Limit = n
	}
	return q, nil
}
