package reports

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/radiology-ops/internal/appointments"
	"github.com/wolfman30/radiology-ops/internal/http/httpjson"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

// Lister is the read side of the appointment store.
type Lister interface {
	List(ctx context.Context, q appointments.Query) ([]appointments.Appointment, error)
}

// Report is the response body of every report endpoint.
type Report struct {
	GroupBy  string   `json:"groupBy"`
	Bucket   Bucket   `json:"bucket,omitempty"`
	TieBreak TieBreak `json:"tieBreak"`
	Groups   []Group  `json:"groups"`
	Total    float64  `json:"total"`
}

// Handler serves report views.
type Handler struct {
	lister Lister
	usages UsageStore
	logger *logging.Logger
}

// NewHandler creates a new reports HTTP handler. usages may be nil, which
// disables the stored-usage endpoints.
func NewHandler(lister Lister, usages UsageStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{lister: lister, usages: usages, logger: logger}
}

// Routes returns a chi router with report routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/appointments", h.Appointments)
	r.Post("/materials", h.AggregateMaterials)
	r.Get("/materials", h.StoredMaterials)
	r.Post("/usages", h.RecordUsage)
	return r
}

type rankParams struct {
	top      int
	tieBreak TieBreak
}

func parseRank(r *http.Request) (rankParams, error) {
	v := r.URL.Query()
	tb, ok := ParseTieBreak(v.Get("tieBreak"))
	if !ok {
		return rankParams{}, errors.New("tieBreak must be firstSeen or alphabetical")
	}
	p := rankParams{tieBreak: tb}
	if raw := v.Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return rankParams{}, errors.New("top must be a non-negative integer")
		}
		p.top = n
	}
	return p, nil
}

// Appointments reports on completed appointments.
// GET /reports/appointments?from=&to=&bucket=day|week|month&groupBy=bucket|staff|modality&top=&tieBreak=
func (h *Handler) Appointments(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	if err := httpjson.Validate(struct {
		From string `validate:"omitempty,isodate"`
		To   string `validate:"omitempty,isodate"`
	}{v.Get("from"), v.Get("to")}); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "from and to must be YYYY-MM-DD")
		return
	}
	bucket, ok := ParseBucket(v.Get("bucket"))
	if !ok {
		httpjson.Error(w, http.StatusBadRequest, "bucket must be day, week or month")
		return
	}
	rank, err := parseRank(r)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	// The store filters on the feed date, but reports count by completion
	// date, so the range is applied after loading.
	done, err := h.lister.List(r.Context(), appointments.Query{Status: appointments.StatusDone})
	if err != nil {
		h.logger.Error("failed to load appointments for report", "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	done = InReportRange(done, v.Get("from"), v.Get("to"))

	report := Report{TieBreak: rank.tieBreak}
	switch groupBy := v.Get("groupBy"); groupBy {
	case "", "bucket":
		// Time series stay chronological; top and tieBreak do not apply.
		report.GroupBy = "bucket"
		report.Bucket = bucket
		report.Groups = CountByBucket(done, bucket)
	case "staff":
		report.GroupBy = groupBy
		report.Groups = Top(CountByStaff(done), rank.top, rank.tieBreak)
	case "modality":
		report.GroupBy = groupBy
		report.Groups = Top(CountByModality(done), rank.top, rank.tieBreak)
	default:
		httpjson.Error(w, http.StatusBadRequest, "groupBy must be bucket, staff or modality")
		return
	}
	report.Total = Total(report.Groups)
	httpjson.Write(w, http.StatusOK, report)
}

// MaterialsRequest carries usage records to aggregate.
type MaterialsRequest struct {
	Usages []MaterialUsage `json:"usages" validate:"required,max=5000,dive"`
}

// AggregateMaterials totals posted usage records by material.
// POST /reports/materials?top=&tieBreak=
func (h *Handler) AggregateMaterials(w http.ResponseWriter, r *http.Request) {
	rank, err := parseRank(r)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	var req MaterialsRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeMaterials(w, req.Usages, rank)
}

// StoredMaterials totals recorded usages dated within the range.
// GET /reports/materials?from=&to=&top=&tieBreak=
func (h *Handler) StoredMaterials(w http.ResponseWriter, r *http.Request) {
	if h.usages == nil {
		httpjson.Error(w, http.StatusNotFound, "usage store not configured")
		return
	}
	rank, err := parseRank(r)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	v := r.URL.Query()
	usages, err := h.usages.List(r.Context(), v.Get("from"), v.Get("to"))
	if err != nil {
		h.logger.Error("failed to load material usages", "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeMaterials(w, usages, rank)
}

// RecordUsage stores one usage record.
// POST /reports/usages
func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	if h.usages == nil {
		httpjson.Error(w, http.StatusNotFound, "usage store not configured")
		return
	}
	var u MaterialUsage
	if err := httpjson.Decode(r, &u); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.usages.Record(r.Context(), u)
	if err != nil {
		h.logger.Error("failed to record material usage", "material", u.Material, "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httpjson.Write(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) writeMaterials(w http.ResponseWriter, usages []MaterialUsage, rank rankParams) {
	groups := Top(SumByMaterial(usages), rank.top, rank.tieBreak)
	httpjson.Write(w, http.StatusOK, Report{
		GroupBy:  "material",
		TieBreak: rank.tieBreak,
		Groups:   groups,
		Total:    Total(groups),
	})
}
