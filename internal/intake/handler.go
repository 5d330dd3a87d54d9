package intake

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"io"
	"net/http"
	"text/template"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/radiology-ops/internal/http/httpjson"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

const maxEnvelopeBytes = 5 << 20

//go:embed bridge.js
var bridgeTemplate string

// Ingester ingests a raw envelope synchronously.
type Ingester interface {
	IngestEnvelope(ctx context.Context, raw []byte) (Result, error)
}

// Enqueuer hands a raw envelope to intake workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, raw []byte) error
}

// Handler receives bridge relays.
type Handler struct {
	ingester Ingester
	enqueuer Enqueuer
	bridgeJS []byte
	logger   *logging.Logger
}

// NewHandler creates the bridge handler. When enqueuer is non-nil payloads
// are queued for workers instead of being ingested inline.
func NewHandler(ingester Ingester, enqueuer Enqueuer, publicBaseURL string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		ingester: ingester,
		enqueuer: enqueuer,
		bridgeJS: RenderBridgeScript(publicBaseURL),
		logger:   logger,
	}
}

// RenderBridgeScript fills the bridge snippet with the service endpoint.
func RenderBridgeScript(publicBaseURL string) []byte {
	tmpl := template.Must(template.New("bridge").Delims("[[", "]]").Parse(bridgeTemplate))
	var buf bytes.Buffer
	_ = tmpl.Execute(&buf, map[string]string{
		"Endpoint":    publicBaseURL + "/intake/bridge",
		"MessageType": MessageType,
	})
	return buf.Bytes()
}

// Routes returns a chi router with the bridge routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/bridge", h.HandleBridge)
	r.Get("/bridge.js", h.HandleBridgeJS)
	return r
}

// HandleBridge accepts {type, payload} envelopes.
// POST /intake/bridge
func (h *Handler) HandleBridge(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeBytes))
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if h.enqueuer != nil {
		err := h.enqueuer.Enqueue(r.Context(), raw)
		switch {
		case errors.Is(err, ErrUnsupportedMessage):
			httpjson.Write(w, http.StatusAccepted, map[string]bool{"ignored": true})
		case errors.Is(err, ErrInvalidPayload):
			httpjson.Error(w, http.StatusBadRequest, "invalid envelope")
		case err != nil:
			h.logger.Error("failed to enqueue bridge payload", "error", err)
			httpjson.Error(w, http.StatusInternalServerError, "failed to queue payload")
		default:
			httpjson.Write(w, http.StatusAccepted, map[string]bool{"queued": true})
		}
		return
	}

	res, err := h.ingester.IngestEnvelope(r.Context(), raw)
	switch {
	case errors.Is(err, ErrUnsupportedMessage):
		httpjson.Write(w, http.StatusAccepted, map[string]bool{"ignored": true})
	case errors.Is(err, ErrEmptyPayload):
		httpjson.Write(w, http.StatusOK, map[string]int{"processed": 0})
	case errors.Is(err, ErrInvalidPayload):
		httpjson.Error(w, http.StatusBadRequest, "invalid envelope")
	case err != nil:
		httpjson.Error(w, http.StatusInternalServerError, "failed to save payload")
	default:
		httpjson.Write(w, http.StatusOK, map[string]int{"processed": res.Appointments})
	}
}

// HandleBridgeJS serves the copy-paste bridge snippet.
// GET /intake/bridge.js
func (h *Handler) HandleBridgeJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(h.bridgeJS)
}
