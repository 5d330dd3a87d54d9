package live

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/radiology-ops/internal/appointments"
	"github.com/wolfman30/radiology-ops/internal/http/httpjson"
	"github.com/wolfman30/radiology-ops/internal/modality"
	"github.com/wolfman30/radiology-ops/internal/staff"
	"github.com/wolfman30/radiology-ops/pkg/logging"
)

const writeTimeout = 10 * time.Second

// InboundMessage is what the desk sends.
type InboundMessage struct {
	Type string `json:"type"` // "ping"
}

// OutboundMessage is what the desk receives.
type OutboundMessage struct {
	Type     string    `json:"type"` // "snapshot", "pong", "error"
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Handler serves live appointment subscriptions over WebSocket.
type Handler struct {
	hub     *Hub
	origins map[string]struct{}
	logger  *logging.Logger
}

// NewHandler creates a live handler. An empty or "*" origin list accepts any
// browser origin.
func NewHandler(hub *Hub, allowedOrigins []string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	origins := make(map[string]struct{})
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" && o != "*" {
			origins[o] = struct{}{}
		}
	}
	return &Handler{hub: hub, origins: origins, logger: logger}
}

// Routes returns a chi router with live routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/appointments", h.HandleWebSocket)
	r.Get("/stats", h.Stats)
	return r
}

// Stats reports the number of open subscriptions.
// GET /live/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, map[string]int{"subscribers": h.hub.Subscribers()})
}

// HandleWebSocket upgrades and streams snapshots for the query in the URL.
// GET /live/appointments?status=&date=&scheduledDate=&examType=
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	caller, ok := staff.FromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "staff token required")
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	server := websocket.Server{
		Handshake: h.checkOrigin,
		Handler: func(conn *websocket.Conn) {
			h.serveWS(conn, q, caller)
		},
	}
	server.ServeHTTP(w, r)
}

func (h *Handler) checkOrigin(cfg *websocket.Config, r *http.Request) error {
	origin, err := websocket.Origin(cfg, r)
	if err != nil {
		return err
	}
	cfg.Origin = origin
	if len(h.origins) == 0 {
		return nil
	}
	if origin == nil {
		return fmt.Errorf("live: missing origin")
	}
	if _, ok := h.origins[origin.Scheme+"://"+origin.Host]; !ok {
		return fmt.Errorf("live: origin %s not allowed", origin.Host)
	}
	return nil
}

func (h *Handler) serveWS(conn *websocket.Conn, q appointments.Query, caller staff.Caller) {
	var sendMu sync.Mutex
	send := func(msg OutboundMessage) error {
		sendMu.Lock()
		defer sendMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return websocket.JSON.Send(conn, msg)
	}

	cancel := h.hub.Subscribe(q, func(snap Snapshot) {
		if err := send(OutboundMessage{Type: "snapshot", Snapshot: &snap}); err != nil {
			h.logger.Debug("live: snapshot send failed", "caller", caller.ID, "error", err)
			_ = conn.Close()
		}
	})
	defer cancel()

	h.logger.Info("live: subscription opened", "caller", caller.ID, "status", q.Status, "exam_type", q.ExamType)
	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("live: connection closed", "caller", caller.ID, "error", err)
			return
		}
		if msg.Type == "ping" {
			_ = send(OutboundMessage{Type: "pong"})
		}
	}
}

func parseQuery(r *http.Request) (appointments.Query, error) {
	v := r.URL.Query()
	q := appointments.Query{
		Status:        appointments.Status(v.Get("status")),
		Date:          v.Get("date"),
		ScheduledDate: v.Get("scheduledDate"),
	}
	if q.Status != "" && !q.Status.Valid() {
		return q, fmt.Errorf("unknown status %q", q.Status)
	}
	if raw := v.Get("examType"); raw != "" {
		tag, ok := modality.Parse(raw)
		if !ok {
			return q, fmt.Errorf("unknown examType %q", raw)
		}
		q.ExamType = tag
	}
	return q, nil
}
