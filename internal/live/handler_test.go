package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/radiology-ops/internal/appointments"
	"github.com/wolfman30/radiology-ops/internal/modality"
	"github.com/wolfman30/radiology-ops/internal/staff"
)

func liveServer(t *testing.T, store appointments.Store, origins []string) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(store, nil)
	h := NewHandler(hub, origins, nil)
	withCaller := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("token") == "ok" {
				r = r.WithContext(staff.WithCaller(r.Context(), staff.Caller{ID: "tech-1", Role: staff.RoleStaff}))
			}
			next.ServeHTTP(w, r)
		})
	}
	srv := httptest.NewServer(withCaller(h.Routes()))
	t.Cleanup(srv.Close)
	return hub, srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestHandler_StreamsSnapshots(t *testing.T) {
	store := seedStore(t)
	hub, srv := liveServer(t, store, []string{"https://desk.example"})

	header := http.Header{"Origin": {"https://desk.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/appointments?token=ok&examType=ct"), header)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg OutboundMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "snapshot", msg.Type)
	require.Equal(t, 1, msg.Snapshot.Count)
	assert.Equal(t, "ct", msg.Snapshot.Appointments[0].ID)

	require.NoError(t, store.MergeMany(context.Background(), []appointments.Appointment{{ID: "ct2", ExamType: modality.CT, Time: "10:00"}}))
	hub.AppointmentsChanged(context.Background())
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, 2, msg.Snapshot.Count)

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "ping"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg.Type)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHandler_RejectsBadRequests(t *testing.T) {
	_, srv := liveServer(t, seedStore(t), []string{"https://desk.example"})
	header := http.Header{"Origin": {"https://desk.example"}}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/appointments"), header)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "/appointments?token=ok&status=lost"), header)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "/appointments?token=ok"), http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandler_Stats(t *testing.T) {
	_, srv := liveServer(t, seedStore(t), nil)
	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
