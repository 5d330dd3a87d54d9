package archive

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/radiology-ops/internal/staff"
)

func serve(t *testing.T, h *Handler, caller staff.Caller, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(staff.WithCaller(req.Context(), caller))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestHandler_Purge(t *testing.T) {
	store := seedDone(t, 3)
	sink := &memorySink{}
	h := NewHandler(NewPurger(store, sink, nil), sink, nil)

	tests := []struct {
		name   string
		caller staff.Caller
		body   string
		status int
		want   string
	}{
		{"staff forbidden", tech, `{"keyword":"DELETE ALL"}`, http.StatusForbidden, "supervisor role required"},
		{"wrong keyword", supervisor, `{"keyword":"delete"}`, http.StatusBadRequest, `type \"DELETE ALL\" to confirm`},
		{"bad exam type", supervisor, `{"examType":"PET","keyword":"DELETE ALL"}`, http.StatusBadRequest, "invalid filter"},
		{"bad date", supervisor, `{"through":"05/01/2024","keyword":"DELETE ALL"}`, http.StatusBadRequest, ""},
		{"nothing matches", supervisor, `{"through":"2020-01-01","keyword":"DELETE ALL"}`, http.StatusOK, `"requested":0`},
		{"purge done", supervisor, `{"status":"done","keyword":"DELETE ALL"}`, http.StatusOK, `"deleted":3`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, h, tt.caller, http.MethodPost, "/purge", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestHandler_PartialFailureReturnsResult(t *testing.T) {
	store := &failingStore{MemoryStore: seedDone(t, 4), failOn: 2}
	sink := &memorySink{}
	h := NewHandler(NewPurger(store, sink, nil, WithBatchSize(2)), sink, nil)

	rec := serve(t, h, supervisor, http.MethodPost, "/purge", `{"status":"done","keyword":"DELETE ALL"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body struct {
		Error  string      `json:"error"`
		Result PurgeResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Result.Deleted)
	assert.Equal(t, 4, body.Result.Requested)
}

func TestHandler_ExportThenView(t *testing.T) {
	store := seedDone(t, 2)
	sink := &memorySink{}
	h := NewHandler(NewPurger(store, sink, nil), sink, nil)

	rec := serve(t, h, supervisor, http.MethodPost, "/export", `{}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result PurgeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 3, result.Requested)

	rec = serve(t, h, tech, http.MethodGet, "/view?key="+result.ArchiveKey+"&status=done", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view struct {
		Summary Summary  `json:"summary"`
		Records []Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 2, view.Summary.Count)
	assert.Len(t, view.Records, 2)
}

func TestHandler_ViewErrors(t *testing.T) {
	sink := &memorySink{objects: map[string][]byte{"archives/bad.json": []byte(`{"not":"an array"}`)}}
	h := NewHandler(NewPurger(seedDone(t, 1), sink, nil), sink, nil)

	assert.Equal(t, http.StatusBadRequest, serve(t, h, tech, http.MethodGet, "/view", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, h, tech, http.MethodGet, "/view?key=archives/none.json", "").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, serve(t, h, tech, http.MethodGet, "/view?key=archives/bad.json", "").Code)

	disabled := NewStore(nil, "", nil)
	h = NewHandler(NewPurger(seedDone(t, 1), disabled, nil), disabled, nil)
	assert.Equal(t, http.StatusNotFound, serve(t, h, tech, http.MethodGet, "/view?key=archives/x.json", "").Code)
	rec := serve(t, h, supervisor, http.MethodPost, "/export", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
