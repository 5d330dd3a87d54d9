package httpjson

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bookBody struct {
	Date string `json:"date" validate:"required,isodate"`
	Time string `json:"time" validate:"required,hhmm"`
}

func TestDecodeValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"date":"2024-05-01","time":"25:00"}`))
	var body bookBody
	err := Decode(req, &body)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadRequest))
	assert.Contains(t, err.Error(), "Time failed hhmm")
}

func TestDecodeAcceptsValid(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"date":"2024-05-01","time":"09:30"}`))
	var body bookBody
	require.NoError(t, Decode(req, &body))
	assert.Equal(t, "09:30", body.Time)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	var body bookBody
	assert.ErrorIs(t, Decode(req, &body), ErrBadRequest)
}

func TestError(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusConflict, "already taken by a colleague")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"already taken by a colleague"}`, rec.Body.String())
}
