package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorErrorExposesMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	OperatorError(rec, errors.New("fetching campaigns: API error (status 503)"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "fetching campaigns: API error (status 503)", body.Error)
}

func TestInternalErrorHidesMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	InternalError(rec, errors.New("dynamodb: table missing"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body.Error)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestUnauthorized(t *testing.T) {
	rec := httptest.NewRecorder()
	Unauthorized(rec)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}

func TestGatewayTimeout(t *testing.T) {
	rec := httptest.NewRecorder()
	GatewayTimeout(rec, "sync timed out after 2m0s")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.JSONEq(t, `{"error":"sync timed out after 2m0s","code":"timeout"}`, rec.Body.String())
}
