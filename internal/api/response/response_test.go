package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqforecast/aqforecast/internal/api/middleware"
	"github.com/aqforecast/aqforecast/internal/api/models"
	"github.com/aqforecast/aqforecast/internal/api/response"
)

// requestWithID returns a request whose context carries a request id, as
// if it had passed through the RequestID middleware.
func requestWithID(t *testing.T, method, path string) *http.Request {
	t.Helper()
	var processed *http.Request
	middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		processed = r
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, http.NoBody))
	require.NotNil(t, processed)
	return processed
}

func TestJSON_IncludesRequestID(t *testing.T) {
	req := requestWithID(t, http.MethodGet, "/v1/forecast")
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, map[string]string{"status": "Loaded"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, middleware.GetRequestID(req.Context()), rec.Header().Get("X-Request-Id"))
	assert.JSONEq(t, `{"status":"Loaded"}`, rec.Body.String())
}

func TestJSON_WithoutRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	response.JSON(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody), http.StatusOK, nil)

	assert.Empty(t, rec.Header().Get("X-Request-Id"))
	assert.Empty(t, rec.Body.String())
}

func TestCached_NotModified(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/markers", http.NoBody)
	rec := httptest.NewRecorder()
	response.Cached(rec, req, 4, 60, []int{1})

	assert.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	assert.Equal(t, `W/"v4"`, etag)
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))

	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	response.Cached(rec, req, 4, 60, []int{1})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = httptest.NewRecorder()
	response.Cached(rec, req, 5, 60, []int{1})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProblemResponses(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, *http.Request)
		status int
		typ    string
	}{
		{"bad request", func(w http.ResponseWriter, r *http.Request) {
			response.BadRequest(w, r, "bad slot", []models.FieldError{{Field: "slot", Message: "invalid"}})
		}, http.StatusBadRequest, models.ProblemTypeValidation},
		{"no forecast", func(w http.ResponseWriter, r *http.Request) {
			response.NoForecast(w, r, "AERONET/accra")
		}, http.StatusNotFound, models.ProblemTypeNoForecast},
		{"superseded", func(w http.ResponseWriter, r *http.Request) {
			response.RefreshSuperseded(w, r, "superseded")
		}, http.StatusConflict, models.ProblemTypeRefreshSuperseded},
		{"interrupted", func(w http.ResponseWriter, r *http.Request) {
			response.RefreshInterrupted(w, r, "canceled")
		}, http.StatusServiceUnavailable, models.ProblemTypeRefreshInterrupted},
		{"internal", func(w http.ResponseWriter, r *http.Request) {
			response.InternalError(w, r, "boom")
		}, http.StatusInternalServerError, models.ProblemTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestWithID(t, http.MethodGet, "/v1/sites/AERONET/accra/value")
			rec := httptest.NewRecorder()
			tt.write(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var problem models.Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, tt.typ, problem.Type)
			assert.Equal(t, "/v1/sites/AERONET/accra/value", problem.Instance)
			assert.Equal(t, middleware.GetRequestID(req.Context()), problem.TraceID)
		})
	}
}
