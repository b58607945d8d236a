package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqforecast/aqforecast/internal/api/models"
)

func TestNewProblem_UnknownTypeIsInternal(t *testing.T) {
	p := models.NewProblem("https://example.com/other", "req_test123", "boom")

	assert.Equal(t, models.ProblemTypeInternal, p.Type)
	assert.Equal(t, http.StatusInternalServerError, p.Status)
	assert.Equal(t, "boom", p.Detail)
	assert.Equal(t, "req_test123", p.TraceID)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "invalid input", []models.FieldError{
		{Field: "slot", Message: "invalid time slot"},
	})
	p.Instance = "/v1/markers"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, models.ProblemTypeValidation, result.Type)
	assert.Equal(t, "/v1/markers", result.Instance)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "slot", result.Errors[0].Field)
}

func TestProblem_WriteWithoutTraceID(t *testing.T) {
	w := httptest.NewRecorder()
	models.NewNoForecast("", "AERONET/accra").Write(w)
	assert.Empty(t, w.Header().Get("X-Request-Id"))
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name    string
		problem *models.Problem
		typ     string
		status  int
		detail  string
	}{
		{"no forecast", models.NewNoForecast("r", "AERONET/accra"), models.ProblemTypeNoForecast, http.StatusNotFound, "no forecast for AERONET/accra"},
		{"superseded", models.NewRefreshSuperseded("r", "d"), models.ProblemTypeRefreshSuperseded, http.StatusConflict, "d"},
		{"interrupted", models.NewRefreshInterrupted("r", "d"), models.ProblemTypeRefreshInterrupted, http.StatusServiceUnavailable, "d"},
		{"media type", models.NewUnsupportedMediaType("r", "d"), models.ProblemTypeUnsupportedMedia, http.StatusUnsupportedMediaType, "d"},
		{"rate limit", models.NewTooManyRequests("r", "d"), models.ProblemTypeTooManyRequests, http.StatusTooManyRequests, "d"},
		{"tls", models.NewTLSRequired("r"), models.ProblemTypeTLSRequired, http.StatusForbidden, "This endpoint requires HTTPS"},
		{"internal", models.NewInternalError("r", "d"), models.ProblemTypeInternal, http.StatusInternalServerError, "d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.problem.Type)
			assert.Equal(t, tt.status, tt.problem.Status)
			assert.Equal(t, tt.detail, tt.problem.Detail)
			assert.Equal(t, "r", tt.problem.TraceID)
			assert.NotEmpty(t, tt.problem.Title)
		})
	}
}

func TestTimestamp_JSON(t *testing.T) {
	ts := models.Timestamp(time.Date(2024, 6, 10, 13, 30, 0, 0, time.FixedZone("CEST", 2*3600)))

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-06-10T11:30:00Z"`, string(data))

	var back models.Timestamp
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Time().Equal(ts.Time()))

	assert.Error(t, json.Unmarshal([]byte(`12`), &back))
	assert.Nil(t, models.TimestampPtr(nil))
	assert.Nil(t, models.TimestampPtr(&time.Time{}))
}
