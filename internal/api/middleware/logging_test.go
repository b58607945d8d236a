package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aqforecast/aqforecast/internal/api/middleware"
)

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(middleware.Logger(zerolog.New(&buf)))
	r.Get("/v1/sites/{source}/{site}/value", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value":87}`))
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/sites/AERONET/gsfc/value", http.NoBody)
	req.Header.Set("User-Agent", "aq-dashboard")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLogLine(t, &buf)
	assert.Equal(t, "request completed", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/v1/sites/AERONET/gsfc/value", entry["path"])
	assert.Equal(t, "/v1/sites/{source}/{site}/value", entry["route"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, float64(12), entry["bytes"])
	assert.Equal(t, "aq-dashboard", entry["user_agent"])
	assert.Contains(t, entry, "duration")
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "info"},
		{http.StatusNotModified, "info"},
		{http.StatusNotFound, "warn"},
		{http.StatusConflict, "warn"},
		{http.StatusBadGateway, "error"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		handler := middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/refresh", http.NoBody))

		entry := decodeLogLine(t, &buf)
		assert.Equal(t, tt.level, entry["level"], "status %d", tt.status)
		assert.Equal(t, float64(tt.status), entry["status"])
	}
}

func TestLogger_ContextLoggerCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	handler := middleware.RequestID(middleware.Logger(zerolog.New(&buf))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			zerolog.Ctx(r.Context()).Info().Msg("handler line")
			w.WriteHeader(http.StatusOK)
		}),
	))

	req := httptest.NewRequest(http.MethodGet, "/v1/forecast", http.NoBody)
	req.Header.Set("X-Request-Id", "abc-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		assert.Equal(t, "abc-123", entry["request_id"])
	}
}

func TestLogger_IncludesTraceID(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	var buf bytes.Buffer
	handler := middleware.Tracing("aqforecast")(
		middleware.Logger(zerolog.New(&buf))(okHandler()),
	)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/markers", http.NoBody))

	entry := decodeLogLine(t, &buf)
	assert.Len(t, entry["trace_id"], 32)
	assert.Len(t, entry["span_id"], 16)
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	handler := middleware.RequestID(middleware.Recovery(zerolog.New(&buf))(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}),
	))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/forecast", http.NoBody))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "/v1/forecast")

	entry := decodeLogLine(t, &buf)
	assert.Equal(t, "panic recovered", entry["message"])
	assert.Equal(t, "boom", entry["error"])
}

func TestRecovery_AbortHandlerRepanics(t *testing.T) {
	handler := middleware.Recovery(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	})
}
