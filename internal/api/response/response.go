// Package response writes JSON and problem responses for the forecast API.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aqforecast/aqforecast/internal/api/middleware"
	"github.com/aqforecast/aqforecast/internal/api/models"
)

// JSON writes data as JSON with the given status code, echoing the request
// id for correlation.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Cached writes a 200 JSON response that clients may reuse for maxAge
// seconds. Responses are tagged with the aggregate version so a refresh
// invalidates them.
func Cached(w http.ResponseWriter, r *http.Request, version uint64, maxAge int, data any) {
	etag := `W/"v` + strconv.FormatUint(version, 10) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(maxAge))
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
			w.Header().Set("X-Request-Id", requestID)
		}
		w.WriteHeader(http.StatusNotModified)
		return
	}
	JSON(w, r, http.StatusOK, data)
}

// Error writes a Problem+JSON error response.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(middleware.GetRequestID(r.Context()), detail, errors))
}

// NoForecast writes a 404 for a site missing from the committed aggregate.
func NoForecast(w http.ResponseWriter, r *http.Request, site string) {
	Error(w, r, models.NewNoForecast(middleware.GetRequestID(r.Context()), site))
}

// RefreshSuperseded writes a 409 for a refresh dropped in favour of a newer one.
func RefreshSuperseded(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewRefreshSuperseded(middleware.GetRequestID(r.Context()), detail))
}

// RefreshInterrupted writes a 503 for a refresh that ended before committing.
func RefreshInterrupted(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewRefreshInterrupted(middleware.GetRequestID(r.Context()), detail))
}

// InternalError writes a 500 Internal Server Error response.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(middleware.GetRequestID(r.Context()), detail))
}
