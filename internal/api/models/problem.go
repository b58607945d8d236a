package models

import (
	"encoding/json"
	"net/http"
)

// Problem is the application/problem+json body (RFC 7807) returned by every
// failed forecast API call. TraceID repeats the X-Request-Id header so a
// client report can be matched to the request and refresh logs.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError points at the query or body field that was rejected, e.g.
// slot, day or pollutant.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://aqforecast.dev/problems/"

// Problem types served by the API.
const (
	ProblemTypeValidation         = problemBase + "validation-error"
	ProblemTypeNoForecast         = problemBase + "no-forecast"
	ProblemTypeRefreshSuperseded  = problemBase + "refresh-superseded"
	ProblemTypeRefreshInterrupted = problemBase + "refresh-interrupted"
	ProblemTypeUnsupportedMedia   = problemBase + "unsupported-media-type"
	ProblemTypeTooManyRequests    = problemBase + "too-many-requests"
	ProblemTypeTLSRequired        = problemBase + "tls-required"
	ProblemTypeInternal           = problemBase + "internal-error"
)

type problemKind struct {
	title  string
	status int
}

var problemKinds = map[string]problemKind{
	ProblemTypeValidation:         {"Invalid forecast query", http.StatusBadRequest},
	ProblemTypeNoForecast:         {"No forecast for site", http.StatusNotFound},
	ProblemTypeRefreshSuperseded:  {"Refresh superseded", http.StatusConflict},
	ProblemTypeRefreshInterrupted: {"Refresh interrupted", http.StatusServiceUnavailable},
	ProblemTypeUnsupportedMedia:   {"Unsupported media type", http.StatusUnsupportedMediaType},
	ProblemTypeTooManyRequests:    {"Too many requests", http.StatusTooManyRequests},
	ProblemTypeTLSRequired:        {"TLS required", http.StatusForbidden},
	ProblemTypeInternal:           {"Internal server error", http.StatusInternalServerError},
}

// NewProblem builds a problem of a known type. Unknown types are reported
// as internal errors.
func NewProblem(problemType, traceID, detail string) *Problem {
	kind, ok := problemKinds[problemType]
	if !ok {
		problemType, kind = ProblemTypeInternal, problemKinds[ProblemTypeInternal]
	}
	return &Problem{
		Type:    problemType,
		Title:   kind.title,
		Status:  kind.status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// Write sends the problem with its status code.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest rejects a query parameter or refresh body.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := NewProblem(ProblemTypeValidation, traceID, detail)
	p.Errors = errors
	return p
}

// NewNoForecast reports a site that is absent from the committed aggregate.
func NewNoForecast(traceID, site string) *Problem {
	return NewProblem(ProblemTypeNoForecast, traceID, "no forecast for "+site)
}

// NewRefreshSuperseded reports a refresh dropped because a newer one started.
func NewRefreshSuperseded(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeRefreshSuperseded, traceID, detail)
}

// NewRefreshInterrupted reports a refresh canceled or timed out before it
// committed. The previous aggregate stays in service.
func NewRefreshInterrupted(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeRefreshInterrupted, traceID, detail)
}

// NewUnsupportedMediaType rejects a refresh body that is not JSON.
func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeUnsupportedMedia, traceID, detail)
}

// NewTooManyRequests is returned once a client exceeds its rate limit.
func NewTooManyRequests(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeTooManyRequests, traceID, detail)
}

// NewTLSRequired rejects a request forwarded over plain HTTP.
func NewTLSRequired(traceID string) *Problem {
	return NewProblem(ProblemTypeTLSRequired, traceID, "This endpoint requires HTTPS")
}

// NewInternalError hides an unexpected failure behind a generic detail.
func NewInternalError(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeInternal, traceID, detail)
}
