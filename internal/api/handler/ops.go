package handler

import (
	"net/http"
	"time"

	"github.com/aqforecast/aqforecast/internal/api/models"
	"github.com/aqforecast/aqforecast/internal/api/response"
	"github.com/aqforecast/aqforecast/internal/forecast"
	"github.com/aqforecast/aqforecast/internal/provider/resilience"
	"github.com/aqforecast/aqforecast/internal/worker"
)

// WorkerStatus reports the background refresh worker.
type WorkerStatus interface {
	Status() worker.Status
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	service   *forecast.Service
	registry  *resilience.Registry
	worker    WorkerStatus
}

// NewOpsHandler creates a new OpsHandler. registry and worker may be nil.
func NewOpsHandler(version, buildTime string, service *forecast.Service, registry *resilience.Registry, ws WorkerStatus) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		service:   service,
		registry:  registry,
		worker:    ws,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The service is ready once the
// first refresh has committed, even if it found no data.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	status := http.StatusOK
	if !h.service.Ready() {
		health.Status = models.HealthStatusFail
		health.Details = map[string]any{"reason": "no refresh has completed"}
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status: refresh progress, per-source
// outcomes, upstream circuit breaker health and the refresh schedule.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	report := h.service.Status()

	status := models.SystemStatus{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Refresh: models.RefreshState{
			InProgress:  report.InProgress,
			Message:     report.Message,
			Version:     report.Version,
			RefreshedAt: models.TimestampPtr(report.RefreshedAt),
			Labels:      report.Labels[:],
		},
		Sources:   toSourceOutcomes(report.Sources),
		Endpoints: []models.EndpointStatus{},
	}

	for _, s := range report.Sources {
		if s.Outcome != forecast.OutcomeLoaded {
			status.Status = models.HealthStatusDegraded
		}
	}

	if h.registry != nil {
		for _, eh := range h.registry.AllHealth() {
			es := models.EndpointStatus{
				Name:          eh.Name,
				Status:        models.HealthStatusOK,
				CircuitState:  eh.State,
				Requests:      eh.Counts.Requests,
				Failures:      eh.Counts.ConsecutiveFailures,
				LastSuccessAt: models.TimestampPtr(eh.LastSuccessAt),
				LastFailureAt: models.TimestampPtr(eh.LastFailureAt),
			}
			switch {
			case eh.IsUnhealthy():
				es.Status = models.HealthStatusFail
				status.Status = models.HealthStatusDegraded
			case eh.IsDegraded():
				es.Status = models.HealthStatusDegraded
				status.Status = models.HealthStatusDegraded
			}
			if eh.LastError != "" {
				msg := eh.LastError
				es.Message = &msg
			}
			status.Endpoints = append(status.Endpoints, es)
		}
	}

	if h.worker != nil {
		status.Worker = toWorkerState(h.worker.Status())
	}

	if !h.service.Ready() || (report.Version > 0 && !h.service.Current().OK) {
		status.Status = models.HealthStatusFail
	}
	response.JSON(w, r, http.StatusOK, status)
}

func toWorkerState(ws worker.Status) *models.WorkerState {
	m := ws.Metrics
	state := &models.WorkerState{
		Interval:       ws.Interval.String(),
		NextRunAt:      models.TimestampPtr(&ws.NextRun),
		LastRunAt:      models.TimestampPtr(&m.LastRefreshAt),
		LastDurationMs: m.LastRefreshDuration.Milliseconds(),
		Runs:           m.TotalRefreshes,
		Succeeded:      m.SuccessfulRefreshes,
		Failed:         m.FailedRefreshes,
		Superseded:     m.SupersededRefreshes,
	}
	if m.LastError != "" {
		msg := m.LastError
		state.LastError = &msg
	}
	return state
}
