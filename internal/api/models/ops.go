package models

// Health represents the liveness or readiness of the service.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// SystemStatus reports refresh progress, per-source outcomes and the health
// of every upstream endpoint.
type SystemStatus struct {
	Status    HealthStatus     `json:"status"`
	Time      Timestamp        `json:"time"`
	Refresh   RefreshState     `json:"refresh"`
	Sources   []SourceOutcome  `json:"sources"`
	Endpoints []EndpointStatus `json:"endpoints"`
	Worker    *WorkerState     `json:"worker,omitempty"`
}

// WorkerState describes the background refresh schedule and its totals.
type WorkerState struct {
	Interval       string     `json:"interval"`
	NextRunAt      *Timestamp `json:"nextRunAt,omitempty"`
	LastRunAt      *Timestamp `json:"lastRunAt,omitempty"`
	LastDurationMs int64      `json:"lastDurationMs"`
	Runs           int64      `json:"runs"`
	Succeeded      int64      `json:"succeeded"`
	Failed         int64      `json:"failed"`
	Superseded     int64      `json:"superseded"`
	LastError      *string    `json:"lastError,omitempty"`
}

// RefreshState describes the committed aggregate and any refresh in flight.
type RefreshState struct {
	InProgress  bool       `json:"inProgress"`
	Message     string     `json:"message"`
	Version     uint64     `json:"version"`
	RefreshedAt *Timestamp `json:"refreshedAt,omitempty"`
	Labels      []string   `json:"labels"`
}

// SourceOutcome is the result of the last refresh for one source.
type SourceOutcome struct {
	Source    string     `json:"source"`
	Outcome   string     `json:"outcome"`
	Date      *Timestamp `json:"date,omitempty"`
	StepsBack int        `json:"stepsBack"`
	Sites     int        `json:"sites"`
	Located   int        `json:"located"`
	Error     *string    `json:"error,omitempty"`
}

// EndpointStatus represents the circuit breaker state of an upstream endpoint.
type EndpointStatus struct {
	Name          string       `json:"name"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	Requests      uint32       `json:"requests"`
	Failures      uint32       `json:"consecutiveFailures"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}
