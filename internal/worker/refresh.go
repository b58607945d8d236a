// Package worker runs forecast refreshes in the background, on a schedule and
// on demand from a Pub/Sub subscription.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aqforecast/aqforecast/internal/forecast"
)

// DefaultRefreshTimeout bounds one background refresh.
const DefaultRefreshTimeout = 2 * time.Minute

// Refresher is the part of forecast.Service the worker drives.
type Refresher interface {
	Refresh(ctx context.Context, sources []forecast.Source, date time.Time) (*forecast.RefreshResult, error)
	EnabledSources() []forecast.Source
}

// RefreshJob runs forecast refreshes and keeps running totals.
type RefreshJob struct {
	refresher Refresher
	timeout   time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	metrics RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	TotalRefreshes      int64
	SuccessfulRefreshes int64
	FailedRefreshes     int64
	SupersededRefreshes int64

	LastRefreshAt       time.Time
	LastRefreshDuration time.Duration
	TotalDuration       time.Duration
	LastError           string
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Refresher Refresher
	Logger    zerolog.Logger

	// Timeout bounds each run. Default: DefaultRefreshTimeout.
	Timeout time.Duration

	// Now supplies "today" when a run has no explicit date.
	Now func() time.Time
}

// NewRefreshJob creates a new refresh job.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRefreshTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &RefreshJob{
		refresher: cfg.Refresher,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

// Run refreshes sources as of date. Empty sources means the currently enabled
// sources; a zero date means today in UTC. A refresh that completes with no
// usable data counts as failed but returns its result without error.
func (j *RefreshJob) Run(ctx context.Context, sources []forecast.Source, date time.Time) (*forecast.RefreshResult, error) {
	if len(sources) == 0 {
		sources = j.refresher.EnabledSources()
	}
	if date.IsZero() {
		date = forecast.TruncateDay(j.now())
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	logger := j.logger.With().
		Str("date", date.Format(time.DateOnly)).
		Int("sources", len(sources)).
		Logger()
	logger.Info().Msg("starting forecast refresh")

	start := time.Now()
	result, err := j.refresher.Refresh(ctx, sources, date)
	duration := time.Since(start)

	j.record(result, err, duration)

	switch {
	case errors.Is(err, forecast.ErrRefreshSuperseded):
		logger.Info().Dur("duration", duration).Msg("forecast refresh superseded")
	case err != nil:
		logger.Error().Err(err).Dur("duration", duration).Msg("forecast refresh failed")
	case !result.OK:
		logger.Warn().Str("status", result.Status).Dur("duration", duration).Msg("forecast refresh found no data")
	default:
		logger.Info().
			Uint64("version", result.Version).
			Str("status", result.Status).
			Dur("duration", duration).
			Msg("forecast refresh completed")
	}
	return result, err
}

func (j *RefreshJob) record(result *forecast.RefreshResult, err error, duration time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.metrics.TotalRefreshes++
	j.metrics.LastRefreshAt = j.now()
	j.metrics.LastRefreshDuration = duration
	j.metrics.TotalDuration += duration

	switch {
	case errors.Is(err, forecast.ErrRefreshSuperseded):
		j.metrics.SupersededRefreshes++
	case err != nil:
		j.metrics.FailedRefreshes++
		j.metrics.LastError = err.Error()
	case !result.OK:
		j.metrics.FailedRefreshes++
		j.metrics.LastError = result.Status
	default:
		j.metrics.SuccessfulRefreshes++
		j.metrics.LastError = ""
	}
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.metrics
}
