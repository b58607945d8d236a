package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultMaxStepsBack is how many days before the requested date are tried.
	DefaultMaxStepsBack = 7

	// DefaultProbeTimeout bounds a single snapshot check.
	DefaultProbeTimeout = 4 * time.Second
)

// LocatorConfig holds configuration for the snapshot locator.
type LocatorConfig struct {
	// ProbeTimeout bounds each date attempt (default: 4s).
	ProbeTimeout time.Duration

	Logger  zerolog.Logger
	Metrics *Metrics
}

// Locator walks backward from a candidate date until a published snapshot
// is found.
type Locator struct {
	probeTimeout time.Duration
	logger       zerolog.Logger
	metrics      *Metrics
}

// NewLocator creates a new snapshot locator.
func NewLocator(cfg LocatorConfig) *Locator {
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	return &Locator{
		probeTimeout: probeTimeout,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
}

// Located is the outcome of a successful search.
type Located struct {
	Source    Source
	Date      time.Time
	StepsBack int

	// Snapshot is the payload fetched while probing.
	Snapshot *RawSnapshot
}

// Locate tries start, start-1d, ... start-maxStepsBack in order and returns
// the first date whose snapshot is present and non-empty. Absent and
// unreachable dates both step back. It returns an error wrapping
// ErrSnapshotsExhausted when every candidate fails, or the context error
// when ctx ends first.
func (l *Locator) Locate(ctx context.Context, source Source, fetcher SnapshotFetcher, start time.Time, maxStepsBack int) (*Located, error) {
	if maxStepsBack < 0 {
		maxStepsBack = 0
	}
	start = TruncateDay(start)

	ctx, span := tracer.Start(ctx, "forecast.Locate", trace.WithAttributes(
		attribute.String("forecast.source", string(source)),
		attribute.String("forecast.start", start.Format(time.DateOnly)),
		attribute.Int("forecast.max_steps_back", maxStepsBack),
	))
	defer span.End()

	logger := l.logger.With().Str("source", string(source)).Logger()

	var lastErr error
	for step := 0; step <= maxStepsBack; step++ {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "canceled")
			return nil, fmt.Errorf("locate %s: %w", source, err)
		}

		date := start.AddDate(0, 0, -step)
		raw, err := l.probe(ctx, fetcher, date)
		if err == nil {
			l.metrics.RecordProbe(source, "found")
			l.metrics.RecordLocated(source, step)
			span.SetAttributes(
				attribute.String("forecast.date", date.Format(time.DateOnly)),
				attribute.Int("forecast.steps_back", step),
			)
			logger.Debug().
				Str("date", date.Format(time.DateOnly)).
				Int("steps_back", step).
				Msg("snapshot located")
			return &Located{Source: source, Date: date, StepsBack: step, Snapshot: raw}, nil
		}

		lastErr = err
		if errors.Is(err, ErrSnapshotNotFound) {
			l.metrics.RecordProbe(source, "not_found")
			logger.Debug().Str("date", date.Format(time.DateOnly)).Msg("no snapshot for date")
			continue
		}
		if ctx.Err() != nil {
			continue
		}
		l.metrics.RecordProbe(source, "transient")
		logger.Warn().Err(err).Str("date", date.Format(time.DateOnly)).Msg("snapshot check failed")
	}

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "canceled")
		return nil, fmt.Errorf("locate %s: %w", source, err)
	}

	span.SetStatus(codes.Error, "exhausted")
	return nil, fmt.Errorf("%w: %s, %d days back from %s: %w",
		ErrSnapshotsExhausted, source, maxStepsBack, start.Format(time.DateOnly), lastErr)
}

func (l *Locator) probe(ctx context.Context, fetcher SnapshotFetcher, date time.Time) (*RawSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, l.probeTimeout)
	defer cancel()

	raw, err := fetcher.FetchSnapshot(ctx, date)
	if err != nil {
		return nil, err
	}
	if raw == nil || len(raw.Body) == 0 {
		return nil, ErrSnapshotNotFound
	}
	if raw.Date.IsZero() {
		raw.Date = date
	}
	return raw, nil
}
