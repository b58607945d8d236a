package forecast

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ServiceConfig holds configuration for the forecast service.
type ServiceConfig struct {
	// Providers maps each source to its wire adapter. Sources without a
	// provider cannot be enabled.
	Providers map[Source]Provider

	// Coordinates supplies reference coordinates. Optional.
	Coordinates CoordinateSource

	// DefaultSources are enabled before the first refresh (default: all
	// configured sources).
	DefaultSources []Source

	// MaxStepsBack bounds the backward snapshot search. Zero tries only the
	// requested date; a negative value selects DefaultMaxStepsBack.
	MaxStepsBack int

	// ProbeTimeout bounds each snapshot check (default: 4s).
	ProbeTimeout time.Duration

	// Concurrency limits concurrently ingested sources (default: 4).
	Concurrency int

	Logger  zerolog.Logger
	Metrics *Metrics

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Service is the query façade over the aggregation store.
type Service struct {
	ingestor       *Ingestor
	store          *Store
	logger         zerolog.Logger
	metrics        *Metrics
	concurrency    int
	now            func() time.Time
	defaultSources []Source

	mu       sync.Mutex
	started  uint64
	inFlight uint64
	cancelFn context.CancelFunc
}

// NewService creates a new forecast service.
func NewService(cfg ServiceConfig) *Service {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	locator := NewLocator(LocatorConfig{
		ProbeTimeout: cfg.ProbeTimeout,
		Logger:       cfg.Logger,
		Metrics:      cfg.Metrics,
	})
	ingestor := NewIngestor(IngestorConfig{
		Providers:    cfg.Providers,
		Coordinates:  cfg.Coordinates,
		Locator:      locator,
		MaxStepsBack: cfg.MaxStepsBack,
		Logger:       cfg.Logger,
		Metrics:      cfg.Metrics,
	})

	s := &Service{
		ingestor:    ingestor,
		store:       NewStore(),
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		concurrency: concurrency,
		now:         now,
	}

	defaults := cfg.DefaultSources
	if len(defaults) == 0 {
		defaults = AllSources()
	}
	for _, src := range canonicalOrder(defaults) {
		if ingestor.HasProvider(src) {
			s.defaultSources = append(s.defaultSources, src)
		}
	}
	return s
}

// RefreshResult reports a committed refresh.
type RefreshResult struct {
	Version  uint64               `json:"version"`
	OK       bool                 `json:"ok"`
	Status   string               `json:"status"`
	InitDate *time.Time           `json:"initDate,omitempty"`
	Labels   [SeriesLength]string `json:"labels"`
	Sources  []SourceStatus       `json:"sources"`
	Duration time.Duration        `json:"-"`
}

// Refresh rebuilds the aggregate for sources as of date. Every source is
// located and ingested concurrently; the aggregate is committed once all of
// them settle. Starting a refresh cancels the one in flight, and a refresh
// that is no longer the latest returns ErrRefreshSuperseded without
// touching the store. A zero date means today (UTC).
func (s *Service) Refresh(ctx context.Context, sources []Source, date time.Time) (*RefreshResult, error) {
	for _, src := range sources {
		if !s.ingestor.HasProvider(src) {
			return nil, fmt.Errorf("%w: %s", ErrNoProvider, src)
		}
	}
	sources = canonicalOrder(sources)
	if date.IsZero() {
		date = s.now()
	}
	date = TruncateDay(date)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.started++
	seq := s.started
	if s.cancelFn != nil {
		s.cancelFn()
	}
	s.cancelFn = cancel
	s.inFlight = seq
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "forecast.Refresh", trace.WithAttributes(
		attribute.Int64("forecast.seq", int64(seq)),
		attribute.String("forecast.date", date.Format(time.DateOnly)),
		attribute.Int("forecast.sources", len(sources)),
	))
	defer span.End()

	logger := s.logger.With().Uint64("seq", seq).Logger()
	logger.Info().
		Str("date", date.Format(time.DateOnly)).
		Strs("sources", sourceNames(sources)).
		Msg("refresh started")

	start := time.Now()
	outcomes := s.ingestAll(ctx, sources, date)
	agg := NewAggregate(seq, outcomes, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if s.inFlight == seq {
			s.inFlight = 0
			s.cancelFn = nil
		}
	}()

	if seq != s.started {
		s.metrics.RecordRefresh("superseded", time.Since(start))
		span.SetStatus(codes.Error, "superseded")
		logger.Info().Uint64("latest", s.started).Msg("refresh superseded, result dropped")
		return nil, fmt.Errorf("%w: refresh %d, latest %d", ErrRefreshSuperseded, seq, s.started)
	}
	if err := ctx.Err(); err != nil {
		s.metrics.RecordRefresh("canceled", time.Since(start))
		span.SetStatus(codes.Error, "canceled")
		logger.Warn().Err(err).Msg("refresh canceled, result dropped")
		return nil, fmt.Errorf("refresh %d: %w", seq, err)
	}
	if err := s.store.Commit(agg); err != nil {
		s.metrics.RecordRefresh("superseded", time.Since(start))
		span.SetStatus(codes.Error, "superseded")
		return nil, err
	}

	duration := time.Since(start)
	outcome := "loaded"
	if !agg.OK {
		outcome = "empty"
		span.SetStatus(codes.Error, agg.Status)
		logger.Error().Dur("duration", duration).Str("status", agg.Status).Msg("refresh found no data")
	} else {
		logger.Info().
			Dur("duration", duration).
			Int("sites", len(agg.Readings)).
			Strs("labels", agg.Labels[:]).
			Msg("refresh committed")
	}
	s.metrics.RecordRefresh(outcome, duration)

	result := &RefreshResult{
		Version:  agg.Version,
		OK:       agg.OK,
		Status:   agg.Status,
		Labels:   agg.Labels,
		Sources:  agg.Statuses,
		Duration: duration,
	}
	if !agg.InitDate.IsZero() {
		d := agg.InitDate
		result.InitDate = &d
	}
	return result, nil
}

// ingestAll fans out over sources. Each goroutine stores its own outcome and
// returns nil so one source's failure never cancels the others.
func (s *Service) ingestAll(ctx context.Context, sources []Source, date time.Time) []SourceOutcome {
	outcomes := make([]SourceOutcome, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, src := range sources {
		g.Go(func() error {
			result, err := s.ingestor.Ingest(gctx, src, date)
			if err != nil {
				ev := s.logger.Warn()
				if errors.Is(err, context.Canceled) {
					ev = s.logger.Debug()
				}
				ev.Err(err).Str("source", string(src)).Msg("source skipped")
			}
			outcomes[i] = SourceOutcome{Source: src, Result: result, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// Current returns the committed aggregate.
func (s *Service) Current() *Aggregate {
	return s.store.Current()
}

// Ready reports whether a refresh has committed.
func (s *Service) Ready() bool {
	return s.store.Current().Version > 0
}

// StatusReport is the façade's status line.
type StatusReport struct {
	InProgress  bool                 `json:"inProgress"`
	Message     string               `json:"message"`
	Version     uint64               `json:"version"`
	RefreshedAt *time.Time           `json:"refreshedAt,omitempty"`
	Labels      [SeriesLength]string `json:"labels"`
	Sources     []SourceStatus       `json:"sources"`
}

// Status reports the latest committed outcome, or StatusInProgress while a
// refresh is running.
func (s *Service) Status() StatusReport {
	agg := s.store.Current()

	s.mu.Lock()
	inProgress := s.inFlight != 0
	s.mu.Unlock()

	report := StatusReport{
		InProgress: inProgress,
		Message:    agg.Status,
		Version:    agg.Version,
		Labels:     agg.Labels,
		Sources:    agg.Statuses,
	}
	if inProgress {
		report.Message = StatusInProgress
	}
	if !agg.RefreshedAt.IsZero() {
		t := agg.RefreshedAt
		report.RefreshedAt = &t
	}
	return report
}

// EnabledSources returns the sources of the committed aggregate, or the
// defaults before the first commit.
func (s *Service) EnabledSources() []Source {
	agg := s.store.Current()
	if agg.Version == 0 {
		return slices.Clone(s.defaultSources)
	}
	return slices.Clone(agg.Sources)
}

// Sources lists every known source with its enabled state.
func (s *Service) Sources() []SourceInfo {
	enabled := s.EnabledSources()
	out := make([]SourceInfo, 0, len(AllSources()))
	for _, src := range AllSources() {
		info := SourceInfo{Name: src, Enabled: slices.Contains(enabled, src)}
		if f, ok := s.ingestor.providers[src].(formatter); ok {
			info.Format = f.Format()
		}
		out = append(out, info)
	}
	return out
}

type formatter interface {
	Format() Format
}

// canonicalOrder dedupes sources and orders them as AllSources does.
func canonicalOrder(sources []Source) []Source {
	out := make([]Source, 0, len(sources))
	for _, src := range AllSources() {
		if slices.Contains(sources, src) {
			out = append(out, src)
		}
	}
	return out
}

func sourceNames(sources []Source) []string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = string(s)
	}
	return names
}
