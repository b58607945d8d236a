package forecast

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rs/zerolog"
)

// IngestorConfig holds configuration for the source ingestor.
type IngestorConfig struct {
	// Providers maps each source to its wire adapter.
	Providers map[Source]Provider

	// Coordinates supplies reference coordinates. Optional.
	Coordinates CoordinateSource

	Locator *Locator

	// MaxStepsBack bounds the backward walk. Zero tries only the requested
	// date; a negative value selects DefaultMaxStepsBack.
	MaxStepsBack int

	Logger  zerolog.Logger
	Metrics *Metrics
}

// Ingestor turns one source's located snapshot into per-site series.
type Ingestor struct {
	providers    map[Source]Provider
	coordinates  CoordinateSource
	locator      *Locator
	maxStepsBack int
	logger       zerolog.Logger
	metrics      *Metrics
}

// NewIngestor creates a new ingestor.
func NewIngestor(cfg IngestorConfig) *Ingestor {
	locator := cfg.Locator
	if locator == nil {
		locator = NewLocator(LocatorConfig{Logger: cfg.Logger, Metrics: cfg.Metrics})
	}
	maxStepsBack := cfg.MaxStepsBack
	if maxStepsBack < 0 {
		maxStepsBack = DefaultMaxStepsBack
	}
	return &Ingestor{
		providers:    maps.Clone(cfg.Providers),
		coordinates:  cfg.Coordinates,
		locator:      locator,
		maxStepsBack: maxStepsBack,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
}

// HasProvider reports whether source can be ingested.
func (i *Ingestor) HasProvider(source Source) bool {
	_, ok := i.providers[source]
	return ok
}

// SourceResult is one source's contribution to an aggregate.
type SourceResult struct {
	Source    Source
	Date      time.Time
	StepsBack int

	// Readings and Coords are keyed by normalized site name.
	Readings map[string]Series
	Coords   map[string]Coordinate
}

// Sites returns the number of sites with readings.
func (r *SourceResult) Sites() int {
	if r == nil {
		return 0
	}
	return len(r.Readings)
}

// Ingest locates the newest snapshot at or before date, decodes it and
// joins reference coordinates. A failed coordinate lookup is logged and the
// readings are kept without coordinates.
func (i *Ingestor) Ingest(ctx context.Context, source Source, date time.Time) (*SourceResult, error) {
	provider, ok := i.providers[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoProvider, source)
	}

	located, err := i.locator.Locate(ctx, source, provider, date, i.maxStepsBack)
	if err != nil {
		return nil, err
	}

	records, err := provider.DecodeSnapshot(located.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("decode %s snapshot %s: %w", source, located.Date.Format(time.DateOnly), err)
	}

	var reference map[string]Coordinate
	if i.coordinates != nil {
		reference, err = i.coordinates.Coordinates(ctx, source)
		if err != nil {
			i.logger.Warn().Err(err).Str("source", string(source)).Msg("coordinate reference unavailable")
		}
	}

	result := BuildSourceResult(located, records, reference)
	i.metrics.RecordIngest(source, result.Sites())

	i.logger.Info().
		Str("source", string(source)).
		Str("date", located.Date.Format(time.DateOnly)).
		Int("steps_back", located.StepsBack).
		Int("records", len(records)).
		Int("sites", result.Sites()).
		Int("located_sites", len(result.Coords)).
		Msg("source ingested")

	return result, nil
}

// BuildSourceResult groups records by normalized site name and orders each
// site's readings by date. Coordinates come from reference first and fall
// back to the record's own geometry.
func BuildSourceResult(located *Located, records []Record, reference map[string]Coordinate) *SourceResult {
	grouped := make(map[string][]*Reading)
	coords := make(map[string]Coordinate)

	for _, rec := range records {
		if rec.Reading == nil {
			continue
		}
		site := NormalizeSiteName(rec.Reading.SiteName)
		if site == "" {
			continue
		}
		grouped[site] = append(grouped[site], rec.Reading)

		if _, ok := coords[site]; ok {
			continue
		}
		if c, ok := reference[site]; ok && c.Valid() {
			coords[site] = c
		} else if rec.Coordinate != nil && rec.Coordinate.Valid() {
			coords[site] = *rec.Coordinate
		}
	}

	readings := make(map[string]Series, len(grouped))
	for site, rs := range grouped {
		readings[site] = NewSeries(rs)
	}

	return &SourceResult{
		Source:    located.Source,
		Date:      located.Date,
		StepsBack: located.StepsBack,
		Readings:  readings,
		Coords:    coords,
	}
}

// NewSeries sorts readings by ascending date, keeps the first reading of
// each date and truncates to SeriesLength. Input order is irrelevant.
func NewSeries(readings []*Reading) Series {
	sorted := slices.Clone(readings)
	slices.SortStableFunc(sorted, func(a, b *Reading) int {
		return a.Date.Compare(b.Date)
	})
	sorted = slices.CompactFunc(sorted, func(a, b *Reading) bool {
		return a.Date.Equal(b.Date)
	})
	if len(sorted) > SeriesLength {
		sorted = sorted[:SeriesLength]
	}
	return Series(sorted)
}
