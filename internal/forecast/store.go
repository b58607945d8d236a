package forecast

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Status messages shown to the renderer.
const (
	StatusInProgress = "Fetch in progress…"
	StatusLoaded     = "Data successfully loaded."
	StatusNoneFound  = "No data found in range."
	StatusNoData     = "API returned: No data available."
)

// LabelLayout formats forecast day labels.
const LabelLayout = "01/02/2006"

// Source outcomes recorded per refresh.
const (
	OutcomeLoaded    = "loaded"
	OutcomeExhausted = "exhausted"
	OutcomeMalformed = "malformed"
	OutcomeFailed    = "failed"
)

// SourceStatus is one source's outcome in a refresh.
type SourceStatus struct {
	Source    Source     `json:"source"`
	Outcome   string     `json:"outcome"`
	Date      *time.Time `json:"date,omitempty"`
	StepsBack int        `json:"stepsBack"`
	Sites     int        `json:"sites"`
	Located   int        `json:"located"`
	Error     string     `json:"error,omitempty"`
}

// Aggregate is an immutable view of every enabled source's readings. A new
// Aggregate is built for each refresh and never modified after commit.
type Aggregate struct {
	Version     uint64
	RefreshedAt time.Time

	// Sources lists the enabled sources in canonical order.
	Sources []Source

	// InitDate is the seed source's located date. Zero when every source
	// failed.
	InitDate time.Time
	Labels   [SeriesLength]string
	Fallback bool

	Readings    map[SiteKey]Series
	Coords      map[SiteKey]Coordinate
	SourceDates map[Source]time.Time
	Statuses    []SourceStatus

	OK     bool
	Status string
}

// FallbackLabels are shown when no source produced a snapshot.
func FallbackLabels() [SeriesLength]string {
	var labels [SeriesLength]string
	for i := range labels {
		labels[i] = fmt.Sprintf("Day %d (Fallback)", i+1)
	}
	return labels
}

// DayLabels formats initDate and the following days as MM/DD/YYYY.
func DayLabels(initDate time.Time) [SeriesLength]string {
	var labels [SeriesLength]string
	for i := range labels {
		labels[i] = initDate.AddDate(0, 0, i).Format(LabelLayout)
	}
	return labels
}

// SourceOutcome is the settled result of one source in a refresh.
type SourceOutcome struct {
	Source Source
	Result *SourceResult
	Err    error
}

// NewAggregate merges settled source outcomes, given in canonical order,
// into a fresh aggregate. Labels follow the first source that produced a
// snapshot. Failed sources contribute no entries.
func NewAggregate(version uint64, outcomes []SourceOutcome, now time.Time) *Aggregate {
	agg := &Aggregate{
		Version:     version,
		RefreshedAt: now,
		Sources:     make([]Source, 0, len(outcomes)),
		Readings:    make(map[SiteKey]Series),
		Coords:      make(map[SiteKey]Coordinate),
		SourceDates: make(map[Source]time.Time),
		Statuses:    make([]SourceStatus, 0, len(outcomes)),
	}

	exhausted := 0
	for _, o := range outcomes {
		agg.Sources = append(agg.Sources, o.Source)
		status := SourceStatus{Source: o.Source}

		switch {
		case o.Err != nil:
			status.Outcome = outcomeFor(o.Err)
			status.Error = o.Err.Error()
			if status.Outcome == OutcomeExhausted {
				exhausted++
			}
		case o.Result != nil:
			r := o.Result
			date := r.Date
			status.Outcome = OutcomeLoaded
			status.Date = &date
			status.StepsBack = r.StepsBack
			status.Sites = r.Sites()
			status.Located = len(r.Coords)

			agg.SourceDates[o.Source] = r.Date
			if agg.InitDate.IsZero() {
				agg.InitDate = r.Date
			}
			for site, series := range r.Readings {
				agg.Readings[SiteKey{Site: site, Source: o.Source}] = series
			}
			for site, c := range r.Coords {
				agg.Coords[SiteKey{Site: site, Source: o.Source}] = c
			}
		default:
			status.Outcome = OutcomeFailed
		}

		agg.Statuses = append(agg.Statuses, status)
	}

	if agg.InitDate.IsZero() {
		agg.Labels = FallbackLabels()
		agg.Fallback = true
	} else {
		agg.Labels = DayLabels(agg.InitDate)
	}

	switch {
	case len(agg.Readings) > 0:
		agg.OK = true
		agg.Status = StatusLoaded
	case len(outcomes) > 0 && exhausted == len(outcomes):
		agg.Status = StatusNoneFound
	default:
		agg.Status = StatusNoData
	}

	return agg
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrSnapshotsExhausted):
		return OutcomeExhausted
	case errors.Is(err, ErrSnapshotMalformed):
		return OutcomeMalformed
	default:
		return OutcomeFailed
	}
}

// Series returns the readings for key.
func (a *Aggregate) Series(key SiteKey) (Series, bool) {
	s, ok := a.Readings[key]
	return s, ok
}

// Coordinate returns the coordinate for key.
func (a *Aggregate) Coordinate(key SiteKey) (Coordinate, bool) {
	c, ok := a.Coords[key]
	return c, ok
}

// Store holds the committed aggregate. Commits replace the whole aggregate
// atomically; readers always see a complete one.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[Aggregate]
}

// NewStore creates a store holding an empty, uncommitted aggregate.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&Aggregate{
		Labels:      FallbackLabels(),
		Fallback:    true,
		Readings:    map[SiteKey]Series{},
		Coords:      map[SiteKey]Coordinate{},
		SourceDates: map[Source]time.Time{},
	})
	return s
}

// Current returns the latest committed aggregate.
func (s *Store) Current() *Aggregate {
	return s.current.Load()
}

// Commit installs agg if it is newer than the current aggregate and
// returns ErrRefreshSuperseded otherwise.
func (s *Store) Commit(agg *Aggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.current.Load(); agg.Version <= cur.Version {
		return fmt.Errorf("%w: version %d, committed %d", ErrRefreshSuperseded, agg.Version, cur.Version)
	}
	s.current.Store(agg)
	return nil
}
