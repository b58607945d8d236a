// Package forecast resolves, ingests and aggregates multi-source air quality
// forecast snapshots.
package forecast

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Forecast errors.
var (
	ErrSnapshotNotFound   = errors.New("snapshot not found")
	ErrSnapshotMalformed  = errors.New("snapshot malformed")
	ErrSnapshotsExhausted = errors.New("no snapshot found in range")
	ErrUnknownSource      = errors.New("unknown forecast source")
	ErrNoProvider         = errors.New("no provider configured for source")
	ErrRefreshSuperseded  = errors.New("refresh superseded by a newer refresh")
)

// Source identifies an independent forecast publisher.
type Source string

const (
	SourceDoS       Source = "DoS Missions"
	SourceAERONET   Source = "AERONET"
	SourceOpenAQ    Source = "Open AQ"
	SourceAfricanAQ Source = "African AQE"
)

// AllSources returns every known source in display order.
func AllSources() []Source {
	return []Source{SourceDoS, SourceAERONET, SourceOpenAQ, SourceAfricanAQ}
}

// ParseSource matches name case-insensitively against the known sources.
func ParseSource(name string) (Source, error) {
	for _, s := range AllSources() {
		if strings.EqualFold(string(s), strings.TrimSpace(name)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, name)
}

// Format is the wire format of a source's snapshot payload.
type Format string

const (
	FormatGeoJSON Format = "geojson"
	FormatCSV     Format = "csv"
)

// Pollutant selects a reading field family.
type Pollutant string

const (
	PollutantPM       Pollutant = "PM"
	PollutantAQI      Pollutant = "AQI"
	PollutantDailyAQI Pollutant = "DAILY_AQI"
)

// AllPollutants returns the selectable pollutant types.
func AllPollutants() []Pollutant {
	return []Pollutant{PollutantAQI, PollutantPM, PollutantDailyAQI}
}

// ParsePollutant matches name case-insensitively against AllPollutants.
func ParsePollutant(name string) (Pollutant, error) {
	for _, p := range AllPollutants() {
		if strings.EqualFold(string(p), strings.TrimSpace(name)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown pollutant %q", name)
}

// IsIndex reports whether values of p are integer category indexes.
func (p Pollutant) IsIndex() bool {
	return p == PollutantAQI || p == PollutantDailyAQI
}

// TimeSlot is a 3-hour UTC anchor expressed as HHMM without leading zero
// (130, 430, ... 2230), matching the forecast field name markers.
type TimeSlot int

// TimeSlots lists the eight forecast anchors.
var TimeSlots = [...]TimeSlot{130, 430, 730, 1030, 1330, 1630, 1930, 2230}

// ParseTimeSlot accepts "1330", "(1330)", "0130" or "13:30".
func ParseTimeSlot(s string) (TimeSlot, error) {
	s = strings.Trim(strings.TrimSpace(s), "()")
	s = strings.ReplaceAll(s, ":", "")
	s = strings.TrimLeft(s, "0")

	for _, slot := range TimeSlots {
		if fmt.Sprint(int(slot)) == s {
			return slot, nil
		}
	}
	return 0, fmt.Errorf("invalid time slot %q", s)
}

// Marker returns the field name fragment for the slot, e.g. "(1330)".
func (t TimeSlot) Marker() string {
	return fmt.Sprintf("(%d)", int(t))
}

// Hour returns the UTC hour of the slot.
func (t TimeSlot) Hour() int {
	return int(t) / 100
}

// Minute returns the minute of the slot.
func (t TimeSlot) Minute() int {
	return int(t) % 100
}

// Label returns the panel label, e.g. "13:30 UTC".
func (t TimeSlot) Label() string {
	return fmt.Sprintf("%d:%02d UTC", t.Hour(), t.Minute())
}

// NearestTimeSlot returns the slot closest to t's UTC clock time. Ties
// resolve to the earlier slot.
func NearestTimeSlot(t time.Time) TimeSlot {
	t = t.UTC()
	clock := t.Hour()*60 + t.Minute()

	best := TimeSlots[0]
	bestDiff := abs(best.minuteOfDay() - clock)
	for _, slot := range TimeSlots[1:] {
		if d := abs(slot.minuteOfDay() - clock); d < bestDiff {
			best, bestDiff = slot, d
		}
	}
	return best
}

func (t TimeSlot) minuteOfDay() int {
	return t.Hour()*60 + t.Minute()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// NormalizeSiteName returns the identity form of a site name.
func NormalizeSiteName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DisplayName converts a normalized site name to its title-cased display
// form: "new_delhi__us" becomes "New Delhi Us".
func DisplayName(site string) string {
	site = strings.ReplaceAll(site, "__", "_")
	words := strings.Split(site, "_")
	caser := cases.Title(language.Und, cases.NoLower)
	for i, w := range words {
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}

// SiteKey identifies a site within one source.
type SiteKey struct {
	Site   string `json:"site"`
	Source Source `json:"source"`
}

// NewSiteKey normalizes site and builds the key.
func NewSiteKey(site string, source Source) SiteKey {
	return SiteKey{Site: NormalizeSiteName(site), Source: source}
}

// String returns "source/site".
func (k SiteKey) String() string {
	return string(k.Source) + "/" + k.Site
}

// Coordinate is a WGS84 point.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate is a finite point on the globe.
func (c Coordinate) Valid() bool {
	return !math.IsNaN(c.Latitude) && !math.IsNaN(c.Longitude) &&
		c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// Reading is one site's forecast for one UTC day from one source.
type Reading struct {
	Station  string
	SiteName string
	Date     time.Time

	// Fields holds numeric pollutant values keyed by their wire field name,
	// e.g. "_3HR_AQI(1330)", "_3HR_PM_CONC_CNN(430)", "DAILY_AQI".
	Fields map[string]float64
}

// FieldFor returns the wire field name holding pollutant at slot. Names are
// matched by substring: the pollutant kind and the slot marker must both
// appear. DAILY_AQI ignores slot.
func (r *Reading) FieldFor(pollutant Pollutant, slot TimeSlot) (string, bool) {
	for _, name := range slices.Sorted(maps.Keys(r.Fields)) {
		if matchesField(name, pollutant, slot) {
			return name, true
		}
	}
	return "", false
}

func matchesField(name string, pollutant Pollutant, slot TimeSlot) bool {
	if pollutant == PollutantDailyAQI {
		return strings.Contains(name, string(PollutantDailyAQI))
	}
	if strings.Contains(name, string(PollutantDailyAQI)) {
		return false
	}
	return strings.Contains(name, string(pollutant)) && strings.Contains(name, slot.Marker())
}

// Value returns the reading's value for pollutant at slot. Index pollutants
// are truncated to whole numbers.
func (r *Reading) Value(pollutant Pollutant, slot TimeSlot) (float64, bool) {
	name, ok := r.FieldFor(pollutant, slot)
	if !ok {
		return 0, false
	}
	v := r.Fields[name]
	if pollutant.IsIndex() {
		v = math.Trunc(v)
	}
	return v, true
}

// DailyAQI returns the day's DAILY_AQI value.
func (r *Reading) DailyAQI() (float64, bool) {
	return r.Value(PollutantDailyAQI, 0)
}

// SeriesLength is the number of forecast days in a snapshot.
const SeriesLength = 3

// Series is a site's readings for one source ordered by ascending date.
// Index 0 is the model initialization day.
type Series []*Reading

// Day returns the reading for day index i, or nil.
func (s Series) Day(i int) *Reading {
	if i < 0 || i >= len(s) {
		return nil
	}
	return s[i]
}

// Record is one decoded snapshot row before grouping.
type Record struct {
	Reading    *Reading
	Coordinate *Coordinate
}

// RawSnapshot is an undecoded payload located for one source and date.
type RawSnapshot struct {
	Source Source
	Format Format
	Date   time.Time
	URL    string
	Body   []byte
}

// SourceConfig describes where a source publishes.
type SourceConfig struct {
	Name           Source
	Format         Format
	BaseURL        string
	CoordinatesURL string
}

// SourceInfo is the façade's view of a source.
type SourceInfo struct {
	Name    Source `json:"name"`
	Format  Format `json:"format"`
	Enabled bool   `json:"enabled"`
}

// SeriesPoint is one day of the daily AQI chart series.
type SeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	DailyAQI  *float64  `json:"dailyAqi"`
}

// SlotPoint is one time slot of the per-slot chart series.
type SlotPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     *float64  `json:"value"`
}

// TruncateDay returns midnight UTC of t's UTC calendar day.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"02:01:2006",
	"20060102",
}

// ParseDate parses the UTC_DATE formats seen across sources.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TruncateDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
