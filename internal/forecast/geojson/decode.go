package geojson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aqforecast/aqforecast/internal/forecast"
)

// Property names with a fixed meaning. Every other numeric property is a
// pollutant field.
const (
	PropStation  = "Station"
	PropSiteName = "Site_Name"
	PropDate     = "UTC_DATE"
)

var metadataProps = map[string]bool{
	PropStation:  true,
	PropSiteName: true,
	PropDate:     true,
	"Lat":        true,
	"Lon":        true,
	"Forecast":   true,
}

// Exporters write missing values as bare NaN, which is not JSON.
var bareNaN = regexp.MustCompile(`([:\[,]\s*)-?NaN\b`)

type featureCollection struct {
	Type     string     `json:"type"`
	Features *[]feature `json:"features"`
}

type feature struct {
	Type       string         `json:"type"`
	Geometry   *geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Decoder converts feature collections into forecast records.
type Decoder struct {
	logger zerolog.Logger
}

// NewDecoder creates a decoder that logs skipped features to logger.
func NewDecoder(logger zerolog.Logger) *Decoder {
	return &Decoder{logger: logger}
}

// Decode parses body. A body that is not a feature collection, or has no
// features member, is reported as forecast.ErrSnapshotMalformed. Features
// without a site name or a parseable UTC_DATE are skipped.
func (d *Decoder) Decode(body []byte) ([]forecast.Record, error) {
	body = bareNaN.ReplaceAll(body, []byte("${1}null"))

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var fc featureCollection
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("%w: %w", forecast.ErrSnapshotMalformed, err)
	}
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%w: type %q", forecast.ErrSnapshotMalformed, fc.Type)
	}
	if fc.Features == nil {
		return nil, fmt.Errorf("%w: missing features", forecast.ErrSnapshotMalformed)
	}

	records := make([]forecast.Record, 0, len(*fc.Features))
	skipped := 0
	for i, f := range *fc.Features {
		rec, ok := d.record(f)
		if !ok {
			skipped++
			d.logger.Debug().Int("feature", i).Msg("skipping feature without site or date")
			continue
		}
		records = append(records, rec)
	}

	if skipped > 0 {
		d.logger.Warn().
			Int("skipped", skipped).
			Int("decoded", len(records)).
			Msg("skipped unusable features")
	}
	return records, nil
}

func (d *Decoder) record(f feature) (forecast.Record, bool) {
	site, _ := stringProp(f.Properties[PropSiteName])
	if strings.TrimSpace(site) == "" {
		return forecast.Record{}, false
	}
	rawDate, _ := stringProp(f.Properties[PropDate])
	date, err := forecast.ParseDate(rawDate)
	if err != nil {
		return forecast.Record{}, false
	}
	station, _ := stringProp(f.Properties[PropStation])

	fields := make(map[string]float64)
	for name, v := range f.Properties {
		if metadataProps[name] {
			continue
		}
		if n, ok := numberProp(v); ok {
			fields[name] = n
		}
	}

	rec := forecast.Record{Reading: &forecast.Reading{
		Station:  station,
		SiteName: site,
		Date:     date,
		Fields:   fields,
	}}

	if g := f.Geometry; g != nil && len(g.Coordinates) >= 2 {
		c := forecast.Coordinate{Latitude: g.Coordinates[1], Longitude: g.Coordinates[0]}
		if c.Valid() {
			rec.Coordinate = &c
		}
	}
	return rec, true
}

func stringProp(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

func numberProp(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}
