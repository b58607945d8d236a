// Package sites loads the site coordinate reference datasets that forecast
// readings are joined against.
package sites

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aqforecast/aqforecast/internal/forecast"
	"github.com/aqforecast/aqforecast/internal/tabular"
)

// Reference column names.
const (
	ColSiteName  = "sitename"
	ColLatitude  = "Latitude"
	ColLongitude = "Longitude"

	// ColForecast names the source a row belongs to in combined datasets.
	ColForecast = "Forecast"
)

// Site is one reference row.
type Site struct {
	Name       string
	Source     forecast.Source
	Coordinate forecast.Coordinate
}

// ParseReference reads a reference dataset. CSV with sitename, Latitude and
// Longitude columns and GeoJSON point collections with sitename properties
// are both accepted. Rows without a name or with an invalid coordinate are
// dropped.
func ParseReference(body []byte, parser *tabular.Parser) ([]Site, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty reference dataset")
	}
	if trimmed[0] == '{' {
		return parseGeoJSON(trimmed)
	}
	return parseCSV(string(trimmed), parser)
}

func parseCSV(raw string, parser *tabular.Parser) ([]Site, error) {
	headers := tabular.Headers(raw)
	if !contains(headers, ColSiteName) || !contains(headers, ColLatitude) || !contains(headers, ColLongitude) {
		return nil, fmt.Errorf("reference csv needs %s, %s and %s columns", ColSiteName, ColLatitude, ColLongitude)
	}

	rows := parser.Parse(raw)
	out := make([]Site, 0, len(rows))
	for _, row := range rows {
		name, _ := row.Get(ColSiteName)
		lat, latErr := strconv.ParseFloat(row[ColLatitude], 64)
		lon, lonErr := strconv.ParseFloat(row[ColLongitude], 64)
		if name == "" || latErr != nil || lonErr != nil {
			continue
		}
		site := Site{
			Name:       forecast.NormalizeSiteName(name),
			Coordinate: forecast.Coordinate{Latitude: lat, Longitude: lon},
		}
		if f, ok := row.Get(ColForecast); ok && f != "" {
			site.Source = forecast.Source(f)
		}
		if site.Coordinate.Valid() {
			out = append(out, site)
		}
	}
	return out, nil
}

type referenceCollection struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			SiteName string `json:"sitename"`
			Forecast string `json:"Forecast"`
		} `json:"properties"`
	} `json:"features"`
}

func parseGeoJSON(body []byte) ([]Site, error) {
	var fc referenceCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, fmt.Errorf("decode reference geojson: %w", err)
	}

	out := make([]Site, 0, len(fc.Features))
	for _, f := range fc.Features {
		name := forecast.NormalizeSiteName(f.Properties.SiteName)
		if name == "" || len(f.Geometry.Coordinates) < 2 {
			continue
		}
		site := Site{
			Name:       name,
			Source:     forecast.Source(strings.TrimSpace(f.Properties.Forecast)),
			Coordinate: forecast.Coordinate{Latitude: f.Geometry.Coordinates[1], Longitude: f.Geometry.Coordinates[0]},
		}
		if site.Coordinate.Valid() {
			out = append(out, site)
		}
	}
	return out, nil
}

// Index returns the coordinates that apply to source keyed by normalized
// site name. Rows tagged with a different source are ignored; untagged rows
// apply to every source. The first row for a name wins.
func Index(sites []Site, source forecast.Source) map[string]forecast.Coordinate {
	out := make(map[string]forecast.Coordinate, len(sites))
	for _, s := range sites {
		if s.Source != "" && !strings.EqualFold(string(s.Source), string(source)) {
			continue
		}
		if _, ok := out[s.Name]; !ok {
			out[s.Name] = s.Coordinate
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
