package forecast

import (
	"sort"
	"time"

	"github.com/aqforecast/aqforecast/internal/aqi"
)

// Read queries run against one committed aggregate so a response never
// mixes two versions. Take the aggregate once with Service.Current.

// ValueAtDay returns key's value on forecast day (0, 1 or 2).
func (a *Aggregate) ValueAtDay(key SiteKey, pollutant Pollutant, slot TimeSlot, day int) (float64, bool) {
	series, ok := a.Series(key)
	if !ok {
		return 0, false
	}
	r := series.Day(day)
	if r == nil {
		return 0, false
	}
	return r.Value(pollutant, slot)
}

// SeriesFor returns three daily AQI points starting at the source's located
// date. Days without a reading or a DAILY_AQI field have a nil value.
func (a *Aggregate) SeriesFor(key SiteKey) ([SeriesLength]SeriesPoint, bool) {
	var points [SeriesLength]SeriesPoint

	series, ok := a.Series(key)
	if !ok {
		return points, false
	}
	init := a.SourceDates[key.Source]

	for i := range points {
		points[i].Timestamp = init.AddDate(0, 0, i)
		if r := series.Day(i); r != nil {
			if v, ok := r.DailyAQI(); ok {
				points[i].DailyAQI = &v
			}
		}
	}
	return points, true
}

// SlotSeries returns one point per time slot over the three forecast days,
// stamped at each slot's UTC clock time.
func (a *Aggregate) SlotSeries(key SiteKey, pollutant Pollutant) ([]SlotPoint, bool) {
	series, ok := a.Series(key)
	if !ok {
		return nil, false
	}
	init := a.SourceDates[key.Source]

	points := make([]SlotPoint, 0, SeriesLength*len(TimeSlots))
	for day := 0; day < SeriesLength; day++ {
		r := series.Day(day)
		base := init.AddDate(0, 0, day)
		for _, slot := range TimeSlots {
			p := SlotPoint{
				Timestamp: base.Add(time.Duration(slot.Hour())*time.Hour + time.Duration(slot.Minute())*time.Minute),
			}
			if r != nil {
				if v, ok := r.Value(pollutant, slot); ok {
					p.Value = &v
				}
			}
			points = append(points, p)
		}
	}
	return points, true
}

// Marker is one placeable site for the map renderer.
type Marker struct {
	Key         SiteKey      `json:"key"`
	DisplayName string       `json:"displayName"`
	Station     string       `json:"station,omitempty"`
	Date        time.Time    `json:"date"`
	Coordinate  Coordinate   `json:"coordinate"`
	Value       float64      `json:"value"`
	Category    aqi.Category `json:"category"`
}

// Markers returns every site that has both a coordinate and a value for
// pollutant at slot on day, ordered by source then site.
func (a *Aggregate) Markers(pollutant Pollutant, slot TimeSlot, day int) []Marker {
	kind := aqi.KindFor(string(pollutant))

	markers := make([]Marker, 0, len(a.Coords))
	for key, series := range a.Readings {
		coord, ok := a.Coordinate(key)
		if !ok {
			continue
		}
		r := series.Day(day)
		if r == nil {
			continue
		}
		v, ok := r.Value(pollutant, slot)
		if !ok {
			continue
		}
		markers = append(markers, Marker{
			Key:         key,
			DisplayName: DisplayName(key.Site),
			Station:     r.Station,
			Date:        r.Date,
			Coordinate:  coord,
			Value:       v,
			Category:    aqi.Classify(v, kind),
		})
	}

	sort.Slice(markers, func(i, j int) bool {
		if markers[i].Key.Source != markers[j].Key.Source {
			return markers[i].Key.Source < markers[j].Key.Source
		}
		return markers[i].Key.Site < markers[j].Key.Site
	})
	return markers
}
