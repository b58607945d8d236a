// Package aqi classifies air quality readings into health categories.
package aqi

import "strings"

// Kind selects the threshold table used for classification.
type Kind string

const (
	KindAQI Kind = "AQI"
	KindPM  Kind = "PM"
)

// KindFor maps a pollutant field name or type ("PM", "AQI", "DAILY_AQI",
// "_3HR_PM_CONC_CNN(1330)") to its threshold table.
func KindFor(pollutant string) Kind {
	if strings.Contains(strings.ToUpper(pollutant), "PM") {
		return KindPM
	}
	return KindAQI
}

// Level is the ordinal health category, Good being the lowest.
type Level int

const (
	LevelGood Level = iota
	LevelModerate
	LevelUnhealthySensitive
	LevelUnhealthy
	LevelVeryUnhealthy
	LevelHazardous
)

// Category is the display classification of a single reading.
type Category struct {
	Level     Level  `json:"level"`
	Label     string `json:"label"`
	FillColor string `json:"fillColor"`
	TextColor string `json:"textColor"`
}

var categories = [...]Category{
	LevelGood:               {Level: LevelGood, Label: "Good", FillColor: "green", TextColor: "white"},
	LevelModerate:           {Level: LevelModerate, Label: "Moderate", FillColor: "yellow", TextColor: "black"},
	LevelUnhealthySensitive: {Level: LevelUnhealthySensitive, Label: "Unhealthy for sensitive groups", FillColor: "orange", TextColor: "black"},
	LevelUnhealthy:          {Level: LevelUnhealthy, Label: "Unhealthy", FillColor: "red", TextColor: "white"},
	LevelVeryUnhealthy:      {Level: LevelVeryUnhealthy, Label: "Very unhealthy", FillColor: "purple", TextColor: "white"},
	LevelHazardous:          {Level: LevelHazardous, Label: "Hazardous", FillColor: "maroon", TextColor: "white"},
}

// Upper bounds (inclusive) for every level below Hazardous.
var (
	aqiBounds = [...]float64{50, 100, 150, 200, 300}
	pmBounds  = [...]float64{12, 35, 55, 150, 250}
)

// Classify maps a reading to its health category. Values above the last
// bound are Hazardous.
func Classify(value float64, kind Kind) Category {
	bounds := aqiBounds
	if kind == KindPM {
		bounds = pmBounds
	}

	for i, upper := range bounds {
		if value <= upper {
			return categories[i]
		}
	}
	return categories[LevelHazardous]
}

// Categories returns all categories in ascending severity, for legends.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories[:])
	return out
}

// Bounds returns the inclusive upper bound of each non-hazardous level for kind.
func Bounds(kind Kind) []float64 {
	if kind == KindPM {
		return append([]float64(nil), pmBounds[:]...)
	}
	return append([]float64(nil), aqiBounds[:]...)
}
