package models

// RefreshRequest selects the sources to load and the nominal date. Empty
// sources keep the currently enabled set; an empty date means today (UTC).
type RefreshRequest struct {
	Sources []string `json:"sources" validate:"omitempty,max=8,dive,required"`
	Date    string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// RefreshResponse reports the committed refresh.
type RefreshResponse struct {
	Version  uint64          `json:"version"`
	OK       bool            `json:"ok"`
	Status   string          `json:"status"`
	InitDate *string         `json:"initDate,omitempty"`
	Labels   []string        `json:"labels"`
	Sources  []SourceOutcome `json:"sources"`
	Duration string          `json:"duration"`
}

// Forecast describes the committed aggregate.
type Forecast struct {
	Version     uint64     `json:"version"`
	OK          bool       `json:"ok"`
	Status      string     `json:"status"`
	InProgress  bool       `json:"inProgress"`
	InitDate    *string    `json:"initDate,omitempty"`
	Labels      []string   `json:"labels"`
	Sources     []string   `json:"sources"`
	Sites       int        `json:"sites"`
	RefreshedAt *Timestamp `json:"refreshedAt,omitempty"`
}

// Source is one forecast source and whether it is enabled.
type Source struct {
	Name    string `json:"name"`
	Format  string `json:"format,omitempty"`
	Enabled bool   `json:"enabled"`
}

// SourceList wraps the source listing.
type SourceList struct {
	Items []Source `json:"items"`
}

// MarkerQuery selects the marker feed. Zero values pick AQI, the time slot
// nearest to now and the model day.
type MarkerQuery struct {
	Pollutant string `validate:"omitempty,oneof=PM AQI DAILY_AQI pm aqi daily_aqi"`
	Slot      string `validate:"omitempty,max=5"`
	Day       int    `validate:"gte=0,lte=2"`
	Source    string `validate:"omitempty,max=32"`
}

// Category is a health classification.
type Category struct {
	Level     int    `json:"level"`
	Label     string `json:"label"`
	FillColor string `json:"fillColor"`
	TextColor string `json:"textColor"`
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Marker is one placeable site.
type Marker struct {
	Source      string   `json:"source"`
	Site        string   `json:"site"`
	DisplayName string   `json:"displayName"`
	Station     string   `json:"station,omitempty"`
	Date        string   `json:"date"`
	Point       Point    `json:"point"`
	Value       float64  `json:"value"`
	Category    Category `json:"category"`
}

// MarkerList is the marker feed for one pollutant, slot and day.
type MarkerList struct {
	Pollutant string   `json:"pollutant"`
	Slot      string   `json:"slot"`
	Day       int      `json:"day"`
	Label     string   `json:"label"`
	Items     []Marker `json:"items"`
}

// SiteValue is a single reading.
type SiteValue struct {
	Source      string    `json:"source"`
	Site        string    `json:"site"`
	DisplayName string    `json:"displayName"`
	Pollutant   string    `json:"pollutant"`
	Slot        string    `json:"slot"`
	Day         int       `json:"day"`
	Value       *float64  `json:"value"`
	Category    *Category `json:"category,omitempty"`
}

// SeriesPoint is one chart point; a nil value marks a gap.
type SeriesPoint struct {
	Timestamp Timestamp `json:"timestamp"`
	Value     *float64  `json:"value"`
}

// SiteSeries is a chart series for one site.
type SiteSeries struct {
	Source      string        `json:"source"`
	Site        string        `json:"site"`
	DisplayName string        `json:"displayName"`
	Pollutant   string        `json:"pollutant"`
	Points      []SeriesPoint `json:"points"`
}

// Classification is the result of classifying a single value.
type Classification struct {
	Value     float64  `json:"value"`
	Pollutant string   `json:"pollutant"`
	Category  Category `json:"category"`
}

// Enums lists the values accepted by the API, and the category legend.
type Enums struct {
	Sources    []string   `json:"sources"`
	Pollutants []string   `json:"pollutants"`
	Slots      []Slot     `json:"slots"`
	Categories []Category `json:"categories"`
	Scales     []Scale    `json:"scales"`
}

// Slot is a time slot code with its panel label.
type Slot struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Scale holds the inclusive upper bound of each category below Hazardous
// for one threshold table.
type Scale struct {
	Kind   string    `json:"kind"`
	Bounds []float64 `json:"bounds"`
}
