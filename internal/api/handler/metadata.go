package handler

import (
	"net/http"
	"strconv"

	"github.com/aqforecast/aqforecast/internal/api/models"
	"github.com/aqforecast/aqforecast/internal/api/response"
	"github.com/aqforecast/aqforecast/internal/aqi"
	"github.com/aqforecast/aqforecast/internal/forecast"
)

// MetadataHandler handles metadata endpoints.
type MetadataHandler struct{}

// NewMetadataHandler creates a new MetadataHandler.
func NewMetadataHandler() *MetadataHandler {
	return &MetadataHandler{}
}

// GetEnums handles GET /v1/metadata/enums: accepted sources, pollutants and
// time slots, plus the category legend and its thresholds.
func (h *MetadataHandler) GetEnums(w http.ResponseWriter, r *http.Request) {
	var enums models.Enums
	for _, s := range forecast.AllSources() {
		enums.Sources = append(enums.Sources, string(s))
	}
	for _, p := range forecast.AllPollutants() {
		enums.Pollutants = append(enums.Pollutants, string(p))
	}
	for _, slot := range forecast.TimeSlots {
		enums.Slots = append(enums.Slots, models.Slot{Value: strconv.Itoa(int(slot)), Label: slot.Label()})
	}
	for _, c := range aqi.Categories() {
		enums.Categories = append(enums.Categories, toCategory(c))
	}
	for _, kind := range []aqi.Kind{aqi.KindAQI, aqi.KindPM} {
		enums.Scales = append(enums.Scales, models.Scale{Kind: string(kind), Bounds: aqi.Bounds(kind)})
	}
	response.JSON(w, r, http.StatusOK, enums)
}
