package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aqforecast/aqforecast/internal/api/models"
	"github.com/aqforecast/aqforecast/internal/api/response"
	"github.com/aqforecast/aqforecast/internal/aqi"
	"github.com/aqforecast/aqforecast/internal/forecast"
)

// markerMaxAge is how long clients may cache read responses, in seconds.
const markerMaxAge = 60

// ForecastHandler serves the query façade.
type ForecastHandler struct {
	service *forecast.Service
	now     func() time.Time
}

// NewForecastHandler creates a new ForecastHandler. now defaults to
// time.Now and picks the default time slot.
func NewForecastHandler(service *forecast.Service, now func() time.Time) *ForecastHandler {
	if now == nil {
		now = time.Now
	}
	return &ForecastHandler{service: service, now: now}
}

// GetForecast handles GET /v1/forecast.
func (h *ForecastHandler) GetForecast(w http.ResponseWriter, r *http.Request) {
	agg := h.service.Current()
	status := h.service.Status()

	sources := make([]string, 0, len(agg.Sources))
	for _, s := range agg.Sources {
		sources = append(sources, string(s))
	}

	resp := models.Forecast{
		Version:     agg.Version,
		OK:          agg.OK,
		Status:      status.Message,
		InProgress:  status.InProgress,
		Labels:      agg.Labels[:],
		Sources:     sources,
		Sites:       len(agg.Readings),
		RefreshedAt: models.TimestampPtr(status.RefreshedAt),
	}
	if !agg.InitDate.IsZero() {
		resp.InitDate = dateString(&agg.InitDate)
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// ListSources handles GET /v1/sources.
func (h *ForecastHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	infos := h.service.Sources()
	items := make([]models.Source, 0, len(infos))
	for _, info := range infos {
		items = append(items, models.Source{
			Name:    string(info.Name),
			Format:  string(info.Format),
			Enabled: info.Enabled,
		})
	}
	response.JSON(w, r, http.StatusOK, models.SourceList{Items: items})
}

// Refresh handles POST /v1/refresh. The refresh runs within the request;
// a newer refresh started meanwhile makes this one return 409.
func (h *ForecastHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := decodeJSON(r, w, &req); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, r, "invalid refresh request", fieldErrors(err))
		return
	}

	sources := h.service.EnabledSources()
	if len(req.Sources) > 0 {
		sources = make([]forecast.Source, 0, len(req.Sources))
		for _, name := range req.Sources {
			src, err := forecast.ParseSource(name)
			if err != nil {
				response.BadRequest(w, r, err.Error(), []models.FieldError{{Field: "sources", Message: err.Error()}})
				return
			}
			sources = append(sources, src)
		}
	}

	var date time.Time
	if req.Date != "" {
		d, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			response.BadRequest(w, r, "date must be YYYY-MM-DD", nil)
			return
		}
		date = d
	}

	result, err := h.service.Refresh(r.Context(), sources, date)
	switch {
	case err == nil:
	case errors.Is(err, forecast.ErrNoProvider), errors.Is(err, forecast.ErrUnknownSource):
		response.BadRequest(w, r, err.Error(), nil)
		return
	case errors.Is(err, forecast.ErrRefreshSuperseded):
		response.RefreshSuperseded(w, r, "a newer refresh superseded this one")
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.RefreshInterrupted(w, r, "refresh canceled before it completed")
		return
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("refresh failed")
		response.InternalError(w, r, "refresh failed")
		return
	}

	response.JSON(w, r, http.StatusOK, models.RefreshResponse{
		Version:  result.Version,
		OK:       result.OK,
		Status:   result.Status,
		InitDate: dateString(result.InitDate),
		Labels:   result.Labels[:],
		Sources:  toSourceOutcomes(result.Sources),
		Duration: result.Duration.Round(time.Millisecond).String(),
	})
}

// Markers handles GET /v1/markers.
func (h *ForecastHandler) Markers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.MarkerQuery{
		Pollutant: q.Get("pollutant"),
		Slot:      q.Get("slot"),
		Source:    q.Get("source"),
	}
	if raw := q.Get("day"); raw != "" {
		day, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(w, r, "day must be an integer", []models.FieldError{{Field: "day", Message: "not an integer"}})
			return
		}
		query.Day = day
	}
	if err := validate.Struct(query); err != nil {
		response.BadRequest(w, r, "invalid marker query", fieldErrors(err))
		return
	}

	pollutant, err := pollutantParam(r, forecast.PollutantAQI)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	slot, err := slotParam(r, h.now())
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	var only forecast.Source
	if query.Source != "" {
		if only, err = forecast.ParseSource(query.Source); err != nil {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
	}

	agg := h.service.Current()
	markers := agg.Markers(pollutant, slot, query.Day)

	items := make([]models.Marker, 0, len(markers))
	for _, m := range markers {
		if only != "" && m.Key.Source != only {
			continue
		}
		items = append(items, models.Marker{
			Source:      string(m.Key.Source),
			Site:        m.Key.Site,
			DisplayName: m.DisplayName,
			Station:     m.Station,
			Date:        m.Date.Format(time.DateOnly),
			Point:       models.Point{Lat: m.Coordinate.Latitude, Lon: m.Coordinate.Longitude},
			Value:       m.Value,
			Category:    toCategory(m.Category),
		})
	}

	response.Cached(w, r, agg.Version, markerMaxAge, models.MarkerList{
		Pollutant: string(pollutant),
		Slot:      strconv.Itoa(int(slot)),
		Day:       query.Day,
		Label:     agg.Labels[query.Day],
		Items:     items,
	})
}

// SiteValue handles GET /v1/sites/{source}/{site}/value.
func (h *ForecastHandler) SiteValue(w http.ResponseWriter, r *http.Request) {
	agg, key, ok := h.lookup(w, r)
	if !ok {
		return
	}
	pollutant, err := pollutantParam(r, forecast.PollutantAQI)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	slot, err := slotParam(r, h.now())
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	day, err := dayParam(r)
	if err != nil {
		response.BadRequest(w, r, err.Error(), []models.FieldError{{Field: "day", Message: err.Error()}})
		return
	}

	resp := models.SiteValue{
		Source:      string(key.Source),
		Site:        key.Site,
		DisplayName: forecast.DisplayName(key.Site),
		Pollutant:   string(pollutant),
		Slot:        strconv.Itoa(int(slot)),
		Day:         day,
	}
	if v, ok := agg.ValueAtDay(key, pollutant, slot, day); ok {
		resp.Value = &v
		c := toCategory(aqi.Classify(v, aqi.KindFor(string(pollutant))))
		resp.Category = &c
	}
	response.Cached(w, r, agg.Version, markerMaxAge, resp)
}

// SiteSeries handles GET /v1/sites/{source}/{site}/series, the three-day
// daily AQI chart.
func (h *ForecastHandler) SiteSeries(w http.ResponseWriter, r *http.Request) {
	agg, key, ok := h.lookup(w, r)
	if !ok {
		return
	}
	points, ok := agg.SeriesFor(key)
	if !ok {
		response.NoForecast(w, r, key.String())
		return
	}

	out := make([]models.SeriesPoint, 0, len(points))
	for _, p := range points {
		out = append(out, models.SeriesPoint{Timestamp: models.Timestamp(p.Timestamp), Value: p.DailyAQI})
	}
	response.Cached(w, r, agg.Version, markerMaxAge, models.SiteSeries{
		Source:      string(key.Source),
		Site:        key.Site,
		DisplayName: forecast.DisplayName(key.Site),
		Pollutant:   string(forecast.PollutantDailyAQI),
		Points:      out,
	})
}

// SiteHourly handles GET /v1/sites/{source}/{site}/hourly, one point per
// time slot over the three forecast days.
func (h *ForecastHandler) SiteHourly(w http.ResponseWriter, r *http.Request) {
	agg, key, ok := h.lookup(w, r)
	if !ok {
		return
	}
	pollutant, err := pollutantParam(r, forecast.PollutantPM)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	points, ok := agg.SlotSeries(key, pollutant)
	if !ok {
		response.NoForecast(w, r, key.String())
		return
	}

	out := make([]models.SeriesPoint, 0, len(points))
	for _, p := range points {
		out = append(out, models.SeriesPoint{Timestamp: models.Timestamp(p.Timestamp), Value: p.Value})
	}
	response.Cached(w, r, agg.Version, markerMaxAge, models.SiteSeries{
		Source:      string(key.Source),
		Site:        key.Site,
		DisplayName: forecast.DisplayName(key.Site),
		Pollutant:   string(pollutant),
		Points:      out,
	})
}

// Classify handles GET /v1/classify?value=&pollutant=.
func (h *ForecastHandler) Classify(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("value")
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		response.BadRequest(w, r, "value must be a number", []models.FieldError{{Field: "value", Message: "not a number"}})
		return
	}
	pollutant, err := pollutantParam(r, forecast.PollutantAQI)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if pollutant.IsIndex() {
		value = math.Trunc(value)
	}

	response.JSON(w, r, http.StatusOK, models.Classification{
		Value:     value,
		Pollutant: string(pollutant),
		Category:  toCategory(aqi.Classify(value, aqi.KindFor(string(pollutant)))),
	})
}

// lookup resolves the site path parameters and checks the site exists in
// the committed aggregate.
func (h *ForecastHandler) lookup(w http.ResponseWriter, r *http.Request) (*forecast.Aggregate, forecast.SiteKey, bool) {
	key, err := siteKey(r)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return nil, key, false
	}
	agg := h.service.Current()
	if _, ok := agg.Series(key); !ok {
		response.NoForecast(w, r, key.String())
		return nil, key, false
	}
	return agg, key, true
}
