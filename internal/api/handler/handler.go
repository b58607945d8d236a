// Package handler provides HTTP handlers for the forecast API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aqforecast/aqforecast/internal/api/models"
	"github.com/aqforecast/aqforecast/internal/aqi"
	"github.com/aqforecast/aqforecast/internal/forecast"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

var validate = validator.New()

// decodeJSON reads an optional JSON body into dst. An empty body leaves dst
// untouched.
func decodeJSON(r *http.Request, w http.ResponseWriter, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// fieldErrors flattens validator errors into problem field errors. Other
// errors become a single entry without a field.
func fieldErrors(err error) []models.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []models.FieldError{{Message: err.Error()}}
	}

	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg := "failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out = append(out, models.FieldError{
			Field:   strings.ToLower(fe.Field()),
			Message: msg,
			Code:    fe.Tag(),
		})
	}
	return out
}

// siteKey reads the {source} and {site} path parameters.
func siteKey(r *http.Request) (forecast.SiteKey, error) {
	rawSource, err := url.PathUnescape(chi.URLParam(r, "source"))
	if err != nil {
		return forecast.SiteKey{}, err
	}
	source, err := forecast.ParseSource(rawSource)
	if err != nil {
		return forecast.SiteKey{}, err
	}
	site, err := url.PathUnescape(chi.URLParam(r, "site"))
	if err != nil {
		return forecast.SiteKey{}, err
	}
	if strings.TrimSpace(site) == "" {
		return forecast.SiteKey{}, errors.New("site is required")
	}
	return forecast.NewSiteKey(site, source), nil
}

// pollutantParam reads ?pollutant=, falling back to def.
func pollutantParam(r *http.Request, def forecast.Pollutant) (forecast.Pollutant, error) {
	raw := r.URL.Query().Get("pollutant")
	if raw == "" {
		return def, nil
	}
	return forecast.ParsePollutant(raw)
}

// slotParam reads ?slot=, falling back to the slot nearest to now.
func slotParam(r *http.Request, now time.Time) (forecast.TimeSlot, error) {
	raw := r.URL.Query().Get("slot")
	if raw == "" {
		return forecast.NearestTimeSlot(now), nil
	}
	return forecast.ParseTimeSlot(raw)
}

// dayParam reads ?day= as a forecast day index.
func dayParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("day")
	if raw == "" {
		return 0, nil
	}
	day, err := strconv.Atoi(raw)
	if err != nil || day < 0 || day >= forecast.SeriesLength {
		return 0, fmt.Errorf("day must be between 0 and %d", forecast.SeriesLength-1)
	}
	return day, nil
}

func toCategory(c aqi.Category) models.Category {
	return models.Category{
		Level:     int(c.Level),
		Label:     c.Label,
		FillColor: c.FillColor,
		TextColor: c.TextColor,
	}
}

func toSourceOutcomes(statuses []forecast.SourceStatus) []models.SourceOutcome {
	out := make([]models.SourceOutcome, 0, len(statuses))
	for _, s := range statuses {
		o := models.SourceOutcome{
			Source:    string(s.Source),
			Outcome:   s.Outcome,
			Date:      models.TimestampPtr(s.Date),
			StepsBack: s.StepsBack,
			Sites:     s.Sites,
			Located:   s.Located,
		}
		if s.Error != "" {
			msg := s.Error
			o.Error = &msg
		}
		out = append(out, o)
	}
	return out
}

func dateString(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.Format(time.DateOnly)
	return &s
}
