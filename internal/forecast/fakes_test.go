package forecast_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aqforecast/aqforecast/internal/forecast"
)

// fakeProvider publishes snapshots for a fixed set of dates. Records are
// served as-is by DecodeSnapshot.
type fakeProvider struct {
	mu        sync.Mutex
	available map[string][]forecast.Record
	failing   map[string]error
	malformed bool
	calls     []string
	delay     time.Duration
	block     chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		available: make(map[string][]forecast.Record),
		failing:   make(map[string]error),
	}
}

func (p *fakeProvider) publish(date time.Time, records ...forecast.Record) *fakeProvider {
	p.available[date.Format("20060102")] = records
	return p
}

func (p *fakeProvider) fail(date time.Time, err error) *fakeProvider {
	p.failing[date.Format("20060102")] = err
	return p
}

func (p *fakeProvider) Format() forecast.Format { return forecast.FormatGeoJSON }

func (p *fakeProvider) FetchSnapshot(ctx context.Context, date time.Time) (*forecast.RawSnapshot, error) {
	id := date.Format("20060102")

	p.mu.Lock()
	p.calls = append(p.calls, id)
	block := p.block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err, ok := p.failing[id]; ok {
		return nil, err
	}
	if _, ok := p.available[id]; !ok {
		return nil, forecast.ErrSnapshotNotFound
	}
	return &forecast.RawSnapshot{Date: date, URL: id, Body: []byte(id)}, nil
}

func (p *fakeProvider) DecodeSnapshot(raw *forecast.RawSnapshot) ([]forecast.Record, error) {
	if p.malformed {
		return nil, fmt.Errorf("%w: missing features", forecast.ErrSnapshotMalformed)
	}
	return p.available[raw.URL], nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fakeCoordinates struct {
	bySource map[forecast.Source]map[string]forecast.Coordinate
	err      error
}

func (c *fakeCoordinates) Coordinates(_ context.Context, source forecast.Source) (map[string]forecast.Coordinate, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.bySource[source], nil
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func reading(site string, date time.Time, fields map[string]float64) forecast.Record {
	return forecast.Record{Reading: &forecast.Reading{
		Station:  "ST-" + site,
		SiteName: site,
		Date:     date,
		Fields:   fields,
	}}
}

func threeDays(site string, init time.Time, aqi1330 float64) []forecast.Record {
	return []forecast.Record{
		reading(site, init, map[string]float64{"_3HR_AQI(1330)": aqi1330, "_3HR_PM_CONC_CNN(1330)": 21.4, "DAILY_AQI": 60}),
		reading(site, init.AddDate(0, 0, 1), map[string]float64{"_3HR_AQI(1330)": aqi1330 + 1, "DAILY_AQI": 61}),
		reading(site, init.AddDate(0, 0, 2), map[string]float64{"_3HR_AQI(1330)": aqi1330 + 2, "DAILY_AQI": 62}),
	}
}
