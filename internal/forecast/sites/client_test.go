package sites_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqforecast/aqforecast/internal/forecast"
	"github.com/aqforecast/aqforecast/internal/forecast/sites"
	"github.com/aqforecast/aqforecast/internal/provider/resilience"
	"github.com/aqforecast/aqforecast/internal/tabular"
)

const combinedCSV = `sitename,Latitude,Longitude,Forecast
New_Delhi,28.63,77.17,DoS Missions
New_Delhi,28.60,77.20,AERONET
Lagos,6.45,3.39,
Nowhere,nan,nan,AERONET
,1,1,AERONET
`

func newReferenceServer(t *testing.T, body string, failing *atomic.Bool, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func testHTTPClient() *resilience.Client {
	cfg := resilience.DefaultClientConfig("reference")
	cfg.MaxRetries = 0
	return resilience.NewClient(cfg)
}

func TestClient_CoordinatesPerSource(t *testing.T) {
	var failing atomic.Bool
	var hits atomic.Int32
	server := newReferenceServer(t, combinedCSV, &failing, &hits)

	client := sites.NewClient(sites.ClientConfig{
		URLs: map[forecast.Source]string{
			forecast.SourceDoS:     server.URL,
			forecast.SourceAERONET: server.URL,
		},
		HTTPClient: testHTTPClient(),
		Logger:     zerolog.New(io.Discard),
	})

	dos, err := client.Coordinates(context.Background(), forecast.SourceDoS)
	require.NoError(t, err)
	assert.Equal(t, forecast.Coordinate{Latitude: 28.63, Longitude: 77.17}, dos["new_delhi"])
	assert.Contains(t, dos, "lagos")

	aeronet, err := client.Coordinates(context.Background(), forecast.SourceAERONET)
	require.NoError(t, err)
	assert.Equal(t, forecast.Coordinate{Latitude: 28.60, Longitude: 77.20}, aeronet["new_delhi"])
	assert.NotContains(t, aeronet, "nowhere")
	assert.Len(t, aeronet, 2)

	assert.Equal(t, int32(1), hits.Load())

	none, err := client.Coordinates(context.Background(), forecast.SourceOpenAQ)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClient_StaleIfError(t *testing.T) {
	var failing atomic.Bool
	var hits atomic.Int32
	server := newReferenceServer(t, combinedCSV, &failing, &hits)

	client := sites.NewClient(sites.ClientConfig{
		URLs:            map[forecast.Source]string{forecast.SourceDoS: server.URL},
		HTTPClient:      testHTTPClient(),
		CacheTTL:        time.Nanosecond,
		StaleIfErrorTTL: time.Hour,
		Logger:          zerolog.New(io.Discard),
	})

	_, err := client.Coordinates(context.Background(), forecast.SourceDoS)
	require.NoError(t, err)

	failing.Store(true)
	time.Sleep(time.Millisecond)

	coords, err := client.Coordinates(context.Background(), forecast.SourceDoS)
	require.NoError(t, err)
	assert.Contains(t, coords, "new_delhi")
	assert.Equal(t, int32(2), hits.Load())

	cold := sites.NewClient(sites.ClientConfig{
		URLs:       map[forecast.Source]string{forecast.SourceDoS: server.URL},
		HTTPClient: testHTTPClient(),
		Logger:     zerolog.New(io.Discard),
	})
	_, err = cold.Coordinates(context.Background(), forecast.SourceDoS)
	assert.ErrorIs(t, err, sites.ErrReferenceUnavailable)
}

func newGatedServer(t *testing.T, body string, release <-chan struct{}, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClient_SlowDatasetDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	var slowHits, fastHits atomic.Int32
	var failing atomic.Bool
	slow := newGatedServer(t, combinedCSV, release, &slowHits)
	fast := newReferenceServer(t, combinedCSV, &failing, &fastHits)
	defer close(release)

	client := sites.NewClient(sites.ClientConfig{
		URLs: map[forecast.Source]string{
			forecast.SourceDoS:     slow.URL,
			forecast.SourceAERONET: fast.URL,
		},
		HTTPClient: testHTTPClient(),
		Logger:     zerolog.New(io.Discard),
	})

	go func() {
		_, _ = client.Coordinates(context.Background(), forecast.SourceDoS)
	}()
	require.Eventually(t, func() bool { return slowHits.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	coords, err := client.Coordinates(ctx, forecast.SourceAERONET)
	require.NoError(t, err)
	assert.Contains(t, coords, "new_delhi")
}

func TestClient_ConcurrentMissesShareOneFetch(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	server := newGatedServer(t, combinedCSV, release, &hits)

	client := sites.NewClient(sites.ClientConfig{
		URLs:       map[forecast.Source]string{forecast.SourceDoS: server.URL},
		HTTPClient: testHTTPClient(),
		Logger:     zerolog.New(io.Discard),
	})

	errs := make(chan error, 4)
	for range 4 {
		go func() {
			_, err := client.Coordinates(context.Background(), forecast.SourceDoS)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)

	for range 4 {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_CanceledCallerStopsWaiting(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	server := newGatedServer(t, combinedCSV, release, &hits)
	defer close(release)

	client := sites.NewClient(sites.ClientConfig{
		URLs:       map[forecast.Source]string{forecast.SourceDoS: server.URL},
		HTTPClient: testHTTPClient(),
		Logger:     zerolog.New(io.Discard),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Coordinates(ctx, forecast.SourceDoS)
	assert.ErrorIs(t, err, sites.ErrReferenceUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseReference_GeoJSON(t *testing.T) {
	body := `{"type":"FeatureCollection","features":[
		{"geometry":{"coordinates":[3.39,6.45]},"properties":{"sitename":"Lagos","Forecast":"African AQE"}},
		{"geometry":{"coordinates":[]},"properties":{"sitename":"Broken","Forecast":"African AQE"}}
	]}`

	parsed, err := sites.ParseReference([]byte(body), tabular.NewParser(zerolog.New(io.Discard)))
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, "lagos", parsed[0].Name)
	assert.Equal(t, forecast.SourceAfricanAQ, parsed[0].Source)
	assert.Equal(t, 6.45, parsed[0].Coordinate.Latitude)

	idx := sites.Index(parsed, forecast.SourceOpenAQ)
	assert.Empty(t, idx)
}

func TestParseReference_Invalid(t *testing.T) {
	parser := tabular.NewParser(zerolog.New(io.Discard))

	_, err := sites.ParseReference([]byte(""), parser)
	assert.Error(t, err)

	_, err = sites.ParseReference([]byte("name,lat,lon\na,1,2"), parser)
	assert.Error(t, err)

	_, err = sites.ParseReference([]byte("{not json"), parser)
	assert.Error(t, err)
}

func TestParseReference_PlainCSV(t *testing.T) {
	parsed, err := sites.ParseReference([]byte("sitename,Latitude,Longitude\r\nGSFC,38.99,-76.84\r\n"),
		tabular.NewParser(zerolog.New(io.Discard)))
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, forecast.Source(""), parsed[0].Source)

	idx := sites.Index(parsed, forecast.SourceAERONET)
	assert.Equal(t, forecast.Coordinate{Latitude: 38.99, Longitude: -76.84}, idx["gsfc"])
}
