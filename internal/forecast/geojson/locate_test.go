package geojson_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqforecast/aqforecast/internal/forecast"
	"github.com/aqforecast/aqforecast/internal/forecast/geojson"
	"github.com/aqforecast/aqforecast/internal/provider/resilience"
)

// unstableServer answers 503 for every snapshot except published ones.
func unstableServer(t *testing.T, published map[string]bool, hits *atomic.Int32) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		name := strings.TrimSuffix(r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:], geojson.FileSuffix)
		if published[name] {
			_, _ = w.Write([]byte(sampleSnapshot))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)
	return server.URL
}

func snapshotHTTPClient() *resilience.Client {
	cfg := resilience.SnapshotClientConfig("DoS Missions")
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 2 * time.Millisecond
	return resilience.NewClient(cfg)
}

func TestLocate_WalksBackThroughServerErrors(t *testing.T) {
	var hits atomic.Int32
	baseURL := unstableServer(t, map[string]bool{"20240605": true}, &hits)

	httpClient := snapshotHTTPClient()
	client := geojson.NewClient(geojson.ClientConfig{
		Source:     forecast.SourceDoS,
		BaseURL:    baseURL,
		HTTPClient: httpClient,
		Logger:     zerolog.New(io.Discard),
	})
	locator := forecast.NewLocator(forecast.LocatorConfig{Logger: zerolog.New(io.Discard)})

	start := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	located, err := locator.Locate(context.Background(), forecast.SourceDoS, client, start, 7)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC), located.Date)
	assert.Equal(t, 5, located.StepsBack)

	// Five failing dates, each tried twice.
	assert.Equal(t, int32(11), hits.Load())
	assert.Equal(t, gobreaker.StateClosed, httpClient.CircuitBreakerState())
}

func TestLocate_FailedSearchDoesNotShortenTheNext(t *testing.T) {
	var hits atomic.Int32
	baseURL := unstableServer(t, map[string]bool{"20240601": true}, &hits)

	client := geojson.NewClient(geojson.ClientConfig{
		Source:     forecast.SourceDoS,
		BaseURL:    baseURL,
		HTTPClient: snapshotHTTPClient(),
		Logger:     zerolog.New(io.Discard),
	})
	locator := forecast.NewLocator(forecast.LocatorConfig{Logger: zerolog.New(io.Discard)})

	_, err := locator.Locate(context.Background(), forecast.SourceDoS, client,
		time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC), 7)
	require.ErrorIs(t, err, forecast.ErrSnapshotsExhausted)
	assert.NotErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(16), hits.Load())

	located, err := locator.Locate(context.Background(), forecast.SourceDoS, client,
		time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, located.StepsBack)
}
