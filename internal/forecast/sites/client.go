package sites

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/aqforecast/aqforecast/internal/forecast"
	"github.com/aqforecast/aqforecast/internal/provider/resilience"
	"github.com/aqforecast/aqforecast/internal/tabular"
)

// ErrReferenceUnavailable is returned when a reference dataset cannot be
// fetched and no usable cached copy exists.
var ErrReferenceUnavailable = errors.New("site reference unavailable")

// Getter fetches a URL and returns the fully read response.
type Getter interface {
	Get(ctx context.Context, url string) (*resilience.Response, error)
}

// ClientConfig holds configuration for the reference client.
type ClientConfig struct {
	// URLs maps each source to its reference dataset. Sources may share a
	// combined dataset with a Forecast column.
	URLs map[forecast.Source]string

	// HTTPClient performs requests. If nil, a resilient client is created.
	HTTPClient Getter

	// CacheTTL is how long a dataset is reused (default: 24 hours).
	CacheTTL time.Duration

	// StaleIfErrorTTL allows serving an expired dataset when refetching
	// fails (default: 7 days).
	StaleIfErrorTTL time.Duration

	Logger zerolog.Logger
}

// Client serves coordinate lookups from cached reference datasets.
type Client struct {
	urls            map[forecast.Source]string
	httpClient      Getter
	parser          *tabular.Parser
	cacheTTL        time.Duration
	staleIfErrorTTL time.Duration
	logger          zerolog.Logger

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]*cached
}

type cached struct {
	sites     []Site
	fetchedAt time.Time
	expiry    time.Time
}

// NewClient creates a new reference client.
func NewClient(cfg ClientConfig) *Client {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 24 * time.Hour
	}
	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 7 * 24 * time.Hour
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig("site-reference")
		rc.Timeout = 10 * time.Second
		rc.MaxRetries = 2
		rc.Logger = cfg.Logger
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		urls:            maps.Clone(cfg.URLs),
		httpClient:      httpClient,
		parser:          tabular.NewParser(cfg.Logger),
		cacheTTL:        cacheTTL,
		staleIfErrorTTL: staleIfErrorTTL,
		logger:          cfg.Logger,
		cache:           make(map[string]*cached),
	}
}

// Coordinates returns source's coordinates keyed by normalized site name.
// A source with no configured dataset yields an empty map.
func (c *Client) Coordinates(ctx context.Context, source forecast.Source) (map[string]forecast.Coordinate, error) {
	url, ok := c.urls[source]
	if !ok || url == "" {
		return map[string]forecast.Coordinate{}, nil
	}

	sites, err := c.load(ctx, url)
	if err != nil {
		return nil, err
	}
	return Index(sites, source), nil
}

func (c *Client) load(ctx context.Context, url string) ([]Site, error) {
	now := time.Now()

	c.mu.Lock()
	entry := c.cache[url]
	c.mu.Unlock()
	if entry != nil && now.Before(entry.expiry) {
		return entry.sites, nil
	}

	// Concurrent misses for one URL share a fetch. The fetch outlives any
	// single caller, so it runs without the caller's cancellation.
	ch := c.group.DoChan(url, func() (any, error) {
		sites, err := c.fetch(context.WithoutCancel(ctx), url)
		if err != nil {
			return nil, err
		}
		fetchedAt := time.Now()
		c.mu.Lock()
		c.cache[url] = &cached{sites: sites, fetchedAt: fetchedAt, expiry: fetchedAt.Add(c.cacheTTL)}
		c.mu.Unlock()
		c.logger.Debug().Str("url", url).Int("sites", len(sites)).Msg("site reference loaded")
		return sites, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrReferenceUnavailable, ctx.Err())
	}

	if res.Err != nil {
		if entry != nil && now.Before(entry.fetchedAt.Add(c.staleIfErrorTTL)) {
			c.logger.Warn().
				Err(res.Err).
				Str("url", url).
				Time("fetched_at", entry.fetchedAt).
				Msg("serving stale site reference")
			return entry.sites, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrReferenceUnavailable, res.Err)
	}

	return res.Val.([]Site), nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]Site, error) {
	resp, err := c.httpClient.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	return ParseReference(resp.Body, c.parser)
}
