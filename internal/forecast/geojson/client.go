// Package geojson provides the snapshot adapter for sources that publish
// daily GeoJSON feature collections.
package geojson

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aqforecast/aqforecast/internal/forecast"
	"github.com/aqforecast/aqforecast/internal/provider/resilience"
)

// FileSuffix follows the YYYYMMDD date in snapshot file names.
const FileSuffix = "_forecast.geojson"

// Default base URLs of the published snapshot directories.
const (
	DoSBaseURL       = "https://aeronet.gsfc.nasa.gov/data_push/AQI/output_DoS_geoJSON/"
	AERONETBaseURL   = "https://aeronet.gsfc.nasa.gov/data_push/AQI/output_AERONET_geoJSON/"
	OpenAQBaseURL    = "https://aeronet.gsfc.nasa.gov/data_push/AQI/output_OpenAQ_geoJSON/"
	AfricanAQBaseURL = "https://aeronet.gsfc.nasa.gov/data_push/AQI/output_AAQE_geoJSON/"
)

// DefaultBaseURL returns the published directory for source, or "".
func DefaultBaseURL(source forecast.Source) string {
	switch source {
	case forecast.SourceDoS:
		return DoSBaseURL
	case forecast.SourceAERONET:
		return AERONETBaseURL
	case forecast.SourceOpenAQ:
		return OpenAQBaseURL
	case forecast.SourceAfricanAQ:
		return AfricanAQBaseURL
	default:
		return ""
	}
}

// Getter fetches a URL and returns the fully read response.
type Getter interface {
	Get(ctx context.Context, url string) (*resilience.Response, error)
}

// ClientConfig holds configuration for a GeoJSON snapshot client.
type ClientConfig struct {
	Source forecast.Source

	// BaseURL is the snapshot directory (defaults to DefaultBaseURL(Source)).
	BaseURL string

	// HTTPClient performs requests. If nil, a resilient client named after
	// the source is created.
	HTTPClient Getter

	Logger zerolog.Logger
}

// Client fetches and decodes one source's GeoJSON snapshots.
type Client struct {
	source     forecast.Source
	baseURL    string
	httpClient Getter
	decoder    *Decoder
	logger     zerolog.Logger
}

// NewClient creates a new GeoJSON snapshot client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL(cfg.Source)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.SnapshotClientConfig(string(cfg.Source))
		rc.Logger = cfg.Logger
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		source:     cfg.Source,
		baseURL:    baseURL,
		httpClient: httpClient,
		decoder:    NewDecoder(cfg.Logger),
		logger:     cfg.Logger,
	}
}

// Source returns the source this client serves.
func (c *Client) Source() forecast.Source {
	return c.source
}

// Format returns forecast.FormatGeoJSON.
func (c *Client) Format() forecast.Format {
	return forecast.FormatGeoJSON
}

// SnapshotURL returns the file URL for date.
func (c *Client) SnapshotURL(date time.Time) string {
	return c.baseURL + date.UTC().Format("20060102") + FileSuffix
}

// FetchSnapshot downloads the snapshot for date. 404/410 and empty bodies
// report forecast.ErrSnapshotNotFound.
func (c *Client) FetchSnapshot(ctx context.Context, date time.Time) (*forecast.RawSnapshot, error) {
	url := c.SnapshotURL(date)

	resp, err := c.httpClient.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s snapshot: %w", c.source, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone:
		return nil, fmt.Errorf("%w: %s", forecast.ErrSnapshotNotFound, url)
	default:
		return nil, fmt.Errorf("fetch %s snapshot: unexpected status %d", c.source, resp.StatusCode)
	}

	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil, fmt.Errorf("%w: empty body at %s", forecast.ErrSnapshotNotFound, url)
	}

	return &forecast.RawSnapshot{
		Source: c.source,
		Format: forecast.FormatGeoJSON,
		Date:   forecast.TruncateDay(date),
		URL:    url,
		Body:   resp.Body,
	}, nil
}

// DecodeSnapshot decodes raw into records.
func (c *Client) DecodeSnapshot(raw *forecast.RawSnapshot) ([]forecast.Record, error) {
	return c.decoder.Decode(raw.Body)
}
