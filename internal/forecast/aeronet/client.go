// Package aeronet provides the snapshot adapter for the legacy AERONET air
// quality CGI endpoint, which serves a day's forecast as CSV wrapped in HTML.
package aeronet

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aqforecast/aqforecast/internal/forecast"
	"github.com/aqforecast/aqforecast/internal/provider/resilience"
	"github.com/aqforecast/aqforecast/internal/tabular"
)

// DefaultBaseURL is the legacy CGI endpoint.
const DefaultBaseURL = "https://aeronet.gsfc.nasa.gov/cgi-bin/web_print_air_quality_index"

// DefaultHeaderLines is the number of preamble lines before the CSV header.
const DefaultHeaderLines = 2

// Getter fetches a URL and returns the fully read response.
type Getter interface {
	Get(ctx context.Context, url string) (*resilience.Response, error)
}

// SnapshotErrorFunc reports whether a 200 payload is the endpoint's "no
// data" page rather than a snapshot.
type SnapshotErrorFunc func(payload []byte) bool

// ContainsError is the endpoint's failure signal: the page text contains
// "Error".
func ContainsError(payload []byte) bool {
	return bytes.Contains(payload, []byte("Error"))
}

// ClientConfig holds configuration for the legacy client.
type ClientConfig struct {
	// Source reported on snapshots (default: forecast.SourceAERONET).
	Source forecast.Source

	// BaseURL is the CGI endpoint (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient performs requests. If nil, a resilient client is created.
	HTTPClient Getter

	// IsSnapshotError detects "no data" pages (default: ContainsError).
	IsSnapshotError SnapshotErrorFunc

	// HeaderLines are skipped before the CSV header (default: 2).
	HeaderLines int

	Logger zerolog.Logger
}

// Client fetches and decodes legacy AERONET snapshots.
type Client struct {
	source          forecast.Source
	baseURL         string
	httpClient      Getter
	isSnapshotError SnapshotErrorFunc
	headerLines     int
	parser          *tabular.Parser
	logger          zerolog.Logger
}

// NewClient creates a new legacy AERONET client.
func NewClient(cfg ClientConfig) *Client {
	source := cfg.Source
	if source == "" {
		source = forecast.SourceAERONET
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	isSnapshotError := cfg.IsSnapshotError
	if isSnapshotError == nil {
		isSnapshotError = ContainsError
	}
	headerLines := cfg.HeaderLines
	if headerLines <= 0 {
		headerLines = DefaultHeaderLines
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.SnapshotClientConfig(string(source))
		rc.Logger = cfg.Logger
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		source:          source,
		baseURL:         baseURL,
		httpClient:      httpClient,
		isSnapshotError: isSnapshotError,
		headerLines:     headerLines,
		parser:          tabular.NewParser(cfg.Logger),
		logger:          cfg.Logger,
	}
}

// Source returns the source this client serves.
func (c *Client) Source() forecast.Source {
	return c.source
}

// Format returns forecast.FormatCSV.
func (c *Client) Format() forecast.Format {
	return forecast.FormatCSV
}

// SnapshotURL returns the query URL for date.
func (c *Client) SnapshotURL(date time.Time) string {
	date = date.UTC()
	q := url.Values{}
	q.Set("year", strconv.Itoa(date.Year()))
	q.Set("month", strconv.Itoa(int(date.Month())))
	q.Set("day", strconv.Itoa(date.Day()))
	return c.baseURL + "?" + q.Encode()
}

// FetchSnapshot queries the endpoint for date. The endpoint answers missing
// days with a 200 "Error" page, which is reported as
// forecast.ErrSnapshotNotFound.
func (c *Client) FetchSnapshot(ctx context.Context, date time.Time) (*forecast.RawSnapshot, error) {
	u := c.SnapshotURL(date)

	resp, err := c.httpClient.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetch %s snapshot: %w", c.source, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", forecast.ErrSnapshotNotFound, u)
	default:
		return nil, fmt.Errorf("fetch %s snapshot: unexpected status %d", c.source, resp.StatusCode)
	}

	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil, fmt.Errorf("%w: empty body at %s", forecast.ErrSnapshotNotFound, u)
	}
	if c.isSnapshotError(resp.Body) {
		c.logger.Debug().Str("url", u).Msg("endpoint reported no data")
		return nil, fmt.Errorf("%w: endpoint error page at %s", forecast.ErrSnapshotNotFound, u)
	}

	return &forecast.RawSnapshot{
		Source: c.source,
		Format: forecast.FormatCSV,
		Date:   forecast.TruncateDay(date),
		URL:    u,
		Body:   resp.Body,
	}, nil
}

// DecodeSnapshot extracts the CSV table from the page and converts rows to
// records. A page without a Site_Name column is malformed.
func (c *Client) DecodeSnapshot(raw *forecast.RawSnapshot) ([]forecast.Record, error) {
	text, err := TextContent(raw.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", forecast.ErrSnapshotMalformed, err)
	}
	table := SkipLines(text, c.headerLines)

	if !hasColumn(tabular.Headers(table), ColSiteName) {
		return nil, fmt.Errorf("%w: no %s column", forecast.ErrSnapshotMalformed, ColSiteName)
	}

	rows := c.parser.Parse(table)
	records, skipped := RowsToRecords(rows)
	if skipped > 0 {
		c.logger.Warn().
			Str("source", string(c.source)).
			Int("skipped", skipped).
			Int("decoded", len(records)).
			Msg("skipped rows without site or date")
	}
	return records, nil
}

func hasColumn(headers []string, name string) bool {
	for _, h := range headers {
		if h == name {
			return true
		}
	}
	return false
}
