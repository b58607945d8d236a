package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for resilient operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrBodyTooLarge is returned when a payload exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("response body exceeds size limit")
)

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies this client in the registry and breaker.
	Name string

	// Timeout bounds each HTTP attempt. Default: 4 seconds
	Timeout time.Duration

	// MaxRetries for 5xx and network errors within one fetch. Default: 1
	MaxRetries uint64

	// InitialInterval is the first retry backoff. Default: 200ms
	InitialInterval time.Duration

	// MaxInterval caps retry backoff. Default: 2 seconds
	MaxInterval time.Duration

	// MaxBodyBytes caps payload size. Default: 64 MiB
	MaxBodyBytes int64

	// CircuitBreaker overrides DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry receives success/failure records. Optional.
	Registry *Registry

	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper

	// Logger for breaker transitions.
	Logger zerolog.Logger
}

// DefaultClientConfig returns defaults with short timeouts, a single retry
// and DefaultCircuitBreakerConfig.
func DefaultClientConfig(name string) ClientConfig {
	cb := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         4 * time.Second,
		MaxRetries:      1,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxBodyBytes:    64 << 20,
		CircuitBreaker:  &cb,
	}
}

// SnapshotClientConfig returns DefaultClientConfig with a breaker that never
// opens, for clients that fetch dated snapshots. The locator bounds how many
// dates are tried, so the breaker only reports health.
func SnapshotClientConfig(name string) ClientConfig {
	cfg := DefaultClientConfig(name)
	cb := SnapshotCircuitBreakerConfig(name)
	cfg.CircuitBreaker = &cb
	return cfg
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client is an HTTP client with circuit breaker and retry logic.
type Client struct {
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*Response]
	registry       *Registry
	config         ClientConfig
}

// NewClient creates a new resilient client and registers it when a Registry
// is configured.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 4 * time.Second
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 64 << 20
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}
	if cbConfig.OnStateChange == nil {
		logger := cfg.Logger
		cbConfig.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		}
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		circuitBreaker: NewCircuitBreaker[*Response](cbConfig),
		registry:       cfg.Registry,
		config:         cfg,
	}

	if c.registry != nil {
		c.registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.config.Name
}

// Get fetches url and reads the whole body. Any status below 500 is returned
// as a Response without error so callers can tell "absent" (404) from
// "unreachable". 5xx and network errors are retried with exponential backoff
// and surface as errors once retries are spent.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var resp *Response
	operation := func() error {
		r, err := c.circuitBreaker.Execute(func() (*Response, error) {
			return c.attempt(ctx, url)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			if errors.Is(err, ErrBodyTooLarge) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		c.recordFailure(err)
		return nil, fmt.Errorf("get %s: %w", url, err)
	}

	c.recordSuccess()
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	r, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer r.Body.Close()

	if r.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 4096))
		return nil, &ServerError{StatusCode: r.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, c.config.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.config.MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}

	return &Response{StatusCode: r.StatusCode, Header: r.Header, Body: body}, nil
}

func (c *Client) recordSuccess() {
	if c.registry != nil {
		c.registry.RecordSuccess(c.config.Name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.registry != nil {
		c.registry.RecordFailure(c.config.Name, err)
	}
}

// ServerError represents an HTTP 5xx server error.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}
