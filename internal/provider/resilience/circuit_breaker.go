// Package resilience wraps outbound forecast fetches with timeouts, bounded
// retries and a circuit breaker per remote endpoint.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the breaker in logs and health reports.
	Name string

	// MaxRequests allowed through while half-open. Default: 1
	MaxRequests uint32

	// Interval clears counts while closed. Default: 0 (never)
	Interval time.Duration

	// Timeout is how long the breaker stays open. Default: 30 seconds
	Timeout time.Duration

	// ReadyToTrip decides when to open. Default: DefaultReadyToTrip
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange is called on every transition.
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig returns the breaker used for reference datasets
// and other endpoints fetched by URL rather than by date. Only unreachable or
// erroring hosts count as failures; 404 does not.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: DefaultReadyToTrip,
	}
}

// DefaultReadyToTrip opens after 8 consecutive failures.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	return counts.ConsecutiveFailures >= 8
}

// SnapshotCircuitBreakerConfig returns the breaker used for dated snapshot
// endpoints. It counts outcomes for health reporting but never opens: each
// snapshot search walks back over every candidate date regardless of earlier
// failures, and one search must not shorten the next. Counts reset hourly.
func SnapshotCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Hour,
		Timeout:     30 * time.Second,
		ReadyToTrip: NeverTrip,
	}
}

// NeverTrip keeps a breaker closed.
func NeverTrip(gobreaker.Counts) bool {
	return false
}

// NewCircuitBreaker creates a typed circuit breaker from cfg.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ReadyToTrip == nil {
		cfg.ReadyToTrip = DefaultReadyToTrip
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		ReadyToTrip:   cfg.ReadyToTrip,
		OnStateChange: cfg.OnStateChange,
	})
}
