package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// EndpointHealth is the health of one remote forecast endpoint.
type EndpointHealth struct {
	Name          string           `json:"name"`
	CircuitState  gobreaker.State  `json:"-"`
	State         string           `json:"state"`
	Counts        gobreaker.Counts `json:"-"`
	LastSuccessAt *time.Time       `json:"lastSuccessAt,omitempty"`
	LastFailureAt *time.Time       `json:"lastFailureAt,omitempty"`
	LastError     string           `json:"lastError,omitempty"`
}

// IsHealthy returns true when the breaker is closed.
func (h *EndpointHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded returns true when the breaker is half-open.
func (h *EndpointHealth) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// IsUnhealthy returns true when the breaker is open.
func (h *EndpointHealth) IsUnhealthy() bool {
	return h.CircuitState == gobreaker.StateOpen
}

// Registry tracks clients by name and their latest outcomes.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*registeredClient
}

type registeredClient struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*registeredClient),
	}
}

// Register adds or replaces a client.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = &registeredClient{client: client}
}

// Unregister removes a client.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, name)
}

// RecordSuccess stamps a successful fetch.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[name]; ok {
		now := time.Now()
		c.lastSuccessAt = &now
	}
}

// RecordFailure stamps a failed fetch.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[name]; ok {
		now := time.Now()
		c.lastFailureAt = &now
		if err != nil {
			c.lastError = err.Error()
		}
	}
}

// Health returns the health of one client, or nil when unknown.
func (r *Registry) Health(name string) *EndpointHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[name]
	if !ok {
		return nil
	}
	return c.health(name)
}

// AllHealth returns every client's health sorted by name.
func (r *Registry) AllHealth() []*EndpointHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*EndpointHealth, 0, len(r.clients))
	for name, c := range r.clients {
		out = append(out, c.health(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (c *registeredClient) health(name string) *EndpointHealth {
	state := c.client.CircuitBreakerState()
	return &EndpointHealth{
		Name:          name,
		CircuitState:  state,
		State:         state.String(),
		Counts:        c.client.CircuitBreakerCounts(),
		LastSuccessAt: c.lastSuccessAt,
		LastFailureAt: c.lastFailureAt,
		LastError:     c.lastError,
	}
}
