package ai

import (
	"sync"
	"time"

	"github.com/sentryview/sentryview/internal/metrics"
)

// CircuitBreaker tracks per-provider consecutive failures. Process-wide and
// in-memory for the life of the orchestrator; reset on a successful call.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	states    map[string]*circuitState
	now       func() time.Time
}

type circuitState struct {
	failures  int
	openUntil time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		states:    make(map[string]*circuitState),
		now:       time.Now,
	}
}

// Allow reports whether the provider may be called (circuit not cooling down).
func (c *CircuitBreaker) Allow(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.states[name]
	if !ok {
		return true
	}
	if c.now().Before(s.openUntil) {
		return false
	}
	metrics.ProviderCircuitOpen.WithLabelValues(name).Set(0)
	return true
}

// RecordFailure bumps the consecutive-failure counter; at the threshold the
// circuit opens for one cooldown window. A failure after the window expires
// re-opens it immediately (half-open behavior).
func (c *CircuitBreaker) RecordFailure(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.states[name]
	if !ok {
		s = &circuitState{}
		c.states[name] = s
	}
	s.failures++
	if s.failures >= c.threshold {
		s.openUntil = c.now().Add(c.cooldown)
		metrics.ProviderCircuitOpen.WithLabelValues(name).Set(1)
	}
}

// RecordSuccess fully resets the provider's circuit.
func (c *CircuitBreaker) RecordSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.states, name)
	metrics.ProviderCircuitOpen.WithLabelValues(name).Set(0)
}

// Failures returns the current consecutive-failure count (for reporting).
func (c *CircuitBreaker) Failures(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[name]; ok {
		return s.failures
	}
	return 0
}
