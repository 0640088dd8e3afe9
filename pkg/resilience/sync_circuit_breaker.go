// Package resilience provides the fault tolerance primitives of the sync engine.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int32

const (
	StateClosed   CircuitState = iota // Normal operation, sync cycles run
	StateOpen                         // Cycles are skipped until the cooldown elapses
	StateHalfOpen                     // One probe cycle decides whether to close
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Execute while the breaker rejects work.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	Name             string        // Name for logging/metrics
	FailureThreshold int           // Consecutive failures before opening (default: 5)
	InitialCooldown  time.Duration // Cooldown after the first trip (default: 30s)
	MaxCooldown      time.Duration // Upper bound for the doubling cooldown (default: 300s)
	Now              func() time.Time
}

// DefaultCircuitBreakerConfig returns the sync engine defaults.
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		InitialCooldown:  30 * time.Second,
		MaxCooldown:      300 * time.Second,
	}
}

// CircuitBreaker gates whole sync cycles. Repeated cycle failures open it;
// each re-trip doubles the cooldown up to MaxCooldown.
type CircuitBreaker struct {
	name string

	mu                  sync.Mutex
	state               CircuitState
	consecutiveFailures int
	tripCount           int
	openedAt            time.Time

	failureThreshold int
	initialCooldown  time.Duration
	maxCooldown      time.Duration
	now              func() time.Time

	// Callbacks for monitoring
	onStateChange func(name string, from, to CircuitState)
}

// NewCircuitBreaker creates a new circuit breaker with the given config.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig("sync")
	}
	def := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.InitialCooldown <= 0 {
		cfg.InitialCooldown = def.InitialCooldown
	}
	if cfg.MaxCooldown <= 0 {
		cfg.MaxCooldown = def.MaxCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &CircuitBreaker{
		name:             cfg.Name,
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		initialCooldown:  cfg.InitialCooldown,
		maxCooldown:      cfg.MaxCooldown,
		now:              cfg.Now,
	}
}

// OnStateChange sets a callback for state changes. It fires exactly once
// per real transition, outside the breaker lock.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	cb.onStateChange = fn
	cb.mu.Unlock()
}

// Name returns the circuit breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state without evaluating the cooldown.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Cooldown is the doubling schedule: min(initial * 2^tripCount, max).
func (cb *CircuitBreaker) Cooldown(tripCount int) time.Duration {
	return cooldownFor(tripCount, cb.initialCooldown, cb.maxCooldown)
}

func cooldownFor(tripCount int, initial, max time.Duration) time.Duration {
	if tripCount < 0 {
		tripCount = 0
	}
	d := initial
	for i := 0; i < tripCount; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// activeCooldown is the wait for the current open period. The first trip
// waits the initial cooldown.
func (cb *CircuitBreaker) activeCooldown() time.Duration {
	return cb.Cooldown(cb.tripCount - 1)
}

// ShouldAllowSync reports whether a cycle may run. An open breaker whose
// cooldown has elapsed moves to half-open here.
func (cb *CircuitBreaker) ShouldAllowSync() bool {
	cb.mu.Lock()
	var allowed bool
	var from CircuitState
	transitioned := false

	switch cb.state {
	case StateClosed, StateHalfOpen:
		allowed = true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.activeCooldown() {
			from = cb.state
			cb.state = StateHalfOpen
			transitioned = true
			allowed = true
		}
	}
	cb.mu.Unlock()

	if transitioned {
		cb.notify(from, StateHalfOpen)
	}
	return allowed
}

// RecordSuccess closes a half-open breaker and resets every counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	from := cb.state
	cb.consecutiveFailures = 0
	if cb.state == StateHalfOpen {
		cb.state = StateClosed
		cb.tripCount = 0
	}
	to := cb.state
	cb.mu.Unlock()

	if from != to {
		cb.notify(from, to)
	}
}

// RecordFailure counts a failed cycle and trips the breaker when needed.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	from := cb.state
	cb.consecutiveFailures++

	switch cb.state {
	case StateClosed:
		if cb.consecutiveFailures >= cb.failureThreshold {
			cb.trip()
		}
	case StateHalfOpen:
		cb.trip()
	}
	to := cb.state
	cb.mu.Unlock()

	if from != to {
		cb.notify(from, to)
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.tripCount++
	cb.openedAt = cb.now()
}

// Execute runs fn when the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.ShouldAllowSync() {
		return ErrCircuitOpen
	}

	err := fn()
	if err != nil {
		cb.RecordFailure()
	} else {
		cb.RecordSuccess()
	}
	return err
}

// RemainingCooldown returns the time left before a probe is allowed. The
// boolean is false unless the breaker is open.
func (cb *CircuitBreaker) RemainingCooldown() (time.Duration, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return 0, false
	}
	remaining := cb.activeCooldown() - cb.now().Sub(cb.openedAt)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Reset forces the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.consecutiveFailures = 0
	cb.tripCount = 0
	cb.openedAt = time.Time{}
	cb.mu.Unlock()

	if from != StateClosed {
		cb.notify(from, StateClosed)
	}
}

func (cb *CircuitBreaker) notify(from, to CircuitState) {
	cb.mu.Lock()
	callback := cb.onStateChange
	cb.mu.Unlock()

	if callback != nil {
		callback(cb.name, from, to)
	}
}

// CircuitBreakerStats is a point-in-time snapshot.
type CircuitBreakerStats struct {
	Name                string        `json:"name"`
	State               string        `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	TripCount           int           `json:"trip_count"`
	OpenedAt            time.Time     `json:"opened_at,omitempty"`
	RemainingCooldown   time.Duration `json:"remaining_cooldown,omitempty"`
}

// Stats returns current statistics.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	remaining, _ := cb.RemainingCooldown()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerStats{
		Name:                cb.name,
		State:               cb.state.String(),
		ConsecutiveFailures: cb.consecutiveFailures,
		TripCount:           cb.tripCount,
		OpenedAt:            cb.openedAt,
		RemainingCooldown:   remaining,
	}
}
