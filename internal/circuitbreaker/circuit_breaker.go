// Package circuitbreaker guards calls to the market data provider so that a
// provider outage fails fast instead of stacking 10s timeouts.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/crypto-assistant/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means the circuit is closed and requests are allowed
	StateClosed State = "closed"
	// StateOpen means the circuit is open and requests are blocked
	StateOpen State = "open"
	// StateHalfOpen means a single probe request is allowed through
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config configures a circuit breaker
type Config struct {
	Name string
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures int
	// ResetTimeout is how long the circuit stays open before a probe
	ResetTimeout time.Duration
	// OnStateChange is called with the lock released after every transition
	OnStateChange func(name string, from, to State)
	// Now replaces time.Now
	Now func() time.Time
}

// CircuitBreaker opens after MaxFailures consecutive failures and lets one
// probe through once ResetTimeout has elapsed.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	onStateChange func(name string, from, to State)
	now           func() time.Time

	mu               sync.Mutex
	state            State
	consecutiveFails int
	probing          bool
	openedAt         time.Time
	totalCalls       int64
	totalFailures    int64
	rejected         int64
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		onStateChange: cfg.OnStateChange,
		now:           cfg.Now,
		state:         StateClosed,
	}
}

// Execute runs fn unless the circuit is open. Context cancellation by the
// caller is not counted as a provider failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn()

	failed := err != nil && ctx.Err() == nil
	cb.afterRequest(failed)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	var transition *[2]State

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			cb.rejected++
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		transition = &[2]State{StateOpen, StateHalfOpen}
		cb.state = StateHalfOpen
		cb.probing = true
	case StateHalfOpen:
		if cb.probing {
			cb.rejected++
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	cb.mu.Unlock()

	if transition != nil {
		cb.notify(transition[0], transition[1])
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(failed bool) {
	cb.mu.Lock()
	from := cb.state
	cb.totalCalls++
	cb.probing = false

	if failed {
		cb.totalFailures++
		cb.consecutiveFails++
		if cb.state == StateHalfOpen || cb.consecutiveFails >= cb.maxFailures {
			cb.state = StateOpen
			cb.openedAt = cb.now()
		}
	} else {
		cb.consecutiveFails = 0
		cb.state = StateClosed
	}
	to := cb.state
	cb.mu.Unlock()

	if from != to {
		cb.notify(from, to)
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	logger := logging.WithFields(map[string]interface{}{
		"circuitBreaker": cb.name,
		"from":           from,
		"to":             to,
	})
	if to == StateOpen {
		logger.Warn("Circuit breaker opened")
	} else {
		logger.Info("Circuit breaker state changed")
	}
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name             string `json:"name"`
	State            State  `json:"state"`
	ConsecutiveFails int    `json:"consecutiveFails"`
	TotalCalls       int64  `json:"totalCalls"`
	TotalFailures    int64  `json:"totalFailures"`
	Rejected         int64  `json:"rejected"`
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Name:             cb.name,
		State:            cb.state,
		ConsecutiveFails: cb.consecutiveFails,
		TotalCalls:       cb.totalCalls,
		TotalFailures:    cb.totalFailures,
		Rejected:         cb.rejected,
	}
}

// Reset manually closes the circuit
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.consecutiveFails = 0
	cb.probing = false
	cb.mu.Unlock()

	if from != StateClosed {
		cb.notify(from, StateClosed)
	}
}
