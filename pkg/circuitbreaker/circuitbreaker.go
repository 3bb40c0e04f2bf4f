package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	// Closed lets requests through and counts failures.
	Closed State = iota
	// Open blocks all requests until the timeout elapses.
	Open
	// HalfOpen lets trial requests through to probe recovery.
	HalfOpen
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

// ErrCircuitOpen is returned when a request is rejected because the circuit
// is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards a call against a repeatedly failing downstream.
type CircuitBreaker interface {
	// Execute runs req unless the circuit is open.
	Execute(req func() (interface{}, error)) (interface{}, error)
	// State returns the current state.
	State() State
}

type breaker struct {
	failureThreshold uint32
	successThreshold uint32
	timeout          time.Duration

	failures  uint32
	successes uint32
	openedAt  time.Time
	state     State
	mu        sync.Mutex
}

// New creates a breaker that opens after failureThreshold consecutive
// failures, stays open for timeout, then closes again after successThreshold
// consecutive half-open successes.
func New(failureThreshold, successThreshold uint32, timeout time.Duration) CircuitBreaker {
	return &breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		state:            Closed,
	}
}

// State returns the current state, accounting for open-state expiry.
func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Execute wraps req with the breaker logic.
func (b *breaker) Execute(req func() (interface{}, error)) (interface{}, error) {
	b.mu.Lock()
	b.maybeHalfOpen()
	if b.state == Open {
		b.mu.Unlock()
		return nil, ErrCircuitOpen
	}
	b.mu.Unlock()

	res, err := req()
	if err != nil {
		b.onFailure()
		return nil, err
	}
	b.onSuccess()
	return res, nil
}

// maybeHalfOpen transitions Open -> HalfOpen once the timeout has elapsed.
// Caller must hold the lock.
func (b *breaker) maybeHalfOpen() {
	if b.state == Open && time.Since(b.openedAt) > b.timeout {
		b.state = HalfOpen
		b.successes = 0
	}
}

func (b *breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = Closed
			b.failures = 0
			b.successes = 0
		}
	case Closed:
		b.failures = 0
	}
}

func (b *breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.trip()
		}
	}
}

// trip opens the circuit. Caller must hold the lock.
func (b *breaker) trip() {
	b.state = Open
	b.openedAt = time.Now()
	b.failures = 0
	b.successes = 0
}
