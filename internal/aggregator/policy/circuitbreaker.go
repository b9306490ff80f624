package policy

import (
	"errors"
	"sync"
	"time"
)

// CircuitState is the three-state machine from spec §3/§4.1.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned by Call when the breaker short-circuits the
// request without invoking the callable.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerOptions configures a CircuitBreaker. Zero fields fall back
// to spec §4.1 defaults (F=5 failures, R=60s recovery).
type CircuitBreakerOptions struct {
	FailureThreshold int64
	RecoveryTimeout  time.Duration
}

func (o CircuitBreakerOptions) withDefaults() CircuitBreakerOptions {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 5
	}
	if o.RecoveryTimeout <= 0 {
		o.RecoveryTimeout = 60 * time.Second
	}
	return o
}

// CircuitBreaker serializes state transitions for a single host behind mu.
// The protected call itself must run outside the lock (spec §4.1) — Call
// only holds mu while deciding admission and recording the outcome, never
// while the callable executes.
type CircuitBreaker struct {
	opts CircuitBreakerOptions

	mu              sync.Mutex
	state           CircuitState
	failureCount    int64
	lastFailureTime time.Time
	halfOpenInUse   bool
}

// NewCircuitBreaker constructs a breaker starting CLOSED.
func NewCircuitBreaker(opts CircuitBreakerOptions) *CircuitBreaker {
	return &CircuitBreaker{opts: opts.withDefaults(), state: StateClosed}
}

// admit decides, under the lock, whether the caller may proceed. It returns
// the admitted flag and whether this call is the single HALF_OPEN probe.
func (cb *CircuitBreaker) admit() (admitted bool, isProbe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true, false
	case StateOpen:
		if time.Since(cb.lastFailureTime) >= cb.opts.RecoveryTimeout {
			cb.state = StateHalfOpen
			cb.halfOpenInUse = true
			return true, true
		}
		return false, false
	case StateHalfOpen:
		if !cb.halfOpenInUse {
			cb.halfOpenInUse = true
			return true, true
		}
		return false, false
	default:
		return false, false
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failureCount = 0
	cb.halfOpenInUse = false
}

func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()
	cb.halfOpenInUse = false

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		return
	}

	cb.failureCount++
	if cb.failureCount >= cb.opts.FailureThreshold {
		cb.state = StateOpen
	}
}

// Call executes fn through the breaker. If the breaker is OPEN and not yet
// eligible to probe, fn is never invoked and ErrCircuitOpen is returned
// immediately. Otherwise fn runs unguarded (not under cb.mu) and its
// success/failure updates the state machine.
func (cb *CircuitBreaker) Call(fn func() error) error {
	admitted, _ := cb.admit()
	if !admitted {
		return ErrCircuitOpen
	}

	err := fn()
	if err != nil {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return nil
}

// State returns the breaker's current state, for the statistics surface.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount returns the current consecutive-failure count.
func (cb *CircuitBreaker) FailureCount() int64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}
