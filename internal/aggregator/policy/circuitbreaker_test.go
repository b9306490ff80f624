package policy

import (
	"errors"
	"testing"
	"time"
)

var errTransport = errors.New("transport error")

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerOptions{FailureThreshold: 5, RecoveryTimeout: time.Hour})

	for i := 0; i < 5; i++ {
		err := cb.Call(func() error { return errTransport })
		if err != errTransport {
			t.Fatalf("call %d: expected transport error, got %v", i, err)
		}
	}

	if cb.State() != StateOpen {
		t.Fatalf("expected breaker OPEN after 5 failures, got %s", cb.State())
	}

	called := false
	err := cb.Call(func() error { called = true; return nil })
	if err != ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatal("callable must not be invoked while breaker is OPEN")
	}
}

func TestCircuitBreakerHalfOpenAdmitsExactlyOneProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerOptions{FailureThreshold: 1, RecoveryTimeout: 20 * time.Millisecond})

	_ = cb.Call(func() error { return errTransport })
	if cb.State() != StateOpen {
		t.Fatalf("expected OPEN after single failure with threshold 1, got %s", cb.State())
	}

	time.Sleep(25 * time.Millisecond)

	admissions := 0
	const n = 10
	results := make(chan bool, n)
	for i := 0; i < n; i++ {
		go func() {
			admitted, _ := cb.admit()
			results <- admitted
		}()
	}
	for i := 0; i < n; i++ {
		if <-results {
			admissions++
		}
	}

	if admissions != 1 {
		t.Fatalf("expected exactly one HALF_OPEN probe admitted, got %d", admissions)
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerOptions{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})

	_ = cb.Call(func() error { return errTransport })
	time.Sleep(15 * time.Millisecond)

	err := cb.Call(func() error { return errTransport })
	if err != errTransport {
		t.Fatalf("expected probe failure to propagate, got %v", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected breaker to reopen after failed probe, got %s", cb.State())
	}
}

func TestCircuitBreakerHalfOpenSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerOptions{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})

	_ = cb.Call(func() error { return errTransport })
	time.Sleep(15 * time.Millisecond)

	err := cb.Call(func() error { return nil })
	if err != nil {
		t.Fatalf("expected successful probe to pass through, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected breaker CLOSED after successful probe, got %s", cb.State())
	}
	if cb.FailureCount() != 0 {
		t.Fatalf("expected failure count reset to 0, got %d", cb.FailureCount())
	}
}

func TestCircuitBreakerSuccessResetsStreak(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerOptions{FailureThreshold: 3})

	_ = cb.Call(func() error { return errTransport })
	_ = cb.Call(func() error { return nil })

	if cb.FailureCount() != 0 {
		t.Fatalf("expected a success to reset the consecutive-failure streak, got %d", cb.FailureCount())
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected breaker to remain CLOSED, got %s", cb.State())
	}
}
