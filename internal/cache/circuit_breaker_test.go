package cache

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures, halfOpen int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(BreakerConfig{
		Threshold: maxFailures,
		Cooldown:  time.Minute,
		Trials:    halfOpen,
	})
	cb.now = clock.now
	return cb, clock
}

func fail() error { return fmt.Errorf("operation failed") }
func succeed() error { return nil }

func TestCircuitBreakerBasicFlow(t *testing.T) {
	cb, _ := newTestBreaker(3, 2)

	if cb.State() != BreakerClosed {
		t.Errorf("Expected initial state to be Closed, got %v", cb.State())
	}

	if err := cb.Execute(succeed); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if cb.State() != BreakerClosed {
		t.Errorf("Expected state to remain Closed after success, got %v", cb.State())
	}
}

func TestCircuitBreakerFailureTransition(t *testing.T) {
	cb, _ := newTestBreaker(2, 2)

	if err := cb.Execute(fail); err == nil {
		t.Error("Expected error, got nil")
	}
	if cb.State() != BreakerClosed {
		t.Errorf("Expected state to be Closed after first failure, got %v", cb.State())
	}

	cb.Execute(fail)
	if cb.State() != BreakerOpen {
		t.Errorf("Expected state to be Open after reaching failure threshold, got %v", cb.State())
	}
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(2, 1)

	cb.Execute(fail)
	cb.Execute(succeed)
	cb.Execute(fail)

	if cb.State() != BreakerClosed {
		t.Errorf("Expected non-consecutive failures to keep the breaker Closed, got %v", cb.State())
	}
}

func TestCircuitBreakerOpenRejectsUntilTimeout(t *testing.T) {
	cb, clock := newTestBreaker(1, 2)
	cb.Execute(fail)

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Expected ErrBreakerOpen, got %v", err)
	}
	if called {
		t.Error("Expected function not to run while open")
	}

	clock.advance(time.Minute)
	if err := cb.Execute(succeed); err != nil {
		t.Errorf("Expected trial call to run after timeout, got %v", err)
	}
	if cb.State() != BreakerHalfOpen {
		t.Errorf("Expected Half-Open after first trial call, got %v", cb.State())
	}

	cb.Execute(succeed)
	if cb.State() != BreakerClosed {
		t.Errorf("Expected Closed after enough successful trial calls, got %v", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(1, 3)
	cb.Execute(fail)

	clock.advance(2 * time.Minute)
	cb.Execute(fail)

	if cb.State() != BreakerOpen {
		t.Errorf("Expected Open after failed trial call, got %v", cb.State())
	}
	if err := cb.Execute(succeed); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Expected breaker to reject again, got %v", err)
	}
}

func TestCircuitBreakerIgnoredErrors(t *testing.T) {
	cb, _ := newTestBreaker(1, 1)

	err := cb.Execute(func() error { return ErrCacheMiss }, isMiss)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected the ignored error to be returned, got %v", err)
	}
	if cb.State() != BreakerClosed {
		t.Errorf("Expected ignored error not to trip the breaker, got %v", cb.State())
	}
}

func TestCircuitBreakerStats(t *testing.T) {
	cb, _ := newTestBreaker(1, 1)
	cb.Execute(fail)

	stats := cb.Stats()
	if stats["state"] != "open" {
		t.Errorf("Expected state 'open', got %v", stats["state"])
	}
	if stats["failures"] != 1 {
		t.Errorf("Expected failures 1, got %v", stats["failures"])
	}

	cb.Execute(succeed)
	if got := cb.Stats()["rejected"]; got != int64(1) {
		t.Errorf("Expected rejected 1, got %v", got)
	}
}

func TestCircuitBreakerStateChangeCallback(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(BreakerConfig{
		Threshold: 1,
		Cooldown:  time.Minute,
		Trials:    1,
		OnStateChange: func(from, to BreakerState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb.now = clock.now

	cb.Execute(fail)
	cb.Execute(fail)
	clock.advance(2 * time.Minute)
	cb.Execute(succeed)

	expected := []string{"closed->open", "open->half-open", "half-open->closed"}
	if fmt.Sprint(transitions) != fmt.Sprint(expected) {
		t.Errorf("Expected transitions %v, got %v", expected, transitions)
	}
}
