package cache

import (
	"errors"
	"sync"
	"time"
)

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

var ErrBreakerOpen = errors.New("circuit breaker is open")

type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold int `json:"threshold"`
	// Cooldown is how long an open breaker rejects calls before probing.
	Cooldown time.Duration `json:"cooldown"`
	// Trials is how many successful half-open calls close it again.
	Trials int `json:"trials"`
	// OnStateChange runs under the breaker lock and must not call back into it.
	OnStateChange func(from, to BreakerState) `json:"-"`
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold: 5,
		Cooldown:  30 * time.Second,
		Trials:    3,
	}
}

// CircuitBreaker guards the task cache backend. While open it fails fast
// so reads go straight to the database.
type CircuitBreaker struct {
	cfg      BreakerConfig
	now      func() time.Time
	mu       sync.Mutex
	state    BreakerState
	failures int
	trials   int
	trialOK  int
	openedAt time.Time
	rejected int64
}

func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	if cfg.Trials < 1 {
		cfg.Trials = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the breaker is open. Errors matched by one of the
// ignore funcs, such as cache misses, are returned but count as successes.
func (cb *CircuitBreaker) Execute(fn func() error, ignore ...func(error) bool) error {
	if err := cb.before(); err != nil {
		return err
	}

	err := fn()
	healthy := err == nil
	for _, match := range ignore {
		if healthy {
			break
		}
		healthy = match(err)
	}
	cb.after(healthy)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
			cb.rejected++
			return ErrBreakerOpen
		}
		cb.trials, cb.trialOK = 0, 0
		cb.transition(BreakerHalfOpen)
	}

	if cb.state == BreakerHalfOpen {
		if cb.trials >= cb.cfg.Trials {
			cb.rejected++
			return ErrBreakerOpen
		}
		cb.trials++
	}
	return nil
}

func (cb *CircuitBreaker) after(healthy bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if healthy {
		cb.failures = 0
		if cb.state == BreakerHalfOpen {
			cb.trialOK++
			if cb.trialOK >= cb.cfg.Trials {
				cb.transition(BreakerClosed)
			}
		}
		return
	}

	cb.failures++
	if cb.state == BreakerHalfOpen || cb.failures >= cb.cfg.Threshold {
		cb.openedAt = cb.now()
		cb.transition(BreakerOpen)
	}
}

func (cb *CircuitBreaker) transition(to BreakerState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Stats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]interface{}{
		"state":            cb.state.String(),
		"failures":         cb.failures,
		"rejected":         cb.rejected,
		"threshold":        cb.cfg.Threshold,
		"cooldown_seconds": cb.cfg.Cooldown.Seconds(),
		"opened_at":        cb.openedAt.Unix(),
	}
}
