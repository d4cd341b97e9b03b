package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/vipul43/jobsync-worker/internal/logging"
	"github.com/vipul43/jobsync-worker/internal/metrics"
)

// State is the externally visible breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateHalfOpen State = "half-open"
	StateOpen     State = "open"
)

// BreakerConfig configures one CircuitBreaker.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	RecoveryTimeout  time.Duration
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name        string        `json:"name"`
	State       State         `json:"state"`
	Failures    uint32        `json:"failures"`
	LastFailure *time.Time    `json:"last_failure,omitempty"`
	RetryIn     time.Duration `json:"retry_in_ns"`
}

// CircuitBreaker guards calls to one external dependency.
//
// Counting follows consecutive failures: every failure while closed (or a
// failed half-open probe) increments the counter, any success resets it.
// Once the counter reaches FailureThreshold the breaker opens, and a single
// probe is let through after RecoveryTimeout has elapsed since the last failure.
type CircuitBreaker struct {
	cb       *gobreaker.CircuitBreaker[any]
	name     string
	recovery time.Duration

	mu          sync.Mutex
	failures    uint32
	lastFailure time.Time
}

// NewCircuitBreaker builds a breaker. Instances are owned by the composition
// root and passed to every call site that talks to the guarded dependency.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 1
	}
	recovery := cfg.RecoveryTimeout
	if recovery <= 0 {
		recovery = time.Minute
	}

	b := &CircuitBreaker{
		name:     cfg.Name,
		recovery: recovery,
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cfg.Name).Set(0)

	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     recovery,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", string(toState(from))).
				Str("to", string(toState(to))).
				Msg("Circuit breaker state transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, string(toState(from)), string(toState(to))).Inc()
		},
		// The upstream answered, so a not-found is a healthy response.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
	})

	return b
}

// Name returns the breaker name.
func (b *CircuitBreaker) Name() string {
	return b.name
}

// Snapshot returns the current state, failure count and time until the next
// probe is permitted.
func (b *CircuitBreaker) Snapshot() Snapshot {
	state := toState(b.cb.State())

	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		Name:     b.name,
		State:    state,
		Failures: b.failures,
	}
	if !b.lastFailure.IsZero() {
		last := b.lastFailure
		s.LastFailure = &last
	}
	if state == StateOpen {
		if remaining := b.recovery - time.Since(b.lastFailure); remaining > 0 {
			s.RetryIn = remaining
		}
	}
	return s
}

func (b *CircuitBreaker) record(err error) {
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err == nil || errors.Is(err, ErrNotFound):
		b.mu.Lock()
		b.failures = 0
		b.mu.Unlock()
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(0)
	default:
		b.mu.Lock()
		b.failures++
		b.lastFailure = time.Now()
		failures := b.failures
		b.mu.Unlock()
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(float64(failures))
	}
}

// Execute runs fn through the breaker. A nil breaker runs fn unguarded.
// Rejected calls return a *BreakerOpenError without invoking fn.
func Execute[T any](b *CircuitBreaker, fn func() (T, error)) (T, error) {
	if b == nil {
		return fn()
	}

	var zero T
	result, err := b.cb.Execute(func() (any, error) {
		v, err := fn()
		return v, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return zero, &BreakerOpenError{Snapshot: b.Snapshot()}
	}

	b.record(err)
	if err != nil {
		return zero, err
	}

	typed, ok := result.(T)
	if !ok {
		return zero, nil
	}
	return typed, nil
}

func toState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
