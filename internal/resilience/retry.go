package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/vipul43/jobsync-worker/internal/logging"
	"github.com/vipul43/jobsync-worker/internal/metrics"
)

// DefaultOverloadDelay is the first backoff step after an overload failure.
const DefaultOverloadDelay = 10 * time.Second

// RetryConfig configures a Retrier.
type RetryConfig struct {
	MaxAttempts   uint
	BaseDelay     time.Duration
	OverloadDelay time.Duration

	// OnRetry, if set, is called before every backoff wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retrier runs idempotent operations with bounded retries and tiered
// exponential backoff, optionally gated by a CircuitBreaker.
type Retrier struct {
	cfg     RetryConfig
	breaker *CircuitBreaker
}

// NewRetrier creates a Retrier. breaker may be nil.
func NewRetrier(cfg RetryConfig, breaker *CircuitBreaker) *Retrier {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.OverloadDelay <= 0 {
		cfg.OverloadDelay = DefaultOverloadDelay
	}
	return &Retrier{cfg: cfg, breaker: breaker}
}

// Breaker returns the breaker gating this retrier, or nil.
func (r *Retrier) Breaker() *CircuitBreaker {
	return r.breaker
}

// Delay returns the wait after the given failed attempt (1-indexed):
// OverloadDelay·2^(a−1) for overload failures, BaseDelay·2^(a−1) otherwise.
func (r *Retrier) Delay(attempt int, err error) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	step := r.cfg.BaseDelay
	if IsOverload(err) {
		step = r.cfg.OverloadDelay
	}
	return step << uint(attempt-1)
}

// tieredBackOff adapts Retrier.Delay to backoff.BackOff. observe must be
// called with each failure before NextBackOff.
type tieredBackOff struct {
	retrier *Retrier
	attempt int
	lastErr error
}

func (t *tieredBackOff) observe(err error) {
	t.attempt++
	t.lastErr = err
}

func (t *tieredBackOff) NextBackOff() time.Duration {
	return t.retrier.Delay(t.attempt, t.lastErr)
}

func (t *tieredBackOff) Reset() {
	t.attempt = 0
	t.lastErr = nil
}

// Do runs fn until it succeeds, fails permanently, or MaxAttempts is reached.
// The last observed failure is returned. A breaker rejection is returned
// immediately without backoff.
func Do[T any](ctx context.Context, r *Retrier, op string, fn func(context.Context) (T, error)) (T, error) {
	if r == nil {
		return fn(ctx)
	}

	policy := &tieredBackOff{retrier: r}

	operation := func() (T, error) {
		v, err := Execute(r.breaker, func() (T, error) {
			return fn(ctx)
		})
		if err == nil {
			metrics.RetryAttempts.WithLabelValues(op, "success").Inc()
			return v, nil
		}
		if IsPermanent(err) {
			metrics.RetryAttempts.WithLabelValues(op, "permanent").Inc()
			return v, backoff.Permanent(err)
		}
		policy.observe(err)
		return v, err
	}

	notify := func(err error, delay time.Duration) {
		outcome := "retry"
		if IsOverload(err) {
			outcome = "overload"
		}
		metrics.RetryAttempts.WithLabelValues(op, outcome).Inc()

		logging.Warn().
			Err(err).
			Str("operation", op).
			Int("attempt", policy.attempt).
			Uint("max_attempts", r.cfg.MaxAttempts).
			Dur("delay", delay).
			Msg("Retrying after failure")

		if r.cfg.OnRetry != nil {
			r.cfg.OnRetry(policy.attempt, err, delay)
		}
	}

	v, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(r.cfg.MaxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err != nil && !IsPermanent(err) {
		metrics.RetryAttempts.WithLabelValues(op, "exhausted").Inc()
	}
	return v, err
}
