package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Failure kinds. Errors returned by this package (and by the upstream and
// sheets clients) unwrap to exactly one of these.
var (
	ErrTransient        = errors.New("transient network error")
	ErrTimeout          = errors.New("call timed out")
	ErrUpstreamOverload = errors.New("upstream overloaded")
	ErrRateLimited      = errors.New("rate limited")
	ErrBreakerOpen      = errors.New("circuit breaker is open")
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("invalid upstream payload")
)

// StatusError is a non-2xx (or degraded) HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
	kind       error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (status %d): %s", e.kind, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.kind
}

// RateLimitError is returned when the upstream keeps answering 429 after the
// cooperative wait.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// BreakerOpenError carries the state of the breaker that rejected a call.
type BreakerOpenError struct {
	Snapshot Snapshot
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("%s breaker is open, retry in %s", e.Snapshot.Name, e.Snapshot.RetryIn.Round(time.Second))
}

func (e *BreakerOpenError) Unwrap() error {
	return ErrBreakerOpen
}

// NewValidationError wraps a payload problem as ErrValidation.
func NewValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsPermanent reports whether retrying err cannot help.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrBreakerOpen) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, context.Canceled)
}

// IsOverload reports whether err calls for the extended backoff tier.
func IsOverload(err error) bool {
	return errors.Is(err, ErrUpstreamOverload)
}

// NewStatusError classifies a status code reported by a client library.
func NewStatusError(code int, body string) *StatusError {
	return &StatusError{StatusCode: code, Body: body, kind: KindForStatus(code)}
}
