package circuitbreaker

import (
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen is the sentinel matched by errors.Is when an Execute call
// was rejected without the wrapped operation being attempted.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// OpenCircuitError is returned by Execute while the circuit is open. It
// carries the host the breaker protects and the instant at which the breaker
// becomes eligible for a half-open trial, so callers can fail fast, wait, or
// fall back with a concrete retry-after.
type OpenCircuitError struct {
	Host    string
	ResetAt time.Time
}

func (e *OpenCircuitError) Error() string {
	return fmt.Sprintf("circuit breaker open for %q, retry after %s", e.Host, e.ResetAt.Format(time.RFC3339))
}

// Is reports a match for the ErrCircuitOpen sentinel so callers can use
// errors.Is without asserting the concrete type.
func (e *OpenCircuitError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// RetryIn returns how long a caller should wait before retrying, measured
// from now. Returns 0 if the reset instant has already passed.
func (e *OpenCircuitError) RetryIn(now time.Time) time.Duration {
	if d := e.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// StatusCoder is implemented by errors that carry an HTTP-like status code.
// Classification extracts the code through errors.As, so the implementation
// may sit anywhere in a wrapped chain.
type StatusCoder interface {
	StatusCode() int
}

// StatusError is a ready-made StatusCoder for callers whose operation failed
// with an HTTP-like status. Err is optional underlying cause.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request failed with status %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("request failed with status %d", e.Code)
}

// StatusCode returns the HTTP-like status code carried by the error.
func (e *StatusError) StatusCode() int {
	return e.Code
}

func (e *StatusError) Unwrap() error {
	return e.Err
}
