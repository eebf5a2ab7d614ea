package guard

import (
	"fmt"
	"time"
)

// CircuitOpenError is returned when the circuit breaker rejects a call
// without invoking the wrapped function. It is never retried: the guard has
// already decided the dependency is unavailable.
type CircuitOpenError struct {
	Failures int           // consecutive failures that opened the circuit
	Since    time.Duration // time elapsed since the circuit opened
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker is open (failed %d times, opened %s ago)", e.Failures, e.Since.Round(time.Millisecond))
}

// RateLimitTimeoutError is returned when a caller gave up waiting for a
// token. It is surfaced to the caller rather than retried internally;
// retrying against an exhausted budget only wastes more of it.
type RateLimitTimeoutError struct {
	Wait    time.Duration // wait that would have been required
	Timeout time.Duration // timeout the caller allowed
}

func (e *RateLimitTimeoutError) Error() string {
	return fmt.Sprintf("rate limit would require %s wait (timeout %s)", e.Wait.Round(time.Millisecond), e.Timeout.Round(time.Millisecond))
}
