// Package guard implements the call-protection stack wrapped around every
// outbound dependency: a token-bucket rate limiter, a three-state circuit
// breaker, and a bounded exponential-backoff retry executor, composed by
// Gateway.
//
// One limiter/breaker pair is scoped to exactly one rate-limited dependency
// and shared by every call site hitting it. All state is in-process and
// mutex-protected; separate process instances do not coordinate.
package guard
