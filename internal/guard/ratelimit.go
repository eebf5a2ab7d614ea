package guard

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token-bucket rate limiter for a single rate-limited
// dependency. Tokens refill continuously at rate tokens/second up to burst
// capacity, computed lazily from elapsed wall-clock time on each call; no
// background timer is involved. Safe for concurrent callers.
type RateLimiter struct {
	rate  float64 // tokens per second
	burst float64 // bucket capacity

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time

	calls     int64
	waits     int64
	waitTotal time.Duration

	now func() time.Time
}

// RateLimiterStats is a snapshot of limiter counters for monitoring.
type RateLimiterStats struct {
	Calls          int64         `json:"total_calls"`
	Waits          int64         `json:"total_waits"`
	TotalWaitTime  time.Duration `json:"total_wait_time"`
	CallsPerSecond float64       `json:"calls_per_second"`
	Tokens         float64       `json:"current_tokens"`
	Burst          float64       `json:"max_tokens"`
}

// NewRateLimiter creates a limiter allowing callsPerSecond sustained calls
// with bursts up to burst. callsPerSecond must be positive.
func NewRateLimiter(callsPerSecond float64, burst int) *RateLimiter {
	if callsPerSecond <= 0 {
		panic("guard: calls per second must be positive")
	}
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		rate:  callsPerSecond,
		burst: float64(burst),
		now:   time.Now,
	}
	rl.tokens = rl.burst
	rl.lastRefill = rl.now()
	return rl
}

// refill adds tokens for the time elapsed since the last refill.
// Callers must hold rl.mu.
func (rl *RateLimiter) refill() {
	now := rl.now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed > 0 {
		rl.tokens = min(rl.burst, rl.tokens+elapsed*rl.rate)
	}
	rl.lastRefill = now
}

// Acquire blocks until a token is available or timeout elapses. On success
// one token is consumed. A timeout surfaces as *RateLimitTimeoutError; a
// cancelled context surfaces as ctx.Err().
func (rl *RateLimiter) Acquire(ctx context.Context, timeout time.Duration) error {
	start := rl.now()
	deadline := start.Add(timeout)
	waited := false

	for {
		rl.mu.Lock()
		rl.refill()

		if rl.tokens >= 1 {
			rl.tokens--
			rl.calls++
			if waited {
				rl.waits++
				rl.waitTotal += rl.now().Sub(start)
			}
			rl.mu.Unlock()
			return nil
		}

		// Time until a full token accumulates.
		wait := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
		if rl.now().Add(wait).After(deadline) {
			rl.mu.Unlock()
			return &RateLimitTimeoutError{Wait: wait, Timeout: timeout}
		}
		rl.mu.Unlock()

		waited = true
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// TryAcquire consumes a token if one is immediately available.
func (rl *RateLimiter) TryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens >= 1 {
		rl.tokens--
		rl.calls++
		return true
	}
	return false
}

// Stats returns a snapshot of the limiter's counters and token level.
func (rl *RateLimiter) Stats() RateLimiterStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	return RateLimiterStats{
		Calls:          rl.calls,
		Waits:          rl.waits,
		TotalWaitTime:  rl.waitTotal,
		CallsPerSecond: rl.rate,
		Tokens:         rl.tokens,
		Burst:          rl.burst,
	}
}
