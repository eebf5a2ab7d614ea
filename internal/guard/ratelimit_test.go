package guard

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock advances only when told to, making refill math deterministic.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRateLimiterBurst(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(10, 5)
	rl.now = clock.Now

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := rl.Acquire(ctx, time.Second); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}

	// Bucket drained; with no time passing the next call must time out.
	err := rl.Acquire(ctx, 50*time.Millisecond)
	var rlErr *RateLimitTimeoutError
	if !errors.As(err, &rlErr) {
		t.Fatalf("want RateLimitTimeoutError, got %v", err)
	}
	if rlErr.Timeout != 50*time.Millisecond {
		t.Errorf("Timeout = %v, want 50ms", rlErr.Timeout)
	}
}

func TestRateLimiterRefill(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(10, 5)
	rl.now = clock.Now

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := rl.Acquire(ctx, time.Second); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}

	// 10/s means 200ms restores exactly two tokens.
	clock.Advance(200 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := rl.Acquire(ctx, time.Millisecond); err != nil {
			t.Fatalf("acquire after refill %d: %v", i, err)
		}
	}
	if err := rl.Acquire(ctx, time.Millisecond); err == nil {
		t.Fatal("third acquire should fail, only two tokens refilled")
	}
}

func TestRateLimiterRefillCapped(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(10, 3)
	rl.now = clock.Now

	// Idle far longer than needed to refill; bucket must cap at burst.
	clock.Advance(time.Hour)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := rl.Acquire(ctx, time.Millisecond); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if err := rl.Acquire(ctx, time.Millisecond); err == nil {
		t.Fatal("bucket exceeded burst size")
	}
}

func TestRateLimiterTryAcquire(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(1, 1)
	rl.now = clock.Now

	if !rl.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}
	if rl.TryAcquire() {
		t.Fatal("second TryAcquire should fail without refill")
	}

	clock.Advance(time.Second)
	if !rl.TryAcquire() {
		t.Fatal("TryAcquire should succeed after refill")
	}
}

func TestRateLimiterContextCancel(t *testing.T) {
	rl := NewRateLimiter(0.1, 1) // ten seconds per token

	if !rl.TryAcquire() {
		t.Fatal("draining token failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := rl.Acquire(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestRateLimiterWaitsForToken(t *testing.T) {
	rl := NewRateLimiter(50, 1) // 20ms per token, real clock

	ctx := context.Background()
	if err := rl.Acquire(ctx, time.Second); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	start := time.Now()
	if err := rl.Acquire(ctx, time.Second); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("acquire returned after %v, expected a wait near 20ms", elapsed)
	}

	stats := rl.Stats()
	if stats.Calls != 2 {
		t.Errorf("Calls = %d, want 2", stats.Calls)
	}
	if stats.Waits != 1 {
		t.Errorf("Waits = %d, want 1", stats.Waits)
	}
}

func TestNewRateLimiterPanicsOnBadRate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-positive rate")
		}
	}()
	NewRateLimiter(0, 5)
}
