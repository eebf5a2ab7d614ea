package deadletter

import (
	"testing"
	"time"
)

func TestRetryDelay(t *testing.T) {
	base := 5 * time.Minute
	max := 2 * time.Hour

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 10 * time.Minute},
		{2, 20 * time.Minute},
		{3, 40 * time.Minute},
		{4, 80 * time.Minute},
		{5, 2 * time.Hour},  // 160m capped
		{10, 2 * time.Hour}, // stays capped, no overflow
		{62, 2 * time.Hour}, // would overflow int64 without early cap
	}

	for _, tt := range tests {
		if got := retryDelay(base, max, tt.attempt); got != tt.want {
			t.Errorf("retryDelay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryDelayBaseAboveMax(t *testing.T) {
	if got := retryDelay(time.Hour, time.Minute, 0); got != time.Minute {
		t.Errorf("retryDelay = %v, want cap %v", got, time.Minute)
	}
}

func TestNextAttemptAbandonsAtBudget(t *testing.T) {
	cfg := Config{MaxAttempts: 5, BaseDelay: 5 * time.Minute, MaxDelay: 2 * time.Hour}
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	// Attempts 1 through 4 reschedule on the doubling schedule; the fifth
	// failed retry spends the budget and abandons the item.
	wantDelays := []time.Duration{
		10 * time.Minute,
		20 * time.Minute,
		40 * time.Minute,
		80 * time.Minute,
	}
	for i, want := range wantDelays {
		attempts := i + 1
		status, next := nextAttempt(cfg, attempts, now)
		if status != StatusPending {
			t.Fatalf("attempt %d: status = %v, want PENDING", attempts, status)
		}
		if got := next.Sub(now); got != want {
			t.Errorf("attempt %d: delay = %v, want %v", attempts, got, want)
		}
	}

	status, _ := nextAttempt(cfg, 5, now)
	if status != StatusAbandoned {
		t.Fatalf("attempt 5: status = %v, want ABANDONED", status)
	}
}
