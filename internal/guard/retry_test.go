package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testRetry(cfg RetryConfig) (*RetryExecutor, *[]time.Duration) {
	r := NewRetryExecutor(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var delays []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return r, &delays
}

func TestRetrySucceedsAfterTransientErrors(t *testing.T) {
	r, delays := testRetry(RetryConfig{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second})

	attempts := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errDependency
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}

	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("delay %d = %v, want %v", i, (*delays)[i], d)
		}
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	r, delays := testRetry(RetryConfig{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second})

	attempts := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		attempts++
		return errDependency
	})
	if !errors.Is(err, errDependency) {
		t.Fatalf("want last error, got %v", err)
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4 (initial + 3 retries)", attempts)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("delay %d = %v, want %v", i, (*delays)[i], d)
		}
	}
}

func TestRetryDelayCappedAtMax(t *testing.T) {
	r, delays := testRetry(RetryConfig{MaxRetries: 6, BaseDelay: time.Second, MaxDelay: 5 * time.Second})

	r.Execute(context.Background(), func(context.Context) error {
		return errDependency
	})

	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second,
		5 * time.Second, 5 * time.Second, 5 * time.Second,
	}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("delay %d = %v, want %v", i, (*delays)[i], d)
		}
	}
}

func TestRetryNeverRetriesGuardErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"circuit open", &CircuitOpenError{Failures: 5, Since: time.Second}},
		{"rate limit timeout", &RateLimitTimeoutError{Wait: time.Second, Timeout: 500 * time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, delays := testRetry(RetryConfig{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second})

			attempts := 0
			err := r.Execute(context.Background(), func(context.Context) error {
				attempts++
				return tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Fatalf("want %v back unchanged, got %v", tt.err, err)
			}
			if attempts != 1 {
				t.Errorf("attempts = %d, want 1", attempts)
			}
			if len(*delays) != 0 {
				t.Errorf("slept %v, want no backoff", *delays)
			}
		})
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	r := NewRetryExecutor(RetryConfig{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := r.Execute(ctx, func(context.Context) error {
		attempts++
		cancel()
		return errDependency
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetryZeroRetriesSingleAttempt(t *testing.T) {
	r, _ := testRetry(RetryConfig{MaxRetries: 0, BaseDelay: time.Second, MaxDelay: time.Second})

	attempts := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		attempts++
		return errDependency
	})
	if !errors.Is(err, errDependency) {
		t.Fatalf("got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}
