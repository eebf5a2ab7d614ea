package guard

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryConfig holds retry bounds. MaxRetries counts attempts after the
// first call, so MaxRetries 3 allows up to 4 calls total.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// RetryExecutor runs a call up to MaxRetries+1 times with bounded
// exponential backoff. It never retries *CircuitOpenError or
// *RateLimitTimeoutError: those come from guards, not the dependency, and
// repeating them only multiplies pressure.
type RetryExecutor struct {
	cfg    RetryConfig
	logger *slog.Logger

	// sleep is swapped in tests; it must respect ctx cancellation.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryExecutor creates a retry executor with the given bounds.
func NewRetryExecutor(cfg RetryConfig, logger *slog.Logger) *RetryExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &RetryExecutor{
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Execute runs fn, retrying on error until it succeeds, the retry budget is
// spent, or ctx is done. The last error is returned when all attempts fail.
func (r *RetryExecutor) Execute(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.delayFor(attempt - 1)
			r.logger.Debug("retrying after backoff",
				"attempt", attempt,
				"max_retries", r.cfg.MaxRetries,
				"delay", delay,
				"error", lastErr,
			)
			if err := r.sleep(ctx, delay); err != nil {
				return err
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var openErr *CircuitOpenError
		var rlErr *RateLimitTimeoutError
		if errors.As(err, &openErr) || errors.As(err, &rlErr) {
			return err
		}
	}

	return lastErr
}

// delayFor returns min(base * 2^attempt, max) for a zero-based attempt index.
func (r *RetryExecutor) delayFor(attempt int) time.Duration {
	delay := r.cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= r.cfg.MaxDelay {
			return r.cfg.MaxDelay
		}
	}
	if delay > r.cfg.MaxDelay {
		return r.cfg.MaxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
