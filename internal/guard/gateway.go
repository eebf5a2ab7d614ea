package guard

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Gateway stacks the three guards around calls to one dependency. Ordering
// is fixed: the breaker wraps retries, retries wrap rate limiting, so a
// tripped breaker rejects instantly without touching the limiter, and each
// retry attempt acquires its own token.
type Gateway struct {
	name    string
	limiter *RateLimiter
	breaker *CircuitBreaker
	retry   *RetryExecutor

	acquireTimeout time.Duration
	logger         *slog.Logger
}

// GatewayConfig collects per-dependency guard settings.
type GatewayConfig struct {
	CallsPerSecond   float64
	BurstSize        int
	AcquireTimeout   time.Duration
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
	MaxRetries       int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
}

// GatewayStats combines limiter and breaker snapshots.
type GatewayStats struct {
	Name           string              `json:"name"`
	RateLimiter    RateLimiterStats    `json:"rate_limiter"`
	CircuitBreaker CircuitBreakerStats `json:"circuit_breaker"`
}

// NewGateway builds the full guard stack for one named dependency.
func NewGateway(name string, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("gateway", name)

	return &Gateway{
		name:    name,
		limiter: NewRateLimiter(cfg.CallsPerSecond, cfg.BurstSize),
		breaker: NewCircuitBreaker(BreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			RecoveryTimeout:  cfg.RecoveryTimeout,
			SuccessThreshold: cfg.SuccessThreshold,
		}, logger),
		retry: NewRetryExecutor(RetryConfig{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
			MaxDelay:   cfg.MaxDelay,
		}, logger),
		acquireTimeout: cfg.AcquireTimeout,
		logger:         logger,
	}
}

// Do runs fn through the guard stack. A rate-limit timeout on the final
// attempt surfaces as *RateLimitTimeoutError and counts against the breaker.
func (g *Gateway) Do(ctx context.Context, fn func(context.Context) error) error {
	return g.breaker.Call(func() error {
		return g.retry.Execute(ctx, func(ctx context.Context) error {
			if err := g.limiter.Acquire(ctx, g.acquireTimeout); err != nil {
				return err
			}
			return fn(ctx)
		})
	})
}

// Result wraps a value from Call. Unavailable is set instead of an error
// when the circuit is open, so callers can degrade without treating an
// expected fail-fast as a fault.
type Result[T any] struct {
	Value       T
	Unavailable bool
}

// Call runs a value-returning call through gw and absorbs circuit-open
// rejections into Result.Unavailable.
func Call[T any](ctx context.Context, gw *Gateway, op string, fn func(context.Context) (T, error)) (Result[T], error) {
	var res Result[T]

	err := gw.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		res.Value = v
		return nil
	})
	if err != nil {
		var openErr *CircuitOpenError
		if errors.As(err, &openErr) {
			gw.logger.Warn("call rejected, circuit open",
				"op", op,
				"open_for", openErr.Since,
			)
			res.Unavailable = true
			return res, nil
		}
		return res, err
	}

	return res, nil
}

// Name returns the dependency name this gateway guards.
func (g *Gateway) Name() string { return g.name }

// Stats returns a combined snapshot of the underlying guards.
func (g *Gateway) Stats() GatewayStats {
	return GatewayStats{
		Name:           g.name,
		RateLimiter:    g.limiter.Stats(),
		CircuitBreaker: g.breaker.Stats(),
	}
}

// Breaker exposes the underlying circuit breaker for manual control.
func (g *Gateway) Breaker() *CircuitBreaker { return g.breaker }
