package guard

import (
	"log/slog"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	// StateClosed is normal operation: calls pass through.
	StateClosed State = iota
	// StateOpen rejects every call without invoking the wrapped function.
	StateOpen
	// StateHalfOpen lets trial calls through while probing recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	RecoveryTimeout  time.Duration // wait before allowing a trial call
	SuccessThreshold int           // consecutive successes to close from half-open
}

// CircuitBreaker is a three-state fail-fast guard around a single
// dependency. Transitions are atomic under one mutex; the wrapped function
// executes outside the lock.
type CircuitBreaker struct {
	cfg    BreakerConfig
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	failures   int // consecutive failures
	successes  int // consecutive successes while half-open
	openedAt   time.Time
	lastChange time.Time

	totalCalls     int64
	totalFailures  int64
	totalSuccesses int64
	timesOpened    int64
	lastFailureAt  time.Time

	now func() time.Time
}

// CircuitBreakerStats is a snapshot of breaker state for monitoring.
type CircuitBreakerStats struct {
	State          string        `json:"state"`
	TotalCalls     int64         `json:"total_calls"`
	TotalSuccesses int64         `json:"total_successes"`
	TotalFailures  int64         `json:"total_failures"`
	Failures       int           `json:"consecutive_failures"`
	Successes      int           `json:"consecutive_successes"`
	TimesOpened    int64         `json:"times_opened"`
	TimeInState    time.Duration `json:"time_in_state"`
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(cfg BreakerConfig, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 1
	}
	cb := &CircuitBreaker{
		cfg:    cfg,
		logger: logger,
		state:  StateClosed,
		now:    time.Now,
	}
	cb.lastChange = cb.now()
	return cb
}

// Call executes fn unless the circuit is open. It returns fn's error, which
// counts as a failure, or *CircuitOpenError without invoking fn when blocked.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	cb.totalCalls++

	// An elapsed recovery window converts open into half-open: the next
	// call is the trial.
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.RecoveryTimeout {
		cb.transition(StateHalfOpen, "recovery timeout elapsed")
	}

	if cb.state == StateOpen {
		err := &CircuitOpenError{
			Failures: cb.failures,
			Since:    cb.now().Sub(cb.openedAt),
		}
		cb.mu.Unlock()
		return err
	}

	cb.mu.Unlock()

	if err := fn(); err != nil {
		cb.onFailure(err)
		return err
	}

	cb.onSuccess()
	return nil
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		State:          cb.state.String(),
		TotalCalls:     cb.totalCalls,
		TotalSuccesses: cb.totalSuccesses,
		TotalFailures:  cb.totalFailures,
		Failures:       cb.failures,
		Successes:      cb.successes,
		TimesOpened:    cb.timesOpened,
		TimeInState:    cb.now().Sub(cb.lastChange),
	}
}

// ForceOpen opens the circuit manually, e.g. ahead of known maintenance.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateOpen, "manual override")
}

// Reset returns the breaker to closed and clears consecutive counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.successes = 0
	cb.transition(StateClosed, "manual reset")
}

// onSuccess branches on the breaker's state at completion, not at call
// time: a call that started half-open may finish after a concurrent trial
// failure has re-opened the circuit, and its stale success must not close
// the breaker around the recovery window.
func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalSuccesses++

	switch cb.state {
	case StateOpen:
		// Stale: the circuit re-opened while this call was in flight.
	case StateHalfOpen:
		cb.failures = 0
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.successes = 0
			cb.transition(StateClosed, "trial calls succeeded")
		}
	default:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) onFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalFailures++
	cb.failures++
	cb.successes = 0
	cb.lastFailureAt = cb.now()

	cb.logger.Warn("protected call failed",
		"failures", cb.failures,
		"threshold", cb.cfg.FailureThreshold,
		"error", err,
	)

	switch {
	case cb.state == StateHalfOpen:
		// One failure during recovery re-opens immediately and restarts
		// the recovery timer.
		cb.transition(StateOpen, "failure during recovery attempt")
	case cb.failures >= cb.cfg.FailureThreshold:
		cb.transition(StateOpen, "failure threshold reached")
	}
}

// transition moves to a new state and logs it. Callers must hold cb.mu.
func (cb *CircuitBreaker) transition(to State, reason string) {
	if to == cb.state {
		return
	}

	from := cb.state
	cb.state = to
	cb.lastChange = cb.now()

	if to == StateOpen {
		cb.timesOpened++
		cb.openedAt = cb.lastChange
	}

	switch to {
	case StateOpen:
		cb.logger.Error("circuit breaker opened", "from", from.String(), "reason", reason)
	case StateClosed:
		cb.logger.Info("circuit breaker closed", "from", from.String(), "reason", reason)
	default:
		cb.logger.Warn("circuit breaker half-open", "from", from.String(), "reason", reason)
	}
}
