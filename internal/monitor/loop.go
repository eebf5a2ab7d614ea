package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polysentry/polysentry/internal/checkpoint"
	"github.com/polysentry/polysentry/internal/deadletter"
	"github.com/polysentry/polysentry/internal/guard"
	"github.com/polysentry/polysentry/internal/model"
)

// Source fetches trades for a time window.
type Source interface {
	Name() string
	Fetch(ctx context.Context, since, until time.Time) ([]model.Trade, error)
}

// Processor handles one trade. It must be idempotent: the loop's overlap
// window and retry paths deliver the same trade more than once.
type Processor interface {
	Process(ctx context.Context, trade model.Trade) error
}

// CheckpointStore persists the loop's watermark.
type CheckpointStore interface {
	Get(ctx context.Context, source string) (checkpoint.Checkpoint, error)
	Save(ctx context.Context, source string, watermark time.Time, processed int) error
	RecordFailure(ctx context.Context, source string, reason string) error
}

// DeadLetters is the durable retry queue for failed trades.
type DeadLetters interface {
	Add(ctx context.Context, key string, payload any, reason string) error
	AddAbandoned(ctx context.Context, key string, payload any, reason string) error
	GetDue(ctx context.Context, limit int) ([]deadletter.Item, error)
	MarkResolved(ctx context.Context, id uuid.UUID) error
	IncrementRetry(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	MarkAbandoned(ctx context.Context, id uuid.UUID, reason string) error
}

// LoopConfig holds polling cadence and window shape.
type LoopConfig struct {
	PollInterval    time.Duration
	OverlapBuffer   time.Duration
	InitialLookback time.Duration
	DrainBatch      int
}

// LoopStats counts cycle outcomes.
type LoopStats struct {
	Cycles         int64      `json:"cycles"`
	SkippedCycles  int64      `json:"skipped_cycles"`
	FailedCycles   int64      `json:"failed_cycles"`
	TradesFetched  int64      `json:"trades_fetched"`
	TradesOK       int64      `json:"trades_ok"`
	TradesFailed   int64      `json:"trades_failed"`
	DrainResolved  int64      `json:"drain_resolved"`
	DrainAbandoned int64      `json:"drain_abandoned"`
	LastCycleAt    *time.Time `json:"last_cycle_at,omitempty"`
}

// Loop polls one source on a fixed cadence.
type Loop struct {
	cfg         LoopConfig
	source      Source
	processor   Processor
	checkpoints CheckpointStore
	deadLetters DeadLetters
	gateway     *guard.Gateway
	logger      *slog.Logger

	mu    sync.Mutex
	stats LoopStats

	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLoop creates a polling loop for one source.
func NewLoop(
	cfg LoopConfig,
	source Source,
	processor Processor,
	checkpoints CheckpointStore,
	deadLetters DeadLetters,
	gateway *guard.Gateway,
	logger *slog.Logger,
) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		cfg:         cfg,
		source:      source,
		processor:   processor,
		checkpoints: checkpoints,
		deadLetters: deadLetters,
		gateway:     gateway,
		logger:      logger.With("source", source.Name()),
		now:         time.Now,
	}
}

// Start begins the polling loop.
func (l *Loop) Start(ctx context.Context) error {
	l.ctx, l.cancel = context.WithCancel(ctx)

	l.wg.Add(1)
	go l.run()

	l.logger.Info("monitor loop started",
		"interval", l.cfg.PollInterval,
		"overlap", l.cfg.OverlapBuffer,
	)
	return nil
}

// Stop gracefully shuts down the loop, waiting for an in-flight cycle.
func (l *Loop) Stop(ctx context.Context) error {
	if l.cancel != nil {
		l.cancel()
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info("monitor loop stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SourceName identifies the source this loop polls.
func (l *Loop) SourceName() string { return l.source.Name() }

// Stats returns a snapshot of cycle counters.
func (l *Loop) Stats() LoopStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Loop) run() {
	defer l.wg.Done()

	// time.Ticker keeps the cadence anchored: a slow cycle does not push
	// subsequent ticks later and later.
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	l.runCycle()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.runCycle()
		}
	}
}

// runCycle is one poll: drain the dead-letter queue, fetch the window,
// process, then checkpoint or record the failure.
func (l *Loop) runCycle() {
	start := l.now()
	l.count(func(s *LoopStats) {
		s.Cycles++
		s.LastCycleAt = &start
	})

	l.drainDeadLetters()

	// Captured before the fetch so trades arriving mid-cycle fall into the
	// next window instead of the gap between fetch and checkpoint.
	pollStart := l.now()

	watermark, err := l.watermark(pollStart)
	if err != nil {
		l.logger.Error("load checkpoint failed", "error", err)
		l.count(func(s *LoopStats) { s.FailedCycles++ })
		return
	}

	since := watermark.Add(-l.cfg.OverlapBuffer)
	res, err := guard.Call(l.ctx, l.gateway, "fetch_trades",
		func(ctx context.Context) ([]model.Trade, error) {
			return l.source.Fetch(ctx, since, pollStart)
		})
	if err != nil {
		l.logger.Error("fetch failed", "error", err, "since", since, "until", pollStart)
		l.recordFailure("fetch: " + err.Error())
		return
	}
	if res.Unavailable {
		// Circuit open: skip the cycle. The watermark is untouched, so the
		// window grows and nothing is lost.
		l.count(func(s *LoopStats) { s.SkippedCycles++ })
		return
	}

	trades := res.Value
	l.count(func(s *LoopStats) { s.TradesFetched += int64(len(trades)) })

	failures := 0
	var firstErr error
	for _, trade := range trades {
		if l.ctx.Err() != nil {
			return
		}
		if err := l.processTrade(trade); err != nil {
			failures++
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if failures > 0 {
		l.logger.Warn("cycle had failures, watermark held",
			"failures", failures,
			"total", len(trades),
			"first_error", firstErr,
		)
		l.recordFailure(firstErr.Error())
		return
	}

	if err := l.checkpoints.Save(l.ctx, l.source.Name(), pollStart, len(trades)); err != nil {
		l.logger.Error("save checkpoint failed", "error", err)
		l.count(func(s *LoopStats) { s.FailedCycles++ })
		return
	}

	l.logger.Info("cycle complete",
		"trades", len(trades),
		"watermark", pollStart,
		"duration", l.now().Sub(start),
	)
}

// watermark returns the current checkpoint, or a lookback from pollStart
// for a source being polled for the first time.
func (l *Loop) watermark(pollStart time.Time) (time.Time, error) {
	cp, err := l.checkpoints.Get(l.ctx, l.source.Name())
	if errors.Is(err, checkpoint.ErrNotFound) {
		wm := pollStart.Add(-l.cfg.InitialLookback)
		l.logger.Info("no checkpoint, starting from lookback", "watermark", wm)
		return wm, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if cp.Watermark.IsZero() {
		// A failure-only checkpoint carries counters but no watermark. Never
		// poll from the zero time: that is a full-history fetch.
		return pollStart.Add(-l.cfg.InitialLookback), nil
	}
	return cp.Watermark, nil
}

// processTrade runs one trade through the processor, dead-lettering
// failures. Permanent failures are abandoned outright.
func (l *Loop) processTrade(trade model.Trade) error {
	err := l.processor.Process(l.ctx, trade)
	if err == nil {
		l.count(func(s *LoopStats) { s.TradesOK++ })
		return nil
	}

	l.count(func(s *LoopStats) { s.TradesFailed++ })

	var perm *PermanentError
	if errors.As(err, &perm) {
		if dlErr := l.deadLetters.AddAbandoned(l.ctx, trade.Key(), trade, err.Error()); dlErr != nil {
			l.logger.Error("abandon dead letter failed", "key", trade.Key(), "error", dlErr)
		}
		// Abandoned items don't hold the watermark back: retrying them is
		// pointless, so the batch can still complete.
		l.count(func(s *LoopStats) { s.TradesFailed--; s.TradesOK++ })
		return nil
	}

	if dlErr := l.deadLetters.Add(l.ctx, trade.Key(), trade, err.Error()); dlErr != nil {
		l.logger.Error("add dead letter failed", "key", trade.Key(), "error", dlErr)
	}
	return err
}

// drainDeadLetters retries due items before new work, so recovered
// dependencies clear the backlog oldest first.
func (l *Loop) drainDeadLetters() {
	items, err := l.deadLetters.GetDue(l.ctx, l.cfg.DrainBatch)
	if err != nil {
		l.logger.Error("get due dead letters failed", "error", err)
		return
	}
	if len(items) == 0 {
		return
	}

	l.logger.Info("draining dead letters", "count", len(items))

	for _, item := range items {
		if l.ctx.Err() != nil {
			return
		}

		var trade model.Trade
		if err := json.Unmarshal(item.Payload, &trade); err != nil {
			l.logger.Error("bad dead letter payload", "id", item.ID, "error", err)
			if dlErr := l.deadLetters.MarkAbandoned(l.ctx, item.ID, "unreadable payload: "+err.Error()); dlErr != nil {
				l.logger.Error("abandon dead letter failed", "id", item.ID, "error", dlErr)
			}
			l.count(func(s *LoopStats) { s.DrainAbandoned++ })
			continue
		}

		err := l.processor.Process(l.ctx, trade)
		switch {
		case err == nil:
			if dlErr := l.deadLetters.MarkResolved(l.ctx, item.ID); dlErr != nil {
				l.logger.Error("resolve dead letter failed", "id", item.ID, "error", dlErr)
				continue
			}
			l.count(func(s *LoopStats) { s.DrainResolved++ })

		case isPermanent(err):
			if dlErr := l.deadLetters.MarkAbandoned(l.ctx, item.ID, err.Error()); dlErr != nil {
				l.logger.Error("abandon dead letter failed", "id", item.ID, "error", dlErr)
				continue
			}
			l.count(func(s *LoopStats) { s.DrainAbandoned++ })

		default:
			abandoned, dlErr := l.deadLetters.IncrementRetry(l.ctx, item.ID, err.Error())
			if dlErr != nil {
				l.logger.Error("reschedule dead letter failed", "id", item.ID, "error", dlErr)
				continue
			}
			if abandoned {
				l.count(func(s *LoopStats) { s.DrainAbandoned++ })
			}
		}
	}
}

func isPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

func (l *Loop) recordFailure(reason string) {
	l.count(func(s *LoopStats) { s.FailedCycles++ })
	if err := l.checkpoints.RecordFailure(l.ctx, l.source.Name(), reason); err != nil {
		l.logger.Error("record checkpoint failure failed", "error", err)
	}
}

func (l *Loop) count(f func(*LoopStats)) {
	l.mu.Lock()
	f(&l.stats)
	l.mu.Unlock()
}
