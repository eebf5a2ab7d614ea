package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is the lifecycle state of a dead-lettered item.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRetrying  Status = "RETRYING"
	StatusResolved  Status = "RESOLVED"
	StatusAbandoned Status = "ABANDONED"
)

// Item is one dead-lettered unit of work. AttemptCount counts drain
// retries and alone drives abandonment; FailureCount counts how often the
// item has been re-added by failing poll batches.
type Item struct {
	ID           uuid.UUID       `json:"id"`
	Key          string          `json:"key"`
	Payload      json.RawMessage `json:"payload"`
	Reason       string          `json:"reason"`
	AttemptCount int             `json:"attempt_count"`
	FailureCount int             `json:"failure_count"`
	MaxAttempts  int             `json:"max_attempts"`
	FirstSeen    time.Time       `json:"first_seen"`
	LastAttempt  time.Time       `json:"last_attempt"`
	NextRetry    time.Time       `json:"next_retry"`
	Status       Status          `json:"status"`
}

// Config bounds the queue's retry schedule.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Queue is a durable dead-letter queue in the dead_letters table.
type Queue struct {
	db     *pgxpool.Pool
	cfg    Config
	logger *slog.Logger

	now func() time.Time
}

// NewQueue creates a dead-letter queue backed by db.
func NewQueue(db *pgxpool.Pool, cfg Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{db: db, cfg: cfg, logger: logger, now: time.Now}
}

// retryDelay returns the wait before the given retry attempt, bounded
// exponential on the queue's own schedule.
func retryDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// Add records a failed item. A repeat failure of the same key updates the
// existing row: failure count up, reason and payload refreshed. The retry
// budget and schedule are untouched, a held watermark re-adds the same item
// every poll cycle and must not burn its drain attempts or push its next
// retry out. Status is also left alone so a RESOLVED or ABANDONED item is
// not silently revived.
func (q *Queue) Add(ctx context.Context, key string, payload any, reason string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal dead letter payload for %s: %w", key, err)
	}

	now := q.now()
	next := now.Add(retryDelay(q.cfg.BaseDelay, q.cfg.MaxDelay, 0))

	_, err = q.db.Exec(ctx, `
		INSERT INTO dead_letters (id, item_key, payload, reason, attempt_count, failure_count,
		                          max_attempts, first_seen, last_attempt, next_retry, status)
		VALUES ($1, $2, $3, $4, 0, 1, $5, $6, $6, $7, 'PENDING')
		ON CONFLICT (item_key) DO UPDATE SET
			payload       = EXCLUDED.payload,
			reason        = EXCLUDED.reason,
			failure_count = dead_letters.failure_count + 1,
			last_attempt  = EXCLUDED.last_attempt
	`, uuid.New(), key, body, reason, q.cfg.MaxAttempts, now, next)
	if err != nil {
		return fmt.Errorf("add dead letter %s: %w", key, err)
	}

	q.logger.Warn("item dead-lettered", "key", key, "reason", reason)
	return nil
}

// AddAbandoned records an item that failed permanently. It lands directly
// in ABANDONED for the operator's audit trail and is never scheduled.
func (q *Queue) AddAbandoned(ctx context.Context, key string, payload any, reason string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal dead letter payload for %s: %w", key, err)
	}

	now := q.now()
	_, err = q.db.Exec(ctx, `
		INSERT INTO dead_letters (id, item_key, payload, reason, attempt_count, failure_count,
		                          max_attempts, first_seen, last_attempt, next_retry, status)
		VALUES ($1, $2, $3, $4, 0, 1, $5, $6, $6, $6, 'ABANDONED')
		ON CONFLICT (item_key) DO UPDATE SET
			payload       = EXCLUDED.payload,
			reason        = EXCLUDED.reason,
			failure_count = dead_letters.failure_count + 1,
			last_attempt  = EXCLUDED.last_attempt,
			status        = 'ABANDONED'
	`, uuid.New(), key, body, reason, q.cfg.MaxAttempts, now)
	if err != nil {
		return fmt.Errorf("add abandoned dead letter %s: %w", key, err)
	}

	q.logger.Error("item abandoned on first failure", "key", key, "reason", reason)
	return nil
}

// GetDue returns up to limit items whose retry time has arrived, oldest
// first, and marks them RETRYING.
func (q *Queue) GetDue(ctx context.Context, limit int) ([]Item, error) {
	rows, err := q.db.Query(ctx, `
		UPDATE dead_letters SET status = 'RETRYING'
		WHERE id IN (
			SELECT id FROM dead_letters
			WHERE status IN ('PENDING', 'RETRYING') AND next_retry <= $1
			ORDER BY first_seen
			LIMIT $2
		)
		RETURNING id, item_key, payload, reason, attempt_count, failure_count,
		          max_attempts, first_seen, last_attempt, next_retry, status
	`, q.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("get due dead letters: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// MarkResolved records a successful retry.
func (q *Queue) MarkResolved(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE dead_letters SET status = 'RESOLVED', last_attempt = $2
		WHERE id = $1
	`, id, q.now())
	if err != nil {
		return fmt.Errorf("resolve dead letter %s: %w", id, err)
	}
	return nil
}

// nextAttempt decides the outcome of a failed retry: ABANDONED once the
// attempt budget is spent, otherwise PENDING with the next slot on the
// bounded exponential schedule.
func nextAttempt(cfg Config, attempts int, now time.Time) (Status, time.Time) {
	if attempts >= cfg.MaxAttempts {
		return StatusAbandoned, time.Time{}
	}
	return StatusPending, now.Add(retryDelay(cfg.BaseDelay, cfg.MaxDelay, attempts))
}

// IncrementRetry records a failed retry, scheduling the next attempt or
// abandoning the item once its budget is spent. It reports whether the item
// was abandoned.
func (q *Queue) IncrementRetry(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	now := q.now()

	var attempts int
	err := q.db.QueryRow(ctx, `
		UPDATE dead_letters SET
			attempt_count = attempt_count + 1,
			reason        = $2,
			last_attempt  = $3
		WHERE id = $1
		RETURNING attempt_count
	`, id, reason, now).Scan(&attempts)
	if err != nil {
		return false, fmt.Errorf("increment dead letter %s: %w", id, err)
	}

	status, next := nextAttempt(q.cfg, attempts, now)
	if status == StatusAbandoned {
		if _, err := q.db.Exec(ctx,
			`UPDATE dead_letters SET status = 'ABANDONED' WHERE id = $1`, id); err != nil {
			return false, fmt.Errorf("abandon dead letter %s: %w", id, err)
		}
		q.logger.Error("dead letter abandoned", "id", id, "attempts", attempts, "reason", reason)
		return true, nil
	}

	if _, err := q.db.Exec(ctx, `
		UPDATE dead_letters SET status = 'PENDING', next_retry = $2 WHERE id = $1
	`, id, next); err != nil {
		return false, fmt.Errorf("reschedule dead letter %s: %w", id, err)
	}
	return false, nil
}

// MarkAbandoned drops an item from the retry schedule immediately, used when
// a retry hits a permanent error.
func (q *Queue) MarkAbandoned(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE dead_letters SET status = 'ABANDONED', reason = $2, last_attempt = $3
		WHERE id = $1
	`, id, reason, q.now())
	if err != nil {
		return fmt.Errorf("abandon dead letter %s: %w", id, err)
	}
	q.logger.Error("dead letter abandoned", "id", id, "reason", reason)
	return nil
}

// List returns items filtered by status, or all items when status is empty,
// newest failures first.
func (q *Queue) List(ctx context.Context, status Status, limit int) ([]Item, error) {
	var rows pgx.Rows
	var err error
	if status == "" {
		rows, err = q.db.Query(ctx, `
			SELECT id, item_key, payload, reason, attempt_count, failure_count,
			       max_attempts, first_seen, last_attempt, next_retry, status
			FROM dead_letters ORDER BY last_attempt DESC LIMIT $1
		`, limit)
	} else {
		rows, err = q.db.Query(ctx, `
			SELECT id, item_key, payload, reason, attempt_count, failure_count,
			       max_attempts, first_seen, last_attempt, next_retry, status
			FROM dead_letters WHERE status = $1 ORDER BY last_attempt DESC LIMIT $2
		`, status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// Counts returns the number of items per status, for the stats endpoint.
func (q *Queue) Counts(ctx context.Context) (map[Status]int64, error) {
	rows, err := q.db.Query(ctx,
		`SELECT status, count(*) FROM dead_letters GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count dead letters: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int64)
	for rows.Next() {
		var st Status
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scan dead letter count: %w", err)
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

func scanItems(rows pgx.Rows) ([]Item, error) {
	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(
			&it.ID, &it.Key, &it.Payload, &it.Reason, &it.AttemptCount, &it.FailureCount,
			&it.MaxAttempts, &it.FirstSeen, &it.LastAttempt, &it.NextRetry, &it.Status,
		); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return out, nil
}
