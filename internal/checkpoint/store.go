package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Checkpoint is the durable polling position for one source.
type Checkpoint struct {
	SourceName        string     `json:"source_name"`
	Watermark         time.Time  `json:"watermark"`
	TotalProcessed    int64      `json:"total_processed"`
	TotalFailures     int64      `json:"total_failures"`
	LastFailureReason string     `json:"last_failure_reason,omitempty"`
	LastFailureAt     *time.Time `json:"last_failure_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ErrNotFound is returned by Get when a source has no checkpoint yet.
var ErrNotFound = errors.New("checkpoint not found")

// Store reads and writes checkpoints in the monitor_checkpoints table.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a checkpoint store backed by db.
func NewStore(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Get returns the checkpoint for source, or ErrNotFound. A row that only
// ever recorded failures has no watermark yet and also reports ErrNotFound,
// so the caller's initial lookback still applies.
func (s *Store) Get(ctx context.Context, source string) (Checkpoint, error) {
	var cp Checkpoint
	var wm *time.Time
	err := s.db.QueryRow(ctx, `
		SELECT source_name, watermark, total_processed, total_failures,
		       COALESCE(last_failure_reason, ''), last_failure_at, updated_at
		FROM monitor_checkpoints
		WHERE source_name = $1
	`, source).Scan(
		&cp.SourceName, &wm, &cp.TotalProcessed, &cp.TotalFailures,
		&cp.LastFailureReason, &cp.LastFailureAt, &cp.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint for %s: %w", source, err)
	}
	if wm == nil {
		return Checkpoint{}, ErrNotFound
	}
	cp.Watermark = *wm
	return cp, nil
}

// Save advances the watermark for source after a fully successful batch.
// GREATEST keeps the watermark monotonic even if callers hand in an older
// timestamp, so a checkpoint can never move backwards; it skips NULLs, so
// the first Save over a failure-only row takes effect.
func (s *Store) Save(ctx context.Context, source string, watermark time.Time, processed int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO monitor_checkpoints (source_name, watermark, total_processed, total_failures, updated_at)
		VALUES ($1, $2, $3, 0, now())
		ON CONFLICT (source_name) DO UPDATE SET
			watermark       = GREATEST(monitor_checkpoints.watermark, EXCLUDED.watermark),
			total_processed = monitor_checkpoints.total_processed + EXCLUDED.total_processed,
			updated_at      = now()
	`, source, watermark, processed)
	if err != nil {
		return fmt.Errorf("save checkpoint for %s: %w", source, err)
	}

	s.logger.Debug("checkpoint advanced",
		"source", source,
		"watermark", watermark,
		"processed", processed,
	)
	return nil
}

// RecordFailure bumps the failure counter and reason without touching the
// watermark, so the failed window stays inside the next poll. A failure
// before any successful batch inserts the row with a NULL watermark: the
// source is still unpolled as far as Get is concerned.
func (s *Store) RecordFailure(ctx context.Context, source string, reason string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO monitor_checkpoints (source_name, watermark, total_processed, total_failures,
		                                 last_failure_reason, last_failure_at, updated_at)
		VALUES ($1, NULL, 0, 1, $2, now(), now())
		ON CONFLICT (source_name) DO UPDATE SET
			total_failures      = monitor_checkpoints.total_failures + 1,
			last_failure_reason = EXCLUDED.last_failure_reason,
			last_failure_at     = now(),
			updated_at          = now()
	`, source, reason)
	if err != nil {
		return fmt.Errorf("record checkpoint failure for %s: %w", source, err)
	}
	return nil
}

// List returns every checkpoint, for the stats endpoint.
func (s *Store) List(ctx context.Context) ([]Checkpoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT source_name, watermark, total_processed, total_failures,
		       COALESCE(last_failure_reason, ''), last_failure_at, updated_at
		FROM monitor_checkpoints
		ORDER BY source_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var wm *time.Time
		if err := rows.Scan(
			&cp.SourceName, &wm, &cp.TotalProcessed, &cp.TotalFailures,
			&cp.LastFailureReason, &cp.LastFailureAt, &cp.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		if wm != nil {
			cp.Watermark = *wm
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}
