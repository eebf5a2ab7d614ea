package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the monitor's tables if they do not exist. It runs
// once at startup so a fresh database needs no manual migration step.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS monitor_checkpoints (
			source_name         TEXT PRIMARY KEY,
			watermark           TIMESTAMPTZ,
			total_processed     BIGINT NOT NULL DEFAULT 0,
			total_failures      BIGINT NOT NULL DEFAULT 0,
			last_failure_reason TEXT,
			last_failure_at     TIMESTAMPTZ,
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS dead_letters (
			id            UUID PRIMARY KEY,
			item_key      TEXT NOT NULL UNIQUE,
			payload       JSONB NOT NULL,
			reason        TEXT NOT NULL,
			attempt_count INT NOT NULL DEFAULT 0,
			failure_count INT NOT NULL DEFAULT 1,
			max_attempts  INT NOT NULL,
			first_seen    TIMESTAMPTZ NOT NULL,
			last_attempt  TIMESTAMPTZ NOT NULL,
			next_retry    TIMESTAMPTZ NOT NULL,
			status        TEXT NOT NULL DEFAULT 'PENDING'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dead_letters_due
			ON dead_letters (next_retry) WHERE status IN ('PENDING', 'RETRYING')`,
		`CREATE TABLE IF NOT EXISTS trades (
			transaction_hash TEXT PRIMARY KEY,
			trade_ts         TIMESTAMPTZ NOT NULL,
			received_at      TIMESTAMPTZ NOT NULL,
			market_id        TEXT NOT NULL,
			title            TEXT NOT NULL,
			wallet           TEXT NOT NULL,
			outcome          TEXT NOT NULL,
			side             TEXT NOT NULL,
			price            DOUBLE PRECISION NOT NULL,
			size_usd         DOUBLE PRECISION NOT NULL,
			verified         BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades (trade_ts)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_wallet ON trades (wallet)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
