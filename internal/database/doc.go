// Package database provides connection pool management for PostgreSQL.
//
// The monitor owns three durable tables:
//   - monitor_checkpoints: per-source polling watermarks
//   - dead_letters: failed work items awaiting retry or operator attention
//   - trades: idempotently stored detections, keyed by transaction hash
package database
