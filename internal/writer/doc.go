// Package writer persists trades to the trades table. Processing is
// idempotent: the transaction hash is the primary key and re-inserts are
// ON CONFLICT DO NOTHING, so the at-least-once delivery upstream never
// produces duplicate rows. On-chain verification is best effort and runs
// through its own gateway; an unreachable node degrades to an unverified
// insert rather than a failed one.
package writer
