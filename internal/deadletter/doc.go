// Package deadletter stores items that failed processing so they survive
// restarts and get retried on their own backoff schedule, separate from the
// transport-level retries around each call. An item is keyed by its
// idempotency key; repeated failures of the same item update one row rather
// than piling up duplicates.
package deadletter
