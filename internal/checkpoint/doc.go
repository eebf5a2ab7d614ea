// Package checkpoint persists per-source polling watermarks so a restarted
// monitor resumes from where it left off instead of re-scanning history or
// skipping the gap. Watermarks only move forward; a batch with failures
// records the failure and leaves the watermark untouched, so the failed
// window is re-fetched on the next cycle.
package checkpoint
