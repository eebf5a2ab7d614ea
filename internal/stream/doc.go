// Package stream provides an optional low-latency trade feed over
// WebSocket. It complements the polling loop rather than replacing it: the
// stream surfaces large trades seconds after they happen, while the
// checkpointed poller remains the source of record and backfills anything
// the stream dropped.
package stream
