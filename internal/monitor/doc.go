// Package monitor implements the checkpointed polling loop.
//
// Each cycle:
//   - drains due dead letters before fetching new work
//   - captures the cycle start time before fetching, so trades arriving
//     mid-cycle land in the next window
//   - fetches [watermark - overlap, cycle start) through the feed gateway
//   - processes each trade; failures are dead-lettered
//   - advances the checkpoint only when every trade in the batch succeeded
//
// Delivery is at least once. The overlap re-fetches the boundary and a
// failed batch is re-fetched whole, so processors must be idempotent.
package monitor
