// Package model defines shared data types used across the monitor.
//
// Conventions:
//   - Timestamps: time.Time in UTC
//   - Prices: float64 probability (0-1), sizes in USDC
//   - IDs: 0x-prefixed hex strings as delivered by the feed and the chain
package model
