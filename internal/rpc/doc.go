// Package rpc is a minimal JSON-RPC 2.0 client for the Polygon endpoint,
// covering the handful of eth_ methods the monitor uses to verify trades
// and profile wallets. Like the feed client it makes one attempt per call
// and leaves resilience policy to the gateway.
package rpc
