// Package feed provides the client for the Polymarket trade data API and
// the polling source that turns its paginated /trades endpoint into batches
// of large trades. Requests make a single attempt each; retries, rate
// limiting and circuit breaking belong to the gateway wrapping the calls.
package feed
