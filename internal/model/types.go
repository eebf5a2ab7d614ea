package model

import (
	"fmt"
	"regexp"
	"time"
)

// Trade represents a single fill observed on the trade feed.
type Trade struct {
	TransactionHash string    // Primary key (on-chain settlement transaction)
	Timestamp       time.Time // Exchange timestamp
	ReceivedAt      time.Time // Monitor receive timestamp
	MarketID        string    // Condition ID of the market
	Title           string    // Market question, when the feed includes it
	Wallet          string    // Proxy wallet that placed the trade
	Outcome         string    // Outcome bought (e.g. "Yes", "No")
	Side            string    // "BUY" or "SELL"
	Price           float64   // Fill price in probability terms (0-1)
	SizeUSD         float64   // Notional in USDC
}

// Key returns the trade's unique external identifier, used as the
// idempotency key for storage and dead-letter bookkeeping.
func (t Trade) Key() string {
	return t.TransactionHash
}

var (
	txHashRe  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// ValidateTxHash checks that s is a 32-byte hex transaction hash with 0x prefix.
func ValidateTxHash(s string) error {
	if s == "" {
		return fmt.Errorf("transaction hash is empty")
	}
	if len(s) != 66 {
		return fmt.Errorf("transaction hash length %d, want 66", len(s))
	}
	if !txHashRe.MatchString(s) {
		return fmt.Errorf("transaction hash contains non-hex characters")
	}
	return nil
}

// ValidateAddress checks that s is a 20-byte hex account address with 0x prefix.
func ValidateAddress(s string) error {
	if s == "" {
		return fmt.Errorf("address is empty")
	}
	if len(s) != 42 {
		return fmt.Errorf("address length %d, want 42", len(s))
	}
	if !addressRe.MatchString(s) {
		return fmt.Errorf("address contains non-hex characters")
	}
	return nil
}
