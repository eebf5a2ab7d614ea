package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/polysentry/polysentry/internal/model"
)

// LargeTradeSource fetches trades from the data API and keeps only those at
// or above the configured notional size.
type LargeTradeSource struct {
	client       *Client
	name         string
	minTradeSize float64
	logger       *slog.Logger
}

// NewLargeTradeSource creates a named source filtering to trades worth at
// least minTradeSize dollars. The name keys the source's checkpoint row, so
// several sources with different filters can poll the same feed.
func NewLargeTradeSource(client *Client, name string, minTradeSize float64, logger *slog.Logger) *LargeTradeSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &LargeTradeSource{
		client:       client,
		name:         name,
		minTradeSize: minTradeSize,
		logger:       logger,
	}
}

// Name identifies this source's checkpoint row.
func (s *LargeTradeSource) Name() string { return s.name }

// Fetch returns the large trades in [since, until).
func (s *LargeTradeSource) Fetch(ctx context.Context, since, until time.Time) ([]model.Trade, error) {
	trades, err := s.client.GetTrades(ctx, since, until)
	if err != nil {
		return nil, err
	}

	large := trades[:0]
	for _, t := range trades {
		if t.SizeUSD >= s.minTradeSize {
			large = append(large, t)
		}
	}

	if dropped := len(trades) - len(large); dropped > 0 {
		s.logger.Debug("filtered small trades",
			"kept", len(large),
			"dropped", dropped,
			"min_size_usd", s.minTradeSize,
		)
	}
	return large, nil
}
