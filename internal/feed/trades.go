package feed

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/polysentry/polysentry/internal/model"
)

// apiTrade is the wire shape of one trade from the data API.
type apiTrade struct {
	TransactionHash string  `json:"transactionHash"`
	Timestamp       int64   `json:"timestamp"`
	ConditionID     string  `json:"conditionId"`
	Title           string  `json:"title"`
	ProxyWallet     string  `json:"proxyWallet"`
	Outcome         string  `json:"outcome"`
	Side            string  `json:"side"`
	Price           float64 `json:"price"`
	Size            float64 `json:"size"`
}

func (t apiTrade) toModel(receivedAt time.Time) model.Trade {
	return model.Trade{
		TransactionHash: t.TransactionHash,
		Timestamp:       time.Unix(t.Timestamp, 0).UTC(),
		ReceivedAt:      receivedAt,
		MarketID:        t.ConditionID,
		Title:           t.Title,
		Wallet:          t.ProxyWallet,
		Outcome:         t.Outcome,
		Side:            t.Side,
		Price:           t.Price,
		SizeUSD:         t.Size * t.Price,
	}
}

// GetTrades fetches every trade in [since, until), paginating by offset
// until a short page signals the end.
func (c *Client) GetTrades(ctx context.Context, since, until time.Time) ([]model.Trade, error) {
	var all []model.Trade
	receivedAt := time.Now().UTC()

	for offset := 0; ; offset += c.fetchLimit {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(c.fetchLimit))
		query.Set("offset", strconv.Itoa(offset))
		query.Set("start_time", since.UTC().Format(time.RFC3339))
		query.Set("end_time", until.UTC().Format(time.RFC3339))

		var page []apiTrade
		if err := c.get(ctx, "/trades", query, &page); err != nil {
			return nil, fmt.Errorf("get trades: %w", err)
		}

		for _, t := range page {
			all = append(all, t.toModel(receivedAt))
		}

		if len(page) < c.fetchLimit {
			break
		}
	}

	c.logger.Debug("fetched trades",
		"count", len(all),
		"since", since,
		"until", until,
	)
	return all, nil
}
