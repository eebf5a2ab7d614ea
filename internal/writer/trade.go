package writer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polysentry/polysentry/internal/guard"
	"github.com/polysentry/polysentry/internal/model"
	"github.com/polysentry/polysentry/internal/monitor"
	"github.com/polysentry/polysentry/internal/rpc"
)

// TradeWriter validates, optionally verifies, and inserts trades.
type TradeWriter struct {
	db     *pgxpool.Pool
	logger *slog.Logger

	// On-chain verification, nil when disabled.
	chain   *rpc.Client
	chainGW *guard.Gateway

	mu      sync.Mutex
	metrics WriterMetrics
}

// WriterMetrics counts processing outcomes.
type WriterMetrics struct {
	Inserts    int64 `json:"inserts"`
	Duplicates int64 `json:"duplicates"`
	Rejected   int64 `json:"rejected"`
	Verified   int64 `json:"verified"`
	Unverified int64 `json:"unverified"`
	Errors     int64 `json:"errors"`
}

// NewTradeWriter creates a trade writer. chain and chainGW may both be nil
// to skip on-chain verification.
func NewTradeWriter(db *pgxpool.Pool, chain *rpc.Client, chainGW *guard.Gateway, logger *slog.Logger) *TradeWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TradeWriter{
		db:      db,
		logger:  logger,
		chain:   chain,
		chainGW: chainGW,
	}
}

// Process validates and stores one trade. Malformed trades come back as
// *monitor.PermanentError so the loop sends them straight to abandonment
// instead of retrying data that can never become valid.
func (w *TradeWriter) Process(ctx context.Context, trade model.Trade) error {
	if err := model.ValidateTxHash(trade.TransactionHash); err != nil {
		w.count(func(m *WriterMetrics) { m.Rejected++ })
		return &monitor.PermanentError{Err: fmt.Errorf("trade %s: %w", trade.TransactionHash, err)}
	}
	if err := model.ValidateAddress(trade.Wallet); err != nil {
		w.count(func(m *WriterMetrics) { m.Rejected++ })
		return &monitor.PermanentError{Err: fmt.Errorf("trade %s wallet: %w", trade.TransactionHash, err)}
	}

	verified := w.verify(ctx, trade.TransactionHash)

	ct, err := w.db.Exec(ctx, `
		INSERT INTO trades (transaction_hash, trade_ts, received_at, market_id, title,
		                    wallet, outcome, side, price, size_usd, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (transaction_hash) DO NOTHING
	`, trade.TransactionHash, trade.Timestamp, trade.ReceivedAt, trade.MarketID, trade.Title,
		trade.Wallet, trade.Outcome, trade.Side, trade.Price, trade.SizeUSD, verified)
	if err != nil {
		w.count(func(m *WriterMetrics) { m.Errors++ })
		return fmt.Errorf("insert trade %s: %w", trade.TransactionHash, err)
	}

	if ct.RowsAffected() == 0 {
		w.count(func(m *WriterMetrics) { m.Duplicates++ })
		w.logger.Debug("duplicate trade skipped", "tx", trade.TransactionHash)
		return nil
	}

	w.count(func(m *WriterMetrics) { m.Inserts++ })
	w.logger.Info("trade stored",
		"tx", trade.TransactionHash,
		"market", trade.MarketID,
		"size_usd", trade.SizeUSD,
		"verified", verified,
	)
	return nil
}

// verify checks the transaction exists on chain. Any failure, including an
// open circuit, degrades to unverified.
func (w *TradeWriter) verify(ctx context.Context, txHash string) bool {
	if w.chain == nil || w.chainGW == nil {
		return false
	}

	res, err := guard.Call(ctx, w.chainGW, "verify_tx", func(ctx context.Context) (*rpc.Transaction, error) {
		return w.chain.TransactionByHash(ctx, txHash)
	})
	if err != nil {
		w.count(func(m *WriterMetrics) { m.Unverified++ })
		w.logger.Warn("on-chain verification failed", "tx", txHash, "error", err)
		return false
	}
	if res.Unavailable || res.Value == nil || !res.Value.Confirmed() {
		w.count(func(m *WriterMetrics) { m.Unverified++ })
		return false
	}

	w.count(func(m *WriterMetrics) { m.Verified++ })
	return true
}

// Stats returns a snapshot of processing counters.
func (w *TradeWriter) Stats() WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

func (w *TradeWriter) count(f func(*WriterMetrics)) {
	w.mu.Lock()
	f(&w.metrics)
	w.mu.Unlock()
}
