package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/polysentry/polysentry/internal/model"
)

// Config configures the supervised stream.
type Config struct {
	WSURL              string
	BufferSize         int
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	PingInterval       time.Duration
	ReadTimeout        time.Duration
	MinTradeSize       float64
}

// Stats counts stream activity.
type Stats struct {
	Connects      int64 `json:"connects"`
	Disconnects   int64 `json:"disconnects"`
	TradesSeen    int64 `json:"trades_seen"`
	TradesEmitted int64 `json:"trades_emitted"`
	ParseErrors   int64 `json:"parse_errors"`
}

// wireTrade is the shape of a trade event on the WebSocket feed.
type wireTrade struct {
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

// Stream owns one connection at a time and reconnects with bounded
// exponential backoff when it dies. Large trades come out of Trades().
type Stream struct {
	cfg    Config
	logger *slog.Logger

	trades chan model.Trade

	mu    sync.Mutex
	stats Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// newClient is swapped in tests to avoid real dials.
	newClient func() *Client
}

// New creates a stream supervisor.
func New(cfg Config, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stream{
		cfg:    cfg,
		logger: logger,
		trades: make(chan model.Trade, cfg.BufferSize),
	}
	s.newClient = func() *Client {
		cc := DefaultClientConfig()
		cc.URL = cfg.WSURL
		cc.BufferSize = cfg.BufferSize
		if cfg.PingInterval > 0 {
			cc.PingInterval = cfg.PingInterval
		}
		if cfg.ReadTimeout > 0 {
			cc.ReadTimeout = cfg.ReadTimeout
		}
		return NewClient(cc, logger)
	}
	return s
}

// Trades returns the channel of large trades from the stream.
func (s *Stream) Trades() <-chan model.Trade {
	return s.trades
}

// Stats returns a snapshot of stream counters.
func (s *Stream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Start begins the connect-consume-reconnect loop.
func (s *Stream) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("trade stream started", "url", s.cfg.WSURL)
	return nil
}

// Stop shuts the stream down and waits for the supervisor goroutine.
func (s *Stream) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("trade stream stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stream) run() {
	defer s.wg.Done()

	backoff := s.cfg.ReconnectBaseDelay

	for {
		if s.ctx.Err() != nil {
			return
		}

		client := s.newClient()
		if err := client.Connect(s.ctx); err != nil {
			s.logger.Warn("stream connect failed", "error", err, "retry_in", backoff)
			if !s.sleep(backoff) {
				return
			}
			backoff = nextBackoff(backoff, s.cfg.ReconnectMaxDelay)
			continue
		}

		s.count(func(st *Stats) { st.Connects++ })
		backoff = s.cfg.ReconnectBaseDelay

		s.consume(client)
		client.Close()
		s.count(func(st *Stats) { st.Disconnects++ })

		if s.ctx.Err() != nil {
			return
		}
		s.logger.Warn("stream disconnected, reconnecting", "wait", backoff)
		if !s.sleep(backoff) {
			return
		}
		backoff = nextBackoff(backoff, s.cfg.ReconnectMaxDelay)
	}
}

// consume forwards trades from one connection until it dies or the stream
// is stopped.
func (s *Stream) consume(client *Client) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case err := <-client.Errors():
			s.logger.Warn("stream connection error", "error", err)
			return
		case msg := <-client.Messages():
			s.handle(msg)
		}
	}
}

func (s *Stream) handle(msg TimestampedMessage) {
	var wt wireTrade
	if err := json.Unmarshal(msg.Data, &wt); err != nil || wt.TransactionHash == "" {
		s.count(func(st *Stats) { st.ParseErrors++ })
		return
	}

	s.count(func(st *Stats) { st.TradesSeen++ })

	trade := model.Trade{
		TransactionHash: wt.TransactionHash,
		Timestamp:       time.Unix(wt.Timestamp, 0).UTC(),
		ReceivedAt:      msg.ReceivedAt.UTC(),
		MarketID:        wt.ConditionID,
		Title:           wt.Title,
		Wallet:          wt.ProxyWallet,
		Outcome:         wt.Outcome,
		Side:            wt.Side,
		Price:           wt.Price,
		SizeUSD:         wt.Size * wt.Price,
	}
	if trade.SizeUSD < s.cfg.MinTradeSize {
		return
	}

	select {
	case s.trades <- trade:
		s.count(func(st *Stats) { st.TradesEmitted++ })
	default:
		s.logger.Warn("trade channel full, dropping", "tx", trade.TransactionHash)
	}
}

// sleep waits for d or until the stream is stopped, reporting whether the
// caller should continue.
func (s *Stream) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func (s *Stream) count(f func(*Stats)) {
	s.mu.Lock()
	f(&s.stats)
	s.mu.Unlock()
}
