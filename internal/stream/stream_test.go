package stream

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// wsServer upgrades each connection and hands it to handler.
func wsServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientReceivesMessages(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"hello":"world"}`))
		// Hold the connection open until the client goes away.
		conn.ReadMessage()
	})

	cfg := DefaultClientConfig()
	cfg.URL = wsURL(srv)
	c := NewClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if !c.IsConnected() {
		t.Error("IsConnected = false after Connect")
	}

	select {
	case msg := <-c.Messages():
		if string(msg.Data) != `{"hello":"world"}` {
			t.Errorf("Data = %s", msg.Data)
		}
		if msg.ReceivedAt.IsZero() {
			t.Error("ReceivedAt not set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestClientErrorOnServerClose(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		// Close immediately.
	})

	cfg := DefaultClientConfig()
	cfg.URL = wsURL(srv)
	c := NewClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	select {
	case <-c.Errors():
	case <-time.After(2 * time.Second):
		t.Fatal("no error after server close")
	}
}

func TestClientSendBeforeConnect(t *testing.T) {
	c := NewClient(DefaultClientConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := c.Send([]byte("x")); err != ErrNotConnected {
		t.Errorf("Send = %v, want ErrNotConnected", err)
	}
}

func TestClientConnectAfterClose(t *testing.T) {
	c := NewClient(DefaultClientConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("Connect = %v, want ErrAlreadyClosed", err)
	}
}

func TestStreamEmitsLargeTradesAndReconnects(t *testing.T) {
	tradeJSON := func(tx string, size float64) []byte {
		b, _ := json.Marshal(wireTrade{
			TransactionHash: tx,
			Timestamp:       1700000000,
			ConditionID:     "cond",
			ProxyWallet:     "0xw",
			Price:           0.5,
			Size:            size,
		})
		return b
	}

	conns := make(chan struct{}, 4)
	srv := wsServer(t, func(conn *websocket.Conn) {
		conns <- struct{}{}
		conn.WriteMessage(websocket.TextMessage, tradeJSON("0xbig", 30000)) // $15,000
		conn.WriteMessage(websocket.TextMessage, tradeJSON("0xsmall", 10))  // $5
		// Drop the connection to force a reconnect.
	})

	s := New(Config{
		WSURL:              wsURL(srv),
		BufferSize:         16,
		ReconnectBaseDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:  50 * time.Millisecond,
		MinTradeSize:       10000,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	}()

	select {
	case trade := <-s.Trades():
		if trade.TransactionHash != "0xbig" {
			t.Errorf("first trade = %q, want the large one", trade.TransactionHash)
		}
		if trade.SizeUSD != 15000 {
			t.Errorf("SizeUSD = %v", trade.SizeUSD)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no trade emitted")
	}

	// The dropped connection should be replaced.
	for i := 0; i < 2; i++ {
		select {
		case <-conns:
		case <-time.After(3 * time.Second):
			t.Fatalf("connection %d never arrived", i+1)
		}
	}
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		current, max, want time.Duration
	}{
		{time.Second, time.Minute, 2 * time.Second},
		{30 * time.Second, time.Minute, time.Minute},
		{time.Minute, time.Minute, time.Minute},
	}
	for _, tt := range tests {
		if got := nextBackoff(tt.current, tt.max); got != tt.want {
			t.Errorf("nextBackoff(%v, %v) = %v, want %v", tt.current, tt.max, got, tt.want)
		}
	}
}
