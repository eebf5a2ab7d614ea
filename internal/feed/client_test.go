package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleTrades(n int, startTS int64) []apiTrade {
	out := make([]apiTrade, n)
	for i := range out {
		out[i] = apiTrade{
			TransactionHash: "0x" + strconv.Itoa(i),
			Timestamp:       startTS + int64(i),
			ConditionID:     "cond-1",
			Title:           "Will it rain?",
			ProxyWallet:     "0xabc",
			Outcome:         "Yes",
			Side:            "BUY",
			Price:           0.5,
			Size:            100,
		}
	}
	return out
}

func TestGetTradesSinglePage(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trades" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		gotQuery = map[string]string{
			"limit":      q.Get("limit"),
			"start_time": q.Get("start_time"),
			"end_time":   q.Get("end_time"),
		}
		json.NewEncoder(w).Encode(sampleTrades(3, 1700000000))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithLogger(discardLogger()), WithFetchLimit(100))

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(time.Minute)
	trades, err := c.GetTrades(context.Background(), since, until)
	if err != nil {
		t.Fatalf("GetTrades: %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("got %d trades, want 3", len(trades))
	}
	if gotQuery["limit"] != "100" {
		t.Errorf("limit = %q, want 100", gotQuery["limit"])
	}
	if gotQuery["start_time"] != "2026-01-01T00:00:00Z" {
		t.Errorf("start_time = %q", gotQuery["start_time"])
	}
	if gotQuery["end_time"] != "2026-01-01T00:01:00Z" {
		t.Errorf("end_time = %q", gotQuery["end_time"])
	}

	got := trades[0]
	if got.TransactionHash != "0x0" {
		t.Errorf("TransactionHash = %q", got.TransactionHash)
	}
	if got.SizeUSD != 50 {
		t.Errorf("SizeUSD = %v, want 50 (100 * 0.5)", got.SizeUSD)
	}
	if !got.Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("Timestamp = %v", got.Timestamp)
	}
}

func TestGetTradesPaginates(t *testing.T) {
	const pageSize = 2
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		switch offset {
		case 0, 2:
			json.NewEncoder(w).Encode(sampleTrades(pageSize, int64(1700000000+offset)))
		default:
			json.NewEncoder(w).Encode(sampleTrades(1, 1700000010)) // short page ends it
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithLogger(discardLogger()), WithFetchLimit(pageSize))
	trades, err := c.GetTrades(context.Background(), time.Now().Add(-time.Minute), time.Now())
	if err != nil {
		t.Fatalf("GetTrades: %v", err)
	}
	if len(trades) != 5 {
		t.Errorf("got %d trades, want 5 across three pages", len(trades))
	}
}

func TestGetTradesSendsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]apiTrade{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", WithLogger(discardLogger()))
	if _, err := c.GetTrades(context.Background(), time.Now().Add(-time.Minute), time.Now()); err != nil {
		t.Fatalf("GetTrades: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestGetTradesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithLogger(discardLogger()))
	_, err := c.GetTrades(context.Background(), time.Now().Add(-time.Minute), time.Now())

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
	if !apiErr.IsRetryable() {
		t.Error("503 should be retryable")
	}
}

func TestAPIErrorRetryable(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{401, false},
		{404, false},
	}
	for _, tt := range tests {
		e := &APIError{StatusCode: tt.code}
		if got := e.IsRetryable(); got != tt.want {
			t.Errorf("IsRetryable(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestLargeTradeSourceFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]apiTrade{
			{TransactionHash: "0x1", Price: 0.5, Size: 30000},  // $15,000
			{TransactionHash: "0x2", Price: 0.5, Size: 1000},   // $500
			{TransactionHash: "0x3", Price: 0.25, Size: 40000}, // $10,000 exactly
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithLogger(discardLogger()))
	src := NewLargeTradeSource(c, "polymarket_trades", 10000, discardLogger())

	if src.Name() != "polymarket_trades" {
		t.Errorf("Name = %q", src.Name())
	}

	trades, err := src.Fetch(context.Background(), time.Now().Add(-time.Minute), time.Now())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2 at or above $10,000", len(trades))
	}
	if trades[0].TransactionHash != "0x1" || trades[1].TransactionHash != "0x3" {
		t.Errorf("kept %q and %q", trades[0].TransactionHash, trades[1].TransactionHash)
	}
}
