package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Error is a JSON-RPC error object from the node.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Transaction is the subset of eth_getTransactionByHash the monitor reads.
type Transaction struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	BlockNumber string `json:"blockNumber"`
}

// Confirmed reports whether the transaction has been mined.
func (t *Transaction) Confirmed() bool {
	return t.BlockNumber != "" && t.BlockNumber != "0x0"
}

// Client talks JSON-RPC 2.0 to one node endpoint.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
	nextID     atomic.Int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a JSON-RPC client for the given endpoint.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// call performs one JSON-RPC request and unmarshals the result.
func (c *Client) call(ctx context.Context, method string, result any, params ...any) error {
	if params == nil {
		params = []any{}
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do %s request: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: http %d", method, resp.StatusCode)
	}

	var rr rpcResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return fmt.Errorf("unmarshal %s response: %w", method, err)
	}
	if rr.Error != nil {
		return rr.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rr.Result, result); err != nil {
		return fmt.Errorf("unmarshal %s result: %w", method, err)
	}
	return nil
}

// ChainID returns the node's chain id.
func (c *Client) ChainID(ctx context.Context) (int64, error) {
	var hex string
	if err := c.call(ctx, "eth_chainId", &hex); err != nil {
		return 0, err
	}
	n, err := parseHexQuantity(hex)
	if err != nil {
		return 0, fmt.Errorf("parse chain id: %w", err)
	}
	return n.Int64(), nil
}

// BlockNumber returns the latest block height.
func (c *Client) BlockNumber(ctx context.Context) (int64, error) {
	var hex string
	if err := c.call(ctx, "eth_blockNumber", &hex); err != nil {
		return 0, err
	}
	n, err := parseHexQuantity(hex)
	if err != nil {
		return 0, fmt.Errorf("parse block number: %w", err)
	}
	return n.Int64(), nil
}

// BalanceAt returns the wei balance of an address at the latest block.
func (c *Client) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	var hex string
	if err := c.call(ctx, "eth_getBalance", &hex, address, "latest"); err != nil {
		return nil, err
	}
	n, err := parseHexQuantity(hex)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	return n, nil
}

// TransactionCount returns the nonce of an address, a proxy for wallet
// activity history.
func (c *Client) TransactionCount(ctx context.Context, address string) (int64, error) {
	var hex string
	if err := c.call(ctx, "eth_getTransactionCount", &hex, address, "latest"); err != nil {
		return 0, err
	}
	n, err := parseHexQuantity(hex)
	if err != nil {
		return 0, fmt.Errorf("parse transaction count: %w", err)
	}
	return n.Int64(), nil
}

// TransactionByHash fetches a transaction, or nil if the node has never
// seen the hash.
func (c *Client) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	var tx *Transaction
	if err := c.call(ctx, "eth_getTransactionByHash", &tx, hash); err != nil {
		return nil, err
	}
	return tx, nil
}

func parseHexQuantity(s string) (*big.Int, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("empty hex quantity %q", s)
	}
	n, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("bad hex quantity %q", s)
	}
	return n, nil
}
