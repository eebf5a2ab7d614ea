package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultFeedURL        = "https://data-api.polymarket.com"
	DefaultFeedTimeout    = 10 * time.Second
	DefaultMinTradeSize   = 10000.0
	DefaultFetchLimit     = 1000
	DefaultSourceName     = "polymarket_trades"
	DefaultRPCURL         = "https://polygon-rpc.com"
	DefaultRPCTimeout     = 15 * time.Second
	DefaultChainID        = 137
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 10
	DefaultMinConns       = 2
	DefaultCallsPerSecond = 10.0
	DefaultBurstSize      = 20
	DefaultAcquireTimeout = 10 * time.Second
	DefaultFailureThresh  = 5
	DefaultRecoveryWindow = 60 * time.Second
	DefaultSuccessThresh  = 2
	DefaultMaxRetries     = 3
	DefaultBaseDelay      = 1 * time.Second
	DefaultMaxDelay       = 30 * time.Second
	DefaultPollInterval   = 60 * time.Second
	DefaultOverlapBuffer  = 5 * time.Second
	DefaultLookback       = 1 * time.Hour
	DefaultDrainBatch     = 100
	DefaultDLQMaxAttempts = 5
	DefaultDLQBaseDelay   = 5 * time.Minute
	DefaultDLQMaxDelay    = 2 * time.Hour
	DefaultStreamBuffer   = 1000
	DefaultReconnectBase  = 1 * time.Second
	DefaultReconnectMax   = 60 * time.Second
	DefaultPingInterval   = 15 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	DefaultMetricsPort    = 9090
)

func (c *MonitorConfig) applyDefaults() {
	// Feed defaults
	if c.Feed.URL == "" {
		c.Feed.URL = DefaultFeedURL
	}
	if c.Feed.Timeout == 0 {
		c.Feed.Timeout = DefaultFeedTimeout
	}
	if c.Feed.MinTradeSize == 0 {
		c.Feed.MinTradeSize = DefaultMinTradeSize
	}
	if c.Feed.FetchLimit == 0 {
		c.Feed.FetchLimit = DefaultFetchLimit
	}
	if len(c.Feed.Sources) == 0 {
		c.Feed.Sources = []SourceConfig{{Name: DefaultSourceName}}
	}
	for i := range c.Feed.Sources {
		if c.Feed.Sources[i].MinTradeSize == 0 {
			c.Feed.Sources[i].MinTradeSize = c.Feed.MinTradeSize
		}
	}

	// RPC defaults
	if c.RPC.URL == "" {
		c.RPC.URL = DefaultRPCURL
	}
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = DefaultRPCTimeout
	}
	if c.RPC.ChainID == 0 {
		c.RPC.ChainID = DefaultChainID
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Guard defaults, per dependency
	applyGuardDefaults(&c.Guards.Feed)
	applyGuardDefaults(&c.Guards.RPC)

	// Loop defaults
	if c.Monitor.PollInterval == 0 {
		c.Monitor.PollInterval = DefaultPollInterval
	}
	if c.Monitor.OverlapBuffer == 0 {
		c.Monitor.OverlapBuffer = DefaultOverlapBuffer
	}
	if c.Monitor.InitialLookback == 0 {
		c.Monitor.InitialLookback = DefaultLookback
	}
	if c.Monitor.DrainBatch == 0 {
		c.Monitor.DrainBatch = DefaultDrainBatch
	}

	// Dead-letter defaults
	if c.DeadLetter.MaxAttempts == 0 {
		c.DeadLetter.MaxAttempts = DefaultDLQMaxAttempts
	}
	if c.DeadLetter.BaseDelay == 0 {
		c.DeadLetter.BaseDelay = DefaultDLQBaseDelay
	}
	if c.DeadLetter.MaxDelay == 0 {
		c.DeadLetter.MaxDelay = DefaultDLQMaxDelay
	}

	// Stream defaults
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBuffer
	}
	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBase
	}
	if c.Stream.ReconnectMaxDelay == 0 {
		c.Stream.ReconnectMaxDelay = DefaultReconnectMax
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.ReadTimeout == 0 {
		c.Stream.ReadTimeout = DefaultReadTimeout
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

func applyGuardDefaults(g *GuardConfig) {
	if g.CallsPerSecond == 0 {
		g.CallsPerSecond = DefaultCallsPerSecond
	}
	if g.BurstSize == 0 {
		g.BurstSize = DefaultBurstSize
	}
	if g.AcquireTimeout == 0 {
		g.AcquireTimeout = DefaultAcquireTimeout
	}
	if g.FailureThreshold == 0 {
		g.FailureThreshold = DefaultFailureThresh
	}
	if g.RecoveryTimeout == 0 {
		g.RecoveryTimeout = DefaultRecoveryWindow
	}
	if g.SuccessThreshold == 0 {
		g.SuccessThreshold = DefaultSuccessThresh
	}
	if g.MaxRetries == 0 {
		g.MaxRetries = DefaultMaxRetries
	}
	if g.BaseDelay == 0 {
		g.BaseDelay = DefaultBaseDelay
	}
	if g.MaxDelay == 0 {
		g.MaxDelay = DefaultMaxDelay
	}
}
