package config

import "time"

// MonitorConfig is the root configuration for a monitor instance.
type MonitorConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Feed       FeedConfig       `yaml:"feed"`
	RPC        RPCConfig        `yaml:"rpc"`
	Database   DatabaseConfig   `yaml:"database"`
	Guards     GuardsConfig     `yaml:"guards"`
	Monitor    LoopConfig       `yaml:"monitor"`
	DeadLetter DeadLetterConfig `yaml:"deadletter"`
	Stream     StreamConfig     `yaml:"stream"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// InstanceConfig identifies this monitor. The instance ID doubles as the
// checkpoint source name prefix, so two instances with the same ID must
// never poll the same source concurrently.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig holds trade-feed API settings.
type FeedConfig struct {
	URL          string         `yaml:"url"`
	APIKey       string         `yaml:"api_key"`
	Timeout      time.Duration  `yaml:"timeout"`
	MinTradeSize float64        `yaml:"min_trade_size"` // USD filter for large trades
	FetchLimit   int            `yaml:"fetch_limit"`    // max records per fetch page
	Sources      []SourceConfig `yaml:"sources"`        // polled sources; defaults to one
}

// SourceConfig names one polled source. Each source runs its own loop
// against its own checkpoint, so several size tiers can be tracked
// independently off the same feed.
type SourceConfig struct {
	Name         string  `yaml:"name"`
	MinTradeSize float64 `yaml:"min_trade_size"` // falls back to feed.min_trade_size
}

// RPCConfig holds blockchain RPC endpoint settings.
type RPCConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	ChainID int64         `yaml:"chain_id"` // expected chain, for a startup sanity check
}

// DatabaseConfig holds the PostgreSQL connection used for checkpoints,
// dead letters and stored trades.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// GuardsConfig holds one protection-stack configuration per rate-limited
// dependency. A limiter/breaker pair is scoped to exactly one dependency
// and shared by every call site that hits it.
type GuardsConfig struct {
	Feed GuardConfig `yaml:"feed"`
	RPC  GuardConfig `yaml:"rpc"`
}

// GuardConfig configures the rate limiter, circuit breaker and retry
// executor protecting one outbound dependency.
type GuardConfig struct {
	CallsPerSecond   float64       `yaml:"calls_per_second"`
	BurstSize        int           `yaml:"burst_size"`
	AcquireTimeout   time.Duration `yaml:"acquire_timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
	SuccessThreshold int           `yaml:"success_threshold"`
	MaxRetries       int           `yaml:"max_retries"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
}

// LoopConfig holds polling loop settings.
type LoopConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	OverlapBuffer   time.Duration `yaml:"overlap_buffer"`
	InitialLookback time.Duration `yaml:"initial_lookback"` // window when no checkpoint exists yet
	DrainBatch      int           `yaml:"drain_batch"`      // dead letters reprocessed per cycle
}

// DeadLetterConfig holds dead-letter retry schedule settings.
type DeadLetterConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// StreamConfig holds the optional live WebSocket trade subscription.
type StreamConfig struct {
	Enabled            bool          `yaml:"enabled"`
	WSURL              string        `yaml:"ws_url"`
	BufferSize         int           `yaml:"buffer_size"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
}

// MetricsConfig holds the health/stats HTTP server settings.
type MetricsConfig struct {
	Port int `yaml:"port"`
}
