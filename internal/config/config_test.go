package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-monitor
feed:
  url: https://data-api.example.com
  min_trade_size: 5000
database:
  postgres:
    host: localhost
    port: 5432
    name: test_db
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-monitor" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-monitor")
	}
	if cfg.Feed.URL != "https://data-api.example.com" {
		t.Errorf("Feed.URL = %q, want %q", cfg.Feed.URL, "https://data-api.example.com")
	}
	if cfg.Feed.MinTradeSize != 5000 {
		t.Errorf("Feed.MinTradeSize = %v, want 5000", cfg.Feed.MinTradeSize)
	}
	if cfg.Database.Postgres.Host != "localhost" {
		t.Errorf("Database.Postgres.Host = %q, want %q", cfg.Database.Postgres.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")
	t.Setenv("TEST_FEED_KEY", "key-abc")

	yaml := `
instance:
  id: test-monitor
feed:
  api_key: ${TEST_FEED_KEY}
database:
  postgres:
    host: localhost
    name: test_db
    user: testuser
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Postgres.Password != "secret123" {
		t.Errorf("Database.Postgres.Password = %q, want %q", cfg.Database.Postgres.Password, "secret123")
	}
	if cfg.Feed.APIKey != "key-abc" {
		t.Errorf("Feed.APIKey = %q, want %q", cfg.Feed.APIKey, "key-abc")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-monitor
database:
  postgres:
    host: localhost
    name: test_db
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Feed.URL != DefaultFeedURL {
		t.Errorf("Feed.URL = %q, want default %q", cfg.Feed.URL, DefaultFeedURL)
	}
	if cfg.Monitor.PollInterval != DefaultPollInterval {
		t.Errorf("Monitor.PollInterval = %v, want default %v", cfg.Monitor.PollInterval, DefaultPollInterval)
	}
	if cfg.Monitor.OverlapBuffer != DefaultOverlapBuffer {
		t.Errorf("Monitor.OverlapBuffer = %v, want default %v", cfg.Monitor.OverlapBuffer, DefaultOverlapBuffer)
	}
	if cfg.Guards.Feed.CallsPerSecond != DefaultCallsPerSecond {
		t.Errorf("Guards.Feed.CallsPerSecond = %v, want default %v", cfg.Guards.Feed.CallsPerSecond, DefaultCallsPerSecond)
	}
	if cfg.Guards.RPC.FailureThreshold != DefaultFailureThresh {
		t.Errorf("Guards.RPC.FailureThreshold = %d, want default %d", cfg.Guards.RPC.FailureThreshold, DefaultFailureThresh)
	}
	if cfg.DeadLetter.MaxAttempts != DefaultDLQMaxAttempts {
		t.Errorf("DeadLetter.MaxAttempts = %d, want default %d", cfg.DeadLetter.MaxAttempts, DefaultDLQMaxAttempts)
	}
	if cfg.Database.Postgres.Port != DefaultDBPort {
		t.Errorf("Database.Postgres.Port = %d, want default %d", cfg.Database.Postgres.Port, DefaultDBPort)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if len(cfg.Feed.Sources) != 1 || cfg.Feed.Sources[0].Name != DefaultSourceName {
		t.Fatalf("Feed.Sources = %+v, want one default source", cfg.Feed.Sources)
	}
	if cfg.Feed.Sources[0].MinTradeSize != DefaultMinTradeSize {
		t.Errorf("default source MinTradeSize = %v, want %v",
			cfg.Feed.Sources[0].MinTradeSize, DefaultMinTradeSize)
	}
}

func TestLoadMultipleSources(t *testing.T) {
	yaml := `
instance:
  id: test-monitor
feed:
  min_trade_size: 10000
  sources:
    - name: large_trades
    - name: whale_trades
      min_trade_size: 100000
database:
  postgres:
    host: localhost
    name: test_db
    user: testuser
    password: testpass
`
	cfg, err := LoadWithDefaults(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if len(cfg.Feed.Sources) != 2 {
		t.Fatalf("Sources = %+v, want 2", cfg.Feed.Sources)
	}
	// An unset per-source filter inherits the feed-wide one.
	if got := cfg.Feed.Sources[0].MinTradeSize; got != 10000 {
		t.Errorf("large_trades MinTradeSize = %v, want inherited 10000", got)
	}
	if got := cfg.Feed.Sources[1].MinTradeSize; got != 100000 {
		t.Errorf("whale_trades MinTradeSize = %v, want 100000", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() MonitorConfig {
		cfg := MonitorConfig{
			Instance: InstanceConfig{ID: "test"},
			Database: DatabaseConfig{
				Postgres: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10, MinConns: 2},
			},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*MonitorConfig)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *MonitorConfig) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *MonitorConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing postgres host",
			mutate:  func(c *MonitorConfig) { c.Database.Postgres.Host = "" },
			wantErr: "database.postgres.host is required",
		},
		{
			name:    "missing postgres password",
			mutate:  func(c *MonitorConfig) { c.Database.Postgres.Password = "" },
			wantErr: "database.postgres.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *MonitorConfig) {
				c.Database.Postgres.MaxConns = 5
				c.Database.Postgres.MinConns = 10
			},
			wantErr: "database.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "unnamed source",
			mutate:  func(c *MonitorConfig) { c.Feed.Sources[0].Name = "" },
			wantErr: "feed.sources entries require a name",
		},
		{
			name: "duplicate source name",
			mutate: func(c *MonitorConfig) {
				c.Feed.Sources = append(c.Feed.Sources, SourceConfig{Name: c.Feed.Sources[0].Name})
			},
			wantErr: `feed.sources has duplicate name "polymarket_trades"`,
		},
		{
			name:    "negative calls per second",
			mutate:  func(c *MonitorConfig) { c.Guards.Feed.CallsPerSecond = -1 },
			wantErr: "guards.feed.calls_per_second must be positive",
		},
		{
			name:    "zero failure threshold",
			mutate:  func(c *MonitorConfig) { c.Guards.RPC.FailureThreshold = -5 },
			wantErr: "guards.rpc.failure_threshold must be >= 1",
		},
		{
			name: "max_delay below base_delay",
			mutate: func(c *MonitorConfig) {
				c.Guards.Feed.BaseDelay = 10 * time.Second
				c.Guards.Feed.MaxDelay = time.Second
			},
			wantErr: "guards.feed.max_delay must be >= base_delay",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *MonitorConfig) { c.Monitor.PollInterval = -time.Second },
			wantErr: "monitor.poll_interval must be positive",
		},
		{
			name:    "stream enabled without url",
			mutate:  func(c *MonitorConfig) { c.Stream.Enabled = true },
			wantErr: "stream.ws_url is required when stream.enabled is true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
