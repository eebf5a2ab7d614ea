package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *MonitorConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Database.Postgres.validate("database.postgres"); err != nil {
		return err
	}

	if err := c.Guards.Feed.validate("guards.feed"); err != nil {
		return err
	}
	if err := c.Guards.RPC.validate("guards.rpc"); err != nil {
		return err
	}

	if c.Feed.MinTradeSize < 0 {
		return errors.New("feed.min_trade_size must be >= 0")
	}
	if c.Feed.FetchLimit < 1 {
		return errors.New("feed.fetch_limit must be >= 1")
	}
	seen := make(map[string]bool, len(c.Feed.Sources))
	for _, src := range c.Feed.Sources {
		if src.Name == "" {
			return errors.New("feed.sources entries require a name")
		}
		if seen[src.Name] {
			return fmt.Errorf("feed.sources has duplicate name %q", src.Name)
		}
		seen[src.Name] = true
		if src.MinTradeSize < 0 {
			return fmt.Errorf("feed.sources[%s].min_trade_size must be >= 0", src.Name)
		}
	}

	if c.Monitor.PollInterval <= 0 {
		return errors.New("monitor.poll_interval must be positive")
	}
	if c.Monitor.OverlapBuffer < 0 {
		return errors.New("monitor.overlap_buffer must be >= 0")
	}
	if c.Monitor.DrainBatch < 1 {
		return errors.New("monitor.drain_batch must be >= 1")
	}

	if c.DeadLetter.MaxAttempts < 1 {
		return errors.New("deadletter.max_attempts must be >= 1")
	}
	if c.DeadLetter.BaseDelay <= 0 {
		return errors.New("deadletter.base_delay must be positive")
	}
	if c.DeadLetter.MaxDelay < c.DeadLetter.BaseDelay {
		return errors.New("deadletter.max_delay must be >= deadletter.base_delay")
	}

	if c.Stream.Enabled && c.Stream.WSURL == "" {
		return errors.New("stream.ws_url is required when stream.enabled is true")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (g *GuardConfig) validate(prefix string) error {
	if g.CallsPerSecond <= 0 {
		return fmt.Errorf("%s.calls_per_second must be positive", prefix)
	}
	if g.BurstSize < 1 {
		return fmt.Errorf("%s.burst_size must be >= 1", prefix)
	}
	if g.FailureThreshold < 1 {
		return fmt.Errorf("%s.failure_threshold must be >= 1", prefix)
	}
	if g.RecoveryTimeout <= 0 {
		return fmt.Errorf("%s.recovery_timeout must be positive", prefix)
	}
	if g.SuccessThreshold < 1 {
		return fmt.Errorf("%s.success_threshold must be >= 1", prefix)
	}
	if g.MaxRetries < 0 {
		return fmt.Errorf("%s.max_retries must be >= 0", prefix)
	}
	if g.BaseDelay <= 0 {
		return fmt.Errorf("%s.base_delay must be positive", prefix)
	}
	if g.MaxDelay < g.BaseDelay {
		return fmt.Errorf("%s.max_delay must be >= base_delay", prefix)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
