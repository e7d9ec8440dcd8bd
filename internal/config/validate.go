package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *StreamerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Valkey.Addr == "" {
		return errors.New("valkey.addr is required")
	}
	if c.Valkey.MaxRetries < 0 {
		return errors.New("valkey.max_retries must be >= 0")
	}

	if c.Broadcast.FastInterval <= 0 {
		return errors.New("broadcast.fast_interval must be > 0")
	}
	if c.Broadcast.SlowInterval <= 0 {
		return errors.New("broadcast.slow_interval must be > 0")
	}
	if c.Broadcast.SlowInterval < c.Broadcast.FastInterval {
		return fmt.Errorf("broadcast.slow_interval (%s) must not be shorter than fast_interval (%s)",
			c.Broadcast.SlowInterval, c.Broadcast.FastInterval)
	}
	if c.Broadcast.Concurrency < 1 {
		return errors.New("broadcast.concurrency must be >= 1")
	}

	if c.Gateway.SendBuffer < 1 {
		return errors.New("gateway.send_buffer must be >= 1")
	}

	if c.Archive.BatchSize < 1 {
		return errors.New("archive.batch_size must be >= 1")
	}
	if c.Archive.KeepPerList < 0 {
		return errors.New("archive.keep_per_list must be >= 0")
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

// ValidateDatabase checks the archive database section; only the archiver
// requires it, so it is not part of Validate.
func (c *StreamerConfig) ValidateDatabase() error {
	db := c.Database
	if db.Host == "" {
		return errors.New("database.host is required")
	}
	if db.Name == "" {
		return errors.New("database.name is required")
	}
	if db.User == "" {
		return errors.New("database.user is required")
	}
	if db.Password == "" {
		return errors.New("database.password is required")
	}
	if db.MaxConns < 1 {
		return errors.New("database.max_conns must be >= 1")
	}
	if db.MinConns < 0 {
		return errors.New("database.min_conns must be >= 0")
	}
	if db.MinConns > db.MaxConns {
		return errors.New("database.min_conns must not exceed max_conns")
	}
	return nil
}
