package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultValkeyAddr        = "localhost:6379"
	DefaultOpTimeout         = 2 * time.Second
	DefaultMaxRetries        = 3
	DefaultRetryDelay        = 50 * time.Millisecond
	DefaultDialTimeout       = 5 * time.Second
	DefaultListenAddr        = ":8090"
	DefaultWriteWait         = 2 * time.Second
	DefaultPongWait          = 60 * time.Second
	DefaultMaxMessageSize    = 4096
	DefaultSendBuffer        = 64
	DefaultConnectionTTL     = 24 * time.Hour
	DefaultFastInterval      = 75 * time.Millisecond
	DefaultSlowInterval      = 500 * time.Millisecond
	DefaultFanoutConcurrency = 32
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultArchiveInterval   = 10 * time.Minute
	DefaultArchiveBatchSize  = 500
	DefaultKeepPerList       = 1000
	DefaultHealthPort        = 8080
	DefaultHealthPath        = "/health"
)

func (c *StreamerConfig) applyDefaults() {
	// Valkey defaults
	if c.Valkey.Addr == "" {
		c.Valkey.Addr = DefaultValkeyAddr
	}
	if c.Valkey.OpTimeout == 0 {
		c.Valkey.OpTimeout = DefaultOpTimeout
	}
	if c.Valkey.MaxRetries == 0 {
		c.Valkey.MaxRetries = DefaultMaxRetries
	}
	if c.Valkey.RetryDelay == 0 {
		c.Valkey.RetryDelay = DefaultRetryDelay
	}
	if c.Valkey.DialTimeout == 0 {
		c.Valkey.DialTimeout = DefaultDialTimeout
	}

	// Gateway defaults
	if c.Gateway.ListenAddr == "" {
		c.Gateway.ListenAddr = DefaultListenAddr
	}
	if c.Gateway.WriteWait == 0 {
		c.Gateway.WriteWait = DefaultWriteWait
	}
	if c.Gateway.PongWait == 0 {
		c.Gateway.PongWait = DefaultPongWait
	}
	if c.Gateway.MaxMessageSize == 0 {
		c.Gateway.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.Gateway.SendBuffer == 0 {
		c.Gateway.SendBuffer = DefaultSendBuffer
	}
	if c.Gateway.ConnectionTTL == 0 {
		c.Gateway.ConnectionTTL = DefaultConnectionTTL
	}

	// Broadcast defaults
	if c.Broadcast.FastInterval == 0 {
		c.Broadcast.FastInterval = DefaultFastInterval
	}
	if c.Broadcast.SlowInterval == 0 {
		c.Broadcast.SlowInterval = DefaultSlowInterval
	}
	if c.Broadcast.Concurrency == 0 {
		c.Broadcast.Concurrency = DefaultFanoutConcurrency
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Archive defaults
	if c.Archive.Interval == 0 {
		c.Archive.Interval = DefaultArchiveInterval
	}
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultArchiveBatchSize
	}
	if c.Archive.KeepPerList == 0 {
		c.Archive.KeepPerList = DefaultKeepPerList
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Health.Path == "" {
		c.Health.Path = DefaultHealthPath
	}
}
