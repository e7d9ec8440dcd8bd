package config

import "time"

// StreamerConfig is the root configuration for a streamer instance.
type StreamerConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Valkey    ValkeyConfig    `yaml:"valkey"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Database  DBConfig        `yaml:"database"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Health    HealthConfig    `yaml:"health"`
}

// InstanceConfig identifies this streamer. Multiple instances may run against
// the same state store.
type InstanceConfig struct {
	ID string `yaml:"id"`
	AZ string `yaml:"az"`
}

// ValkeyConfig holds the shared state store connection.
type ValkeyConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	OpTimeout   time.Duration `yaml:"op_timeout"`   // Per-call timeout
	MaxRetries  int           `yaml:"max_retries"`  // Bounded retries per call
	RetryDelay  time.Duration `yaml:"retry_delay"`  // Delay between retries
	DialTimeout time.Duration `yaml:"dial_timeout"` // Initial connect timeout
}

// GatewayConfig holds the websocket gateway settings.
type GatewayConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	WriteWait      time.Duration `yaml:"write_wait"`
	PongWait       time.Duration `yaml:"pong_wait"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBuffer     int           `yaml:"send_buffer"`   // Per-connection outbound queue
	ConnectionTTL  time.Duration `yaml:"connection_ttl"` // Registry record TTL
}

// BroadcastConfig holds the fan-out broadcaster settings. The three policy
// booleans are independent; pointer types distinguish "unset" from "false" so
// defaults can enable them.
type BroadcastConfig struct {
	FastInterval time.Duration `yaml:"fast_interval"` // Realtime-tier cadence
	SlowInterval time.Duration `yaml:"slow_interval"` // Anonymous-tier cadence
	Concurrency  int           `yaml:"concurrency"`   // Fan-out limit per tick

	TierFiltering     *bool `yaml:"tier_filtering"`     // Filter targets by tier
	ChangeSuppression *bool `yaml:"change_suppression"` // Skip byte-identical resends
	LegacyUnion       *bool `yaml:"legacy_union"`       // Union legacy subscriber sets
}

// DBConfig holds the archive database connection.
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

// ArchiveConfig holds the trade archiver settings.
type ArchiveConfig struct {
	Interval    time.Duration `yaml:"interval"`     // Sweep cadence
	BatchSize   int           `yaml:"batch_size"`   // Rows per insert batch
	KeepPerList int           `yaml:"keep_per_list"` // Trade-list length after trim
}

// HealthConfig holds the health/stats HTTP endpoint settings.
type HealthConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// TierFilteringEnabled reports the tier-filtering policy (default on).
func (c BroadcastConfig) TierFilteringEnabled() bool {
	return c.TierFiltering == nil || *c.TierFiltering
}

// ChangeSuppressionEnabled reports the change-suppression policy (default on).
func (c BroadcastConfig) ChangeSuppressionEnabled() bool {
	return c.ChangeSuppression == nil || *c.ChangeSuppression
}

// LegacyUnionEnabled reports the legacy-set union policy (default on).
func (c BroadcastConfig) LegacyUnionEnabled() bool {
	return c.LegacyUnion == nil || *c.LegacyUnion
}
