package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAPITimeout           = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultReconnectAttempts    = 5
	DefaultReconnectInterval    = 1 * time.Second
	DefaultReconnectMaxInterval = 30 * time.Second
	DefaultBackoffMultiplier    = 1.0
	DefaultPingInterval         = 15 * time.Second
	DefaultConnectTimeout       = 10 * time.Second
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 1 * time.Second
)

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Realtime defaults
	if c.Realtime.ReconnectAttempts == 0 {
		c.Realtime.ReconnectAttempts = DefaultReconnectAttempts
	}
	if c.Realtime.ReconnectInterval == 0 {
		c.Realtime.ReconnectInterval = DefaultReconnectInterval
	}
	if c.Realtime.ReconnectMaxInterval == 0 {
		c.Realtime.ReconnectMaxInterval = DefaultReconnectMaxInterval
	}
	if c.Realtime.BackoffMultiplier == 0 {
		c.Realtime.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if c.Realtime.PingInterval == 0 {
		c.Realtime.PingInterval = DefaultPingInterval
	}
	if c.Realtime.ConnectTimeout == 0 {
		c.Realtime.ConnectTimeout = DefaultConnectTimeout
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Recorder defaults
	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
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
