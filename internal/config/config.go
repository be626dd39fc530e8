package config

import "time"

// Config is the root configuration for a streamwatch instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	API      APIConfig      `yaml:"api"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Database DatabaseConfig `yaml:"database"`
	Recorder RecorderConfig `yaml:"recorder"`
}

// InstanceConfig identifies this client instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds dashboard REST API settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// RealtimeConfig holds realtime event client settings.
type RealtimeConfig struct {
	URL                  string        `yaml:"url"`
	ReconnectAttempts    int           `yaml:"reconnect_attempts"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	ReconnectMaxInterval time.Duration `yaml:"reconnect_max_interval"`
	BackoffMultiplier    float64       `yaml:"backoff_multiplier"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
}

// DatabaseConfig holds the Postgres connection for the event archive.
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

// RecorderConfig holds event archive settings.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	EventTypes    []string      `yaml:"event_types"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}
