package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}

	if c.Realtime.URL == "" {
		return errors.New("realtime.url is required")
	}
	if c.Realtime.ReconnectAttempts < 0 {
		return errors.New("realtime.reconnect_attempts must be >= 0")
	}
	if c.Realtime.ReconnectInterval <= 0 {
		return errors.New("realtime.reconnect_interval must be > 0")
	}
	if c.Realtime.BackoffMultiplier < 1 {
		return fmt.Errorf("realtime.backoff_multiplier must be >= 1, got %g", c.Realtime.BackoffMultiplier)
	}
	if c.Realtime.PingInterval <= 0 {
		return errors.New("realtime.ping_interval must be > 0")
	}

	if c.Recorder.Enabled {
		if len(c.Recorder.EventTypes) == 0 {
			return errors.New("recorder.event_types is required when the recorder is enabled")
		}
		if c.Recorder.BatchSize < 1 {
			return errors.New("recorder.batch_size must be >= 1")
		}
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
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
	if db.Port < 1 || db.Port > 65535 {
		return fmt.Errorf("%s.port must be between 1 and 65535, got %d", prefix, db.Port)
	}
	return nil
}
