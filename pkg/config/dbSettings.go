package config

import "time"

// DbSettings selects the outbox store the relay reads from.
type DbSettings struct {
	Type       string `mapstructure:"type" validate:"omitempty,oneof=postgres spanner mongo"`
	DSN        string `mapstructure:"dsn" validate:"required_if=Type postgres"`
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database" validate:"required_if=Type mongo"`
	Collection string `mapstructure:"collection"`
}

// RelaySettings tunes the outbox relay loop.
type RelaySettings struct {
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gte=0"`
	BatchSize    int           `mapstructure:"batch_size" validate:"gte=1"`
	MaxAttempts  int           `mapstructure:"max_attempts" validate:"gte=1"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" validate:"gte=0"`
}
