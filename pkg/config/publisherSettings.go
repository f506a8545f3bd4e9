package config

// PublisherSettings identifies the topic and how to reach it.
type PublisherSettings struct {
	ProjectID       string `mapstructure:"project_id" validate:"required"`
	Topic           string `mapstructure:"topic" validate:"required"`
	CredentialsFile string `mapstructure:"credentials_file" validate:"omitempty,file"`
	// Endpoint points the client at an emulator; authentication is disabled when set.
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,hostname_port"`
}

// ExecutorSettings sizes the pool used for blocking shutdown work.
type ExecutorSettings struct {
	PoolSize int `mapstructure:"pool_size" validate:"gte=1"`
}
