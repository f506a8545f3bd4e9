package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Settings struct {
	Publisher     PublisherSettings `mapstructure:"publisher"`
	Database      DbSettings        `mapstructure:"database"`
	Relay         RelaySettings     `mapstructure:"relay"`
	Executor      ExecutorSettings  `mapstructure:"executor"`
	Logging       LoggingSettings   `mapstructure:"logging"`
	Observability Observability     `mapstructure:"observability"`
}

func (c *Settings) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("relay.poll_interval", 5*time.Second)
	v.SetDefault("relay.batch_size", 10)
	v.SetDefault("relay.max_attempts", 3)
	v.SetDefault("relay.retry_backoff", time.Second)
	v.SetDefault("executor.pool_size", 1)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("observability.service_name", "pubsub-publisher")
}

// LoadFromFile reads publisher.yaml from filePath (or the working directory),
// merges publisher.<ENVIRONMENT>.yaml over it, applies PUBLISHER_* environment
// variables and validates the result. A missing file is not an error.
func LoadFromFile(filePath string) (*Settings, error) {
	env := getEnvWithDefaultLookup("ENVIRONMENT", "development")

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetConfigName("publisher")
	v.AddConfigPath(filePath)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := mergeConfig(v, filePath, "publisher."+env); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to merge %s config: %w", env, err)
		}
	}

	cfg := &Settings{}
	if err := loadFromEnv(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to load from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv fills c from defaults and PUBLISHER_* environment variables only.
func (c *Settings) LoadFromEnv() error {
	v := viper.New()
	setDefaults(v)
	return loadFromEnv(v, c)
}

func loadFromEnv(v *viper.Viper, c *Settings) error {
	v.SetEnvPrefix("PUBLISHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // PUBLISHER_PUBLISHER_PROJECT_ID, PUBLISHER_RELAY_BATCH_SIZE
	v.AutomaticEnv()

	// Bind explicitly so keys absent from the file still unmarshal from env.
	keys := []string{
		"publisher.project_id",
		"publisher.topic",
		"publisher.credentials_file",
		"publisher.endpoint",
		"database.type",
		"database.dsn",
		"database.uri",
		"database.database",
		"database.collection",
		"relay.poll_interval",
		"relay.batch_size",
		"relay.max_attempts",
		"relay.retry_backoff",
		"executor.pool_size",
		"logging.level",
		"logging.format",
		"logging.output",
		"observability.service_name",
		"observability.tracing_url",
		"observability.metrics_addr",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}

	return v.Unmarshal(c)
}

func mergeConfig(v *viper.Viper, path string, name string) error {
	v.SetConfigName(name)
	v.AddConfigPath(path)
	return v.MergeInConfig()
}

func getEnvWithDefaultLookup(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}
