package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables (prefix TASKENGINE_) take
// precedence over values from the config file, which takes precedence
// over defaults. Returns a populated Config or an error if loading or
// validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional taskengine.yaml in the working directory or /etc/taskengine
	v.SetConfigName("taskengine")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/taskengine")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("TASKENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("engine.max_concurrent_tasks", 5)
	v.SetDefault("engine.max_retries", 3)
	v.SetDefault("engine.scheduler_interval", "1s")
	v.SetDefault("engine.cleanup_interval", "1m")
	v.SetDefault("engine.task_timeout", "10m")
	v.SetDefault("engine.completed_task_retention", "1m")
	v.SetDefault("engine.failed_task_retention", "1h")
	v.SetDefault("engine.queue_capacity", 1000)
	v.SetDefault("engine.user_task_limit", 3)
}
