package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server ServerConfig `mapstructure:"server" validate:"required"`
	Engine EngineConfig `mapstructure:"engine" validate:"required"`
}

// ServerConfig contains process-level settings.
type ServerConfig struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// ShutdownTimeout bounds how long shutdown waits for in-flight
	// tasks to drain
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// EngineConfig contains the task engine's tuning knobs.
type EngineConfig struct {
	MaxConcurrentTasks     int           `mapstructure:"max_concurrent_tasks"     validate:"required,gt=0"`
	MaxRetries             int           `mapstructure:"max_retries"              validate:"gte=0"`
	SchedulerInterval      time.Duration `mapstructure:"scheduler_interval"       validate:"required,gt=0"`
	CleanupInterval        time.Duration `mapstructure:"cleanup_interval"         validate:"required,gt=0"`
	TaskTimeout            time.Duration `mapstructure:"task_timeout"             validate:"required,gt=0"`
	CompletedTaskRetention time.Duration `mapstructure:"completed_task_retention" validate:"required,gt=0"`
	FailedTaskRetention    time.Duration `mapstructure:"failed_task_retention"    validate:"required,gt=0"`
	QueueCapacity          int           `mapstructure:"queue_capacity"           validate:"required,gt=0"`
	UserTaskLimit          int           `mapstructure:"user_task_limit"          validate:"required,gt=0"`
}
