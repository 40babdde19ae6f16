// Package main implements a small host process for the task lifecycle
// engine: it loads configuration, sets up logging, wires an engine with
// an in-memory event emitter, registers a demo handler, and runs until
// interrupted.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/artforge/taskengine/internal/config"
	"github.com/artforge/taskengine/internal/events"
	"github.com/artforge/taskengine/internal/platform/logger"
	"github.com/artforge/taskengine/internal/task"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Failed to run engine: %v", err)
	}
}

// logEventHandler logs every lifecycle event it receives.
type logEventHandler struct {
	logger *slog.Logger
}

func (h *logEventHandler) HandleEvent(_ context.Context, event *events.Event) error {
	h.logger.Info("lifecycle event",
		"event_kind", event.Kind,
		"task_id", event.TaskID,
		"user_id", event.UserID,
		"task_type", event.TaskType,
		"retry_count", event.RetryCount,
		"reason", event.Reason)
	return nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("engine configuration loaded",
		"log_level", cfg.Server.LogLevel,
		"max_concurrent_tasks", cfg.Engine.MaxConcurrentTasks,
		"queue_capacity", cfg.Engine.QueueCapacity)

	emitter := events.NewInMemoryEventEmitter(appLogger)
	emitter.RegisterHandler(&logEventHandler{logger: appLogger})

	engine, err := task.NewEngine(task.Config{
		MaxConcurrentTasks:     cfg.Engine.MaxConcurrentTasks,
		MaxRetries:             cfg.Engine.MaxRetries,
		SchedulerInterval:      cfg.Engine.SchedulerInterval,
		CleanupInterval:        cfg.Engine.CleanupInterval,
		TaskTimeout:            cfg.Engine.TaskTimeout,
		CompletedTaskRetention: cfg.Engine.CompletedTaskRetention,
		FailedTaskRetention:    cfg.Engine.FailedTaskRetention,
		QueueCapacity:          cfg.Engine.QueueCapacity,
		UserTaskLimit:          cfg.Engine.UserTaskLimit,
	}, emitter, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	// Demo handler: echoes the submitted payload back as the result.
	engine.RegisterHandler("echo", func(_ context.Context, rec *task.Record) (json.RawMessage, error) {
		return rec.Payload, nil
	})

	if err := engine.Start(); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	appLogger.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := engine.Dispose(ctx); err != nil {
		return fmt.Errorf("failed to dispose engine: %w", err)
	}
	return nil
}
