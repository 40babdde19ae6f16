package logger

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artforge/taskengine/internal/config"
)

func serverConfig(level string) config.ServerConfig {
	return config.ServerConfig{
		LogLevel:        level,
		ShutdownTimeout: 30 * time.Second,
	}
}

func TestSetup(t *testing.T) {
	testCases := []struct {
		name         string
		level        string
		debugEnabled bool
		warnEnabled  bool
	}{
		{name: "debug level", level: "debug", debugEnabled: true, warnEnabled: true},
		{name: "info level", level: "info", debugEnabled: false, warnEnabled: true},
		{name: "warn level", level: "warn", debugEnabled: false, warnEnabled: true},
		{name: "error level", level: "error", debugEnabled: false, warnEnabled: false},
		{name: "case insensitive", level: "WARN", debugEnabled: false, warnEnabled: true},
		{name: "invalid level falls back to info", level: "loud", debugEnabled: false, warnEnabled: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			logger, err := Setup(serverConfig(tc.level))
			require.NoError(t, err)
			require.NotNil(t, logger)

			ctx := context.Background()
			assert.Equal(t, tc.debugEnabled, logger.Enabled(ctx, slog.LevelDebug))
			assert.Equal(t, tc.warnEnabled, logger.Enabled(ctx, slog.LevelWarn))
		})
	}
}

func TestSetupSetsDefaultLogger(t *testing.T) {
	logger, err := Setup(serverConfig("info"))
	require.NoError(t, err)

	assert.Equal(t, logger, slog.Default())
}
