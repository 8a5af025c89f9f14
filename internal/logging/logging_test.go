package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/config"
)

func TestNewHonoursLevel(t *testing.T) {
	logger, err := New(config.AppConfig{Name: "dupreport"}, config.LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNewConsoleDebug(t *testing.T) {
	logger, err := New(config.AppConfig{Env: "development"}, config.LoggingConfig{Level: "DEBUG"})
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.AppConfig{}, config.LoggingConfig{Level: "loud"})
	require.ErrorContains(t, err, "logging level")
}
