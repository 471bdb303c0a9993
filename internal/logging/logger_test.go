package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Options{Development: true})
	require.NoError(t, err)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Options{})
	require.NoError(t, err)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestNewHonoursLevel(t *testing.T) {
	t.Parallel()

	logger, err := New(Options{Development: true, Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = New(Options{Level: "loud"})
	require.Error(t, err)
}

func TestValidateLevel(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateLevel(""))
	require.NoError(t, ValidateLevel("error"))
	require.Error(t, ValidateLevel("verbose"))
}

func TestWithRunAddsRunID(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	WithRun(zap.New(core), "run-1").Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "run-1", entries[0].ContextMap()["run_id"])
}

func TestWithRunNilLogger(t *testing.T) {
	t.Parallel()
	require.NotNil(t, WithRun(nil, "x"))
}
