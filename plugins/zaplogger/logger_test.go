//go:build unit

package zaplogger_test

import (
	"errors"
	"testing"

	"github.com/hugolhafner/go-bulkload/logger"
	"github.com/hugolhafner/go-bulkload/plugins/zaplogger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_ForwardsFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	l := zaplogger.New(zap.New(core)).With("component", "writer")

	l.Warn("Batch write failed", "sequence", uint64(7), "attempt", 2)

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.Equal(t, "Batch write failed", entries[0].Message)

	ctx := entries[0].ContextMap()
	require.Equal(t, "writer", ctx["component"])
	require.Equal(t, uint64(7), ctx["sequence"])
	require.EqualValues(t, 2, ctx["attempt"])
}

func TestZapLogger_OddKeyValues(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	l := zaplogger.New(zap.New(core))

	l.Info("odd", "dangling")

	require.Len(t, logs.All(), 1)
	require.Contains(t, logs.All()[0].ContextMap(), "dangling")
}

func TestZapLogger_Level(t *testing.T) {
	t.Parallel()

	core, _ := observer.New(zapcore.WarnLevel)
	l := zaplogger.New(zap.New(core))

	require.Equal(t, logger.WarnLevel, l.Level())
}

func TestZapLogger_SkipsDisabledLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	l := zaplogger.New(zap.New(core))

	l.Debug("hidden", "key", "value")
	l.Error("Write failed", "error", errors.New("boom"), 3, "three")

	entries := logs.All()
	require.Len(t, entries, 1)

	ctx := entries[0].ContextMap()
	require.Equal(t, "boom", ctx["error"])
	require.Equal(t, "three", ctx["3"])
}
