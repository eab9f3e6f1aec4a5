//go:build unit

package logger_test

import (
	"testing"

	"github.com/hugolhafner/go-bulkload/logger"
	mocklogger "github.com/hugolhafner/go-bulkload/logger/mock"
	"github.com/stretchr/testify/require"
)

type recordingBase struct {
	level   logger.LogLevel
	entries [][]any
}

func (r *recordingBase) Level() logger.LogLevel {
	return r.level
}

func (r *recordingBase) Log(level logger.LogLevel, msg string, kv ...any) {
	r.entries = append(r.entries, append([]any{level, msg}, kv...))
}

func TestLevelWrapper_With(t *testing.T) {
	t.Parallel()

	base := &recordingBase{}
	root := logger.WrapLogger(base)
	child := root.With("component", "writer")
	grandchild := child.With("sequence", 3)

	root.Info("root")
	grandchild.Warn("nested", "attempt", 2)
	child.Error("child")

	require.Equal(
		t, [][]any{
			{logger.InfoLevel, "root"},
			{logger.WarnLevel, "nested", "component", "writer", "sequence", 3, "attempt", 2},
			{logger.ErrorLevel, "child", "component", "writer"},
		}, base.entries,
	)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		expected logger.LogLevel
		wantErr  bool
	}{
		{"debug", logger.DebugLevel, false},
		{"INFO", logger.InfoLevel, false},
		{"", logger.InfoLevel, false},
		{"warning", logger.WarnLevel, false},
		{"error", logger.ErrorLevel, false},
		{"trace", logger.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(
			tt.in, func(t *testing.T) {
				t.Parallel()

				lvl, err := logger.ParseLevel(tt.in)
				if tt.wantErr {
					require.Error(t, err)
					return
				}
				require.NoError(t, err)
				require.Equal(t, tt.expected, lvl)
				require.Equal(t, tt.expected.String(), lvl.String())
			},
		)
	}
}

func TestEnabled(t *testing.T) {
	t.Parallel()

	base := &recordingBase{level: logger.WarnLevel}
	require.False(t, logger.Enabled(base, logger.InfoLevel))
	require.True(t, logger.Enabled(base, logger.WarnLevel))
	require.True(t, logger.Enabled(base, logger.ErrorLevel))
}

func TestNoopLogger(t *testing.T) {
	t.Parallel()

	l := logger.NewNoopLogger().With("k", "v")
	l.Error("ignored")
	require.Equal(t, logger.InfoLevel, l.Level())
}

func TestMockLogger_SharesEntriesWithChildren(t *testing.T) {
	t.Parallel()

	m := mocklogger.New()
	m.With("component", "pipeline").Info("Starting load", "records", 3)

	m.AssertCalled(t, logger.InfoLevel, "Starting load", "component", "pipeline", "records", 3)
	m.AssertCount(t, logger.InfoLevel, "Starting load", 1)
	m.AssertNotCalledWithLevel(t, logger.ErrorLevel)
}
