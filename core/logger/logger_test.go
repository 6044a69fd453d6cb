package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want zapcore.Level
	}{
		{name: "Debug console", cfg: Config{Level: "debug", Format: "console"}, want: zapcore.DebugLevel},
		{name: "Info json", cfg: Config{Level: "info", Format: "json"}, want: zapcore.InfoLevel},
		{name: "Warn json", cfg: Config{Level: "warn", Format: "json"}, want: zapcore.WarnLevel},
		{name: "Unknown level falls back to info", cfg: Config{Level: "loud", Format: "json"}, want: zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(&tt.cfg)
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestWithRun(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithRun(base, "run-1", "TAG").Info("hello")
	WithRun(base, "run-2", "").Info("no tag")
	WithRun(base, "", "").Info("plain")

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, "run-1", entries[0].ContextMap()["run_id"])
	assert.Equal(t, "TAG", entries[0].ContextMap()["control_tag"])

	assert.Equal(t, "run-2", entries[1].ContextMap()["run_id"])
	_, hasTag := entries[1].ContextMap()["control_tag"]
	assert.False(t, hasTag)

	assert.Empty(t, entries[2].ContextMap())
}
