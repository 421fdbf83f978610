package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_New(t *testing.T) {
	t.Parallel()

	t.Run("development environment", func(t *testing.T) {
		l, err := New(EnvDevelopment, LevelInfo)
		require.NoError(t, err)
		require.NotNil(t, l)
	})

	t.Run("production environment", func(t *testing.T) {
		l, err := New(EnvProduction, LevelInfo)
		require.NoError(t, err)
		require.NotNil(t, l)
	})

	t.Run("unknown environment fails", func(t *testing.T) {
		_, err := New("staging", LevelInfo)
		require.Error(t, err)
	})
}

func Test_ParseLevelString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level string
		want  slog.Level
	}{
		{level: "debug", want: slog.LevelDebug},
		{level: "info", want: slog.LevelInfo},
		{level: "warn", want: slog.LevelWarn},
		{level: "error", want: slog.LevelError},
		{level: "ERROR", want: slog.LevelError},
		{level: "unknown", want: slog.LevelInfo},
		{level: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevelString(tt.level), "level %q", tt.level)
	}
}

func Test_NoOpLogger(t *testing.T) {
	t.Parallel()

	l := NewNoOpLogger()

	// Must not panic and must keep the Logger type through chaining
	l.With("key", "value").WithGroup("group").Info("dropped")
}
