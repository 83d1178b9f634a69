package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"obstaclecam/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestLogger_WritesPerLevelFiles(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(&config.Config{LogDirectory: dir, LogLevel: "info"})
	require.NoError(t, err)

	l.Info("model loaded", "camera", "front")
	l.Warning("frame dropped", "camera", "front")
	l.Error("inference failed", "camera", "rear")
	require.NoError(t, l.Close())

	info, err := os.ReadFile(filepath.Join(dir, InfoFile))
	require.NoError(t, err)
	warning, err := os.ReadFile(filepath.Join(dir, WarningFile))
	require.NoError(t, err)
	errorLog, err := os.ReadFile(filepath.Join(dir, ErrorFile))
	require.NoError(t, err)

	assert.Contains(t, string(info), "model loaded")
	assert.NotContains(t, string(info), "frame dropped")
	assert.Contains(t, string(warning), "frame dropped")
	assert.Contains(t, string(errorLog), "inference failed")
	assert.Contains(t, string(errorLog), "camera=rear")
}

func TestLogger_CleanLogs(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(&config.Config{LogDirectory: dir, LogLevel: "warning"})
	require.NoError(t, err)
	defer l.Close()

	l.Warning("something odd")
	require.NoError(t, l.CleanLogs(WarningFile))

	data, err := os.ReadFile(filepath.Join(dir, WarningFile))
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(string(data)))

	assert.Error(t, l.CleanLogs("secrets.log"))
}
