package utils

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected LogLevel
		wantErr  bool
	}{
		{name: "debug level", input: "DEBUG", expected: DEBUG},
		{name: "info level", input: "INFO", expected: INFO},
		{name: "warn level", input: "WARN", expected: WARN},
		{name: "warning level", input: "WARNING", expected: WARN},
		{name: "error level", input: "ERROR", expected: ERROR},
		{name: "case insensitive", input: "debug", expected: DEBUG},
		{name: "invalid level", input: "INVALID", expected: INFO, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if result != tt.expected {
				t.Errorf("ParseLogLevel() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
		slog     slog.Level
	}{
		{DEBUG, "DEBUG", slog.LevelDebug},
		{INFO, "INFO", slog.LevelInfo},
		{WARN, "WARN", slog.LevelWarn},
		{ERROR, "ERROR", slog.LevelError},
		{LogLevel(999), "UNKNOWN", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
			assert.Equal(t, tt.slog, tt.level.Slog())
		})
	}
}

func TestParseLogFormat(t *testing.T) {
	f, err := ParseLogFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	f, err = ParseLogFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseLogFormat("xml")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WARN, FormatJSON, &buf)

	logger.Info("dropped")
	logger.Warn("kept", "component", "adapter")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "adapter", entry["component"])
}

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	t.Run("invalid level", func(t *testing.T) {
		_, _, err := SetupLogging(LogOptions{Level: "LOUD"})
		assert.Error(t, err)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, _, err := SetupLogging(LogOptions{Level: "INFO", Format: "xml"})
		assert.Error(t, err)
	})

	t.Run("log file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bridge.log")
		logger, closer, err := SetupLogging(LogOptions{Level: "DEBUG", Format: "text", File: path})
		require.NoError(t, err)

		logger.Debug("hello", "source", "grl_x")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "hello")
		assert.Contains(t, string(data), "source=grl_x")
	})

	t.Run("unwritable file", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0600))
		_, _, err := SetupLogging(LogOptions{Level: "INFO", File: filepath.Join(blocker, "x.log")})
		assert.Error(t, err)
	})
}
