package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerWithWriter(&buf, "info", "json")

	slog.Info("test message", "key", "value")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "value", entry["key"])
}

func TestInitLoggerWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerWithWriter(&buf, "info", "text")

	slog.Warn("text message")

	assert.Contains(t, buf.String(), "msg=\"text message\"")
	assert.Contains(t, buf.String(), "level=WARN")
}

func TestInitLoggerWithWriter_DebugFiltered(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerWithWriter(&buf, "info", "text")

	slog.Debug("hidden")
	assert.Empty(t, buf.String())

	InitLoggerWithWriter(&buf, "debug", "text")
	slog.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{"debug", "debug", slog.LevelDebug},
		{"info", "info", slog.LevelInfo},
		{"warn", "warn", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"unknown", "unknown", slog.LevelInfo},
		{"empty", "", slog.LevelInfo},
		{"uppercase", "DEBUG", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestFromContext_AttachesValues(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerWithWriter(&buf, "info", "json")

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = WithUsername(ctx, "alice")
	FromContext(ctx).Info("with context")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "alice", entry["username"])
}

func TestFromContext_EmptyValuesIgnored(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerWithWriter(&buf, "info", "json")

	ctx := WithRequestID(context.Background(), "")
	FromContext(ctx).Info("no attrs")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, ok := entry["request_id"]
	assert.False(t, ok)
}

func TestFromContext_Fallback(t *testing.T) {
	savedLogger := logger
	defer func() { logger = savedLogger }()

	logger = nil

	result := FromContext(context.Background())
	assert.Equal(t, slog.Default(), result)
}
