package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_JSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, "info", "json")
	log.Debug("hidden")
	log.Info("visible", slog.String("component", "router"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "router", entry["component"])
}

func TestNew_TextFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(&buf, "debug", "text").Debug("hello", slog.Int("n", 1))
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "n=1")
}
