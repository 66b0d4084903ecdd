package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log output should be one JSON line")
	return entry
}

func TestKVLoggerDebug(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKVLogger(zerolog.New(&buf))

	kv.Debug("test message", "key1", "value1", "key2", 42)

	entry := parseLogLine(t, &buf)
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "test message", entry["message"])
	assert.Equal(t, "value1", entry["key1"])
	assert.Equal(t, float64(42), entry["key2"], "JSON numbers decode as float64")
}

func TestKVLoggerInfo(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKVLogger(zerolog.New(&buf))

	kv.Info("info message", "status", "ok")

	entry := parseLogLine(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "info message", entry["message"])
	assert.Equal(t, "ok", entry["status"])
}

func TestKVLoggerError(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKVLogger(zerolog.New(&buf))

	kv.Error("error occurred", "code", 500, "reason", "internal")

	entry := parseLogLine(t, &buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "error occurred", entry["message"])
	assert.Equal(t, float64(500), entry["code"])
	assert.Equal(t, "internal", entry["reason"])
}

func TestKVLoggerNoKeyValues(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKVLogger(zerolog.New(&buf))

	kv.Debug("simple message")

	entry := parseLogLine(t, &buf)
	assert.Equal(t, "simple message", entry["message"])
}

func TestKVLoggerOddKeyValuesDropsTrailer(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKVLogger(zerolog.New(&buf))

	kv.Info("odd pairs", "kept", 1, "dangling")

	entry := parseLogLine(t, &buf)
	assert.Equal(t, float64(1), entry["kept"])
	assert.NotContains(t, entry, "dangling")
}

func TestKVLoggerImplementsInterface(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKVLogger(zerolog.New(&buf))

	// compile-time check against the consumer-side interface shape
	var _ interface {
		Debug(msg string, keysAndValues ...any)
		Info(msg string, keysAndValues ...any)
		Error(msg string, keysAndValues ...any)
	} = kv
}
