package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger(level LogLevel) (*LoopLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: level, Format: "json", Output: &buf})
	return logger, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestKeyValueArgsBecomeAttrs(t *testing.T) {
	logger, buf := captureLogger(LogLevelDebug)

	logger.Info("message submitted", "session_id", "s1", "priority", 2)

	entry := decodeLine(t, buf)
	assert.Equal(t, "message submitted", entry["msg"])
	assert.Equal(t, "s1", entry["session_id"])
	assert.Equal(t, float64(2), entry["priority"])
}

func TestStandingAttrsJoinEveryEntry(t *testing.T) {
	logger, buf := captureLogger(LogLevelDebug)

	logger.WithComponent("scheduler").WithSession("s9").
		WithContext("worker", 3).
		Warn("dequeue failed", "error", "boom")

	entry := decodeLine(t, buf)
	assert.Equal(t, "scheduler", entry["component"])
	assert.Equal(t, "s9", entry["session_id"])
	assert.Equal(t, float64(3), entry["worker"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLevelFilter(t *testing.T) {
	logger, buf := captureLogger(LogLevelWarn)

	logger.Debug("hidden")
	logger.Info("hidden too")
	assert.Zero(t, buf.Len())

	logger.Warn("visible")
	assert.NotZero(t, buf.Len())
}

func TestWithContextDoesNotMutateParent(t *testing.T) {
	logger, buf := captureLogger(LogLevelDebug)

	_ = logger.WithContext("child_only", true)
	logger.Info("plain")

	entry := decodeLine(t, buf)
	_, present := entry["child_only"]
	assert.False(t, present)
}
