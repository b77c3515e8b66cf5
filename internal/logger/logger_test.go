package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeKVs_RedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"table", "problems", "api_key", "key123", "Password", "hunter2"})
	assert.Equal(t, []interface{}{"table", "problems", "api_key", "[REDACTED]", "Password", "[REDACTED]"}, out)
}

func TestSanitizeKVs_OddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"table", "problems", "dangling"})
	assert.Equal(t, []interface{}{"table", "problems", "dangling"}, out)
}

func TestLogger_WithFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("component", "assembler").Warn("dangling reference", "missing_id", "rec9", "token", "abc")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "dangling reference", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "assembler", fields["component"])
	assert.Equal(t, "rec9", fields["missing_id"])
	assert.Equal(t, "[REDACTED]", fields["token"])
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New("dev", "loud")
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
