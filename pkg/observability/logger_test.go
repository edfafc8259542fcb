package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/grc-gateway/pkg/contextkeys"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		assert.Zero(t, buf.Len())
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		entry := decodeLine(t, &buf)
		assert.Equal(t, "info", entry["level"])
		assert.Equal(t, "info message", entry["msg"])
	})

	t.Run("formatted error", func(t *testing.T) {
		buf.Reset()
		logger.Errorf("failed %d times", 3)
		entry := decodeLine(t, &buf)
		assert.Equal(t, "error", entry["level"])
		assert.Equal(t, "failed 3 times", entry["msg"])
	})
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	logger.WithField("org_id", "org-1").
		WithFields(map[string]interface{}{"op": "invite"}).
		WithError(errors.New("boom")).
		Warn("operation failed")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "org-1", entry["org_id"])
	assert.Equal(t, "invite", entry["op"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "warning", entry["level"])
}

func TestLogger_WithNilError(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	assert.Same(t, logger, logger.WithError(nil))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLogLevel("error"))
	assert.Equal(t, InfoLevel, ParseLogLevel("verbose"))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = contextkeys.WithRequestID(ctx, "req-42")
	ctx = contextkeys.WithUserID(ctx, "user-7")
	ctx, _ = contextkeys.WithTenant(ctx)

	FromContext(ctx).Info("hello")
	entry := decodeLine(t, &buf)
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "user-7", entry["user_id"])
	assert.NotContains(t, entry, "org_id")

	buf.Reset()
	contextkeys.SetOrgID(ctx, "org-3")
	FromContext(ctx).Info("resolved")
	assert.Equal(t, "org-3", decodeLine(t, &buf)["org_id"])
}

func TestGetLogger_Default(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))
}
