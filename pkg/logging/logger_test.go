package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSecurityEventJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New("security", "debug", "json")
	l.SetOutput(&buf)

	ctx := WithTraceID(context.Background(), "trace-123")
	l.LogSecurityEvent(ctx, "pgp_verify_failed", map[string]interface{}{"package": "firefox"})

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &payload))
	assert.Equal(t, "security", payload["component"])
	assert.Equal(t, "trace-123", payload["trace_id"])
	assert.Equal(t, "pgp_verify_failed", payload["event_type"])
	assert.Equal(t, "firefox", payload["package"])
	assert.Equal(t, "security event", payload["message"])
}

func TestNewTraceIDUnique(t *testing.T) {
	a := NewTraceID()
	b := NewTraceID()
	assert.NotEqual(t, a, b)
}

func TestGetTraceIDMissing(t *testing.T) {
	assert.Equal(t, "", GetTraceID(context.Background()))
}

func TestDefaultLazyInit(t *testing.T) {
	SetDefault(nil)
	l := Default()
	require.NotNil(t, l)
	assert.Same(t, l, Default())
}
