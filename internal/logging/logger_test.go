package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithContext_AttachesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New("directory", "debug", "json")
	l.SetOutput(&buf)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithUserID(ctx, "user-1")
	ctx = WithRole(ctx, "admin")

	l.WithContext(ctx).Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "trace-1", line["trace_id"])
	assert.Equal(t, "user-1", line["user_id"])
	assert.Equal(t, "admin", line["role"])
	assert.Equal(t, "directory", line["service"])
}

func TestLogRequest_LevelByStatus(t *testing.T) {
	var buf bytes.Buffer
	l := New("directory", "info", "json")
	l.SetOutput(&buf)

	l.LogRequest(context.Background(), "GET", "/listings", 503, 12*time.Millisecond)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.EqualValues(t, 503, line["status"])
}

func TestNew_UnknownLevelFallsBack(t *testing.T) {
	l := New("x", "loud", "json")
	assert.Equal(t, "info", l.GetLevel().String())
}

func TestWithTraceID_EmptyKeepsContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithTraceID(ctx, ""))
}
