package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cairn/internal/hooks"
)

func TestLoggingHookHandlers(t *testing.T) {
	h := NewLoggingHook(LoggingConfig{})
	handlers := h.Handlers()
	require.Len(t, handlers, len(hooks.AllEvents()))
	for _, hd := range handlers {
		assert.Equal(t, hooks.SourceMiddleware, hd.Source)
		assert.Contains(t, hd.ID, string(hd.Event))
	}
}

func TestLoggingHookFields(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	h := NewLoggingHook(LoggingConfig{Logger: &l, Level: zerolog.InfoLevel})

	res, err := h.handle(context.Background(), &hooks.Context{
		Event:    hooks.PostToolUse,
		ThreadID: "t1",
		Tool: &hooks.ToolContext{
			CallID:   "c1",
			Name:     "write_file",
			Args:     map[string]any{"path": "a.txt"},
			Error:    "boom",
			Duration: time.Second,
		},
	})
	require.NoError(t, err)
	assert.Nil(t, res, "logging never alters the flow")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "t1", entry["thread_id"])
	assert.Equal(t, "write_file", entry["tool"])
	assert.Equal(t, "c1", entry["call_id"])
	assert.Equal(t, true, entry["has_error"])

	buf.Reset()
	_, err = h.handle(context.Background(), &hooks.Context{
		Event:     hooks.InterruptRequested,
		ThreadID:  "t1",
		Interrupt: &hooks.InterruptContext{ID: "int_c1", Type: "approval", ToolName: "deploy"},
	})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "int_c1", entry["interrupt_id"])
}
