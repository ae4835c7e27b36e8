package scripted

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cairn/internal/provider"
)

func TestProviderReplaysTurns(t *testing.T) {
	p := New("m", Call("c1", "ls", `{}`), Text("done"))
	ctx := context.Background()

	resp, err := p.Chat(ctx, provider.ChatRequest{Model: "m"})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, provider.FinishReasonToolCalls, resp.FinishReason)

	resp, err = p.Chat(ctx, provider.ChatRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)

	_, err = p.Chat(ctx, provider.ChatRequest{})
	assert.ErrorIs(t, err, provider.ErrScriptExhausted)
	assert.Equal(t, 3, len(p.Requests()))
}

func TestProviderFailTurn(t *testing.T) {
	p := New("m", Fail(provider.ErrCodeRateLimited, "slow down"))
	_, err := p.Chat(context.Background(), provider.ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, provider.ClassRateLimit, provider.Classify(err))
}

func TestProviderStream(t *testing.T) {
	p := New("m", Turn{Content: "hello there", ToolCalls: []ToolCall{{ID: "c1", Name: "ls"}}})
	events, err := p.Stream(context.Background(), provider.ChatRequest{})
	require.NoError(t, err)

	resp, err := provider.Collect(events, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Content)
	assert.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, provider.FinishReasonToolCalls, resp.FinishReason)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	script := `name: demo
turns:
  - tool_calls:
      - id: call-1
        name: ask_user
        arguments: '{"question":"ok?"}'
  - content: finished
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", p.Name())

	resp, err := p.Chat(context.Background(), provider.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ask_user", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"question":"ok?"}`, resp.ToolCalls[0].Arguments)
}
