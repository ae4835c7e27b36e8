package compaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cairn/internal/provider"
	"cairn/internal/provider/scripted"
)

func transcript(n int) []provider.Message {
	msgs := []provider.Message{{Role: provider.RoleSystem, Content: "be brief"}}
	for i := 0; i < n; i++ {
		msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: fmt.Sprintf("question %d", i)})
		msgs = append(msgs, provider.Message{
			Role:      provider.RoleAssistant,
			ToolCalls: []provider.ToolCall{{ID: fmt.Sprintf("c%d", i), Name: "ls", Arguments: `{}`}},
		})
		msgs = append(msgs, provider.Message{Role: provider.RoleTool, ToolCallID: fmt.Sprintf("c%d", i), Content: "a b c"})
	}
	return msgs
}

func TestNeedsCompaction(t *testing.T) {
	c := New(Config{MaxContextTokens: 100, TriggerThreshold: 0.5}, nil)
	assert.False(t, c.NeedsCompaction(nil))
	assert.False(t, c.NeedsCompaction([]provider.Message{{Role: provider.RoleUser, Content: "hi"}}))
	assert.True(t, c.NeedsCompaction([]provider.Message{{Role: provider.RoleUser, Content: strings.Repeat("x", 300)}}))
}

func TestCompactSummarizesAndKeepsToolPairs(t *testing.T) {
	prov := scripted.New("summ", scripted.Text("the user listed files"))
	c := New(Config{KeepRecentCount: 4}, prov)

	msgs := transcript(4)
	out, err := c.Compact(context.Background(), msgs)
	require.NoError(t, err)

	assert.Equal(t, provider.RoleSystem, out.Messages[0].Role)
	assert.True(t, strings.HasPrefix(out.Messages[1].Content, SummaryPrefix))
	assert.Contains(t, out.Messages[1].Content, "the user listed files")

	// The kept tail starts at an assistant tool-call message, never at a tool result.
	tail := out.Messages[2:]
	require.NotEmpty(t, tail)
	assert.NotEqual(t, provider.RoleTool, tail[0].Role)
	for i, m := range tail {
		if m.Role == provider.RoleTool {
			require.Greater(t, i, 0)
			assert.Equal(t, m.ToolCallID, tail[i-1].ToolCalls[0].ID)
		}
	}
	assert.Less(t, out.TokensAfter, out.TokensBefore)
	assert.False(t, out.Truncated)
	assert.Equal(t, 1, prov.Calls())
}

func TestCompactFallsBackToTruncation(t *testing.T) {
	prov := scripted.New("summ", scripted.Turn{Err: errors.New("model down")})
	c := New(Config{KeepRecentCount: 3}, prov)

	out, err := c.Compact(context.Background(), transcript(3))
	require.NoError(t, err)
	assert.True(t, out.Truncated)
	for _, m := range out.Messages {
		assert.False(t, strings.HasPrefix(m.Content, SummaryPrefix))
	}
}

func TestCompactTooShort(t *testing.T) {
	c := New(DefaultConfig(), nil)
	_, err := c.Compact(context.Background(), transcript(2))
	assert.ErrorIs(t, err, ErrMessagesTooShort)

	// Emergency compaction keeps fewer messages.
	out, err := c.Emergency(context.Background(), transcript(3))
	require.NoError(t, err)
	assert.Less(t, len(out.Messages), len(transcript(3)))
}

func TestEstimate(t *testing.T) {
	assert.Equal(t, 0, EstimateText(""))
	assert.Equal(t, 1, EstimateText("abc"))
	msgs := []provider.Message{{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{{Name: "ls", Arguments: "{}"}}}}
	assert.Equal(t, 4+1+1, EstimateMessages(msgs))
}
