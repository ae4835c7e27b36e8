package compaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"cairn/internal/provider"
)

const summaryPrompt = `Summarize the following conversation history concisely, preserving the information needed to continue it:
1. Main topics discussed
2. Key decisions or conclusions reached
3. Important facts, file names or data mentioned
4. Pending tasks or open questions

Conversation to summarize:
%s

Provide a concise summary:`

// SummaryPrefix marks the message that replaces compacted history.
const SummaryPrefix = "[Previous conversation summary]"

// Outcome describes one compaction.
type Outcome struct {
	Messages     []provider.Message
	Summarized   int // messages folded into the summary
	TokensBefore int
	TokensAfter  int
	Truncated    bool // the summary failed and old messages were dropped instead
}

// Compactor compresses transcripts. A nil provider compacts by truncation.
type Compactor struct {
	cfg      Config
	provider provider.Provider
}

// New creates a compactor.
func New(cfg Config, prov provider.Provider) *Compactor {
	return &Compactor{cfg: cfg.withDefaults(), provider: prov}
}

// Config returns the effective configuration.
func (c *Compactor) Config() Config {
	return c.cfg
}

// NeedsCompaction reports whether the estimate crosses the trigger threshold.
func (c *Compactor) NeedsCompaction(messages []provider.Message) bool {
	threshold := int(float64(c.cfg.MaxContextTokens) * c.cfg.TriggerThreshold)
	return EstimateMessages(messages) > threshold
}

// Compact replaces all but the most recent messages with a summary. The
// kept tail never starts with a tool result, so every kept tool message
// still follows the assistant message that requested it. When
// summarization fails the older messages are dropped instead.
func (c *Compactor) Compact(ctx context.Context, messages []provider.Message) (*Outcome, error) {
	return c.compact(ctx, messages, c.cfg.KeepRecentCount)
}

// Emergency compacts after the model rejected the context, keeping half as
// many recent messages as a regular compaction.
func (c *Compactor) Emergency(ctx context.Context, messages []provider.Message) (*Outcome, error) {
	return c.compact(ctx, messages, max(2, c.cfg.KeepRecentCount/2))
}

func (c *Compactor) compact(ctx context.Context, messages []provider.Message, keep int) (*Outcome, error) {
	system, conv := separate(messages)
	split := splitPoint(conv, keep)
	if split <= 0 {
		return nil, ErrMessagesTooShort
	}
	old, kept := conv[:split], conv[split:]

	out := &Outcome{Summarized: len(old), TokensBefore: EstimateMessages(messages)}
	summary, err := c.summarize(ctx, old)
	if err != nil {
		log.Warn().Err(err).Int("messages", len(old)).Msg("compaction summary failed, truncating")
		out.Truncated = true
	}

	result := make([]provider.Message, 0, len(system)+1+len(kept))
	result = append(result, system...)
	if summary != "" {
		result = append(result, provider.Message{
			Role:    provider.RoleUser,
			Content: SummaryPrefix + "\n" + summary,
		})
	}
	result = append(result, provider.CloneMessages(kept)...)

	out.Messages = result
	out.TokensAfter = EstimateMessages(result)
	return out, nil
}

func (c *Compactor) summarize(ctx context.Context, messages []provider.Message) (string, error) {
	if c.provider == nil {
		return "", nil
	}
	var summaries []string
	for _, chunk := range chunk(messages, c.cfg.ChunkMaxTokens) {
		var sb strings.Builder
		for _, msg := range chunk {
			fmt.Fprintf(&sb, "[%s]: %s\n", msg.Role, msg.Content)
			for _, tc := range msg.ToolCalls {
				fmt.Fprintf(&sb, "[%s called %s]: %s\n", msg.Role, tc.Name, tc.Arguments)
			}
		}
		resp, err := c.provider.Chat(ctx, provider.ChatRequest{
			Model:     c.cfg.Model,
			Messages:  []provider.Message{{Role: provider.RoleUser, Content: fmt.Sprintf(summaryPrompt, sb.String())}},
			MaxTokens: c.cfg.SummaryMaxTokens,
		})
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrSummaryFailed, err)
		}
		summaries = append(summaries, strings.TrimSpace(resp.Content))
	}
	return strings.Join(summaries, "\n\n"), nil
}

func separate(messages []provider.Message) (system, conv []provider.Message) {
	for _, msg := range messages {
		if msg.Role == provider.RoleSystem {
			system = append(system, msg)
		} else {
			conv = append(conv, msg)
		}
	}
	return system, conv
}

// splitPoint returns the index where the kept tail starts, moved earlier
// past any tool results so tool call pairs stay together.
func splitPoint(conv []provider.Message, keep int) int {
	split := len(conv) - keep
	for split > 0 && conv[split].Role == provider.RoleTool {
		split--
	}
	return split
}

func chunk(messages []provider.Message, maxTokens int) [][]provider.Message {
	var (
		chunks  [][]provider.Message
		current []provider.Message
		tokens  int
	)
	for _, msg := range messages {
		n := EstimateMessages([]provider.Message{msg})
		if tokens+n > maxTokens && len(current) > 0 {
			chunks = append(chunks, current)
			current, tokens = nil, 0
		}
		current = append(current, msg)
		tokens += n
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}
