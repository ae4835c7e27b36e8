package compaction

import "cairn/internal/provider"

// EstimateText estimates the token count of text at roughly three
// characters per token.
func EstimateText(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 2) / 3
}

// EstimateMessages estimates the token count of a transcript, including a
// fixed per-message overhead and tool call arguments.
func EstimateMessages(messages []provider.Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateText(msg.Content) + 4
		for _, tc := range msg.ToolCalls {
			total += EstimateText(tc.Name) + EstimateText(tc.Arguments)
		}
	}
	return total
}
