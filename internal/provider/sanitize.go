package provider

import "encoding/json"

// SanitizeMessages repairs a transcript before it goes on the wire.
//
// Tool calls whose arguments are not valid JSON are removed, as is an
// assistant message left with neither text nor calls. Tool results are
// kept only when they follow the assistant message that issued their call,
// and only the last result recorded for a call id survives. Checkpointed
// transcripts can hold an earlier result of a call that was re-executed on
// resume.
func SanitizeMessages(messages []Message) []Message {
	if len(messages) == 0 {
		return messages
	}

	last := make(map[string]int)
	for i, msg := range messages {
		if msg.Role == RoleTool && msg.ToolCallID != "" {
			last[msg.ToolCallID] = i
		}
	}

	issued := make(map[string]bool)
	out := make([]Message, 0, len(messages))
	for i, msg := range messages {
		switch {
		case msg.Role == RoleAssistant && len(msg.ToolCalls) > 0:
			calls := make([]ToolCall, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				if tc.Arguments != "" && !json.Valid([]byte(tc.Arguments)) {
					continue
				}
				calls = append(calls, tc)
				if tc.ID != "" {
					issued[tc.ID] = true
				}
			}
			if len(calls) == 0 && msg.Content == "" {
				continue
			}
			msg.ToolCalls = calls
			out = append(out, msg)
		case msg.Role == RoleTool && msg.ToolCallID != "":
			if !issued[msg.ToolCallID] || last[msg.ToolCallID] != i {
				continue
			}
			out = append(out, msg)
		default:
			out = append(out, msg)
		}
	}
	return out
}
