package provider

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSanitizeMessages(t *testing.T) {
	user := Message{Role: RoleUser, Content: "go"}
	call := func(id, args string) ToolCall { return ToolCall{ID: id, Name: "tool", Arguments: args} }
	result := func(id, content string) Message { return Message{Role: RoleTool, ToolCallID: id, Content: content} }

	tests := []struct {
		name string
		in   []Message
		want []Message
	}{
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
		{
			name: "plain conversation untouched",
			in:   []Message{user, {Role: RoleAssistant, Content: "hi"}},
			want: []Message{user, {Role: RoleAssistant, Content: "hi"}},
		},
		{
			name: "valid pair and empty arguments kept",
			in: []Message{
				user,
				{Role: RoleAssistant, ToolCalls: []ToolCall{call("c1", `{"a":1}`), call("c2", "")}},
				result("c1", "one"),
				result("c2", "two"),
			},
			want: []Message{
				user,
				{Role: RoleAssistant, ToolCalls: []ToolCall{call("c1", `{"a":1}`), call("c2", "")}},
				result("c1", "one"),
				result("c2", "two"),
			},
		},
		{
			name: "truncated arguments drop call and result",
			in: []Message{
				user,
				{Role: RoleAssistant, ToolCalls: []ToolCall{call("c1", `{"a":`)}},
				result("c1", "error"),
				{Role: RoleUser, Content: "again"},
			},
			want: []Message{user, {Role: RoleUser, Content: "again"}},
		},
		{
			name: "text survives when every call is invalid",
			in: []Message{
				{Role: RoleAssistant, Content: "trying", ToolCalls: []ToolCall{call("c1", `{`)}},
				result("c1", "x"),
			},
			want: []Message{{Role: RoleAssistant, Content: "trying", ToolCalls: []ToolCall{}}},
		},
		{
			name: "mixed calls keep the valid one",
			in: []Message{
				{Role: RoleAssistant, ToolCalls: []ToolCall{call("c1", `{}`), call("c2", `{"b":`)}},
				result("c1", "ok"),
				result("c2", "bad"),
			},
			want: []Message{
				{Role: RoleAssistant, ToolCalls: []ToolCall{call("c1", `{}`)}},
				result("c1", "ok"),
			},
		},
		{
			name: "result before its call is dropped",
			in: []Message{
				result("c1", "early"),
				{Role: RoleAssistant, ToolCalls: []ToolCall{call("c1", `{}`)}},
			},
			want: []Message{
				{Role: RoleAssistant, ToolCalls: []ToolCall{call("c1", `{}`)}},
			},
		},
		{
			name: "re-executed call keeps the last result",
			in: []Message{
				{Role: RoleAssistant, ToolCalls: []ToolCall{call("c1", `{}`)}},
				result("c1", "approval pending"),
				result("c1", "deployed"),
				{Role: RoleAssistant, Content: "done"},
			},
			want: []Message{
				{Role: RoleAssistant, ToolCalls: []ToolCall{call("c1", `{}`)}},
				result("c1", "deployed"),
				{Role: RoleAssistant, Content: "done"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeMessages(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("SanitizeMessages() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
