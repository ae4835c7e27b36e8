package runner

import (
	"time"

	"cairn/internal/provider"
)

// EventType is the kind of event emitted while a run progresses.
type EventType string

const (
	EventTextDelta  EventType = "text-delta"
	EventToolCall   EventType = "tool-call"
	EventToolResult EventType = "tool-result"
	EventStepFinish EventType = "step-finish"
)

// Event is emitted to a Sink during a run.
type Event struct {
	Type       EventType          `json:"type"`
	Step       int                `json:"step"`
	Delta      string             `json:"delta,omitempty"`
	ToolCall   *provider.ToolCall `json:"tool_call,omitempty"`
	ToolResult *ToolRecord        `json:"tool_result,omitempty"`
	Usage      *provider.Usage    `json:"usage,omitempty"`
}

// Sink receives run events. It is called synchronously from the run loop.
type Sink func(Event)

// ToolRecord is the outcome of one tool invocation.
type ToolRecord struct {
	CallID   string        `json:"call_id"`
	Name     string        `json:"name"`
	Args     string        `json:"args,omitempty"`
	Output   string        `json:"output"`
	IsError  bool          `json:"is_error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Step is one model call plus the tool invocations it requested.
type Step struct {
	Index        int                 `json:"index"`
	Text         string              `json:"text,omitempty"`
	ToolCalls    []provider.ToolCall `json:"tool_calls,omitempty"`
	ToolResults  []ToolRecord        `json:"tool_results,omitempty"`
	Usage        *provider.Usage     `json:"usage,omitempty"`
	FinishReason string              `json:"finish_reason,omitempty"`
}

// Result is the outcome of a run. On error it holds whatever completed
// before the failure.
type Result struct {
	Text         string         `json:"text"`
	Steps        []Step         `json:"steps"`
	Usage        provider.Usage `json:"usage"`
	FinishReason string         `json:"finish_reason"`

	// Messages are the assistant and tool messages produced by the run,
	// in transcript order.
	Messages []provider.Message `json:"messages"`
}
