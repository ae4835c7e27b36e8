package agent

import (
	"encoding/json"

	"cairn/internal/checkpoint"
	"cairn/internal/provider"
	"cairn/internal/runner"
)

// Request is one generation call.
type Request struct {
	// ThreadID selects the persisted thread. With a store configured an
	// empty id starts a new thread.
	ThreadID string
	// ForkFrom copies an existing thread into ThreadID (or a new id) first.
	ForkFrom string

	Prompt  string
	History []provider.Message

	// Model and System override the agent defaults for this call.
	Model  string
	System string
	// MaxSteps overrides the agent's step ceiling.
	MaxSteps int

	// OutputSchema requests structured output: the final text is parsed as
	// JSON into Result.Output.
	OutputSchema map[string]any

	// WaitForBackgroundTasks drains finished background tasks into
	// follow-up turns before returning.
	WaitForBackgroundTasks bool
}

// ResumeOptions tunes a resume call. The continuation reuses the Model,
// System, MaxSteps and OutputSchema of the call that paused; non-zero
// fields here replace them.
type ResumeOptions struct {
	Model        string
	System       string
	MaxSteps     int
	OutputSchema map[string]any

	WaitForBackgroundTasks bool
	// OnEvent receives the events of the continuation, as Stream does.
	OnEvent func(Event)
}

// Status is the final state of a generation or resume call.
type Status string

const (
	StatusCompleted     Status = "completed"
	StatusInterrupted   Status = "interrupted"
	StatusReInterrupted Status = "re-interrupted"
)

// Result is the outcome of a generation or resume call.
type Result struct {
	ThreadID     string                `json:"thread_id,omitempty"`
	Status       Status                `json:"status"`
	Text         string                `json:"text"`
	Steps        []runner.Step         `json:"steps,omitempty"`
	Usage        provider.Usage        `json:"usage"`
	FinishReason string                `json:"finish_reason,omitempty"`
	Model        string                `json:"model,omitempty"`
	Output       json.RawMessage       `json:"output,omitempty"`
	Interrupt    *checkpoint.Interrupt `json:"interrupt,omitempty"`
	// FollowUps counts turns run for finished background tasks.
	FollowUps int `json:"follow_ups,omitempty"`
}

// Interrupted reports whether the call paused.
func (r *Result) Interrupted() bool {
	return r != nil && r.Status != StatusCompleted
}

// EventType is the kind of a streamed event.
type EventType string

const (
	EventTextDelta  EventType = "text-delta"
	EventToolCall   EventType = "tool-call"
	EventToolResult EventType = "tool-result"
	EventStepFinish EventType = "step-finish"
	EventInterrupt  EventType = "interrupt"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

// Event is one streamed update. Done carries the final Result, Error the
// failure message.
type Event struct {
	Type       EventType             `json:"type"`
	Step       int                   `json:"step,omitempty"`
	Delta      string                `json:"delta,omitempty"`
	ToolCall   *provider.ToolCall    `json:"tool_call,omitempty"`
	ToolResult *runner.ToolRecord    `json:"tool_result,omitempty"`
	Usage      *provider.Usage       `json:"usage,omitempty"`
	Interrupt  *checkpoint.Interrupt `json:"interrupt,omitempty"`
	Result     *Result               `json:"result,omitempty"`
	Error      string                `json:"error,omitempty"`
}

func fromRunnerEvent(ev runner.Event) Event {
	return Event{
		Type:       EventType(ev.Type),
		Step:       ev.Step,
		Delta:      ev.Delta,
		ToolCall:   ev.ToolCall,
		ToolResult: ev.ToolResult,
		Usage:      ev.Usage,
	}
}
