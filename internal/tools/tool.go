// Package tools defines the tool execution contract and ordered tool sets.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"cairn/internal/checkpoint"
)

// WaitFunc pauses the calling tool until an external response for request
// is available. During live generation it raises a pause signal; on resume
// it returns the recorded answer.
type WaitFunc func(ctx context.Context, request any) (json.RawMessage, error)

// TaskContext lets a tool start background work whose completion is folded
// back into the conversation later.
type TaskContext interface {
	StartShell(ctx context.Context, name, command string) (string, error)
	StartFunc(ctx context.Context, name string, fn func(ctx context.Context) (string, error)) (string, error)
}

// ThreadTasks is a TaskContext that can attribute tasks to the thread
// whose tool call started them.
type ThreadTasks interface {
	TaskContext
	ForThread(threadID string) TaskContext
}

// Call is the execution context of one tool invocation.
type Call struct {
	ID       string         // tool call id, the correlation id of the invocation
	Name     string         // tool name
	Args     map[string]any // decoded arguments
	ThreadID string
	Step     int

	// Set by the pipeline; nil when the tool runs unwrapped.
	Wait  WaitFunc
	Tasks TaskContext

	// State is the thread's conversation-side state. Tools may mutate it;
	// the orchestrator persists it with the transcript.
	State *checkpoint.State
}

// Bind decodes the call arguments into v.
func (c *Call) Bind(v any) error {
	data, err := json.Marshal(c.Args)
	if err != nil {
		return NewInvalidArgsError(c.Name, "encode arguments", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewInvalidArgsError(c.Name, "decode arguments", err)
	}
	return nil
}

// Clone returns a shallow copy with its own argument map.
func (c *Call) Clone() *Call {
	out := *c
	if c.Args != nil {
		out.Args = make(map[string]any, len(c.Args))
		for k, v := range c.Args {
			out.Args[k] = v
		}
	}
	return &out
}

// ExecuteFunc runs a tool. The returned value is rendered with FormatOutput.
type ExecuteFunc func(ctx context.Context, call *Call) (any, error)

// ApprovalFunc reports whether a call with these arguments needs an
// external approval before it may run.
type ApprovalFunc func(args map[string]any) bool

// Tool is a capability exposed to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any

	// Execute is nil for descriptive tools the caller executes itself.
	Execute ExecuteFunc

	NeedsApproval ApprovalFunc

	// Source records where the tool came from: core, runtime or plugin:<name>.
	Source string
}

// Executable reports whether the engine runs this tool itself.
func (t *Tool) Executable() bool {
	return t.Execute != nil
}

// RequiresApproval evaluates NeedsApproval, treating a nil func as false.
func (t *Tool) RequiresApproval(args map[string]any) bool {
	return t.NeedsApproval != nil && t.NeedsApproval(args)
}

// WithExecute returns a copy of t whose Execute is fn.
func (t *Tool) WithExecute(fn ExecuteFunc) *Tool {
	out := *t
	out.Execute = fn
	return &out
}

// ParseArgs decodes raw JSON tool arguments. Empty input yields an empty map.
func ParseArgs(raw string) (map[string]any, error) {
	args := map[string]any{}
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return args, nil
}

// FormatOutput renders a tool result as the content of a tool message.
func FormatOutput(v any) string {
	switch out := v.(type) {
	case nil:
		return ""
	case string:
		return out
	case []byte:
		return string(out)
	case json.RawMessage:
		return string(out)
	case fmt.Stringer:
		return out.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
