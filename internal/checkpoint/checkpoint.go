// Package checkpoint defines the durable per-thread conversation state and
// the stores that persist it.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"

	"cairn/internal/provider"
)

// InterruptType distinguishes why a tool paused.
type InterruptType string

const (
	// InterruptApproval is raised by the permission layer when a call needs
	// an external yes/no before it may run.
	InterruptApproval InterruptType = "approval"
	// InterruptCustom is raised by a tool waiting on arbitrary external input.
	InterruptCustom InterruptType = "custom"
)

// Interrupt is a recorded pause request awaiting an external response.
type Interrupt struct {
	ID         string          `json:"id"`
	ThreadID   string          `json:"thread_id"`
	Type       InterruptType   `json:"type"`
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Args       string          `json:"args,omitempty"`    // raw JSON arguments of the paused call
	Request    json.RawMessage `json:"request,omitempty"` // payload shown to whoever answers
	Step       int             `json:"step"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Clone returns a deep copy.
func (i *Interrupt) Clone() *Interrupt {
	if i == nil {
		return nil
	}
	out := *i
	if i.Request != nil {
		out.Request = append(json.RawMessage(nil), i.Request...)
	}
	return &out
}

// ApprovalInterruptID derives the id of the approval pause of a tool call.
func ApprovalInterruptID(toolCallID string) string {
	return "int_" + toolCallID
}

// WaitInterruptID derives the id of the seq-th wait (zero based) issued by
// a tool call. Ids stay stable across re-executions of the same call, so
// recorded answers replay in order.
func WaitInterruptID(toolCallID string, seq int) string {
	return fmt.Sprintf("int_%s:%d", toolCallID, seq+1)
}

// TodoStatus is the progress of a todo item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

// Todo is one entry of the conversation's plan.
type Todo struct {
	ID      string     `json:"id"`
	Content string     `json:"content"`
	Status  TodoStatus `json:"status"`
}

// State is small conversation-side state carried with the transcript.
type State struct {
	Todos []Todo            `json:"todos,omitempty"`
	Files map[string]string `json:"files,omitempty"`

	// Responses holds answers already given to the tool call currently
	// being resolved, keyed by interrupt id.
	Responses map[string]json.RawMessage `json:"responses,omitempty"`
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := State{}
	if s.Todos != nil {
		out.Todos = append([]Todo(nil), s.Todos...)
	}
	if s.Files != nil {
		out.Files = make(map[string]string, len(s.Files))
		for k, v := range s.Files {
			out.Files[k] = v
		}
	}
	if s.Responses != nil {
		out.Responses = make(map[string]json.RawMessage, len(s.Responses))
		for k, v := range s.Responses {
			out.Responses[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// Settings are the per-call request overrides of the last call on a
// thread. A resumed call continues with them.
type Settings struct {
	Model        string         `json:"model,omitempty"`
	System       string         `json:"system,omitempty"`
	MaxSteps     int            `json:"max_steps,omitempty"`
	OutputSchema map[string]any `json:"output_schema,omitempty"`
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	out := *s
	if s.OutputSchema != nil {
		out.OutputSchema, _ = cloneValue(s.OutputSchema).(map[string]any)
	}
	return &out
}

// IsZero reports whether no setting is overridden.
func (s *Settings) IsZero() bool {
	return s == nil || (s.Model == "" && s.System == "" && s.MaxSteps == 0 && s.OutputSchema == nil)
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Checkpoint is the persisted snapshot of one conversation thread.
type Checkpoint struct {
	ThreadID         string             `json:"thread_id"`
	Messages         []provider.Message `json:"messages"`
	Step             int                `json:"step"`
	State            State              `json:"state"`
	Settings         *Settings          `json:"settings,omitempty"`
	PendingInterrupt *Interrupt         `json:"pending_interrupt,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// New returns an empty checkpoint for threadID.
func New(threadID string) *Checkpoint {
	return &Checkpoint{ThreadID: threadID}
}

// Clone returns a deep copy so callers never alias a stored value.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = provider.CloneMessages(c.Messages)
	out.State = c.State.Clone()
	out.Settings = c.Settings.Clone()
	out.PendingInterrupt = c.PendingInterrupt.Clone()
	return &out
}

// Validate checks the structural invariants a store relies on.
func (c *Checkpoint) Validate() error {
	if c == nil {
		return ErrNilCheckpoint
	}
	if c.ThreadID == "" {
		return ErrEmptyThreadID
	}
	if c.Step < 0 {
		return fmt.Errorf("%w: step %d", ErrInvalidCheckpoint, c.Step)
	}
	if p := c.PendingInterrupt; p != nil && p.ThreadID != "" && p.ThreadID != c.ThreadID {
		return fmt.Errorf("%w: interrupt %s belongs to thread %s", ErrInvalidCheckpoint, p.ID, p.ThreadID)
	}
	return nil
}

func encode(cp *Checkpoint) ([]byte, error) {
	return json.Marshal(cp)
}

func decode(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}
