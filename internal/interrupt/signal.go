// Package interrupt carries pause requests out of tool execution and
// records the answers that resolve them.
package interrupt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cairn/internal/checkpoint"
)

// ErrAlreadyPending is returned when a second pause is raised in a turn that
// already captured one. Only one interrupt may be pending per thread.
var ErrAlreadyPending = errors.New("interrupt already pending in this turn")

// Signal is the error a tool (or the permission layer) raises to pause the
// current turn. It is never a failure: the capture layer intercepts it
// before hooks or the model loop treat it as one.
type Signal struct {
	Interrupt *checkpoint.Interrupt
}

// Error implements the error interface.
func (s *Signal) Error() string {
	if s.Interrupt == nil {
		return "interrupt requested"
	}
	return fmt.Sprintf("interrupt requested: %s %s (tool %s)", s.Interrupt.Type, s.Interrupt.ID, s.Interrupt.ToolName)
}

// AsSignal extracts a Signal from err.
func AsSignal(err error) (*Signal, bool) {
	var sig *Signal
	if errors.As(err, &sig) {
		return sig, true
	}
	return nil, false
}

// Target identifies the tool call a pause belongs to.
type Target struct {
	ThreadID   string
	ToolCallID string
	ToolName   string
	Args       string // raw JSON arguments
	Step       int
}

// Approval builds the signal the permission layer raises when a call must
// be approved before it runs.
func Approval(target Target, reason string) *Signal {
	request, _ := json.Marshal(map[string]any{
		"tool":   target.ToolName,
		"args":   json.RawMessage(nonEmptyJSON(target.Args)),
		"reason": reason,
	})
	return &Signal{Interrupt: &checkpoint.Interrupt{
		ID:         checkpoint.ApprovalInterruptID(target.ToolCallID),
		ThreadID:   target.ThreadID,
		Type:       checkpoint.InterruptApproval,
		ToolCallID: target.ToolCallID,
		ToolName:   target.ToolName,
		Args:       target.Args,
		Request:    request,
		Step:       target.Step,
		CreatedAt:  time.Now().UTC(),
	}}
}

// Custom builds the signal of the seq-th wait issued by a tool call.
func Custom(target Target, seq int, request any) (*Signal, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode wait request: %w", err)
	}
	return &Signal{Interrupt: &checkpoint.Interrupt{
		ID:         checkpoint.WaitInterruptID(target.ToolCallID, seq),
		ThreadID:   target.ThreadID,
		Type:       checkpoint.InterruptCustom,
		ToolCallID: target.ToolCallID,
		ToolName:   target.ToolName,
		Args:       target.Args,
		Request:    payload,
		Step:       target.Step,
		CreatedAt:  time.Now().UTC(),
	}}, nil
}

func nonEmptyJSON(raw string) string {
	if raw == "" {
		return "{}"
	}
	return raw
}
