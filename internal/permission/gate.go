// Package permission decides whether a tool invocation may run under the
// agent's permission mode and runtime approval callback.
package permission

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Mode is the coarse, agent-wide permission policy.
type Mode string

const (
	// ModeDefault defers every call to the approval callback.
	ModeDefault Mode = "default"
	// ModeAcceptEdits auto-allows file-mutating tools and defers the rest.
	ModeAcceptEdits Mode = "acceptEdits"
	// ModeBypass allows everything.
	ModeBypass Mode = "bypassPermissions"
	// ModePlan denies everything.
	ModePlan Mode = "plan"
)

// ParseMode parses a mode name. Matching ignores case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return ModeDefault, nil
	case "acceptedits":
		return ModeAcceptEdits, nil
	case "bypasspermissions", "bypass":
		return ModeBypass, nil
	case "plan":
		return ModePlan, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Decision is the outcome of a permission check.
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
	Ask   Decision = "ask"
)

// Verdict is a decision with an optional human-readable reason.
type Verdict struct {
	Decision Decision
	Reason   string
}

// Request describes the call being checked.
type Request struct {
	ThreadID   string
	ToolCallID string
	ToolName   string
	Args       map[string]any

	// NeedsApproval is the tool's own opinion for these arguments.
	NeedsApproval bool
}

// CanUseToolFunc is the runtime approval callback. Returning an empty
// Decision means no opinion.
type CanUseToolFunc func(ctx context.Context, req Request) (Verdict, error)

// Gate resolves allow/deny/ask for tool invocations. The mode is read on
// every call so changes apply to the very next invocation.
type Gate struct {
	mode       atomic.Value // Mode
	canUseTool CanUseToolFunc
	editTools  []string
}

// NewGate creates a gate. canUseTool may be nil.
func NewGate(mode Mode, canUseTool CanUseToolFunc) *Gate {
	if mode == "" {
		mode = ModeDefault
	}
	g := &Gate{
		canUseTool: canUseTool,
		editTools:  []string{"group:edit"},
	}
	g.mode.Store(mode)
	return g
}

// Mode returns the current mode.
func (g *Gate) Mode() Mode {
	return g.mode.Load().(Mode)
}

// SetMode switches the mode for subsequent invocations.
func (g *Gate) SetMode(mode Mode) {
	prev := g.Mode()
	g.mode.Store(mode)
	if prev != mode {
		log.Info().Str("from", string(prev)).Str("to", string(mode)).Msg("permission mode changed")
	}
}

// Decide evaluates a call: plan denies, bypassPermissions allows,
// acceptEdits allows edit tools, then the callback, then the tool's own
// approval requirement.
func (g *Gate) Decide(ctx context.Context, req Request) Verdict {
	switch g.Mode() {
	case ModePlan:
		return Verdict{Decision: Deny, Reason: "tool execution is disabled in plan mode"}
	case ModeBypass:
		return Verdict{Decision: Allow}
	case ModeAcceptEdits:
		if MatchTool(req.ToolName, g.editTools) {
			return Verdict{Decision: Allow}
		}
	}

	if g.canUseTool != nil {
		v, err := g.canUseTool(ctx, req)
		if err != nil {
			log.Warn().Err(err).Str("tool", req.ToolName).Msg("canUseTool callback failed")
			return Verdict{Decision: Deny, Reason: fmt.Sprintf("permission callback failed: %v", err)}
		}
		switch v.Decision {
		case Allow, Deny, Ask:
			return v
		case "":
		default:
			return Verdict{Decision: Deny, Reason: fmt.Sprintf("permission callback returned unknown decision %q", v.Decision)}
		}
	}

	if req.NeedsApproval {
		return Verdict{Decision: Ask, Reason: "tool requires approval"}
	}
	return Verdict{Decision: Allow}
}
