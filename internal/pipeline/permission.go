package pipeline

import (
	"context"

	"github.com/rs/zerolog/log"

	"cairn/internal/checkpoint"
	"cairn/internal/hooks"
	"cairn/internal/interrupt"
	"cairn/internal/permission"
	"cairn/internal/tools"
)

// DeniedByUser is the reason recorded when an approval is refused.
const DeniedByUser = "Tool execution denied by user"

// Permission resolves allow/deny/ask for every invocation. An ask decision
// re-delivers a recorded answer when one exists, otherwise pauses (with
// checkpointing) or fails.
func Permission(gate *permission.Gate, book *interrupt.Book, checkpointing bool) Layer {
	return func(set *tools.Set) *tools.Set {
		if gate == nil {
			return set
		}
		return wrap(set, func(t *tools.Tool, next tools.ExecuteFunc) tools.ExecuteFunc {
			return func(ctx context.Context, call *tools.Call) (any, error) {
				v := gate.Decide(ctx, permission.Request{
					ThreadID:      call.ThreadID,
					ToolCallID:    call.ID,
					ToolName:      call.Name,
					Args:          call.Args,
					NeedsApproval: t.RequiresApproval(call.Args),
				})
				if v.Decision == permission.Allow && hookDecision(ctx) == hooks.Ask && gate.Mode() != permission.ModeBypass {
					v = permission.Verdict{Decision: permission.Ask, Reason: "approval requested by hook"}
				}

				switch v.Decision {
				case permission.Allow:
					return next(ctx, call)
				case permission.Deny:
					log.Debug().Str("tool", call.Name).Str("reason", v.Reason).Msg("tool call denied")
					return nil, &tools.ExecutionError{Tool: call.Name, CallID: call.ID, Reason: v.Reason}
				}

				if raw, ok := book.Get(checkpoint.ApprovalInterruptID(call.ID)); ok {
					resp := interrupt.DecodeResponse(raw)
					if resp.Approved() {
						return next(ctx, call)
					}
					return nil, &tools.ExecutionError{Tool: call.Name, CallID: call.ID, Reason: DenialMessage(resp.Reason())}
				}
				if !checkpointing {
					return nil, &tools.ExecutionError{
						Tool:   call.Name,
						CallID: call.ID,
						Reason: "approval required but no checkpoint store is configured",
					}
				}
				return nil, interrupt.Approval(targetOf(call), v.Reason)
			}
		})
	}
}

// DenialMessage renders the tool result of a refused approval.
func DenialMessage(reason string) string {
	if reason == "" {
		return DeniedByUser
	}
	return DeniedByUser + ": " + reason
}
