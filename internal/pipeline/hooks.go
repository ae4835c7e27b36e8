package pipeline

import (
	"context"
	"time"

	"cairn/internal/hooks"
	"cairn/internal/interrupt"
	"cairn/internal/tools"
)

type hookDecisionKey struct{}

// hookDecision returns the PreToolUse decision stored on ctx.
func hookDecision(ctx context.Context) hooks.Decision {
	d, _ := ctx.Value(hookDecisionKey{}).(hooks.Decision)
	return d
}

// Hooks emits the tool lifecycle events around execution and applies their
// directives.
func Hooks(m *hooks.Manager) Layer {
	return func(set *tools.Set) *tools.Set {
		if m == nil {
			return set
		}
		return wrap(set, func(_ *tools.Tool, next tools.ExecuteFunc) tools.ExecuteFunc {
			return func(ctx context.Context, call *tools.Call) (any, error) {
				start := time.Now()
				pre := m.PreToolUse(ctx, call.ThreadID, call.ID, call.Name, call.Args)
				if pre.Denied() {
					err := &tools.PermissionDeniedError{Tool: call.Name, CallID: call.ID, Reason: pre.Reason}
					m.PostToolUseFailure(ctx, call.ThreadID, call.ID, call.Name, call.Args, err, time.Since(start))
					return nil, err
				}

				c := call
				if pre.UpdatedInput != nil {
					c = call.Clone()
					c.Args = pre.UpdatedInput
				}
				if pre.Decision != "" {
					ctx = context.WithValue(ctx, hookDecisionKey{}, pre.Decision)
				}

				var (
					out any
					err error
				)
				if pre.HasCached {
					out = pre.CachedResult
				} else {
					out, err = next(ctx, c)
				}
				if err != nil {
					if _, paused := interrupt.AsSignal(err); !paused {
						m.PostToolUseFailure(ctx, c.ThreadID, c.ID, c.Name, c.Args, err, time.Since(start))
					}
					return nil, err
				}

				post := m.PostToolUse(ctx, c.ThreadID, c.ID, c.Name, c.Args, out, time.Since(start))
				if post.HasOutput {
					out = post.UpdatedOutput
				}
				return out, nil
			}
		})
	}
}
