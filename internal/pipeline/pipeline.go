// Package pipeline wraps tools with the layers every invocation passes
// through before the model loop sees its result.
//
// Layers, outer to inner:
//
//	capture -> hooks -> task context -> permission -> tool
//
// Tools without an Execute func pass every layer unchanged.
package pipeline

import (
	"context"
	"encoding/json"

	"cairn/internal/hooks"
	"cairn/internal/interrupt"
	"cairn/internal/permission"
	"cairn/internal/tools"
)

// Placeholder is the tool result returned in place of a paused call.
const Placeholder = "[awaiting external input]"

// Layer transforms a tool set.
type Layer func(*tools.Set) *tools.Set

// Config holds the collaborators of one turn's pipeline.
type Config struct {
	// Capture is the turn's interrupt slot.
	Capture *interrupt.Capture
	// Book holds recorded interrupt responses for this thread.
	Book *interrupt.Book

	Hooks *hooks.Manager
	Tasks tools.TaskContext
	Gate  *permission.Gate

	// Checkpointing reports whether a store can persist pauses. Without it
	// an ask decision fails instead of pausing.
	Checkpointing bool
}

// Build returns the composed pipeline for cfg.
func Build(cfg Config) Layer {
	return Chain(
		Capture(cfg.Capture, cfg.Book),
		Hooks(cfg.Hooks),
		TaskContext(cfg.Tasks),
		Permission(cfg.Gate, cfg.Book, cfg.Checkpointing),
	)
}

// Chain composes layers so the first one is outermost.
func Chain(layers ...Layer) Layer {
	return func(set *tools.Set) *tools.Set {
		for i := len(layers) - 1; i >= 0; i-- {
			set = layers[i](set)
		}
		return set
	}
}

// wrap applies fn to the Execute of every executable tool.
func wrap(set *tools.Set, fn func(t *tools.Tool, next tools.ExecuteFunc) tools.ExecuteFunc) *tools.Set {
	return set.Map(func(t *tools.Tool) *tools.Tool {
		if !t.Executable() {
			return t
		}
		return t.WithExecute(fn(t, t.Execute))
	})
}

// TaskContext makes the background task manager available to tools. A
// ThreadTasks manager is scoped to the calling thread.
func TaskContext(tc tools.TaskContext) Layer {
	return func(set *tools.Set) *tools.Set {
		if tc == nil {
			return set
		}
		return wrap(set, func(_ *tools.Tool, next tools.ExecuteFunc) tools.ExecuteFunc {
			return func(ctx context.Context, call *tools.Call) (any, error) {
				c := call.Clone()
				c.Tasks = tc
				if scoped, ok := tc.(tools.ThreadTasks); ok {
					c.Tasks = scoped.ForThread(c.ThreadID)
				}
				return next(ctx, c)
			}
		})
	}
}

func targetOf(call *tools.Call) interrupt.Target {
	args, err := json.Marshal(call.Args)
	if err != nil || call.Args == nil {
		args = []byte("{}")
	}
	return interrupt.Target{
		ThreadID:   call.ThreadID,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Args:       string(args),
		Step:       call.Step,
	}
}
