package hooks

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Manager dispatches events to the handlers of a sealed registry.
// A nil Manager dispatches nothing.
type Manager struct {
	registry *Registry
	executor *Executor
}

// NewManager creates a manager over registry. The registry is sealed.
func NewManager(registry *Registry, opts ...ExecutorOption) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	registry.Seal()
	return &Manager{
		registry: registry,
		executor: NewExecutor(opts...),
	}
}

// Trigger runs the handlers registered for hookCtx.Event.
func (m *Manager) Trigger(ctx context.Context, hookCtx *Context) *Outcome {
	if m == nil || hookCtx == nil {
		return &Outcome{}
	}
	handlers := m.registry.Handlers(hookCtx.Event, hookCtx.ToolName())
	if len(handlers) == 0 {
		return &Outcome{}
	}
	log.Debug().
		Str("event", string(hookCtx.Event)).
		Str("thread_id", hookCtx.ThreadID).
		Int("handler_count", len(handlers)).
		Msg("triggering hooks")
	return m.executor.Execute(ctx, handlers, hookCtx)
}

// Has reports whether any handler is registered for event.
func (m *Manager) Has(event Event) bool {
	if m == nil {
		return false
	}
	m.registry.mu.RLock()
	defer m.registry.mu.RUnlock()
	return len(m.registry.handlers[event]) > 0
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// PreToolUse fires before a tool executes.
func (m *Manager) PreToolUse(ctx context.Context, threadID, callID, name string, args map[string]any) *Outcome {
	hc := NewContext(PreToolUse, threadID)
	hc.Tool = &ToolContext{CallID: callID, Name: name, Args: args}
	return m.Trigger(ctx, hc)
}

// PostToolUse fires after a tool succeeds.
func (m *Manager) PostToolUse(ctx context.Context, threadID, callID, name string, args map[string]any, output any, d time.Duration) *Outcome {
	hc := NewContext(PostToolUse, threadID)
	hc.Tool = &ToolContext{CallID: callID, Name: name, Args: args, Output: output, Duration: d}
	return m.Trigger(ctx, hc)
}

// PostToolUseFailure fires after a tool fails or is denied.
func (m *Manager) PostToolUseFailure(ctx context.Context, threadID, callID, name string, args map[string]any, err error, d time.Duration) *Outcome {
	hc := NewContext(PostToolUseFailure, threadID)
	hc.Tool = &ToolContext{CallID: callID, Name: name, Args: args, Duration: d}
	if err != nil {
		hc.Tool.Error = err.Error()
	}
	return m.Trigger(ctx, hc)
}
