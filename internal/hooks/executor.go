package hooks

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"
)

// FaultFunc observes handler faults (errors, panics, timeouts).
type FaultFunc func(h *Handler, event Event, err error)

// Executor runs handlers in order with a per-call timeout and panic recovery.
type Executor struct {
	timeout time.Duration
	onFault FaultFunc
}

// ExecutorOption configures the executor.
type ExecutorOption func(*Executor)

// WithTimeout sets the default per-handler timeout.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithFaultHandler installs an observer for handler faults.
func WithFaultHandler(fn FaultFunc) ExecutorOption {
	return func(e *Executor) {
		e.onFault = fn
	}
}

// NewExecutor creates an executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs handlers in sequence and aggregates their directives.
// A handler returning Stop ends the chain.
func (e *Executor) Execute(ctx context.Context, handlers []*Handler, hookCtx *Context) *Outcome {
	out := &Outcome{}
	for _, h := range handlers {
		result, err := e.run(ctx, h, hookCtx)
		if err != nil {
			out.Faults = append(out.Faults, err)
			log.Warn().
				Err(err).
				Str("handler_id", h.ID).
				Str("source", h.Source).
				Str("event", string(hookCtx.Event)).
				Msg("hook handler fault")
			if e.onFault != nil {
				e.onFault(h, hookCtx.Event, err)
			}
			continue
		}
		if result == nil {
			continue
		}
		out.merge(result)
		if result.Stop {
			log.Debug().
				Str("handler_id", h.ID).
				Str("event", string(hookCtx.Event)).
				Msg("hook chain stopped by handler")
			break
		}
	}
	return out
}

type handlerReturn struct {
	result *Result
	err    error
}

// run invokes one handler. The caller stops waiting when the timeout fires;
// handlers are expected to honour ctx and return soon after.
func (e *Executor) run(ctx context.Context, h *Handler, hookCtx *Context) (*Result, error) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan handlerReturn, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("handler_id", h.ID).
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("hook handler panicked")
				done <- handlerReturn{err: fmt.Errorf("%w: %s: %v", ErrHandlerPanic, h.ID, r)}
			}
		}()
		res, err := h.Handler(callCtx, hookCtx)
		done <- handlerReturn{result: res, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("hook %s: %w", h.ID, r.err)
		}
		return r.result, nil
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s after %s", ErrHandlerTimeout, h.ID, timeout)
	}
}
