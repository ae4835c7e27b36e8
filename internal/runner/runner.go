// Package runner is the model-calling primitive: it alternates model calls
// and tool executions until the model stops asking for tools or a stop
// condition fires.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cairn/internal/checkpoint"
	"cairn/internal/interrupt"
	"cairn/internal/provider"
	"cairn/internal/tools"
)

// Request describes one run.
type Request struct {
	Model       string
	System      string
	Messages    []provider.Message
	Tools       *tools.Set
	StopWhen    []StopCondition
	Temperature float64
	MaxTokens   int

	// ThreadID and State are handed to tool invocations.
	ThreadID string
	State    *checkpoint.State
	// StartStep numbers the first step of this run.
	StartStep int
}

// Runner runs requests against the providers of a pool.
type Runner struct {
	pool           *provider.Pool
	maxResultBytes int
	tracer         trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxToolResultBytes caps tool output placed in the transcript.
func WithMaxToolResultBytes(n int) Option {
	return func(r *Runner) { r.maxResultBytes = n }
}

// WithTracer sets the tracer used for tool spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// New creates a runner over pool.
func New(pool *provider.Pool, opts ...Option) *Runner {
	r := &Runner{
		pool:           pool,
		maxResultBytes: DefaultMaxToolResultBytes,
		tracer:         otel.Tracer("cairn/runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes req with buffered model calls.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	return r.run(ctx, req, nil)
}

// RunStream executes req with streamed model calls, forwarding events to sink.
func (r *Runner) RunStream(ctx context.Context, req Request, sink Sink) (*Result, error) {
	if sink == nil {
		sink = func(Event) {}
	}
	return r.run(ctx, req, sink)
}

func (r *Runner) run(ctx context.Context, req Request, sink Sink) (*Result, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}
	if r.pool == nil {
		return nil, ErrNoProvider
	}
	prov, err := r.pool.Get(req.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoProvider, err)
	}
	defs, err := req.Tools.Definitions()
	if err != nil {
		return nil, err
	}

	emit := func(ev Event) {
		if sink != nil {
			sink(ev)
		}
	}

	result := &Result{}
	history := provider.CloneMessages(req.Messages)

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		index := req.StartStep + i
		chatReq := provider.ChatRequest{
			Model:       req.Model,
			System:      req.System,
			Messages:    history,
			Tools:       defs,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
			ThreadID:    req.ThreadID,
		}

		var resp *provider.ChatResponse
		if sink != nil {
			resp, err = r.stream(ctx, prov, chatReq, index, emit)
		} else {
			resp, err = prov.Chat(ctx, chatReq)
		}
		if err != nil {
			return result, err
		}

		step := Step{
			Index:        index,
			Text:         resp.Content,
			ToolCalls:    resp.ToolCalls,
			Usage:        resp.Usage,
			FinishReason: resp.FinishReason,
		}
		result.Usage.Add(resp.Usage)
		result.Text = resp.Content
		result.FinishReason = resp.FinishReason

		assistant := provider.Message{Role: provider.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls}
		history = append(history, assistant)
		result.Messages = append(result.Messages, assistant.Clone())

		clientSide := false
		for _, tc := range resp.ToolCalls {
			emit(Event{Type: EventToolCall, Step: index, ToolCall: &tc})

			tool, ok := req.Tools.Get(tc.Name)
			if ok && !tool.Executable() {
				clientSide = true
				continue
			}
			rec, err := r.execute(ctx, req, tool, tc, index)
			if err != nil {
				result.Steps = append(result.Steps, step)
				return result, err
			}
			step.ToolResults = append(step.ToolResults, rec)
			msg := provider.Message{
				Role:       provider.RoleTool,
				Content:    rec.Output,
				ToolCallID: rec.CallID,
				Name:       rec.Name,
				IsError:    rec.IsError,
			}
			history = append(history, msg)
			result.Messages = append(result.Messages, msg)
			emit(Event{Type: EventToolResult, Step: index, ToolResult: &rec})
		}

		result.Steps = append(result.Steps, step)
		emit(Event{Type: EventStepFinish, Step: index, Usage: resp.Usage})

		if len(resp.ToolCalls) == 0 || clientSide || shouldStop(req.StopWhen, result.Steps) {
			return result, nil
		}
	}
}

func (r *Runner) stream(ctx context.Context, prov provider.Provider, req provider.ChatRequest, index int, emit Sink) (*provider.ChatResponse, error) {
	events, err := prov.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return provider.Collect(events, func(ev provider.ChatEvent) {
		if ev.Type == provider.EventTypeContent && ev.Delta != "" {
			emit(Event{Type: EventTextDelta, Step: index, Delta: ev.Delta})
		}
	})
}

// execute runs one tool call. Tool failures become error results; only a
// pause signal (captured or rejected) aborts the run.
func (r *Runner) execute(ctx context.Context, req Request, tool *tools.Tool, tc provider.ToolCall, index int) (ToolRecord, error) {
	rec := ToolRecord{CallID: tc.ID, Name: tc.Name, Args: tc.Arguments}
	if tool == nil {
		rec.Output = tools.NewToolNotFoundError(tc.Name).Error()
		rec.IsError = true
		return rec, nil
	}
	args, err := tools.ParseArgs(tc.Arguments)
	if err != nil {
		rec.Output = fmt.Sprintf("invalid arguments for %s: %v", tc.Name, err)
		rec.IsError = true
		return rec, nil
	}

	ctx, span := r.tracer.Start(ctx, "tool "+tc.Name, trace.WithAttributes(
		attribute.String("cairn.tool", tc.Name),
		attribute.String("cairn.tool_call_id", tc.ID),
		attribute.String("cairn.thread_id", req.ThreadID),
	))
	defer span.End()

	start := time.Now()
	out, err := tool.Execute(ctx, &tools.Call{
		ID:       tc.ID,
		Name:     tc.Name,
		Args:     args,
		ThreadID: req.ThreadID,
		Step:     index,
		State:    req.State,
	})
	rec.Duration = time.Since(start)

	if err != nil {
		if _, paused := interrupt.AsSignal(err); paused {
			span.SetStatus(codes.Error, "pause signal escaped capture")
			return rec, err
		}
		span.RecordError(err)
		log.Debug().Err(err).Str("tool", tc.Name).Str("thread_id", req.ThreadID).Msg("tool execution failed")
		rec.Output = err.Error()
		rec.IsError = true
		return rec, nil
	}
	rec.Output = TruncateOutput(tools.FormatOutput(out), r.maxResultBytes)
	return rec, nil
}
