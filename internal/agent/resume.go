package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"cairn/internal/checkpoint"
	"cairn/internal/interrupt"
	"cairn/internal/metrics"
	"cairn/internal/pipeline"
	"cairn/internal/provider"
	"cairn/internal/runner"
	"cairn/internal/tools"
	"cairn/internal/tracing"
)

// Resume answers the pending interrupt of a thread, completes the paused
// tool call and continues the generation. A failed validation leaves the
// checkpoint untouched.
func (a *Agent) Resume(ctx context.Context, threadID, interruptID string, response json.RawMessage, opts *ResumeOptions) (res *Result, err error) {
	if a.store == nil {
		return nil, ErrNoCheckpointStore
	}
	if opts == nil {
		opts = &ResumeOptions{}
	}
	release := a.locks.lock(threadID)
	defer release()

	ctx, span := tracing.StartResume(ctx, a.tracer, threadID, interruptID)
	defer func() {
		tracing.End(span, err)
		outcome := "failed"
		if err == nil {
			outcome = string(res.Status)
		}
		metrics.ResumesTotal.WithLabelValues(outcome).Inc()
	}()

	cp, err := a.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, threadID)
	}
	in := cp.PendingInterrupt
	if in == nil {
		return nil, fmt.Errorf("%w: thread %s", ErrNoPendingInterrupt, threadID)
	}
	if in.ID != interruptID {
		return nil, fmt.Errorf("%w: pending %s, got %s", ErrInterruptMismatch, in.ID, interruptID)
	}

	if s := resumeSettings(cp.Settings, opts); !s.IsZero() {
		cp.Settings = s
	}
	t := &thread{
		id:      threadID,
		cp:      cp,
		persist: true,
		emit:    opts.OnEvent,
	}
	a.configure(t, cp.Settings)
	log.Info().Str("thread_id", threadID).Str("interrupt_id", in.ID).Str("tool", in.ToolName).Msg("resuming")

	book := interrupt.NewBook(cp.State.Responses)
	book.Put(in.ID, response)

	rec, state, next, err := a.resolve(ctx, t, in, book)
	if err != nil {
		return nil, err
	}
	if next != nil {
		next.ThreadID = threadID
		t.cp.State = state
		t.cp.State.Responses = book.Snapshot()
		t.cp.Step = max(t.cp.Step, next.Step)
		t.cp.PendingInterrupt = next
		if err := a.save(ctx, t); err != nil {
			return nil, err
		}
		a.announce(ctx, t, next)
		return &Result{
			ThreadID:     threadID,
			Status:       StatusReInterrupted,
			Interrupt:    next,
			Model:        t.model,
			FinishReason: provider.FinishReasonInterrupt,
		}, nil
	}

	call := provider.ToolCall{ID: in.ToolCallID, Name: in.ToolName, Arguments: in.Args}
	t.cp.Messages = append(t.cp.Messages,
		provider.Message{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{call}},
		provider.Message{Role: provider.RoleTool, Content: rec.Output, ToolCallID: rec.CallID, Name: rec.Name, IsError: rec.IsError},
	)
	t.cp.Step = max(t.cp.Step, in.Step+1)
	state.Responses = nil
	t.cp.State = state
	t.cp.PendingInterrupt = nil
	if err := a.save(ctx, t); err != nil {
		return nil, err
	}
	t.send(Event{Type: EventToolCall, Step: in.Step, ToolCall: &call})
	t.send(Event{Type: EventToolResult, Step: in.Step, ToolResult: &rec})

	res, err = a.turn(ctx, t, nil, "")
	if err != nil {
		return nil, err
	}
	resumed := runner.Step{Index: in.Step, ToolCalls: []provider.ToolCall{call}, ToolResults: []runner.ToolRecord{rec}}
	res.Steps = append([]runner.Step{resumed}, res.Steps...)
	if opts.WaitForBackgroundTasks || a.opts.WaitForBackgroundTasks {
		return a.drain(ctx, t, res)
	}
	return res, nil
}

// resumeSettings layers the overrides of opts over the settings saved by
// the paused call.
func resumeSettings(saved *checkpoint.Settings, opts *ResumeOptions) *checkpoint.Settings {
	s := saved.Clone()
	if s == nil {
		s = &checkpoint.Settings{}
	}
	if opts.Model != "" {
		s.Model = opts.Model
	}
	if opts.System != "" {
		s.System = opts.System
	}
	if opts.MaxSteps > 0 {
		s.MaxSteps = opts.MaxSteps
	}
	if opts.OutputSchema != nil {
		s.OutputSchema = opts.OutputSchema
	}
	return s
}

// resolve produces the result of the paused call. A non-nil interrupt
// means the call paused again.
func (a *Agent) resolve(ctx context.Context, t *thread, in *checkpoint.Interrupt, book *interrupt.Book) (runner.ToolRecord, checkpoint.State, *checkpoint.Interrupt, error) {
	rec := runner.ToolRecord{CallID: in.ToolCallID, Name: in.ToolName, Args: in.Args}
	state := t.cp.State.Clone()

	if in.Type == checkpoint.InterruptApproval {
		raw, _ := book.Get(in.ID)
		if resp := interrupt.DecodeResponse(raw); !resp.Approved() {
			rec.Output = pipeline.DenialMessage(resp.Reason())
			rec.IsError = true
			log.Info().Str("thread_id", t.id).Str("tool", in.ToolName).Msg("approval denied")
			return rec, state, nil, nil
		}
	}

	capture := interrupt.NewCapture()
	tool, ok := a.pipelineFor(t, capture, book).Get(in.ToolName)
	if !ok || !tool.Executable() {
		rec.Output = tools.NewToolNotFoundError(in.ToolName).Error()
		rec.IsError = true
		return rec, state, nil, nil
	}
	args, err := tools.ParseArgs(in.Args)
	if err != nil {
		rec.Output = fmt.Sprintf("invalid arguments for %s: %v", in.ToolName, err)
		rec.IsError = true
		return rec, state, nil, nil
	}

	start := time.Now()
	out, err := tool.Execute(ctx, &tools.Call{
		ID:       in.ToolCallID,
		Name:     in.ToolName,
		Args:     args,
		ThreadID: t.id,
		Step:     in.Step,
		State:    &state,
	})
	rec.Duration = time.Since(start)

	if sig := capture.Pending(); sig != nil {
		return rec, state, sig.Interrupt.Clone(), nil
	}
	if sig, paused := interrupt.AsSignal(err); paused {
		return rec, state, sig.Interrupt.Clone(), nil
	}
	if err != nil {
		rec.Output = err.Error()
		rec.IsError = true
		return rec, state, nil, nil
	}
	rec.Output = runner.TruncateOutput(tools.FormatOutput(out), a.runnerMaxBytes())
	return rec, state, nil, nil
}

func (a *Agent) runnerMaxBytes() int {
	if a.opts.MaxToolResultBytes > 0 {
		return a.opts.MaxToolResultBytes
	}
	return runner.DefaultMaxToolResultBytes
}
