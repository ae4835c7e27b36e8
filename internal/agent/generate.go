package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"cairn/internal/checkpoint"
	"cairn/internal/compaction"
	"cairn/internal/hooks"
	"cairn/internal/interrupt"
	"cairn/internal/metrics"
	"cairn/internal/provider"
	"cairn/internal/runner"
	"cairn/internal/tools"
	"cairn/internal/tracing"
)

// Generate runs one generation call until it completes or pauses. A pause
// is reported through Result.Status, never as an error.
func (a *Agent) Generate(ctx context.Context, req Request) (*Result, error) {
	return a.generate(ctx, req, nil)
}

// Stream runs a generation call in the background and streams its events.
// The channel is closed after the final done or error event. It buffers 64
// events; callers must drain it or cancel ctx, otherwise the generation
// blocks once the buffer is full.
func (a *Agent) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	ch := make(chan Event, 64)
	go func() {
		defer close(ch)
		send := func(ev Event) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		}
		res, err := a.generate(ctx, req, send)
		if err != nil {
			send(Event{Type: EventError, Error: err.Error()})
			return
		}
		send(Event{Type: EventDone, Result: res})
	}()
	return ch, nil
}

func validate(req Request) error {
	if req.Prompt == "" && len(req.History) == 0 {
		return ErrEmptyInput
	}
	return nil
}

func (a *Agent) generate(ctx context.Context, req Request, emit func(Event)) (res *Result, err error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	release := a.locks.lock(req.ThreadID)
	defer release()

	start := time.Now()
	model := req.Model
	if model == "" {
		model = a.opts.Model
	}
	ctx, span := tracing.StartGenerate(ctx, a.tracer, req.ThreadID, model)
	defer func() {
		tracing.End(span, err)
		observe(res, err, model, time.Since(start))
	}()

	t, err := a.open(ctx, req)
	if err != nil {
		return nil, err
	}
	t.emit = emit
	if p := t.cp.PendingInterrupt; p != nil {
		return nil, fmt.Errorf("%w: %s", ErrInterruptPending, p.ID)
	}

	input := provider.CloneMessages(req.History)
	if req.Prompt != "" {
		input = append(input, provider.Message{Role: provider.RoleUser, Content: req.Prompt})
	}
	res, err = a.turn(ctx, t, input, req.Prompt)
	if err != nil {
		return nil, err
	}
	if req.WaitForBackgroundTasks || a.opts.WaitForBackgroundTasks {
		return a.drain(ctx, t, res)
	}
	return res, nil
}

// drain runs follow-up turns for finished background tasks until none are
// left or a turn pauses. Usage and steps accumulate across turns.
func (a *Agent) drain(ctx context.Context, t *thread, first *Result) (*Result, error) {
	if first.Interrupted() {
		return first, nil
	}
	final := first
	usage := first.Usage
	steps := first.Steps
	n, err := a.coordinator.Drain(ctx, t.id, func(ctx context.Context, prompt string) (bool, error) {
		res, err := a.turn(ctx, t, []provider.Message{{Role: provider.RoleUser, Content: prompt}}, prompt)
		if err != nil {
			return false, err
		}
		metrics.FollowUpsTotal.Inc()
		usage.Add(&res.Usage)
		steps = append(steps, res.Steps...)
		final = res
		return res.Interrupted(), nil
	})
	if err != nil {
		return nil, normalize(err)
	}
	out := *final
	out.Usage = usage
	out.Steps = steps
	out.FollowUps = n
	return &out, nil
}

// turn runs one model pass over the thread's transcript plus input and
// commits its outcome to the checkpoint.
func (a *Agent) turn(ctx context.Context, t *thread, input []provider.Message, prompt string) (*Result, error) {
	messages := append(provider.CloneMessages(t.cp.Messages), input...)

	pre := a.hooks.Trigger(ctx, a.generationContext(hooks.PreGenerate, t, t.model, prompt))
	if pre.HasCached {
		return a.cached(ctx, t, messages, tools.FormatOutput(pre.CachedResult))
	}

	if a.compactor.Config().Enabled && a.compactor.NeedsCompaction(messages) {
		messages, _ = a.compact(ctx, t, messages, "threshold", a.compactor.Compact)
	}

	st := &retryState{model: t.model, maxRetries: a.opts.MaxRetries}
	for {
		capture := interrupt.NewCapture()
		book := interrupt.NewBook(t.cp.State.Responses)
		state := t.cp.State.Clone()
		runReq := runner.Request{
			Model:       st.model,
			System:      a.systemPrompt(t),
			Messages:    messages,
			Tools:       a.pipelineFor(t, capture, book),
			StopWhen:    []runner.StopCondition{runner.InterruptCaptured(capture), runner.StepCountIs(t.maxSteps)},
			Temperature: a.opts.Temperature,
			MaxTokens:   a.opts.MaxTokens,
			ThreadID:    t.id,
			State:       &state,
			StartStep:   t.cp.Step,
		}

		var (
			out *runner.Result
			err error
		)
		if t.emit != nil {
			out, err = a.runner.RunStream(ctx, runReq, func(ev runner.Event) { t.send(fromRunnerEvent(ev)) })
		} else {
			out, err = a.runner.Run(ctx, runReq)
		}

		// The first captured pause wins, even when a later one surfaced as
		// an error.
		if sig := capture.Pending(); sig != nil {
			if err != nil {
				log.Error().Err(err).Str("thread_id", t.id).Str("interrupt_id", sig.Interrupt.ID).
					Msg("run aborted after an interrupt was captured")
			}
			return a.pause(ctx, t, messages, out, sig, state, book, st.model)
		}
		if sig, ok := interrupt.AsSignal(err); ok {
			return a.pause(ctx, t, messages, out, sig, state, book, st.model)
		}
		if err == nil {
			return a.complete(ctx, t, messages, out, state, st.model, prompt)
		}
		if ctx.Err() != nil {
			return nil, normalize(err)
		}

		delay, rerr := a.onFailure(ctx, t, st, &messages, err)
		if rerr != nil {
			return nil, rerr
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, normalize(err)
		}
	}
}

func (a *Agent) systemPrompt(t *thread) string {
	if t.schema == nil {
		return t.system
	}
	schema, _ := json.Marshal(t.schema)
	instr := "Respond with a single JSON value matching this JSON schema, without any other text:\n" + string(schema)
	if t.system == "" {
		return instr
	}
	return t.system + "\n\n" + instr
}

// cached commits a reply supplied by a PreGenerate hook without calling the model.
func (a *Agent) cached(ctx context.Context, t *thread, messages []provider.Message, text string) (*Result, error) {
	if text != "" {
		messages = append(messages, provider.Message{Role: provider.RoleAssistant, Content: text})
	}
	t.cp.Messages = messages
	t.cp.PendingInterrupt = nil
	if err := a.save(ctx, t); err != nil {
		return nil, err
	}
	log.Debug().Str("thread_id", t.id).Msg("generation served from hook cache")
	res := &Result{ThreadID: t.id, Status: StatusCompleted, Text: text, FinishReason: provider.FinishReasonStop, Model: t.model}
	if err := a.structured(t, res); err != nil {
		return nil, err
	}
	return res, nil
}

// complete commits a finished run and applies PostGenerate substitutions.
func (a *Agent) complete(ctx context.Context, t *thread, messages []provider.Message, out *runner.Result, state checkpoint.State, model, prompt string) (*Result, error) {
	t.cp.Messages = append(messages, withoutEmptyTurns(out.Messages)...)
	t.cp.Step += len(out.Steps)
	state.Responses = nil
	t.cp.State = state
	t.cp.PendingInterrupt = nil
	if err := a.save(ctx, t); err != nil {
		return nil, err
	}

	res := &Result{
		ThreadID:     t.id,
		Status:       StatusCompleted,
		Text:         out.Text,
		Steps:        out.Steps,
		Usage:        out.Usage,
		FinishReason: out.FinishReason,
		Model:        model,
	}
	if err := a.structured(t, res); err != nil {
		return nil, err
	}

	hc := a.generationContext(hooks.PostGenerate, t, model, prompt)
	hc.Generation.Text = res.Text
	hc.Generation.Steps = len(res.Steps)
	hc.Generation.FinishReason = res.FinishReason
	hc.Generation.TotalTokens = res.Usage.TotalTokens
	if post := a.hooks.Trigger(ctx, hc); post.HasOutput {
		res.Text = tools.FormatOutput(post.UpdatedOutput)
	}
	return res, nil
}

// pause persists the partial transcript and the interrupt. Cooperative
// capture and escaped signals both end here.
func (a *Agent) pause(ctx context.Context, t *thread, messages []provider.Message, out *runner.Result, sig *interrupt.Signal, state checkpoint.State, book *interrupt.Book, model string) (*Result, error) {
	in := sig.Interrupt.Clone()
	in.ThreadID = t.id
	if !t.persist {
		return nil, newError(CodeAgent, fmt.Sprintf("tool %s requested an interrupt", in.ToolName), ErrNoCheckpointStore)
	}

	res := &Result{ThreadID: t.id, Status: StatusInterrupted, Interrupt: in, Model: model, FinishReason: provider.FinishReasonInterrupt}
	if out != nil {
		messages = append(messages, partialTranscript(out.Messages, in.ToolCallID)...)
		res.Text = out.Text
		res.Steps = out.Steps
		res.Usage = out.Usage
	}
	t.cp.Messages = messages
	t.cp.Step = max(t.cp.Step, in.Step)
	state.Responses = book.Snapshot()
	t.cp.State = state
	t.cp.PendingInterrupt = in
	if err := a.save(ctx, t); err != nil {
		return nil, err
	}
	a.announce(ctx, t, in)
	return res, nil
}

func (a *Agent) announce(ctx context.Context, t *thread, in *checkpoint.Interrupt) {
	hc := hooks.NewContext(hooks.InterruptRequested, t.id)
	hc.Interrupt = &hooks.InterruptContext{
		ID:         in.ID,
		Type:       string(in.Type),
		ToolCallID: in.ToolCallID,
		ToolName:   in.ToolName,
	}
	a.hooks.Trigger(ctx, hc)
	metrics.InterruptsTotal.WithLabelValues(string(in.Type)).Inc()
	t.send(Event{Type: EventInterrupt, Step: in.Step, Interrupt: in})
	log.Info().Str("thread_id", t.id).Str("interrupt_id", in.ID).Str("type", string(in.Type)).
		Str("tool", in.ToolName).Int("step", in.Step).Msg("interrupt persisted")
}

// compact runs fn between the compaction hooks. On failure the transcript
// is returned unchanged.
func (a *Agent) compact(ctx context.Context, t *thread, messages []provider.Message, reason string,
	fn func(context.Context, []provider.Message) (*compaction.Outcome, error)) ([]provider.Message, bool) {
	pre := hooks.NewContext(hooks.PreCompact, t.id)
	pre.Compaction = &hooks.CompactionContext{
		Reason:         reason,
		MessagesBefore: len(messages),
		TokensBefore:   compaction.EstimateMessages(messages),
	}
	a.hooks.Trigger(ctx, pre)

	out, err := fn(ctx, messages)
	if err != nil {
		log.Warn().Err(err).Str("thread_id", t.id).Str("reason", reason).Msg("compaction skipped")
		return messages, false
	}

	post := hooks.NewContext(hooks.PostCompact, t.id)
	post.Compaction = &hooks.CompactionContext{
		Reason:         reason,
		MessagesBefore: len(messages),
		MessagesAfter:  len(out.Messages),
		TokensBefore:   out.TokensBefore,
		TokensAfter:    out.TokensAfter,
	}
	a.hooks.Trigger(ctx, post)
	log.Info().Str("thread_id", t.id).Str("reason", reason).Int("summarized", out.Summarized).
		Int("tokens_before", out.TokensBefore).Int("tokens_after", out.TokensAfter).Msg("transcript compacted")
	return out.Messages, true
}

func (a *Agent) generationContext(event hooks.Event, t *thread, model, prompt string) *hooks.Context {
	hc := hooks.NewContext(event, t.id)
	hc.Generation = &hooks.GenerationContext{Model: model, Prompt: prompt}
	return hc
}

// structured fills Result.Output when the thread asked for structured output.
func (a *Agent) structured(t *thread, res *Result) error {
	if t.schema == nil {
		return nil
	}
	raw, err := parseJSONOutput(res.Text)
	if err != nil {
		return newError(CodeAgent, "structured output is not valid JSON", err)
	}
	res.Output = raw
	return nil
}

// partialTranscript drops the paused call, its placeholder result and any
// call left without a result, so that resuming appends the paused call and
// its real result exactly once.
func partialTranscript(msgs []provider.Message, callID string) []provider.Message {
	answered := make(map[string]bool)
	for _, m := range msgs {
		if m.Role == provider.RoleTool && m.ToolCallID != callID {
			answered[m.ToolCallID] = true
		}
	}
	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case provider.RoleTool:
			if m.ToolCallID == callID {
				continue
			}
			out = append(out, m.Clone())
		case provider.RoleAssistant:
			c := m.Clone()
			c.ToolCalls = nil
			for _, tc := range m.ToolCalls {
				if tc.ID != callID && answered[tc.ID] {
					c.ToolCalls = append(c.ToolCalls, tc)
				}
			}
			if c.HasContent() {
				out = append(out, c)
			}
		default:
			out = append(out, m.Clone())
		}
	}
	return out
}

func withoutEmptyTurns(msgs []provider.Message) []provider.Message {
	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == provider.RoleAssistant && !m.HasContent() {
			continue
		}
		out = append(out, m)
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func observe(res *Result, err error, model string, d time.Duration) {
	metrics.GenerationDuration.WithLabelValues(model).Observe(d.Seconds())
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("failed").Inc()
		return
	}
	metrics.GenerationsTotal.WithLabelValues(string(res.Status)).Inc()
	metrics.TokensTotal.WithLabelValues("input").Add(float64(res.Usage.PromptTokens))
	metrics.TokensTotal.WithLabelValues("output").Add(float64(res.Usage.CompletionTokens))
	for _, step := range res.Steps {
		for _, rec := range step.ToolResults {
			status := "ok"
			if rec.IsError {
				status = "error"
			}
			metrics.ToolCallsTotal.WithLabelValues(rec.Name, status).Inc()
			metrics.ToolDuration.WithLabelValues(rec.Name).Observe(rec.Duration.Seconds())
		}
	}
}
