package runner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cairn/internal/interrupt"
	"cairn/internal/pipeline"
	"cairn/internal/permission"
	"cairn/internal/provider"
	"cairn/internal/provider/scripted"
	"cairn/internal/tools"
)

func userMsg(s string) []provider.Message {
	return []provider.Message{{Role: provider.RoleUser, Content: s}}
}

func echoTool() *tools.Tool {
	return &tools.Tool{
		Name: "echo",
		Execute: func(_ context.Context, call *tools.Call) (any, error) {
			return call.Args["text"], nil
		},
	}
}

func mustSet(t *testing.T, ts ...*tools.Tool) *tools.Set {
	t.Helper()
	s, err := tools.NewSet(ts...)
	require.NoError(t, err)
	return s
}

func TestRunLoopsUntilNoToolCalls(t *testing.T) {
	prov := scripted.New("m",
		scripted.Call("c1", "echo", `{"text":"hello"}`),
		scripted.Text("done"),
	)
	r := New(provider.StaticPool(prov))

	res, err := r.Run(context.Background(), Request{
		Model:    "m",
		Messages: userMsg("hi"),
		Tools:    mustSet(t, echoTool()),
	})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Text)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "hello", res.Steps[0].ToolResults[0].Output)
	assert.Equal(t, provider.FinishReasonStop, res.FinishReason)

	require.Len(t, res.Messages, 3)
	assert.Equal(t, provider.RoleAssistant, res.Messages[0].Role)
	assert.Equal(t, provider.RoleTool, res.Messages[1].Role)
	assert.Equal(t, "c1", res.Messages[1].ToolCallID)
	assert.Equal(t, "done", res.Messages[2].Content)

	// The second request carries the tool result.
	reqs := prov.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Messages, 3)
	assert.Equal(t, res.Usage.TotalTokens, res.Steps[0].Usage.TotalTokens+res.Steps[1].Usage.TotalTokens)
}

func TestStepCeiling(t *testing.T) {
	prov := scripted.New("m",
		scripted.Call("c1", "echo", `{"text":"a"}`),
		scripted.Call("c2", "echo", `{"text":"b"}`),
	)
	r := New(provider.StaticPool(prov))

	res, err := r.Run(context.Background(), Request{
		Messages: userMsg("hi"),
		Tools:    mustSet(t, echoTool()),
		StopWhen: []StopCondition{StepCountIs(1)},
	})
	require.NoError(t, err)
	assert.Len(t, res.Steps, 1)
	assert.Equal(t, 1, prov.Calls())
}

func TestToolErrorsBecomeResults(t *testing.T) {
	failing := &tools.Tool{Name: "fail", Execute: func(context.Context, *tools.Call) (any, error) {
		return nil, errors.New("exploded")
	}}
	prov := scripted.New("m",
		scripted.Turn{ToolCalls: []scripted.ToolCall{
			{ID: "c1", Name: "fail", Arguments: `{}`},
			{ID: "c2", Name: "missing", Arguments: `{}`},
			{ID: "c3", Name: "fail", Arguments: `{not json`},
		}},
		scripted.Text("recovered"),
	)
	r := New(provider.StaticPool(prov))

	res, err := r.Run(context.Background(), Request{Messages: userMsg("x"), Tools: mustSet(t, failing)})
	require.NoError(t, err)
	results := res.Steps[0].ToolResults
	require.Len(t, results, 3)
	for _, rec := range results {
		assert.True(t, rec.IsError, rec.CallID)
	}
	assert.Equal(t, "exploded", results[0].Output)
	assert.Contains(t, results[1].Output, "missing")
	assert.Equal(t, "recovered", res.Text)
}

func TestInterruptStopsAfterStep(t *testing.T) {
	capture := interrupt.NewCapture()
	deploy := &tools.Tool{
		Name:          "deploy",
		Execute:       func(context.Context, *tools.Call) (any, error) { return "deployed", nil },
		NeedsApproval: func(map[string]any) bool { return true },
	}
	set := pipeline.Build(pipeline.Config{
		Capture:       capture,
		Book:          interrupt.NewBook(nil),
		Gate:          permission.NewGate(permission.ModeDefault, nil),
		Checkpointing: true,
	})(mustSet(t, deploy))

	prov := scripted.New("m", scripted.Call("c1", "deploy", `{}`), scripted.Text("never"))
	r := New(provider.StaticPool(prov))

	res, err := r.Run(context.Background(), Request{
		Messages:  userMsg("ship it"),
		Tools:     set,
		StopWhen:  []StopCondition{InterruptCaptured(capture)},
		ThreadID:  "t1",
		StartStep: 4,
	})
	require.NoError(t, err)
	assert.Len(t, res.Steps, 1)
	assert.Equal(t, 1, prov.Calls())
	require.True(t, capture.Captured())
	assert.Equal(t, 4, capture.Pending().Interrupt.Step)
	assert.Equal(t, pipeline.Placeholder, res.Steps[0].ToolResults[0].Output)
}

func TestSignalErrorAbortsWithPartialResult(t *testing.T) {
	raw := &tools.Tool{Name: "wait", Execute: func(ctx context.Context, call *tools.Call) (any, error) {
		sig, err := interrupt.Custom(interrupt.Target{ToolCallID: call.ID, ToolName: call.Name}, 0, "q")
		if err != nil {
			return nil, err
		}
		return nil, sig
	}}
	prov := scripted.New("m", scripted.Turn{Content: "checking", ToolCalls: []scripted.ToolCall{
		{ID: "c1", Name: "echo", Arguments: `{"text":"first"}`},
		{ID: "c2", Name: "wait", Arguments: `{}`},
	}})
	r := New(provider.StaticPool(prov))

	res, err := r.Run(context.Background(), Request{Messages: userMsg("x"), Tools: mustSet(t, echoTool(), raw)})
	sig, ok := interrupt.AsSignal(err)
	require.True(t, ok)
	assert.Equal(t, "c2", sig.Interrupt.ToolCallID)
	require.NotNil(t, res)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, "first", res.Messages[1].Content)
	assert.Equal(t, "checking", res.Text)
}

func TestRunStreamEmitsEvents(t *testing.T) {
	prov := scripted.New("m",
		scripted.Call("c1", "echo", `{"text":"x"}`),
		scripted.Text("all done now"),
	)
	r := New(provider.StaticPool(prov))

	var types []EventType
	var text strings.Builder
	res, err := r.RunStream(context.Background(), Request{Messages: userMsg("go"), Tools: mustSet(t, echoTool())}, func(ev Event) {
		types = append(types, ev.Type)
		text.WriteString(ev.Delta)
	})
	require.NoError(t, err)
	assert.Equal(t, "all done now", res.Text)
	assert.Equal(t, "all done now", text.String())
	assert.Equal(t, []EventType{
		EventToolCall, EventToolResult, EventStepFinish,
		EventTextDelta, EventTextDelta, EventTextDelta, EventStepFinish,
	}, types)
}

func TestClientSideToolEndsRun(t *testing.T) {
	prov := scripted.New("m", scripted.Call("c1", "confirm", `{}`), scripted.Text("unreached"))
	r := New(provider.StaticPool(prov))

	res, err := r.Run(context.Background(), Request{
		Messages: userMsg("x"),
		Tools:    mustSet(t, &tools.Tool{Name: "confirm"}),
	})
	require.NoError(t, err)
	assert.Equal(t, provider.FinishReasonToolCalls, res.FinishReason)
	assert.Empty(t, res.Steps[0].ToolResults)
	assert.Equal(t, 1, prov.Calls())
}

func TestRunErrors(t *testing.T) {
	r := New(provider.StaticPool(scripted.New("m")))
	_, err := r.Run(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNoMessages)

	res, err := r.Run(context.Background(), Request{Messages: userMsg("x")})
	assert.ErrorIs(t, err, provider.ErrScriptExhausted)
	assert.Empty(t, res.Steps)
}

func TestTruncateOutput(t *testing.T) {
	assert.Equal(t, "short", TruncateOutput("short", 100))

	long := strings.Repeat("a", 500)
	out := TruncateOutput(long, 100)
	assert.Contains(t, out, "bytes truncated")
	assert.True(t, strings.HasPrefix(out, strings.Repeat("a", 40)))

	uri := "see data:image/png;base64," + strings.Repeat("A", 200) + " end"
	out = TruncateOutput(uri, 100)
	assert.Contains(t, out, "[base64 data removed")
	assert.True(t, strings.HasSuffix(out, " end"))
}
