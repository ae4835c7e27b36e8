package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cairn/internal/checkpoint"
	"cairn/internal/provider"
	"cairn/internal/provider/scripted"
	"cairn/internal/tools"
)

func pausedOnDeploy(t *testing.T, after ...scripted.Turn) *harness {
	t.Helper()
	turns := append([]scripted.Turn{scripted.Call("c1", "deploy", `{"env":"prod"}`)}, after...)
	h := newHarness(t, turns)
	res, err := h.agent.Generate(context.Background(), Request{ThreadID: "t1", Prompt: "ship it"})
	require.NoError(t, err)
	require.Equal(t, "int_c1", res.Interrupt.ID)
	return h
}

func TestResumeApproved(t *testing.T) {
	h := pausedOnDeploy(t, scripted.Text("deployed it"))

	res, err := h.agent.Resume(context.Background(), "t1", "int_c1", json.RawMessage(`{"approved":true}`), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "deployed it", res.Text)
	require.Len(t, h.deployed, 1)
	assert.Equal(t, map[string]any{"env": "prod"}, h.deployed[0])

	require.Len(t, res.Steps, 2)
	assert.Equal(t, 0, res.Steps[0].Index)
	assert.Equal(t, "deployed:prod", res.Steps[0].ToolResults[0].Output)
	assert.Equal(t, 1, res.Steps[1].Index)

	call := provider.ToolCall{ID: "c1", Name: "deploy", Arguments: `{"env":"prod"}`}
	want := []provider.Message{
		user("ship it"),
		{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{call}},
		{Role: provider.RoleTool, Content: "deployed:prod", ToolCallID: "c1", Name: "deploy"},
		assistant("deployed it"),
	}
	cp := h.checkpoint(t, "t1")
	assert.Empty(t, cmp.Diff(want, cp.Messages))
	assert.Equal(t, 2, cp.Step)
	assert.Nil(t, cp.PendingInterrupt)
	assert.Empty(t, cp.State.Responses)

	// The continuation saw the resolved call exactly once.
	reqs := h.prov.Requests()
	assert.Empty(t, cmp.Diff(want[:3], reqs[1].Messages))
}

func TestResumeDenied(t *testing.T) {
	h := pausedOnDeploy(t, scripted.Text("understood"))

	res, err := h.agent.Resume(context.Background(), "t1", "int_c1", json.RawMessage(`{"approved":false,"reason":"freeze"}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "understood", res.Text)
	assert.Empty(t, h.deployed)

	rec := res.Steps[0].ToolResults[0]
	assert.True(t, rec.IsError)
	assert.Equal(t, "Tool execution denied by user: freeze", rec.Output)
	cp := h.checkpoint(t, "t1")
	assert.Equal(t, "Tool execution denied by user: freeze", cp.Messages[2].Content)
	assert.True(t, cp.Messages[2].IsError)
}

func TestResumeValidationLeavesCheckpointUntouched(t *testing.T) {
	h := pausedOnDeploy(t)
	ctx := context.Background()
	before := h.checkpoint(t, "t1")

	_, err := h.agent.Resume(ctx, "t1", "int_other", json.RawMessage(`{"approved":true}`), nil)
	assert.ErrorIs(t, err, ErrInterruptMismatch)
	_, err = h.agent.Resume(ctx, "nope", "int_c1", json.RawMessage(`{"approved":true}`), nil)
	assert.ErrorIs(t, err, ErrCheckpointNotFound)

	assert.Empty(t, cmp.Diff(before, h.checkpoint(t, "t1")))
	assert.Empty(t, h.deployed)
	assert.Equal(t, 1, h.prov.Calls())

	done := newHarness(t, []scripted.Turn{scripted.Text("ok")})
	_, err = done.agent.Generate(ctx, Request{ThreadID: "t1", Prompt: "hi"})
	require.NoError(t, err)
	_, err = done.agent.Resume(ctx, "t1", "int_c1", nil, nil)
	assert.ErrorIs(t, err, ErrNoPendingInterrupt)

	bare := newHarness(t, nil, withoutStore())
	_, err = bare.agent.Resume(ctx, "t1", "int_c1", nil, nil)
	assert.ErrorIs(t, err, ErrNoCheckpointStore)
}

func TestResumeTwiceFails(t *testing.T) {
	h := pausedOnDeploy(t, scripted.Text("done"))
	ctx := context.Background()

	_, err := h.agent.Resume(ctx, "t1", "int_c1", json.RawMessage(`{"approved":true}`), nil)
	require.NoError(t, err)
	_, err = h.agent.Resume(ctx, "t1", "int_c1", json.RawMessage(`{"approved":true}`), nil)
	assert.ErrorIs(t, err, ErrNoPendingInterrupt)
	assert.Len(t, h.deployed, 1)
}

func TestCustomWaitReinterrupts(t *testing.T) {
	survey := &tools.Tool{Name: "survey", Execute: func(ctx context.Context, call *tools.Call) (any, error) {
		name, err := call.Wait(ctx, map[string]any{"question": "name?"})
		if err != nil {
			return nil, err
		}
		age, err := call.Wait(ctx, map[string]any{"question": "age?"})
		if err != nil {
			return nil, err
		}
		return string(name) + "/" + string(age), nil
	}}
	h := newHarness(t, []scripted.Turn{
		scripted.Call("c1", "survey", `{}`),
		scripted.Text("thanks"),
	}, withTools(survey))
	ctx := context.Background()

	res, err := h.agent.Generate(ctx, Request{ThreadID: "t1", Prompt: "ask me"})
	require.NoError(t, err)
	require.Equal(t, StatusInterrupted, res.Status)
	assert.Equal(t, "int_c1:1", res.Interrupt.ID)
	assert.Equal(t, checkpoint.InterruptCustom, res.Interrupt.Type)
	assert.JSONEq(t, `{"question":"name?"}`, string(res.Interrupt.Request))

	res, err = h.agent.Resume(ctx, "t1", "int_c1:1", json.RawMessage(`"ann"`), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusReInterrupted, res.Status)
	assert.Equal(t, "int_c1:2", res.Interrupt.ID)
	assert.True(t, res.Interrupted())

	cp := h.checkpoint(t, "t1")
	assert.Equal(t, "int_c1:2", cp.PendingInterrupt.ID)
	assert.JSONEq(t, `"ann"`, string(cp.State.Responses["int_c1:1"]))
	assert.Len(t, cp.Messages, 1)

	_, err = h.agent.Resume(ctx, "t1", "int_c1:1", json.RawMessage(`"bob"`), nil)
	assert.ErrorIs(t, err, ErrInterruptMismatch)

	res, err = h.agent.Resume(ctx, "t1", "int_c1:2", json.RawMessage(`30`), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, `"ann"/30`, res.Steps[0].ToolResults[0].Output)

	cp = h.checkpoint(t, "t1")
	assert.Nil(t, cp.PendingInterrupt)
	assert.Empty(t, cp.State.Responses)
	assert.Len(t, cp.Messages, 4)
	assert.Equal(t, 2, h.prov.Calls())
}

func TestSingleWaitRoundTrip(t *testing.T) {
	confirm := &tools.Tool{Name: "confirm", Execute: func(ctx context.Context, call *tools.Call) (any, error) {
		answer, err := call.Wait(ctx, map[string]any{"question": "proceed?"})
		if err != nil {
			return nil, err
		}
		return "answer:" + string(answer), nil
	}}
	h := newHarness(t, []scripted.Turn{
		scripted.Call("c1", "confirm", `{}`),
		scripted.Text("confirmed"),
	}, withTools(confirm), func(o *Options) { o.MaxSteps = 1 })
	ctx := context.Background()

	res, err := h.agent.Generate(ctx, Request{ThreadID: "t1", Prompt: "go"})
	require.NoError(t, err)
	require.Equal(t, StatusInterrupted, res.Status)
	assert.Equal(t, checkpoint.InterruptCustom, res.Interrupt.Type)

	res, err = h.agent.Resume(ctx, "t1", res.Interrupt.ID, json.RawMessage(`{"ok":true}`), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)

	var found bool
	for _, m := range h.checkpoint(t, "t1").Messages {
		if m.Role == provider.RoleTool && m.ToolCallID == "c1" {
			assert.Equal(t, `answer:{"ok":true}`, m.Content)
			found = true
		}
	}
	assert.True(t, found, "transcript holds the tool result built from the response")
}

func TestResumeStreamsContinuation(t *testing.T) {
	h := pausedOnDeploy(t, scripted.Text("deployed"))

	var types []EventType
	_, err := h.agent.Resume(context.Background(), "t1", "int_c1", json.RawMessage(`{"approved":true}`), &ResumeOptions{
		OnEvent: func(ev Event) { types = append(types, ev.Type) },
	})
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventToolCall, EventToolResult, EventTextDelta, EventStepFinish}, types)
}

func TestResumeUnknownTool(t *testing.T) {
	h := pausedOnDeploy(t, scripted.Text("ok"))
	ctx := context.Background()

	cp := h.checkpoint(t, "t1")
	cp.PendingInterrupt.ToolName = "vanished"
	require.NoError(t, h.store.Save(ctx, cp))
	h.agent.store.Invalidate("t1")

	// The approval is granted but the tool no longer exists.
	res, err := h.agent.Resume(ctx, "t1", "int_c1", json.RawMessage(`{"approved":true}`), nil)
	require.NoError(t, err)
	rec := res.Steps[0].ToolResults[0]
	assert.True(t, rec.IsError)
	assert.Contains(t, rec.Output, "vanished")
}

func TestResumeKeepsCallSettings(t *testing.T) {
	h := newHarness(t, []scripted.Turn{
		scripted.Call("c1", "deploy", `{"env":"prod"}`),
		scripted.Text(`{"deployed": true}`),
	})
	ctx := context.Background()
	schema := map[string]any{"type": "object"}

	res, err := h.agent.Generate(ctx, Request{
		ThreadID:     "t1",
		Prompt:       "ship it",
		Model:        "m-large",
		System:       "custom system",
		MaxSteps:     7,
		OutputSchema: schema,
	})
	require.NoError(t, err)
	require.Equal(t, StatusInterrupted, res.Status)
	assert.Equal(t, &checkpoint.Settings{Model: "m-large", System: "custom system", MaxSteps: 7, OutputSchema: schema},
		h.checkpoint(t, "t1").Settings)

	res, err = h.agent.Resume(ctx, "t1", "int_c1", json.RawMessage(`{"approved":true}`), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "m-large", res.Model)
	assert.JSONEq(t, `{"deployed": true}`, string(res.Output))

	reqs := h.prov.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "m-large", reqs[1].Model)
	assert.True(t, strings.HasPrefix(reqs[1].System, "custom system\n\n"))
	assert.Contains(t, reqs[1].System, `{"type":"object"}`)
}

func TestResumeOverridesCallSettings(t *testing.T) {
	h := pausedOnDeploy(t, scripted.Text(`["ok"]`))

	res, err := h.agent.Resume(context.Background(), "t1", "int_c1", json.RawMessage(`{"approved":true}`), &ResumeOptions{
		System:       "resumed system",
		OutputSchema: map[string]any{"type": "array"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `["ok"]`, string(res.Output))
	system := h.prov.Requests()[1].System
	assert.True(t, strings.HasPrefix(system, "resumed system"))
	assert.Contains(t, system, `{"type":"array"}`)

	saved := h.checkpoint(t, "t1").Settings
	require.NotNil(t, saved)
	assert.Equal(t, "resumed system", saved.System)
}
