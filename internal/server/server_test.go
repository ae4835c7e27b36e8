package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cairn/internal/agent"
	"cairn/internal/checkpoint"
	"cairn/internal/config"
	"cairn/internal/permission"
)

const helloScript = `name: demo
turns:
  - tool_calls:
      - id: c1
        name: read_file
        arguments: '{"path":"notes.txt"}'
  - content: done reading
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Agent: config.AgentConfig{
			Model:          "scripted:default",
			MaxSteps:       5,
			RetryDelay:     time.Millisecond,
			PermissionMode: "default",
		},
		Provider: config.ProviderConfig{
			Default: BackendScripted,
			Script:  writeFile(t, dir, "script.yaml", helloScript),
		},
		Checkpoint: config.CheckpointConfig{
			Driver:        config.DriverMemory,
			Retention:     time.Hour,
			PruneSchedule: "@daily",
		},
		Server: config.ServerConfig{Listen: "127.0.0.1:0"},
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	store, closer, err := OpenStore(ctx, config.CheckpointConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &checkpoint.MemoryStore{}, store)
	assert.NoError(t, closer())

	path := filepath.Join(t.TempDir(), "cp.db")
	store, closer, err = OpenStore(ctx, config.CheckpointConfig{Driver: config.DriverSQLite, Path: path})
	require.NoError(t, err)
	defer closer()
	require.IsType(t, &checkpoint.Cache{}, store)
	require.NoError(t, store.Save(ctx, &checkpoint.Checkpoint{ThreadID: "t1", Step: 1, UpdatedAt: time.Now()}))
	cp, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, cp.Step)

	_, _, err = OpenStore(ctx, config.CheckpointConfig{Driver: "etcd"})
	assert.ErrorContains(t, err, `unknown checkpoint driver "etcd"`)
}

func TestOpenStoreRedisUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err = OpenStore(ctx, config.CheckpointConfig{Driver: config.DriverRedis, Addr: addr})
	assert.ErrorContains(t, err, "connect redis")
}

func TestNewRouter(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRouter(config.ProviderConfig{Script: writeFile(t, dir, "s.yaml", helloScript)})
	require.NoError(t, err)
	assert.Equal(t, []string{BackendOllama, BackendScripted}, r.Backends())

	pool := r.Pool()
	p, err := pool.Get("scripted:anything")
	require.NoError(t, err)
	assert.Equal(t, "demo", p.Name())

	p, err = pool.Get("ollama:llama3")
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	r, err = NewRouter(config.ProviderConfig{})
	require.NoError(t, err)
	_, err = r.Pool().Get("scripted:x")
	assert.ErrorContains(t, err, "provider.script")
}

func TestConfigHooks(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "deny.js", `function handler(ctx) { return {decision: "deny", reason: "no"}; }`)
	_, err := ConfigHooks([]config.HookConfig{{Event: "Whenever", Path: path}}, nil)
	assert.ErrorContains(t, err, `unknown event "Whenever"`)

	_, err = ConfigHooks([]config.HookConfig{{Event: "PreToolUse", Path: filepath.Join(dir, "missing.js")}}, fakeRunner{})
	assert.ErrorContains(t, err, "hooks[0]")

	hs, err := ConfigHooks([]config.HookConfig{{Event: "PreToolUse", Matcher: "read_.*", Path: path, Timeout: time.Second}}, fakeRunner{})
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, "config-0", hs[0].ID)
	assert.Equal(t, "config", hs[0].Source)
	assert.Equal(t, "read_.*", hs[0].Matcher)
}

type fakeRunner struct{}

func (fakeRunner) Run(context.Context, string, string) (any, error) { return nil, nil }

func TestStackRunsConfiguredHooks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hooks = []config.HookConfig{{
		Event:   "PreToolUse",
		Matcher: "read_file",
		Path:    writeFile(t, t.TempDir(), "deny.js", `function handler(ctx) { return {decision: "deny", reason: "blocked by hook"}; }`),
	}}

	stack, err := NewStack(context.Background(), cfg, StackOptions{})
	require.NoError(t, err)
	defer stack.Close()

	res, err := stack.Agent.Generate(context.Background(), agent.Request{ThreadID: "t1", Prompt: "read my notes"})
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, res.Status)
	assert.Equal(t, "done reading", res.Text)
	require.NotEmpty(t, res.Steps)
	require.Len(t, res.Steps[0].ToolResults, 1)
	assert.True(t, res.Steps[0].ToolResults[0].IsError)
	assert.Contains(t, res.Steps[0].ToolResults[0].Output, "blocked by hook")

	_, ok := stack.Pruner()
	assert.True(t, ok)
}

func TestNewStackRejectsBadMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.PermissionMode = "yolo"
	_, err := NewStack(context.Background(), cfg, StackOptions{})
	assert.ErrorIs(t, err, permission.ErrInvalidMode)
}

func TestServerAppliesReloadedConfig(t *testing.T) {
	cfg := testConfig(t)
	stack, err := NewStack(context.Background(), cfg, StackOptions{})
	require.NoError(t, err)
	defer stack.Close()

	srv, err := New(cfg, stack, Options{Version: "test"})
	require.NoError(t, err)
	require.NotNil(t, srv.janitor)

	next := *cfg
	next.Agent.PermissionMode = "plan"
	srv.apply(&next)
	assert.Equal(t, permission.ModePlan, stack.Agent.PermissionMode())

	bad := next
	bad.Agent.PermissionMode = "nonsense"
	srv.apply(&bad)
	assert.Equal(t, permission.ModePlan, stack.Agent.PermissionMode())
}

func TestServerRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	stack, err := NewStack(context.Background(), cfg, StackOptions{})
	require.NoError(t, err)
	defer stack.Close()

	srv, err := New(cfg, stack, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApprovalToolsPause(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.ApprovalTools = []string{"read_*"}

	stack, err := NewStack(context.Background(), cfg, StackOptions{})
	require.NoError(t, err)
	defer stack.Close()

	res, err := stack.Agent.Generate(context.Background(), agent.Request{ThreadID: "t1", Prompt: "read my notes"})
	require.NoError(t, err)
	assert.Equal(t, agent.StatusInterrupted, res.Status)
	require.NotNil(t, res.Interrupt)
	assert.Equal(t, "int_c1", res.Interrupt.ID)
	assert.Equal(t, checkpoint.InterruptApproval, res.Interrupt.Type)
}
