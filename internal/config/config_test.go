package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Agent.Model != "scripted:default" {
		t.Errorf("agent.model = %q, want scripted:default", cfg.Agent.Model)
	}
	if cfg.Agent.MaxSteps != 25 {
		t.Errorf("agent.max_steps = %d, want 25", cfg.Agent.MaxSteps)
	}
	if cfg.Agent.RetryDelay != 500*time.Millisecond {
		t.Errorf("agent.retry_delay = %v, want 500ms", cfg.Agent.RetryDelay)
	}
	if cfg.Agent.PermissionMode != "default" {
		t.Errorf("agent.permission_mode = %q, want default", cfg.Agent.PermissionMode)
	}
	if cfg.Checkpoint.Driver != DriverSQLite {
		t.Errorf("checkpoint.driver = %q, want sqlite", cfg.Checkpoint.Driver)
	}
	if cfg.Checkpoint.Retention != 30*24*time.Hour {
		t.Errorf("checkpoint.retention = %v, want 720h", cfg.Checkpoint.Retention)
	}
	if !cfg.Compaction.Enabled || cfg.Compaction.KeepRecentCount != 10 {
		t.Errorf("compaction = %+v, want enabled with keep_recent_count 10", cfg.Compaction)
	}
	if cfg.Provider.Ollama.Endpoint != "http://localhost:11434" {
		t.Errorf("provider.ollama.endpoint = %q", cfg.Provider.Ollama.Endpoint)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Errorf("log = %+v, want info/console", cfg.Log)
	}
	if cfg.Tracing.Enabled {
		t.Error("tracing.enabled = true, want false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_FromFile(t *testing.T) {
	Reset()
	defer Reset()

	path := writeConfig(t, `
agent:
  model: ollama:qwen2.5
  fallback_model: ollama:llama3.2
  retry_delay: 2s
  allowed_tools: [read_file, "mcp__*"]
  disallowed_tools: [run_background]
checkpoint:
  driver: redis
  addr: localhost:6379
  ttl: 24h
hooks:
  - event: PreToolUse
    matcher: "^deploy$"
    path: ./hooks/guard.js
    timeout: 5s
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Agent.Model != "ollama:qwen2.5" {
		t.Errorf("agent.model = %q", cfg.Agent.Model)
	}
	if cfg.Agent.RetryDelay != 2*time.Second {
		t.Errorf("agent.retry_delay = %v, want 2s", cfg.Agent.RetryDelay)
	}
	filter := cfg.Agent.ToolFilter()
	if len(filter.Allow) != 2 || filter.Deny[0] != "run_background" {
		t.Errorf("tool filter = %+v", filter)
	}
	if cfg.Checkpoint.Driver != DriverRedis || cfg.Checkpoint.TTL != 24*time.Hour {
		t.Errorf("checkpoint = %+v", cfg.Checkpoint)
	}
	if len(cfg.Hooks) != 1 {
		t.Fatalf("hooks = %d, want 1", len(cfg.Hooks))
	}
	if cfg.Hooks[0].Event != "PreToolUse" || cfg.Hooks[0].Timeout != 5*time.Second {
		t.Errorf("hooks[0] = %+v", cfg.Hooks[0])
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}
	// Unset keys keep their defaults.
	if cfg.Agent.MaxSteps != 25 {
		t.Errorf("agent.max_steps = %d, want default 25", cfg.Agent.MaxSteps)
	}
	if Path() != path {
		t.Errorf("Path() = %q, want %q", Path(), path)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	Reset()
	defer Reset()

	t.Setenv("CAIRN_AGENT_MAX_STEPS", "7")
	t.Setenv("CAIRN_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.MaxSteps != 7 {
		t.Errorf("agent.max_steps = %d, want 7", cfg.Agent.MaxSteps)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log.level = %q, want warn", cfg.Log.Level)
	}
}

func TestLoad_Priority(t *testing.T) {
	Reset()
	defer Reset()

	path := writeConfig(t, "server:\n  listen: 0.0.0.0:9000\n")
	t.Setenv("CAIRN_SERVER_LISTEN", "127.0.0.1:7777")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:7777" {
		t.Errorf("env should override file: server.listen = %q", cfg.Server.Listen)
	}
}

func TestSetAndSave(t *testing.T) {
	Reset()
	defer Reset()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if _, err := Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := Set("agent.permission_mode", "plan"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if GetString("agent.permission_mode") != "plan" {
		t.Errorf("agent.permission_mode = %q, want plan", GetString("agent.permission_mode"))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	Reset()
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if cfg.Agent.PermissionMode != "plan" {
		t.Errorf("persisted agent.permission_mode = %q, want plan", cfg.Agent.PermissionMode)
	}
	if cfg.Agent.RetryDelay != 500*time.Millisecond {
		t.Errorf("persisted agent.retry_delay = %v, want 500ms", cfg.Agent.RetryDelay)
	}
}

func TestGet_Functions(t *testing.T) {
	Reset()
	defer Reset()

	if _, err := Load(""); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if GetString("checkpoint.driver") != "sqlite" {
		t.Errorf("GetString failed")
	}
	if GetInt("agent.max_retries") != 3 {
		t.Errorf("GetInt failed")
	}
	if !GetBool("metrics.enabled") {
		t.Errorf("GetBool failed")
	}
	if Get("server.listen") == nil {
		t.Errorf("Get returned nil")
	}
}

func TestGetConfig(t *testing.T) {
	Reset()
	defer Reset()

	if GetConfig() != nil {
		t.Error("GetConfig should be nil before Load")
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if GetConfig() != cfg {
		t.Error("GetConfig should return the loaded config")
	}

	other := &Config{Version: "test"}
	SetTestConfig(other)
	if GetConfig() != other {
		t.Error("SetTestConfig not applied")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	Reset()
	defer Reset()

	path := writeConfig(t, "agent:\n  model: [unterminated\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_NonexistentFile(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if cfg.Agent.MaxSteps != 25 {
		t.Errorf("defaults not applied: max_steps = %d", cfg.Agent.MaxSteps)
	}
}

func TestSave_WithoutPath(t *testing.T) {
	Reset()
	defer Reset()

	if _, err := Load(""); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := Save(); err == nil {
		t.Error("Save without a path should fail")
	}
	// Set without a path only updates memory.
	if err := Set("agent.max_steps", 3); err != nil {
		t.Errorf("Set without path: %v", err)
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := &Config{Agent: AgentConfig{Model: "m"}, Checkpoint: CheckpointConfig{Driver: DriverMemory}}
	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(data), "driver: memory") {
		t.Errorf("saved config missing checkpoint driver:\n%s", data)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"missing model", Config{Checkpoint: CheckpointConfig{Driver: DriverMemory}}, "agent.model"},
		{"bad mode", Config{Agent: AgentConfig{Model: "m", PermissionMode: "yolo"}, Checkpoint: CheckpointConfig{Driver: DriverMemory}}, "permission_mode"},
		{"unknown driver", Config{Agent: AgentConfig{Model: "m"}, Checkpoint: CheckpointConfig{Driver: "etcd"}}, "unknown driver"},
		{"postgres dsn", Config{Agent: AgentConfig{Model: "m"}, Checkpoint: CheckpointConfig{Driver: DriverPostgres}}, "checkpoint.dsn"},
		{"redis addr", Config{Agent: AgentConfig{Model: "m"}, Checkpoint: CheckpointConfig{Driver: DriverRedis}}, "checkpoint.addr"},
		{"hook path", Config{Agent: AgentConfig{Model: "m"}, Checkpoint: CheckpointConfig{Driver: DriverMemory}, Hooks: []HookConfig{{Event: "PreToolUse"}}}, "hooks[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestWatcherReloads(t *testing.T) {
	Reset()
	defer Reset()

	path := writeConfig(t, "agent:\n  permission_mode: default\n")
	if _, err := Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	changes := make(chan *Config, 4)
	w, err := NewWatcher(func(cfg *Config) { changes <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("agent:\n  permission_mode: plan\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-changes:
		if cfg.Agent.PermissionMode != "plan" {
			t.Errorf("reloaded permission_mode = %q, want plan", cfg.Agent.PermissionMode)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload within 5s")
	}
}

func TestNewWatcher_RequiresPath(t *testing.T) {
	Reset()
	defer Reset()

	if _, err := NewWatcher(nil); err == nil {
		t.Error("NewWatcher without a loaded file should fail")
	}
}
