package agent

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"cairn/internal/checkpoint"
	"cairn/internal/compaction"
	"cairn/internal/hooks"
	"cairn/internal/permission"
	"cairn/internal/plugin"
	"cairn/internal/provider"
	"cairn/internal/tasks"
	"cairn/internal/tools"
)

// Defaults applied by New.
const (
	DefaultMaxSteps   = 25
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond
	MaxRetryDelay     = 30 * time.Second
)

// Options configures an Agent.
type Options struct {
	// Pool resolves model names to providers. Provider is a shorthand that
	// serves every model from one provider.
	Pool     *provider.Pool
	Provider provider.Provider

	Model         string
	FallbackModel string
	SystemPrompt  string
	Temperature   float64
	MaxTokens     int

	// MaxSteps bounds the model calls of one turn.
	MaxSteps int
	// MaxRetries bounds recovery attempts after failed model calls.
	MaxRetries int
	// RetryDelay is the base delay of same-model retries. It doubles per
	// attempt up to MaxRetryDelay.
	RetryDelay time.Duration

	// Store persists threads. Without it threads live for one call and
	// approval requests fail instead of pausing.
	Store checkpoint.Store

	// Tools are runtime tools. They replace core tools of the same name.
	Tools            []*tools.Tool
	DisableCoreTools bool
	ToolFilter       permission.Filter
	Plugins          []*plugin.Plugin
	// EngineVersion is matched against plugin requirements.
	EngineVersion string

	PermissionMode permission.Mode
	CanUseTool     permission.CanUseToolFunc

	// MiddlewareHooks and Hooks are merged with plugin hooks in the order
	// middleware, plugins, Hooks.
	MiddlewareHooks []*hooks.Handler
	Hooks           []*hooks.Handler
	HookTimeout     time.Duration

	Compaction compaction.Config

	// Tasks runs background work. A manager is created when nil.
	Tasks *tasks.Manager
	// WaitForBackgroundTasks makes every generation drain finished
	// background tasks into follow-up turns before returning.
	WaitForBackgroundTasks bool

	Tracer trace.Tracer
	// MaxToolResultBytes caps tool output placed in the transcript.
	MaxToolResultBytes int
}

func (o Options) withDefaults() Options {
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.PermissionMode == "" {
		o.PermissionMode = permission.ModeDefault
	}
	return o
}
