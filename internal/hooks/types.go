// Package hooks provides the lifecycle hook bus for generations and tool calls.
// Hooks observe events and may steer the outcome through the directives on
// Result.
package hooks

import (
	"context"
	"time"
)

// Event names a lifecycle point.
type Event string

// Lifecycle events.
const (
	// Generation lifecycle
	PreGenerate       Event = "PreGenerate"
	PostGenerate      Event = "PostGenerate"
	GenerationFailure Event = "GenerationFailure"

	// Tool lifecycle
	PreToolUse         Event = "PreToolUse"
	PostToolUse        Event = "PostToolUse"
	PostToolUseFailure Event = "PostToolUseFailure"

	// Compaction
	PreCompact  Event = "PreCompact"
	PostCompact Event = "PostCompact"

	// Interrupts
	InterruptRequested Event = "InterruptRequested"
)

// AllEvents returns every supported event.
func AllEvents() []Event {
	return []Event{
		PreGenerate,
		PostGenerate,
		GenerationFailure,
		PreToolUse,
		PostToolUse,
		PostToolUseFailure,
		PreCompact,
		PostCompact,
		InterruptRequested,
	}
}

// IsValidEvent checks if e is a supported event.
func IsValidEvent(e Event) bool {
	for _, ev := range AllEvents() {
		if ev == e {
			return true
		}
	}
	return false
}

// IsToolEvent reports whether e carries a tool name that matchers apply to.
func IsToolEvent(e Event) bool {
	switch e {
	case PreToolUse, PostToolUse, PostToolUseFailure, InterruptRequested:
		return true
	}
	return false
}

// DefaultTimeout bounds a single handler invocation.
const DefaultTimeout = 60 * time.Second

// HandlerFunc is the signature of hook callbacks. A nil Result means no opinion.
type HandlerFunc func(ctx context.Context, hookCtx *Context) (*Result, error)

// Handler is one registration on the bus.
type Handler struct {
	ID          string        `json:"id"`
	Event       Event         `json:"event"`
	Matcher     string        `json:"matcher,omitempty"` // regexp over tool names, tool events only
	Source      string        `json:"source"`            // "middleware" | "plugin:<name>" | "config"
	Timeout     time.Duration `json:"timeout,omitempty"`
	Description string        `json:"description,omitempty"`
	Handler     HandlerFunc   `json:"-"`
}

// Context is the input handed to hook callbacks. Only the sub-context
// matching the event is populated.
type Context struct {
	Event     Event     `json:"event"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Generation *GenerationContext `json:"generation,omitempty"`
	Tool       *ToolContext       `json:"tool,omitempty"`
	Failure    *FailureContext    `json:"failure,omitempty"`
	Compaction *CompactionContext `json:"compaction,omitempty"`
	Interrupt  *InterruptContext  `json:"interrupt,omitempty"`
}

// GenerationContext describes a generation turn.
type GenerationContext struct {
	Model        string `json:"model"`
	Prompt       string `json:"prompt,omitempty"`
	Text         string `json:"text,omitempty"`
	Steps        int    `json:"steps,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	TotalTokens  int    `json:"total_tokens,omitempty"`
}

// ToolContext describes a tool invocation.
type ToolContext struct {
	CallID   string         `json:"call_id"`
	Name     string         `json:"name"`
	Args     map[string]any `json:"args"`
	Output   any            `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
}

// FailureContext describes a failed model call.
type FailureContext struct {
	Model         string `json:"model"`
	FallbackModel string `json:"fallback_model,omitempty"`
	Attempt       int    `json:"attempt"`
	MaxRetries    int    `json:"max_retries"`
	Class         string `json:"class"`
	Message       string `json:"message"`
}

// CompactionContext describes a transcript compaction.
type CompactionContext struct {
	Reason         string `json:"reason"`
	MessagesBefore int    `json:"messages_before"`
	MessagesAfter  int    `json:"messages_after,omitempty"`
	TokensBefore   int    `json:"tokens_before"`
	TokensAfter    int    `json:"tokens_after,omitempty"`
}

// InterruptContext describes a pause request.
type InterruptContext struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
}

// NewContext creates a context for event.
func NewContext(event Event, threadID string) *Context {
	return &Context{
		Event:     event,
		ThreadID:  threadID,
		Timestamp: time.Now(),
	}
}

// ToolName returns the tool name carried by the context, if any.
func (c *Context) ToolName() string {
	switch {
	case c.Tool != nil:
		return c.Tool.Name
	case c.Interrupt != nil:
		return c.Interrupt.ToolName
	}
	return ""
}

// Decision is a permission directive returned by PreToolUse hooks.
type Decision string

const (
	Allow Decision = "allow"
	Ask   Decision = "ask"
	Deny  Decision = "deny"
)

func (d Decision) rank() int {
	switch d {
	case Deny:
		return 3
	case Ask:
		return 2
	case Allow:
		return 1
	}
	return 0
}

// Result carries the directives of one handler. Zero fields mean no opinion.
type Result struct {
	// Stop skips the remaining handlers for this event.
	Stop bool `json:"stop,omitempty"`

	Decision Decision `json:"decision,omitempty"`
	Reason   string   `json:"reason,omitempty"`

	UpdatedInput  map[string]any `json:"updated_input,omitempty"`
	UpdatedOutput any            `json:"updated_output,omitempty"`
	CachedResult  any            `json:"cached_result,omitempty"`

	Retry      bool          `json:"retry,omitempty"`
	RetryDelay time.Duration `json:"retry_delay,omitempty"`
	Fallback   *bool         `json:"fallback,omitempty"`
}

// DenyResult denies a tool call.
func DenyResult(reason string) *Result {
	return &Result{Decision: Deny, Reason: reason}
}

// RetryResult requests another attempt after delay.
func RetryResult(delay time.Duration) *Result {
	return &Result{Retry: true, RetryDelay: delay}
}

// FallbackResult grants or denies switching to the fallback model.
func FallbackResult(allow bool) *Result {
	return &Result{Fallback: &allow}
}

// Outcome is the aggregate of all handler results for one event.
type Outcome struct {
	Decision Decision
	Reason   string

	UpdatedInput  map[string]any
	UpdatedOutput any
	HasOutput     bool
	CachedResult  any
	HasCached     bool

	Retry      bool
	RetryDelay time.Duration
	Fallback   *bool

	// Faults lists handler errors, panics and timeouts. They never abort the event.
	Faults []error
}

// Denied reports whether the aggregate decision is deny.
func (o *Outcome) Denied() bool {
	return o != nil && o.Decision == Deny
}

// merge folds r into o: deny beats ask beats allow, the last rewrite wins,
// the first cached result wins, retry delays take the maximum and an
// explicit fallback denial is final.
func (o *Outcome) merge(r *Result) {
	if r.Decision.rank() > o.Decision.rank() {
		o.Decision = r.Decision
		o.Reason = r.Reason
	}
	if r.UpdatedInput != nil {
		o.UpdatedInput = r.UpdatedInput
	}
	if r.UpdatedOutput != nil {
		o.UpdatedOutput = r.UpdatedOutput
		o.HasOutput = true
	}
	if r.CachedResult != nil && !o.HasCached {
		o.CachedResult = r.CachedResult
		o.HasCached = true
	}
	if r.Retry {
		o.Retry = true
		if r.RetryDelay > o.RetryDelay {
			o.RetryDelay = r.RetryDelay
		}
	}
	if r.Fallback != nil && (o.Fallback == nil || *o.Fallback) {
		v := *r.Fallback
		o.Fallback = &v
	}
}
