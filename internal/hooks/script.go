package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ScriptRunner evaluates JavaScript source and returns the exported value.
type ScriptRunner interface {
	Run(ctx context.Context, script, name string) (any, error)
}

// scriptResult is the JSON shape a script handler returns.
type scriptResult struct {
	Stop          bool           `json:"stop"`
	Decision      Decision       `json:"decision"`
	Reason        string         `json:"reason"`
	UpdatedInput  map[string]any `json:"updatedInput"`
	UpdatedOutput any            `json:"updatedOutput"`
	CachedResult  any            `json:"cachedResult"`
	Retry         bool           `json:"retry"`
	RetryDelayMs  int64          `json:"retryDelayMs"`
	Fallback      *bool          `json:"fallback"`
}

// ScriptHandler loads a script file defining `function handler(ctx)` and
// returns a HandlerFunc evaluating it for every event. The function receives
// the hook context as a plain object and may return a directive object.
func ScriptHandler(rt ScriptRunner, path string) (HandlerFunc, error) {
	if rt == nil {
		return nil, ErrScriptRuntime
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hook script: %w", err)
	}
	name := filepath.Base(path)

	return func(ctx context.Context, hookCtx *Context) (*Result, error) {
		input, err := json.Marshal(hookCtx)
		if err != nil {
			return nil, fmt.Errorf("encode hook context: %w", err)
		}
		wrapped := fmt.Sprintf(`(function() {
%s
if (typeof handler !== 'function') { return null; }
var out = handler(%s);
return out ? JSON.stringify(out) : null;
})()`, src, input)

		value, err := rt.Run(ctx, wrapped, name)
		if err != nil {
			return nil, err
		}
		return parseScriptResult(value)
	}, nil
}

func parseScriptResult(value any) (*Result, error) {
	s, ok := value.(string)
	if !ok || s == "" {
		return nil, nil
	}
	var sr scriptResult
	if err := json.Unmarshal([]byte(s), &sr); err != nil {
		return nil, fmt.Errorf("decode hook script result: %w", err)
	}
	return &Result{
		Stop:          sr.Stop,
		Decision:      sr.Decision,
		Reason:        sr.Reason,
		UpdatedInput:  sr.UpdatedInput,
		UpdatedOutput: sr.UpdatedOutput,
		CachedResult:  sr.CachedResult,
		Retry:         sr.Retry,
		RetryDelay:    time.Duration(sr.RetryDelayMs) * time.Millisecond,
		Fallback:      sr.Fallback,
	}, nil
}
