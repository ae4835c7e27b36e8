// Package jsvm runs hook scripts on pooled goja runtimes.
package jsvm

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout indicates script execution exceeded the timeout limit.
	ErrTimeout = errors.New("jsvm: execution timeout")

	// ErrPoolExhausted indicates no VM became available in time.
	ErrPoolExhausted = errors.New("jsvm: vm pool exhausted")

	// ErrClosed is returned after the runtime was closed.
	ErrClosed = errors.New("jsvm: runtime closed")
)

// ScriptSyntaxError indicates a JavaScript syntax error.
type ScriptSyntaxError struct {
	Script  string
	Message string
}

func (e *ScriptSyntaxError) Error() string {
	return fmt.Sprintf("jsvm: syntax error in %s: %s", e.Script, e.Message)
}

// ExecutionError wraps a runtime failure of a script.
type ExecutionError struct {
	Script string
	Cause  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("jsvm: %s: %v", e.Script, e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}
