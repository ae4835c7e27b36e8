package tools

import (
	"errors"
	"fmt"
)

// Sentinel errors for the tools package.
var (
	// ErrToolNotFound is returned when the model calls a tool that is not in the set.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolAlreadyExists is returned when adding a duplicate name to a set.
	ErrToolAlreadyExists = errors.New("tool already exists")

	// ErrInvalidArgs is returned when tool arguments are invalid or malformed.
	ErrInvalidArgs = errors.New("invalid tool arguments")

	// ErrExecution matches every *ExecutionError.
	ErrExecution = errors.New("tool execution failed")

	// ErrPermissionDenied matches every *PermissionDeniedError.
	ErrPermissionDenied = errors.New("tool permission denied")
)

// ToolNotFoundError names the missing tool.
type ToolNotFoundError struct {
	Name string
}

// Error implements the error interface.
func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Name)
}

// Unwrap returns the underlying sentinel error.
func (e *ToolNotFoundError) Unwrap() error {
	return ErrToolNotFound
}

// ToolAlreadyExistsError names the duplicate tool.
type ToolAlreadyExistsError struct {
	Name string
}

// Error implements the error interface.
func (e *ToolAlreadyExistsError) Error() string {
	return fmt.Sprintf("tool already exists: %s", e.Name)
}

// Unwrap returns the underlying sentinel error.
func (e *ToolAlreadyExistsError) Unwrap() error {
	return ErrToolAlreadyExists
}

// InvalidArgsError provides detailed information about invalid arguments.
type InvalidArgsError struct {
	Tool    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *InvalidArgsError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid arguments for tool %s: %s: %v", e.Tool, e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid arguments for tool %s: %s", e.Tool, e.Message)
}

// Is allows errors.Is to match against ErrInvalidArgs.
func (e *InvalidArgsError) Is(target error) bool {
	return target == ErrInvalidArgs
}

// Unwrap returns the underlying cause.
func (e *InvalidArgsError) Unwrap() error {
	return e.Cause
}

// ExecutionError is raised by the permission layer when a call is denied
// or needs an approval that cannot be obtained.
type ExecutionError struct {
	Tool   string
	CallID string
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tool %s: %s: %v", e.Tool, e.Reason, e.Cause)
	}
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Reason)
}

// Is allows errors.Is to match against ErrExecution.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}

// Unwrap returns the underlying cause.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// PermissionDeniedError is raised when a pre-tool-use hook denies a call.
type PermissionDeniedError struct {
	Tool   string
	CallID string
	Reason string
}

// Error implements the error interface.
func (e *PermissionDeniedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("tool %s: permission denied by hook", e.Tool)
	}
	return fmt.Sprintf("tool %s: permission denied by hook: %s", e.Tool, e.Reason)
}

// Is allows errors.Is to match against ErrPermissionDenied.
func (e *PermissionDeniedError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// NewToolNotFoundError creates a ToolNotFoundError for the given tool name.
func NewToolNotFoundError(name string) error {
	return &ToolNotFoundError{Name: name}
}

// NewToolAlreadyExistsError creates a ToolAlreadyExistsError for the given tool name.
func NewToolAlreadyExistsError(name string) error {
	return &ToolAlreadyExistsError{Name: name}
}

// NewInvalidArgsError creates an InvalidArgsError with the given details.
func NewInvalidArgsError(tool, message string, cause error) error {
	return &InvalidArgsError{Tool: tool, Message: message, Cause: cause}
}
