package checkpoint

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Delete and Fork when a thread has no checkpoint.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrNilCheckpoint is returned when saving a nil checkpoint.
	ErrNilCheckpoint = errors.New("nil checkpoint")

	// ErrEmptyThreadID is returned when a checkpoint has no thread id.
	ErrEmptyThreadID = errors.New("empty thread id")

	// ErrInvalidCheckpoint is returned when a checkpoint violates an invariant.
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")

	// ErrThreadExists is returned when forking onto a thread that already has state.
	ErrThreadExists = errors.New("thread already exists")

	// ErrUnsupported is returned when a store lacks an optional capability.
	ErrUnsupported = errors.New("operation not supported by store")
)

// Operation names carried by Error.
const (
	OpLoad   = "load"
	OpSave   = "save"
	OpDelete = "delete"
	OpList   = "list"
	OpFork   = "fork"
)

// Error wraps a storage failure with the thread and operation it affected.
type Error struct {
	Op       string
	ThreadID string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ThreadID == "" {
		return fmt.Sprintf("checkpoint %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("checkpoint %s %q: %v", e.Op, e.ThreadID, e.Err)
}

// Unwrap returns the underlying storage error.
func (e *Error) Unwrap() error {
	return e.Err
}

// wrap attaches op and thread context. Errors that are already *Error pass
// through so a cache over a store does not double wrap.
func wrap(op, threadID string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Op: op, ThreadID: threadID, Err: err}
}
