package agent

import (
	"errors"
	"fmt"

	"cairn/internal/provider"
)

// Sentinel errors for the agent package.
var (
	// ErrCheckpointNotFound is returned when resuming a thread without a checkpoint.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrNoPendingInterrupt is returned when resuming a thread that is not paused.
	ErrNoPendingInterrupt = errors.New("no pending interrupt")

	// ErrInterruptMismatch is returned when the resumed id is not the pending one.
	ErrInterruptMismatch = errors.New("interrupt id does not match the pending interrupt")

	// ErrInterruptPending is returned when generating on a paused thread.
	ErrInterruptPending = errors.New("thread has a pending interrupt, resume it first")

	// ErrNoCheckpointStore is returned when an operation needs persistence.
	ErrNoCheckpointStore = errors.New("no checkpoint store is configured")

	// ErrStepRegression is returned when a save would lower a thread's step.
	ErrStepRegression = errors.New("checkpoint step would decrease")

	// ErrEmptyInput is returned when a request carries neither prompt nor history.
	ErrEmptyInput = errors.New("prompt or history is required")

	// ErrNoModel is returned when neither the request nor the options name a model.
	ErrNoModel = errors.New("no model configured")
)

// Error codes carried by *Error.
const (
	CodeRateLimit = "RATE_LIMIT_ERROR"
	CodeTimeout   = "TIMEOUT_ERROR"
	CodeModel     = "MODEL_ERROR"
	CodeUnknown   = "UNKNOWN_ERROR"
	CodeAgent     = "AGENT_ERROR"
)

// Error is the normalized error returned by generation and resume.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// normalize maps a model or engine failure to an *Error. Errors that are
// already normalized pass through.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	code := CodeUnknown
	switch provider.Classify(err) {
	case provider.ClassRateLimit:
		code = CodeRateLimit
	case provider.ClassTimeout:
		code = CodeTimeout
	case provider.ClassModelUnavailable, provider.ClassContextLength:
		code = CodeModel
	}
	return newError(code, err.Error(), err)
}
