package hooks

import "errors"

// Hook system errors.
var (
	// ErrHandlerExists is returned when registering a handler id twice for one event.
	ErrHandlerExists = errors.New("handler already registered")

	// ErrEventInvalid is returned when an unknown event is used.
	ErrEventInvalid = errors.New("invalid hook event")

	// ErrMatcherInvalid is returned when a tool-name matcher does not compile.
	ErrMatcherInvalid = errors.New("invalid hook matcher")

	// ErrRegistrySealed is returned when registering after the registry was sealed.
	ErrRegistrySealed = errors.New("hook registry is sealed")

	// ErrHandlerPanic is reported when a handler panics during execution.
	ErrHandlerPanic = errors.New("handler panic")

	// ErrHandlerTimeout is reported when a handler exceeds its timeout.
	ErrHandlerTimeout = errors.New("handler timeout")

	// ErrScriptRuntime is returned when a script handler has no runtime.
	ErrScriptRuntime = errors.New("script runtime not configured")
)
