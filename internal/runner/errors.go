package runner

import "errors"

// Runner errors.
var (
	// ErrNoProvider indicates no provider serves the requested model.
	ErrNoProvider = errors.New("no provider configured")

	// ErrNoMessages indicates the message list is empty.
	ErrNoMessages = errors.New("no messages to send")
)
