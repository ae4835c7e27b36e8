// Package core provides the built-in tools. File tools operate on the
// thread's checkpoint state, not on the host filesystem.
package core

import (
	"errors"

	"cairn/internal/checkpoint"
	"cairn/internal/tools"
)

// Source tags every core tool.
const Source = "core"

// ErrNoState is returned when a state tool runs without conversation state.
var ErrNoState = errors.New("no conversation state available")

// Tools returns every core tool in a stable order.
func Tools() []*tools.Tool {
	return []*tools.Tool{
		WriteTodos(),
		ReadFile(),
		WriteFile(),
		EditFile(),
		List(),
		RunBackground(),
		AskUser(),
	}
}

// Names returns the names of the core tools.
func Names() []string {
	ts := Tools()
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Name
	}
	return names
}

func state(call *tools.Call) (*checkpoint.State, error) {
	if call.State == nil {
		return nil, ErrNoState
	}
	return call.State, nil
}
