package server

import (
	"fmt"

	"cairn/internal/config"
	"cairn/internal/hooks"
)

// ConfigHooks turns the hooks section of the configuration into handlers
// backed by JavaScript files.
func ConfigHooks(entries []config.HookConfig, rt hooks.ScriptRunner) ([]*hooks.Handler, error) {
	out := make([]*hooks.Handler, 0, len(entries))
	for i, e := range entries {
		event := hooks.Event(e.Event)
		if !hooks.IsValidEvent(event) {
			return nil, fmt.Errorf("hooks[%d]: unknown event %q", i, e.Event)
		}
		fn, err := hooks.ScriptHandler(rt, e.Path)
		if err != nil {
			return nil, fmt.Errorf("hooks[%d]: %w", i, err)
		}
		out = append(out, &hooks.Handler{
			ID:          fmt.Sprintf("config-%d", i),
			Event:       event,
			Matcher:     e.Matcher,
			Source:      "config",
			Timeout:     e.Timeout,
			Description: e.Path,
			Handler:     fn,
		})
	}
	return out, nil
}
