// Package builtin provides middleware hook handlers installed ahead of
// plugin and configured hooks.
package builtin

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cairn/internal/hooks"
)

// LoggingHook logs every lifecycle event it sees.
type LoggingHook struct {
	logger zerolog.Logger
	level  zerolog.Level
}

// LoggingConfig configures the logging hook.
type LoggingConfig struct {
	// Level is the log level to use (default: debug)
	Level zerolog.Level
	// Logger is an optional custom logger (default: global logger)
	Logger *zerolog.Logger
}

// NewLoggingHook creates a logging hook.
func NewLoggingHook(cfg LoggingConfig) *LoggingHook {
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	level := cfg.Level
	if level == zerolog.NoLevel || level == 0 {
		level = zerolog.DebugLevel
	}
	return &LoggingHook{logger: logger, level: level}
}

// Handlers returns one middleware handler per event.
func (h *LoggingHook) Handlers() []*hooks.Handler {
	events := hooks.AllEvents()
	out := make([]*hooks.Handler, 0, len(events))
	for _, ev := range events {
		out = append(out, &hooks.Handler{
			ID:          fmt.Sprintf("builtin:logging:%s", ev),
			Event:       ev,
			Source:      hooks.SourceMiddleware,
			Description: "Logs lifecycle events",
			Handler:     h.handle,
		})
	}
	return out
}

func (h *LoggingHook) handle(_ context.Context, hc *hooks.Context) (*hooks.Result, error) {
	event := h.logger.WithLevel(h.level).
		Str("event", string(hc.Event)).
		Str("thread_id", hc.ThreadID)

	switch {
	case hc.Tool != nil:
		event = event.
			Str("tool", hc.Tool.Name).
			Str("call_id", hc.Tool.CallID).
			Int("arg_count", len(hc.Tool.Args))
		if hc.Event != hooks.PreToolUse {
			event = event.Dur("duration", hc.Tool.Duration).Bool("has_error", hc.Tool.Error != "")
		}
	case hc.Generation != nil:
		event = event.
			Str("model", hc.Generation.Model).
			Int("steps", hc.Generation.Steps).
			Int("text_length", len(hc.Generation.Text))
	case hc.Failure != nil:
		event = event.
			Str("model", hc.Failure.Model).
			Int("attempt", hc.Failure.Attempt).
			Str("class", hc.Failure.Class)
	case hc.Compaction != nil:
		event = event.
			Str("reason", hc.Compaction.Reason).
			Int("messages_before", hc.Compaction.MessagesBefore).
			Int("messages_after", hc.Compaction.MessagesAfter)
	case hc.Interrupt != nil:
		event = event.
			Str("interrupt_id", hc.Interrupt.ID).
			Str("type", hc.Interrupt.Type).
			Str("tool", hc.Interrupt.ToolName)
	}

	event.Msg("hook event")
	return nil, nil
}
