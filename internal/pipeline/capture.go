package pipeline

import (
	"context"

	"github.com/rs/zerolog/log"

	"cairn/internal/interrupt"
	"cairn/internal/tools"
)

// Capture installs the call's wait primitive and turns a raised pause
// signal into a stored interrupt plus a placeholder result.
func Capture(capture *interrupt.Capture, book *interrupt.Book) Layer {
	return func(set *tools.Set) *tools.Set {
		if capture == nil {
			return set
		}
		return wrap(set, func(_ *tools.Tool, next tools.ExecuteFunc) tools.ExecuteFunc {
			return func(ctx context.Context, call *tools.Call) (any, error) {
				c := call.Clone()
				if c.Wait == nil {
					c.Wait = interrupt.Waiter(book, targetOf(c))
				}

				out, err := next(ctx, c)
				sig, ok := interrupt.AsSignal(err)
				if !ok {
					return out, err
				}
				if serr := capture.Store(sig); serr != nil {
					log.Error().
						Err(serr).
						Str("thread_id", c.ThreadID).
						Str("tool", c.Name).
						Str("interrupt_id", sig.Interrupt.ID).
						Msg("second interrupt raised while one is pending")
					return nil, serr
				}
				log.Info().
					Str("thread_id", c.ThreadID).
					Str("tool", c.Name).
					Str("interrupt_id", sig.Interrupt.ID).
					Str("type", string(sig.Interrupt.Type)).
					Msg("interrupt captured")
				return Placeholder, nil
			}
		})
	}
}
