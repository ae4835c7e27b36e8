package tasks

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// TurnFunc runs one follow-up generation turn for prompt and reports
// whether the turn ended in an interrupt.
type TurnFunc func(ctx context.Context, prompt string) (interrupted bool, err error)

// Coordinator turns finished background tasks into follow-up turns.
type Coordinator struct {
	tasks *Manager
}

// NewCoordinator creates a coordinator over m.
func NewCoordinator(m *Manager) *Coordinator {
	return &Coordinator{tasks: m}
}

// Drain takes the finished tasks of threadID one at a time and runs a turn
// for each until the thread has nothing running or queued, or a turn is
// interrupted. Killed tasks and
// tasks consumed by another drainer are skipped. It returns the number of
// turns run.
func (c *Coordinator) Drain(ctx context.Context, threadID string, turn TurnFunc) (int, error) {
	if c == nil || c.tasks == nil {
		return 0, nil
	}
	turns := 0
	for {
		next, ok, err := c.tasks.Next(ctx, threadID)
		if err != nil || !ok {
			return turns, err
		}
		task, ok := c.tasks.Remove(next.ID)
		if !ok {
			continue
		}
		if task.Status == StatusKilled {
			log.Debug().Str("task_id", task.ID).Msg("skipping killed background task")
			continue
		}

		interrupted, err := turn(ctx, FormatPrompt(task))
		turns++
		if err != nil {
			return turns, fmt.Errorf("follow-up turn for task %s: %w", task.ID, err)
		}
		if interrupted {
			log.Info().Str("task_id", task.ID).Msg("follow-up turn interrupted, stopping drain")
			return turns, nil
		}
	}
}

// FormatPrompt renders the follow-up prompt for a finished task.
func FormatPrompt(t Task) string {
	label := t.Name
	if label == "" {
		label = string(t.Kind)
	}
	if t.Status == StatusFailed {
		msg := fmt.Sprintf("Background task %q (%s) failed.\n\nError:\n%s", label, t.ID, t.Error)
		if t.Result != "" {
			msg += "\n\nOutput:\n" + t.Result
		}
		return msg
	}
	return fmt.Sprintf("Background task %q (%s) completed.\n\nResult:\n%s", label, t.ID, t.Result)
}
