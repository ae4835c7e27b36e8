package runner

import "cairn/internal/interrupt"

// StopCondition is evaluated after every step; returning true ends the run.
type StopCondition func(steps []Step) bool

// StepCountIs stops once n steps have run.
func StepCountIs(n int) StopCondition {
	return func(steps []Step) bool {
		return n > 0 && len(steps) >= n
	}
}

// InterruptCaptured stops once the turn's capture slot holds a signal.
func InterruptCaptured(c *interrupt.Capture) StopCondition {
	return func([]Step) bool {
		return c.Captured()
	}
}

func shouldStop(conds []StopCondition, steps []Step) bool {
	for _, cond := range conds {
		if cond != nil && cond(steps) {
			return true
		}
	}
	return false
}
