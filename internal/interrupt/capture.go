package interrupt

import (
	"fmt"
	"sync"
)

// Capture is the per-turn slot holding at most one pending Signal. A new
// Capture is created for every model invocation.
type Capture struct {
	mu  sync.Mutex
	sig *Signal
}

// NewCapture creates an empty slot.
func NewCapture() *Capture {
	return &Capture{}
}

// Store records sig. If a signal is already held the slot is unchanged and
// an error wrapping both ErrAlreadyPending and the rejected signal is
// returned.
func (c *Capture) Store(sig *Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sig != nil {
		return fmt.Errorf("%w: holding %s, rejected %w", ErrAlreadyPending, c.sig.Interrupt.ID, sig)
	}
	c.sig = sig
	return nil
}

// Pending returns the captured signal, or nil.
func (c *Capture) Pending() *Signal {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sig
}

// Captured reports whether a signal is held. It is the stop predicate the
// model loop polls after every step.
func (c *Capture) Captured() bool {
	return c.Pending() != nil
}
