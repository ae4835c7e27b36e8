package checkpoint

import (
	"context"
	"time"
)

// Fork copies the transcript, step and state of thread from into a new
// thread to. The pending interrupt and any in-flight wait responses stay
// with the source thread.
func Fork(ctx context.Context, store Store, from, to string) (*Checkpoint, error) {
	if to == "" {
		return nil, wrap(OpFork, from, ErrEmptyThreadID)
	}
	src, err := store.Load(ctx, from)
	if err != nil {
		return nil, wrap(OpFork, from, err)
	}
	if src == nil {
		return nil, wrap(OpFork, from, ErrNotFound)
	}
	existing, err := store.Load(ctx, to)
	if err != nil {
		return nil, wrap(OpFork, to, err)
	}
	if existing != nil {
		return nil, wrap(OpFork, to, ErrThreadExists)
	}

	forked := src.Clone()
	forked.ThreadID = to
	forked.PendingInterrupt = nil
	forked.State.Responses = nil
	forked.UpdatedAt = time.Now().UTC()
	if err := store.Save(ctx, forked); err != nil {
		return nil, wrap(OpFork, to, err)
	}
	return forked, nil
}
