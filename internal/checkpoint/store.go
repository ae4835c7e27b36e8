package checkpoint

import "context"

// Store persists one checkpoint per thread id. Last write wins; no
// transactional guarantees are assumed beyond that.
type Store interface {
	// Load returns the checkpoint for threadID, or nil with a nil error when
	// the thread has never been saved.
	Load(ctx context.Context, threadID string) (*Checkpoint, error)

	// Save replaces the checkpoint for cp.ThreadID.
	Save(ctx context.Context, cp *Checkpoint) error

	// Delete removes the checkpoint for threadID. Returns ErrNotFound
	// (wrapped) when nothing was stored.
	Delete(ctx context.Context, threadID string) error

	// List returns the ids of all stored threads, sorted.
	List(ctx context.Context) ([]string, error)
}

// Summary is a lightweight view used by housekeeping.
type Summary struct {
	ThreadID     string
	Step         int
	Messages     int
	HasInterrupt bool
}

// Summarize builds a Summary of cp.
func Summarize(cp *Checkpoint) Summary {
	return Summary{
		ThreadID:     cp.ThreadID,
		Step:         cp.Step,
		Messages:     len(cp.Messages),
		HasInterrupt: cp.PendingInterrupt != nil,
	}
}
