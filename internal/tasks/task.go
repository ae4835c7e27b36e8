package tasks

import (
	"slices"
	"time"
)

// Kind identifies what a background task runs.
type Kind string

const (
	KindShell    Kind = "shell"
	KindDelegate Kind = "delegate"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusKilled    Status = "killed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusKilled
}

// Task is a snapshot of a background task.
type Task struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	Name       string            `json:"name"`
	ThreadID   string            `json:"thread_id,omitempty"`
	Status     Status            `json:"status"`
	Result     string            `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	FinishedAt time.Time         `json:"finished_at,omitzero"`
}

func (t Task) clone() Task {
	if t.Metadata != nil {
		meta := make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			meta[k] = v
		}
		t.Metadata = meta
	}
	return t
}

func sortByCreated(ts []Task) {
	slices.SortStableFunc(ts, func(a, b Task) int { return a.CreatedAt.Compare(b.CreatedAt) })
}
