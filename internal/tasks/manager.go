// Package tasks runs background work (shell commands and delegated
// functions) and feeds finished tasks back into the conversation.
package tasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"cairn/internal/tools"
)

const (
	// DefaultMaxOutputBytes caps the captured output of a shell task.
	DefaultMaxOutputBytes = 32 * 1024
	// DefaultMaxRunning bounds concurrently running tasks.
	DefaultMaxRunning = 16
)

// Option configures a Manager.
type Option func(*Manager)

// WithMaxOutputBytes caps captured shell output.
func WithMaxOutputBytes(n int) Option {
	return func(m *Manager) { m.maxOutput = n }
}

// WithMaxRunning bounds the number of running tasks.
func WithMaxRunning(n int) Option {
	return func(m *Manager) { m.maxRunning = n }
}

// WithShellDir sets the working directory of shell tasks.
func WithShellDir(dir string) Option {
	return func(m *Manager) { m.dir = dir }
}

type entry struct {
	task   Task
	cancel context.CancelFunc
}

// Manager owns background tasks. Finished tasks wait in a queue in the
// order they finished until they are removed.
type Manager struct {
	maxOutput  int
	maxRunning int
	dir        string

	mu       sync.Mutex
	tasks    map[string]*entry
	finished []string
	wake     chan struct{}
	closed   bool
	wg       sync.WaitGroup
}

var _ tools.ThreadTasks = (*Manager)(nil)

// NewManager creates a task manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		maxOutput:  DefaultMaxOutputBytes,
		maxRunning: DefaultMaxRunning,
		tasks:      make(map[string]*entry),
		wake:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartShell runs command through the platform shell. The task belongs to
// no thread; use ForThread to attribute it.
func (m *Manager) StartShell(ctx context.Context, name, command string) (string, error) {
	return m.startShell(ctx, "", name, command)
}

// StartFunc runs fn as a delegated task that belongs to no thread.
func (m *Manager) StartFunc(ctx context.Context, name string, fn func(ctx context.Context) (string, error)) (string, error) {
	return m.startFunc(ctx, "", name, fn)
}

// ForThread returns a view of m whose tasks are owned by threadID. Only a
// drain for the same thread picks them up.
func (m *Manager) ForThread(threadID string) tools.TaskContext {
	return threadView{m: m, threadID: threadID}
}

type threadView struct {
	m        *Manager
	threadID string
}

func (v threadView) StartShell(ctx context.Context, name, command string) (string, error) {
	return v.m.startShell(ctx, v.threadID, name, command)
}

func (v threadView) StartFunc(ctx context.Context, name string, fn func(ctx context.Context) (string, error)) (string, error) {
	return v.m.startFunc(ctx, v.threadID, name, fn)
}

func (m *Manager) startShell(ctx context.Context, threadID, name, command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", ErrEmptyCommand
	}
	if name == "" {
		name = command
	}
	return m.start(ctx, threadID, KindShell, name, map[string]string{"command": command}, func(ctx context.Context) (string, error) {
		return m.runShell(ctx, command)
	})
}

func (m *Manager) startFunc(ctx context.Context, threadID, name string, fn func(ctx context.Context) (string, error)) (string, error) {
	if fn == nil {
		return "", ErrNilTaskFunc
	}
	return m.start(ctx, threadID, KindDelegate, name, nil, fn)
}

func (m *Manager) start(ctx context.Context, threadID string, kind Kind, name string, meta map[string]string, run func(context.Context) (string, error)) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrManagerClosed
	}
	if m.maxRunning > 0 && m.runningLocked() >= m.maxRunning {
		return "", ErrTooManyRunning
	}

	// The task outlives the tool call that started it.
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e := &entry{
		task: Task{
			ID:        uuid.NewString(),
			Kind:      kind,
			Name:      name,
			ThreadID:  threadID,
			Status:    StatusRunning,
			Metadata:  meta,
			CreatedAt: time.Now(),
		},
		cancel: cancel,
	}
	m.tasks[e.task.ID] = e
	m.wg.Add(1)
	go m.run(taskCtx, e, run)

	log.Debug().Str("task_id", e.task.ID).Str("kind", string(kind)).Str("name", name).Str("thread_id", threadID).Msg("background task started")
	return e.task.ID, nil
}

func (m *Manager) run(ctx context.Context, e *entry, run func(context.Context) (string, error)) {
	defer m.wg.Done()
	defer e.cancel()

	var (
		out string
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		out, err = run(ctx)
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	if e.task.Status.Terminal() {
		return
	}
	e.task.Result = out
	if err != nil {
		e.task.Status = StatusFailed
		e.task.Error = err.Error()
	} else {
		e.task.Status = StatusCompleted
	}
	m.finishLocked(e)
	log.Debug().Str("task_id", e.task.ID).Str("status", string(e.task.Status)).Msg("background task finished")
}

func (m *Manager) runShell(ctx context.Context, command string) (string, error) {
	bin, args := shellCommand(command)
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = m.dir
	cmd.WaitDelay = 2 * time.Second
	configureProcess(cmd)

	buf := &cappedBuffer{limit: m.maxOutput}
	cmd.Stdout = buf
	cmd.Stderr = buf
	err := cmd.Run()
	out := buf.String()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, fmt.Errorf("exit status %d", exitErr.ExitCode())
		}
		return out, err
	}
	return out, nil
}

// finishLocked queues a task that just became terminal and wakes waiters.
func (m *Manager) finishLocked(e *entry) {
	e.task.FinishedAt = time.Now()
	m.finished = append(m.finished, e.task.ID)
	close(m.wake)
	m.wake = make(chan struct{})
}

func (m *Manager) runningLocked() int {
	n := 0
	for _, e := range m.tasks {
		if !e.task.Status.Terminal() {
			n++
		}
	}
	return n
}

func (m *Manager) runningForLocked(threadID string) int {
	n := 0
	for _, e := range m.tasks {
		if e.task.ThreadID == threadID && !e.task.Status.Terminal() {
			n++
		}
	}
	return n
}

// Kill stops a running task. Killed tasks are terminal.
func (m *Manager) Kill(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if e.task.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrTaskFinished, id)
	}
	e.task.Status = StatusKilled
	e.cancel()
	m.finishLocked(e)
	log.Info().Str("task_id", id).Msg("background task killed")
	return nil
}

// Get returns a snapshot of a task.
func (m *Manager) Get(id string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tasks[id]
	if !ok {
		return Task{}, false
	}
	return e.task.clone(), true
}

// List returns snapshots of all tasks, oldest first.
func (m *Manager) List() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, 0, len(m.tasks))
	for _, e := range m.tasks {
		out = append(out, e.task.clone())
	}
	sortByCreated(out)
	return out
}

// Active returns the number of tasks that have not finished.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runningLocked()
}

// Remove deletes a terminal task and returns it. Only the first caller for
// a given id gets ok == true.
func (m *Manager) Remove(id string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tasks[id]
	if !ok || !e.task.Status.Terminal() {
		return Task{}, false
	}
	delete(m.tasks, id)
	for i, fid := range m.finished {
		if fid == id {
			m.finished = append(m.finished[:i], m.finished[i+1:]...)
			break
		}
	}
	return e.task, true
}

// Next blocks until a finished task owned by threadID is queued and
// returns it without removing it. It returns ok == false when the thread
// has no task running or queued. Tasks of other threads are left alone.
func (m *Manager) Next(ctx context.Context, threadID string) (Task, bool, error) {
	for {
		m.mu.Lock()
		for _, id := range m.finished {
			if e := m.tasks[id]; e.task.ThreadID == threadID {
				t := e.task.clone()
				m.mu.Unlock()
				return t, true, nil
			}
		}
		running := m.runningForLocked(threadID)
		wake := m.wake
		m.mu.Unlock()

		if running == 0 {
			return Task{}, false, nil
		}
		select {
		case <-ctx.Done():
			return Task{}, false, ctx.Err()
		case <-wake:
		}
	}
}

// Close kills running tasks and waits for their goroutines to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	for _, e := range m.tasks {
		if !e.task.Status.Terminal() {
			e.task.Status = StatusKilled
			e.cancel()
			m.finishLocked(e)
		}
	}
	m.mu.Unlock()
	m.wg.Wait()
}

type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 {
		room := b.limit - b.buf.Len()
		if room <= 0 {
			b.truncated = true
			return len(p), nil
		}
		if len(p) > room {
			b.buf.Write(p[:room])
			b.truncated = true
			return len(p), nil
		}
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
