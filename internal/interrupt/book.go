package interrupt

import (
	"context"
	"encoding/json"
	"sync"

	"cairn/internal/tools"
)

// Response is the caller's answer to an interrupt. Approval interrupts read
// the "approved" and optional "reason" keys; custom interrupts hand the
// whole payload to the waiting tool.
type Response map[string]any

// Approved reports whether the response grants an approval.
func (r Response) Approved() bool {
	v, _ := r["approved"].(bool)
	return v
}

// Reason returns the optional free-text reason.
func (r Response) Reason() string {
	v, _ := r["reason"].(string)
	return v
}

// Raw encodes the response.
func (r Response) Raw() json.RawMessage {
	data, err := json.Marshal(r)
	if err != nil || r == nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// DecodeResponse parses a recorded response.
func DecodeResponse(raw json.RawMessage) Response {
	r := Response{}
	_ = json.Unmarshal(raw, &r)
	return r
}

// Book holds the answers recorded for interrupts, keyed by interrupt id.
// The orchestrator seeds it from the checkpoint before re-executing a
// paused call and persists it back afterwards.
type Book struct {
	mu        sync.RWMutex
	responses map[string]json.RawMessage
}

// NewBook creates a book seeded with a copy of initial.
func NewBook(initial map[string]json.RawMessage) *Book {
	b := &Book{responses: make(map[string]json.RawMessage, len(initial))}
	for k, v := range initial {
		b.responses[k] = append(json.RawMessage(nil), v...)
	}
	return b
}

// Get returns the response recorded for id.
func (b *Book) Get(id string) (json.RawMessage, bool) {
	if b == nil {
		return nil, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.responses[id]
	return r, ok
}

// Put records a response for id, replacing any earlier one.
func (b *Book) Put(id string, response json.RawMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses[id] = append(json.RawMessage(nil), response...)
}

// Snapshot returns a copy suitable for persisting. It is nil when empty.
func (b *Book) Snapshot() map[string]json.RawMessage {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.responses) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(b.responses))
	for k, v := range b.responses {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Waiter builds the wait primitive for one execution of a tool call. The
// n-th wait of the execution replays the answer recorded for the n-th wait
// id, or raises a custom Signal when none is recorded yet.
func Waiter(book *Book, target Target) tools.WaitFunc {
	var (
		mu  sync.Mutex
		seq int
	)
	return func(ctx context.Context, request any) (json.RawMessage, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mu.Lock()
		n := seq
		seq++
		mu.Unlock()

		sig, err := Custom(target, n, request)
		if err != nil {
			return nil, err
		}
		if resp, ok := book.Get(sig.Interrupt.ID); ok {
			return resp, nil
		}
		return nil, sig
	}
}
