package hooks

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/google/uuid"
)

// Handler sources, in merge precedence order.
const (
	SourceMiddleware = "middleware"
	SourcePlugin     = "plugin"
	SourceConfig     = "config"
)

type entry struct {
	handler *Handler
	matcher *regexp.Regexp
}

// Registry holds handlers per event in registration order. Once sealed it
// rejects further registrations and is safe for concurrent reads.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Event][]entry
	sealed   bool
}

// NewRegistry creates an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Event][]entry)}
}

// Sources groups handlers by origin.
type Sources struct {
	Middleware []*Handler
	Plugins    []*Handler
	Config     []*Handler
}

// Build merges sources in fixed precedence (middleware, plugins, config)
// into a sealed registry.
func Build(src Sources) (*Registry, error) {
	r := NewRegistry()
	for _, group := range [][]*Handler{src.Middleware, src.Plugins, src.Config} {
		for _, h := range group {
			if err := r.Register(h); err != nil {
				return nil, err
			}
		}
	}
	r.Seal()
	return r, nil
}

// Register appends a handler to its event's list. A missing id is generated.
func (r *Registry) Register(h *Handler) error {
	if h == nil || h.Handler == nil {
		return fmt.Errorf("%w: handler function is required", ErrEventInvalid)
	}
	if !IsValidEvent(h.Event) {
		return fmt.Errorf("%w: %s", ErrEventInvalid, h.Event)
	}
	var re *regexp.Regexp
	if h.Matcher != "" && h.Matcher != "*" {
		var err error
		re, err = regexp.Compile(h.Matcher)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrMatcherInvalid, h.Matcher, err)
		}
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrRegistrySealed
	}
	for _, e := range r.handlers[h.Event] {
		if e.handler.ID == h.ID {
			return fmt.Errorf("%w: %s", ErrHandlerExists, h.ID)
		}
	}
	r.handlers[h.Event] = append(r.handlers[h.Event], entry{handler: h, matcher: re})
	return nil
}

// Seal freezes the registry.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether the registry is frozen.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Handlers returns the handlers for event that apply to toolName, in order.
// Matchers are only consulted for tool events.
func (r *Registry) Handlers(event Event, toolName string) []*Handler {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Handler
	for _, e := range r.handlers[event] {
		if e.matcher != nil && IsToolEvent(event) && !e.matcher.MatchString(toolName) {
			continue
		}
		out = append(out, e.handler)
	}
	return out
}

// Count returns the total number of registered handlers.
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, hs := range r.handlers {
		total += len(hs)
	}
	return total
}
