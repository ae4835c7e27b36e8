package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Pinger is implemented by providers that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Router maps "<backend>:<model>" names to the backend factory registered
// under the prefix. Names without a prefix go to the default backend.
type Router struct {
	backends map[string]Factory
	fallback string
	mu       sync.RWMutex
}

// NewRouter creates an empty router. def names the backend used for
// unprefixed model names.
func NewRouter(def string) *Router {
	return &Router{backends: make(map[string]Factory), fallback: def}
}

// Handle registers factory for a backend name.
func (r *Router) Handle(backend string, factory Factory) error {
	if backend == "" || strings.Contains(backend, ":") {
		return fmt.Errorf("invalid backend name %q", backend)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[backend]; exists {
		return fmt.Errorf("backend %q already registered", backend)
	}
	r.backends[backend] = factory
	return nil
}

// Backends returns the sorted registered backend names.
func (r *Router) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Split separates a model name into backend and backend-local model.
func (r *Router) Split(model string) (backend, name string) {
	if i := strings.Index(model, ":"); i > 0 {
		r.mu.RLock()
		_, ok := r.backends[model[:i]]
		r.mu.RUnlock()
		if ok {
			return model[:i], model[i+1:]
		}
	}
	return r.fallback, model
}

// Factory returns a pool factory dispatching on the model prefix.
func (r *Router) Factory() Factory {
	return func(model string) (Provider, error) {
		backend, name := r.Split(model)
		r.mu.RLock()
		factory, ok := r.backends[backend]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("backend %q not registered", backend)
		}
		return factory(name)
	}
}

// Pool returns a pool resolving models through the router.
func (r *Router) Pool() *Pool {
	return NewPool(r.Factory())
}

// Ping checks every resolved provider in pool that supports it and returns
// the failures keyed by model.
func Ping(ctx context.Context, pool *Pool) map[string]error {
	failures := make(map[string]error)
	for _, model := range pool.Models() {
		prov, err := pool.Get(model)
		if err != nil {
			failures[model] = err
			continue
		}
		if p, ok := prov.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				failures[model] = err
			}
		}
	}
	return failures
}
