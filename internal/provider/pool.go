package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a Provider serving the given model.
type Factory func(model string) (Provider, error)

// Pool resolves model names to Providers. Providers are created lazily on
// first access and cached for reuse, so the primary and fallback models of
// an agent can live behind different backends.
type Pool struct {
	factory Factory
	cache   map[string]Provider
	mu      sync.RWMutex
}

// NewPool creates a pool backed by factory.
func NewPool(factory Factory) *Pool {
	return &Pool{
		factory: factory,
		cache:   make(map[string]Provider),
	}
}

// StaticPool returns a pool that serves every model from p.
func StaticPool(p Provider) *Pool {
	return NewPool(func(string) (Provider, error) { return p, nil })
}

// Register pins a provider for a model, bypassing the factory.
func (p *Pool) Register(model string, prov Provider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache[model] = prov
}

// Get retrieves or creates a Provider for the given model.
func (p *Pool) Get(model string) (Provider, error) {
	if model == "" {
		return nil, ErrEmptyModel
	}

	p.mu.RLock()
	if prov, ok := p.cache[model]; ok {
		p.mu.RUnlock()
		return prov, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if prov, ok := p.cache[model]; ok {
		return prov, nil
	}
	if p.factory == nil {
		return nil, fmt.Errorf("no provider registered for model %q", model)
	}
	prov, err := p.factory(model)
	if err != nil {
		return nil, fmt.Errorf("create provider for model %q: %w", model, err)
	}
	p.cache[model] = prov
	return prov, nil
}

// Models returns the sorted names of all resolved models.
func (p *Pool) Models() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	models := make([]string, 0, len(p.cache))
	for model := range p.cache {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}
