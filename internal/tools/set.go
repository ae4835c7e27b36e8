package tools

import (
	"encoding/json"

	"cairn/internal/provider"
)

// Set is an ordered collection of tools keyed by name. A Set is built once
// per turn and treated as immutable afterwards; transformations return new
// sets.
type Set struct {
	order  []string
	byName map[string]*Tool
}

// NewSet builds a set, rejecting duplicate names.
func NewSet(tools ...*Tool) (*Set, error) {
	s := &Set{byName: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		if err := s.Add(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add appends a tool. It fails on nil, unnamed or duplicate tools.
func (s *Set) Add(t *Tool) error {
	if t == nil {
		return NewInvalidArgsError("set", "tool cannot be nil", nil)
	}
	if t.Name == "" {
		return NewInvalidArgsError("set", "tool name cannot be empty", nil)
	}
	if _, exists := s.byName[t.Name]; exists {
		return NewToolAlreadyExistsError(t.Name)
	}
	s.order = append(s.order, t.Name)
	s.byName[t.Name] = t
	return nil
}

// Put adds t, replacing a same-named tool in place. It reports whether a
// tool was replaced.
func (s *Set) Put(t *Tool) bool {
	if _, exists := s.byName[t.Name]; exists {
		s.byName[t.Name] = t
		return true
	}
	s.order = append(s.order, t.Name)
	s.byName[t.Name] = t
	return false
}

// Get retrieves a tool by name.
func (s *Set) Get(name string) (*Tool, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.byName[name]
	return t, ok
}

// List returns tools in insertion order.
func (s *Set) List() []*Tool {
	if s == nil {
		return nil
	}
	out := make([]*Tool, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}

// Names returns tool names in insertion order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Len returns the number of tools.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Map returns a new set with fn applied to every tool.
func (s *Set) Map(fn func(*Tool) *Tool) *Set {
	out := &Set{byName: make(map[string]*Tool, s.Len())}
	for _, t := range s.List() {
		mapped := fn(t)
		out.order = append(out.order, mapped.Name)
		out.byName[mapped.Name] = mapped
	}
	return out
}

// Filter returns a new set holding the tools for which keep returns true.
func (s *Set) Filter(keep func(*Tool) bool) *Set {
	out := &Set{byName: make(map[string]*Tool)}
	for _, t := range s.List() {
		if keep(t) {
			out.order = append(out.order, t.Name)
			out.byName[t.Name] = t
		}
	}
	return out
}

// Definitions converts the set to the definitions sent to the model.
func (s *Set) Definitions() ([]provider.Tool, error) {
	result := make([]provider.Tool, 0, s.Len())
	for _, t := range s.List() {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return nil, NewInvalidArgsError(t.Name, "failed to marshal parameters", err)
		}
		result = append(result, provider.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  paramsJSON,
		})
	}
	return result, nil
}
