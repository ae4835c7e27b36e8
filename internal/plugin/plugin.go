// Package plugin bundles tools and hook handlers contributed by a named,
// versioned extension.
package plugin

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog/log"

	"cairn/internal/hooks"
	"cairn/internal/tools"
)

var (
	// ErrInvalidPlugin is returned for malformed plugin definitions.
	ErrInvalidPlugin = errors.New("invalid plugin")
	// ErrIncompatible is returned when the engine version does not satisfy
	// a plugin's requirement.
	ErrIncompatible = errors.New("plugin incompatible with engine version")
	// ErrDuplicatePlugin is returned when two plugins share a name.
	ErrDuplicatePlugin = errors.New("duplicate plugin")
)

// Plugin is an extension contributing tools and hooks.
type Plugin struct {
	Name        string
	Version     string
	Description string
	// Requires is a semver constraint on the engine version, e.g. ">= 0.3, < 2".
	Requires string

	Tools []*tools.Tool
	Hooks []*hooks.Handler
}

// Validate checks the plugin definition.
func (p *Plugin) Validate() error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPlugin)
	}
	if p.Version != "" {
		if _, err := semver.NewVersion(p.Version); err != nil {
			return fmt.Errorf("%w: %s: version %q: %v", ErrInvalidPlugin, p.Name, p.Version, err)
		}
	}
	if p.Requires != "" {
		if _, err := semver.NewConstraint(p.Requires); err != nil {
			return fmt.Errorf("%w: %s: requires %q: %v", ErrInvalidPlugin, p.Name, p.Requires, err)
		}
	}
	for _, t := range p.Tools {
		if t == nil || t.Name == "" {
			return fmt.Errorf("%w: %s: tool without a name", ErrInvalidPlugin, p.Name)
		}
	}
	return nil
}

// Compatible reports whether engine satisfies the plugin's requirement.
// Development builds without a semver version accept every plugin.
func (p *Plugin) Compatible(engine string) error {
	if p.Requires == "" {
		return nil
	}
	v, err := semver.NewVersion(engine)
	if err != nil {
		log.Debug().Str("plugin", p.Name).Str("engine", engine).Msg("engine version is not semver, skipping compatibility check")
		return nil
	}
	c, err := semver.NewConstraint(p.Requires)
	if err != nil {
		return fmt.Errorf("%w: %s: requires %q: %v", ErrInvalidPlugin, p.Name, p.Requires, err)
	}
	if ok, errs := c.Validate(v); !ok {
		return fmt.Errorf("%w: %s requires %s, engine is %s: %v", ErrIncompatible, p.Name, p.Requires, engine, errors.Join(errs...))
	}
	return nil
}

// Bundle is the merged contribution of a plugin list.
type Bundle struct {
	Tools []*tools.Tool
	Hooks []*hooks.Handler
}

// Collect validates plugins against the engine version and merges their
// contributions in order. Tools are tagged with their plugin as source.
func Collect(engine string, plugins ...*Plugin) (*Bundle, error) {
	out := &Bundle{}
	seen := make(map[string]bool, len(plugins))
	for _, p := range plugins {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePlugin, p.Name)
		}
		seen[p.Name] = true
		if err := p.Compatible(engine); err != nil {
			return nil, err
		}

		for _, t := range p.Tools {
			tagged := *t
			tagged.Source = "plugin:" + p.Name
			out.Tools = append(out.Tools, &tagged)
		}
		for _, h := range p.Hooks {
			tagged := *h
			tagged.Source = hooks.SourcePlugin
			if tagged.ID != "" {
				tagged.ID = p.Name + ":" + tagged.ID
			}
			out.Hooks = append(out.Hooks, &tagged)
		}
		log.Debug().Str("plugin", p.Name).Str("version", p.Version).
			Int("tools", len(p.Tools)).Int("hooks", len(p.Hooks)).Msg("plugin loaded")
	}
	return out, nil
}
