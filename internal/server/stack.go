// Package server assembles the engine from configuration and runs it as a
// long-lived service.
package server

import (
	"context"
	"errors"
	"fmt"

	"cairn/internal/agent"
	"cairn/internal/checkpoint"
	"cairn/internal/config"
	"cairn/internal/hooks"
	"cairn/internal/hooks/builtin"
	"cairn/internal/jsvm"
	"cairn/internal/permission"
	"cairn/internal/plugin"
	"cairn/internal/provider"
	"cairn/internal/tracing"
	"cairn/pkg/logger"
)

// StackOptions carries what configuration cannot express.
type StackOptions struct {
	// CanUseTool decides approval requests in-process. Nil pauses them.
	CanUseTool permission.CanUseToolFunc
	Plugins    []*plugin.Plugin
	// Version is matched against plugin requirements.
	Version string
	// Store overrides the configured checkpoint store.
	Store checkpoint.Store
}

// Stack is an assembled engine and the resources it owns.
type Stack struct {
	Agent  *agent.Agent
	Router *provider.Router
	Pool   *provider.Pool
	Store  checkpoint.Store

	scripts *jsvm.Runtime
	closers []func() error
}

// NewStack builds the agent described by cfg.
func NewStack(ctx context.Context, cfg *config.Config, opts StackOptions) (_ *Stack, err error) {
	s := &Stack{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	s.Router, err = NewRouter(cfg.Provider)
	if err != nil {
		return nil, err
	}
	s.Pool = s.Router.Pool()

	s.Store = opts.Store
	if s.Store == nil {
		store, closer, err := OpenStore(ctx, cfg.Checkpoint)
		if err != nil {
			return nil, err
		}
		s.Store = store
		s.closers = append(s.closers, closer)
	}

	s.scripts = jsvm.New(jsvm.Config{
		Pool: jsvm.PoolConfig{
			MaxSize:        cfg.JSVM.PoolSize,
			IdleTimeout:    cfg.JSVM.IdleTimeout,
			AcquireTimeout: cfg.JSVM.AcquireTimeout,
		},
		Timeout: cfg.JSVM.Timeout,
	})
	s.closers = append(s.closers, s.scripts.Close)

	hookList, err := ConfigHooks(cfg.Hooks, s.scripts)
	if err != nil {
		return nil, err
	}
	var middleware []*hooks.Handler
	if cfg.Agent.LogHooks {
		middleware = builtin.NewLoggingHook(builtin.LoggingConfig{}).Handlers()
	}

	mode, err := permission.ParseMode(cfg.Agent.PermissionMode)
	if err != nil {
		return nil, err
	}

	s.Agent, err = agent.New(agent.Options{
		Pool:                   s.Pool,
		Model:                  cfg.Agent.Model,
		FallbackModel:          cfg.Agent.FallbackModel,
		SystemPrompt:           cfg.Agent.SystemPrompt,
		Temperature:            cfg.Agent.Temperature,
		MaxTokens:              cfg.Agent.MaxTokens,
		MaxSteps:               cfg.Agent.MaxSteps,
		MaxRetries:             cfg.Agent.MaxRetries,
		RetryDelay:             cfg.Agent.RetryDelay,
		Store:                  s.Store,
		DisableCoreTools:       cfg.Agent.DisableCoreTools,
		ToolFilter:             cfg.Agent.ToolFilter(),
		Plugins:                opts.Plugins,
		EngineVersion:          opts.Version,
		PermissionMode:         mode,
		CanUseTool:             approvalGate(cfg.Agent.ApprovalTools, opts.CanUseTool),
		MiddlewareHooks:        middleware,
		Hooks:                  hookList,
		HookTimeout:            cfg.Agent.HookTimeout,
		Compaction:             cfg.Compaction,
		WaitForBackgroundTasks: cfg.Agent.WaitForBackgroundTasks,
		Tracer:                 tracing.Tracer(),
		MaxToolResultBytes:     cfg.Agent.MaxToolResultBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}

	logger.Debug().
		Str("model", cfg.Agent.Model).
		Str("store", cfg.Checkpoint.Driver).
		Strs("backends", s.Router.Backends()).
		Int("hooks", len(hookList)).
		Msg("engine assembled")
	return s, nil
}

// approvalGate asks for approval of tools matching patterns unless next
// already decided.
func approvalGate(patterns []string, next permission.CanUseToolFunc) permission.CanUseToolFunc {
	if len(patterns) == 0 {
		return next
	}
	return func(ctx context.Context, req permission.Request) (permission.Verdict, error) {
		if next != nil {
			v, err := next(ctx, req)
			if err != nil || v.Decision != "" {
				return v, err
			}
		}
		if permission.MatchTool(req.ToolName, patterns) {
			return permission.Verdict{Decision: permission.Ask, Reason: "tool requires approval"}, nil
		}
		return permission.Verdict{}, nil
	}
}

// Pruner returns the store as a pruner when the backend supports it.
func (s *Stack) Pruner() (checkpoint.Pruner, bool) {
	if c, ok := s.Store.(*checkpoint.Cache); ok {
		if _, ok := c.Backend().(checkpoint.Pruner); !ok {
			return nil, false
		}
	}
	p, ok := s.Store.(checkpoint.Pruner)
	return p, ok
}

// Health pings every model backend resolved so far.
func (s *Stack) Health(ctx context.Context) map[string]error {
	return provider.Ping(ctx, s.Pool)
}

// Close stops the agent and releases owned resources in reverse order.
func (s *Stack) Close() error {
	if s.Agent != nil {
		s.Agent.Close()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
