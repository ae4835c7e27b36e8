// Package agent is the generation orchestrator: it drives model turns over
// a thread's checkpoint, pauses on interrupts, resumes them, recovers from
// model failures and feeds background task results back as follow-ups.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"cairn/internal/checkpoint"
	"cairn/internal/compaction"
	"cairn/internal/hooks"
	"cairn/internal/interrupt"
	"cairn/internal/metrics"
	"cairn/internal/permission"
	"cairn/internal/pipeline"
	"cairn/internal/plugin"
	"cairn/internal/provider"
	"cairn/internal/runner"
	"cairn/internal/tasks"
	"cairn/internal/tools"
	"cairn/internal/tools/core"
	"cairn/internal/tracing"
)

// Agent orchestrates generation for any number of threads. Calls for the
// same thread are serialized.
type Agent struct {
	opts Options

	pool        *provider.Pool
	runner      *runner.Runner
	store       *checkpoint.Cache
	gate        *permission.Gate
	hooks       *hooks.Manager
	compactor   *compaction.Compactor
	tasks       *tasks.Manager
	ownTasks    bool
	coordinator *tasks.Coordinator
	tools       *tools.Set
	tracer      trace.Tracer
	locks       *threadLocks
}

// New builds an agent. The hook registry and tool set are fixed here.
func New(opts Options) (*Agent, error) {
	opts = opts.withDefaults()

	pool := opts.Pool
	if pool == nil {
		if opts.Provider == nil {
			return nil, errors.New("agent: a provider or provider pool is required")
		}
		pool = provider.StaticPool(opts.Provider)
	}
	if opts.Model == "" {
		return nil, ErrNoModel
	}

	bundle, err := plugin.Collect(opts.EngineVersion, opts.Plugins...)
	if err != nil {
		return nil, err
	}

	registry, err := hooks.Build(hooks.Sources{
		Middleware: opts.MiddlewareHooks,
		Plugins:    bundle.Hooks,
		Config:     opts.Hooks,
	})
	if err != nil {
		return nil, err
	}
	hookOpts := []hooks.ExecutorOption{hooks.WithFaultHandler(func(h *hooks.Handler, event hooks.Event, err error) {
		metrics.HookFaultsTotal.WithLabelValues(string(event)).Inc()
	})}
	if opts.HookTimeout > 0 {
		hookOpts = append(hookOpts, hooks.WithTimeout(opts.HookTimeout))
	}

	set, err := assembleTools(opts, bundle.Tools)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		opts:   opts,
		pool:   pool,
		gate:   permission.NewGate(opts.PermissionMode, opts.CanUseTool),
		hooks:  hooks.NewManager(registry, hookOpts...),
		tools:  set,
		tracer: opts.Tracer,
		locks:  newThreadLocks(),
		tasks:  opts.Tasks,
	}
	if a.tracer == nil {
		a.tracer = tracing.Tracer()
	}
	runnerOpts := []runner.Option{runner.WithTracer(a.tracer)}
	if opts.MaxToolResultBytes > 0 {
		runnerOpts = append(runnerOpts, runner.WithMaxToolResultBytes(opts.MaxToolResultBytes))
	}
	a.runner = runner.New(pool, runnerOpts...)
	if opts.Store != nil {
		a.store = checkpoint.NewCache(opts.Store)
	}
	if a.tasks == nil {
		a.tasks = tasks.NewManager()
		a.ownTasks = true
	}
	a.coordinator = tasks.NewCoordinator(a.tasks)

	summaryModel := opts.Compaction.Model
	if summaryModel == "" {
		summaryModel = opts.Model
	}
	summarizer, err := pool.Get(summaryModel)
	if err != nil {
		log.Warn().Err(err).Str("model", summaryModel).Msg("no summary provider, compaction will truncate")
		summarizer = nil
	}
	compactCfg := opts.Compaction
	compactCfg.Model = summaryModel
	a.compactor = compaction.New(compactCfg, summarizer)

	log.Debug().Str("model", opts.Model).Str("fallback_model", opts.FallbackModel).
		Strs("tools", set.Names()).Int("hooks", registry.Count()).
		Str("permission_mode", string(opts.PermissionMode)).Msg("agent created")
	return a, nil
}

// assembleTools merges core, runtime and plugin tools and applies the
// allow and deny lists.
func assembleTools(opts Options, pluginTools []*tools.Tool) (*tools.Set, error) {
	set, err := tools.NewSet()
	if err != nil {
		return nil, err
	}
	if !opts.DisableCoreTools {
		for _, t := range core.Tools() {
			if err := set.Add(t); err != nil {
				return nil, err
			}
		}
	}
	for _, t := range opts.Tools {
		rt := *t
		if rt.Source == "" {
			rt.Source = "runtime"
		}
		set.Put(&rt)
	}
	for _, t := range pluginTools {
		if err := set.Add(t); err != nil {
			return nil, err
		}
	}
	return set.Filter(func(t *tools.Tool) bool {
		return opts.ToolFilter.Permits(t.Name)
	}), nil
}

// PermissionMode returns the current permission mode.
func (a *Agent) PermissionMode() permission.Mode {
	return a.gate.Mode()
}

// SetPermissionMode changes the permission mode. It applies to the next
// tool invocation, including those of turns already running.
func (a *Agent) SetPermissionMode(mode permission.Mode) {
	a.gate.SetMode(mode)
}

// Tools returns the tools exposed to the model, before pipeline wrapping.
func (a *Agent) Tools() []*tools.Tool {
	return a.tools.List()
}

// Tasks returns the background task manager.
func (a *Agent) Tasks() *tasks.Manager {
	return a.tasks
}

// Store returns the checkpoint store, or nil without persistence.
func (a *Agent) Store() checkpoint.Store {
	if a.store == nil {
		return nil
	}
	return a.store
}

// Thread loads the checkpoint of a thread.
func (a *Agent) Thread(ctx context.Context, threadID string) (*checkpoint.Checkpoint, error) {
	if a.store == nil {
		return nil, ErrNoCheckpointStore
	}
	cp, err := a.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, ErrCheckpointNotFound
	}
	return cp, nil
}

// DeleteThread removes a thread.
func (a *Agent) DeleteThread(ctx context.Context, threadID string) error {
	if a.store == nil {
		return ErrNoCheckpointStore
	}
	release := a.locks.lock(threadID)
	defer release()
	return a.store.Delete(ctx, threadID)
}

// Threads lists persisted thread ids.
func (a *Agent) Threads(ctx context.Context) ([]string, error) {
	if a.store == nil {
		return nil, ErrNoCheckpointStore
	}
	return a.store.List(ctx)
}

// Close stops background tasks the agent created itself.
func (a *Agent) Close() {
	if a.ownTasks {
		a.tasks.Close()
	}
}

// thread is the working state of one call on one thread.
type thread struct {
	id       string
	cp       *checkpoint.Checkpoint
	persist  bool
	model    string
	system   string
	maxSteps int
	schema   map[string]any
	emit     func(Event)
}

func (t *thread) send(ev Event) {
	if t.emit != nil {
		t.emit(ev)
	}
}

// open loads (or forks, or creates) the thread a request addresses.
func (a *Agent) open(ctx context.Context, req Request) (*thread, error) {
	t := &thread{
		id:      req.ThreadID,
		persist: a.store != nil,
	}
	settings := &checkpoint.Settings{
		Model:        req.Model,
		System:       req.System,
		MaxSteps:     req.MaxSteps,
		OutputSchema: req.OutputSchema,
	}
	a.configure(t, settings)
	if t.id == "" && (t.persist || req.ForkFrom != "") {
		t.id = uuid.NewString()
	}

	switch {
	case req.ForkFrom != "":
		if !t.persist {
			return nil, ErrNoCheckpointStore
		}
		cp, err := checkpoint.Fork(ctx, a.store, req.ForkFrom, t.id)
		if err != nil {
			if errors.Is(err, checkpoint.ErrNotFound) {
				return nil, errors.Join(ErrCheckpointNotFound, err)
			}
			return nil, err
		}
		log.Info().Str("thread_id", t.id).Str("forked_from", req.ForkFrom).Msg("thread forked")
		t.cp = cp
	case t.persist:
		cp, err := a.store.Load(ctx, t.id)
		if err != nil {
			return nil, err
		}
		t.cp = cp
	}
	if t.cp == nil {
		t.cp = checkpoint.New(t.id)
	}
	t.cp.Settings = nil
	if !settings.IsZero() {
		t.cp.Settings = settings.Clone()
	}
	return t, nil
}

// configure applies the request settings of t over the agent defaults.
func (a *Agent) configure(t *thread, s *checkpoint.Settings) {
	t.model = a.opts.Model
	t.system = a.opts.SystemPrompt
	t.maxSteps = a.opts.MaxSteps
	t.schema = nil
	if s == nil {
		return
	}
	if s.Model != "" {
		t.model = s.Model
	}
	if s.System != "" {
		t.system = s.System
	}
	if s.MaxSteps > 0 {
		t.maxSteps = s.MaxSteps
	}
	t.schema = s.OutputSchema
}

// save persists the thread, refusing to lower its step.
func (a *Agent) save(ctx context.Context, t *thread) error {
	if !t.persist {
		return nil
	}
	prev, err := a.store.Load(ctx, t.id)
	if err != nil {
		return err
	}
	if prev != nil && t.cp.Step < prev.Step {
		return newError(CodeAgent, "save rejected", ErrStepRegression)
	}
	t.cp.ThreadID = t.id
	t.cp.UpdatedAt = time.Now().UTC()
	return a.store.Save(ctx, t.cp)
}

// pipelineFor wraps the tool set for one turn of t.
func (a *Agent) pipelineFor(t *thread, capture *interrupt.Capture, book *interrupt.Book) *tools.Set {
	return pipeline.Build(pipeline.Config{
		Capture:       capture,
		Book:          book,
		Hooks:         a.hooks,
		Tasks:         a.tasks,
		Gate:          a.gate,
		Checkpointing: t.persist,
	})(a.tools)
}
