package jsvm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"
)

// Config configures a Runtime.
type Config struct {
	Pool    PoolConfig
	Timeout time.Duration
}

// DefaultConfig returns the default runtime configuration.
func DefaultConfig() Config {
	return Config{Pool: DefaultPoolConfig(), Timeout: 30 * time.Second}
}

// Runtime evaluates scripts with a timeout on pooled VMs.
type Runtime struct {
	pool    *VMPool
	timeout time.Duration
	closed  atomic.Bool
}

// New creates a runtime.
func New(cfg Config) *Runtime {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Runtime{pool: NewVMPool(cfg.Pool), timeout: cfg.Timeout}
}

// Run evaluates script and returns its exported completion value. Calls to
// console.log are forwarded to the process logger.
func (r *Runtime) Run(ctx context.Context, script, name string) (any, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	vm, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer r.pool.Release(vm)

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	stop := context.AfterFunc(execCtx, func() {
		vm.Interrupt(execCtx.Err())
	})
	defer stop()

	if err := installConsole(vm, name); err != nil {
		return nil, err
	}

	val, err := vm.RunString(script)
	if err != nil {
		return nil, wrapError(err, name)
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}

// Close shuts down the runtime.
func (r *Runtime) Close() error {
	r.closed.Store(true)
	r.pool.Close()
	return nil
}

func installConsole(vm *goja.Runtime, script string) error {
	console := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			parts = append(parts, a.String())
		}
		log.Debug().Str("script", script).Msg(strings.Join(parts, " "))
		return goja.Undefined()
	}
	if err := console.Set("log", logFn); err != nil {
		return err
	}
	return vm.Set("console", console)
}

func wrapError(err error, name string) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok && errors.Is(cause, context.DeadlineExceeded) {
			return &ExecutionError{Script: name, Cause: ErrTimeout}
		}
		return &ExecutionError{Script: name, Cause: fmt.Errorf("interrupted: %v", interrupted.Value())}
	}
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return &ScriptSyntaxError{Script: name, Message: syntax.Error()}
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		if v := exception.Value(); v != nil && strings.HasPrefix(v.String(), "SyntaxError") {
			return &ScriptSyntaxError{Script: name, Message: v.String()}
		}
		return &ExecutionError{Script: name, Cause: errors.New(exception.String())}
	}
	return &ExecutionError{Script: name, Cause: err}
}
