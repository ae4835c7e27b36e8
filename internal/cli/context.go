package cli

import (
	"context"
	"errors"
	"time"

	"cairn/internal/config"
	"cairn/internal/server"
	"cairn/internal/tracing"
	"cairn/pkg/logger"
)

// CLIContext carries the loaded configuration and lazily built engine of
// one command invocation.
type CLIContext struct {
	Config     *config.Config
	ConfigPath string

	stack    *server.Stack
	shutdown tracing.ShutdownFunc
}

// NewCLIContext creates a CLI context.
func NewCLIContext(cfg *config.Config, configPath string, shutdown tracing.ShutdownFunc) *CLIContext {
	return &CLIContext{Config: cfg, ConfigPath: configPath, shutdown: shutdown}
}

// Stack builds the engine on first use.
func (c *CLIContext) Stack(ctx context.Context) (*server.Stack, error) {
	if c.stack != nil {
		return c.stack, nil
	}
	s, err := server.NewStack(ctx, c.Config, server.StackOptions{Version: Version})
	if err != nil {
		return nil, err
	}
	c.stack = s
	return s, nil
}

// Close releases the engine, flushes spans and closes the log file.
func (c *CLIContext) Close() error {
	var errs []error
	if c.stack != nil {
		errs = append(errs, c.stack.Close())
		c.stack = nil
	}
	if c.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, c.shutdown(ctx))
		cancel()
		c.shutdown = nil
	}
	errs = append(errs, logger.Close())
	return errors.Join(errs...)
}
