package server

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"cairn/internal/config"
	"cairn/internal/gateway"
	"cairn/internal/gateway/middleware"
	"cairn/internal/janitor"
	"cairn/internal/permission"
	"cairn/pkg/logger"
)

// Options configures a Server.
type Options struct {
	Version string
	// Watch reloads the configuration file on change.
	Watch bool
}

// Server runs the HTTP gateway, the checkpoint janitor and the config
// watcher around one engine stack.
type Server struct {
	stack   *Stack
	gateway *gateway.Server
	janitor *janitor.Janitor
	opts    Options
	log     zerolog.Logger

	mu  sync.Mutex
	cfg *config.Config
}

// New creates a server for stack.
func New(cfg *config.Config, stack *Stack, opts Options) (*Server, error) {
	s := &Server{
		stack: stack,
		opts:  opts,
		cfg:   cfg,
		log:   logger.Component("server"),
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	s.gateway = gateway.NewServer(gateway.Config{
		Listen: cfg.Server.Listen,
		RateLimit: middleware.RateLimiterConfig{
			Enabled:           cfg.Server.RateLimit.Enabled,
			RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
			Burst:             cfg.Server.RateLimit.Burst,
		},
		MetricsPath: metricsPath,
		Version:     opts.Version,
		Health:      stack.Health,
	}, stack.Agent)

	if pruner, ok := stack.Pruner(); ok {
		j, err := janitor.New(pruner, janitor.Config{
			Schedule:       cfg.Checkpoint.PruneSchedule,
			Retention:      cfg.Checkpoint.Retention,
			IncludePending: cfg.Checkpoint.PrunePending,
		})
		switch {
		case errors.Is(err, janitor.ErrDisabled):
			s.log.Info().Msg("checkpoint retention not set, pruning disabled")
		case err != nil:
			return nil, err
		default:
			s.janitor = j
		}
	} else {
		s.log.Info().Str("driver", cfg.Checkpoint.Driver).Msg("store cannot prune, relying on backend expiry")
	}
	return s, nil
}

// Gateway returns the HTTP server.
func (s *Server) Gateway() *gateway.Server {
	return s.gateway
}

// Run serves until ctx is cancelled or a component fails.
func (s *Server) Run(ctx context.Context) error {
	if _, err := s.stack.Pool.Get(s.cfg.Agent.Model); err != nil {
		s.log.Warn().Err(err).Str("model", s.cfg.Agent.Model).Msg("default model unavailable")
	}

	if s.opts.Watch && config.Path() != "" {
		w, err := config.NewWatcher(s.apply)
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.gateway.Run(gctx)
	})
	if s.janitor != nil {
		g.Go(func() error {
			s.janitor.Start()
			<-gctx.Done()
			s.janitor.Stop()
			return nil
		})
	}
	return g.Wait()
}

// apply takes the settings of a reloaded configuration that can change
// without a restart.
func (s *Server) apply(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.Log.Level != s.cfg.Log.Level {
		logger.SetLevel(cfg.Log.Level)
		s.log.Info().Str("level", cfg.Log.Level).Msg("log level changed")
	}
	if cfg.Agent.PermissionMode != s.cfg.Agent.PermissionMode {
		mode, err := permission.ParseMode(cfg.Agent.PermissionMode)
		if err != nil {
			s.log.Warn().Err(err).Msg("ignoring permission mode from reloaded config")
		} else {
			s.stack.Agent.SetPermissionMode(mode)
			s.log.Info().Str("mode", string(mode)).Msg("permission mode changed")
		}
	}
	s.cfg = cfg
}
