// Package gateway serves the agent over HTTP and websockets.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"cairn/internal/gateway/handlers"
	"cairn/internal/gateway/middleware"
	"cairn/internal/gateway/websocket"
	"cairn/internal/metrics"
	"cairn/pkg/logger"
)

// Engine is the agent surface the gateway exposes.
type Engine interface {
	handlers.Engine
	websocket.Streamer
}

// Config configures the gateway server.
type Config struct {
	Listen    string
	RateLimit middleware.RateLimiterConfig
	// MetricsPath mounts the Prometheus handler. Empty disables it.
	MetricsPath string
	Version     string
	// Health reports backend health on /healthz.
	Health handlers.CheckFunc
}

// Server represents the HTTP gateway server.
type Server struct {
	httpServer  *http.Server
	router      *mux.Router
	config      Config
	rateLimiter *middleware.RateLimiter
}

// NewServer creates a gateway server for engine.
func NewServer(cfg Config, engine Engine) *Server {
	router := mux.NewRouter()
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)

	// Recovery -> Logging -> RateLimit
	handler := middleware.Recovery(
		middleware.Logging(
			rateLimiter.RateLimit(router),
		),
	)

	s := &Server{
		httpServer: &http.Server{
			Addr:        cfg.Listen,
			Handler:     handler,
			ReadTimeout: 60 * time.Second,
			// Generations and streams are bounded by the request context.
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
		},
		router:      router,
		config:      cfg,
		rateLimiter: rateLimiter,
	}
	s.setupRoutes(engine)
	return s
}

func (s *Server) setupRoutes(engine Engine) {
	threads := handlers.NewThreads(engine)

	s.router.HandleFunc("/healthz", handlers.HealthHandler(s.config.Version, s.config.Health)).Methods(http.MethodGet)
	if s.config.MetricsPath != "" {
		s.router.Handle(s.config.MetricsPath, metrics.Handler()).Methods(http.MethodGet)
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/threads", threads.List).Methods(http.MethodGet)
	v1.HandleFunc("/threads", threads.Generate).Methods(http.MethodPost)
	v1.HandleFunc("/threads/{id}", threads.Get).Methods(http.MethodGet)
	v1.HandleFunc("/threads/{id}", threads.Delete).Methods(http.MethodDelete)
	v1.HandleFunc("/threads/{id}/generate", threads.Generate).Methods(http.MethodPost)
	v1.HandleFunc("/threads/{id}/resume", threads.Resume).Methods(http.MethodPost)
	v1.Handle("/threads/{id}/stream", websocket.NewHandler(engine)).Methods(http.MethodGet)
	v1.HandleFunc("/permission-mode", threads.GetMode).Methods(http.MethodGet)
	v1.HandleFunc("/permission-mode", threads.SetMode).Methods(http.MethodPut)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "no route for "+r.URL.Path)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.SendError(w, http.StatusMethodNotAllowed, handlers.ErrCodeInvalidRequest, r.Method+" not allowed")
	})
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Router returns the route table.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	handlers.InitStartTime()
	logger.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}
	if err := s.Shutdown(context.Background()); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info().Msg("Shutting down gateway server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
