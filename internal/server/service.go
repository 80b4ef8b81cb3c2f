// Package server provides the local hook server: it receives hook events over
// HTTP and fans them out to the registered reporters.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/flow/internal/hookconfig"
	"github.com/thebtf/flow/internal/reporter"
)

// Service configuration constants
const (
	// DefaultHTTPTimeout bounds every non-streaming request.
	DefaultHTTPTimeout = 30 * time.Second

	// ShutdownTimeout bounds graceful shutdown in Run.
	ShutdownTimeout = 5 * time.Second
)

// Options wires a Service. Nil components are created with defaults.
type Options struct {
	Version string
	// Port is the TCP port on 127.0.0.1; 0 picks a free port.
	Port int

	Registry    *reporter.Registry
	Buffer      *reporter.RingBuffer
	Broadcaster *reporter.Broadcaster
	Stream      *reporter.Stream

	// Manager backs /api/hooks/list. When nil the endpoint answers 503.
	Manager *hookconfig.Manager
	// Scope is listed when the request names none.
	Scope hookconfig.Scope
}

// Service is the application context of the local server. Everything a
// handler touches hangs off it; nothing is process-global.
type Service struct {
	version string
	port    int

	registry    *reporter.Registry
	buffer      *reporter.RingBuffer
	broadcaster *reporter.Broadcaster
	stream      *reporter.Stream
	manager     *hookconfig.Manager
	scope       hookconfig.Scope

	pings   *Probe
	prompts *Probe

	router    *chi.Mux
	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener

	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// New creates a service. The buffer, broadcaster and stream are always
// registered, in that order, ahead of any sink the caller adds later.
func New(opts Options) *Service {
	if opts.Registry == nil {
		opts.Registry = reporter.NewRegistry()
	}
	if opts.Buffer == nil {
		opts.Buffer = reporter.NewRingBuffer(reporter.DefaultBufferSize)
	}
	if opts.Broadcaster == nil {
		opts.Broadcaster = reporter.NewBroadcaster()
	}
	if opts.Stream == nil {
		opts.Stream = reporter.NewStream()
	}
	if opts.Scope == "" {
		opts.Scope = hookconfig.ScopeUser
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	opts.Registry.Add(opts.Buffer)
	opts.Registry.Add(opts.Broadcaster)
	opts.Registry.Add(opts.Stream)

	s := &Service{
		version:     opts.Version,
		port:        opts.Port,
		registry:    opts.Registry,
		buffer:      opts.Buffer,
		broadcaster: opts.Broadcaster,
		stream:      opts.Stream,
		manager:     opts.Manager,
		scope:       opts.Scope,
		pings:       NewProbe("ping_str"),
		prompts:     NewProbe("prompt_text"),
		router:      chi.NewRouter(),
		startTime:   time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Service) Handler() http.Handler { return s.router }

// Registry returns the reporter registry.
func (s *Service) Registry() *reporter.Registry { return s.registry }

// Pings returns the ping probe.
func (s *Service) Pings() *Probe { return s.pings }

// Prompts returns the prompt probe.
func (s *Service) Prompts() *Probe { return s.prompts }

// Addr returns the bound address once Start has succeeded.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// HooksChanged tells live clients that a settings file was modified.
func (s *Service) HooksChanged(path string) {
	envelope := map[string]string{"type": reporter.TypeHooksChanged, "path": path}
	s.broadcaster.Broadcast(envelope)
	s.stream.Broadcast(envelope)
}

// setupMiddleware configures HTTP middleware.
func (s *Service) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(SecurityHeaders(s.port))
}

// setupRoutes configures HTTP routes.
func (s *Service) setupRoutes() {
	// Long-lived streams stay outside the timeout group.
	s.router.Get("/ws/hooks", s.broadcaster.ServeWS(s.buffer.Recent))
	s.router.Get("/api/hooks/events", s.stream.ServeSSE)

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(DefaultHTTPTimeout))
		r.Use(MaxBodySize(MaxRequestBody))

		r.Get("/health", s.handleHealth)
		r.Get("/api/health", s.handleHealth)
		r.Get("/api/version", s.handleVersion)

		r.Post("/api/hooks/report", s.handleReport)
		r.Get("/api/hooks/output", s.handleOutput)
		r.Get("/api/hooks/list", s.handleList)

		r.Get("/ping", s.handlePing)
		r.Get("/api/pings", s.handlePings)
		r.Get("/get_pings", s.handlePings)
		r.Get("/prompt", s.handlePrompt)
		r.Get("/api/prompts", s.handlePrompts)
		r.Get("/get_prompts", s.handlePrompts)
	})
}

// requestLogger logs each request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// Start binds 127.0.0.1:<port> and serves in the background. Binding errors
// are returned synchronously.
func (s *Service) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.port, err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.listener = ln
	s.server = srv
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().Str("addr", ln.Addr().String()).Str("version", s.version).Msg("Hook server started")
	return nil
}

// Run starts the service and blocks until ctx is done, then shuts down.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown closes every reporter, which ends live WebSocket and SSE
// connections, then stops the HTTP server. Safe to call more than once.
func (s *Service) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if cerr := s.registry.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("Reporter close error")
		}
		s.mu.Lock()
		srv := s.server
		s.mu.Unlock()
		if srv != nil {
			if serr := srv.Shutdown(ctx); serr != nil {
				log.Error().Err(serr).Msg("HTTP server shutdown error")
				err = serr
			}
		}
		s.wg.Wait()
		log.Info().Msg("Hook server shutdown complete")
	})
	return err
}
