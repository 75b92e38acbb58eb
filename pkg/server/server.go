// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the session registry over HTTP.
//
// Routes:
//
//	POST /sessions                      create a session
//	POST /message                       validate and broadcast an envelope
//	POST /events                        accept a client event
//	POST /done                          close a session
//	GET  /stream/{sessionID}            SSE stream with Last-Event-ID resume
//	POST /a2a                           A2A message carrying client events
//	GET  /.well-known/agent-card.json   agent card with the A2UI extensions
//	GET  /surfaces/{surfaceID}          resolved preview of a mirrored surface
//	GET  /surfaces/{surfaceID}/stream   SSE preview updates
//	GET  /health                        liveness
//
// With WithAuth, requests must carry a bearer token in the Authorization
// header or the access_token query parameter.
//
// Every broadcast envelope is also applied to a surface manager so the
// server can show what a renderer would display. The metrics endpoint is
// mounted when metrics are enabled.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/a2ui/pkg/auth"
	"github.com/kadirpekel/a2ui/pkg/config"
	"github.com/kadirpekel/a2ui/pkg/observability"
	"github.com/kadirpekel/a2ui/pkg/protocol"
	"github.com/kadirpekel/a2ui/pkg/session"
	"github.com/kadirpekel/a2ui/pkg/surface"
)

// EventHandler receives the client events posted to a session.
type EventHandler interface {
	HandleEvent(ctx context.Context, sessionID string, env protocol.Envelope) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, sessionID string, env protocol.Envelope) error

func (f EventHandlerFunc) HandleEvent(ctx context.Context, sessionID string, env protocol.Envelope) error {
	return f(ctx, sessionID, env)
}

func logEvent(_ context.Context, sessionID string, env protocol.Envelope) error {
	slog.Info("Client event", "session", sessionID, "kind", env.Kind.String(), "surface_id", env.SurfaceID())
	return nil
}

// Server is the A2UI HTTP front end.
type Server struct {
	mu     sync.RWMutex
	cfg    *config.Config
	stream config.StreamConfig

	sessions *session.Registry
	surfaces *surface.Manager
	handler  EventHandler
	tracer   *observability.Tracer
	metrics  *observability.Metrics
	card     *a2a.AgentCard
	auth     auth.TokenValidator

	router     chi.Router
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithRegistry uses an existing session registry.
func WithRegistry(r *session.Registry) Option {
	return func(s *Server) {
		s.sessions = r
	}
}

// WithSurfaces uses an existing surface manager as the preview mirror.
func WithSurfaces(m *surface.Manager) Option {
	return func(s *Server) {
		s.surfaces = m
	}
}

// WithEventHandler sets the receiver of client events. The default logs
// them.
func WithEventHandler(h EventHandler) Option {
	return func(s *Server) {
		s.handler = h
	}
}

// WithTracer enables request and broadcast spans.
func WithTracer(t *observability.Tracer) Option {
	return func(s *Server) {
		s.tracer = t
	}
}

// WithMetrics enables request metrics and the metrics endpoint.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithAuth requires a valid bearer token on every route except the
// configured excluded paths.
func WithAuth(v auth.TokenValidator) Option {
	return func(s *Server) {
		s.auth = v
	}
}

// New builds the server and its routes.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	s := &Server{
		cfg:     cfg,
		stream:  cfg.Stream,
		handler: EventHandlerFunc(logEvent),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessions == nil {
		s.sessions = session.NewRegistry(RegistryOptions(cfg, s.metrics)...)
	}
	if s.surfaces == nil {
		metrics := s.metrics
		s.surfaces = surface.NewManager(
			surface.WithConsumerBuffer(cfg.Surfaces.ConsumerBuffer),
			surface.WithSizeObserver(func(n int) {
				metrics.SetActiveSurfaces(context.Background(), n)
			}),
		)
	}

	card, err := BuildAgentCard(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build agent card: %w", err)
	}
	s.card = card

	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observability.HTTPMiddleware(s.tracer, s.metrics))
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)
	if s.auth != nil {
		r.Use(auth.Middleware(s.auth, s.authExcludedPaths()...))
	}

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, a2asrv.WellKnownAgentCardPath, a2asrv.NewStaticAgentCardHandler(s.card))

	if s.metrics != nil {
		endpoint := s.cfg.Observability.Metrics.Endpoint
		if endpoint == "" {
			endpoint = observability.DefaultMetricsPath
		}
		r.Method(http.MethodGet, endpoint, s.metrics.Handler())
		slog.Info("Metrics endpoint enabled", "path", endpoint)
	}

	r.Post("/sessions", s.handleCreateSession)
	r.Post("/message", s.handleMessage)
	r.Post("/events", s.handleEvent)
	r.Post("/done", s.handleDone)
	r.Get("/stream/{sessionID}", s.handleStream)
	r.Post("/a2a", s.handleA2A)
	r.Get("/surfaces/{surfaceID}", s.handleSurface)
	r.Get("/surfaces/{surfaceID}/stream", s.handleSurfaceStream)

	return r
}

func (s *Server) authExcludedPaths() []string {
	if ac := s.cfg.Server.Auth; ac != nil && len(ac.ExcludedPaths) > 0 {
		return ac.ExcludedPaths
	}
	return []string{"/health", a2asrv.WellKnownAgentCardPath}
}

// RegistryOptions returns the registry options derived from cfg, with
// session gauges and drop counters reported to metrics.
func RegistryOptions(cfg *config.Config, metrics *observability.Metrics) []session.Option {
	opts := session.OptionsFromConfig(cfg.Sessions)
	return append(opts,
		session.WithSizeObserver(func(n int) {
			metrics.SetActiveSessions(context.Background(), n)
		}),
		session.WithDropObserver(func(string) {
			metrics.RecordDroppedSubscriber(context.Background())
		}),
	)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the session registry behind the server.
func (s *Server) Registry() *session.Registry {
	return s.sessions
}

// Surfaces returns the surface manager mirroring broadcast envelopes.
func (s *Server) Surfaces() *surface.Manager {
	return s.surfaces
}

// AgentCard returns the published agent card.
func (s *Server) AgentCard() *a2a.AgentCard {
	return s.card
}

// UpdateConfig applies the parts of a reloaded configuration that can
// change at runtime. Listener, routes and storage keep their settings.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = cfg.Stream
	if cfg.Server.CORS != nil {
		s.cfg.Server.CORS = cfg.Server.CORS
	}
	slog.Debug("Server config updated", "retry", cfg.Stream.Retry, "heartbeat", cfg.Stream.Heartbeat)
}

func (s *Server) streamConfig() config.StreamConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stream
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.Address(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	srv := s.httpServer
	s.mu.Unlock()

	slog.Info("HTTP server starting", "address", ln.Addr().String(), "tls", s.cfg.Server.TLSEnabled())

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.Server.TLSEnabled() {
			err = srv.ServeTLS(ln, s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeout := s.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops accepting requests and detaches every session.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()

	// Close sessions first so open streams return and Shutdown can finish.
	if err := s.sessions.CloseAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("session shutdown: %w", err))
	}
	if srv != nil {
		slog.Info("HTTP server shutting down")
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP shutdown error: %w", err))
		}
	}
	return errors.Join(errs...)
}
