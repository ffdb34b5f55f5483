// Package server exposes the orchestrator over HTTP: a JSON and
// server-sent-events API for chat clients, a websocket feed of live session
// events, and a Connect RPC service for programmatic clients. Health and
// Prometheus endpoints are served alongside.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jurni-app/planner/auth"
	"github.com/jurni-app/planner/memory"
	"github.com/jurni-app/planner/orchestrator"
	"github.com/jurni-app/planner/session"
	"github.com/jurni-app/planner/stream"
)

const serviceName = "travel-planner"

// Planner is the orchestrator surface the server drives.
type Planner interface {
	Submit(ctx context.Context, req orchestrator.TurnRequest) (*stream.Stream, error)
	Session(ctx context.Context, id, owner string) (*session.Session, error)
	CreateSession(ctx context.Context, id, owner string) (*session.Session, error)
	CloseSession(ctx context.Context, id, owner string) (*session.Session, error)
	SaveItinerary(ctx context.Context, id, owner string) (memory.Trip, error)
	Watch(ctx context.Context, id, owner string) (<-chan stream.Event, error)
}

// Option configures a Server.
type Option func(*Server)

// WithVerifier overrides the verifier built from the auth config.
func WithVerifier(v auth.Verifier) Option {
	return func(s *Server) { s.verifier = v }
}

// WithMetricsRegistry serves /metrics from reg and registers the HTTP
// collectors with it. Without it the server exposes no metrics.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithLogger sets the logger for request failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// Server serves a Planner over HTTP.
type Server struct {
	cfg      Config
	planner  Planner
	verifier auth.Verifier
	registry *prometheus.Registry
	logger   *slog.Logger
	handler  http.Handler
}

// New builds the router for planner.
func New(cfg *Config, planner Planner, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:     *cfg,
		planner: planner,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.verifier == nil {
		v, err := auth.NewVerifier(&cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to create verifier: %w", err)
		}
		s.verifier = v
	}

	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on the configured address until ctx is cancelled,
// then shuts down gracefully within ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.handler,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("planner listening", "addr", s.cfg.Addr, "base_path", s.cfg.BasePath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.cors)
	if s.registry != nil {
		r.Use(newHTTPMetrics(s.registry, "planner").middleware)
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	r.HandleFunc("/", s.health).Methods(http.MethodGet)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	authn := auth.Middleware(s.verifier, s.cfg.Auth.Anonymous())

	api := r.PathPrefix(s.cfg.BasePath).Subrouter()
	api.Use(authn)
	api.HandleFunc("/session", s.createSession).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/session/{id}/state", s.sessionState).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/session/{id}/close", s.closeSession).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/session/{id}/watch", s.watch).Methods(http.MethodGet)
	api.HandleFunc("/chat", s.chat).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/chat-structured", s.chatStructured).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/save-itinerary", s.saveItinerary).Methods(http.MethodPost, http.MethodOptions)

	r.PathPrefix("/" + ServiceName + "/").Handler(authn(s.connectHandler()))

	return r
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin, r.Host) {
			if len(s.cfg.AllowedOrigins) == 0 {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers",
				"Content-Type, Authorization, Connect-Protocol-Version, Connect-Timeout-Ms")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originAllowed accepts any origin when no list is configured, the request's
// own host, and listed origins.
func (s *Server) originAllowed(origin, host string) bool {
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	if slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin) {
		return true
	}
	trimmed := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	return trimmed == host
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": serviceName,
	})
}
