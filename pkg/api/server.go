package api

import (
	"context"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/fieldwork/pkg/config"
	"github.com/platinummonkey/fieldwork/pkg/middleware"
	"github.com/platinummonkey/fieldwork/pkg/observability"
	"github.com/platinummonkey/fieldwork/pkg/sso"
)

// ServerOptions collects everything the HTTP server needs. Handlers is
// mandatory; the rest may be nil and the matching surface is skipped.
type ServerOptions struct {
	Handlers  *Handlers
	Auth      *middleware.AuthMiddleware
	RateLimit func(http.Handler) http.Handler
	Health    *observability.HealthChecker
	Registry  *prometheus.Registry
	Metrics   *observability.Metrics
	Logger    *observability.Logger
	SSO       *sso.Handlers
}

// Server is the HTTP front of the service: health and metrics endpoints
// at the root, the authenticated resource API under /api/v1.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	logger     *observability.Logger
	cfg        config.ServerConfig
}

// NewServer assembles the router and middleware chain
func NewServer(cfg config.ServerConfig, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	router := mux.NewRouter()

	if opts.Health != nil {
		observability.RegisterHealthRoutes(router, opts.Health)
	}
	if opts.Registry != nil {
		router.Handle("/metrics", observability.Handler(opts.Registry))
	}
	if opts.SSO != nil {
		opts.SSO.RegisterRoutes(router)
	}

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(mux.MiddlewareFunc(middleware.Recover(logger)))
	apiRouter.Use(mux.MiddlewareFunc(middleware.RequestID(logger)))
	if opts.RateLimit != nil {
		apiRouter.Use(mux.MiddlewareFunc(opts.RateLimit))
	}
	if opts.Auth != nil {
		apiRouter.Use(mux.MiddlewareFunc(opts.Auth.Handler))
	}
	if opts.Metrics != nil {
		apiRouter.Use(func(next http.Handler) http.Handler {
			return opts.Metrics.InstrumentHandler("/api/v1", next)
		})
	}
	opts.Handlers.RegisterRoutes(apiRouter)

	return &Server{
		router: router,
		logger: logger,
		cfg:    cfg,
	}
}

// Router exposes the assembled router, mainly for tests
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start begins serving and blocks until the listener fails or the server
// is shut down
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.logger.WithField("addr", addr).Info("http server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
