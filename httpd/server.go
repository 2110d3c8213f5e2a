package httpd

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	authcore "github.com/tripcents/authcore"
	"github.com/tripcents/authcore/internal/rate"
	"github.com/tripcents/authcore/middleware"
)

// Config holds HTTP server settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// RouteConfig declares per-route enforcement attached at registration.
// A zero RateLimit disables route-level limiting.
type RouteConfig struct {
	RateLimit rate.Policy
}

// Server is the HTTP front for an [authcore.Engine].
type Server struct {
	cfg     Config
	engine  *authcore.Engine
	limiter rate.Limiter
	log     zerolog.Logger
	router  chi.Router
	http    *http.Server
}

// NewServer wires the router. The limiter may be nil; route-level rate
// limiting is then skipped and only the engine's internal limits apply.
func NewServer(cfg Config, engine *authcore.Engine, limiter rate.Limiter, log zerolog.Logger, metricsHandler http.Handler) *Server {
	cfg.applyDefaults()

	s := &Server{
		cfg:     cfg,
		engine:  engine,
		limiter: limiter,
		log:     log,
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.ClientIP)

	r.Route("/auth", func(r chi.Router) {
		s.post(r, "/login", s.handleLogin, RouteConfig{RateLimit: rate.DefaultAuthPolicy("login")})
		s.post(r, "/signup", s.handleSignup, RouteConfig{RateLimit: rate.DefaultAuthPolicy("signup")})
		s.post(r, "/refresh", s.handleRefresh, RouteConfig{RateLimit: rate.DefaultAuthPolicy("refresh")})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(engine))
			r.Post("/logout", s.handleLogout)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(engine))
		r.Get("/session", s.handleSessionInfo)
		r.Get("/sessions", s.handleSessions)
	})

	r.Get("/healthz", s.handleHealth)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	s.router = r
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) post(r chi.Router, pattern string, h http.HandlerFunc, rc RouteConfig) {
	var handler http.Handler = h
	if rc.RateLimit.Limit > 0 && s.limiter != nil {
		handler = s.rateLimit(rc.RateLimit)(handler)
	}
	r.Method(http.MethodPost, pattern, handler)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
