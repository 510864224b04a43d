// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the wiring layer. It decides:
//   - which URL patterns map to which handler functions
//   - what middleware runs on which routes
//   - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	  sqlite.DB → UserService, JokeService → AuthHandler, JokeHandler, MetaHandler
//
// This is the composition root: all dependencies are wired in one place
// (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/sakif/jokes-api/internal/auth"
	"github.com/sakif/jokes-api/internal/config"
	"github.com/sakif/jokes-api/internal/handler"
	"github.com/sakif/jokes-api/internal/metrics"
	"github.com/sakif/jokes-api/internal/middleware"
	sqliteRepo "github.com/sakif/jokes-api/internal/repository/sqlite"
	"github.com/sakif/jokes-api/internal/respond"
	"github.com/sakif/jokes-api/internal/service"
	"github.com/sakif/jokes-api/internal/telemetry"
)

// AppName identifies the service in /health, logs and traces.
const AppName = "jokes-api"

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Start closes it after the HTTP
// server has drained; callers that never Start must call Close.
type Server struct {
	router  *chi.Mux
	handler http.Handler
	config  config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB

	tokens    *auth.TokenService
	passwords *auth.PasswordService
	metrics   *metrics.Metrics
	users     *service.UserService
	jokes     *service.JokeService
}

// Option customizes a Server.
type Option func(*Server)

// WithPasswordService replaces the production argon2 parameters, e.g. with
// auth.NewPasswordServiceForTest in tests.
func WithPasswordService(p *auth.PasswordService) Option {
	return func(s *Server) { s.passwords = p }
}

// New opens (and migrates) the database and builds the router.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	db, err := sqliteRepo.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("server: opening database: %w", err)
	}

	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger,
		db:        db,
		tokens:    tokens,
		passwords: auth.NewPasswordService(),
		metrics:   metrics.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.users = service.NewUserService(db, tokens, s.passwords, logger)
	s.jokes = service.NewJokeService(db, db, logger)

	s.setupRoutes()
	s.handler = telemetry.Middleware(AppName)(s.router)

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /health                          liveness + database ping
//	GET    /metrics                         Prometheus exposition
//	POST   /api/v1/register                 rate limited
//	POST   /api/v1/login                    rate limited
//	GET    /api/v1/auth/google/login
//	GET    /api/v1/auth/google/callback
//	GET    /api/v1/users/me                 bearer
//	PUT    /api/v1/users/role               bearer (admin)
//	GET    /api/v1/jokes                    public
//	POST   /api/v1/jokes                    bearer (contributor, admin)
//	GET    /api/v1/jokes/{id}               public
//	PATCH  /api/v1/jokes/{id}               bearer (author, admin)
//	DELETE /api/v1/jokes/{id}               bearer (admin)
//	GET    /api/v1/meta/classification
//	GET    /api/v1/meta/ping
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs first so every later log line can carry the id; Logger
// sits outside Recoverer so a recovered panic is still logged as a 500.
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.EchoRequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Recoverer(s.logger))
	r.Use(s.metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}))

	// Set before any Route/Mount so subrouters inherit them.
	r.NotFound(middleware.NotFound)
	r.MethodNotAllowed(middleware.MethodNotAllowed)

	var google *auth.GoogleProvider
	if s.config.GoogleEnabled() {
		google = auth.NewGoogleProvider(s.config.GoogleClientID, s.config.GoogleClientSecret, s.config.GoogleCallbackURL)
	}

	authHandler := handler.NewAuthHandler(s.users, google, s.logger)
	jokeHandler := handler.NewJokeHandler(s.jokes, s.logger)
	metaHandler := handler.NewMetaHandler(AppName, s.db, s.logger)

	requireAuth := auth.RequireAuth(s.tokens)
	optionalAuth := auth.OptionalAuth(s.tokens)

	r.Get("/health", metaHandler.HandleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.config.AuthRateLimit > 0 {
				r.Use(httprate.Limit(s.config.AuthRateLimit, time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
						respond.Status(w, http.StatusTooManyRequests, "too many attempts, try again later")
					}),
				))
			}
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
		})

		r.Get("/auth/google/login", authHandler.HandleGoogleLogin)
		r.Get("/auth/google/callback", authHandler.HandleGoogleCallback)

		r.With(requireAuth).Get("/users/me", authHandler.HandleMe)
		r.With(requireAuth).Put("/users/role", authHandler.HandleChangeRole)

		r.Route("/jokes", func(r chi.Router) {
			r.With(optionalAuth).Get("/", jokeHandler.HandleList)
			r.With(optionalAuth).Get("/{id}", jokeHandler.HandleGet)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", jokeHandler.HandleCreate)
				r.Patch("/{id}", jokeHandler.HandleUpdate)
				r.Delete("/{id}", jokeHandler.HandleDelete)
			})
		})

		r.Get("/meta/classification", metaHandler.HandleClassification)
		r.Get("/meta/ping", metaHandler.HandlePing)
	})
}

// Handler returns the fully wrapped HTTP handler; tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Users exposes the user service for out-of-band setup such as seeding an admin.
func (s *Server) Users() *service.UserService {
	return s.users
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves HTTP until ctx is cancelled (typically by SIGINT/SIGTERM),
// then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start(ctx context.Context) error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("env", s.config.Env),
			slog.String("database", s.config.DBPath),
			slog.Bool("google", s.config.GoogleEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
