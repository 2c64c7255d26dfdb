// Package server wires handlers, middleware, and routes together and owns
// the HTTP lifecycle. It is the composition root: every dependency chain
// (repository → service → handler) is assembled in New/setupRoutes, so the
// rest of the codebase never constructs its own collaborators.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/brainbox/internal/auth"
	"github.com/sakif/brainbox/internal/handler"
	"github.com/sakif/brainbox/internal/metrics"
	"github.com/sakif/brainbox/internal/middleware"
	sqliteRepo "github.com/sakif/brainbox/internal/repository/sqlite"
	"github.com/sakif/brainbox/internal/service"
)

// Config holds everything the server needs from the environment.
type Config struct {
	Port   int
	DBPath string

	JWTSecret string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	// MaxConnections caps active extension connections per user.
	// Zero means service.DefaultMaxConnections.
	MaxConnections int
}

// Server owns the router, the database connection, and graceful shutdown.
type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	metrics *metrics.Metrics
	limiter middleware.Limiter
}

// New assembles the full dependency graph. The limiter is injected rather
// than constructed here so main can pick Redis or in-memory depending on
// what is configured.
func New(cfg Config, logger *slog.Logger, limiter middleware.Limiter) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
		limiter: limiter,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures middleware and every route group.
//
// Middleware order matters: RequestID and RealIP first so the logger and
// limiter see them, Recoverer before anything that can panic. Rate limiting
// is registered per route group AFTER that group's auth middleware, so
// authenticated requests are bucketed by user rather than by IP.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	rateLimit := func(r chi.Router) {
		if s.limiter != nil {
			r.Use(middleware.RateLimit(s.limiter, s.metrics, s.logger))
		}
	}

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	// Services. Handlers only ever see these, never the repositories.
	statsSvc := service.NewStatsService(s.db, s.logger)
	tagCountSvc := service.NewTagCountService(s.db, s.db, s.metrics, s.logger)
	tagSvc := service.NewTagService(s.db, tagCountSvc, statsSvc, s.logger)
	contentSvc := service.NewContentService(s.db, tagCountSvc, statsSvc, s.logger)
	authSvc := service.NewAuthService(s.db, statsSvc, tokens, auth.NewPasswordService(), s.logger)

	ceiling := s.config.MaxConnections
	if ceiling <= 0 {
		ceiling = service.DefaultMaxConnections
	}
	extSvc := service.NewExtensionService(s.db, auth.NewAPIKeyService(), ceiling, s.metrics, s.logger)

	github := auth.NewGitHubProvider(
		s.config.GitHubClientID,
		s.config.GitHubClientSecret,
		s.config.GitHubCallbackURL,
	)

	authHandler := handler.NewAuthHandler(authSvc, github, s.logger)
	contentHandler := handler.NewContentHandler(contentSvc)
	tagHandler := handler.NewTagHandler(tagSvc)
	statsHandler := handler.NewStatsHandler(statsSvc)
	extHandler := handler.NewExtensionHandler(extSvc, contentSvc, tagSvc, s.logger)

	// Liveness and metrics. Deliberately outside auth and rate limiting
	// groups so probes and scrapes never compete with user traffic limits.
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", s.metrics.Handler())

	// Session auth (browser). Anonymous, so the limiter buckets by IP.
	s.router.Route("/auth", func(r chi.Router) {
		rateLimit(r)

		r.Post("/signup", authHandler.HandleSignUp)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/github", authHandler.HandleGitHubLogin)
		r.Get("/github/callback", authHandler.HandleGitHubCallback)
	})

	// Session-protected API.
	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		rateLimit(r)

		r.Get("/me", authHandler.HandleMe)
		r.Get("/stats", statsHandler.HandleGet)

		r.Get("/content", contentHandler.HandleList)
		r.Post("/content", contentHandler.HandleCreate)
		r.Get("/content/{id}", contentHandler.HandleGet)
		r.Patch("/content/{id}", contentHandler.HandleUpdate)
		r.Delete("/content/{id}", contentHandler.HandleDelete)

		r.Get("/tags", tagHandler.HandleList)
		r.Post("/tags", tagHandler.HandleCreate)
		r.Get("/tags/{id}", tagHandler.HandleGet)
		r.Patch("/tags/{id}", tagHandler.HandleUpdate)
		r.Delete("/tags/{id}", tagHandler.HandleDelete)

		r.Route("/extension", func(r chi.Router) {
			r.Get("/connections", extHandler.HandleListConnections)
			r.Post("/connections", extHandler.HandleCreateConnection)
			r.Delete("/connections/{id}", extHandler.HandleDisconnect)
			r.Get("/details", extHandler.HandleGetDetails)
		})
	})

	// API-key-protected routes called by the browser extension itself.
	s.router.Route("/ext", func(r chi.Router) {
		r.Use(extHandler.RequireAPIKey)
		rateLimit(r)

		r.Post("/content", extHandler.HandleSaveContent)
		r.Post("/heartbeat", extHandler.HandleHeartbeat)
	})

	return nil
}

// Router exposes the configured router, mainly for tests that drive the
// server with httptest without binding a port.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully:
// stop accepting connections, drain in-flight requests, close the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
