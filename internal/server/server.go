// Package server is the development backend used for local end-to-end runs
// of the sync client.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/coachsync/internal/clock"
	"github.com/iudanet/coachsync/internal/config"
	"github.com/iudanet/coachsync/internal/models"
	"github.com/iudanet/coachsync/internal/server/handlers"
	"github.com/iudanet/coachsync/internal/server/middleware"
	"github.com/iudanet/coachsync/internal/server/storage/sqlite"
)

const limiterCleanupInterval = time.Minute

// Server serves the coaching API.
type Server struct {
	server  *http.Server
	storage *sqlite.Storage
	limiter *middleware.RateLimiter
	logger  *slog.Logger
}

// New opens the server database and builds the routes.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.ValidateServer(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := sqlite.New(ctx, cfg.ServerDBPath)
	if err != nil {
		return nil, err
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	handler := NewHandler(store, handlers.JWTConfig{
		Secret:         []byte(cfg.JWTSecret),
		AccessTokenTTL: cfg.JWTTTL,
	}, limiter, clock.New(), logger)

	return &Server{
		server: &http.Server{
			Addr:              cfg.ServerAddr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		storage: store,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// NewHandler wires handlers and middleware. limiter may be nil.
func NewHandler(
	store *sqlite.Storage,
	jwtConfig handlers.JWTConfig,
	limiter *middleware.RateLimiter,
	clk clock.Clock,
	logger *slog.Logger,
) http.Handler {
	authHandler := handlers.NewAuthHandler(logger, store, jwtConfig, clk)
	healthHandler := handlers.NewHealthHandler(logger, store)
	coaching := handlers.NewCoachingHandler(logger, store, clk)

	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/v1/schedules", coaching.ListSchedules)
	protected.HandleFunc("POST /api/v1/schedules", coaching.CreateSchedule)
	protected.HandleFunc("PATCH /api/v1/schedules/{id}", coaching.UpdateSchedule)
	protected.HandleFunc("DELETE /api/v1/schedules/{id}", coaching.Delete(models.TableSchedules))
	protected.HandleFunc("POST /api/v1/schedules/{id}/exercises", coaching.AddPlannedExercise)
	protected.HandleFunc("DELETE /api/v1/schedules/{schedule}/exercises/{id}", coaching.Delete(models.TablePlannedExercises))
	protected.HandleFunc("POST /api/v1/exercises/{id}/sets", coaching.LogSet)
	protected.HandleFunc("DELETE /api/v1/exercises/{planned}/sets/{id}", coaching.Delete(models.TableSetLogs))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("GET /api/v1/auth/salt/{username}", authHandler.GetSalt)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/v1/health", healthHandler.Health)
	mux.Handle("/api/v1/", middleware.AuthMiddleware(logger, jwtConfig)(protected))

	var h http.Handler = mux
	if limiter != nil {
		h = limiter.Middleware(h)
	}
	h = middleware.LoggingMiddleware(logger, "/api/v1/health")(h)
	return middleware.RecoveryMiddleware(logger)(h)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", slog.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
			return
		}
		errCh <- nil
	}()

	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case err := <-errCh:
			return err
		case <-ticker.C:
			if n := s.limiter.Cleanup(); n > 0 {
				s.logger.Debug("rate limiters evicted", slog.Int("count", n))
			}
		case <-ctx.Done():
			break loop
		}
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return <-errCh
}

// Close releases the database.
func (s *Server) Close() error {
	return s.storage.Close()
}
