package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coopvote/internal/config"
	"coopvote/internal/container"
	"coopvote/internal/handler"
	"coopvote/internal/middleware"
	"coopvote/pkg/database"
	"coopvote/pkg/errors"
	"coopvote/pkg/logger"
)

// Resources holds all resources that need cleanup
type Resources struct {
	db        *database.PostgresDB
	container *container.Container
	server    *http.Server
	log       *logger.Logger
	mu        sync.Mutex
	closed    bool
}

// Cleanup gracefully closes all resources
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error

	r.log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first to stop accepting new requests
	if r.server != nil {
		r.log.Info("Shutting down HTTP server...")
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Failed to shutdown HTTP server")
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		} else {
			r.log.Info("HTTP server shutdown complete")
		}
	}

	// Stop the reconciler and pending session timers before the stores go away
	if r.container != nil {
		r.log.Info("Stopping background services...")
		if err := r.container.Stop(ctx); err != nil {
			r.log.WithError(err).Error("Failed to stop background services")
			errs = append(errs, err)
		} else {
			r.log.Info("Background services stopped successfully")
		}

		if redisClient := r.container.GetRedisClient(); redisClient != nil {
			r.log.Info("Closing Redis connection...")
			if err := redisClient.Close(); err != nil {
				r.log.WithError(err).Error("Failed to close Redis connection")
				errs = append(errs, fmt.Errorf("Redis close: %w", err))
			} else {
				r.log.Info("Redis connection closed successfully")
			}
		}
	}

	// Close database connection pool with health check
	if r.db != nil {
		r.log.Info("Closing database connection pool...")

		healthCtx, healthCancel := context.WithTimeout(ctx, 2*time.Second)
		if err := r.db.Health(healthCtx); err != nil {
			r.log.WithError(err).Warn("Database health check failed before closing")
		}
		healthCancel()

		r.db.Close()
		r.log.Info("Database connection pool closed successfully")
	}

	if len(errs) > 0 {
		r.log.WithField("error_count", len(errs)).Error("Cleanup completed with errors")
		return fmt.Errorf("cleanup completed with %d errors: %v", len(errs), errs)
	}

	r.log.Info("Graceful shutdown completed successfully")
	return nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":         cfg.Port,
		"log_level":    cfg.LogLevel,
		"environment":  cfg.Environment,
		"memory_store": cfg.UseMemoryStore,
	}).Info("Starting coopvote server")

	ctx := context.Background()

	// Initialize database connection
	var db *database.PostgresDB
	if !cfg.UseMemoryStore {
		db, err = database.NewPostgresDB(ctx, cfg.DatabaseURL, database.DefaultPoolOptions())
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to database")
		}
	}

	// Create dependency injection container
	c, err := container.New(cfg, log, db, clockwork.NewRealClock())
	if err != nil {
		log.WithError(err).Fatal("Failed to create container")
	}

	// Restore session timers and start the expiry reconciler
	if err := c.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start background services")
	}

	router := setupRouter(c)

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	resources := &Resources{
		db:        db,
		container: c,
		server:    server,
		log:       log,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Cleanup runs regardless of how the program exits
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server error occurred")
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	log.Info("Initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := resources.Cleanup(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}

// setupRouter configures and returns the HTTP router
func setupRouter(c *container.Container) *chi.Mux {
	cfg := c.GetConfig()
	log := c.GetLogger()
	authService := c.GetAuthService()
	voting := c.GetVotingService()

	r := chi.NewRouter()

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.AllowedOrigins

	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID())
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	checks := map[string]handler.HealthChecker{}
	if c.DB != nil {
		checks["database"] = c.DB
	}
	if c.HasRedis() {
		checks["redis"] = c.GetRedisClient()
	}

	healthHandler := handler.NewHealthHandler(checks, log)
	agendaHandler := handler.NewAgendaHandler(voting, log)
	voteHandler := handler.NewVoteHandler(voting, log)
	voteLimiter := middleware.NewIPRateLimiter(cfg.VoteRateLimit, cfg.VoteRateBurst)

	r.Get("/health", healthHandler.Check)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Public read endpoints
		r.Get("/agendas", agendaHandler.List)
		r.Get("/agendas/{id}", agendaHandler.Get)
		r.Get("/agendas/{id}/sessions", agendaHandler.ListSessions)
		r.Get("/agendas/{id}/tally", voteHandler.Tally)

		// Member endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authService, log))

			r.Post("/agendas", agendaHandler.Create)
			r.Post("/agendas/{id}/finalize", agendaHandler.Finalize)
			r.Get("/agendas/{id}/votes", voteHandler.ListByAgenda)
			r.Post("/sessions", agendaHandler.StartSession)
			r.Get("/votes/me", voteHandler.ListMine)
			r.With(middleware.RateLimit(voteLimiter, log)).Post("/votes", voteHandler.CastVote)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteJSON(w, errors.NewNotFoundError("Endpoint not found"), middleware.RequestIDFromContext(r.Context()))
	})

	log.Info("Router configured successfully")
	return r
}
