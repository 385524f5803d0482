package container

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"coopvote/internal/config"
	"coopvote/internal/repository"
	"coopvote/internal/service"
	"coopvote/internal/service/auth"
	"coopvote/pkg/database"
	"coopvote/pkg/logger"
	"coopvote/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *logger.Logger
	Clock        clockwork.Clock
	DB           *database.PostgresDB
	RedisClient  *redis.Client
	Repositories *repository.Repositories
	Voting       *service.VotingService
	Services     *service.Services
}

// New creates a new dependency injection container. db may be nil when the
// configuration selects the in-memory store.
func New(cfg *config.Config, logger *logger.Logger, db *database.PostgresDB, clock clockwork.Clock) (*Container, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var repos *repository.Repositories
	switch {
	case db != nil:
		repos = &repository.Repositories{
			Agenda: repository.NewAgendaRepository(db),
			Vote:   repository.NewVoteRepository(db),
		}
	case cfg.UseMemoryStore:
		logger.Warn("DATABASE_URL not configured, using in-memory store")
		repos = repository.NewMemoryStore(clock).Repositories()
	default:
		return nil, fmt.Errorf("database connection is required")
	}

	// Initialize Redis client if Redis URL is configured
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, logger.Logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching")
		} else {
			redisClient = client
			logger.Info("Redis client initialized successfully")
		}
	} else {
		logger.Info("Redis URL not configured, proceeding without caching")
	}

	cache := service.NewCacheService(redisClient, logger)
	voting := service.NewVotingService(repos, cache, clock, logger, service.Options{
		DefaultSessionMinutes: cfg.SessionDefaultMinutes,
		MaxSessionMinutes:     cfg.SessionMaxMinutes,
		IdempotencyTTL:        cfg.IdempotencyTTL,
	})
	reconciler := service.NewReconciler(voting, cfg.ReconcileInterval, logger)

	services := &service.Services{
		Auth:       auth.NewService(cfg.JWTSecret, cfg.JWTIssuer, clock, logger),
		Voting:     voting,
		Reconciler: reconciler,
	}

	return &Container{
		Config:       cfg,
		Logger:       logger,
		Clock:        clock,
		DB:           db,
		RedisClient:  redisClient,
		Repositories: repos,
		Voting:       voting,
		Services:     services,
	}, nil
}

// GetAuthService returns the auth service
func (c *Container) GetAuthService() service.AuthService {
	return c.Services.Auth
}

// GetVotingService returns the voting service
func (c *Container) GetVotingService() service.Voting {
	return c.Services.Voting
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client (may be nil if not configured)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// Start launches background work: timer restore and the expiry reconciler
func (c *Container) Start(ctx context.Context) error {
	return c.Services.Reconciler.Start(ctx)
}

// Stop halts the reconciler and disarms pending session timers
func (c *Container) Stop(ctx context.Context) error {
	if err := c.Services.Reconciler.Stop(ctx); err != nil {
		return fmt.Errorf("reconciler shutdown: %w", err)
	}
	if err := c.Voting.Timer().Stop(ctx); err != nil {
		return fmt.Errorf("session timer shutdown: %w", err)
	}
	return nil
}
