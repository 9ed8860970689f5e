package container

import (
	"context"
	"fmt"

	"gotrip-be/internal/config"
	"gotrip-be/internal/realtime"
	"gotrip-be/internal/repository"
	"gotrip-be/internal/service"
	"gotrip-be/internal/service/auth"
	"gotrip-be/pkg/database"
	"gotrip-be/pkg/logger"
	"gotrip-be/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           *database.PostgresDB
	RedisClient  *redis.Client
	Repositories *repository.Repositories
	Services     *service.Services
	Hub          *realtime.Hub
	Feed         *realtime.Feed
}

// New creates a new dependency injection container. The database is
// required; Redis is optional and its absence only costs caching and push
// notifications.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Logger)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching and push notifications")
		} else {
			redisClient = client
			log.Info("Redis client initialized successfully")
		}
	} else {
		log.Info("Redis URL not configured, proceeding without caching")
	}

	repos := &repository.Repositories{
		Votes:  repository.NewVoteRepository(db),
		Groups: repository.NewGroupRepository(db),
	}

	authService := auth.NewService(cfg.GoogleClientID, cfg.SupabaseJWTSecret, log)
	approvalService := service.NewApprovalService(repos, redisClient, log.Logger)
	groupService := service.NewGroupService(repos, redisClient, log.Logger)

	services := &service.Services{
		Auth:     authService,
		Approval: approvalService,
		Group:    groupService,
	}

	hub := realtime.NewHub(log.Logger)
	feed := realtime.NewFeed(hub, approvalService, redisClient, cfg.PollInterval, log.Logger)

	return &Container{
		Config:       cfg,
		Logger:       log,
		DB:           db,
		RedisClient:  redisClient,
		Repositories: repos,
		Services:     services,
		Hub:          hub,
		Feed:         feed,
	}, nil
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetDatabase returns the database handle
func (c *Container) GetDatabase() *database.PostgresDB {
	return c.DB
}

// GetRedisClient returns the Redis client (may be nil if not configured)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// GetServices returns the service registry
func (c *Container) GetServices() *service.Services {
	return c.Services
}

// GetFeed returns the realtime approval feed
func (c *Container) GetFeed() *realtime.Feed {
	return c.Feed
}

// GetCacheService returns a cache service instance
func (c *Container) GetCacheService() *service.CacheService {
	return service.NewCacheService(c.RedisClient, c.Logger.Logger)
}
