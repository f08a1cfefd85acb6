package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/quill/config"
	"github.com/target/quill/internal/data"
	"github.com/target/quill/internal/observability/statsd"
	"github.com/target/quill/internal/ports"
	"github.com/target/quill/internal/service"
)

// ServiceContainer holds the connections and services a command needs.
type ServiceContainer struct {
	Config   *config.AppConfig
	DB       *sql.DB
	Redis    redis.UniversalClient
	Sessions *service.SessionService
	Articles *data.ArticleRepo
	Feed     *data.ChangeFeed
	Metrics  *statsd.Client
	Logger   *slog.Logger
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// NewServices builds repositories, the identity provider and the session service.
func NewServices(ctx context.Context, deps ServiceDeps) (*ServiceContainer, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	authCfg := AuthConfig{
		Auth:        deps.Config.Auth,
		DB:          deps.DB,
		RedisClient: deps.RedisClient,
		Logger:      logger,
	}
	identity, err := BuildIdentityProvider(ctx, authCfg)
	if err != nil {
		return nil, err
	}
	sessions, err := BuildSessionService(identity, authCfg)
	if err != nil {
		return nil, err
	}

	c := &ServiceContainer{
		Config:   deps.Config,
		DB:       deps.DB,
		Redis:    deps.RedisClient,
		Sessions: sessions,
		Metrics:  buildMetrics(ctx, logger, deps.Config.Observability.Metrics),
		Logger:   logger,
	}
	if deps.DB != nil {
		c.Articles = data.NewArticleRepo(deps.DB)
		c.Feed = data.NewChangeFeed(deps.DB, data.ChangeFeedOptions{
			Channel: deps.Config.Sync.NotifyChannel,
			Store:   c.Articles,
			Logger:  logger,
		})
	}
	return c, nil
}

// NewArticleSync creates the sync core over the container's repositories. The
// caller owns the result and must Close it.
func (c *ServiceContainer) NewArticleSync() (*service.ArticleSync, error) {
	if c.Articles == nil {
		return nil, errors.New("article sync requires a database connection")
	}
	kinds, err := c.Config.Sync.FeedKinds()
	if err != nil {
		return nil, err
	}

	var sink statsd.Sink
	if c.Metrics != nil {
		sink = c.Metrics
	}
	var feed ports.ChangeFeed
	if c.Feed != nil {
		feed = c.Feed
	}

	return service.NewArticleSync(service.ArticleSyncOptions{
		Backends: service.ArticleBackends{
			Store:    c.Articles,
			Feed:     feed,
			Sessions: c.Sessions,
		},
		Config: service.ArticleSyncConfig{
			Sort: c.Config.Sync.Sort(),
			Filter: ports.FeedFilter{
				Table: c.Config.Sync.Table,
				Kinds: kinds,
				Where: c.Config.Sync.FeedWhere,
			},
			Metrics: sink,
		},
		Logger: c.Logger,
	}), nil
}

// Close releases the session service, metrics and connections.
func (c *ServiceContainer) Close() error {
	var errs []error
	if c.Sessions != nil {
		c.Sessions.Close()
	}
	if c.Metrics != nil {
		if err := c.Metrics.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close metrics: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// buildMetrics returns a StatsD client, or nil when metrics are disabled or
// the agent cannot be reached.
func buildMetrics(ctx context.Context, logger *slog.Logger, cfg config.ObservabilityMetricsConfig) *statsd.Client {
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(ctx, statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}
