package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/locolive/pulse/internal/api"
	"github.com/locolive/pulse/internal/config"
	"github.com/locolive/pulse/internal/domain"
	"github.com/locolive/pulse/internal/repository"
)

// Stores bundles the repositories for the configured driver.
type Stores struct {
	Notifications domain.NotificationStore
	Chat          domain.ChatRepository
	Checks        map[string]api.Pinger
	closers       []func()
}

// Close releases database connections.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// OpenStores connects to the configured database and wraps the
// notification store in a circuit breaker.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	s := &Stores{Checks: map[string]api.Pinger{}}

	switch cfg.Database.Driver {
	case "mongo":
		client, err := initMongo(ctx, cfg.Database.MongoURI)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = client.Disconnect(context.Background()) })

		db := client.Database(cfg.Database.MongoDatabase)
		notifications := repository.NewMongoNotificationRepository(db)
		chat := repository.NewMongoChatRepository(db)
		if err := notifications.EnsureIndexes(ctx); err != nil {
			s.Close()
			return nil, err
		}
		if err := chat.EnsureIndexes(ctx); err != nil {
			s.Close()
			return nil, err
		}
		s.Notifications, s.Chat = notifications, chat
		s.Checks["mongo"] = api.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		})
		logger.Info("connected to mongodb", zap.String("database", cfg.Database.MongoDatabase))

	case "postgres":
		pool, err := initPostgres(ctx, cfg.Database.PostgresURL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)

		repo := repository.NewPostgresRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		s.Notifications, s.Chat = repo, repo
		s.Checks["postgres"] = repo
		logger.Info("connected to postgres")

	case "memory":
		repo := repository.NewMemoryRepository()
		s.Notifications, s.Chat = repo, repo
		logger.Warn("using in-memory store; data is lost on restart")

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	breaker := repository.NewBreakingNotificationStore(s.Notifications, repository.BreakerSettings{
		MaxFailures: cfg.Breaker.MaxFailures,
		OpenTimeout: cfg.Breaker.OpenTimeout,
	}, logger)
	s.Notifications = breaker
	s.Checks["notification_store_breaker"] = api.PingFunc(func(context.Context) error {
		if breaker.State() == gobreaker.StateOpen {
			return fmt.Errorf("circuit open")
		}
		return nil
	})

	return s, nil
}

func initMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client, nil
}

func initPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
