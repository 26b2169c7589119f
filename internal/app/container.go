// Package app wires the booking core for the binaries.
package app

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/reservo/internal/booking/application/commands"
	"github.com/felixgeelhaar/reservo/internal/booking/application/queries"
	"github.com/felixgeelhaar/reservo/internal/booking/infrastructure/persistence"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/lock"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/reservo/pkg/clock"
	"github.com/felixgeelhaar/reservo/pkg/config"
	"github.com/felixgeelhaar/reservo/pkg/observability"
)

// Version is stamped by the build.
var Version = "dev"

// Container holds all application dependencies.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Clock   clock.Clock
	Metrics *observability.InMemoryMetrics
	Health  *observability.HealthRegistry

	// Database
	DB       database.Connection
	DBDriver database.Driver

	// Redis lock tier, nil when REDIS_URL is empty.
	RedisClient *redis.Client

	// Locks
	LockTable *lock.SQLStore
	Locker    *lock.TwoTierStore

	// Repositories
	BookingRepo *persistence.BookingRepository
	VisitRepo   *persistence.VisitHistoryRepository
	OutboxRepo  outbox.Repository
	UnitOfWork  *database.UnitOfWork

	// Delivery
	EventPublisher eventbus.Publisher
	Dispatcher     *outbox.Dispatcher

	// Command handlers
	ReserveSlotHandler *commands.ReserveSlotHandler
	TransitionHandler  *commands.TransitionHandler
	AddReviewHandler   *commands.AddReviewHandler

	// Query handlers
	GetBookingHandler    *queries.GetBookingHandler
	GetSlotStatusHandler *queries.GetSlotStatusHandler

	shutdownTracer func(context.Context) error
}

// Option adjusts the container before anything is connected.
type Option func(c *Container)

// WithClock replaces the real clock.
func WithClock(clk clock.Clock) Option {
	return func(c *Container) { c.Clock = clk }
}

// WithPublisher skips building the configured publisher.
func WithPublisher(p eventbus.Publisher) Option {
	return func(c *Container) { c.EventPublisher = p }
}

// NewContainer creates and wires all dependencies. The caller must Close it.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (_ *Container, err error) {
	c := &Container{
		Config:  cfg,
		Logger:  observability.LoggerOrDefault(logger),
		Clock:   clock.NewRealClock(),
		Metrics: observability.NewInMemoryMetrics(),
		Health:  observability.NewHealthRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	c.shutdownTracer, err = observability.InitTracer(ctx, observability.TracingConfig{
		ServiceName:    "reservo",
		ServiceVersion: Version,
		Environment:    cfg.AppEnv,
		Endpoint:       cfg.OTLPEndpoint,
	})
	if err != nil {
		return nil, err
	}

	if err := c.connectDatabase(ctx); err != nil {
		return nil, err
	}
	if err := c.connectRedis(ctx); err != nil {
		return nil, err
	}
	if err := c.buildRepositories(); err != nil {
		return nil, err
	}
	if err := c.buildDelivery(); err != nil {
		return nil, err
	}
	c.buildHandlers()
	c.registerHealthChecks()
	return c, nil
}

func (c *Container) connectDatabase(ctx context.Context) error {
	driver, err := database.ParseDriver(c.Config.DatabaseDriver)
	if err != nil {
		return err
	}

	conn, err := database.NewConnection(ctx, database.Config{
		Driver:     driver,
		URL:        c.Config.DatabaseURL,
		SQLitePath: c.Config.SQLitePath,
		MaxConns:   c.Config.DatabaseMaxConns,
	})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	c.DB = conn
	c.DBDriver = conn.Driver()

	if err := conn.Ping(ctx); err != nil {
		return errors.Wrap(err, "ping database")
	}
	c.Logger.Info("connected to database", "driver", c.DBDriver)

	if c.Config.AutoMigrate {
		if err := migrations.Run(ctx, conn); err != nil {
			return err
		}
		c.Logger.Debug("migrations applied", "driver", c.DBDriver)
	}
	return nil
}

// connectRedis builds the cache tier client. An unreachable server is not
// fatal: the breaker keeps locks on the table tier until it answers.
func (c *Container) connectRedis(ctx context.Context) error {
	if c.Config.RedisURL == "" {
		c.Logger.Info("no REDIS_URL, locks run on the database tier only")
		return nil
	}

	opt, err := redis.ParseURL(c.Config.RedisURL)
	if err != nil {
		return errors.Wrap(err, "parse Redis URL")
	}
	c.RedisClient = redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.RedisClient.Ping(pingCtx).Err(); err != nil {
		c.Logger.Warn("Redis not available, locks fall back to the database tier", "error", err)
		return nil
	}
	c.Logger.Info("connected to Redis")
	return nil
}

func (c *Container) buildRepositories() error {
	factory := NewRepositoryFactory(c.DB, c.Clock)

	var err error
	if c.BookingRepo, err = factory.BookingRepository(); err != nil {
		return err
	}
	if c.VisitRepo, err = factory.VisitHistoryRepository(); err != nil {
		return err
	}
	if c.OutboxRepo, err = factory.OutboxRepository(); err != nil {
		return err
	}
	if c.LockTable, err = factory.LockTable(); err != nil {
		return err
	}
	c.UnitOfWork = factory.UnitOfWork()

	var primary lock.Locker
	if c.RedisClient != nil {
		primary = lock.NewRedisStore(c.RedisClient)
	}
	lockConfig := lock.DefaultTwoTierConfig()
	lockConfig.BreakerFailures = c.Config.LockBreakerFailures
	lockConfig.BreakerTimeout = c.Config.LockBreakerTimeout
	c.Locker = lock.NewTwoTierStore(primary, c.LockTable, lockConfig, c.Metrics, c.Logger)
	return nil
}

func (c *Container) buildDelivery() error {
	if c.EventPublisher == nil {
		publisher, err := eventbus.NewPublisher(eventbus.Config{
			Driver:       c.Config.EventBusDriver,
			RabbitMQURL:  c.Config.RabbitMQURL,
			KafkaBrokers: c.Config.KafkaBrokers,
			KafkaTopic:   c.Config.KafkaTopic,
		}, c.Logger)
		switch {
		case err == nil:
			c.EventPublisher = publisher
		case c.Config.IsDevelopment():
			c.Logger.Warn("event bus not available, using noop publisher",
				"driver", c.Config.EventBusDriver,
				"error", err,
			)
			c.EventPublisher = eventbus.NewNoopPublisher(c.Logger)
		default:
			return errors.Wrap(err, "create event publisher")
		}
	}

	c.Dispatcher = outbox.NewDispatcher(c.OutboxRepo, c.EventPublisher, c.Clock, outbox.DispatcherConfig{
		PollInterval: c.Config.OutboxPollInterval,
		BatchSize:    c.Config.OutboxBatchSize,
		Workers:      c.Config.OutboxWorkers,
		ClaimLease:   c.Config.OutboxClaimLease,
		Owner:        c.InstanceID(),
	}, c.Metrics, c.Logger)
	return nil
}

func (c *Container) buildHandlers() {
	reserveConfig := commands.ReserveConfig{
		LockTTL:           c.Config.LockTTL,
		LockWait:          c.Config.LockWait,
		LockRetryInterval: c.Config.LockRetryInterval,
		OutboxMaxRetries:  c.Config.OutboxMaxRetries,
	}
	c.ReserveSlotHandler = commands.NewReserveSlotHandler(
		c.BookingRepo, c.OutboxRepo, c.UnitOfWork, c.Locker, c.Clock, reserveConfig, c.Metrics, c.Logger)
	c.TransitionHandler = commands.NewTransitionHandler(
		c.BookingRepo, c.VisitRepo, c.OutboxRepo, c.UnitOfWork, c.Clock, c.Config.OutboxMaxRetries, c.Metrics, c.Logger)
	c.AddReviewHandler = commands.NewAddReviewHandler(
		c.VisitRepo, c.OutboxRepo, c.UnitOfWork, c.Clock, c.Config.OutboxMaxRetries)

	c.GetBookingHandler = queries.NewGetBookingHandler(c.BookingRepo, c.VisitRepo, c.OutboxRepo)
	c.GetSlotStatusHandler = queries.NewGetSlotStatusHandler(c.BookingRepo)
}

func (c *Container) registerHealthChecks() {
	c.Health.Register("database", observability.PingChecker("database", observability.HealthStatusUnhealthy, c.DB.Ping))
	if c.RedisClient != nil {
		// the table tier keeps locking, so Redis only degrades
		c.Health.Register("redis", observability.PingChecker("redis", observability.HealthStatusDegraded, func(ctx context.Context) error {
			return c.RedisClient.Ping(ctx).Err()
		}))
	}
}

// InstanceID names this process in lock owners and outbox claims.
func (c *Container) InstanceID() string {
	if c.Config.InstanceID != "" {
		return c.Config.InstanceID
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "reservo"
	}
	return host + "-" + lock.NewOwner()[:8]
}

// Close releases every connection the container opened.
func (c *Container) Close() {
	if c.Dispatcher != nil {
		c.Dispatcher.Stop()
	}
	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis client", "error", err)
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Warn("error closing database", "error", err)
		}
	}
	if c.shutdownTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.shutdownTracer(ctx); err != nil {
			c.Logger.Warn("error flushing traces", "error", err)
		}
	}
}
