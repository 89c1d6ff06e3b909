package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stockledger/internal/adapter/notify"
	"github.com/rl1809/stockledger/internal/adapter/storage"
	"github.com/rl1809/stockledger/internal/config"
	"github.com/rl1809/stockledger/internal/core/service"
	"github.com/rl1809/stockledger/internal/platform/observability"
	"github.com/rl1809/stockledger/internal/port"
)

// Container holds the adapters and services selected by a Config.
type Container struct {
	Config *config.Config
	Logger *zap.Logger
	Tracer trace.Tracer

	Store  *storage.SQLStore
	Carts  port.CartRepository
	Levels port.StockLevelRepository

	Ledger   *service.LedgerService
	Cart     *service.CartService
	Checkout *service.CheckoutService
	Orders   *service.OrderService
	Monitor  *service.MonitorService

	closers []func(ctx context.Context) error
}

// New opens every backend named by cfg. Redis and Kafka are optional; without
// them carts and stock levels stay in memory and alerts are logged.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	tracer, shutdown, err := observability.SetupTracing(ctx, cfg.Otel)
	if err != nil {
		return nil, err
	}
	c.Tracer = tracer
	c.closers = append(c.closers, shutdown)

	if err := c.openStore(ctx); err != nil {
		c.Close(ctx)
		return nil, err
	}
	if err := c.openCache(ctx); err != nil {
		c.Close(ctx)
		return nil, err
	}

	var notifier port.Notifier = notify.NewLogNotifier(logger)
	if len(cfg.Kafka.Brokers) > 0 {
		kn := notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic), logger)
		notifier = kn
		c.closers = append(c.closers, func(context.Context) error { return kn.Close() })
		logger.Info("publishing stock alerts to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.AlertTopic))
	}

	members := service.NewLocker("member")
	lockTimeout := cfg.Checkout.LockTimeout

	c.Ledger = service.NewLedgerService(c.Store, lockTimeout, logger, tracer)
	c.Monitor = service.NewMonitorService(c.Store, c.Levels, notifier, service.MonitorConfig{
		Workers:   cfg.Monitor.Workers,
		QueueSize: cfg.Monitor.QueueSize,
	}, logger, tracer)
	c.Ledger.SetObserver(c.Monitor)
	c.Cart = service.NewCartService(c.Store, c.Carts, members, lockTimeout, logger, tracer)
	c.Checkout = service.NewCheckoutService(c.Store, c.Carts, c.Ledger, members, service.CheckoutConfig{
		LockTimeout:   lockTimeout,
		FinishTimeout: cfg.Checkout.FinishTimeout,
	}, logger, tracer)
	c.Orders = service.NewOrderService(c.Store, c.Ledger, logger, tracer)

	return c, nil
}

func (c *Container) openStore(ctx context.Context) error {
	db := c.Config.Database

	var err error
	switch db.Driver {
	case config.DriverMySQL:
		c.Store, err = storage.OpenMySQL(ctx, db.DSN, storage.PoolOptions{
			MaxOpenConns:    db.MaxOpenConns,
			MaxIdleConns:    db.MaxIdleConns,
			ConnMaxLifetime: db.ConnMaxLifetime,
		})
	case config.DriverSQLite:
		c.Store, err = storage.OpenSQLite(ctx, db.DSN)
	default:
		err = fmt.Errorf("unsupported database driver %q", db.Driver)
	}
	if err != nil {
		return err
	}

	c.closers = append(c.closers, func(context.Context) error { return c.Store.Close() })
	c.Logger.Info("connected to database", zap.String("driver", c.Store.Dialect()))
	return nil
}

func (c *Container) openCache(ctx context.Context) error {
	if c.Config.Redis.Addr == "" {
		c.Carts = storage.NewMemoryCartStore()
		c.Levels = storage.NewMemoryStockLevels()
		c.Logger.Info("redis not configured, carts and stock levels kept in memory")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		PoolSize: c.Config.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return fmt.Errorf("connect redis: %w", err)
	}

	c.Carts = storage.NewRedisCartStore(rdb)
	c.Levels = storage.NewRedisStockLevels(rdb)
	c.closers = append(c.closers, func(context.Context) error { return rdb.Close() })
	c.Logger.Info("connected to redis", zap.String("addr", c.Config.Redis.Addr))
	return nil
}

// Health pings the database.
func (c *Container) Health(ctx context.Context) error {
	return c.Store.Ping(ctx)
}

// Close stops the monitor workers and releases backends in reverse order of
// opening.
func (c *Container) Close(ctx context.Context) error {
	if c.Monitor != nil {
		c.Monitor.Close()
	}

	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
