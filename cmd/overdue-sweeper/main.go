// Command overdue-sweeper periodically moves payments whose grace period has
// lapsed into the overdue state.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun/dialect/pgdialect"

	payments "github.com/goliatone/go-payments"
	"github.com/goliatone/go-payments/adapters/kafka"
	"github.com/goliatone/go-payments/adapters/redislock"
	"github.com/goliatone/go-payments/core"
	paymentmigrations "github.com/goliatone/go-payments/migrations"
	sqlstore "github.com/goliatone/go-payments/store/sql"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "overdue-sweeper: load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.LookupEnv); err != nil {
		fmt.Fprintf(os.Stderr, "overdue-sweeper: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, lookup func(string) (string, bool)) error {
	set, err := loadSettings(lookup)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, set.Debug)

	cfg, err := core.NewCfgxConfigProvider(envConfigLoader{lookup: lookup}).Load(ctx, payments.DefaultConfig())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client, err := openPersistence(ctx, set)
	if err != nil {
		return err
	}
	defer client.Close()

	cacheCfg := repositorycache.DefaultConfig()
	cacheCfg.TTL = cfg.PolicyCache.TTL
	policyCache, err := repositorycache.NewCacheService(cacheCfg)
	if err != nil {
		return fmt.Errorf("policy cache: %w", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithPolicyCache(policyCache))
	if err != nil {
		return fmt.Errorf("repository factory: %w", err)
	}

	opts := []payments.Option{
		payments.WithLogger(logger),
		payments.WithLoggerProvider(logger),
		payments.WithRepositoryFactory(factory),
	}

	hooks := payments.NewExtensionHooks()
	if err := hooks.RegisterTransitionListener("log", transitionLogger{logger: logger}); err != nil {
		return err
	}
	var base core.TransitionEventPublisher
	if len(set.KafkaBrokers) > 0 {
		producer, err := kafka.NewSyncProducer(set.KafkaBrokers, set.KafkaClientID)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		publisher, err := kafka.NewPublisher(producer, set.KafkaTopic)
		if err != nil {
			_ = producer.Close()
			return err
		}
		defer publisher.Close()
		base = publisher
		logger.Info("publishing transitions", "topic", publisher.Topic(), "brokers", set.KafkaBrokers)
	}
	if publisher := hooks.TransitionPublisher(base); publisher != nil {
		opts = append(opts, payments.WithEventPublisher(publisher))
	}

	if set.RedisURL != "" {
		locker, redisClient, err := redislock.NewFromURL(ctx, set.RedisURL)
		if err != nil {
			return fmt.Errorf("redis lock: %w", err)
		}
		defer redisClient.Close()
		opts = append(opts, payments.WithSweepLocker(locker))
	} else {
		logger.Warn("REDIS_URL not set, sweep lock is local to this process")
	}

	svc, err := payments.NewService(cfg, opts...)
	if err != nil {
		return fmt.Errorf("payments service: %w", err)
	}

	logger.Info("overdue sweeper started", "interval", set.Interval.String(), "batch_size", cfg.Sweep.BatchSize)
	loop(ctx, svc, logger, set.Interval, cfg.Sweep.BatchSize)
	logger.Info("overdue sweeper stopped")
	return nil
}

type overdueSweeper interface {
	SweepOverdue(ctx context.Context, req core.SweepRequest) (core.SweepResult, error)
}

func loop(ctx context.Context, svc overdueSweeper, logger core.Logger, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sweepOnce(ctx, svc, logger, batchSize)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sweepOnce(ctx context.Context, svc overdueSweeper, logger core.Logger, batchSize int) {
	result, err := svc.SweepOverdue(ctx, core.SweepRequest{BatchSize: batchSize})
	switch {
	case err == nil:
		logger.Info("overdue sweep finished",
			"as_of", result.AsOf,
			"scanned", result.Scanned,
			"marked", result.Marked,
			"conflicts", result.Conflicts,
			"failed", result.Failed,
		)
	case core.IsSweepLocked(err):
		logger.Debug("overdue sweep skipped, lock held elsewhere")
	case errors.Is(err, context.Canceled):
	default:
		logger.Error("overdue sweep failed", "error", err)
	}
}

type transitionLogger struct {
	logger core.Logger
}

func (l transitionLogger) PublishTransition(_ context.Context, event core.PaymentTransitionedEvent) error {
	l.logger.Info("payment transitioned",
		"payment_id", event.PaymentID,
		"reservation_id", event.ReservationID,
		"stage", event.Stage,
		"from", event.From,
		"to", event.To,
		"version", event.Version,
	)
	return nil
}

type postgresConfig struct {
	dsn   string
	debug bool
}

func (c postgresConfig) GetDebug() bool                { return c.debug }
func (c postgresConfig) GetDriver() string             { return "postgres" }
func (c postgresConfig) GetServer() string             { return c.dsn }
func (c postgresConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c postgresConfig) GetOtelIdentifier() string     { return "go-payments-overdue-sweeper" }

func openPersistence(ctx context.Context, set settings) (*persistence.Client, error) {
	sqlDB, err := sql.Open("postgres", set.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	client, err := persistence.New(postgresConfig{dsn: set.DatabaseURL, debug: set.Debug}, sqlDB, pgdialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}
	if !set.Migrate {
		return client, nil
	}

	_, err = paymentmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect == paymentmigrations.DialectPostgres {
			client.RegisterSQLMigrations(fsys)
		}
		return nil
	}, paymentmigrations.WithValidationTargets(paymentmigrations.DialectPostgres))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return client, nil
}
