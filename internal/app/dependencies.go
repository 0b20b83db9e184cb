package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/fulfillment/internal/storage/redis"
)

// Dependencies содержит хранилища и общие сервисы приложения.
type Dependencies struct {
	Checkouts     domain.CheckoutSagaRepository
	Cancellations domain.CancellationSagaRepository
	Returns       domain.ReturnSagaRepository
	Outbox        domain.OutboxRepository
	Idempotency   domain.IdempotencyRepository
	Monitor       domain.SagaMonitor

	Metrics *metrics.SagaMetrics
	Logger  *log.Entry

	// Store заполнен только в postgres-режиме; используется для health check.
	Store       *postgres.Store
	redisClient *goredis.Client
}

// NewDependencies собирает хранилища согласно конфигурации.
// В postgres-режиме миграции применяются на старте.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{
		Metrics: metrics.NewSagaMetrics(),
		Logger:  logger,
	}

	switch cfg.StorageMode {
	case StorageModePostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		deps.Store = store
		deps.Checkouts = postgres.NewCheckoutSagaRepository(store)
		deps.Cancellations = postgres.NewCancellationSagaRepository(store)
		deps.Returns = postgres.NewReturnSagaRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Idempotency = postgres.NewIdempotencyRepository(store)
		deps.Monitor = postgres.NewSagaMonitor(store)
		logger.Info("postgres storage initialized")

	case StorageModeMemory:
		outbox := memory.NewOutboxRepository()
		checkouts := memory.NewCheckoutSagaRepository(outbox)
		cancellations := memory.NewCancellationSagaRepository(outbox)
		returns := memory.NewReturnSagaRepository(outbox)
		deps.Checkouts = checkouts
		deps.Cancellations = cancellations
		deps.Returns = returns
		deps.Outbox = outbox
		deps.Idempotency = memory.NewIdempotencyRepository()
		deps.Monitor = memory.NewSagaMonitor(checkouts, cancellations, returns)
		logger.Info("in-memory storage initialized")

	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.StorageMode)
	}

	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			deps.Close()
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		deps.redisClient = client
		deps.Idempotency = redisstore.NewIdempotencyRepository(client)
		logger.WithField("addr", cfg.RedisAddr).Info("redis idempotency store initialized")
	}

	return deps, nil
}

// Close освобождает соединения с внешними хранилищами.
func (d *Dependencies) Close() {
	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
