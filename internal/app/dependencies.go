package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/fulfillment/internal/health"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/postgres"
)

// runtimeDependencies — хранилища выбранного драйвера.
type runtimeDependencies struct {
	repo           domain.OrderRepository
	outboxRepo     domain.OutboxRepository
	timelineRepo   domain.TimelineRepository
	membershipRepo domain.MembershipRepository
	catalog        domain.ProductCatalog
	storageChecker healthcheck.Checker
	closeFn        func() error
}

// initRuntimeDependencies создаёт репозитории и наполняет каталог из cfg.Catalog.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	products, err := parseCatalog(cfg.Catalog)
	if err != nil {
		return nil, err
	}

	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		catalog := memory.NewCatalog(products...)
		logger.WithField("products", len(products)).Info("using in-memory storage")
		return &runtimeDependencies{
			repo:           memory.NewOrderRepository(),
			outboxRepo:     memory.NewOutboxRepository(),
			timelineRepo:   memory.NewTimelineRepository(),
			membershipRepo: memory.NewMembershipRepository(),
			catalog:        catalog,
			storageChecker: healthcheck.NewFuncChecker("storage", func(context.Context) error { return nil }),
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required for storage driver %q", cfg.StorageDriver)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}

		catalog := postgres.NewCatalog(store)
		for _, p := range products {
			if err := catalog.Upsert(ctx, p); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("seed catalog: %w", err)
			}
		}

		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")
		return &runtimeDependencies{
			repo:           postgres.NewOrderRepository(store),
			outboxRepo:     postgres.NewOutboxRepository(store),
			timelineRepo:   postgres.NewTimelineRepository(store),
			membershipRepo: postgres.NewMembershipRepository(store),
			catalog:        catalog,
			storageChecker: healthcheck.NewFuncChecker("storage", store.Ping),
			closeFn:        store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}
