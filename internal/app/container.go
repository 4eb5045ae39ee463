package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/finance"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/notify"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/production"
	"github.com/odyssey-erp/odyssey-ledger/internal/replenishment"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Backend supplies one storage engine's repositories and its transaction manager.
// Every service shares the same Transactor so cross-module operations commit as one.
type Backend struct {
	Tx          db.Transactor
	Audit       AuditRecorder
	Inventory   inventory.RepositoryPort
	Procurement procurement.RepositoryPort
	Sales       sales.RepositoryPort
	Production  production.RepositoryPort
	Finance     finance.RepositoryPort
}

// PostgresBackend wires the pgx repositories over pool.
func PostgresBackend(pool *pgxpool.Pool) Backend {
	return Backend{
		Tx:          db.NewTxManager(pool),
		Audit:       shared.NewAuditLogger(pool),
		Inventory:   inventory.NewRepository(pool),
		Procurement: procurement.NewRepository(pool),
		Sales:       sales.NewRepository(pool),
		Production:  production.NewRepository(pool),
		Finance:     finance.NewRepository(pool),
	}
}

// MemoryBackend wires the in-process store.
func MemoryBackend(store *memory.Store) Backend {
	return Backend{
		Tx:          store,
		Audit:       store,
		Inventory:   store.Inventory(),
		Procurement: store.Procurement(),
		Sales:       store.Sales(),
		Production:  store.Production(),
		Finance:     store.Finance(),
	}
}

// ContainerConfig carries the optional collaborators of the service graph.
type ContainerConfig struct {
	Config   *Config
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Notifier notify.Notifier
	Locker   replenishment.Locker
	Clock    func() time.Time
}

// Container holds the wired domain services.
type Container struct {
	Inventory   *inventory.Service
	Procurement *procurement.Service
	Sales       *sales.Service
	Production  *production.Service
	Finance     *finance.Service
	Scheduler   *replenishment.Scheduler
	Notifier    notify.Notifier
	Logger      *slog.Logger
}

// NewContainer builds the service graph over backend. The replenishment trigger is
// left unset; callers choose local or queued dispatch.
func NewContainer(backend Backend, cfg ContainerConfig) *Container {
	conf := cfg.Config
	if conf == nil {
		conf = &Config{SalesTaxRate: "0.10", PurchaseTaxRate: "0.10", Currency: "IDR", AlertLocale: "id"}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger, notify.NewFormatter(conf.AlertLocale))
	}

	ledger := inventory.NewService(backend.Inventory, backend.Tx, backend.Audit, inventory.ServiceConfig{
		Logger:  logger.With(slog.String("module", "inventory")),
		Metrics: cfg.Metrics,
		Clock:   cfg.Clock,
	})
	purchasing := procurement.NewService(backend.Procurement, backend.Tx, ledger, backend.Audit, procurement.ServiceConfig{
		TaxRate: conf.PurchaseTax(),
		Logger:  logger.With(slog.String("module", "procurement")),
		Clock:   cfg.Clock,
	})
	manufacturing := production.NewService(backend.Production, backend.Tx, ledger, backend.Audit, production.ServiceConfig{
		Notifier: notifier,
		Logger:   logger.With(slog.String("module", "production")),
		Clock:    cfg.Clock,
	})
	selling := sales.NewService(backend.Sales, backend.Tx, ledger, manufacturing, backend.Audit, sales.ServiceConfig{
		TaxRate:  conf.SalesTax(),
		Notifier: notifier,
		Logger:   logger.With(slog.String("module", "sales")),
		Clock:    cfg.Clock,
	})
	books := finance.NewService(backend.Finance, backend.Tx, backend.Audit, finance.ServiceConfig{
		DefaultCurrency: conf.Currency,
		Notifier:        notifier,
		Logger:          logger.With(slog.String("module", "finance")),
		Clock:           cfg.Clock,
	})
	scheduler := replenishment.NewScheduler(ledger, purchasing, backend.Tx, replenishment.Config{
		Interval:   conf.ReplenishInterval,
		RunTimeout: conf.ReplenishTimeout,
		Locker:     cfg.Locker,
		Metrics:    cfg.Metrics,
		Logger:     logger.With(slog.String("module", "replenishment")),
	})

	return &Container{
		Inventory:   ledger,
		Procurement: purchasing,
		Sales:       selling,
		Production:  manufacturing,
		Finance:     books,
		Scheduler:   scheduler,
		Notifier:    notifier,
		Logger:      logger,
	}
}

// UseLocalReplenishment installs in-process dispatch of low-stock events and
// returns the dispatcher so callers can wait for it on shutdown.
func (c *Container) UseLocalReplenishment(timeout time.Duration) *replenishment.LocalDispatcher {
	dispatcher := replenishment.NewLocalDispatcher(c.Scheduler, c.Notifier, c.Logger, timeout)
	c.Inventory.SetTrigger(dispatcher)
	return dispatcher
}

// RouterParams derives router handlers from the container.
func (c *Container) RouterParams(cfg *Config, metrics *observability.Metrics) RouterParams {
	return RouterParams{
		Logger:               c.Logger,
		Config:               cfg,
		Metrics:              metrics,
		InventoryHandler:     inventory.NewHandler(c.Logger, c.Inventory),
		ProcurementHandler:   procurement.NewHandler(c.Logger, c.Procurement),
		SalesHandler:         sales.NewHandler(c.Logger, c.Sales),
		ProductionHandler:    production.NewHandler(c.Logger, c.Production),
		FinanceHandler:       finance.NewHandler(c.Logger, c.Finance),
		ReplenishmentHandler: replenishment.NewHandler(c.Logger, c.Scheduler),
	}
}
