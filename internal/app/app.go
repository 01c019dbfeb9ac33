// Package app wires configuration into the long-lived components shared by
// the kubecostd binaries.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tsanders-rh/kubecostd/internal/archive"
	"github.com/tsanders-rh/kubecostd/internal/config"
	"github.com/tsanders-rh/kubecostd/internal/janitor"
	"github.com/tsanders-rh/kubecostd/internal/kube"
	"github.com/tsanders-rh/kubecostd/internal/logging"
	"github.com/tsanders-rh/kubecostd/internal/pricing"
	"github.com/tsanders-rh/kubecostd/internal/query"
	"github.com/tsanders-rh/kubecostd/internal/store"
	"github.com/tsanders-rh/kubecostd/internal/tsdb"
	"github.com/tsanders-rh/kubecostd/internal/worker"
)

// App holds the components built from one configuration
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *tsdb.DB
	Prices *pricing.Registry

	// Store is nil when no database is configured
	Store *store.Store
}

// New builds the logger, opens the data directory, loads price tables and,
// when configured, connects to Postgres and applies the schema
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	db, err := tsdb.Open(cfg.Storage.DataDir,
		tsdb.WithLogger(logger),
		tsdb.WithDeleteBatchSize(cfg.Retention.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("open data directory: %w", err)
	}

	registry, err := pricing.NewRegistry(pricing.NewLoader(cfg.Pricing.Dir), cfg.Pricing.Active)
	if err != nil {
		return nil, fmt.Errorf("load price tables: %w", err)
	}
	logger.Info("price tables loaded",
		zap.Int("tables", len(registry.List())),
		zap.String("active", registry.Active()))

	a := &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Prices: registry,
	}

	if cfg.Database.Enabled() {
		pool, err := store.NewPool(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.Store = store.New(pool)
		if err := a.Store.Migrate(ctx); err != nil {
			a.Store.Close()
			return nil, err
		}
		logger.Info("database connected")
	}

	return a, nil
}

// PriceSource returns the Postgres price row when one is configured, falling
// back to the active YAML table
func (a *App) PriceSource() query.PriceSource {
	if a.Store != nil && a.Config.Pricing.DatabaseTable != "" {
		return pricing.Chain{a.Store.Prices.Source(a.Config.Pricing.DatabaseTable), a.Prices}
	}
	return a.Prices
}

// Ledger returns the durable rollup ledger, or an in-memory one without a database
func (a *App) Ledger() worker.Ledger {
	if a.Store != nil {
		return a.Store.Rollups
	}
	return worker.NewMemoryLedger()
}

// WorkerOptions enables the collector lease when replicas can coordinate through the database
func (a *App) WorkerOptions() []worker.Option {
	if a.Store == nil {
		return nil
	}
	return []worker.Option{worker.WithLease(a.Store.Leases)}
}

// Archiver returns the S3 archiver, or nil when archiving is disabled
func (a *App) Archiver(ctx context.Context) (tsdb.Archiver, error) {
	if !a.Config.Archive.Enabled {
		return nil, nil
	}
	arch, err := archive.New(ctx, &a.Config.Archive, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("create archiver: %w", err)
	}
	return arch, nil
}

// Janitor builds the retention sweeper, archiving, cleaning the ledger and
// recording sweeps when configured
func (a *App) Janitor(ctx context.Context, ledger janitor.LedgerCleaner) (*janitor.Janitor, error) {
	var opts []janitor.Option
	arch, err := a.Archiver(ctx)
	if err != nil {
		return nil, err
	}
	if arch != nil {
		opts = append(opts, janitor.WithArchiver(arch))
	}
	if ledger != nil {
		opts = append(opts, janitor.WithLedger(ledger))
	}
	if a.Store != nil {
		opts = append(opts, janitor.WithRecorder(a.Store.Sweeps))
	}
	return janitor.NewJanitor(&a.Config.Retention, a.DB, a.Logger, opts...), nil
}

// KubeClients connects to the cluster
func (a *App) KubeClients() (*kube.Clients, error) {
	clients, err := kube.NewClients(&a.Config.Kube)
	if err != nil {
		return nil, fmt.Errorf("connect to cluster: %w", err)
	}
	return clients, nil
}

// QueryService builds the query service. inventory may be nil.
func (a *App) QueryService(inventory query.InventorySource) *query.Service {
	return query.NewService(a.DB, a.PriceSource(), inventory, a.Logger)
}

// Close releases the database pool and flushes the logger
func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
	_ = a.Logger.Sync()
}
