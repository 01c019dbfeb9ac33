package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/tsanders-rh/kubecostd/internal/app"
	"github.com/tsanders-rh/kubecostd/internal/config"
	"github.com/tsanders-rh/kubecostd/internal/janitor"
	"github.com/tsanders-rh/kubecostd/internal/kube"
	"github.com/tsanders-rh/kubecostd/internal/worker"
)

func main() {
	cfg, err := config.Load(os.Getenv("KUBECOSTD_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()
	logger := a.Logger

	if err := a.DB.Writable(); err != nil {
		logger.Fatal("data directory is not writable", zap.Error(err))
	}

	clients, err := a.KubeClients()
	if err != nil {
		logger.Fatal("failed to connect to cluster", zap.Error(err))
	}
	source := kube.NewSource(clients, &cfg.Kube, logger)

	// Catch-up rollups are only safe when claims survive restarts
	if cfg.Worker.CatchUp && a.Store == nil {
		logger.Warn("catch-up disabled without a database-backed rollup ledger")
		cfg.Worker.CatchUp = false
	}

	ledger := a.Ledger()
	w := worker.NewWorker(&cfg.Worker, a.DB, source, ledger, logger, a.WorkerOptions()...)

	cleaner, _ := ledger.(janitor.LedgerCleaner)
	if !cfg.Retention.LedgerCleanup {
		cleaner = nil
	}
	j, err := a.Janitor(ctx, cleaner)
	if err != nil {
		logger.Fatal("failed to create janitor", zap.Error(err))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("worker stopped", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := j.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("janitor stopped", zap.Error(err))
		}
	}()

	logger.Info("worker and janitor started",
		zap.String("instance", cfg.Worker.InstanceID),
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.Duration("collect_interval", cfg.Worker.CollectInterval))

	<-ctx.Done()
	logger.Info("shutting down worker and janitor")
	wg.Wait()

	logger.Info("shutdown complete")
}
