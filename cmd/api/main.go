package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/tsanders-rh/kubecostd/internal/api"
	"github.com/tsanders-rh/kubecostd/internal/app"
	"github.com/tsanders-rh/kubecostd/internal/auth"
	"github.com/tsanders-rh/kubecostd/internal/config"
	"github.com/tsanders-rh/kubecostd/internal/kube"
	"github.com/tsanders-rh/kubecostd/internal/query"
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

	// Node inventory is optional: without it efficiency is unavailable and
	// node capacity costs fall back to observed runtime
	var inventory query.InventorySource
	if clients, err := a.KubeClients(); err != nil {
		logger.Warn("node inventory unavailable", zap.Error(err))
	} else {
		inventory = kube.NewInventory(clients.Kubernetes)
	}

	opts := []api.ServerOption{
		api.WithReadinessCheck("data_dir", func(context.Context) error {
			_, err := os.Stat(a.DB.Root())
			return err
		}),
	}
	if a.Store != nil {
		opts = append(opts, api.WithReadinessCheck("database", a.Store.Ping))
	}
	if cfg.Auth.Enabled {
		opts = append(opts, api.WithAuth(auth.NewAuth(cfg.Auth.Secret, cfg.Auth.TokenTTL)))
	} else {
		logger.Warn("API authentication is disabled")
	}

	server := api.NewServer(&cfg.Server, a.QueryService(inventory), logger, opts...)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
