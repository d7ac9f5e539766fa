package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"kharcha/internal/amqp"
	"kharcha/internal/backend"
	"kharcha/internal/config"
	applog "kharcha/internal/log"
	"kharcha/internal/notify"
	"kharcha/internal/services"
	"kharcha/internal/storage"
	"kharcha/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := applog.Setup(applog.ParseLevel(cfg.LogLevel))

	logger.Info("Starting kharcha-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	bus := notify.NewBus()
	store, err := storage.Open(cfg.SQLiteDBPath, bus)
	if err != nil {
		logger.Error("Failed to open local store", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer store.Close()

	client, cleanup, err := backend.New(applog.Component(logger, "backend"), backend.Config{
		Type:           backend.BackendType(cfg.DataBackend),
		PostgresDSN:    cfg.PostgresDSN,
		RequestTimeout: cfg.BackendRequestTimeout,
	})
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer cleanup()

	syncTime := storage.NewSyncTimeFile(cfg.DataDir)
	syncService := services.NewSyncService(store, client, syncTime)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// On startup, download reference data and historical expenses if the
	// local store is empty.
	logger.Info("Checking bootstrap state...")
	if err := syncService.Bootstrap(ctx); err != nil {
		logger.Error("Bootstrap failed", "error", err)
		// Don't exit - pending pushes can still proceed
	}

	syncWorker := worker.NewSyncWorker(syncService, worker.Config{
		PollInterval: cfg.SyncInterval,
	})
	if err := syncWorker.Start(ctx); err != nil {
		logger.Error("Failed to start sync worker", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	// AMQP consumption is optional: without it the worker relies on its
	// periodic sweep alone.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		g.Go(func() error {
			err := amqpClient.ConsumePushRequests(gctx, func(msg *amqp.PushRequestMessage) error {
				return syncWorker.HandlePushRequest(gctx, msg)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		logger.Info("AMQP disabled - relying on periodic sweep only")
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker failed", "error", err)
	}

	logger.Info("Shutting down worker...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := syncWorker.Stop(shutdownCtx); err != nil {
		logger.Error("Sync worker stop error", "error", err)
	}
	logger.Info("Worker shutdown complete")
}
