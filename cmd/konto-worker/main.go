package main

import (
	"context"
	"errors"
	"os"
	"time"

	"konto/internal/accounts"
	"konto/internal/amqp"
	"konto/internal/categories"
	"konto/internal/categorize"
	"konto/internal/cli"
	"konto/internal/inference"
	"konto/internal/log"
	"konto/internal/transactions"
	"konto/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	logger.Info("Starting konto-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()
	store := cli.OpenStore(ctx, cfg, logger)
	defer func() {
		if err := store.Cleanup(); err != nil {
			logger.Error("Failed to close store", log.FieldError, err)
		}
	}()

	gw := cli.NewGateway(cfg, logger)
	agg := accounts.New(store.Store, gw, logger)
	registry := categories.NewRegistry(store.Store, logger)
	registry.SetShared(true)
	if err := registry.Load(ctx); err != nil {
		logger.Error("Failed to load categories", log.FieldError, err)
		os.Exit(1)
	}
	txs := transactions.NewService(store.Store, gw, agg, logger)

	// Left nil when no provider is configured so that jobs are acked and
	// skipped instead of failing.
	var engine worker.Categorizer
	inferrer, err := inference.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize inference provider", log.FieldError, err, log.FieldProvider, cfg.AIProvider)
		os.Exit(1)
	}
	if inferrer != nil {
		engine = categorize.NewEngine(registry, inferrer, cfg.CategorizeBatch, logger)
	}

	snapshots, _ := cli.OpenSnapshots(ctx, cfg, logger)
	w := worker.New(txs, engine, registry, agg, snapshots, logger)

	var amqpClient *amqp.Client
	if cfg.AMQPEnabled() {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
	} else {
		logger.Info("Skipping AMQP message consumption - no AMQP_URL provided")
	}

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("Failed to close AMQP client", log.FieldError, err)
			}
		}
	})

	if amqpClient != nil {
		go func() {
			if err := amqpClient.ConsumeCategorize(runCtx, w.HandleCategorize); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
		}()
	}

	go w.RunPeriodic(runCtx, cfg.RefreshInterval)

	<-done
	logger.Info("Worker stopped gracefully")
}
