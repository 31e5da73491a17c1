package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"konto/internal/accounts"
	"konto/internal/amqp"
	"konto/internal/categories"
	"konto/internal/categorize"
	"konto/internal/cli"
	"konto/internal/connections"
	"konto/internal/debts"
	apphttp "konto/internal/http"
	"konto/internal/inference"
	"konto/internal/invest"
	"konto/internal/log"
	"konto/internal/transactions"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
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
	// The worker writes categories to the same store.
	registry.SetShared(cfg.AMQPEnabled())
	if err := registry.Load(ctx); err != nil {
		logger.Error("Failed to load categories", log.FieldError, err)
		os.Exit(1)
	}
	ledger := debts.NewLedger(store.Store, logger)
	if err := ledger.Load(ctx); err != nil {
		logger.Error("Failed to load debts", log.FieldError, err)
		os.Exit(1)
	}
	planner := invest.NewPlanner(store.Store, logger)
	if err := planner.Load(ctx); err != nil {
		logger.Error("Failed to load investment profiles", log.FieldError, err)
		os.Exit(1)
	}
	conns := connections.NewService(store.Store, gw, agg, cfg.BankListCacheTTL, logger)

	svc := apphttp.Services{
		Accounts:     agg,
		Transactions: transactions.NewService(store.Store, gw, agg, logger),
		Categories:   registry,
		Connections:  conns,
		Debts:        ledger,
		Invest:       planner,
	}

	inferrer, err := inference.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize inference provider", log.FieldError, err, log.FieldProvider, cfg.AIProvider)
		os.Exit(1)
	}
	if inferrer != nil {
		svc.Engine = categorize.NewEngine(registry, inferrer, cfg.CategorizeBatch, logger)
	} else {
		logger.Info("Auto-categorization disabled - no AI provider configured")
	}

	if cfg.AMQPEnabled() {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		svc.Queue = amqpClient
		logger.Info("Categorization jobs go to the worker", "queue", cfg.AMQPQueue)
	}

	if snapshots, enabled := cli.OpenSnapshots(ctx, cfg, logger); enabled {
		svc.History = snapshots
	}

	caches := cli.StartCaches(logger, 10*time.Minute, conns.BankCache())
	defer caches.Stop()

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{RateLimitPerMinute: cfg.RateLimitPerMinute}, logger)

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	go func() {
		report, err := agg.Init(shutdownCtx)
		if err != nil {
			logger.Error("Initial account refresh failed", log.FieldError, err)
		} else if report.Partial() {
			logger.Warn("Initial account refresh incomplete", "failures", len(report.Failures))
		}
		srv.MarkReady()
	}()

	logger.Info("Starting konto server", "port", cfg.Port, log.FieldBackend, cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
