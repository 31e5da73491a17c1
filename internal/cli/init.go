// Package cli provides common CLI initialization utilities.
// It consolidates the start-up steps shared by cmd/konto and cmd/konto-worker.
package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"konto/internal/backend"
	"konto/internal/cache"
	"konto/internal/config"
	"konto/internal/gateway"
	"konto/internal/log"
	"konto/internal/sheets"
	gsheet "konto/internal/sheets/google"
	mem "konto/internal/sheets/memory"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger at the configured level and makes
// it the slog default.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// OpenStore opens the configured key-value backend.
// Exits the process on failure.
func OpenStore(ctx context.Context, cfg *config.Config, logger *log.Logger) *backend.Result {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).Create(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize storage backend", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	return res
}

// NewGateway returns a banking gateway client with the configured timeout.
func NewGateway(cfg *config.Config, logger *log.Logger) *gateway.Client {
	return gateway.New(cfg.GatewayBaseURL, &http.Client{Timeout: cfg.GatewayTimeout}, logger)
}

// Snapshots is the snapshot sink and history source picked by
// configuration: Google Sheets when a spreadsheet is configured, otherwise
// an in-process store.
type Snapshots interface {
	sheets.SnapshotWriter
	sheets.HistoryReader
}

// OpenSnapshots returns the configured snapshot backend. enabled is false
// when the in-process fallback is used.
func OpenSnapshots(ctx context.Context, cfg *config.Config, logger *log.Logger) (s Snapshots, enabled bool) {
	if !cfg.SheetsEnabled() {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
		return mem.New(), false
	}
	client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSnapshotSheet, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, true
}

// StartCaches registers the given caches and starts periodic eviction.
func StartCaches(logger *log.Logger, interval time.Duration, caches ...cache.Cleaner) *cache.Manager {
	m := cache.NewManager(logger)
	for _, c := range caches {
		m.Register(c)
	}
	m.StartCleanup(interval)
	return m
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that is closed once cleanup has finished.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
			logger.Info("Context cancelled")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}
