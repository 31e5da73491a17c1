// Package worker runs the background jobs of konto: categorization
// requests coming off the queue and the periodic refresh and snapshot
// export.
package worker

import (
	"context"
	"fmt"
	"time"

	"konto/internal/accounts"
	"konto/internal/amqp"
	"konto/internal/categorize"
	"konto/internal/core"
	"konto/internal/log"
	"konto/internal/sheets"
)

// Transactions yields what the categorizer should look at for an account.
type Transactions interface {
	ForCategorization(ctx context.Context, accountID string) ([]core.Transaction, error)
}

type Categorizer interface {
	Run(ctx context.Context, txs []core.Transaction) (categorize.Summary, error)
}

// Loader reloads in-memory state written by another process.
type Loader interface {
	Load(ctx context.Context) error
}

// Accounts is the aggregator as seen by the export job.
type Accounts interface {
	Refresh(ctx context.Context, showIndicator bool) (accounts.RefreshReport, error)
	Accounts() []core.UnifiedAccount
	Totals() core.Totals
}

type Worker struct {
	txs      Transactions
	engine   Categorizer
	registry Loader
	accounts Accounts
	writer   sheets.SnapshotWriter
	logger   *log.Logger
	now      func() time.Time
}

// New wires a worker. registry may be nil when it is never stale; writer
// may be nil to refresh without exporting.
func New(txs Transactions, engine Categorizer, registry Loader, accts Accounts, writer sheets.SnapshotWriter, logger *log.Logger) *Worker {
	return &Worker{
		txs:      txs,
		engine:   engine,
		registry: registry,
		accounts: accts,
		writer:   writer,
		logger:   log.OrDefault(logger, log.ComponentWorker),
		now:      time.Now,
	}
}

// HandleCategorize processes one categorization message. Storage errors are
// returned so the message is requeued; failed inference batches are logged
// and the message is acknowledged.
func (w *Worker) HandleCategorize(ctx context.Context, msg *amqp.CategorizeMessage) error {
	logger := w.logger.With(log.NewFields().
		WithOperation(log.OpCategorize).
		WithAccount(msg.AccountID).
		WithRequestID(msg.RequestID).
		ToSlice()...)

	if w.engine == nil {
		logger.WarnContext(ctx, "No inference provider configured, dropping categorize message")
		return nil
	}
	if w.registry != nil {
		if err := w.registry.Load(ctx); err != nil {
			return fmt.Errorf("reload categories: %w", err)
		}
	}

	txs, err := w.txs.ForCategorization(ctx, msg.AccountID)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}

	sum, err := w.engine.Run(ctx, txs)
	if err != nil {
		return fmt.Errorf("categorize: %w", err)
	}
	if ferr := sum.Err(); ferr != nil {
		logger.WarnContext(ctx, "Categorization partially failed", log.NewFields().WithError(ferr).ToSlice()...)
	}
	logger.InfoContext(ctx, sum.Message())
	return nil
}

// RefreshAndExport refreshes every balance and appends the resulting
// snapshot. An export failure is returned after the refresh has been
// applied.
func (w *Worker) RefreshAndExport(ctx context.Context) (string, error) {
	start := w.now()
	report, err := w.accounts.Refresh(ctx, false)
	if err != nil {
		return "", fmt.Errorf("refresh accounts: %w", err)
	}
	if report.Partial() {
		w.logger.WarnContext(ctx, "Refresh finished with failed accounts",
			log.FieldCount, len(report.Failures))
	}

	if w.writer == nil {
		return "", nil
	}
	snap := core.Snapshot{
		TakenAt:  start.UTC(),
		Accounts: w.accounts.Accounts(),
		Totals:   w.accounts.Totals(),
	}
	ref, err := w.writer.AppendSnapshot(ctx, snap)
	if err != nil {
		return "", fmt.Errorf("export snapshot: %w", err)
	}
	w.logger.InfoContext(ctx, "Snapshot exported",
		log.FieldOperation, log.OpExport,
		log.FieldSnapshotRef, ref,
		log.FieldCount, len(snap.Accounts),
		log.FieldDuration, time.Since(start).Milliseconds())
	return ref, nil
}

// RunPeriodic calls RefreshAndExport once right away and then every
// interval until ctx ends. Failures are logged and the loop continues.
func (w *Worker) RunPeriodic(ctx context.Context, interval time.Duration) {
	tick := func() {
		if _, err := w.RefreshAndExport(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "Periodic refresh failed", log.FieldError, err)
		}
	}
	tick()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}
