package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"konto/internal/accounts"
	"konto/internal/amqp"
	"konto/internal/categorize"
	"konto/internal/core"
	"konto/internal/log"
	"konto/internal/sheets/memory"
)

type fakeTxs struct {
	txs []core.Transaction
	err error
	got string
}

func (f *fakeTxs) ForCategorization(_ context.Context, accountID string) ([]core.Transaction, error) {
	f.got = accountID
	return f.txs, f.err
}

type fakeEngine struct {
	sum   categorize.Summary
	err   error
	calls int
}

func (f *fakeEngine) Run(_ context.Context, txs []core.Transaction) (categorize.Summary, error) {
	f.calls++
	return f.sum, f.err
}

type fakeLoader struct {
	loads int
	err   error
}

func (f *fakeLoader) Load(context.Context) error {
	f.loads++
	return f.err
}

type fakeAccounts struct {
	list      []core.UnifiedAccount
	cash      decimal.Decimal
	err       error
	refreshes int
	report    accounts.RefreshReport
}

func (f *fakeAccounts) Refresh(context.Context, bool) (accounts.RefreshReport, error) {
	f.refreshes++
	return f.report, f.err
}

func (f *fakeAccounts) Accounts() []core.UnifiedAccount { return f.list }

func (f *fakeAccounts) Totals() core.Totals { return core.ComputeTotals(f.list, f.cash) }

type failingWriter struct{}

func (failingWriter) AppendSnapshot(context.Context, core.Snapshot) (string, error) {
	return "", errors.New("quota exceeded")
}

func msg(accountID string) *amqp.CategorizeMessage {
	return amqp.NewCategorizeMessage(accountID, "req-1")
}

func TestHandleCategorize(t *testing.T) {
	tests := []struct {
		name      string
		txErr     error
		loadErr   error
		engine    *fakeEngine
		wantErr   bool
		wantCalls int
	}{
		{"success", nil, nil, &fakeEngine{sum: categorize.Summary{Eligible: 2, Categorized: 2}}, false, 1},
		{"batch failures are acknowledged", nil, nil, &fakeEngine{sum: categorize.Summary{
			Eligible: 2, Failures: []*categorize.BatchError{{Batch: 1, Size: 2, Err: errors.New("boom")}},
		}}, false, 1},
		{"storage error requeues", errors.New("db down"), nil, &fakeEngine{}, true, 0},
		{"reload error requeues", nil, errors.New("db down"), &fakeEngine{}, true, 0},
		{"cancelled run requeues", nil, nil, &fakeEngine{err: context.Canceled}, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs := &fakeTxs{err: tt.txErr}
			loader := &fakeLoader{err: tt.loadErr}
			w := New(txs, tt.engine, loader, &fakeAccounts{}, nil, log.Discard())

			err := w.HandleCategorize(context.Background(), msg("acc-1"))
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleCategorize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.engine.calls != tt.wantCalls {
				t.Errorf("engine called %d times, want %d", tt.engine.calls, tt.wantCalls)
			}
			if loader.loads != 1 {
				t.Errorf("expected registry reload, got %d", loader.loads)
			}
			if tt.loadErr == nil && txs.got != "acc-1" {
				t.Errorf("transactions loaded for %q", txs.got)
			}
		})
	}
}

func TestHandleCategorizeWithoutEngine(t *testing.T) {
	w := New(&fakeTxs{}, nil, nil, &fakeAccounts{}, nil, log.Discard())
	if err := w.HandleCategorize(context.Background(), msg("acc-1")); err != nil {
		t.Fatalf("expected message to be dropped, got %v", err)
	}
}

func TestRefreshAndExport(t *testing.T) {
	accts := &fakeAccounts{
		list: []core.UnifiedAccount{{ID: "a", Name: "Giro", Balance: decimal.NewFromInt(100), Currency: "EUR"}},
		cash: decimal.NewFromInt(20),
	}
	store := memory.New()
	w := New(&fakeTxs{}, nil, nil, accts, store, log.Discard())
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	ref, err := w.RefreshAndExport(context.Background())
	if err != nil {
		t.Fatalf("RefreshAndExport: %v", err)
	}
	if ref != "mem:1-3" {
		t.Errorf("ref = %q", ref)
	}
	snaps := store.Snapshots()
	if len(snaps) != 1 || !snaps[0].TakenAt.Equal(fixed) {
		t.Fatalf("unexpected snapshots %+v", snaps)
	}
	if !snaps[0].Totals.NetWorth.Equal(decimal.NewFromInt(120)) {
		t.Errorf("net worth = %s", snaps[0].Totals.NetWorth)
	}
	if accts.refreshes != 1 {
		t.Errorf("expected one refresh, got %d", accts.refreshes)
	}
}

func TestRefreshAndExportErrors(t *testing.T) {
	t.Run("refresh failure skips export", func(t *testing.T) {
		store := memory.New()
		w := New(nil, nil, nil, &fakeAccounts{err: errors.New("store down")}, store, log.Discard())
		if _, err := w.RefreshAndExport(context.Background()); err == nil {
			t.Fatal("expected error")
		}
		if len(store.Snapshots()) != 0 {
			t.Error("nothing should be exported")
		}
	})
	t.Run("export failure", func(t *testing.T) {
		accts := &fakeAccounts{}
		w := New(nil, nil, nil, accts, failingWriter{}, log.Discard())
		if _, err := w.RefreshAndExport(context.Background()); err == nil {
			t.Fatal("expected error")
		}
		if accts.refreshes != 1 {
			t.Error("refresh should still run")
		}
	})
	t.Run("no writer", func(t *testing.T) {
		w := New(nil, nil, nil, &fakeAccounts{}, nil, log.Discard())
		ref, err := w.RefreshAndExport(context.Background())
		if err != nil || ref != "" {
			t.Fatalf("unexpected result %q %v", ref, err)
		}
	})
}

func TestRunPeriodicStopsOnCancel(t *testing.T) {
	accts := &fakeAccounts{}
	w := New(nil, nil, nil, accts, nil, log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.RunPeriodic(ctx, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunPeriodic did not return after cancel")
	}
}
