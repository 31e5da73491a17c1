// Package accounts merges bank-connected and manual accounts into the
// unified account list and keeps its render cache up to date.
package accounts

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"konto/internal/core"
	"konto/internal/gateway"
	"konto/internal/log"
	"konto/internal/storage"
)

// BalanceFetcher returns the balances of one connected account.
type BalanceFetcher interface {
	FetchBalances(ctx context.Context, accountID string) ([]gateway.Balance, error)
}

// Aggregator owns the unified account list, the cash balance and the
// refreshing indicator.
//
// Mutations persist first and then publish a new list. There is no lock
// between a refresh and a concurrent mutation; whichever publishes last
// wins.
type Aggregator struct {
	store    storage.Store
	balances BalanceFetcher
	logger   *log.Logger

	accounts   atomic.Pointer[[]core.UnifiedAccount]
	cash       atomic.Pointer[decimal.Decimal]
	refreshing atomic.Int32
}

// New creates an aggregator with an empty list. Call Init to load state.
func New(store storage.Store, balances BalanceFetcher, logger *log.Logger) *Aggregator {
	a := &Aggregator{
		store:    store,
		balances: balances,
		logger:   log.OrDefault(logger, log.ComponentAggregator),
	}
	empty := []core.UnifiedAccount{}
	a.accounts.Store(&empty)
	zero := decimal.Zero
	a.cash.Store(&zero)
	return a
}

// Init loads the cash balance and the render cache so callers have data
// immediately, then runs a refresh without the indicator.
func (a *Aggregator) Init(ctx context.Context) (RefreshReport, error) {
	if cash, ok, err := storage.GetJSON[decimal.Decimal](ctx, a.store, storage.KeyCashBalance); err != nil {
		a.logger.WarnContext(ctx, "Failed to load cash balance", log.FieldError, err)
	} else if ok {
		a.cash.Store(&cash)
	}

	if cached, ok, err := storage.GetJSON[[]core.UnifiedAccount](ctx, a.store, storage.KeyUnifiedAccounts); err != nil {
		a.logger.WarnContext(ctx, "Failed to load account cache", log.FieldError, err)
	} else if ok {
		a.accounts.Store(&cached)
		a.logger.InfoContext(ctx, "Account cache loaded", log.FieldCount, len(cached))
	}

	return a.Refresh(ctx, false)
}

// Accounts returns the current unified list.
func (a *Aggregator) Accounts() []core.UnifiedAccount {
	return slices.Clone(*a.accounts.Load())
}

// Account returns one entry of the unified list.
func (a *Aggregator) Account(id string) (core.UnifiedAccount, bool) {
	for _, acc := range *a.accounts.Load() {
		if acc.ID == id {
			return acc, true
		}
	}
	return core.UnifiedAccount{}, false
}

// CashBalance returns the cash on hand.
func (a *Aggregator) CashBalance() decimal.Decimal {
	return *a.cash.Load()
}

// Totals computes the aggregate figures over the current list.
func (a *Aggregator) Totals() core.Totals {
	return core.ComputeTotals(*a.accounts.Load(), a.CashBalance())
}

// IsRefreshing reports whether a refresh with the indicator is running.
func (a *Aggregator) IsRefreshing() bool {
	return a.refreshing.Load() > 0
}

// SetCashBalance persists and publishes the cash balance.
func (a *Aggregator) SetCashBalance(ctx context.Context, amount decimal.Decimal) error {
	if err := storage.SetJSON(ctx, a.store, storage.KeyCashBalance, amount); err != nil {
		return fmt.Errorf("save cash balance: %w", err)
	}
	a.cash.Store(&amount)
	a.logger.InfoContext(ctx, "Cash balance updated", "amount", amount.String())
	return nil
}

// PatchAccount overwrites one entry of the list and the render cache
// without a refresh. It reports false when no entry has that id.
func (a *Aggregator) PatchAccount(ctx context.Context, updated core.UnifiedAccount) (bool, error) {
	return a.patch(ctx, updated.ID, func(core.UnifiedAccount) core.UnifiedAccount { return updated })
}

func (a *Aggregator) patch(ctx context.Context, id string, fn func(core.UnifiedAccount) core.UnifiedAccount) (bool, error) {
	cur := *a.accounts.Load()
	i := slices.IndexFunc(cur, func(acc core.UnifiedAccount) bool { return acc.ID == id })
	if i < 0 {
		return false, nil
	}
	next := slices.Clone(cur)
	next[i] = fn(next[i])
	if err := a.saveRenderCache(ctx, next); err != nil {
		return true, err
	}
	a.accounts.Store(&next)
	return true, nil
}

func (a *Aggregator) saveRenderCache(ctx context.Context, list []core.UnifiedAccount) error {
	if err := storage.SetJSON(ctx, a.store, storage.KeyUnifiedAccounts, list); err != nil {
		return fmt.Errorf("save account cache: %w", err)
	}
	return nil
}
