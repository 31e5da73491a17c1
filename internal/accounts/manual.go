package accounts

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"konto/internal/core"
	"konto/internal/log"
	"konto/internal/storage"
)

// ManualAccountUpdate is a partial update of a manual account.
type ManualAccountUpdate struct {
	Name     *string               `json:"name,omitempty"`
	Balance  *decimal.Decimal      `json:"balance,omitempty"`
	Category *core.AccountCategory `json:"category,omitempty"`
	Currency *string               `json:"currency,omitempty"`
	BankName *string               `json:"bankName,omitempty"`
}

// ManualAccounts returns the stored manual accounts.
func (a *Aggregator) ManualAccounts(ctx context.Context) ([]core.ManualAccount, error) {
	list, _, err := storage.GetJSON[[]core.ManualAccount](ctx, a.store, storage.KeyManualAccounts)
	if err != nil {
		return nil, fmt.Errorf("load manual accounts: %w", err)
	}
	return list, nil
}

func (a *Aggregator) saveManualAccounts(ctx context.Context, list []core.ManualAccount) error {
	if list == nil {
		list = []core.ManualAccount{}
	}
	if err := storage.SetJSON(ctx, a.store, storage.KeyManualAccounts, list); err != nil {
		return fmt.Errorf("save manual accounts: %w", err)
	}
	return nil
}

// AddManualAccount stores a new manual account and refreshes the list. The
// id is always generated here.
func (a *Aggregator) AddManualAccount(ctx context.Context, m core.ManualAccount) (core.ManualAccount, RefreshReport, error) {
	if err := m.Validate(); err != nil {
		return core.ManualAccount{}, RefreshReport{}, err
	}
	m.ID = core.NewManualAccountID()
	m.Name = strings.TrimSpace(m.Name)
	m.Category = m.Category.OrDefault()
	if m.Currency == "" {
		m.Currency = core.DefaultCurrency
	}

	list, err := a.ManualAccounts(ctx)
	if err != nil {
		return core.ManualAccount{}, RefreshReport{}, err
	}
	if err := a.saveManualAccounts(ctx, append(list, m)); err != nil {
		return core.ManualAccount{}, RefreshReport{}, err
	}
	a.logger.InfoContext(ctx, "Manual account added", log.FieldAccountID, m.ID, "name", m.Name)

	report, err := a.Refresh(ctx, false)
	return m, report, err
}

// UpdateManualAccount applies a partial update and refreshes the list.
func (a *Aggregator) UpdateManualAccount(ctx context.Context, id string, u ManualAccountUpdate) (core.ManualAccount, error) {
	list, err := a.ManualAccounts(ctx)
	if err != nil {
		return core.ManualAccount{}, err
	}
	i := slices.IndexFunc(list, func(m core.ManualAccount) bool { return m.ID == id })
	if i < 0 {
		return core.ManualAccount{}, fmt.Errorf("manual account %s: %w", id, core.ErrNotFound)
	}

	m := list[i]
	if u.Name != nil {
		m.Name = strings.TrimSpace(*u.Name)
	}
	if u.Balance != nil {
		m.Balance = *u.Balance
	}
	if u.Category != nil {
		m.Category = *u.Category
	}
	if u.Currency != nil && *u.Currency != "" {
		m.Currency = *u.Currency
	}
	if u.BankName != nil {
		m.BankName = *u.BankName
	}
	if err := m.Validate(); err != nil {
		return core.ManualAccount{}, err
	}

	list[i] = m
	if err := a.saveManualAccounts(ctx, list); err != nil {
		return core.ManualAccount{}, err
	}
	_, err = a.Refresh(ctx, false)
	return m, err
}

// DeleteManualAccount removes the account and its stored transactions,
// then refreshes the list.
func (a *Aggregator) DeleteManualAccount(ctx context.Context, id string) (RefreshReport, error) {
	list, err := a.ManualAccounts(ctx)
	if err != nil {
		return RefreshReport{}, err
	}
	next := slices.DeleteFunc(slices.Clone(list), func(m core.ManualAccount) bool { return m.ID == id })
	if len(next) == len(list) {
		return RefreshReport{}, fmt.Errorf("manual account %s: %w", id, core.ErrNotFound)
	}

	if err := a.saveManualAccounts(ctx, next); err != nil {
		return RefreshReport{}, err
	}
	if err := a.store.Remove(ctx, storage.ManualTransactionsKey(id)); err != nil {
		a.logger.WarnContext(ctx, "Failed to remove manual transactions", log.FieldAccountID, id, log.FieldError, err)
	}
	a.logger.InfoContext(ctx, "Manual account deleted", log.FieldAccountID, id)

	return a.Refresh(ctx, false)
}

// AdjustManualBalance adds delta to a manual account's balance and patches
// the list entry in place.
func (a *Aggregator) AdjustManualBalance(ctx context.Context, id string, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	list, err := a.ManualAccounts(ctx)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(list, func(m core.ManualAccount) bool { return m.ID == id })
	if i < 0 {
		return fmt.Errorf("manual account %s: %w", id, core.ErrNotFound)
	}
	list[i].Balance = list[i].Balance.Add(delta)
	if err := a.saveManualAccounts(ctx, list); err != nil {
		return err
	}

	balance := list[i].Balance
	_, err = a.patch(ctx, id, func(acc core.UnifiedAccount) core.UnifiedAccount {
		acc.Balance = balance
		return acc
	})
	return err
}

// SetAccountCategory changes the category of a manual or connected
// account. Connected overrides live in the account metadata.
func (a *Aggregator) SetAccountCategory(ctx context.Context, id string, category core.AccountCategory) error {
	if !category.Valid() {
		return core.ErrInvalidCategory
	}

	if core.IsManualAccountID(id) {
		list, err := a.ManualAccounts(ctx)
		if err != nil {
			return err
		}
		i := slices.IndexFunc(list, func(m core.ManualAccount) bool { return m.ID == id })
		if i < 0 {
			return fmt.Errorf("manual account %s: %w", id, core.ErrNotFound)
		}
		list[i].Category = category
		if err := a.saveManualAccounts(ctx, list); err != nil {
			return err
		}
	} else {
		meta, _, err := storage.GetJSON[core.AccountMetadata](ctx, a.store, storage.KeyAccountMetadata)
		if err != nil {
			return fmt.Errorf("load account metadata: %w", err)
		}
		if meta == nil {
			meta = core.AccountMetadata{}
		}
		o := meta[id]
		o.Category = category
		meta[id] = o
		if err := storage.SetJSON(ctx, a.store, storage.KeyAccountMetadata, meta); err != nil {
			return fmt.Errorf("save account metadata: %w", err)
		}
	}

	_, err := a.patch(ctx, id, func(acc core.UnifiedAccount) core.UnifiedAccount {
		acc.Category = category
		return acc
	})
	return err
}
