// Package transactions loads connected-account transactions through the
// gateway and keeps the transaction lists of manual accounts.
package transactions

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"konto/internal/core"
	"konto/internal/gateway"
	"konto/internal/log"
	"konto/internal/storage"
)

// maxContinuationPages bounds the pages fetched after the first one.
const maxContinuationPages = 5

// Gateway is the part of the gateway client this package needs.
type Gateway interface {
	FetchTransactions(ctx context.Context, accountID string, q gateway.TransactionsQuery) (gateway.TransactionsPage, error)
	FetchBalances(ctx context.Context, accountID string) ([]gateway.Balance, error)
}

// Accounts is the part of the aggregator this package updates.
type Accounts interface {
	Account(id string) (core.UnifiedAccount, bool)
	PatchAccount(ctx context.Context, updated core.UnifiedAccount) (bool, error)
	AdjustManualBalance(ctx context.Context, id string, delta decimal.Decimal) error
}

// Service serves the transactions of one account at a time.
type Service struct {
	store    storage.Store
	gateway  Gateway
	accounts Accounts
	logger   *log.Logger
	now      func() time.Time
}

// NewService wires a transaction service.
func NewService(store storage.Store, gw Gateway, accounts Accounts, logger *log.Logger) *Service {
	return &Service{
		store:    store,
		gateway:  gw,
		accounts: accounts,
		logger:   log.OrDefault(logger, log.ComponentTransaction),
		now:      time.Now,
	}
}

// Connected fetches transactions of a connected account in [from, to].
//
// The first page must succeed. Up to five continuation pages follow; an
// error on one of them ends paging and keeps what was collected. A
// non-empty result is cached and the account balance is re-read as a side
// channel.
func (s *Service) Connected(ctx context.Context, accountID string, from, to time.Time) ([]core.Transaction, error) {
	q := gateway.TransactionsQuery{DateFrom: from, DateTo: to}
	page, err := s.gateway.FetchTransactions(ctx, accountID, q)
	if err != nil {
		return nil, err
	}
	txs := page.Transactions

	for pages := 0; page.ContinuationKey != "" && pages < maxContinuationPages; pages++ {
		q.ContinuationKey = page.ContinuationKey
		next, err := s.gateway.FetchTransactions(ctx, accountID, q)
		if err != nil {
			s.logger.WarnContext(ctx, "Stopped paging after error",
				log.FieldAccountID, accountID, "pages", pages+1, log.FieldError, err)
			break
		}
		txs = append(txs, next.Transactions...)
		page = next
	}

	core.SortByDateDesc(txs)
	if len(txs) == 0 {
		return txs, nil
	}

	if err := storage.SetJSON(ctx, s.store, storage.ConnectedTransactionsKey(accountID), txs); err != nil {
		s.logger.WarnContext(ctx, "Failed to cache transactions", log.FieldAccountID, accountID, log.FieldError, err)
	}
	s.syncBalance(ctx, accountID)
	return txs, nil
}

// syncBalance patches the unified entry when the gateway reports a
// different balance. Failures are only logged.
func (s *Service) syncBalance(ctx context.Context, accountID string) {
	current, ok := s.accounts.Account(accountID)
	if !ok {
		return
	}
	balances, err := s.gateway.FetchBalances(ctx, accountID)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to fetch fresh balance", log.FieldAccountID, accountID, log.FieldError, err)
		return
	}
	main, ok := gateway.MainBalance(balances)
	if !ok {
		return
	}
	amount, err := main.BalanceAmount.Value()
	if err != nil || amount.Equal(current.Balance) {
		return
	}

	current.Balance = amount
	if main.BalanceAmount.Currency != "" {
		current.Currency = main.BalanceAmount.Currency
	}
	current.Error = ""
	current.Loading = false
	if _, err := s.accounts.PatchAccount(ctx, current); err != nil {
		s.logger.WarnContext(ctx, "Failed to patch account balance", log.FieldAccountID, accountID, log.FieldError, err)
	}
}

// Cached returns the last fetched list of a connected account. Only the
// start date filters, so pending and future-dated entries stay visible.
func (s *Service) Cached(ctx context.Context, accountID string, from time.Time) ([]core.Transaction, error) {
	txs, _, err := storage.GetJSON[[]core.Transaction](ctx, s.store, storage.ConnectedTransactionsKey(accountID))
	if err != nil {
		return nil, fmt.Errorf("load cached transactions: %w", err)
	}
	return core.FilterFrom(txs, from), nil
}

// ForCategorization returns every known transaction of an account without
// calling the gateway.
func (s *Service) ForCategorization(ctx context.Context, accountID string) ([]core.Transaction, error) {
	if core.IsManualAccountID(accountID) {
		return s.manual(ctx, accountID)
	}
	return s.Cached(ctx, accountID, time.Time{})
}

// Manual returns the transactions of a manual account in [from, to].
func (s *Service) Manual(ctx context.Context, accountID string, from, to time.Time) ([]core.Transaction, error) {
	if !core.IsManualAccountID(accountID) {
		return nil, core.ErrNotManual
	}
	txs, err := s.manual(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return core.FilterRange(txs, from, to), nil
}

// AddManual records a new transaction newest-first and moves the account
// balance by its amount.
func (s *Service) AddManual(ctx context.Context, accountID string, e core.ManualEntry) (core.Transaction, error) {
	if !core.IsManualAccountID(accountID) {
		return core.Transaction{}, core.ErrNotManual
	}
	if err := e.Validate(); err != nil {
		return core.Transaction{}, err
	}
	txs, err := s.manual(ctx, accountID)
	if err != nil {
		return core.Transaction{}, err
	}

	tx := core.NewManualTransaction(e, s.now())
	if err := s.saveManual(ctx, accountID, slices.Insert(txs, 0, tx)); err != nil {
		return core.Transaction{}, err
	}
	if err := s.accounts.AdjustManualBalance(ctx, accountID, e.Amount); err != nil {
		return tx, fmt.Errorf("adjust balance: %w", err)
	}
	s.logger.InfoContext(ctx, "Manual transaction added", log.FieldAccountID, accountID, log.FieldTxID, tx.TransactionID)
	return tx, nil
}

// UpdateManual replaces title, amount and optionally the date of a manual
// transaction. The balance moves by the amount difference.
func (s *Service) UpdateManual(ctx context.Context, accountID, txID string, e core.ManualEntry) (core.Transaction, error) {
	if !core.IsManualAccountID(accountID) {
		return core.Transaction{}, core.ErrNotManual
	}
	if err := e.Validate(); err != nil {
		return core.Transaction{}, err
	}
	txs, err := s.manual(ctx, accountID)
	if err != nil {
		return core.Transaction{}, err
	}
	i := slices.IndexFunc(txs, func(tx core.Transaction) bool { return tx.TransactionID == txID })
	if i < 0 {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", txID, core.ErrNotFound)
	}

	old, _ := txs[i].TransactionAmount.Value()
	txs[i] = txs[i].WithEntry(e)
	if err := s.saveManual(ctx, accountID, txs); err != nil {
		return core.Transaction{}, err
	}
	if err := s.accounts.AdjustManualBalance(ctx, accountID, e.Amount.Sub(old)); err != nil {
		return txs[i], fmt.Errorf("adjust balance: %w", err)
	}
	return txs[i], nil
}

// DeleteManual removes a manual transaction and reverses its amount.
func (s *Service) DeleteManual(ctx context.Context, accountID, txID string) error {
	if !core.IsManualAccountID(accountID) {
		return core.ErrNotManual
	}
	txs, err := s.manual(ctx, accountID)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(txs, func(tx core.Transaction) bool { return tx.TransactionID == txID })
	if i < 0 {
		return fmt.Errorf("transaction %s: %w", txID, core.ErrNotFound)
	}

	amount, _ := txs[i].TransactionAmount.Value()
	if err := s.saveManual(ctx, accountID, slices.Delete(txs, i, i+1)); err != nil {
		return err
	}
	if err := s.accounts.AdjustManualBalance(ctx, accountID, amount.Neg()); err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	s.logger.InfoContext(ctx, "Manual transaction deleted", log.FieldAccountID, accountID, log.FieldTxID, txID)
	return nil
}

func (s *Service) manual(ctx context.Context, accountID string) ([]core.Transaction, error) {
	txs, _, err := storage.GetJSON[[]core.Transaction](ctx, s.store, storage.ManualTransactionsKey(accountID))
	if err != nil {
		return nil, fmt.Errorf("load manual transactions: %w", err)
	}
	return txs, nil
}

func (s *Service) saveManual(ctx context.Context, accountID string, txs []core.Transaction) error {
	if txs == nil {
		txs = []core.Transaction{}
	}
	if err := storage.SetJSON(ctx, s.store, storage.ManualTransactionsKey(accountID), txs); err != nil {
		return fmt.Errorf("save manual transactions: %w", err)
	}
	return nil
}
