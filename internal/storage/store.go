// Package storage provides the persistent key-value store every konto
// service writes through. Values are JSON documents under string keys.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Keys used by the services.
const (
	KeySessions        = "enablebanking_sessions"
	KeyManualAccounts  = "manual_accounts"
	KeyAccountMetadata = "account_metadata"
	KeyCashBalance     = "user_cash_balance"
	KeyUnifiedAccounts = "cached_unified_accounts"
	KeyCategories      = "tx_categories"
	KeyCategoryMap     = "tx_category_map"
	KeyDebtEntities    = "debt_entities"
	KeyDebtItems       = "debt_items"
	KeyInvestProfiles  = "invest_profiles"
	manualTxPrefix     = "manual_transactions_"
	connectedTxPrefix  = "connected_transactions_"
)

// ManualTransactionsKey holds the transactions of one manual account.
func ManualTransactionsKey(accountID string) string {
	return manualTxPrefix + accountID
}

// ConnectedTransactionsKey holds the cached transactions of one connected account.
func ConnectedTransactionsKey(accountID string) string {
	return connectedTxPrefix + accountID
}

// Store is an asynchronous string key-value store. Implementations must be
// safe for concurrent use and report every failure as *Error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Error is a read or write failure against the store.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Key: key, Err: err}
}

// GetJSON reads key and decodes it into T. ok is false when the key is
// absent, in which case the zero T is returned.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var out T
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, false, wrap("decode", key, err)
	}
	return out, true, nil
}

// SetJSON encodes v and writes it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return wrap("encode", key, err)
	}
	return s.Set(ctx, key, string(b))
}
