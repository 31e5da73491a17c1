package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountSource tells where a unified account comes from.
type AccountSource string

const (
	SourceConnected AccountSource = "connected"
	SourceManual    AccountSource = "manual"
)

// AccountCategory groups accounts on the overview screen.
type AccountCategory string

const (
	CategoryGiro    AccountCategory = "Giro"
	CategorySavings AccountCategory = "Savings"
	CategoryStock   AccountCategory = "Stock"
)

// DefaultAccountCategory applies to every account without an override.
const DefaultAccountCategory = CategoryGiro

// ManualAccountPrefix keeps manual ids disjoint from upstream account uids.
const ManualAccountPrefix = "manual_"

const defaultManualBankName = "Manual Account"

// Valid reports whether c is one of the known account categories.
func (c AccountCategory) Valid() bool {
	switch c {
	case CategoryGiro, CategorySavings, CategoryStock:
		return true
	}
	return false
}

// OrDefault returns c, or Giro when c is empty.
func (c AccountCategory) OrDefault() AccountCategory {
	if c == "" {
		return DefaultAccountCategory
	}
	return c
}

// AccountRef is the upstream account identifier block.
type AccountRef struct {
	IBAN string `json:"iban,omitempty"`
}

// UpstreamAccount is an account descriptor as delivered by the banking gateway.
type UpstreamAccount struct {
	UID             string      `json:"uid"`
	AccountID       *AccountRef `json:"account_id,omitempty"`
	Name            string      `json:"name,omitempty"`
	Currency        string      `json:"currency,omitempty"`
	Product         string      `json:"product,omitempty"`
	CashAccountType string      `json:"cash_account_type,omitempty"`
}

// DisplayName falls back from the account name to the product name.
func (a UpstreamAccount) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	if a.Product != "" {
		return a.Product
	}
	return "Account"
}

func (a UpstreamAccount) IBAN() string {
	if a.AccountID == nil {
		return ""
	}
	return a.AccountID.IBAN
}

// CurrencyOrDefault returns the upstream currency or EUR.
func (a UpstreamAccount) CurrencyOrDefault() string {
	if a.Currency == "" {
		return DefaultCurrency
	}
	return a.Currency
}

// Bank is an institution that can be linked through the gateway.
type Bank struct {
	Name    string `json:"name"`
	Country string `json:"country"`
}

// LinkedSession records one completed bank authorization. It is never
// modified after creation, only removed.
type LinkedSession struct {
	SessionID   string            `json:"sessionId"`
	BankName    string            `json:"bankName"`
	BankCountry string            `json:"bankCountry"`
	Accounts    []UpstreamAccount `json:"accounts"`
	ConnectedAt time.Time         `json:"connectedAt"`
}

// ManualAccount is an account the user maintains by hand.
type ManualAccount struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Balance  decimal.Decimal `json:"balance"`
	Category AccountCategory `json:"category"`
	Currency string          `json:"currency"`
	BankName string          `json:"bankName,omitempty"`
}

// NewManualAccountID returns a fresh id carrying the manual prefix.
func NewManualAccountID() string {
	return ManualAccountPrefix + uuid.NewString()
}

// IsManualAccountID reports whether id belongs to the manual namespace.
func IsManualAccountID(id string) bool {
	return strings.HasPrefix(id, ManualAccountPrefix)
}

// Validate checks the user-supplied fields of a manual account.
func (m ManualAccount) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return ErrEmptyName
	}
	if m.Category != "" && !m.Category.Valid() {
		return ErrInvalidCategory
	}
	return nil
}

// Unified converts the manual account to its display form.
func (m ManualAccount) Unified() UnifiedAccount {
	bank := m.BankName
	if bank == "" {
		bank = defaultManualBankName
	}
	currency := m.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	return UnifiedAccount{
		ID:       m.ID,
		Type:     SourceManual,
		Name:     m.Name,
		Category: m.Category.OrDefault(),
		Balance:  m.Balance,
		Currency: currency,
		BankName: bank,
	}
}

// AccountOverride holds the user-editable fields of a connected account.
type AccountOverride struct {
	Category AccountCategory `json:"category,omitempty"`
}

// AccountMetadata maps connected account ids to their overrides. Accounts
// without an entry use the default category.
type AccountMetadata map[string]AccountOverride

// CategoryFor returns the override category for id or the default.
func (m AccountMetadata) CategoryFor(id string) AccountCategory {
	if o, ok := m[id]; ok {
		return o.Category.OrDefault()
	}
	return DefaultAccountCategory
}

// UnifiedAccount is the merged display representation of either source.
// Loading and Error are only ever set on connected accounts.
type UnifiedAccount struct {
	ID       string           `json:"id"`
	Type     AccountSource    `json:"type"`
	Name     string           `json:"name"`
	Category AccountCategory  `json:"category"`
	Balance  decimal.Decimal  `json:"balance"`
	Currency string           `json:"currency"`
	BankName string           `json:"bankName"`
	Account  *UpstreamAccount `json:"account,omitempty"`
	Loading  bool             `json:"loading,omitempty"`
	Error    string           `json:"error,omitempty"`
	IBAN     string           `json:"iban,omitempty"`
}

// Totals are the aggregate figures shown on the overview.
type Totals struct {
	Bank        decimal.Decimal `json:"bank"`
	Cash        decimal.Decimal `json:"cash"`
	NetWorth    decimal.Decimal `json:"netWorth"`
	Assets      decimal.Decimal `json:"assets"`
	Liabilities decimal.Decimal `json:"liabilities"`
}

// ComputeTotals sums account balances and cash. Positive balances count as
// assets and negative ones as liabilities by absolute value.
func ComputeTotals(accounts []UnifiedAccount, cash decimal.Decimal) Totals {
	t := Totals{Cash: cash}
	split := func(d decimal.Decimal) {
		if d.IsNegative() {
			t.Liabilities = t.Liabilities.Add(d.Abs())
		} else {
			t.Assets = t.Assets.Add(d)
		}
	}
	split(cash)
	for _, a := range accounts {
		t.Bank = t.Bank.Add(a.Balance)
		split(a.Balance)
	}
	t.NetWorth = t.Bank.Add(cash)
	return t
}

// Snapshot is a point-in-time copy of the unified view used for exports.
type Snapshot struct {
	TakenAt  time.Time        `json:"takenAt"`
	Accounts []UnifiedAccount `json:"accounts"`
	Totals   Totals           `json:"totals"`
}
