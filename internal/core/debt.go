package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// EntityType distinguishes people from institutions in the debt ledger.
type EntityType string

const (
	EntityPerson      EntityType = "person"
	EntityInstitution EntityType = "institution"
)

func (t EntityType) Valid() bool {
	return t == EntityPerson || t == EntityInstitution
}

// DebtType is the direction of a debt.
type DebtType string

const (
	IOwe   DebtType = "I_OWE"
	OwesMe DebtType = "OWES_ME"
)

func (t DebtType) Valid() bool {
	return t == IOwe || t == OwesMe
}

// DebtEntity is a counterparty in the debt ledger.
type DebtEntity struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type EntityType `json:"type"`
}

// Validate checks name and type.
func (e DebtEntity) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if !e.Type.Valid() {
		return ErrInvalidEntity
	}
	return nil
}

// DebtItem is a single debt. Amount is always positive; Type carries the sign.
type DebtItem struct {
	ID          string          `json:"id"`
	EntityID    string          `json:"entityId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
	Type        DebtType        `json:"type"`
}

// Validate checks amount, type and entity reference.
func (d DebtItem) Validate() error {
	if d.EntityID == "" {
		return ErrNotFound
	}
	if !d.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !d.Type.Valid() {
		return ErrInvalidDebtType
	}
	return nil
}

// Signed returns the amount as seen from the user: positive when owed to
// them, negative when they owe.
func (d DebtItem) Signed() decimal.Decimal {
	if d.Type == IOwe {
		return d.Amount.Neg()
	}
	return d.Amount
}

// NetBalance sums the signed amounts of the debts belonging to entityID.
func NetBalance(debts []DebtItem, entityID string) decimal.Decimal {
	total := decimal.Zero
	for _, d := range debts {
		if d.EntityID == entityID {
			total = total.Add(d.Signed())
		}
	}
	return total
}
