// Package debts keeps the people and institutions the user owes money to
// or is owed money by.
package debts

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"konto/internal/core"
	"konto/internal/log"
	"konto/internal/storage"
)

// NewDebt is the input for AddDebt.
type NewDebt struct {
	EntityID    string          `json:"entityId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty"`
	Description string          `json:"description"`
	Date        string          `json:"date,omitempty"`
	Type        core.DebtType   `json:"type"`
}

// DebtUpdate is a partial update; the entity of a debt never changes.
type DebtUpdate struct {
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Currency    *string          `json:"currency,omitempty"`
	Description *string          `json:"description,omitempty"`
	Date        *string          `json:"date,omitempty"`
	Type        *core.DebtType   `json:"type,omitempty"`
}

type state struct {
	entities []core.DebtEntity
	debts    []core.DebtItem
}

// Ledger holds entities and debts. Like the category registry it persists
// a mutation before publishing it, and concurrent mutations are last
// write wins.
type Ledger struct {
	store  storage.Store
	logger *log.Logger
	now    func() time.Time
	state  atomic.Pointer[state]
}

// NewLedger returns an empty ledger. Call Load to read persisted state.
func NewLedger(store storage.Store, logger *log.Logger) *Ledger {
	l := &Ledger{
		store:  store,
		logger: log.OrDefault(logger, log.ComponentDebts),
		now:    time.Now,
	}
	l.state.Store(&state{})
	return l
}

// Load reads entities and debts from the store.
func (l *Ledger) Load(ctx context.Context) error {
	entities, _, err := storage.GetJSON[[]core.DebtEntity](ctx, l.store, storage.KeyDebtEntities)
	if err != nil {
		return fmt.Errorf("load debt entities: %w", err)
	}
	debts, _, err := storage.GetJSON[[]core.DebtItem](ctx, l.store, storage.KeyDebtItems)
	if err != nil {
		return fmt.Errorf("load debts: %w", err)
	}
	l.state.Store(&state{entities: entities, debts: debts})
	l.logger.InfoContext(ctx, "Debts loaded", "entities", len(entities), "debts", len(debts))
	return nil
}

func (l *Ledger) Entities() []core.DebtEntity {
	return slices.Clone(l.state.Load().entities)
}

// Debts returns all debts, newest first.
func (l *Ledger) Debts() []core.DebtItem {
	return slices.Clone(l.state.Load().debts)
}

// DebtsOf returns the debts of one entity.
func (l *Ledger) DebtsOf(entityID string) []core.DebtItem {
	var out []core.DebtItem
	for _, d := range l.state.Load().debts {
		if d.EntityID == entityID {
			out = append(out, d)
		}
	}
	return out
}

// NetBalance is positive when the entity owes the user overall.
func (l *Ledger) NetBalance(entityID string) decimal.Decimal {
	return core.NetBalance(l.state.Load().debts, entityID)
}

// AddEntity creates a person or institution.
func (l *Ledger) AddEntity(ctx context.Context, name string, typ core.EntityType) (core.DebtEntity, error) {
	e := core.DebtEntity{ID: "entity_" + uuid.NewString(), Name: strings.TrimSpace(name), Type: typ}
	if err := e.Validate(); err != nil {
		return core.DebtEntity{}, err
	}

	cur := l.state.Load()
	entities := append(slices.Clone(cur.entities), e)
	if err := l.saveEntities(ctx, entities); err != nil {
		return core.DebtEntity{}, err
	}
	l.state.Store(&state{entities: entities, debts: cur.debts})
	l.logger.InfoContext(ctx, "Debt entity added", "entity_id", e.ID)
	return e, nil
}

// RenameEntity changes the display name of an entity.
func (l *Ledger) RenameEntity(ctx context.Context, id, name string) (core.DebtEntity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.DebtEntity{}, core.ErrEmptyName
	}
	cur := l.state.Load()
	i := slices.IndexFunc(cur.entities, func(e core.DebtEntity) bool { return e.ID == id })
	if i < 0 {
		return core.DebtEntity{}, fmt.Errorf("entity %s: %w", id, core.ErrNotFound)
	}

	entities := slices.Clone(cur.entities)
	entities[i].Name = name
	if err := l.saveEntities(ctx, entities); err != nil {
		return core.DebtEntity{}, err
	}
	l.state.Store(&state{entities: entities, debts: cur.debts})
	return entities[i], nil
}

// DeleteEntity removes an entity and all of its debts.
func (l *Ledger) DeleteEntity(ctx context.Context, id string) error {
	cur := l.state.Load()
	entities := slices.DeleteFunc(slices.Clone(cur.entities), func(e core.DebtEntity) bool { return e.ID == id })
	if len(entities) == len(cur.entities) {
		return fmt.Errorf("entity %s: %w", id, core.ErrNotFound)
	}
	debts := slices.DeleteFunc(slices.Clone(cur.debts), func(d core.DebtItem) bool { return d.EntityID == id })

	if err := l.saveDebts(ctx, debts); err != nil {
		return err
	}
	if err := l.saveEntities(ctx, entities); err != nil {
		l.state.Store(&state{entities: cur.entities, debts: debts})
		return err
	}
	l.state.Store(&state{entities: entities, debts: debts})
	l.logger.InfoContext(ctx, "Debt entity deleted", "entity_id", id, "removed_debts", len(cur.debts)-len(debts))
	return nil
}

// AddDebt records a new debt in front of the list.
func (l *Ledger) AddDebt(ctx context.Context, in NewDebt) (core.DebtItem, error) {
	cur := l.state.Load()
	if !slices.ContainsFunc(cur.entities, func(e core.DebtEntity) bool { return e.ID == in.EntityID }) {
		return core.DebtItem{}, fmt.Errorf("entity %s: %w", in.EntityID, core.ErrNotFound)
	}

	d := core.DebtItem{
		ID:          "debt_" + uuid.NewString(),
		EntityID:    in.EntityID,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Description: strings.TrimSpace(in.Description),
		Date:        in.Date,
		Type:        in.Type,
	}
	if d.Currency == "" {
		d.Currency = core.DefaultCurrency
	}
	if d.Date == "" {
		d.Date = l.now().Format(core.DateLayout)
	}
	if err := validDate(d.Date); err != nil {
		return core.DebtItem{}, err
	}
	if err := d.Validate(); err != nil {
		return core.DebtItem{}, err
	}

	debts := slices.Insert(slices.Clone(cur.debts), 0, d)
	if err := l.saveDebts(ctx, debts); err != nil {
		return core.DebtItem{}, err
	}
	l.state.Store(&state{entities: cur.entities, debts: debts})
	return d, nil
}

// UpdateDebt applies a partial update.
func (l *Ledger) UpdateDebt(ctx context.Context, id string, u DebtUpdate) (core.DebtItem, error) {
	cur := l.state.Load()
	i := slices.IndexFunc(cur.debts, func(d core.DebtItem) bool { return d.ID == id })
	if i < 0 {
		return core.DebtItem{}, fmt.Errorf("debt %s: %w", id, core.ErrNotFound)
	}

	d := cur.debts[i]
	if u.Amount != nil {
		d.Amount = *u.Amount
	}
	if u.Currency != nil && *u.Currency != "" {
		d.Currency = *u.Currency
	}
	if u.Description != nil {
		d.Description = strings.TrimSpace(*u.Description)
	}
	if u.Date != nil {
		if err := validDate(*u.Date); err != nil {
			return core.DebtItem{}, err
		}
		d.Date = *u.Date
	}
	if u.Type != nil {
		d.Type = *u.Type
	}
	if err := d.Validate(); err != nil {
		return core.DebtItem{}, err
	}

	debts := slices.Clone(cur.debts)
	debts[i] = d
	if err := l.saveDebts(ctx, debts); err != nil {
		return core.DebtItem{}, err
	}
	l.state.Store(&state{entities: cur.entities, debts: debts})
	return d, nil
}

// DeleteDebt removes one debt.
func (l *Ledger) DeleteDebt(ctx context.Context, id string) error {
	cur := l.state.Load()
	debts := slices.DeleteFunc(slices.Clone(cur.debts), func(d core.DebtItem) bool { return d.ID == id })
	if len(debts) == len(cur.debts) {
		return fmt.Errorf("debt %s: %w", id, core.ErrNotFound)
	}
	if err := l.saveDebts(ctx, debts); err != nil {
		return err
	}
	l.state.Store(&state{entities: cur.entities, debts: debts})
	return nil
}

func validDate(s string) error {
	if _, err := time.Parse(core.DateLayout, s); err != nil {
		return core.ErrInvalidDate
	}
	return nil
}

func (l *Ledger) saveEntities(ctx context.Context, entities []core.DebtEntity) error {
	if entities == nil {
		entities = []core.DebtEntity{}
	}
	if err := storage.SetJSON(ctx, l.store, storage.KeyDebtEntities, entities); err != nil {
		return fmt.Errorf("save debt entities: %w", err)
	}
	return nil
}

func (l *Ledger) saveDebts(ctx context.Context, debts []core.DebtItem) error {
	if debts == nil {
		debts = []core.DebtItem{}
	}
	if err := storage.SetJSON(ctx, l.store, storage.KeyDebtItems, debts); err != nil {
		return fmt.Errorf("save debts: %w", err)
	}
	return nil
}
