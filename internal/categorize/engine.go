// Package categorize assigns categories to uncategorized transactions in
// batches through an external inference provider.
package categorize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"konto/internal/categories"
	"konto/internal/core"
	"konto/internal/log"
)

const (
	// DefaultBatchSize bounds the payload of one inference call.
	DefaultBatchSize = 50
	// lookbackMonths limits auto-categorization to recent transactions.
	lookbackMonths = 3
)

// TxSummary is the form in which a transaction is shown to the model.
type TxSummary struct {
	ID           string `json:"id"`
	Creditor     string `json:"creditor"`
	Debtor       string `json:"debtor"`
	Amount       string `json:"amount"`
	Reference    string `json:"reference"`
	RawReference string `json:"raw_reference,omitempty"`
	Date         string `json:"date"`
}

// CatalogEntry is one existing category as shown to the model.
type CatalogEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Inferrer proposes a category for each transaction of a batch. A value is
// an existing category id, a new category name, or nil for "leave alone".
// An error fails the whole batch.
type Inferrer interface {
	Infer(ctx context.Context, batch []TxSummary, catalog []CatalogEntry) (map[string]*string, error)
}

// Registry is the part of the category registry the engine writes through.
type Registry interface {
	Categories() []core.Category
	Resolve(txID string) (core.Category, bool)
	BulkCreate(ctx context.Context, entries []categories.NewCategory) ([]core.Category, error)
	BulkAssign(ctx context.Context, changes map[string]string) (int, error)
}

// BatchError records one failed batch.
type BatchError struct {
	Batch int
	Size  int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (%d transactions): %v", e.Batch, e.Size, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Summary is the outcome of one run. Eligible counts distinct identities,
// so transactions that derive the same identity are counted once and share
// one assignment.
type Summary struct {
	Eligible    int           `json:"eligible"`
	Batches     int           `json:"batches"`
	Categorized int           `json:"categorized"`
	Created     int           `json:"created"`
	NothingToDo bool          `json:"nothingToDo"`
	Failures    []*BatchError `json:"-"`
}

// Err joins the batch failures, or returns nil.
func (s Summary) Err() error {
	errs := make([]error, len(s.Failures))
	for i, f := range s.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Message renders the outcome for the user.
func (s Summary) Message() string {
	switch {
	case s.NothingToDo:
		return "All transactions are already categorized."
	case len(s.Failures) > 0:
		return fmt.Sprintf("Categorized %d of %d transactions, %d of %d batches failed.",
			s.Categorized, s.Eligible, len(s.Failures), s.Batches)
	default:
		return fmt.Sprintf("Categorized %d of %d transactions.", s.Categorized, s.Eligible)
	}
}

// Engine runs auto-categorization.
type Engine struct {
	registry  Registry
	inferrer  Inferrer
	batchSize int
	logger    *log.Logger
	now       func() time.Time
}

// NewEngine returns an engine. A batchSize below 1 uses DefaultBatchSize.
func NewEngine(registry Registry, inferrer Inferrer, batchSize int, logger *log.Logger) *Engine {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Engine{
		registry:  registry,
		inferrer:  inferrer,
		batchSize: batchSize,
		logger:    log.OrDefault(logger, log.ComponentCategorize),
		now:       time.Now,
	}
}

// Eligible returns the summaries of transactions that have no category and
// are dated within the last three months. Transactions sharing an identity
// appear once.
func (e *Engine) Eligible(txs []core.Transaction) []TxSummary {
	now := e.now()
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, -lookbackMonths, 0)

	seen := make(map[string]bool)
	var out []TxSummary
	for _, tx := range txs {
		id := core.StableIdentity(tx)
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := e.registry.Resolve(id); ok {
			continue
		}
		d, ok := tx.Date()
		if !ok || d.Before(cutoff) {
			continue
		}
		out = append(out, summarize(id, tx))
	}
	return out
}

func summarize(id string, tx core.Transaction) TxSummary {
	s := TxSummary{
		ID:        id,
		Creditor:  orUnknown(tx.CreditorName()),
		Debtor:    orUnknown(tx.DebtorName()),
		Amount:    tx.TransactionAmount.Amount,
		Reference: tx.Reference(),
		Date:      tx.BookingDate,
	}
	if raw := strings.Join(tx.RemittanceInformation, " "); raw != s.Reference {
		s.RawReference = raw
	}
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// Run categorizes the eligible transactions of txs. A failing batch is
// recorded in the summary and skipped; earlier batches stay applied. The
// returned error is only set when ctx ends the run.
func (e *Engine) Run(ctx context.Context, txs []core.Transaction) (Summary, error) {
	eligible := e.Eligible(txs)
	if len(eligible) == 0 {
		e.logger.InfoContext(ctx, "Nothing to categorize", log.FieldCount, len(txs))
		return Summary{NothingToDo: true}, nil
	}

	sum := Summary{Eligible: len(eligible)}
	for start := 0; start < len(eligible); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		batch := eligible[start:min(start+e.batchSize, len(eligible))]
		sum.Batches++

		assigned, created, err := e.runBatch(ctx, batch)
		sum.Created += created
		if err != nil {
			be := &BatchError{Batch: sum.Batches, Size: len(batch), Err: err}
			sum.Failures = append(sum.Failures, be)
			e.logger.WarnContext(ctx, "Categorization batch failed",
				log.FieldBatch, be.Batch, log.FieldBatchSize, be.Size, log.FieldError, err)
			continue
		}
		sum.Categorized += assigned
		e.logger.DebugContext(ctx, "Categorization batch applied",
			log.FieldBatch, sum.Batches, log.FieldBatchSize, len(batch), "assigned", assigned, "created", created)
	}

	e.logger.InfoContext(ctx, "Categorization finished",
		"eligible", sum.Eligible,
		"batches", sum.Batches,
		"categorized", sum.Categorized,
		"created", sum.Created,
		"failed_batches", len(sum.Failures))
	return sum, nil
}

// runBatch returns the number of queued assignments and of created
// categories.
func (e *Engine) runBatch(ctx context.Context, batch []TxSummary) (int, int, error) {
	current := e.registry.Categories()
	catalog := make([]CatalogEntry, len(current))
	byID := make(map[string]bool, len(current))
	byName := make(map[string]string, len(current))
	for i, c := range current {
		catalog[i] = CatalogEntry{ID: c.ID, Name: c.Name}
		byID[c.ID] = true
		if key := strings.ToLower(c.Name); byName[key] == "" {
			byName[key] = c.ID
		}
	}

	proposals, err := e.inferrer.Infer(ctx, batch, catalog)
	if err != nil {
		return 0, 0, fmt.Errorf("infer: %w", err)
	}

	assign := make(map[string]string)
	pending := make(map[string]string)
	var newNames []categories.NewCategory
	queued := make(map[string]bool)
	for _, tx := range batch {
		v := proposals[tx.ID]
		if v == nil {
			continue
		}
		value := strings.TrimSpace(*v)
		switch {
		case value == "":
		case byID[value]:
			assign[tx.ID] = value
		case byName[strings.ToLower(value)] != "":
			assign[tx.ID] = byName[strings.ToLower(value)]
		default:
			key := strings.ToLower(value)
			pending[tx.ID] = key
			if !queued[key] {
				queued[key] = true
				newNames = append(newNames, categories.NewCategory{Name: value, Color: core.RandomCategoryColor()})
			}
		}
	}

	created := 0
	if len(newNames) > 0 {
		cats, err := e.registry.BulkCreate(ctx, newNames)
		if err != nil {
			return 0, 0, fmt.Errorf("create categories: %w", err)
		}
		created = len(cats)
		for _, c := range cats {
			byName[strings.ToLower(c.Name)] = c.ID
		}
		for txID, key := range pending {
			if id := byName[key]; id != "" {
				assign[txID] = id
			}
		}
	}

	if len(assign) == 0 {
		return 0, created, nil
	}
	if _, err := e.registry.BulkAssign(ctx, assign); err != nil {
		return 0, created, fmt.Errorf("assign: %w", err)
	}
	return len(assign), created, nil
}

// MarshalCatalog encodes the catalog as the JSON array shown to the model.
func MarshalCatalog(catalog []CatalogEntry) string {
	if catalog == nil {
		catalog = []CatalogEntry{}
	}
	b, _ := json.Marshal(catalog)
	return string(b)
}

// MarshalBatch encodes the batch as the JSON array shown to the model.
func MarshalBatch(batch []TxSummary) string {
	b, _ := json.Marshal(batch)
	return string(b)
}
