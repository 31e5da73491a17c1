package categorize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"konto/internal/categories"
	"konto/internal/core"
	"konto/internal/log"
	"konto/internal/storage"
)

var fixedNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

// scriptedInferrer answers each call with the result of fn.
type scriptedInferrer struct {
	calls   int
	sizes   []int
	catalog [][]CatalogEntry
	fn      func(call int, batch []TxSummary, catalog []CatalogEntry) (map[string]*string, error)
}

func (s *scriptedInferrer) Infer(_ context.Context, batch []TxSummary, catalog []CatalogEntry) (map[string]*string, error) {
	s.calls++
	s.sizes = append(s.sizes, len(batch))
	s.catalog = append(s.catalog, catalog)
	return s.fn(s.calls, batch, catalog)
}

func ptr(s string) *string { return &s }

func newEngine(t *testing.T, inf Inferrer) (*Engine, *categories.Registry) {
	t.Helper()
	reg := categories.NewRegistry(storage.NewMemoryStore(nil), log.Discard())
	e := NewEngine(reg, inf, 0, log.Discard())
	e.now = func() time.Time { return fixedNow }
	return e, reg
}

func recentTxs(n int) []core.Transaction {
	txs := make([]core.Transaction, n)
	for i := range txs {
		txs[i] = core.Transaction{
			TransactionID:     fmt.Sprintf("t%03d", i),
			BookingDate:       "2024-06-01",
			TransactionAmount: core.Money{Currency: "EUR", Amount: "-1.00"},
		}
	}
	return txs
}

func TestRunBatchesAndContinuesAfterFailure(t *testing.T) {
	inf := &scriptedInferrer{}
	e, reg := newEngine(t, inf)
	food, err := reg.Create(context.Background(), "Food", "")
	if err != nil {
		t.Fatal(err)
	}
	inf.fn = func(call int, batch []TxSummary, _ []CatalogEntry) (map[string]*string, error) {
		if call == 2 {
			return nil, errors.New("model overloaded")
		}
		out := map[string]*string{}
		for _, tx := range batch {
			out[tx.ID] = ptr(food.ID)
		}
		return out, nil
	}

	sum, err := e.Run(context.Background(), recentTxs(120))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if fmt.Sprint(inf.sizes) != "[50 50 20]" {
		t.Fatalf("batch sizes = %v", inf.sizes)
	}
	if sum.Batches != 3 || sum.Eligible != 120 || sum.Categorized != 70 || len(sum.Failures) != 1 || sum.Failures[0].Batch != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(reg.Assignments()) != 70 {
		t.Fatalf("expected 70 persisted assignments, got %d", len(reg.Assignments()))
	}
	if _, ok := reg.Resolve("t060"); ok {
		t.Fatalf("transaction of failed batch must stay unassigned")
	}
	if _, ok := reg.Resolve("t110"); !ok {
		t.Fatalf("batch after failure not applied")
	}
	if sum.Err() == nil || !strings.Contains(sum.Message(), "70 of 120") {
		t.Fatalf("message %q err %v", sum.Message(), sum.Err())
	}
}

func TestRunReconcilesNamesAndCreatesOncePerBatch(t *testing.T) {
	inf := &scriptedInferrer{}
	e, reg := newEngine(t, inf)
	ctx := context.Background()
	groceries, _ := reg.Create(ctx, "Groceries", "")

	inf.fn = func(int, []TxSummary, []CatalogEntry) (map[string]*string, error) {
		return map[string]*string{
			"t000":    ptr(groceries.ID),
			"t001":    ptr("groceries"),
			"t002":    ptr("Mobility"),
			"t003":    ptr("mobility "),
			"t004":    nil,
			"t005":    ptr(""),
			"foreign": ptr(groceries.ID),
		}, nil
	}

	sum, err := e.Run(ctx, recentTxs(6))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Categorized != 4 || sum.Created != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	cats := reg.Categories()
	if len(cats) != 2 || cats[1].Name != "Mobility" {
		t.Fatalf("expected exactly one new category, got %+v", cats)
	}
	for _, id := range []string{"t000", "t001"} {
		if c, _ := reg.Resolve(id); c.ID != groceries.ID {
			t.Fatalf("%s not mapped to Groceries", id)
		}
	}
	for _, id := range []string{"t002", "t003"} {
		if c, _ := reg.Resolve(id); c.ID != cats[1].ID {
			t.Fatalf("%s not mapped to the new category", id)
		}
	}
	if _, ok := reg.Resolve("foreign"); ok {
		t.Fatalf("ids outside the batch must be ignored")
	}
	if _, ok := reg.Resolve("t004"); ok {
		t.Fatalf("null proposal must stay unassigned")
	}
}

func TestEligibleFilter(t *testing.T) {
	inf := &scriptedInferrer{}
	e, reg := newEngine(t, inf)
	c, _ := reg.Create(context.Background(), "Food", "")
	_ = reg.Assign(context.Background(), "done", c.ID)

	txs := []core.Transaction{
		{TransactionID: "done", BookingDate: "2024-06-01"},
		{TransactionID: "old", BookingDate: "2024-03-14"},
		{TransactionID: "edge", BookingDate: "2024-03-15"},
		{TransactionID: "nodate"},
		{TransactionID: "value", ValueDate: "2024-05-01"},
		{
			BookingDate:           "2024-06-02",
			TransactionAmount:     core.Money{Amount: "-9.99"},
			Creditor:              &core.Party{Name: "Rewe"},
			RemittanceInformation: []string{"RemittanceInformation: Einkauf 123"},
		},
	}
	got := e.Eligible(txs)
	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.ID
	}
	if strings.Join(ids, ",") != "edge,value,gen_2024-06-02_-9.99_Rewe" {
		t.Fatalf("eligible = %v", ids)
	}

	last := got[2]
	if last.Creditor != "Rewe" || last.Debtor != "Unknown" || last.Reference != "Einkauf 123" ||
		last.RawReference != "RemittanceInformation: Einkauf 123" {
		t.Fatalf("unexpected summary %+v", last)
	}
	if got[0].RawReference != "" {
		t.Fatalf("raw reference must be omitted when equal")
	}
}

func TestRunCountsSharedIdentityOnce(t *testing.T) {
	coffee := core.Transaction{
		BookingDate:       "2024-06-03",
		TransactionAmount: core.Money{Currency: "EUR", Amount: "-3.00"},
		Creditor:          &core.Party{Name: "Cafe"},
	}
	txs := append(recentTxs(1), coffee, coffee)

	inf := &scriptedInferrer{fn: func(_ int, batch []TxSummary, _ []CatalogEntry) (map[string]*string, error) {
		out := make(map[string]*string, len(batch))
		for _, s := range batch {
			out[s.ID] = ptr("Drinks")
		}
		return out, nil
	}}
	e, reg := newEngine(t, inf)
	sum, err := e.Run(context.Background(), txs)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Eligible != 2 || sum.Categorized != 2 || inf.sizes[0] != 2 {
		t.Fatalf("unexpected summary %+v sizes=%v", sum, inf.sizes)
	}
	if sum.Message() != "Categorized 2 of 2 transactions." {
		t.Fatalf("message = %q", sum.Message())
	}
	if _, ok := reg.Resolve(core.StableIdentity(coffee)); !ok {
		t.Fatalf("shared identity not assigned")
	}
}

func TestRunNothingToDo(t *testing.T) {
	inf := &scriptedInferrer{fn: func(int, []TxSummary, []CatalogEntry) (map[string]*string, error) {
		t.Fatal("inferrer must not be called")
		return nil, nil
	}}
	e, _ := newEngine(t, inf)
	sum, err := e.Run(context.Background(), nil)
	if err != nil || !sum.NothingToDo || sum.Message() != "All transactions are already categorized." {
		t.Fatalf("unexpected %+v %v", sum, err)
	}
}

func TestLaterBatchSeesCreatedCategories(t *testing.T) {
	inf := &scriptedInferrer{}
	e, _ := newEngine(t, inf)
	e.batchSize = 1
	inf.fn = func(_ int, batch []TxSummary, _ []CatalogEntry) (map[string]*string, error) {
		return map[string]*string{batch[0].ID: ptr("Living")}, nil
	}

	sum, err := e.Run(context.Background(), recentTxs(2))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Created != 1 || sum.Categorized != 2 {
		t.Fatalf("second batch must reuse the created category: %+v", sum)
	}
	if len(inf.catalog[1]) != 1 || inf.catalog[1][0].Name != "Living" {
		t.Fatalf("catalog of batch 2 = %+v", inf.catalog[1])
	}
}
