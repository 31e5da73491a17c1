package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"konto/internal/accounts"
	"konto/internal/categories"
	"konto/internal/categorize"
	"konto/internal/connections"
	"konto/internal/core"
	"konto/internal/debts"
	"konto/internal/gateway"
	"konto/internal/invest"
	"konto/internal/log"
	"konto/internal/sheets"
	"konto/internal/storage"
	"konto/internal/transactions"
)

type fakeGateway struct {
	mu       sync.Mutex
	balances map[string][]gateway.Balance
	txs      map[string][]core.Transaction
	banks    []core.Bank
	session  gateway.SessionData
	err      error
}

func (f *fakeGateway) FetchBalances(ctx context.Context, accountID string) ([]gateway.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.balances[accountID], nil
}

func (f *fakeGateway) FetchTransactions(ctx context.Context, accountID string, q gateway.TransactionsQuery) (gateway.TransactionsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return gateway.TransactionsPage{}, f.err
	}
	return gateway.TransactionsPage{Transactions: f.txs[accountID]}, nil
}

func (f *fakeGateway) ListBanks(ctx context.Context, country string) ([]core.Bank, error) {
	return f.banks, f.err
}

func (f *fakeGateway) StartAuthorization(ctx context.Context, bank, country string) (gateway.Authorization, error) {
	return gateway.Authorization{RedirectURL: "https://bank.example/auth", AuthorizationID: "auth-1"}, f.err
}

func (f *fakeGateway) ExchangeAuthorizationCode(ctx context.Context, code string) (gateway.SessionData, error) {
	return f.session, f.err
}

type fakePublisher struct {
	calls []string
	err   error
}

func (p *fakePublisher) PublishCategorize(ctx context.Context, accountID, requestID string) error {
	p.calls = append(p.calls, accountID)
	return p.err
}

type fakeInferrer struct{ name string }

func (f fakeInferrer) Infer(ctx context.Context, batch []categorize.TxSummary, catalog []categorize.CatalogEntry) (map[string]*string, error) {
	out := make(map[string]*string, len(batch))
	for _, tx := range batch {
		name := f.name
		out[tx.ID] = &name
	}
	return out, nil
}

type fakeHistory struct{ points []sheets.HistoryPoint }

func (f fakeHistory) NetWorthHistory(ctx context.Context) ([]sheets.HistoryPoint, error) {
	return f.points, nil
}

type testEnv struct {
	srv   *Server
	gw    *fakeGateway
	store *storage.MemoryStore
	svc   Services
}

func newTestEnv(t *testing.T, opts Options, configure func(*Services)) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := log.Discard()
	store := storage.NewMemoryStore(nil)
	gw := &fakeGateway{balances: map[string][]gateway.Balance{}, txs: map[string][]core.Transaction{}}

	agg := accounts.New(store, gw, logger)
	if _, err := agg.Init(ctx); err != nil {
		t.Fatalf("init accounts: %v", err)
	}
	reg := categories.NewRegistry(store, logger)
	if err := reg.Load(ctx); err != nil {
		t.Fatalf("load categories: %v", err)
	}
	ledger := debts.NewLedger(store, logger)
	if err := ledger.Load(ctx); err != nil {
		t.Fatalf("load debts: %v", err)
	}

	svc := Services{
		Accounts:     agg,
		Transactions: transactions.NewService(store, gw, agg, logger),
		Categories:   reg,
		Connections:  connections.NewService(store, gw, agg, time.Hour, logger),
		Debts:        ledger,
		Invest:       invest.NewPlanner(store, logger),
	}
	if configure != nil {
		configure(&svc)
	}

	srv := NewServer(":0", svc, opts, logger)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, gw: gw, store: store, svc: svc}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)

	if rr := env.do(t, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before MarkReady status=%d", rr.Code)
	}

	env.srv.MarkReady()
	rr := env.do(t, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz status=%d", rr.Code)
	}
	body := decodeBody[struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}](t, rr)
	if body.Status != "ready" || body.Checks["queue"] != "not_configured" {
		t.Fatalf("unexpected readiness body %+v", body)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID header")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers")
	}
}

func TestManualAccountsAndCash(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)

	rr := env.do(t, http.MethodPost, "/api/accounts/manual", `{"name":"Wallet","balance":"120.50","category":"Savings"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add manual status=%d body=%s", rr.Code, rr.Body.String())
	}
	created := decodeBody[manualAccountResponse](t, rr)
	if !core.IsManualAccountID(created.Account.ID) {
		t.Fatalf("id %q lacks the manual prefix", created.Account.ID)
	}

	rr = env.do(t, http.MethodPut, "/api/cash", `{"amount":"30"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("set cash status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/accounts", "")
	list := decodeBody[accountsResponse](t, rr)
	if len(list.Accounts) != 1 || list.Accounts[0].Name != "Wallet" {
		t.Fatalf("accounts = %+v", list.Accounts)
	}
	if !list.Totals.NetWorth.Equal(decimal.RequireFromString("150.50")) {
		t.Fatalf("net worth = %s, want 150.50", list.Totals.NetWorth)
	}

	rr = env.do(t, http.MethodPatch, "/api/accounts/manual/"+created.Account.ID, `{"name":"Piggy bank"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update manual status=%d body=%s", rr.Code, rr.Body.String())
	}
	if acc, _ := env.svc.Accounts.Account(created.Account.ID); acc.Name != "Piggy bank" {
		t.Fatalf("account name = %q after rename", acc.Name)
	}

	rr = env.do(t, http.MethodPut, "/api/accounts/"+created.Account.ID+"/category", `{"category":"Bogus"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid category status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodDelete, "/api/accounts/manual/"+created.Account.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete manual status=%d", rr.Code)
	}
	if rr = env.do(t, http.MethodGet, "/api/accounts/"+created.Account.ID, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("get deleted account status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/accounts/manual", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("manual list = %s, want []", rr.Body.String())
	}
}

func TestManualTransactions(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	rr := env.do(t, http.MethodPost, "/api/accounts/manual", `{"name":"Wallet","balance":"100"}`)
	id := decodeBody[manualAccountResponse](t, rr).Account.ID

	today := time.Now().UTC().Format(core.DateLayout)
	rr = env.do(t, http.MethodPost, "/api/accounts/"+id+"/transactions", `{"title":"Coffee","amount":"-2.50","date":"`+today+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add tx status=%d body=%s", rr.Code, rr.Body.String())
	}
	tx := decodeBody[core.Transaction](t, rr)

	acc, _ := env.svc.Accounts.Account(id)
	if !acc.Balance.Equal(decimal.RequireFromString("97.50")) {
		t.Fatalf("balance = %s, want 97.50", acc.Balance)
	}

	rr = env.do(t, http.MethodGet, "/api/accounts/"+id+"/transactions", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status=%d", rr.Code)
	}
	list := decodeBody[transactionsResponse](t, rr)
	if len(list.Transactions) != 1 || list.To != today {
		t.Fatalf("list = %+v", list)
	}

	rr = env.do(t, http.MethodPut, "/api/accounts/"+id+"/transactions/"+tx.TransactionID, `{"title":"","amount":"1"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty title status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodDelete, "/api/accounts/"+id+"/transactions/"+tx.TransactionID, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete tx status=%d", rr.Code)
	}
	acc, _ = env.svc.Accounts.Account(id)
	if !acc.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance after delete = %s, want 100", acc.Balance)
	}

	rr = env.do(t, http.MethodGet, "/api/accounts/"+id+"/transactions?from=2024-02-01&to=2024-01-01", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("inverted range status=%d", rr.Code)
	}
}

func TestConnectedTransactions(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	env.gw.session = gateway.SessionData{
		SessionID: "sess-1",
		ASPSP:     core.Bank{Name: "Test Bank", Country: "DE"},
		Accounts:  []core.UpstreamAccount{{UID: "acc-1", Name: "Checking", Currency: "EUR"}},
	}
	env.gw.balances["acc-1"] = []gateway.Balance{{BalanceType: "CLAV", BalanceAmount: core.Money{Currency: "EUR", Amount: "10.00"}}}
	env.gw.txs["acc-1"] = []core.Transaction{{
		TransactionID:     "t-1",
		BookingDate:       time.Now().UTC().Format(core.DateLayout),
		TransactionAmount: core.Money{Currency: "EUR", Amount: "-4.00"},
	}}

	rr := env.do(t, http.MethodPost, "/api/connections/callback", `{"code":"abc"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("callback status=%d body=%s", rr.Code, rr.Body.String())
	}

	if rr = env.do(t, http.MethodGet, "/api/accounts/acc-1", ""); rr.Code != http.StatusOK {
		t.Fatalf("get connected account status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/accounts/acc-1/transactions", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("transactions status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decodeBody[transactionsResponse](t, rr); len(got.Transactions) != 1 {
		t.Fatalf("transactions = %+v", got.Transactions)
	}

	env.gw.mu.Lock()
	env.gw.err = &gateway.Error{Status: 503, Message: "maintenance"}
	env.gw.mu.Unlock()

	rr = env.do(t, http.MethodGet, "/api/accounts/acc-1/transactions", "")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("gateway failure status=%d", rr.Code)
	}
	if body := decodeBody[errorBody](t, rr); !strings.Contains(body.Error, "maintenance") {
		t.Fatalf("error = %q, want upstream message", body.Error)
	}

	rr = env.do(t, http.MethodGet, "/api/accounts/acc-1/transactions/cached", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("cached status=%d", rr.Code)
	}
	if got := decodeBody[transactionsResponse](t, rr); len(got.Transactions) != 1 {
		t.Fatalf("cached transactions = %+v", got.Transactions)
	}

	if rr = env.do(t, http.MethodGet, "/api/accounts/missing/transactions", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown account status=%d", rr.Code)
	}
}

func TestConnections(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	env.gw.banks = []core.Bank{{Name: "Alpha", Country: "FI"}, {Name: "Beta", Country: "FI"}}

	if rr := env.do(t, http.MethodGet, "/api/banks", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing country status=%d", rr.Code)
	}
	rr := env.do(t, http.MethodGet, "/api/banks?country=FI&q=alp", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("banks status=%d", rr.Code)
	}
	if banks := decodeBody[[]core.Bank](t, rr); len(banks) != 1 || banks[0].Name != "Alpha" {
		t.Fatalf("banks = %+v", banks)
	}

	rr = env.do(t, http.MethodPost, "/api/connections", `{"bank":"Alpha","country":"fi"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("start status=%d", rr.Code)
	}
	if auth := decodeBody[gateway.Authorization](t, rr); auth.RedirectURL == "" {
		t.Fatalf("missing redirect url")
	}
	if rr = env.do(t, http.MethodPost, "/api/connections", `{"bank":""}`); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty bank status=%d", rr.Code)
	}
	if rr = env.do(t, http.MethodPost, "/api/connections/callback", `{"code":" "}`); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty code status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/connections", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("sessions = %s, want []", rr.Body.String())
	}
	if rr = env.do(t, http.MethodDelete, "/api/connections/nope", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("remove unknown status=%d", rr.Code)
	}
}

func TestCategoriesAndAssignments(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)

	rr := env.do(t, http.MethodGet, "/api/categories", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("empty categories = %s", rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/api/categories", `{"name":"Food","color":"#ff0000"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	cat := decodeBody[core.Category](t, rr)

	if rr = env.do(t, http.MethodPost, "/api/categories", `{"name":"  "}`); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty name status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodPut, "/api/assignments/tx-1", `{"categoryId":"`+cat.ID+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("assign status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodGet, "/api/assignments/tx-1", "")
	if got := decodeBody[core.Category](t, rr); got.ID != cat.ID {
		t.Fatalf("resolved %q, want %q", got.ID, cat.ID)
	}

	if rr = env.do(t, http.MethodPut, "/api/assignments/tx-2", `{"categoryId":"cat_missing"}`); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown category status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodPut, "/api/assignments/tx-1", `{"categoryId":null}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("unassign status=%d", rr.Code)
	}
	if rr = env.do(t, http.MethodGet, "/api/assignments/tx-1", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("resolve after unassign status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/assignments/bulk", `{"tx-1":"`+cat.ID+`","tx-2":"`+cat.ID+`"}`)
	if got := decodeBody[map[string]int](t, rr); got["changed"] != 2 {
		t.Fatalf("bulk assign = %v", got)
	}

	rr = env.do(t, http.MethodPatch, "/api/categories/"+cat.ID, `{"name":"Groceries"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr = env.do(t, http.MethodPatch, "/api/categories/cat_missing", `{"name":"X"}`); rr.Code != http.StatusNotFound {
		t.Fatalf("update missing status=%d", rr.Code)
	}

	if rr = env.do(t, http.MethodDelete, "/api/categories/"+cat.ID, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/api/assignments", "")
	if got := decodeBody[map[string]string](t, rr); len(got) != 0 {
		t.Fatalf("assignments after delete = %v", got)
	}
}

func TestAssignKeepsWritesFromWorker(t *testing.T) {
	env := newTestEnv(t, Options{}, func(s *Services) { s.Categories.SetShared(true) })
	ctx := context.Background()

	rr := env.do(t, http.MethodPost, "/api/categories", `{"name":"Food"}`)
	food := decodeBody[core.Category](t, rr)

	worker := categories.NewRegistry(env.store, log.Discard())
	worker.SetShared(true)
	created, err := worker.BulkCreate(ctx, []categories.NewCategory{{Name: "Coffee"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := worker.BulkAssign(ctx, map[string]string{"w1": created[0].ID, "w2": food.ID}); err != nil {
		t.Fatal(err)
	}

	if rr = env.do(t, http.MethodPut, "/api/assignments/u1", `{"categoryId":"`+created[0].ID+`"}`); rr.Code != http.StatusOK {
		t.Fatalf("assign to worker category status=%d body=%s", rr.Code, rr.Body.String())
	}
	got, _, err := storage.GetJSON[map[string]string](ctx, env.store, storage.KeyCategoryMap)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got["w1"] != created[0].ID || got["w2"] != food.ID || got["u1"] != created[0].ID {
		t.Fatalf("persisted assignments = %v", got)
	}
}

func TestCategorize(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t, Options{}, nil)
		id := decodeBody[manualAccountResponse](t, env.do(t, http.MethodPost, "/api/accounts/manual", `{"name":"W"}`)).Account.ID
		if rr := env.do(t, http.MethodPost, "/api/accounts/"+id+"/categorize", ""); rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("status=%d", rr.Code)
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		env := newTestEnv(t, Options{}, nil)
		if rr := env.do(t, http.MethodPost, "/api/accounts/nope/categorize", ""); rr.Code != http.StatusNotFound {
			t.Fatalf("status=%d", rr.Code)
		}
	})

	t.Run("queued", func(t *testing.T) {
		pub := &fakePublisher{}
		env := newTestEnv(t, Options{}, func(s *Services) { s.Queue = pub })
		id := decodeBody[manualAccountResponse](t, env.do(t, http.MethodPost, "/api/accounts/manual", `{"name":"W"}`)).Account.ID

		rr := env.do(t, http.MethodPost, "/api/accounts/"+id+"/categorize", "")
		if rr.Code != http.StatusAccepted {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		resp := decodeBody[categorizeResponse](t, rr)
		if resp.Status != "queued" || resp.RequestID == "" {
			t.Fatalf("response = %+v", resp)
		}
		if len(pub.calls) != 1 || pub.calls[0] != id {
			t.Fatalf("publish calls = %v", pub.calls)
		}
	})

	t.Run("queue down", func(t *testing.T) {
		pub := &fakePublisher{err: errors.New("circuit open")}
		env := newTestEnv(t, Options{}, func(s *Services) { s.Queue = pub })
		id := decodeBody[manualAccountResponse](t, env.do(t, http.MethodPost, "/api/accounts/manual", `{"name":"W"}`)).Account.ID
		if rr := env.do(t, http.MethodPost, "/api/accounts/"+id+"/categorize", ""); rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("status=%d", rr.Code)
		}
	})

	t.Run("inline", func(t *testing.T) {
		env := newTestEnv(t, Options{}, func(s *Services) {
			s.Engine = categorize.NewEngine(s.Categories, fakeInferrer{name: "Coffee"}, 10, log.Discard())
		})
		id := decodeBody[manualAccountResponse](t, env.do(t, http.MethodPost, "/api/accounts/manual", `{"name":"W"}`)).Account.ID
		env.do(t, http.MethodPost, "/api/accounts/"+id+"/transactions", `{"title":"Espresso","amount":"-1.20"}`)

		rr := env.do(t, http.MethodPost, "/api/accounts/"+id+"/categorize", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		resp := decodeBody[categorizeResponse](t, rr)
		if resp.Summary == nil || resp.Summary.Categorized != 1 || resp.Summary.Created != 1 {
			t.Fatalf("summary = %+v", resp.Summary)
		}
		if _, ok := env.svc.Categories.FindByName("Coffee"); !ok {
			t.Fatalf("category Coffee was not created")
		}
	})
}

func TestDebts(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)

	rr := env.do(t, http.MethodPost, "/api/debts/entities", `{"name":"Anna","type":"person"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add entity status=%d body=%s", rr.Code, rr.Body.String())
	}
	entity := decodeBody[core.DebtEntity](t, rr)

	if rr = env.do(t, http.MethodPost, "/api/debts/entities", `{"name":"Bank","type":"robot"}`); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid entity status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/debts", `{"entityId":"`+entity.ID+`","amount":"50","description":"Dinner","type":"OWES_ME"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add debt status=%d body=%s", rr.Code, rr.Body.String())
	}
	debt := decodeBody[core.DebtItem](t, rr)
	env.do(t, http.MethodPost, "/api/debts", `{"entityId":"`+entity.ID+`","amount":"20","description":"Taxi","type":"I_OWE"}`)

	rr = env.do(t, http.MethodGet, "/api/debts", "")
	list := decodeBody[debtsResponse](t, rr)
	if len(list.Debts) != 2 {
		t.Fatalf("debts = %+v", list.Debts)
	}
	if !list.Balances[entity.ID].Equal(decimal.NewFromInt(30)) {
		t.Fatalf("balance = %s, want 30", list.Balances[entity.ID])
	}

	rr = env.do(t, http.MethodPatch, "/api/debts/"+debt.ID, `{"date":"yesterday"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad date status=%d", rr.Code)
	}
	rr = env.do(t, http.MethodPatch, "/api/debts/"+debt.ID, `{"amount":"60"}`)
	if got := decodeBody[core.DebtItem](t, rr); !got.Amount.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("amount = %s, want 60", got.Amount)
	}

	if rr = env.do(t, http.MethodPatch, "/api/debts/entities/"+entity.ID, `{"name":"Anna B."}`); rr.Code != http.StatusOK {
		t.Fatalf("rename status=%d", rr.Code)
	}
	if rr = env.do(t, http.MethodDelete, "/api/debts/entities/"+entity.ID, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete entity status=%d", rr.Code)
	}
	list = decodeBody[debtsResponse](t, env.do(t, http.MethodGet, "/api/debts", ""))
	if len(list.Debts) != 0 || len(list.Entities) != 0 {
		t.Fatalf("ledger not empty after delete: %+v", list)
	}
	if rr = env.do(t, http.MethodDelete, "/api/debts/"+debt.ID, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("delete removed debt status=%d", rr.Code)
	}
}

func TestInvest(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	env.srv.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	rr := env.do(t, http.MethodGet, "/api/invest/projection?initial=1000&monthly=0&years=1&rate=12", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("projection status=%d body=%s", rr.Code, rr.Body.String())
	}
	proj := decodeBody[invest.Projection](t, rr)
	if len(proj.Points) != 2 || proj.Points[1].Year != 2026 || !proj.Value.Equal(decimal.RequireFromString("1126.83")) {
		t.Fatalf("unexpected projection %+v", proj)
	}

	rr = env.do(t, http.MethodGet, "/api/invest/projection", "")
	if proj = decodeBody[invest.Projection](t, rr); proj.Plan.Years != 10 || len(proj.Points) != 11 {
		t.Fatalf("default plan not used: %+v", proj.Plan)
	}
	if rr = env.do(t, http.MethodGet, "/api/invest/projection?rate=abc", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad rate status=%d", rr.Code)
	}
	if rr = env.do(t, http.MethodGet, "/api/invest/projection?years=500", ""); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("too many years status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/invest/profiles", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("empty profiles = %s", rr.Body.String())
	}
	rr = env.do(t, http.MethodPost, "/api/invest/profiles", `{"name":"ETF","initial":"0","monthly":"100","years":1,"annualRate":"12"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create profile status=%d body=%s", rr.Code, rr.Body.String())
	}
	profile := decodeBody[invest.Profile](t, rr)

	rr = env.do(t, http.MethodGet, "/api/invest/profiles/"+profile.ID+"/projection", "")
	if proj = decodeBody[invest.Projection](t, rr); !proj.Value.Equal(decimal.RequireFromString("1280.93")) {
		t.Fatalf("profile projection value = %s", proj.Value)
	}

	rr = env.do(t, http.MethodPut, "/api/invest/profiles/"+profile.ID, `{"name":"ETF 2","initial":"0","monthly":"50","years":2,"annualRate":"5"}`)
	if got := decodeBody[invest.Profile](t, rr); rr.Code != http.StatusOK || got.Name != "ETF 2" || got.Years != 2 {
		t.Fatalf("update status=%d profile=%+v", rr.Code, got)
	}
	if rr = env.do(t, http.MethodPost, "/api/invest/profiles", `{"name":" ","years":1}`); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty name status=%d", rr.Code)
	}
	if rr = env.do(t, http.MethodDelete, "/api/invest/profiles/"+profile.ID, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if rr = env.do(t, http.MethodGet, "/api/invest/profiles/"+profile.ID+"/projection", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("projection of deleted profile status=%d", rr.Code)
	}
}

func TestNetWorthHistory(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	if rr := env.do(t, http.MethodGet, "/api/networth/history", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured status=%d", rr.Code)
	}

	point := sheets.HistoryPoint{TakenAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), NetWorth: decimal.NewFromInt(1000)}
	env = newTestEnv(t, Options{}, func(s *Services) { s.History = fakeHistory{points: []sheets.HistoryPoint{point}} })
	rr := env.do(t, http.MethodGet, "/api/networth/history", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := decodeBody[[]sheets.HistoryPoint](t, rr); len(got) != 1 || !got[0].NetWorth.Equal(point.NetWorth) {
		t.Fatalf("history = %+v", got)
	}
}

func TestMalformedBodies(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty", "", http.StatusBadRequest},
		{"not json", "amount=3", http.StatusBadRequest},
		{"trailing data", `{"amount":"3"} {}`, http.StatusBadRequest},
		{"too large", `{"amount":"` + strings.Repeat("9", maxBodyBytes) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/cash", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			env.srv.Handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("status=%d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestRateLimitOnlyWrites(t *testing.T) {
	env := newTestEnv(t, Options{RateLimitPerMinute: 2}, nil)

	for i := 0; i < 5; i++ {
		if rr := env.do(t, http.MethodGet, "/api/cash", ""); rr.Code != http.StatusOK {
			t.Fatalf("GET %d status=%d", i, rr.Code)
		}
	}

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = env.do(t, http.MethodPut, "/api/cash", `{"amount":"1"}`).Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, want [200 200 429]", codes)
	}
}
