// Package http exposes konto's JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"konto/internal/accounts"
	"konto/internal/categories"
	"konto/internal/categorize"
	"konto/internal/connections"
	"konto/internal/debts"
	"konto/internal/invest"
	"konto/internal/log"
	"konto/internal/middleware/ratelimit"
	"konto/internal/middleware/security"
	"konto/internal/middleware/trace"
	"konto/internal/sheets"
	"konto/internal/transactions"
)

// Publisher enqueues categorization jobs for the worker.
type Publisher interface {
	PublishCategorize(ctx context.Context, accountID, requestID string) error
}

// Services are the domain services behind the API. Engine, Queue and
// History are optional.
type Services struct {
	Accounts     *accounts.Aggregator
	Transactions *transactions.Service
	Categories   *categories.Registry
	Engine       *categorize.Engine
	Queue        Publisher
	Connections  *connections.Service
	Debts        *debts.Ledger
	Invest       *invest.Planner
	History      sheets.HistoryReader
}

// Options tune the server.
type Options struct {
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	svc     Services
	logger  *log.Logger
	limiter *ratelimit.Limiter
	tracer  *trace.Middleware
	ready   atomic.Bool
	started time.Time
	now     func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server. Call MarkReady once the initial refresh is done.
func NewServer(addr string, svc Services, opts Options, logger *log.Logger) *Server {
	logger = log.OrDefault(logger, log.ComponentHTTP)
	resolver := security.NewResolver()

	s := &Server{
		svc:     svc,
		logger:  logger,
		limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}, logger),
		tracer:  trace.NewMiddleware(resolver.ClientIP, logger),
		started: time.Now(),
		now:     time.Now,
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(resolver.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
	})(handler)
	handler = log.Middleware(logger, trace.RequestID)(handler)
	handler = s.tracer.Middleware(handler)
	handler = security.Headers(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       90 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/accounts", s.handleListAccounts)
	mux.HandleFunc("POST /api/accounts/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/accounts/{id}", s.handleGetAccount)
	mux.HandleFunc("PUT /api/accounts/{id}/category", s.handleSetAccountCategory)
	mux.HandleFunc("GET /api/accounts/manual", s.handleListManualAccounts)
	mux.HandleFunc("POST /api/accounts/manual", s.handleAddManualAccount)
	mux.HandleFunc("PATCH /api/accounts/manual/{id}", s.handleUpdateManualAccount)
	mux.HandleFunc("DELETE /api/accounts/manual/{id}", s.handleDeleteManualAccount)
	mux.HandleFunc("GET /api/cash", s.handleGetCash)
	mux.HandleFunc("PUT /api/cash", s.handleSetCash)

	mux.HandleFunc("GET /api/accounts/{id}/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /api/accounts/{id}/transactions/cached", s.handleCachedTransactions)
	mux.HandleFunc("POST /api/accounts/{id}/transactions", s.handleAddManualTransaction)
	mux.HandleFunc("PUT /api/accounts/{id}/transactions/{txId}", s.handleUpdateManualTransaction)
	mux.HandleFunc("DELETE /api/accounts/{id}/transactions/{txId}", s.handleDeleteManualTransaction)
	mux.HandleFunc("POST /api/accounts/{id}/categorize", s.handleCategorize)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("POST /api/categories/bulk", s.handleBulkCreateCategories)
	mux.HandleFunc("PATCH /api/categories/{id}", s.handleUpdateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)
	mux.HandleFunc("GET /api/assignments", s.handleListAssignments)
	mux.HandleFunc("POST /api/assignments/bulk", s.handleBulkAssign)
	mux.HandleFunc("GET /api/assignments/{txId}", s.handleResolveAssignment)
	mux.HandleFunc("PUT /api/assignments/{txId}", s.handleAssign)

	mux.HandleFunc("GET /api/banks", s.handleListBanks)
	mux.HandleFunc("GET /api/connections", s.handleListConnections)
	mux.HandleFunc("POST /api/connections", s.handleStartConnection)
	mux.HandleFunc("POST /api/connections/callback", s.handleCompleteConnection)
	mux.HandleFunc("DELETE /api/connections/{id}", s.handleRemoveConnection)

	mux.HandleFunc("GET /api/debts", s.handleListDebts)
	mux.HandleFunc("POST /api/debts", s.handleAddDebt)
	mux.HandleFunc("PATCH /api/debts/{id}", s.handleUpdateDebt)
	mux.HandleFunc("DELETE /api/debts/{id}", s.handleDeleteDebt)
	mux.HandleFunc("POST /api/debts/entities", s.handleAddEntity)
	mux.HandleFunc("PATCH /api/debts/entities/{id}", s.handleRenameEntity)
	mux.HandleFunc("DELETE /api/debts/entities/{id}", s.handleDeleteEntity)

	mux.HandleFunc("GET /api/networth/history", s.handleNetWorthHistory)

	mux.HandleFunc("GET /api/invest/projection", s.handleProjection)
	mux.HandleFunc("GET /api/invest/profiles", s.handleListProfiles)
	mux.HandleFunc("POST /api/invest/profiles", s.handleCreateProfile)
	mux.HandleFunc("PUT /api/invest/profiles/{id}", s.handleUpdateProfile)
	mux.HandleFunc("DELETE /api/invest/profiles/{id}", s.handleDeleteProfile)
	mux.HandleFunc("GET /api/invest/profiles/{id}/projection", s.handleProfileProjection)
}

// MarkReady flips /readyz to 200.
func (s *Server) MarkReady() {
	s.ready.Store(true)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Metrics returns request counters for the trace middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}
