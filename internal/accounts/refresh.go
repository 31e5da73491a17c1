package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"konto/internal/core"
	"konto/internal/gateway"
	"konto/internal/log"
	"konto/internal/storage"
)

// AccountFailure is a connected account whose balance could not be fetched
// and had no earlier balance to fall back to.
type AccountFailure struct {
	AccountID string `json:"accountId"`
	Name      string `json:"name"`
	Reason    string `json:"reason"`
}

// RefreshReport summarizes one refresh.
type RefreshReport struct {
	Connected int              `json:"connected"`
	Manual    int              `json:"manual"`
	Stale     []string         `json:"stale,omitempty"`
	Failures  []AccountFailure `json:"failures,omitempty"`
	Duration  time.Duration    `json:"duration"`
}

// Partial is true when at least one account ended up with an error.
func (r RefreshReport) Partial() bool {
	return len(r.Failures) > 0
}

// Refresh rebuilds the unified list from the store and live balances.
//
// A failure to read sessions, manual accounts or metadata aborts the
// refresh and leaves the current list in place. Balance failures stay
// local to their account: the previous good balance is reused when one is
// known, otherwise the account carries the error and a zero balance.
func (a *Aggregator) Refresh(ctx context.Context, showIndicator bool) (RefreshReport, error) {
	if showIndicator {
		a.refreshing.Add(1)
		defer a.refreshing.Add(-1)
	}
	start := time.Now()

	var (
		sessions []core.LinkedSession
		manual   []core.ManualAccount
		meta     core.AccountMetadata
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sessions, _, err = storage.GetJSON[[]core.LinkedSession](gctx, a.store, storage.KeySessions)
		return err
	})
	g.Go(func() (err error) {
		manual, _, err = storage.GetJSON[[]core.ManualAccount](gctx, a.store, storage.KeyManualAccounts)
		return err
	})
	g.Go(func() (err error) {
		meta, _, err = storage.GetJSON[core.AccountMetadata](gctx, a.store, storage.KeyAccountMetadata)
		return err
	})
	if err := g.Wait(); err != nil {
		a.logger.ErrorContext(ctx, "Refresh aborted, keeping previous accounts", log.FieldError, err)
		return RefreshReport{}, fmt.Errorf("refresh accounts: %w", err)
	}

	manualList := make([]core.UnifiedAccount, 0, len(manual))
	for _, m := range manual {
		manualList = append(manualList, m.Unified())
	}

	connected := skeleton(sessions, meta)
	report := RefreshReport{Connected: len(connected), Manual: len(manualList)}

	previous := make(map[string]core.UnifiedAccount)
	for _, acc := range *a.accounts.Load() {
		previous[acc.ID] = acc
	}

	// Each goroutine owns one slot, so the list is only read after Wait.
	errs := make([]error, len(connected))
	var fetch errgroup.Group
	for i := range connected {
		fetch.Go(func() error {
			errs[i] = a.fillBalance(ctx, &connected[i])
			return nil
		})
	}
	fetch.Wait()

	for i := range connected {
		acc := &connected[i]
		acc.Loading = false
		if errs[i] == nil {
			continue
		}
		if prev, ok := previous[acc.ID]; ok && prev.Error == "" {
			acc.Balance = prev.Balance
			acc.Currency = prev.Currency
			acc.Error = ""
			report.Stale = append(report.Stale, acc.ID)
			a.logger.WarnContext(ctx, "Balance fetch failed, using previous balance",
				log.FieldAccountID, acc.ID, log.FieldError, errs[i])
			continue
		}
		acc.Error = errs[i].Error()
		report.Failures = append(report.Failures, AccountFailure{AccountID: acc.ID, Name: acc.Name, Reason: acc.Error})
		a.logger.WarnContext(ctx, "Balance fetch failed", log.FieldAccountID, acc.ID, log.FieldError, errs[i])
	}

	merged := make([]core.UnifiedAccount, 0, len(connected)+len(manualList))
	merged = append(merged, connected...)
	merged = append(merged, manualList...)
	if err := a.saveRenderCache(ctx, merged); err != nil {
		a.logger.WarnContext(ctx, "Failed to persist account cache", log.FieldError, err)
	}
	a.accounts.Store(&merged)

	report.Duration = time.Since(start)
	a.logger.InfoContext(ctx, "Accounts refreshed",
		"connected", report.Connected,
		"manual", report.Manual,
		"stale", len(report.Stale),
		"failed", len(report.Failures),
		log.FieldDuration, report.Duration.Milliseconds())
	return report, nil
}

// skeleton builds one loading entry per upstream account. An account that
// appears in several sessions is listed once.
func skeleton(sessions []core.LinkedSession, meta core.AccountMetadata) []core.UnifiedAccount {
	seen := make(map[string]bool)
	var out []core.UnifiedAccount
	for _, s := range sessions {
		for _, up := range s.Accounts {
			if up.UID == "" || seen[up.UID] {
				continue
			}
			seen[up.UID] = true
			acc := up
			out = append(out, core.UnifiedAccount{
				ID:       up.UID,
				Type:     core.SourceConnected,
				Name:     up.DisplayName(),
				Category: meta.CategoryFor(up.UID),
				Currency: up.CurrencyOrDefault(),
				BankName: s.BankName,
				Account:  &acc,
				Loading:  true,
				IBAN:     up.IBAN(),
			})
		}
	}
	return out
}

var errNoBalances = errors.New("no balances returned")

func (a *Aggregator) fillBalance(ctx context.Context, acc *core.UnifiedAccount) error {
	balances, err := a.balances.FetchBalances(ctx, acc.ID)
	if err != nil {
		return err
	}
	main, ok := gateway.MainBalance(balances)
	if !ok {
		return errNoBalances
	}
	amount, err := main.BalanceAmount.Value()
	if err != nil {
		return fmt.Errorf("parse balance %q: %w", main.BalanceAmount.Amount, err)
	}
	acc.Balance = amount
	if main.BalanceAmount.Currency != "" {
		acc.Currency = main.BalanceAmount.Currency
	}
	return nil
}
