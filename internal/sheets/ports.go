// Package sheets exports net-worth snapshots to a spreadsheet.
package sheets

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"konto/internal/core"
)

// Ports for outbound adapters.
type (
	SnapshotWriter interface {
		AppendSnapshot(ctx context.Context, s core.Snapshot) (ref string, err error)
	}

	// HistoryReader returns the net worth recorded by earlier snapshots,
	// oldest first.
	HistoryReader interface {
		NetWorthHistory(ctx context.Context) ([]HistoryPoint, error)
	}
)

// HistoryPoint is the net worth at one snapshot.
type HistoryPoint struct {
	TakenAt  time.Time       `json:"takenAt"`
	NetWorth decimal.Decimal `json:"netWorth"`
}

// Row kinds in the snapshot sheet.
const (
	KindAccount = "account"
	KindCash    = "cash"
	KindTotal   = "total"
)

// TimestampLayout is how snapshot times are written to the sheet.
const TimestampLayout = "2006-01-02 15:04:05"

// Header is the first row of an empty snapshot sheet.
var Header = []any{"Taken at", "Kind", "Name", "Bank", "Category", "Balance", "Currency"}

// Rows flattens a snapshot into sheet rows: one per account, one for cash
// and a closing net-worth row.
func Rows(s core.Snapshot) [][]any {
	ts := s.TakenAt.UTC().Format(TimestampLayout)
	rows := make([][]any, 0, len(s.Accounts)+2)
	for _, a := range s.Accounts {
		rows = append(rows, []any{ts, KindAccount, a.Name, a.BankName, string(a.Category), core.FormatAmount(a.Balance), a.Currency})
	}
	rows = append(rows,
		[]any{ts, KindCash, "Cash", "", "", core.FormatAmount(s.Totals.Cash), core.DefaultCurrency},
		[]any{ts, KindTotal, "Net worth", "", "", core.FormatAmount(s.Totals.NetWorth), core.DefaultCurrency},
	)
	return rows
}
