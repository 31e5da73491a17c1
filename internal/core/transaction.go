package core

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used by the gateway.
const DateLayout = "2006-01-02"

const (
	ManualTransactionPrefix = "tx_"
	derivedIdentityPrefix   = "gen_"
	selfParty               = "Self"
)

// Credit/debit indicators.
const (
	Credit = "CRDT"
	Debit  = "DBIT"
)

// Money is an amount as the gateway sends it. Amount stays a string so the
// derived transaction identity is byte-stable across re-fetches.
type Money struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

// Value parses the amount.
func (m Money) Value() (decimal.Decimal, error) {
	return ParseAmount(m.Amount)
}

// Party is a creditor or debtor.
type Party struct {
	Name string `json:"name,omitempty"`
}

// Transaction as returned by the gateway or stored for a manual account.
type Transaction struct {
	TransactionID         string   `json:"transaction_id,omitempty"`
	BookingDate           string   `json:"booking_date,omitempty"`
	ValueDate             string   `json:"value_date,omitempty"`
	TransactionAmount     Money    `json:"transaction_amount"`
	Creditor              *Party   `json:"creditor,omitempty"`
	Debtor                *Party   `json:"debtor,omitempty"`
	RemittanceInformation []string `json:"remittance_information,omitempty"`
	CreditDebitIndicator  string   `json:"credit_debit_indicator,omitempty"`
}

// StableIdentity is the key used for category assignment and filtering.
//
// A server id wins when present. Otherwise the identity is derived from
// booking date, amount and counterparty; two identical same-day payments to
// the same counterparty share one identity and therefore one category.
func StableIdentity(tx Transaction) string {
	if tx.TransactionID != "" {
		return tx.TransactionID
	}
	return derivedIdentityPrefix + tx.BookingDate + "_" + tx.TransactionAmount.Amount + "_" + tx.Counterparty()
}

// Counterparty returns the creditor name, else the debtor name.
func (tx Transaction) Counterparty() string {
	if name := tx.CreditorName(); name != "" {
		return name
	}
	return tx.DebtorName()
}

func (tx Transaction) CreditorName() string {
	if tx.Creditor == nil {
		return ""
	}
	return tx.Creditor.Name
}

func (tx Transaction) DebtorName() string {
	if tx.Debtor == nil {
		return ""
	}
	return tx.Debtor.Name
}

// DateString returns the booking date, else the value date.
func (tx Transaction) DateString() string {
	if tx.BookingDate != "" {
		return tx.BookingDate
	}
	return tx.ValueDate
}

// Date parses DateString. ok is false when neither date is usable.
func (tx Transaction) Date() (t time.Time, ok bool) {
	s := tx.DateString()
	if s == "" {
		return time.Time{}, false
	}
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

var remittancePrefix = regexp.MustCompile(`(?i)remittanceinformation:(.*)`)

// CleanRemittance joins the remittance lines and strips the structured
// "RemittanceInformation:" wrapper some banks put around the reference.
func CleanRemittance(lines []string) string {
	text := strings.Join(lines, " ")
	if m := remittancePrefix.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// Reference returns the cleaned remittance text.
func (tx Transaction) Reference() string {
	return CleanRemittance(tx.RemittanceInformation)
}

// ManualEntry is what the user types for a manual transaction.
type ManualEntry struct {
	Title  string          `json:"title"`
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date,omitempty"`
}

// Validate checks the title and the date.
func (e ManualEntry) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return ErrEmptyName
	}
	if e.Date != "" {
		if _, err := time.Parse(DateLayout, e.Date); err != nil {
			return ErrInvalidDate
		}
	}
	return nil
}

// NewManualTransaction builds a transaction for a manual account. Outgoing
// amounts name the title as creditor, incoming ones as debtor; the other
// side is "Self".
func NewManualTransaction(e ManualEntry, now time.Time) Transaction {
	date := e.Date
	if date == "" {
		date = now.Format(DateLayout)
	}
	tx := Transaction{
		TransactionID: ManualTransactionPrefix + uuid.NewString(),
		BookingDate:   date,
		ValueDate:     date,
	}
	tx.applyEntry(e)
	return tx
}

// WithEntry returns tx with title and amount replaced, keeping id and dates
// unless e carries a new date.
func (tx Transaction) WithEntry(e ManualEntry) Transaction {
	if e.Date != "" {
		tx.BookingDate = e.Date
		tx.ValueDate = e.Date
	}
	tx.applyEntry(e)
	return tx
}

func (tx *Transaction) applyEntry(e ManualEntry) {
	title := strings.TrimSpace(e.Title)
	tx.TransactionAmount = Money{Currency: DefaultCurrency, Amount: e.Amount.String()}
	tx.RemittanceInformation = []string{title}

	creditor, debtor := selfParty, selfParty
	if e.Amount.IsNegative() {
		creditor = title
		tx.CreditDebitIndicator = Debit
	}
	if e.Amount.IsPositive() {
		debtor = title
		tx.CreditDebitIndicator = Credit
	}
	tx.Creditor = &Party{Name: creditor}
	tx.Debtor = &Party{Name: debtor}
}

// SortByDateDesc orders transactions newest first. Equal dates keep their
// relative order.
func SortByDateDesc(txs []Transaction) {
	slices.SortStableFunc(txs, func(a, b Transaction) int {
		return strings.Compare(b.DateString(), a.DateString())
	})
}

// FilterRange keeps transactions dated within [from, to]. Zero bounds are
// open.
func FilterRange(txs []Transaction, from, to time.Time) []Transaction {
	out := FilterFrom(txs, from)
	if to.IsZero() {
		return out
	}
	kept := out[:0:0]
	for _, tx := range out {
		if d, ok := tx.Date(); ok && d.After(to) {
			continue
		}
		kept = append(kept, tx)
	}
	return kept
}

// FilterFrom keeps transactions dated on or after from. Transactions
// without a usable date are kept.
func FilterFrom(txs []Transaction, from time.Time) []Transaction {
	if from.IsZero() {
		return txs
	}
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if d, ok := tx.Date(); ok && d.Before(from) {
			continue
		}
		out = append(out, tx)
	}
	return out
}
