// Package gateway is the client for the banking proxy that signs and
// forwards requests to the open-banking provider.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"konto/internal/core"
	"konto/internal/log"
)

// Authorization is the result of starting a bank authorization.
type Authorization struct {
	RedirectURL     string `json:"url"`
	AuthorizationID string `json:"authorization_id"`
}

// SessionData is returned when an authorization code is exchanged.
type SessionData struct {
	SessionID string                 `json:"session_id"`
	Accounts  []core.UpstreamAccount `json:"accounts"`
	ASPSP     core.Bank              `json:"aspsp"`
}

// Balance is one balance entry of an account.
type Balance struct {
	Name          string     `json:"name,omitempty"`
	BalanceAmount core.Money `json:"balance_amount"`
	BalanceType   string     `json:"balance_type"`
	ReferenceDate string     `json:"reference_date,omitempty"`
}

// TransactionsPage is one page of transactions in booked-then-pending order.
type TransactionsPage struct {
	Transactions    []core.Transaction
	ContinuationKey string
}

// TransactionsQuery narrows a transactions request. Zero fields are omitted.
type TransactionsQuery struct {
	DateFrom        time.Time
	DateTo          time.Time
	ContinuationKey string
}

// Client calls the proxy. It never retries; callers decide what to do with
// failures.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

// New returns a client for baseURL. A nil httpClient gets a 30s timeout.
func New(baseURL string, httpClient *http.Client, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  log.OrDefault(logger, log.ComponentGateway),
	}
}

// StartAuthorization begins the bank authorization flow.
func (c *Client) StartAuthorization(ctx context.Context, bankName, bankCountry string) (Authorization, error) {
	var out Authorization
	body := map[string]string{"aspspName": bankName, "aspspCountry": bankCountry}
	if err := c.do(ctx, http.MethodPost, "/auth", body, &out); err != nil {
		return Authorization{}, fmt.Errorf("start authorization: %w", err)
	}
	return out, nil
}

// ExchangeAuthorizationCode turns the redirect code into a session.
func (c *Client) ExchangeAuthorizationCode(ctx context.Context, code string) (SessionData, error) {
	var out SessionData
	if err := c.do(ctx, http.MethodPost, "/sessions", map[string]string{"code": code}, &out); err != nil {
		return SessionData{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	return out, nil
}

// FetchBalances returns all balance entries of accountID.
func (c *Client) FetchBalances(ctx context.Context, accountID string) ([]Balance, error) {
	var out struct {
		Balances []Balance `json:"balances"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(accountID)+"/balances", nil, &out); err != nil {
		return nil, fmt.Errorf("fetch balances: %w", err)
	}
	return out.Balances, nil
}

// FetchTransactions returns one page of transactions.
func (c *Client) FetchTransactions(ctx context.Context, accountID string, q TransactionsQuery) (TransactionsPage, error) {
	params := url.Values{}
	if !q.DateFrom.IsZero() {
		params.Set("date_from", q.DateFrom.Format(core.DateLayout))
	}
	if !q.DateTo.IsZero() {
		params.Set("date_to", q.DateTo.Format(core.DateLayout))
	}
	if q.ContinuationKey != "" {
		params.Set("continuation_key", q.ContinuationKey)
	}
	path := "/accounts/" + url.PathEscape(accountID) + "/transactions"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var out struct {
		Transactions    transactionList `json:"transactions"`
		ContinuationKey string          `json:"continuation_key"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return TransactionsPage{}, fmt.Errorf("fetch transactions: %w", err)
	}
	return TransactionsPage{Transactions: out.Transactions, ContinuationKey: out.ContinuationKey}, nil
}

// ListBanks lists the institutions available in countryCode.
func (c *Client) ListBanks(ctx context.Context, countryCode string) ([]core.Bank, error) {
	var out struct {
		ASPSPs []core.Bank `json:"aspsps"`
	}
	path := "/aspsps?" + url.Values{"country": {countryCode}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	return out.ASPSPs, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Gateway request failed", "method", method, "path", path, log.FieldError, err)
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.logger.DebugContext(ctx, "Gateway request completed",
		"method", method,
		"path", path,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
