// Package connections links banks through the gateway's authorization flow
// and keeps the list of linked sessions.
package connections

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"konto/internal/accounts"
	"konto/internal/cache"
	"konto/internal/core"
	"konto/internal/gateway"
	"konto/internal/log"
	"konto/internal/storage"
)

// Gateway is the part of the gateway client used to link banks.
type Gateway interface {
	ListBanks(ctx context.Context, countryCode string) ([]core.Bank, error)
	StartAuthorization(ctx context.Context, bankName, bankCountry string) (gateway.Authorization, error)
	ExchangeAuthorizationCode(ctx context.Context, code string) (gateway.SessionData, error)
}

// Refresher rebuilds the unified account list after sessions change.
type Refresher interface {
	Refresh(ctx context.Context, showIndicator bool) (accounts.RefreshReport, error)
}

// Service manages linked sessions.
type Service struct {
	store     storage.Store
	gateway   Gateway
	refresher Refresher
	banks     *cache.LRUCache[[]core.Bank]
	logger    *log.Logger
	now       func() time.Time
}

// NewService wires the service. Bank lists are cached per country for ttl.
func NewService(store storage.Store, gw Gateway, refresher Refresher, ttl time.Duration, logger *log.Logger) *Service {
	return &Service{
		store:     store,
		gateway:   gw,
		refresher: refresher,
		banks:     cache.NewLRUCache[[]core.Bank](32, ttl),
		logger:    log.OrDefault(logger, log.ComponentConnections),
		now:       time.Now,
	}
}

// BankCache exposes the bank list cache for periodic cleanup.
func (s *Service) BankCache() cache.Cleaner {
	return s.banks
}

// Banks lists the institutions of a country whose name contains query,
// ignoring case. An empty query returns all of them.
func (s *Service) Banks(ctx context.Context, country, query string) ([]core.Bank, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return nil, fmt.Errorf("country is required")
	}
	banks, err := s.banks.GetOrLoad(ctx, country, func(ctx context.Context) ([]core.Bank, error) {
		s.logger.DebugContext(ctx, "Loading bank list", log.FieldCountry, country)
		return s.gateway.ListBanks(ctx, country)
	})
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return slices.Clone(banks), nil
	}
	var out []core.Bank
	for _, b := range banks {
		if strings.Contains(strings.ToLower(b.Name), query) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Start begins authorization with a bank and returns the redirect URL.
func (s *Service) Start(ctx context.Context, bankName, country string) (gateway.Authorization, error) {
	auth, err := s.gateway.StartAuthorization(ctx, bankName, country)
	if err != nil {
		return gateway.Authorization{}, err
	}
	s.logger.InfoContext(ctx, "Bank authorization started", "bank", bankName, log.FieldCountry, country)
	return auth, nil
}

// Complete exchanges the redirect code, stores the new session and
// refreshes the account list without the indicator.
func (s *Service) Complete(ctx context.Context, code string) (core.LinkedSession, error) {
	if strings.TrimSpace(code) == "" {
		return core.LinkedSession{}, fmt.Errorf("authorization code is required")
	}
	data, err := s.gateway.ExchangeAuthorizationCode(ctx, code)
	if err != nil {
		return core.LinkedSession{}, err
	}

	session := core.LinkedSession{
		SessionID:   data.SessionID,
		BankName:    data.ASPSP.Name,
		BankCountry: data.ASPSP.Country,
		Accounts:    data.Accounts,
		ConnectedAt: s.now().UTC(),
	}
	sessions, err := s.Sessions(ctx)
	if err != nil {
		return core.LinkedSession{}, err
	}
	if err := s.save(ctx, append(sessions, session)); err != nil {
		return core.LinkedSession{}, err
	}
	s.logger.InfoContext(ctx, "Bank linked",
		log.FieldSessionID, session.SessionID,
		"bank", session.BankName,
		log.FieldCount, len(session.Accounts))

	if _, err := s.refresher.Refresh(ctx, false); err != nil {
		s.logger.WarnContext(ctx, "Refresh after linking failed", log.FieldError, err)
	}
	return session, nil
}

// Sessions returns the linked sessions in the order they were created.
func (s *Service) Sessions(ctx context.Context) ([]core.LinkedSession, error) {
	sessions, _, err := storage.GetJSON[[]core.LinkedSession](ctx, s.store, storage.KeySessions)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	return sessions, nil
}

// Remove unlinks a session and refreshes the account list.
func (s *Service) Remove(ctx context.Context, sessionID string) error {
	sessions, err := s.Sessions(ctx)
	if err != nil {
		return err
	}
	next := slices.DeleteFunc(slices.Clone(sessions), func(ls core.LinkedSession) bool { return ls.SessionID == sessionID })
	if len(next) == len(sessions) {
		return fmt.Errorf("session %s: %w", sessionID, core.ErrNotFound)
	}
	if err := s.save(ctx, next); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Bank unlinked", log.FieldSessionID, sessionID)

	if _, err := s.refresher.Refresh(ctx, false); err != nil {
		s.logger.WarnContext(ctx, "Refresh after unlinking failed", log.FieldError, err)
	}
	return nil
}

func (s *Service) save(ctx context.Context, sessions []core.LinkedSession) error {
	if sessions == nil {
		sessions = []core.LinkedSession{}
	}
	if err := storage.SetJSON(ctx, s.store, storage.KeySessions, sessions); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	return nil
}
