package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roelfdiedericks/clawgate/internal/gwerr"
	. "github.com/roelfdiedericks/clawgate/internal/logging"
)

// Refresh heuristics.
const (
	// refreshLead refreshes tokens whose JWT exp is this close.
	refreshLead = 5 * time.Minute
	// refreshInterval forces a refresh when the last one is older than this.
	refreshInterval = 55 * time.Minute
)

// Manager wraps a Store and Client, handing out valid access tokens and
// refreshing behind the scenes. Safe for concurrent use; a refresh happens
// at most once at a time.
type Manager struct {
	provider Provider
	store    *Store
	client   *Client
	mu       sync.Mutex
}

// NewManager creates a token manager for a provider.
func NewManager(provider Provider, store *Store) *Manager {
	return &Manager{provider: provider, store: store, client: NewClient()}
}

// Store exposes the underlying token store.
func (m *Manager) Store() *Store { return m.store }

// Provider returns the managed provider.
func (m *Manager) Provider() Provider { return m.provider }

// SeedLongTerm stores a long-term token supplied via environment, for
// headless deployments. Ignored when empty or when valid tokens exist.
func (m *Manager) SeedLongTerm(token string) {
	if token == "" {
		return
	}
	if b, _ := m.store.Load(); b != nil && !b.Expired() {
		return
	}
	b := &Bundle{
		AccessToken: token,
		TokenType:   TokenTypeLongTerm,
		LastRefresh: time.Now().UTC().Format(time.RFC3339),
	}
	if err := m.store.Save(b); err != nil {
		L_warn("auth: failed to seed long-term token", "error", err)
		return
	}
	L_info("auth: seeded long-term token from environment", "provider", m.provider)
}

// needsRefresh decides whether the bundle should be refreshed now.
func needsRefresh(b *Bundle, now time.Time) bool {
	if b.LongTerm() {
		return false
	}
	if b.ExpiredAt(now) {
		return true
	}
	if exp := JWTExpiry(b.AccessToken); !exp.IsZero() && !exp.After(now.Add(refreshLead)) {
		return true
	}
	if b.LastRefresh != "" {
		if at, err := time.Parse(time.RFC3339, b.LastRefresh); err == nil {
			if now.Sub(at) >= refreshInterval {
				return true
			}
		}
	}
	return false
}

// ValidToken returns a usable access token and the associated account id,
// refreshing first when needed. Errors are from the gwerr taxonomy.
func (m *Manager) ValidToken(ctx context.Context) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.store.Load()
	if err != nil {
		return "", "", err
	}
	if b == nil {
		return "", "", gwerr.ErrAuthAbsent
	}

	now := time.Now()
	if b.LongTerm() {
		if b.ExpiredAt(now) {
			return "", "", gwerr.ErrAuthExpired
		}
		return b.AccessToken, b.AccountID, nil
	}

	if !needsRefresh(b, now) {
		return b.AccessToken, b.AccountID, nil
	}

	L_debug("auth: refreshing tokens", "provider", m.provider)
	fresh, err := m.client.Refresh(ctx, m.provider, b.RefreshToken)
	if err != nil {
		var ae *AuthError
		if errors.As(err, &ae) {
			L_error("auth: refresh rejected", "provider", m.provider, "status", ae.Status)
			return "", "", gwerr.ErrAuthExpired
		}
		// Transport failure: fall back to the stored token if it is still
		// within its lifetime, otherwise report expiry.
		if !b.ExpiredAt(now) {
			L_warn("auth: refresh failed, using stored token", "provider", m.provider, "error", err)
			return b.AccessToken, b.AccountID, nil
		}
		return "", "", gwerr.ErrAuthExpired
	}

	if fresh.AccountID == "" {
		fresh.AccountID = b.AccountID
	}
	if err := m.store.Save(fresh); err != nil {
		L_warn("auth: failed to persist refreshed tokens", "error", err)
	}
	return fresh.AccessToken, fresh.AccountID, nil
}
