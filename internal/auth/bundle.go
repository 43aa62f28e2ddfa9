// Package auth manages OAuth credentials for the upstream providers:
// PKCE generation, authorize-URL construction, code exchange, refresh,
// long-term token issuance and persistent storage.
package auth

import (
	"fmt"
	"time"
)

// Token types stored in a bundle.
const (
	TokenTypeOAuthFlow = "oauth_flow"
	TokenTypeLongTerm  = "long_term"
)

// expirySkew is subtracted from expires_at when checking validity, so a
// token about to expire is treated as already expired.
const expirySkew = 5 * time.Second

// Bundle holds the OAuth credentials for one provider.
type Bundle struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	AccountID    string `json:"account_id,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
	TokenType    string `json:"token_type"`
	LastRefresh  string `json:"last_refresh,omitempty"`
}

// Valid reports whether the bundle holds a usable access token.
func (b *Bundle) Valid() bool {
	return b != nil && b.AccessToken != ""
}

// Expired reports whether the access token is past its expiry, with a small
// leading skew.
func (b *Bundle) Expired() bool {
	return b.ExpiredAt(time.Now())
}

// ExpiredAt is Expired against an explicit clock.
func (b *Bundle) ExpiredAt(now time.Time) bool {
	if !b.Valid() {
		return true
	}
	if b.ExpiresAt == 0 {
		return false
	}
	return now.Add(expirySkew).Unix() >= b.ExpiresAt
}

// LongTerm reports whether this is a long-term token, which cannot be
// refreshed and must be regenerated interactively.
func (b *Bundle) LongTerm() bool {
	return b != nil && b.TokenType == TokenTypeLongTerm
}

// TimeRemaining returns a human-readable duration until expiry, or "expired".
func (b *Bundle) TimeRemaining() string {
	if b.ExpiresAt == 0 {
		return "no expiry recorded"
	}
	delta := time.Until(time.Unix(b.ExpiresAt, 0))
	if delta <= 0 {
		return "expired"
	}
	hours := int(delta.Hours())
	minutes := int(delta.Minutes()) % 60
	if hours >= 48 {
		return fmt.Sprintf("%dd %dh", hours/24, hours%24)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
