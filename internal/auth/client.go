package auth

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

	. "github.com/roelfdiedericks/clawgate/internal/logging"
)

// Issuer profiles.
const (
	anthropicAuthorizeURL = "https://claude.ai/oauth/authorize"
	anthropicTokenURL     = "https://console.anthropic.com/v1/oauth/token"
	anthropicClientID     = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
	anthropicRedirectURI  = "https://console.anthropic.com/oauth/code/callback"
	anthropicScopes       = "org:create_api_key user:profile user:inference"
	anthropicLongTermScope = "user:inference"

	// Long-term tokens are requested with a one-year lifetime.
	longTermExpiresIn = 31536000

	openaiAuthorizeURL = "https://auth.openai.com/oauth/authorize"
	openaiTokenURL     = "https://auth.openai.com/oauth/token"
	openaiClientID     = "app_EMoamEEZ73f0CkXaXp7hrann"
	openaiRedirectURI  = "http://localhost:1455/auth/callback"
	openaiScopes       = "openid profile email offline_access"
)

// Provider selects the issuer profile.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderChatGPT   Provider = "chatgpt"
)

// AuthError is a non-200 from an issuer's token endpoint.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("oauth endpoint returned %d: %s", e.Status, truncate(e.Body, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Client performs OAuth flows against both issuers.
type Client struct {
	http *http.Client
}

// NewClient creates an OAuth client with a sane timeout.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: 60 * time.Second}}
}

// BuildAuthorizeURL constructs the browser URL for the given provider.
// For Anthropic, longTerm selects the reduced scope used for long-term
// token issuance.
func BuildAuthorizeURL(provider Provider, p *PKCE, longTerm bool) string {
	switch provider {
	case ProviderChatGPT:
		q := url.Values{}
		q.Set("response_type", "code")
		q.Set("client_id", openaiClientID)
		q.Set("redirect_uri", openaiRedirectURI)
		q.Set("scope", openaiScopes)
		q.Set("code_challenge", p.Challenge)
		q.Set("code_challenge_method", "S256")
		q.Set("state", p.State)
		q.Set("id_token_add_organizations", "true")
		q.Set("codex_cli_simplified_flow", "true")
		return openaiAuthorizeURL + "?" + q.Encode()
	default:
		scopes := anthropicScopes
		if longTerm {
			scopes = anthropicLongTermScope
		}
		q := url.Values{}
		q.Set("code", "true")
		q.Set("client_id", anthropicClientID)
		q.Set("response_type", "code")
		q.Set("redirect_uri", anthropicRedirectURI)
		q.Set("scope", scopes)
		q.Set("code_challenge", p.Challenge)
		q.Set("code_challenge_method", "S256")
		q.Set("state", p.State)
		return anthropicAuthorizeURL + "?" + q.Encode()
	}
}

// tokenResponse is the issuer's token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Exchange trades an authorization code for a token bundle. The Anthropic
// console hands the user a "code#state" string; the fragment is split off
// and sent as the state field. longTerm requests a one-year token with no
// refresh token.
func (c *Client) Exchange(ctx context.Context, provider Provider, code string, p *PKCE, longTerm bool) (*Bundle, error) {
	if p == nil || p.Verifier == "" {
		return nil, fmt.Errorf("no PKCE verifier available for exchange")
	}

	var tr *tokenResponse
	var err error
	switch provider {
	case ProviderChatGPT:
		tr, err = c.exchangeChatGPT(ctx, code, p)
	default:
		tr, err = c.exchangeAnthropic(ctx, code, p, longTerm)
	}
	if err != nil {
		return nil, err
	}

	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	b := &Bundle{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		IDToken:      tr.IDToken,
		TokenType:    TokenTypeOAuthFlow,
		LastRefresh:  time.Now().UTC().Format(time.RFC3339),
	}
	if tr.ExpiresIn > 0 {
		b.ExpiresAt = time.Now().Unix() + tr.ExpiresIn
	}
	if longTerm && provider == ProviderAnthropic {
		b.TokenType = TokenTypeLongTerm
		b.RefreshToken = ""
	}
	if provider == ProviderChatGPT {
		if id := ChatGPTAccountID(tr.IDToken); id != "" {
			b.AccountID = id
		} else if id := ChatGPTAccountID(tr.AccessToken); id != "" {
			b.AccountID = id
		}
	}

	ClearPKCE()
	L_info("auth: exchanged authorization code", "provider", provider, "type", b.TokenType)
	return b, nil
}

func (c *Client) exchangeAnthropic(ctx context.Context, code string, p *PKCE, longTerm bool) (*tokenResponse, error) {
	state := p.State
	if i := strings.Index(code, "#"); i >= 0 {
		state = code[i+1:]
		code = code[:i]
	}

	body := map[string]interface{}{
		"grant_type":    "authorization_code",
		"code":          code,
		"state":         state,
		"client_id":     anthropicClientID,
		"redirect_uri":  anthropicRedirectURI,
		"code_verifier": p.Verifier,
	}
	if longTerm {
		body["expires_in"] = longTermExpiresIn
	}
	return c.postJSON(ctx, anthropicTokenURL, body)
}

func (c *Client) exchangeChatGPT(ctx context.Context, code string, p *PKCE) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", openaiRedirectURI)
	form.Set("client_id", openaiClientID)
	form.Set("code_verifier", p.Verifier)
	return c.postForm(ctx, openaiTokenURL, form)
}

// Refresh trades a refresh token for a new bundle. Long-term tokens cannot
// be refreshed; callers must check Bundle.LongTerm first.
func (c *Client) Refresh(ctx context.Context, provider Provider, refreshToken string) (*Bundle, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	var tr *tokenResponse
	var err error
	switch provider {
	case ProviderChatGPT:
		form := url.Values{}
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", refreshToken)
		form.Set("client_id", openaiClientID)
		form.Set("scope", "openid profile email")
		tr, err = c.postForm(ctx, openaiTokenURL, form)
	default:
		tr, err = c.postJSON(ctx, anthropicTokenURL, map[string]interface{}{
			"grant_type":    "refresh_token",
			"refresh_token": refreshToken,
			"client_id":     anthropicClientID,
		})
	}
	if err != nil {
		return nil, err
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("refresh response missing access_token")
	}

	b := &Bundle{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		IDToken:      tr.IDToken,
		TokenType:    TokenTypeOAuthFlow,
		LastRefresh:  time.Now().UTC().Format(time.RFC3339),
	}
	if b.RefreshToken == "" {
		b.RefreshToken = refreshToken
	}
	if tr.ExpiresIn > 0 {
		b.ExpiresAt = time.Now().Unix() + tr.ExpiresIn
	}
	if provider == ProviderChatGPT {
		if id := ChatGPTAccountID(tr.IDToken); id != "" {
			b.AccountID = id
		} else if id := ChatGPTAccountID(tr.AccessToken); id != "" {
			b.AccountID = id
		}
	}

	L_info("auth: refreshed tokens", "provider", provider)
	return b, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body map[string]interface{}) (*tokenResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*tokenResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{Status: resp.StatusCode, Body: string(data)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}
	return &tr, nil
}
