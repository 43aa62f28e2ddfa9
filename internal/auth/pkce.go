package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// PKCE holds a verifier/challenge pair for one OAuth flow. The state
// parameter equals the verifier, mirroring the upstream CLIs.
type PKCE struct {
	Verifier  string `json:"code_verifier"`
	Challenge string `json:"-"`
	State     string `json:"state"`
}

// GeneratePKCE creates a fresh verifier (32 random bytes, base64url without
// padding) and its S256 challenge.
func GeneratePKCE() (*PKCE, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate PKCE verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)

	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	return &PKCE{Verifier: verifier, Challenge: challenge, State: verifier}, nil
}

// pkceFile returns the temp-dir path where transient PKCE state lives
// between authorize and exchange.
func pkceFile() string {
	return filepath.Join(os.TempDir(), "clawgate-pkce.json")
}

// Persist writes the verifier and state so the exchange step can find them
// after the browser round trip.
func (p *PKCE) Persist() error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode PKCE state: %w", err)
	}
	if err := os.WriteFile(pkceFile(), data, 0o600); err != nil {
		return fmt.Errorf("write PKCE state: %w", err)
	}
	return nil
}

// LoadPKCE reads persisted PKCE state. Returns (nil, nil) when absent.
func LoadPKCE() (*PKCE, error) {
	data, err := os.ReadFile(pkceFile())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read PKCE state: %w", err)
	}
	var p PKCE
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse PKCE state: %w", err)
	}
	if p.Verifier == "" || p.State == "" {
		return nil, nil
	}
	return &p, nil
}

// ClearPKCE removes the persisted state. Call after a successful exchange.
func ClearPKCE() {
	os.Remove(pkceFile())
}
