package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/roelfdiedericks/clawgate/internal/logging"
)

// Default token file locations, relative to the user home directory.
const (
	AnthropicTokenDir  = ".anthropic-claude-max-proxy"
	AnthropicTokenFile = "tokens.json"
	ChatGPTTokenDir    = ".chatgpt-local"
	ChatGPTTokenFile   = "tokens.json"
)

// Store persists one provider's token bundle on disk. Files are owner
// read/write only; the directory is created on demand with owner-only access.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store for the given token file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// NewAnthropicStore returns the store at the default Anthropic location, or
// at override when non-empty.
func NewAnthropicStore(override string) *Store {
	if override != "" {
		return NewStore(override)
	}
	home, _ := os.UserHomeDir()
	return NewStore(filepath.Join(home, AnthropicTokenDir, AnthropicTokenFile))
}

// NewChatGPTStore returns the store at the default ChatGPT location.
func NewChatGPTStore() *Store {
	home, _ := os.UserHomeDir()
	return NewStore(filepath.Join(home, ChatGPTTokenDir, ChatGPTTokenFile))
}

// Path returns the token file location.
func (s *Store) Path() string { return s.path }

// Save writes the bundle. The write is atomic (temp file + rename) so
// concurrent readers never observe a torn file.
func (s *Store) Save(b *Bundle) error {
	if b == nil || b.AccessToken == "" {
		return errors.New("refusing to save empty token bundle")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token bundle: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename token file: %w", err)
	}

	L_debug("auth: saved tokens", "path", s.path, "type", b.TokenType)
	return nil
}

// Load reads the bundle. A missing file is not an error: it returns
// (nil, nil).
func (s *Store) Load() (*Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", s.path, err)
	}
	if b.AccessToken == "" {
		return nil, nil
	}
	return &b, nil
}

// Clear deletes the token file. Missing files are fine.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// Status describes the stored credentials without exposing secrets.
type Status struct {
	Present       bool   `json:"present"`
	Expired       bool   `json:"expired"`
	TokenType     string `json:"token_type,omitempty"`
	AccountID     string `json:"account_id,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
	TimeRemaining string `json:"time_remaining,omitempty"`
}

// Status reports the state of the stored bundle.
func (s *Store) Status() Status {
	b, err := s.Load()
	if err != nil {
		L_warn("auth: status read failed", "path", s.path, "error", err)
	}
	if b == nil {
		return Status{Present: false, Expired: true}
	}

	st := Status{
		Present:       true,
		Expired:       b.Expired(),
		TokenType:     b.TokenType,
		AccountID:     b.AccountID,
		TimeRemaining: b.TimeRemaining(),
	}
	if b.ExpiresAt > 0 {
		st.ExpiresAt = time.Unix(b.ExpiresAt, 0).UTC().Format(time.RFC3339)
	}
	return st
}
