// Package creds manages runtime-configurable API credentials. Keys arrive
// through the dashboard's configure endpoint and are persisted to disk so
// the trader survives restarts. Secrets are only ever logged as a short
// prefix.
package creds

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pquerna/otp/totp"
)

// Credentials holds the exchange and LLM API keys plus an optional TOTP
// secret guarding trade-mutating endpoints.
type Credentials struct {
	ExchangeAPIKey    string `json:"exchange_api_key"`
	ExchangeAPISecret string `json:"exchange_api_secret"`
	OpenAIAPIKey      string `json:"openai_api_key"`
	TOTPSecret        string `json:"totp_secret,omitempty"`
}

// Validate checks that the required keys are present.
func (c Credentials) Validate() error {
	var missing []string
	if c.ExchangeAPIKey == "" {
		missing = append(missing, "exchange_api_key")
	}
	if c.ExchangeAPISecret == "" {
		missing = append(missing, "exchange_api_secret")
	}
	if c.OpenAIAPIKey == "" {
		missing = append(missing, "openai_api_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Redacted returns a loggable prefix of a secret, never the full value.
func Redacted(secret string) string {
	if len(secret) <= 5 {
		return "*****"
	}
	return secret[:5] + "..."
}

// ErrTOTPRequired is returned when the TOTP guard is armed and the
// supplied code is missing or wrong.
var ErrTOTPRequired = errors.New("valid TOTP code required for trade execution")

// Store persists credentials as JSON under the data directory.
type Store struct {
	path string

	mu    sync.RWMutex
	creds *Credentials
}

// NewStore creates a store writing to dir/credentials.json and loads any
// previously saved credentials.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{path: filepath.Join(dir, "credentials.json")}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil // not configured yet
	}
	if err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("parse credentials file: %w", err)
	}
	s.creds = &c
	return nil
}

// Set validates, persists, and installs new credentials.
func (s *Store) Set(c Credentials) error {
	if err := c.Validate(); err != nil {
		return err
	}
	// Escaped newlines arrive from web forms pasting PEM-style secrets.
	c.ExchangeAPISecret = strings.ReplaceAll(c.ExchangeAPISecret, `\n`, "\n")

	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("persist credentials: %w", err)
	}

	s.mu.Lock()
	s.creds = &c
	s.mu.Unlock()
	return nil
}

// Get returns the current credentials, or false if not configured.
func (s *Store) Get() (Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return Credentials{}, false
	}
	return *s.creds, true
}

// Configured reports whether credentials have been set.
func (s *Store) Configured() bool {
	_, ok := s.Get()
	return ok
}

// CheckTOTP verifies a trade-confirmation code. When no TOTP secret is
// configured the guard is disarmed and every code passes.
func (s *Store) CheckTOTP(code string) error {
	c, ok := s.Get()
	if !ok || c.TOTPSecret == "" {
		return nil
	}
	if !totp.Validate(code, c.TOTPSecret) {
		return ErrTOTPRequired
	}
	return nil
}
