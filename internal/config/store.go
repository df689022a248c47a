package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/nixlim/burnbar/internal/alert"
	"github.com/nixlim/burnbar/internal/auth"
)

var _ auth.Store = (*Store)(nil)

// Store is the live, mutex-guarded configuration. The auth manager reads
// and writes credential material through it; everything else reads
// settings. Save rewrites the backing file atomically.
type Store struct {
	mu   sync.Mutex
	cfg  Config
	path string
}

// NewStore wraps a loaded Config. path is where Save writes; an empty
// path makes Save a no-op for tests.
func NewStore(cfg Config, path string) *Store {
	return &Store{cfg: cfg, path: path}
}

// OAuthMode reports whether OAuth is the configured auth mode.
func (s *Store) OAuthMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.AuthMode == AuthOAuth
}

// APIKey returns the configured API key, falling back to the
// ANTHROPIC_API_KEY environment variable when the config has none.
func (s *Store) APIKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.APIKey != "" {
		return s.cfg.APIKey
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

// OAuthTokens returns the stored OAuth credential material.
func (s *Store) OAuthTokens() (access, refresh string, expiresAt int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.OAuth.AccessToken, s.cfg.OAuth.RefreshToken, s.cfg.OAuth.ExpiresAt
}

// SetOAuthTokens replaces the stored OAuth credential material.
func (s *Store) SetOAuthTokens(access, refresh string, expiresAt int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.OAuth = OAuthConfig{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}
}

// SetAuthMode switches the auth mode. Unknown values fall back to OAuth.
func (s *Store) SetAuthMode(mode string) {
	if mode != AuthOAuth && mode != AuthAPIKey {
		mode = AuthOAuth
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.AuthMode = mode
}

// SetAPIKey stores an API key.
func (s *Store) SetAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.APIKey = key
}

// PollInterval returns the configured poll interval.
func (s *Store) PollInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.cfg.PollIntervalSeconds) * time.Second
}

// Thresholds returns the alert thresholds.
func (s *Store) Thresholds() alert.Thresholds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return alert.Thresholds{
		YellowPct:   s.cfg.YellowThresholdPct,
		RedPct:      s.cfg.RedThresholdPct,
		CriticalPct: s.cfg.CriticalThresholdPct,
	}
}

// SystemNotify reports whether desktop notifications are enabled.
func (s *Store) SystemNotify() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.SystemNotify
}

// EndpointMode returns the API-key endpoint strategy.
func (s *Store) EndpointMode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.EndpointMode
}

// Snapshot returns a copy of the current configuration.
func (s *Store) Snapshot() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Save writes the configuration to its file via a temp file and rename,
// so a crash mid-write never truncates the stored credentials. The file
// is created 0600 because it holds tokens.
func (s *Store) Save() error {
	s.mu.Lock()
	cfg := s.cfg
	path := s.path
	s.mu.Unlock()

	if path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	return os.Rename(tmp, path)
}
