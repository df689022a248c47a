// Package auth owns the credential lifecycle: the API-key / OAuth credential
// union, token expiry and refresh, PKCE browser login, and import of the
// credential cache maintained by the Claude Code CLI. Nothing outside this
// package mutates credential material.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zalando/go-keyring"
)

// tokenURL is the OAuth token endpoint used for code exchange and refresh.
const tokenURL = "https://console.anthropic.com/v1/oauth/token"

// expiryBuffer refreshes tokens this long before their actual expiry.
const expiryBuffer = 300 * time.Second

const requestTimeout = 15 * time.Second

// Kind discriminates the two credential kinds.
type Kind int

const (
	KindAPIKey Kind = iota
	KindOAuth
)

// Credential is the tagged union of auth material. Exactly the fields for
// its Kind are populated.
type Credential struct {
	Kind Kind

	APIKey string

	AccessToken  string
	RefreshToken string
	ExpiresAt    int64 // unix seconds; 0 means unknown
}

// Empty reports whether no usable auth material is present.
func (c Credential) Empty() bool {
	if c.Kind == KindAPIKey {
		return c.APIKey == ""
	}
	return c.AccessToken == ""
}

// Store is the persisted-settings collaborator the manager reads and writes
// credential material through. Save must persist atomically; the manager
// never performs file I/O itself.
type Store interface {
	OAuthMode() bool
	APIKey() string
	OAuthTokens() (access, refresh string, expiresAt int64)
	SetOAuthTokens(access, refresh string, expiresAt int64)
	Save() error
}

// ErrExpiredNoRefresh is returned when the OAuth token is expired and no
// refresh token is available; the user has to log in again.
var ErrExpiredNoRefresh = errors.New("oauth token expired and no refresh token available, re-login required")

// RefreshError wraps a failed token refresh. Stored credentials are left
// untouched when it occurs.
type RefreshError struct {
	cause error
}

func (e *RefreshError) Error() string { return fmt.Sprintf("token refresh failed: %v", e.cause) }

func (e *RefreshError) Unwrap() error { return e.cause }

// Manager keeps one credential valid. All methods are safe for concurrent
// use; the scheduled poll goroutine and ad-hoc refresh goroutines both call
// EnsureValid.
type Manager struct {
	mu       sync.Mutex
	store    Store
	httpc    *http.Client
	tokenURL string
	now      func() time.Time
	log      zerolog.Logger
}

// NewManager creates a Manager backed by the given store.
func NewManager(store Store, log zerolog.Logger) *Manager {
	return &Manager{
		store:    store,
		httpc:    &http.Client{Timeout: requestTimeout},
		tokenURL: tokenURL,
		now:      time.Now,
		log:      log.With().Str("component", "auth").Logger(),
	}
}

// Current returns the credential as configured right now. OAuth fields come
// from the store; an empty configured API key falls back to the store's
// environment lookup.
func (m *Manager) Current() Credential {
	if m.store.OAuthMode() {
		access, refresh, expiresAt := m.store.OAuthTokens()
		return Credential{
			Kind:         KindOAuth,
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresAt:    expiresAt,
		}
	}
	return Credential{Kind: KindAPIKey, APIKey: m.store.APIKey()}
}

// Available reports whether a usable credential is configured.
func (m *Manager) Available() bool {
	return !m.Current().Empty()
}

// IsExpired reports whether an OAuth expiry timestamp is past (or within the
// safety buffer of) now. A non-positive timestamp always counts as expired.
func IsExpired(expiresAt int64, now time.Time) bool {
	if expiresAt <= 0 {
		return true
	}
	return !now.Before(time.Unix(expiresAt, 0).Add(-expiryBuffer))
}

// EnsureValid refreshes the OAuth token if it is expired or about to expire.
// It is a no-op in API-key mode. On success the refreshed tokens are
// persisted through the store before returning; a failed refresh leaves the
// stored credentials untouched.
func (m *Manager) EnsureValid(ctx context.Context) error {
	if !m.store.OAuthMode() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, refresh, expiresAt := m.store.OAuthTokens()
	if !IsExpired(expiresAt, m.now()) {
		return nil
	}
	if refresh == "" {
		m.log.Warn().Msg("oauth token expired and no refresh token available")
		return ErrExpiredNoRefresh
	}

	m.log.Info().Msg("oauth token expired, refreshing")
	cred, err := m.refreshLocked(ctx, refresh)
	if err != nil {
		return err
	}

	m.store.SetOAuthTokens(cred.AccessToken, cred.RefreshToken, cred.ExpiresAt)
	if err := m.store.Save(); err != nil {
		return &RefreshError{cause: fmt.Errorf("persisting refreshed tokens: %w", err)}
	}
	m.log.Info().Int64("expires_at", cred.ExpiresAt).Msg("oauth token refreshed")
	return nil
}

// Refresh exchanges a refresh token for a new token pair. It does not touch
// the store; EnsureValid is the persisting path.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx, refreshToken)
}

func (m *Manager) refreshLocked(ctx context.Context, refreshToken string) (Credential, error) {
	resp, err := m.tokenRequest(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     clientID,
		"refresh_token": refreshToken,
	})
	if err != nil {
		m.log.Error().Err(err).Msg("oauth token refresh failed")
		return Credential{}, &RefreshError{cause: err}
	}

	newRefresh := resp.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	return Credential{
		Kind:         KindOAuth,
		AccessToken:  resp.AccessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    m.now().Unix() + resp.expiresIn(),
	}, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (r tokenResponse) expiresIn() int64 {
	if r.ExpiresIn <= 0 {
		return 3600
	}
	return r.ExpiresIn
}

// tokenRequest posts a JSON body to the token endpoint and decodes the
// response, surfacing non-200 statuses with the server's error description.
func (m *Manager) tokenRequest(ctx context.Context, body map[string]string) (*tokenResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, errorDescription(resp.Body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, errors.New("token response missing access_token")
	}
	return &tr, nil
}

func errorDescription(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var parsed struct {
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(raw, &parsed) == nil && parsed.ErrorDescription != "" {
		return parsed.ErrorDescription
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return string(raw)
}

// ---------------------------------------------------------------------------
// Claude Code credential import

// keyringService is the name Claude Code stores its credentials under in the
// OS keyring.
const keyringService = "Claude Code-credentials"

// ImportedCredential is the result of a Claude Code credential import.
type ImportedCredential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64 // unix seconds
}

// ImportFromClaudeCode reads the credential cache maintained by the Claude
// Code CLI, trying the OS keyring first and then
// ~/.claude/.credentials.json. Absence of the store, malformed content, or a
// missing access token all resolve to found=false, never an error.
func (m *Manager) ImportFromClaudeCode() (ImportedCredential, bool) {
	if raw, ok := readKeyringCredentials(); ok {
		if imp, ok := parseClaudeCodeCredentials(raw); ok {
			m.log.Info().Msg("imported oauth credentials from keyring")
			return imp, true
		}
	}

	path := claudeCodeCredentialsPath()
	if path == "" {
		return ImportedCredential{}, false
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		m.log.Debug().Str("path", path).Msg("claude code credentials file not found")
		return ImportedCredential{}, false
	}
	imp, ok := parseClaudeCodeCredentials(raw)
	if ok {
		m.log.Info().Str("path", path).Msg("imported oauth credentials from file")
	}
	return imp, ok
}

// ImportAndSave imports Claude Code credentials and persists them through
// the store. Returns false when nothing was found.
func (m *Manager) ImportAndSave() (bool, error) {
	imp, ok := m.ImportFromClaudeCode()
	if !ok {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.SetOAuthTokens(imp.AccessToken, imp.RefreshToken, imp.ExpiresAt)
	if err := m.store.Save(); err != nil {
		return false, err
	}
	return true, nil
}

func claudeCodeCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude", ".credentials.json")
}

func readKeyringCredentials() ([]byte, bool) {
	username := os.Getenv("USER")
	if username == "" {
		u, err := user.Current()
		if err != nil {
			return nil, false
		}
		username = u.Username
	}
	secret, err := keyring.Get(keyringService, username)
	if err != nil || secret == "" {
		return nil, false
	}
	return []byte(secret), true
}

// parseClaudeCodeCredentials accepts the shapes Claude Code has used over
// time: a flat object with an accessToken field, or an object keyed by
// provider ("default" preferred, otherwise the first entry carrying an
// access token). Millisecond expiry timestamps are normalized to seconds.
func parseClaudeCodeCredentials(raw []byte) (ImportedCredential, bool) {
	var data map[string]json.RawMessage
	if err := json.Unmarshal(raw, &data); err != nil {
		return ImportedCredential{}, false
	}

	type entry struct {
		AccessToken  string  `json:"accessToken"`
		RefreshToken string  `json:"refreshToken"`
		ExpiresAt    float64 `json:"expiresAt"`
	}

	decode := func(msg json.RawMessage) (entry, bool) {
		var e entry
		if json.Unmarshal(msg, &e) != nil || e.AccessToken == "" {
			return entry{}, false
		}
		return e, true
	}

	var found entry
	var ok bool
	if msg, exists := data["default"]; exists {
		found, ok = decode(msg)
	}
	if !ok {
		// Flat shape: the top-level object is the entry itself.
		found, ok = decode(raw)
	}
	if !ok {
		for _, msg := range data {
			if found, ok = decode(msg); ok {
				break
			}
		}
	}
	if !ok {
		return ImportedCredential{}, false
	}

	expiresAt := int64(found.ExpiresAt)
	if found.ExpiresAt > 1e12 {
		expiresAt = int64(found.ExpiresAt / 1000)
	}
	return ImportedCredential{
		AccessToken:  found.AccessToken,
		RefreshToken: found.RefreshToken,
		ExpiresAt:    expiresAt,
	}, true
}
