package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeStore is an in-memory auth.Store for tests.
type fakeStore struct {
	oauthMode bool
	apiKey    string
	access    string
	refresh   string
	expiresAt int64
	saved     int
	saveErr   error
}

func (s *fakeStore) OAuthMode() bool { return s.oauthMode }
func (s *fakeStore) APIKey() string  { return s.apiKey }
func (s *fakeStore) OAuthTokens() (string, string, int64) {
	return s.access, s.refresh, s.expiresAt
}
func (s *fakeStore) SetOAuthTokens(access, refresh string, expiresAt int64) {
	s.access, s.refresh, s.expiresAt = access, refresh, expiresAt
}
func (s *fakeStore) Save() error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved++
	return nil
}

func newTestManager(t *testing.T, store Store) *Manager {
	t.Helper()
	return NewManager(store, zerolog.Nop())
}

func TestIsExpired(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)

	tests := []struct {
		name      string
		expiresAt int64
		want      bool
	}{
		{"zero is always expired", 0, true},
		{"negative is always expired", -1, true},
		{"long past", now.Unix() - 3600, true},
		{"inside the five minute buffer", now.Unix() + 299, true},
		{"exactly at the buffer boundary", now.Unix() + 300, true},
		{"just outside the buffer", now.Unix() + 301, false},
		{"far future", now.Unix() + 86400, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpired(tt.expiresAt, now); got != tt.want {
				t.Errorf("IsExpired(%d) = %v, want %v", tt.expiresAt, got, tt.want)
			}
		})
	}
}

func TestCurrentByMode(t *testing.T) {
	t.Run("api key mode", func(t *testing.T) {
		m := newTestManager(t, &fakeStore{apiKey: "sk-test"})
		cred := m.Current()
		if cred.Kind != KindAPIKey || cred.APIKey != "sk-test" {
			t.Errorf("Current() = %+v, want api-key credential", cred)
		}
	})

	t.Run("oauth mode", func(t *testing.T) {
		m := newTestManager(t, &fakeStore{
			oauthMode: true, access: "at", refresh: "rt", expiresAt: 42,
		})
		cred := m.Current()
		if cred.Kind != KindOAuth || cred.AccessToken != "at" || cred.RefreshToken != "rt" || cred.ExpiresAt != 42 {
			t.Errorf("Current() = %+v, want oauth credential", cred)
		}
	})

	t.Run("availability", func(t *testing.T) {
		m := newTestManager(t, &fakeStore{oauthMode: true})
		if m.Available() {
			t.Error("Available() = true with no token")
		}
	})
}

func TestEnsureValid(t *testing.T) {
	t.Run("no-op in api key mode", func(t *testing.T) {
		store := &fakeStore{apiKey: "sk-test"}
		m := newTestManager(t, store)
		if err := m.EnsureValid(context.Background()); err != nil {
			t.Fatalf("EnsureValid() error = %v", err)
		}
		if store.saved != 0 {
			t.Error("EnsureValid() saved the store in api-key mode")
		}
	})

	t.Run("no-op while token still valid", func(t *testing.T) {
		store := &fakeStore{
			oauthMode: true, access: "at", refresh: "rt",
			expiresAt: time.Now().Unix() + 3600,
		}
		m := newTestManager(t, store)
		if err := m.EnsureValid(context.Background()); err != nil {
			t.Fatalf("EnsureValid() error = %v", err)
		}
		if store.access != "at" {
			t.Errorf("access token mutated to %q", store.access)
		}
	})

	t.Run("expired without refresh token fails fast", func(t *testing.T) {
		store := &fakeStore{oauthMode: true, access: "at", expiresAt: 1}
		m := newTestManager(t, store)
		err := m.EnsureValid(context.Background())
		if !errors.Is(err, ErrExpiredNoRefresh) {
			t.Fatalf("EnsureValid() error = %v, want ErrExpiredNoRefresh", err)
		}
	})

	t.Run("expired token refreshes and persists", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["grant_type"] != "refresh_token" || body["refresh_token"] != "rt-old" {
				t.Errorf("unexpected token request body: %v", body)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "at-new",
				"refresh_token": "rt-new",
				"expires_in":    7200,
			})
		}))
		defer srv.Close()

		store := &fakeStore{oauthMode: true, access: "at-old", refresh: "rt-old", expiresAt: 1}
		m := newTestManager(t, store)
		m.tokenURL = srv.URL
		m.now = func() time.Time { return time.Unix(1_800_000_000, 0) }

		if err := m.EnsureValid(context.Background()); err != nil {
			t.Fatalf("EnsureValid() error = %v", err)
		}
		if store.access != "at-new" || store.refresh != "rt-new" {
			t.Errorf("store tokens = (%q, %q), want refreshed pair", store.access, store.refresh)
		}
		if want := int64(1_800_000_000 + 7200); store.expiresAt != want {
			t.Errorf("store expiresAt = %d, want %d", store.expiresAt, want)
		}
		if store.saved != 1 {
			t.Errorf("Save() called %d times, want 1", store.saved)
		}
	})

	t.Run("failed refresh leaves stored credentials untouched", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error_description": "revoked"})
		}))
		defer srv.Close()

		store := &fakeStore{oauthMode: true, access: "at-old", refresh: "rt-old", expiresAt: 1}
		m := newTestManager(t, store)
		m.tokenURL = srv.URL

		err := m.EnsureValid(context.Background())
		var refreshErr *RefreshError
		if !errors.As(err, &refreshErr) {
			t.Fatalf("EnsureValid() error = %v, want *RefreshError", err)
		}
		if store.access != "at-old" || store.refresh != "rt-old" || store.saved != 0 {
			t.Errorf("stored credentials mutated after failed refresh: %+v", store)
		}
	})
}

func TestRefreshKeepsOldRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No refresh_token in the response; caller keeps the old one.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-new",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	m := newTestManager(t, &fakeStore{oauthMode: true})
	m.tokenURL = srv.URL

	cred, err := m.Refresh(context.Background(), "rt-keep")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if cred.RefreshToken != "rt-keep" {
		t.Errorf("RefreshToken = %q, want the original token kept", cred.RefreshToken)
	}
}

func TestParseClaudeCodeCredentials(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantOK    bool
		wantToken string
		wantExp   int64
	}{
		{
			name:      "flat object",
			raw:       `{"accessToken":"at","refreshToken":"rt","expiresAt":1800000000}`,
			wantOK:    true,
			wantToken: "at",
			wantExp:   1_800_000_000,
		},
		{
			name:      "default provider entry",
			raw:       `{"default":{"accessToken":"at-d","expiresAt":100}}`,
			wantOK:    true,
			wantToken: "at-d",
			wantExp:   100,
		},
		{
			name:      "first provider entry with a token",
			raw:       `{"claudeAiOauth":{"accessToken":"at-p","refreshToken":"rt-p","expiresAt":5}}`,
			wantOK:    true,
			wantToken: "at-p",
			wantExp:   5,
		},
		{
			name:    "millisecond timestamps normalized to seconds",
			raw:     `{"accessToken":"at","expiresAt":1800000000000}`,
			wantOK:  true,
			wantExp: 1_800_000_000,
		},
		{name: "missing access token", raw: `{"refreshToken":"rt"}`, wantOK: false},
		{name: "malformed json", raw: `{nope`, wantOK: false},
		{name: "not an object", raw: `[1,2]`, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imp, ok := parseClaudeCodeCredentials([]byte(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if tt.wantToken != "" && imp.AccessToken != tt.wantToken {
				t.Errorf("AccessToken = %q, want %q", imp.AccessToken, tt.wantToken)
			}
			if imp.ExpiresAt != tt.wantExp {
				t.Errorf("ExpiresAt = %d, want %d", imp.ExpiresAt, tt.wantExp)
			}
		})
	}
}
