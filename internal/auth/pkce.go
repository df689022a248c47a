package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
)

// OAuth client constants for the claude.ai browser login flow.
const (
	clientID    = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
	authURL     = "https://claude.ai/oauth/authorize"
	redirectURI = "https://console.anthropic.com/oauth/code/callback"
	scopes      = "user:inference user:profile"
)

// Login holds the state of a PKCE login attempt between BeginLogin and
// CompleteLogin. The verifier never leaves the process.
type Login struct {
	Verifier         string
	State            string
	AuthorizationURL string
}

// BeginLogin generates a PKCE verifier/challenge pair plus an anti-CSRF
// state value and builds the authorization URL the user opens in a browser.
func BeginLogin() (Login, error) {
	verifier, err := randomToken(64)
	if err != nil {
		return Login{}, fmt.Errorf("generating code verifier: %w", err)
	}
	state, err := randomToken(16)
	if err != nil {
		return Login{}, fmt.Errorf("generating state: %w", err)
	}

	params := url.Values{
		"response_type":         {"code"},
		"client_id":             {clientID},
		"redirect_uri":          {redirectURI},
		"scope":                 {scopes},
		"code_challenge":        {challengeFor(verifier)},
		"code_challenge_method": {"S256"},
		"state":                 {state},
	}
	return Login{
		Verifier:         verifier,
		State:            state,
		AuthorizationURL: authURL + "?" + params.Encode(),
	}, nil
}

// CompleteLogin exchanges the authorization code (copied back by the user
// after the browser flow) for a token pair. The returned credential is not
// persisted; callers decide whether to store it.
func (m *Manager) CompleteLogin(ctx context.Context, code, verifier string) (Credential, error) {
	resp, err := m.tokenRequest(ctx, map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     clientID,
		"code":          code,
		"redirect_uri":  redirectURI,
		"code_verifier": verifier,
	})
	if err != nil {
		return Credential{}, fmt.Errorf("token exchange failed: %w", err)
	}
	m.log.Info().Int64("expires_in", resp.expiresIn()).Msg("token exchange successful")
	return Credential{
		Kind:         KindOAuth,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    m.now().Unix() + resp.expiresIn(),
	}, nil
}

// challengeFor derives the S256 code challenge from a verifier.
func challengeFor(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// randomToken returns n random bytes URL-safe base64 encoded without
// padding.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
