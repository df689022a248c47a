// Package api implements the rate-limit client: minimal billable requests
// against the Anthropic API whose response headers carry the quota state.
// Responses are normalized into a usage.Snapshot; a failed check never
// yields a partially populated snapshot.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nixlim/burnbar/internal/auth"
	"github.com/nixlim/burnbar/internal/usage"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1"

	apiVersion = "2023-06-01"
	betaHeader = "oauth-2025-04-20"

	// haikuModel keeps the one-token probe as cheap as possible in
	// API-key mode. OAuth mode probes the Sonnet class because the
	// 7d_sonnet headers are only emitted for it.
	haikuModel  = "claude-haiku-4-5-20251001"
	sonnetModel = "claude-sonnet-4-6"

	requestTimeout = 15 * time.Second
)

// EndpointMode selects the API-key probing strategy.
type EndpointMode string

const (
	// EndpointBoth tries count_tokens first and falls back to a minimal
	// completion when no rate-limit headers come back.
	EndpointBoth EndpointMode = "both"
	// EndpointCountTokens pins to the count_tokens endpoint.
	EndpointCountTokens EndpointMode = "count_tokens"
	// EndpointMessages pins to the minimal completion endpoint.
	EndpointMessages EndpointMode = "messages"
)

// Standard (single-window) rate-limit headers.
const (
	hdrTokensLimit       = "anthropic-ratelimit-tokens-limit"
	hdrTokensRemaining   = "anthropic-ratelimit-tokens-remaining"
	hdrTokensReset       = "anthropic-ratelimit-tokens-reset"
	hdrRequestsLimit     = "anthropic-ratelimit-requests-limit"
	hdrRequestsRemaining = "anthropic-ratelimit-requests-remaining"
)

// Unified (three-window) rate-limit headers.
const (
	hdrUnified5hUtil      = "anthropic-ratelimit-unified-5h-utilization"
	hdrUnified7dUtil      = "anthropic-ratelimit-unified-7d-utilization"
	hdrUnifiedSonnetUtil  = "anthropic-ratelimit-unified-7d_sonnet-utilization"
	hdrUnified5hReset     = "anthropic-ratelimit-unified-5h-reset"
	hdrUnified7dReset     = "anthropic-ratelimit-unified-7d-reset"
	hdrUnifiedSonnetReset = "anthropic-ratelimit-unified-7d_sonnet-reset"
)

// Client issues usage checks. It is stateless apart from its HTTP client
// and safe for concurrent use by the scheduled and manual poll goroutines.
type Client struct {
	baseURL      string
	endpointMode EndpointMode
	httpc        *http.Client
	log          zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpointMode sets the API-key probing strategy (default EndpointBoth).
func WithEndpointMode(mode EndpointMode) Option {
	return func(c *Client) { c.endpointMode = mode }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpc = hc }
}

// New creates a Client.
func New(log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:      defaultBaseURL,
		endpointMode: EndpointBoth,
		httpc:        &http.Client{Timeout: requestTimeout},
		log:          log.With().Str("component", "api").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckUsage queries the API once and returns the normalized quota
// snapshot. The protocol is selected by the credential kind: OAuth always
// probes the completion endpoint and prefers unified headers; API-key mode
// follows the configured endpoint strategy.
func (c *Client) CheckUsage(ctx context.Context, cred auth.Credential) (usage.Snapshot, error) {
	if cred.Kind == auth.KindOAuth {
		return c.checkOAuth(ctx, cred)
	}
	return c.checkAPIKey(ctx, cred)
}

func (c *Client) checkAPIKey(ctx context.Context, cred auth.Credential) (usage.Snapshot, error) {
	if cred.APIKey == "" {
		return usage.Snapshot{}, &Error{Kind: ErrInvalidCredential, Message: "API key not configured"}
	}

	var lastErr error

	if c.endpointMode == EndpointBoth || c.endpointMode == EndpointCountTokens {
		c.log.Debug().Msg("trying count_tokens endpoint")
		resp, err := c.post(ctx, cred, "/messages/count_tokens", haikuModel)
		switch {
		case err != nil:
			if c.endpointMode == EndpointCountTokens {
				return usage.Snapshot{}, err
			}
			lastErr = err
			c.log.Warn().Err(err).Msg("count_tokens failed, will try messages")
		case hasStandardHeaders(resp.header):
			snap, perr := parseStandardHeaders(resp)
			if perr == nil {
				return snap, nil
			}
			// Unusable headers count the same as no headers: record
			// the error and keep going in both mode.
			if c.endpointMode == EndpointCountTokens {
				return usage.Snapshot{}, perr
			}
			lastErr = perr
			c.log.Warn().Err(perr).Msg("count_tokens headers unusable, will try messages")
		default:
			c.log.Debug().Msg("count_tokens returned no rate-limit headers")
		}
	}

	if c.endpointMode == EndpointBoth || c.endpointMode == EndpointMessages {
		c.log.Debug().Msg("trying messages endpoint")
		resp, err := c.post(ctx, cred, "/messages", haikuModel)
		switch {
		case err != nil:
			return usage.Snapshot{}, err
		case hasStandardHeaders(resp.header):
			snap, perr := parseStandardHeaders(resp)
			if perr == nil {
				return snap, nil
			}
			lastErr = perr
			c.log.Warn().Err(perr).Msg("messages headers unusable")
		default:
			c.log.Debug().Msg("messages returned no rate-limit headers")
		}
	}

	if lastErr != nil {
		return usage.Snapshot{}, lastErr
	}
	return usage.Snapshot{}, &Error{Kind: ErrNoUsageHeaders}
}

func (c *Client) checkOAuth(ctx context.Context, cred auth.Credential) (usage.Snapshot, error) {
	if cred.AccessToken == "" {
		return usage.Snapshot{}, &Error{Kind: ErrInvalidCredential, Message: "OAuth token not configured"}
	}

	resp, err := c.post(ctx, cred, "/messages", sonnetModel)
	if err != nil {
		return usage.Snapshot{}, err
	}

	if resp.header.Get(hdrUnified5hUtil) != "" {
		return parseUnifiedHeaders(resp), nil
	}

	// Compatibility shim: some tiers answer with the standard header set.
	// Report it through the unified shape with only the first window
	// populated.
	if hasStandardHeaders(resp.header) {
		c.log.Warn().Msg("oauth response carried standard headers, synthesizing unified snapshot")
		std, err := parseStandardHeaders(resp)
		if err != nil {
			return usage.Snapshot{}, err
		}
		util := 1 - std.RemainingPct()/100
		return usage.NewUnified(util, 0, 0, 0, 0, 0), nil
	}

	return usage.Snapshot{}, &Error{Kind: ErrNoUsageHeaders}
}

// probeResponse is the part of an HTTP response the parsers need. The body
// is consumed and closed before it is built.
type probeResponse struct {
	status int
	header http.Header
}

// post issues the fixed minimal-cost request body against one endpoint and
// applies the shared status-code policy. A 429 is not an error here: the
// response headers still carry (and the parsers force) the quota state.
func (c *Client) post(ctx context.Context, cred auth.Credential, path, model string) (*probeResponse, error) {
	body, err := json.Marshal(map[string]any{
		"model":      model,
		"max_tokens": 1,
		"messages":   []map[string]string{{"role": "user", "content": "."}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", apiVersion)
	if cred.Kind == auth.KindOAuth {
		req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
		req.Header.Set("anthropic-beta", betaHeader)
	} else {
		req.Header.Set("x-api-key", cred.APIKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &Error{Kind: ErrTimeout, cause: err}
		}
		return nil, &Error{Kind: ErrNetwork, cause: err}
	}
	defer resp.Body.Close()

	c.log.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("probe response")

	if err := checkStatus(resp, cred.Kind); err != nil {
		return nil, err
	}
	return &probeResponse{status: resp.StatusCode, header: resp.Header}, nil
}

// checkStatus applies the status-code policy shared by both protocols.
func checkStatus(resp *http.Response, kind auth.Kind) error {
	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusTooManyRequests:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		msg := "Invalid API key"
		if kind == auth.KindOAuth {
			msg = "OAuth token invalid or expired"
		}
		return &Error{Kind: ErrInvalidCredential, Status: resp.StatusCode, Message: msg}
	case resp.StatusCode == http.StatusForbidden:
		msg := "API key lacks permission"
		if kind == auth.KindOAuth {
			msg = "OAuth token lacks permission"
		}
		return &Error{Kind: ErrPermissionDenied, Status: resp.StatusCode, Message: msg}
	case resp.StatusCode == http.StatusBadRequest:
		msg := errorMessage(resp.Body)
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "credit balance") || strings.Contains(lower, "billing") {
			return &Error{Kind: ErrBillingExhausted, Status: resp.StatusCode, Message: msg}
		}
		return &Error{Kind: ErrBadRequest, Status: resp.StatusCode, Message: msg}
	case resp.StatusCode >= 500:
		return &Error{Kind: ErrServer, Status: resp.StatusCode}
	default:
		return &Error{Kind: ErrUnexpectedStatus, Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
}

// errorMessage extracts error.message from an API error body, falling back
// to a truncated raw body.
func errorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

func hasStandardHeaders(h http.Header) bool {
	return h.Get(hdrTokensLimit) != ""
}

// parseStandardHeaders builds the single-window snapshot. A 429 forces the
// remaining amounts to zero: the headers may under-report a request that
// itself got rate-limited.
func parseStandardHeaders(resp *probeResponse) (usage.Snapshot, error) {
	h := resp.header
	exhausted := resp.status == http.StatusTooManyRequests

	tokensLimit := headerInt(h, hdrTokensLimit)
	if tokensLimit == 0 {
		return usage.Snapshot{}, &Error{Kind: ErrNoUsageHeaders, Message: "rate-limit headers present but token limit is 0"}
	}
	tokensRemaining := headerInt(h, hdrTokensRemaining)
	requestsRemaining := headerInt(h, hdrRequestsRemaining)
	if exhausted {
		tokensRemaining = 0
		requestsRemaining = 0
	}

	return usage.NewSingle(
		tokensRemaining,
		tokensLimit,
		requestsRemaining,
		headerInt(h, hdrRequestsLimit),
		parseResetTime(h.Get(hdrTokensReset)),
	), nil
}

// parseUnifiedHeaders builds the three-window snapshot. A 429 forces only
// the 5h utilization to full exhaustion; the weekly windows keep their
// header values (the 5h window is the one that actually trips 429s).
func parseUnifiedHeaders(resp *probeResponse) usage.Snapshot {
	h := resp.header

	u5h := headerFloat(h, hdrUnified5hUtil)
	if resp.status == http.StatusTooManyRequests && u5h < 1 {
		u5h = 1
	}

	return usage.NewUnified(
		u5h,
		headerFloat(h, hdrUnified7dUtil),
		headerFloat(h, hdrUnifiedSonnetUtil),
		headerInt(h, hdrUnified5hReset),
		headerInt(h, hdrUnified7dReset),
		headerInt(h, hdrUnifiedSonnetReset),
	)
}

func headerInt(h http.Header, key string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(h.Get(key)), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func headerFloat(h http.Header, key string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(h.Get(key)), 64)
	if err != nil {
		return 0
	}
	return v
}

// parseResetTime converts the tokens-reset header (RFC3339) to epoch
// seconds, 0 when absent or unparseable.
func parseResetTime(v string) int64 {
	if v == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return 0
	}
	return t.Unix()
}
