// Package config loads and persists the application configuration,
// including the credential material the auth manager reads and writes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// AuthMode values.
const (
	AuthOAuth  = "oauth"
	AuthAPIKey = "api_key"
)

// EndpointMode values, mirrored by the API client's probing strategies.
const (
	EndpointBoth        = "both"
	EndpointCountTokens = "count_tokens"
	EndpointMessages    = "messages"
)

type Config struct {
	AuthMode             string      `toml:"auth_mode"`
	APIKey               string      `toml:"api_key"`
	PollIntervalSeconds  int         `toml:"poll_interval_seconds"`
	YellowThresholdPct   float64     `toml:"yellow_threshold_pct"`
	RedThresholdPct      float64     `toml:"red_threshold_pct"`
	CriticalThresholdPct float64     `toml:"critical_threshold_pct"`
	EndpointMode         string      `toml:"endpoint_mode"`
	SystemNotify         bool        `toml:"system_notify"`
	OAuth                OAuthConfig `toml:"oauth"`
}

type OAuthConfig struct {
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
	ExpiresAt    int64  `toml:"expires_at"`
}

// DefaultConfig returns the stock configuration: OAuth mode, 60 second
// polls, 25/5/3 thresholds.
func DefaultConfig() Config {
	return Config{
		AuthMode:             AuthOAuth,
		PollIntervalSeconds:  60,
		YellowThresholdPct:   25,
		RedThresholdPct:      5,
		CriticalThresholdPct: 3,
		EndpointMode:         EndpointBoth,
		SystemNotify:         true,
	}
}

type LoadResult struct {
	Config   Config
	Warnings []string
}

// DefaultConfigPath is the config file location, ~/.config/burnbar/config.toml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "burnbar", "config.toml")
}

func Load() (*LoadResult, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom reads the config file at path. A missing file yields the
// defaults; unknown keys yield warnings, not errors, so a config written
// by a newer version still loads.
func LoadFrom(path string) (*LoadResult, error) {
	result := &LoadResult{Config: DefaultConfig()}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Decoding over the prefilled defaults leaves absent keys at their
	// default values.
	md, err := toml.Decode(string(data), &result.Config)
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	for _, key := range md.Undecoded() {
		result.Warnings = append(result.Warnings, fmt.Sprintf("unknown config key: %q", key))
	}

	if err := validate(&result.Config); err != nil {
		return nil, err
	}

	return result, nil
}

func validate(cfg *Config) error {
	var errs []string

	switch cfg.AuthMode {
	case AuthOAuth, AuthAPIKey:
	default:
		errs = append(errs, fmt.Sprintf("auth_mode must be %q or %q, got %q", AuthOAuth, AuthAPIKey, cfg.AuthMode))
	}

	switch cfg.EndpointMode {
	case EndpointBoth, EndpointCountTokens, EndpointMessages:
	default:
		errs = append(errs, fmt.Sprintf("endpoint_mode must be %q, %q or %q, got %q",
			EndpointBoth, EndpointCountTokens, EndpointMessages, cfg.EndpointMode))
	}

	if cfg.PollIntervalSeconds < 1 {
		errs = append(errs, fmt.Sprintf("poll_interval_seconds must be positive, got %d", cfg.PollIntervalSeconds))
	}

	if cfg.CriticalThresholdPct <= 0 || cfg.CriticalThresholdPct > 100 {
		errs = append(errs, fmt.Sprintf("critical_threshold_pct must be in (0, 100], got %g", cfg.CriticalThresholdPct))
	}
	if cfg.RedThresholdPct <= 0 || cfg.RedThresholdPct > 100 {
		errs = append(errs, fmt.Sprintf("red_threshold_pct must be in (0, 100], got %g", cfg.RedThresholdPct))
	}
	if cfg.YellowThresholdPct <= 0 || cfg.YellowThresholdPct > 100 {
		errs = append(errs, fmt.Sprintf("yellow_threshold_pct must be in (0, 100], got %g", cfg.YellowThresholdPct))
	}
	if cfg.YellowThresholdPct <= cfg.RedThresholdPct || cfg.RedThresholdPct <= cfg.CriticalThresholdPct {
		errs = append(errs, fmt.Sprintf("thresholds must be ordered yellow > red > critical, got %g/%g/%g",
			cfg.YellowThresholdPct, cfg.RedThresholdPct, cfg.CriticalThresholdPct))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation error: %s", strings.Join(errs, "; "))
	}
	return nil
}
