package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// configEnv holds environment overrides applied on top of the file.
type configEnv struct {
	Driver       string `env:"SIGNIN_BROWSER_DRIVER"`
	ControlURL   string `env:"SIGNIN_BROWSER_CONTROL_URL"`
	ClientID     string `env:"SIGNIN_OAUTH_CLIENT_ID"`
	ClientSecret string `env:"SIGNIN_OAUTH_CLIENT_SECRET"`
	TokenURL     string `env:"SIGNIN_OAUTH_TOKEN_URL"`
	BaseURL      string `env:"SIGNIN_OAUTH_BASE_URL"`
	Verbosity    string `env:"SIGNIN_LOG_VERBOSITY"`
	SyncURL      string `env:"SIGNIN_TELEMETRY_SYNC_URL"`
}

// ApplyEnv overrides configuration values with the SIGNIN_* environment
// variables that are set.
func (c *Config) ApplyEnv() error {
	var raw configEnv
	if err := env.Parse(&raw); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	override(&c.Browser.ControlURL, raw.ControlURL)
	override(&c.OAuth.ClientID, raw.ClientID)
	override(&c.OAuth.ClientSecret, raw.ClientSecret)
	override(&c.OAuth.TokenURL, raw.TokenURL)
	override(&c.OAuth.BaseURL, raw.BaseURL)
	override(&c.Logging.Verbosity, raw.Verbosity)
	override(&c.Telemetry.Sync.URL, raw.SyncURL)
	if raw.Driver != "" {
		c.Browser.Driver = DriverName(raw.Driver)
	}
	return nil
}

func override(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
