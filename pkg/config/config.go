// Package config loads the sign-in configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/signin/pkg/browser"
	"github.com/entrhq/signin/pkg/session"
	"github.com/entrhq/signin/pkg/telemetry"
)

// Config represents the configuration of one sign-in run
type Config struct {
	// Browser configuration
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Login flow and the merge flow it may delegate to
	Login session.ProviderConfig `yaml:"login" json:"login"`
	Merge session.ProviderConfig `yaml:"merge" json:"merge"`

	// Reset-and-retry bound
	Retry session.RetryPolicy `yaml:"retry" json:"retry"`

	// Token exchange endpoints
	OAuth session.OAuthSettings `yaml:"oauth" json:"oauth"`

	// Telemetry context injected into every launch
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// DriverName selects the browser automation backend
type DriverName string

const (
	// DriverPlaywright drives Chromium through playwright-go
	DriverPlaywright DriverName = "playwright"
	// DriverRod drives Chromium over CDP through go-rod
	DriverRod DriverName = "rod"
)

// BrowserConfig defines how the sign-in window is opened
type BrowserConfig struct {
	Driver  DriverName      `yaml:"driver" json:"driver"`
	Options browser.Options `yaml:"options" json:"options"`

	// ControlURL attaches rod to an already running browser instead of launching one
	ControlURL string `yaml:"control_url,omitempty" json:"control_url,omitempty"`
}

// TelemetryConfig defines the telemetry context
type TelemetryConfig struct {
	PData   telemetry.PData `yaml:"pdata" json:"pdata"`
	Channel string          `yaml:"channel,omitempty" json:"channel,omitempty"`
	Env     string          `yaml:"env,omitempty" json:"env,omitempty"`

	// Sync pushes sign-in events to a collector while the run lasts
	Sync SyncConfig `yaml:"sync,omitempty" json:"sync,omitempty"`
}

// DefaultSyncInterval is used when telemetry sync has a URL but no interval.
const DefaultSyncInterval = 30 * time.Second

// SyncConfig defines the telemetry auto-sync; an empty URL disables it
type SyncConfig struct {
	URL      string        `yaml:"url,omitempty" json:"url,omitempty"`
	Interval time.Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
	RetryMax int           `yaml:"retry_max,omitempty" json:"retry_max,omitempty"`
}

// Enabled reports whether a collector is configured.
func (s SyncConfig) Enabled() bool {
	return s.URL != ""
}

// Context returns the telemetry context described by the configuration.
func (t TelemetryConfig) Context() telemetry.Context {
	return telemetry.Context{
		PData:   t.PData,
		Channel: t.Channel,
		Env:     t.Env,
	}
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// Verbose reports whether debug lines should be written.
func (l LoggingConfig) Verbose() bool {
	return l.Verbosity == "verbose" || l.Verbosity == "debug"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Browser.Driver {
	case DriverPlaywright, DriverRod:
	default:
		return fmt.Errorf("invalid browser driver: %s (must be 'playwright' or 'rod')", c.Browser.Driver)
	}

	if c.Browser.ControlURL != "" && c.Browser.Driver != DriverRod {
		return fmt.Errorf("control_url requires the rod driver")
	}

	if c.Browser.Options.Timeout < 0 {
		return fmt.Errorf("browser timeout cannot be negative")
	}

	if err := c.Login.ValidateLogin(); err != nil {
		return fmt.Errorf("invalid login configuration: %w", err)
	}

	if c.Login.HasCase(session.CaseDelegatedMerge) {
		if err := c.Merge.ValidateMerge(); err != nil {
			return fmt.Errorf("invalid merge configuration: %w", err)
		}
	}

	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry max_attempts cannot be negative")
	}

	if c.Retry.Delay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}

	if c.needsTokenEndpoint() && c.OAuth.TokenURL == "" {
		return fmt.Errorf("oauth token_url is required for credentials cases")
	}

	if c.needsStateEndpoint() && c.OAuth.BaseURL == "" {
		return fmt.Errorf("oauth base_url is required for state-token cases")
	}

	if c.Telemetry.PData.ID == "" {
		return fmt.Errorf("telemetry pdata id is required")
	}

	if c.Telemetry.Sync.Enabled() && c.Telemetry.Sync.Interval <= 0 {
		return fmt.Errorf("telemetry sync interval must be positive")
	}

	// Set default verbosity if not specified
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}

	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
		"debug":   true,
	}
	if !validLevels[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	return nil
}

func (c *Config) needsTokenEndpoint() bool {
	return c.Login.HasCase(session.CaseCredentials) || c.Merge.HasCase(session.CaseCredentials)
}

func (c *Config) needsStateEndpoint() bool {
	return c.Login.HasCase(session.CaseStateToken) || c.Merge.HasCase(session.CaseStateToken)
}

// DefaultConfig returns a default configuration; login and merge flows must
// still be supplied.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Driver: DriverPlaywright,
			Options: browser.Options{
				Headless: false,
				Timeout:  browser.DefaultTimeout,
				Viewport: &browser.Viewport{
					Width:  browser.DefaultViewportWidth,
					Height: browser.DefaultViewportHeight,
				},
			},
		},
		Retry: session.RetryPolicy{
			MaxAttempts: session.DefaultMaxAttempts,
			Delay:       session.DefaultRetryDelay,
		},
		OAuth: session.OAuthSettings{
			StatePath: session.DefaultStatePath,
			RetryMax:  2,
		},
		Telemetry: TelemetryConfig{
			Sync: SyncConfig{
				Interval: DefaultSyncInterval,
				RetryMax: 2,
			},
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
	}
}

// Load reads a YAML configuration file on top of DefaultConfig and applies
// environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

// Parse decodes YAML configuration on top of DefaultConfig.
func Parse(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}
