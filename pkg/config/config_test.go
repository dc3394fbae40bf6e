package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/signin/pkg/session"
)

const sampleConfig = `
browser:
  driver: rod
  options:
    headless: true
    timeout: 15000
retry:
  max_attempts: 4
  delay: 250ms
oauth:
  client_id: android
  token_url: https://id.example.org/token
  redirect_url: https://app.example.org/oauth2callback
  base_url: https://api.example.org
telemetry:
  pdata:
    id: prod.app
    pid: app.android
    ver: 4.2.0
  env: prod
  sync:
    url: https://telemetry.example.org/v1/telemetry
    interval: 1m
logging:
  verbosity: debug
login:
  target:
    host: id.example.org
    path: /auth
    params:
      - key: client_id
        value: android
  return:
    - type: credentials
      when:
        host: app.example.org
        path: /oauth2callback
        params:
          - key: code
            resolve_to: code
    - type: state-token
      when:
        host: app.example.org
        path: /sso/success
        params:
          - key: id
            resolve_to: id
    - type: delegated-merge
      when:
        host: id.example.org
        path: /migrate
        params:
          - key: payload
            resolve_to: payload
    - type: reset-and-retry
      when:
        host: id.example.org
        path: /password-reset/success
        params:
          - key: flow
            match: reset
merge:
  target:
    host: id.example.org
    path: /auth
    params:
      - key: automerge
        value: "1"
  return:
    - type: credentials
      when:
        host: app.example.org
        path: /oauth2callback
        params:
          - key: code
            resolve_to: code
          - key: automerge
            exists: false
`

func TestParse(t *testing.T) {
	config, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, DriverRod, config.Browser.Driver)
	assert.True(t, config.Browser.Options.Headless)
	assert.Equal(t, 15000.0, config.Browser.Options.Timeout)
	require.NotNil(t, config.Browser.Options.Viewport, "defaults survive partial sections")

	assert.Equal(t, 4, config.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, config.Retry.Delay)

	assert.Equal(t, session.DefaultStatePath, config.OAuth.StatePath)
	assert.Equal(t, "prod.app", config.Telemetry.Context().PData.ID)
	assert.Equal(t, "prod", config.Telemetry.Context().Env)
	assert.True(t, config.Telemetry.Sync.Enabled())
	assert.Equal(t, time.Minute, config.Telemetry.Sync.Interval)
	assert.Equal(t, 2, config.Telemetry.Sync.RetryMax, "defaults survive partial sections")
	assert.True(t, config.Logging.Verbose())

	require.Len(t, config.Login.Return, 4)
	assert.Equal(t, session.CaseResetAndRetry, config.Login.Return[3].Type)
	reset := config.Login.Return[3].When.Params[0]
	require.NotNil(t, reset.Match)
	assert.Equal(t, "reset", *reset.Match)

	automerge := config.Merge.Return[0].When.Params[1]
	require.NotNil(t, automerge.Exists)
	assert.False(t, *automerge.Exists)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signin.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "id.example.org", config.Login.Target.Host)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("browser: ["), 0o600))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, DriverPlaywright, config.Browser.Driver)
	assert.Equal(t, session.DefaultMaxAttempts, config.Retry.MaxAttempts)
	assert.Equal(t, "normal", config.Logging.Verbosity)

	// No login flow yet.
	assert.Error(t, config.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Browser.Driver = "webkit" },
			wantErr: "invalid browser driver",
		},
		{
			name: "control url without rod",
			mutate: func(c *Config) {
				c.Browser.Driver = DriverPlaywright
				c.Browser.ControlURL = "ws://127.0.0.1:9222"
			},
			wantErr: "control_url requires the rod driver",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Browser.Options.Timeout = -1 },
			wantErr: "browser timeout cannot be negative",
		},
		{
			name:    "missing login host",
			mutate:  func(c *Config) { c.Login.Target.Host = "" },
			wantErr: "invalid login configuration",
		},
		{
			name: "merge may not retry",
			mutate: func(c *Config) {
				c.Merge.Return = append(c.Merge.Return, c.Login.Return[3])
			},
			wantErr: "invalid merge configuration",
		},
		{
			name:    "negative attempts",
			mutate:  func(c *Config) { c.Retry.MaxAttempts = -1 },
			wantErr: "max_attempts cannot be negative",
		},
		{
			name:    "negative delay",
			mutate:  func(c *Config) { c.Retry.Delay = -time.Second },
			wantErr: "retry delay cannot be negative",
		},
		{
			name:    "credentials need a token endpoint",
			mutate:  func(c *Config) { c.OAuth.TokenURL = "" },
			wantErr: "oauth token_url is required",
		},
		{
			name:    "state tokens need a base url",
			mutate:  func(c *Config) { c.OAuth.BaseURL = "" },
			wantErr: "oauth base_url is required",
		},
		{
			name:    "missing pdata",
			mutate:  func(c *Config) { c.Telemetry.PData.ID = "" },
			wantErr: "telemetry pdata id is required",
		},
		{
			name:    "non-positive sync interval",
			mutate:  func(c *Config) { c.Telemetry.Sync.Interval = 0 },
			wantErr: "telemetry sync interval must be positive",
		},
		{
			name:    "unknown verbosity",
			mutate:  func(c *Config) { c.Logging.Verbosity = "loud" },
			wantErr: "invalid logging verbosity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := Parse([]byte(sampleConfig))
			require.NoError(t, err)

			tt.mutate(config)
			assert.ErrorContains(t, config.Validate(), tt.wantErr)
		})
	}
}

func TestValidateDefaultsVerbosity(t *testing.T) {
	config, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	config.Logging.Verbosity = ""

	require.NoError(t, config.Validate())
	assert.Equal(t, "normal", config.Logging.Verbosity)
	assert.False(t, config.Logging.Verbose())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SIGNIN_OAUTH_CLIENT_SECRET", "s3cret")
	t.Setenv("SIGNIN_BROWSER_DRIVER", "playwright")
	t.Setenv("SIGNIN_BROWSER_CONTROL_URL", "")
	t.Setenv("SIGNIN_TELEMETRY_SYNC_URL", "https://collector.example.org/sync")

	path := filepath.Join(t.TempDir(), "signin.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", config.OAuth.ClientSecret)
	assert.Equal(t, DriverPlaywright, config.Browser.Driver)
	assert.Equal(t, "android", config.OAuth.ClientID, "unset variables keep file values")
	assert.Equal(t, "https://collector.example.org/sync", config.Telemetry.Sync.URL)
}
