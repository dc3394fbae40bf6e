package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"

	"github.com/entrhq/signin/pkg/logging"
)

// DefaultStatePath is where captured state ids are exchanged for tokens.
const DefaultStatePath = "/v1/sso/create/session"

// OAuthSettings configures OAuthExchanger.
type OAuthSettings struct {
	ClientID     string   `yaml:"client_id" json:"client_id"`
	ClientSecret string   `yaml:"client_secret,omitempty" json:"client_secret,omitempty"`
	AuthURL      string   `yaml:"auth_url,omitempty" json:"auth_url,omitempty"`
	TokenURL     string   `yaml:"token_url" json:"token_url"`
	RedirectURL  string   `yaml:"redirect_url" json:"redirect_url"`
	Scopes       []string `yaml:"scopes,omitempty" json:"scopes,omitempty"`

	// BaseURL and StatePath locate the state exchange endpoint
	BaseURL   string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	StatePath string `yaml:"state_path,omitempty" json:"state_path,omitempty"`

	// RetryMax bounds HTTP retries on connection errors and 5xx responses
	RetryMax int `yaml:"retry_max,omitempty" json:"retry_max,omitempty"`
}

// OAuthExchanger exchanges authorization codes through the OAuth2 token
// endpoint and state ids through the identity provider's session endpoint.
type OAuthExchanger struct {
	oauth    oauth2.Config
	stateURL string
	client   *retryablehttp.Client
}

// NewOAuthExchanger creates an exchanger for settings.
func NewOAuthExchanger(settings OAuthSettings, logger *logging.Logger) *OAuthExchanger {
	client := retryablehttp.NewClient()
	client.RetryMax = settings.RetryMax
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	if logger != nil {
		client.Logger = leveledLogger{logger.With("http")}
	}

	statePath := settings.StatePath
	if statePath == "" {
		statePath = DefaultStatePath
	}

	return &OAuthExchanger{
		oauth: oauth2.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  settings.AuthURL,
				TokenURL: settings.TokenURL,
			},
			RedirectURL: settings.RedirectURL,
			Scopes:      settings.Scopes,
		},
		stateURL: strings.TrimSuffix(settings.BaseURL, "/") + statePath,
		client:   client,
	}
}

// ExchangeCode redeems an authorization code at the token endpoint.
func (e *OAuthExchanger) ExchangeCode(ctx context.Context, code string) (*OAuthSession, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client.StandardClient())

	token, err := e.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return NewOAuthSession(token.AccessToken, token.RefreshToken, token.Expiry)
}

// ExchangeState redeems a state id at the session endpoint.
func (e *OAuthExchanger) ExchangeState(ctx context.Context, state string) (*OAuthSession, error) {
	u := e.stateURL + "?id=" + url.QueryEscape(state)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build state request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("state request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("state request failed: %s", resp.Status)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode state response: %w", err)
	}

	return NewOAuthSession(body.AccessToken, body.RefreshToken, time.Time{})
}

// leveledLogger adapts logging.Logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	l *logging.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.l.Errorf("%s %v", msg, kv) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.l.Warnf("%s %v", msg, kv) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.l.Debugf("%s %v", msg, kv) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.l.Debugf("%s %v", msg, kv) }
