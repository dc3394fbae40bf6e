package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/entrhq/signin/pkg/browser"
	"github.com/entrhq/signin/pkg/navigation"
)

// CaseType names the outcome a ReturnCase produces.
type CaseType string

const (
	// CaseCredentials exchanges a captured authorization code for tokens
	CaseCredentials CaseType = "credentials"
	// CaseStateToken exchanges a captured state id for tokens
	CaseStateToken CaseType = "state-token"
	// CaseFederatedIdentity reads tokens straight from the navigation
	CaseFederatedIdentity CaseType = "federated-identity"
	// CaseError fails the sign-in with the page's error message
	CaseError CaseType = "error"
	// CaseDelegatedMerge hands the window to the account-merge flow
	CaseDelegatedMerge CaseType = "delegated-merge"
	// CaseResetAndRetry restarts sign-in after a password reset
	CaseResetAndRetry CaseType = "reset-and-retry"
)

// Fields names the captured keys a case reads. Empty fields use the defaults.
type Fields struct {
	Code         string `yaml:"code,omitempty" json:"code,omitempty"`
	State        string `yaml:"state,omitempty" json:"state,omitempty"`
	AccessToken  string `yaml:"access_token,omitempty" json:"access_token,omitempty"`
	RefreshToken string `yaml:"refresh_token,omitempty" json:"refresh_token,omitempty"`
	ErrorMessage string `yaml:"error_message,omitempty" json:"error_message,omitempty"`
}

func (f Fields) code() string         { return orDefault(f.Code, "code") }
func (f Fields) state() string        { return orDefault(f.State, "id") }
func (f Fields) accessToken() string  { return orDefault(f.AccessToken, "access_token") }
func (f Fields) refreshToken() string { return orDefault(f.RefreshToken, "refresh_token") }
func (f Fields) errorMessage() string { return orDefault(f.ErrorMessage, "error_message") }

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ReturnCase is one possible outcome of the login flow.
type ReturnCase struct {
	Type   CaseType             `yaml:"type" json:"type"`
	When   navigation.MatchSpec `yaml:"when" json:"when"`
	Fields Fields               `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// Validate checks the case type and its match spec.
func (c ReturnCase) Validate() error {
	switch c.Type {
	case CaseCredentials, CaseStateToken, CaseFederatedIdentity,
		CaseError, CaseDelegatedMerge, CaseResetAndRetry:
	default:
		return fmt.Errorf("unknown return case type %q", c.Type)
	}
	return c.When.Validate()
}

// ProviderConfig is a launch target plus the cases raced against it. The
// order of Return carries no priority.
type ProviderConfig struct {
	Target browser.Target `yaml:"target" json:"target"`
	Return []ReturnCase   `yaml:"return" json:"return"`
}

// Validate checks every return case.
func (c ProviderConfig) Validate() error {
	if len(c.Return) == 0 {
		return fmt.Errorf("at least one return case is required")
	}
	for i, rc := range c.Return {
		if err := rc.Validate(); err != nil {
			return fmt.Errorf("return case %d: %w", i, err)
		}
	}
	return nil
}

// ValidateLogin checks a configuration used by LoginProvider.
func (c ProviderConfig) ValidateLogin() error {
	if c.Target.Host == "" {
		return fmt.Errorf("login target host is required")
	}
	return c.Validate()
}

// ValidateMerge checks a configuration used by MergeProvider, which may not
// delegate or restart.
func (c ProviderConfig) ValidateMerge() error {
	if err := c.Validate(); err != nil {
		return err
	}
	for i, rc := range c.Return {
		if rc.Type == CaseDelegatedMerge || rc.Type == CaseResetAndRetry {
			return fmt.Errorf("return case %d: %q is not allowed in a merge flow", i, rc.Type)
		}
	}
	return nil
}

// HasCase reports whether the configuration contains a case of type t.
func (c ProviderConfig) HasCase(t CaseType) bool {
	for _, rc := range c.Return {
		if rc.Type == t {
			return true
		}
	}
	return false
}

// OAuthSession is the authenticated session produced by a successful sign-in.
type OAuthSession struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UserToken    string    `json:"userToken"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// NewOAuthSession builds a session from raw tokens. The user token is the
// last ':'-separated segment of the access token's subject; a zero expiresAt
// is taken from the token's exp claim.
func NewOAuthSession(accessToken, refreshToken string, expiresAt time.Time) (*OAuthSession, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("access token is empty")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("access token has no subject")
	}
	parts := strings.Split(subject, ":")

	if expiresAt.IsZero() {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			expiresAt = exp.Time
		}
	}

	return &OAuthSession{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserToken:    parts[len(parts)-1],
		ExpiresAt:    expiresAt,
	}, nil
}
