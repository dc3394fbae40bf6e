package browser

import (
	"fmt"
	"net/url"
	"strings"
)

// Param is one launch query parameter.
type Param struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
}

// Target describes where the embedded browser is opened.
type Target struct {
	// Host is a bare host or an origin; https is assumed when no scheme is given
	Host string `yaml:"host" json:"host"`

	// Path is the URL path of the login page
	Path string `yaml:"path" json:"path"`

	// Params are flattened into the query string, last write wins
	Params []Param `yaml:"params,omitempty" json:"params,omitempty"`
}

// WithParams returns a copy of the target with extra params appended.
func (t Target) WithParams(extra ...Param) Target {
	params := make([]Param, 0, len(t.Params)+len(extra))
	params = append(params, t.Params...)
	params = append(params, extra...)
	t.Params = params
	return t
}

// Flatten collapses the ordered params into a map, later keys overriding earlier ones.
func (t Target) Flatten() map[string]string {
	flat := make(map[string]string, len(t.Params))
	for _, p := range t.Params {
		flat[p.Key] = p.Value
	}
	return flat
}

// URL builds the launch URL for the target.
func (t Target) URL() (string, error) {
	if strings.TrimSpace(t.Host) == "" {
		return "", fmt.Errorf("target host is required")
	}

	base := t.Host
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid target host %q: %w", t.Host, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid target host %q", t.Host)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + t.Path

	query := url.Values{}
	for k, v := range t.Flatten() {
		query.Set(k, v)
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// Options configures the browser opened by a Driver.
type Options struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool `yaml:"headless" json:"headless"`

	// Viewport sets the initial viewport size
	Viewport *Viewport `yaml:"viewport,omitempty" json:"viewport,omitempty"`

	// Timeout sets the default timeout for operations (in milliseconds)
	Timeout float64 `yaml:"timeout" json:"timeout"`

	// BrowserPath optionally points at a specific browser binary
	BrowserPath string `yaml:"browser_path,omitempty" json:"browser_path,omitempty"`
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if o.Viewport == nil {
		o.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Default values for browser windows
const (
	DefaultTimeout        = 30000.0 // 30 seconds in milliseconds
	DefaultViewportWidth  = 412
	DefaultViewportHeight = 915
)
