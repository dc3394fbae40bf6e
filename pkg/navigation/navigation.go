// Package navigation decides whether an embedded-browser navigation matches a
// declarative host/path/query pattern and extracts the values it names.
package navigation

import (
	"fmt"
	"net/url"
)

// Event is a single navigation observed in the embedded browser.
type Event struct {
	// Scheme is the URL scheme, e.g. "https"
	Scheme string

	// Host is the host including any port
	Host string

	// Path is the URL path
	Path string

	// Query holds the query parameters of the navigation
	Query url.Values
}

// ParseEvent converts a raw browser URL into an Event.
func ParseEvent(raw string) (Event, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Event{}, fmt.Errorf("invalid navigation url %q: %w", raw, err)
	}
	return Event{
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   u.Path,
		Query:  u.Query(),
	}, nil
}

// Origin returns scheme://host for the event.
func (e Event) Origin() string {
	if e.Scheme == "" {
		return e.Host
	}
	return e.Scheme + "://" + e.Host
}

// ParamMatcher constrains one query parameter of a navigation.
//
// With neither Match nor Exists set the key only has to be present. Match
// additionally requires the value to equal the literal. Exists requires the
// key's presence to equal the flag, whatever its value.
type ParamMatcher struct {
	Key       string  `yaml:"key" json:"key"`
	ResolveTo string  `yaml:"resolve_to,omitempty" json:"resolve_to,omitempty"`
	Match     *string `yaml:"match,omitempty" json:"match,omitempty"`
	Exists    *bool   `yaml:"exists,omitempty" json:"exists,omitempty"`
}

// Target returns the name the parameter's value is recorded under.
func (p ParamMatcher) Target() string {
	if p.ResolveTo != "" {
		return p.ResolveTo
	}
	return p.Key
}

// Resolve requires key to be present and records it under resolveTo.
func Resolve(key, resolveTo string) ParamMatcher {
	return ParamMatcher{Key: key, ResolveTo: resolveTo}
}

// Equals requires key to be present with the given value.
func Equals(key, resolveTo, value string) ParamMatcher {
	return ParamMatcher{Key: key, ResolveTo: resolveTo, Match: &value}
}

// Exists requires key's presence to equal present.
func Exists(key, resolveTo string, present bool) ParamMatcher {
	return ParamMatcher{Key: key, ResolveTo: resolveTo, Exists: &present}
}

// MatchSpec describes the navigation a return case waits for.
type MatchSpec struct {
	// Host is either a bare host ("example.org") or an origin
	// ("https://example.org"); the latter also pins the scheme
	Host string `yaml:"host" json:"host"`

	Path   string         `yaml:"path" json:"path"`
	Params []ParamMatcher `yaml:"params,omitempty" json:"params,omitempty"`
}

// With returns a copy of the spec with extra matchers appended.
func (s MatchSpec) With(extra ...ParamMatcher) MatchSpec {
	params := make([]ParamMatcher, 0, len(s.Params)+len(extra))
	params = append(params, s.Params...)
	params = append(params, extra...)
	s.Params = params
	return s
}

// Validate reports whether the spec can ever match.
func (s MatchSpec) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("match spec host is required")
	}
	if s.Path == "" {
		return fmt.Errorf("match spec path is required")
	}
	for i, p := range s.Params {
		if p.Key == "" {
			return fmt.Errorf("param matcher %d: key is required", i)
		}
		if p.Match != nil && p.Exists != nil {
			return fmt.Errorf("param matcher %q: match and exists are mutually exclusive", p.Key)
		}
	}
	return nil
}

// Captured is the key/value snapshot extracted from one matched navigation.
type Captured map[string]string

// Clone returns an independent copy of the snapshot.
func (c Captured) Clone() Captured {
	out := make(Captured, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Match evaluates event against spec. It returns the extracted values and
// true when every constraint holds, or nil and false otherwise.
func Match(event Event, spec MatchSpec) (Captured, bool) {
	if !hostMatches(event, spec.Host) || event.Path != spec.Path {
		return nil, false
	}

	captured := make(Captured, len(spec.Params))
	for _, p := range spec.Params {
		_, present := event.Query[p.Key]
		value := event.Query.Get(p.Key)

		switch {
		case p.Exists != nil:
			if present != *p.Exists {
				return nil, false
			}
			if present {
				captured[p.Target()] = value
			}
		case p.Match != nil:
			if !present || value != *p.Match {
				return nil, false
			}
			captured[p.Target()] = value
		default:
			if !present {
				return nil, false
			}
			captured[p.Target()] = value
		}
	}

	return captured, true
}

func hostMatches(event Event, host string) bool {
	if u, err := url.Parse(host); err == nil && u.Scheme != "" && u.Host != "" {
		return event.Scheme == u.Scheme && event.Host == u.Host
	}
	return event.Host == host
}
