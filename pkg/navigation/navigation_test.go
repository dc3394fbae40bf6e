package navigation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEvent(t *testing.T, raw string) Event {
	t.Helper()
	ev, err := ParseEvent(raw)
	require.NoError(t, err)
	return ev
}

func TestMatch(t *testing.T) {
	spec := MatchSpec{
		Host: "https://id.example.org",
		Path: "/oauth2callback",
		Params: []ParamMatcher{
			Resolve("code", "auth_code"),
		},
	}

	tests := []struct {
		name     string
		url      string
		wantOK   bool
		wantCode string
	}{
		{"match", "https://id.example.org/oauth2callback?code=abc&x=1", true, "abc"},
		{"empty value still present", "https://id.example.org/oauth2callback?code=", true, ""},
		{"missing key", "https://id.example.org/oauth2callback?state=1", false, ""},
		{"wrong path", "https://id.example.org/other?code=abc", false, ""},
		{"wrong host", "https://evil.example.org/oauth2callback?code=abc", false, ""},
		{"wrong scheme", "http://id.example.org/oauth2callback?code=abc", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captured, ok := Match(mustEvent(t, tt.url), spec)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Nil(t, captured)
				return
			}
			assert.Equal(t, tt.wantCode, captured["auth_code"])
		})
	}
}

func TestMatch_BareHost(t *testing.T) {
	spec := MatchSpec{Host: "id.example.org", Path: "/done"}

	_, ok := Match(mustEvent(t, "https://id.example.org/done"), spec)
	assert.True(t, ok)

	_, ok = Match(mustEvent(t, "http://id.example.org/done"), spec)
	assert.True(t, ok, "bare host ignores scheme")

	_, ok = Match(mustEvent(t, "https://id.example.org:8443/done"), spec)
	assert.False(t, ok)
}

func TestMatch_EqualsConstraint(t *testing.T) {
	spec := MatchSpec{
		Host:   "id.example.org",
		Path:   "/reset",
		Params: []ParamMatcher{Equals("client_id", "client_id", "portal")},
	}

	captured, ok := Match(mustEvent(t, "https://id.example.org/reset?client_id=portal"), spec)
	require.True(t, ok)
	assert.Equal(t, Captured{"client_id": "portal"}, captured)

	_, ok = Match(mustEvent(t, "https://id.example.org/reset?client_id=android"), spec)
	assert.False(t, ok)

	_, ok = Match(mustEvent(t, "https://id.example.org/reset"), spec)
	assert.False(t, ok)
}

func TestMatch_ExistsFalseNeverMatchesPresentKey(t *testing.T) {
	spec := MatchSpec{
		Host:   "id.example.org",
		Path:   "/reset",
		Params: []ParamMatcher{Exists("automerge", "automerge", false)},
	}

	for _, v := range []string{"", "0", "1", "false", "true"} {
		_, ok := Match(mustEvent(t, "https://id.example.org/reset?automerge="+v), spec)
		assert.False(t, ok, "automerge=%q", v)
	}

	captured, ok := Match(mustEvent(t, "https://id.example.org/reset?other=1"), spec)
	require.True(t, ok)
	assert.Empty(t, captured)
}

func TestMatch_ExistsTrueRecordsValue(t *testing.T) {
	spec := MatchSpec{
		Host:   "id.example.org",
		Path:   "/migrate",
		Params: []ParamMatcher{Exists("automerge", "merge", true)},
	}

	captured, ok := Match(mustEvent(t, "https://id.example.org/migrate?automerge=1"), spec)
	require.True(t, ok)
	assert.Equal(t, "1", captured["merge"])

	_, ok = Match(mustEvent(t, "https://id.example.org/migrate"), spec)
	assert.False(t, ok)
}

func TestMatch_AllMatchersRequired(t *testing.T) {
	spec := MatchSpec{
		Host: "id.example.org",
		Path: "/cb",
		Params: []ParamMatcher{
			Resolve("access_token", ""),
			Resolve("refresh_token", ""),
		},
	}

	_, ok := Match(mustEvent(t, "https://id.example.org/cb?access_token=a"), spec)
	assert.False(t, ok)

	captured, ok := Match(mustEvent(t, "https://id.example.org/cb?access_token=a&refresh_token=r"), spec)
	require.True(t, ok)
	assert.Equal(t, Captured{"access_token": "a", "refresh_token": "r"}, captured)
}

func TestMatchSpec_With(t *testing.T) {
	base := MatchSpec{Host: "h", Path: "/p", Params: []ParamMatcher{Resolve("a", "")}}
	extended := base.With(Resolve("b", ""))

	assert.Len(t, base.Params, 1, "original spec must not be modified")
	assert.Len(t, extended.Params, 2)
}

func TestMatchSpec_Validate(t *testing.T) {
	assert.Error(t, MatchSpec{Path: "/p"}.Validate())
	assert.Error(t, MatchSpec{Host: "h"}.Validate())
	assert.Error(t, MatchSpec{Host: "h", Path: "/p", Params: []ParamMatcher{{}}}.Validate())

	v := "x"
	b := true
	both := MatchSpec{Host: "h", Path: "/p", Params: []ParamMatcher{{Key: "k", Match: &v, Exists: &b}}}
	assert.Error(t, both.Validate())

	assert.NoError(t, MatchSpec{Host: "h", Path: "/p", Params: []ParamMatcher{Resolve("k", "")}}.Validate())
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent("https://id.example.org:8443/a/b?x=1&x=2")
	require.NoError(t, err)
	assert.Equal(t, "https", ev.Scheme)
	assert.Equal(t, "id.example.org:8443", ev.Host)
	assert.Equal(t, "/a/b", ev.Path)
	assert.Equal(t, "1", ev.Query.Get("x"))
	assert.Equal(t, "https://id.example.org:8443", ev.Origin())

	_, err = ParseEvent("://bad")
	assert.Error(t, err)
}

func TestMatch_Snapshot(t *testing.T) {
	spec := MatchSpec{
		Host: "id.example.org",
		Path: "/password-reset/success",
		Params: []ParamMatcher{
			Equals("client_id", "client", "portal"),
			Exists("automerge", "automerge", false),
			Exists("session_state", "", true),
			Resolve("tab_id", ""),
		},
	}

	tests := []struct {
		name string
		url  string
		want Captured
	}{
		{
			name: "records resolved and present keys",
			url:  "https://id.example.org/password-reset/success?client_id=portal&session_state=s1&tab_id=7&extra=x",
			want: Captured{"client": "portal", "session_state": "s1", "tab_id": "7"},
		},
		{
			name: "first value of repeated keys",
			url:  "https://id.example.org/password-reset/success?client_id=portal&session_state=a&session_state=b&tab_id=1",
			want: Captured{"client": "portal", "session_state": "a", "tab_id": "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Match(mustEvent(t, tt.url), spec)
			require.True(t, ok)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Match() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
