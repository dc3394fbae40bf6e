package session

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/signin/pkg/browser"
	"github.com/entrhq/signin/pkg/navigation"
)

type outcomeKind int

const (
	outcomeSession outcomeKind = iota
	outcomeDelegate
	outcomeRetry
)

func (k outcomeKind) String() string {
	switch k {
	case outcomeSession:
		return "session"
	case outcomeDelegate:
		return "delegate"
	case outcomeRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// outcome is what a winning branch hands back to its provider.
type outcome struct {
	kind     outcomeKind
	session  *OAuthSession
	captured navigation.Captured
}

// Implicit matchers added to every reset-and-retry case.
var resetMatchers = []navigation.ParamMatcher{
	navigation.Equals("client_id", "client_id", "portal"),
	navigation.Exists("automerge", "automerge", false),
}

// watchCases registers one capture per case, in config order, so the
// earliest configured case wins when one navigation matches several.
func watchCases(runner Runner, cases []ReturnCase) []*browser.Pending {
	specs := make([]navigation.MatchSpec, len(cases))
	for i, c := range cases {
		specs[i] = caseSpec(c)
	}
	return runner.WatchFirst(specs...)
}

func caseSpec(c ReturnCase) navigation.MatchSpec {
	if c.Type == CaseResetAndRetry {
		return c.When.With(resetMatchers...)
	}
	return c.When
}

func cancelAll(pending []*browser.Pending) {
	for _, p := range pending {
		p.Cancel()
	}
}

// buildBranches pairs every case with the capture watchCases registered for it.
func buildBranches(cases []ReturnCase, pending []*browser.Pending, deps Deps) []browser.Task[outcome] {
	tasks := make([]browser.Task[outcome], 0, len(cases))
	for i, c := range cases {
		tasks = append(tasks, buildBranch(c, pending[i], deps))
	}
	return tasks
}

func buildBranch(c ReturnCase, p *browser.Pending, deps Deps) browser.Task[outcome] {
	switch c.Type {
	case CaseCredentials:
		return credentialsBranch(c, p, deps)
	case CaseStateToken:
		return stateBranch(c, p, deps)
	case CaseFederatedIdentity:
		return federatedBranch(c, p)
	case CaseError:
		return errorBranch(c, p, deps)
	case CaseDelegatedMerge:
		return delegateBranch(p)
	case CaseResetAndRetry:
		return resetBranch(p, deps)
	}
	return func(context.Context) (outcome, error) {
		p.Cancel()
		return outcome{}, fmt.Errorf("%w: unknown return case type %q", ErrInvalidConfig, c.Type)
	}
}

// capture waits for p and drops matches that arrive after the race was
// decided, so a losing branch never runs its side effects.
func capture(ctx context.Context, p *browser.Pending) (navigation.Captured, error) {
	captured, err := p.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return captured, nil
}

func lookup(captured navigation.Captured, key string) (string, error) {
	value, ok := captured[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", browser.ErrMissingCapturedKey, key)
	}
	return value, nil
}

func credentialsBranch(c ReturnCase, p *browser.Pending, deps Deps) browser.Task[outcome] {
	return func(ctx context.Context) (outcome, error) {
		captured, err := capture(ctx, p)
		if err != nil {
			return outcome{}, err
		}
		code, err := lookup(captured, c.Fields.code())
		if err != nil {
			return outcome{}, err
		}
		if deps.Exchanger == nil {
			return outcome{}, fmt.Errorf("%w: no token exchanger for credentials case", ErrInvalidConfig)
		}

		deps.logger().Debugf("authorization code captured, exchanging")
		s, err := deps.Exchanger.ExchangeCode(ctx, code)
		if err != nil {
			return outcome{}, fmt.Errorf("failed to exchange authorization code: %w", err)
		}
		return outcome{kind: outcomeSession, session: s}, nil
	}
}

func stateBranch(c ReturnCase, p *browser.Pending, deps Deps) browser.Task[outcome] {
	return func(ctx context.Context) (outcome, error) {
		captured, err := capture(ctx, p)
		if err != nil {
			return outcome{}, err
		}
		state, err := lookup(captured, c.Fields.state())
		if err != nil {
			return outcome{}, err
		}
		if deps.Exchanger == nil {
			return outcome{}, fmt.Errorf("%w: no token exchanger for state-token case", ErrInvalidConfig)
		}

		deps.logger().Debugf("state id captured, exchanging")
		s, err := deps.Exchanger.ExchangeState(ctx, state)
		if err != nil {
			return outcome{}, fmt.Errorf("failed to exchange state: %w", err)
		}
		return outcome{kind: outcomeSession, session: s}, nil
	}
}

func federatedBranch(c ReturnCase, p *browser.Pending) browser.Task[outcome] {
	return func(ctx context.Context) (outcome, error) {
		captured, err := capture(ctx, p)
		if err != nil {
			return outcome{}, err
		}
		accessToken, err := lookup(captured, c.Fields.accessToken())
		if err != nil {
			return outcome{}, err
		}
		refreshToken, err := lookup(captured, c.Fields.refreshToken())
		if err != nil {
			return outcome{}, err
		}

		s, err := NewOAuthSession(accessToken, refreshToken, time.Time{})
		if err != nil {
			return outcome{}, err
		}
		return outcome{kind: outcomeSession, session: s}, nil
	}
}

// errorBranch always fails: it closes the window and rejects with the page's
// error message, or ServerErrorMessage when there is none.
func errorBranch(c ReturnCase, p *browser.Pending, deps Deps) browser.Task[outcome] {
	return func(ctx context.Context) (outcome, error) {
		captured, err := capture(ctx, p)
		if err != nil {
			return outcome{}, err
		}

		if err := deps.Runner.Close(); err != nil {
			deps.logger().Warnf("failed to close browser after error page: %v", err)
		}

		message, err := lookup(captured, c.Fields.errorMessage())
		if err != nil {
			message = ServerErrorMessage
		}
		deps.logger().Warnf("identity provider reported an error: %s", message)
		return outcome{}, &SignInError{Message: message}
	}
}

func delegateBranch(p *browser.Pending) browser.Task[outcome] {
	return func(ctx context.Context) (outcome, error) {
		captured, err := capture(ctx, p)
		if err != nil {
			return outcome{}, err
		}
		return outcome{kind: outcomeDelegate, captured: captured}, nil
	}
}

func resetBranch(p *browser.Pending, deps Deps) browser.Task[outcome] {
	return func(ctx context.Context) (outcome, error) {
		captured, err := capture(ctx, p)
		if err != nil {
			return outcome{}, err
		}
		if err := deps.Runner.Close(); err != nil {
			deps.logger().Warnf("failed to close browser after password reset: %v", err)
		}
		return outcome{kind: outcomeRetry, captured: captured}, nil
	}
}
