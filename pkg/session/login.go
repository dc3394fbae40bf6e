package session

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/signin/pkg/browser"
	"github.com/entrhq/signin/pkg/navigation"
)

const tracerName = "github.com/entrhq/signin/pkg/session"

// LoginProvider runs the top-level sign-in flow.
type LoginProvider struct {
	login  ProviderConfig
	merge  ProviderConfig
	deps   Deps
	tracer trace.Tracer
}

// NewLoginProvider creates a provider for login. merge is only used when a
// delegated-merge case wins.
func NewLoginProvider(login, merge ProviderConfig, deps Deps) *LoginProvider {
	return &LoginProvider{
		login:  login,
		merge:  merge,
		deps:   deps,
		tracer: deps.tracer(),
	}
}

// Provide launches the browser, races every configured case and returns the
// resulting session. All failures are *SignInError.
//
// A winning reset-and-retry case closes the window and relaunches after the
// retry delay, up to RetryPolicy.MaxAttempts launches in total. A winning
// delegated-merge case hands the still-open window to the merge flow, whose
// result is returned.
func (p *LoginProvider) Provide(ctx context.Context) (*OAuthSession, error) {
	if err := p.validate(); err != nil {
		return nil, asSignInError(err)
	}

	logger := p.deps.logger()
	policy := p.deps.Retry.withDefaults()
	delays := policy.backOff()

	for attempt := 1; ; attempt++ {
		out, err := p.attempt(ctx, attempt)
		if err != nil {
			return nil, asSignInError(err)
		}

		switch out.kind {
		case outcomeSession:
			logger.Infof("sign-in completed for user %s", out.session.UserToken)
			return out.session, nil

		case outcomeDelegate:
			logger.Infof("account merge requested, delegating")
			return p.delegate(ctx, out.captured)

		case outcomeRetry:
			if attempt >= policy.MaxAttempts {
				logger.Warnf("password reset retry limit (%d) reached", policy.MaxAttempts)
				return nil, asSignInError(ErrTooManyAttempts)
			}
			delay := delays.NextBackOff()
			if delay == backoff.Stop {
				return nil, asSignInError(ErrTooManyAttempts)
			}
			logger.Infof("password reset detected, relaunching in %s", delay)
			if err := sleep(ctx, delay); err != nil {
				return nil, asSignInError(err)
			}
		}
	}
}

func (p *LoginProvider) validate() error {
	if p.deps.Runner == nil {
		return fmt.Errorf("%w: no browser runner", ErrInvalidConfig)
	}
	if err := p.login.ValidateLogin(); err != nil {
		return fmt.Errorf("%w: login: %w", ErrInvalidConfig, err)
	}
	if p.login.HasCase(CaseDelegatedMerge) {
		if err := p.merge.ValidateMerge(); err != nil {
			return fmt.Errorf("%w: merge: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// attempt is one launch-and-race cycle.
func (p *LoginProvider) attempt(ctx context.Context, n int) (outcome, error) {
	attemptID := uuid.NewString()
	logger := p.deps.logger()

	ctx, span := p.tracer.Start(ctx, "signin.provide", trace.WithAttributes(
		attribute.Int("signin.attempt", n),
		attribute.String("signin.attempt_id", attemptID),
	))
	defer span.End()

	target, err := withPData(ctx, p.deps.Telemetry, p.login.Target)
	if err != nil {
		recordError(span, err)
		return outcome{}, err
	}

	// Every case is watching before the window opens, so a provider that
	// redirects straight to a return URL is not missed.
	if err := p.deps.Runner.Close(); err != nil {
		logger.Warnf("[%s] failed to close previous window: %v", attemptID, err)
	}
	pending := watchCases(p.deps.Runner, p.login.Return)

	logger.Infof("[%s] attempt %d: launching %s%s", attemptID, n, target.Host, target.Path)
	if err := p.deps.Runner.Launch(ctx, target); err != nil {
		cancelAll(pending)
		logger.Errorf("[%s] launch failed: %v", attemptID, err)
		recordError(span, err)
		return outcome{}, err
	}

	out, err := browser.Race(ctx, buildBranches(p.login.Return, pending, p.deps)...)
	if err != nil {
		logger.Warnf("[%s] sign-in failed: %v", attemptID, err)
		recordError(span, err)
		return outcome{}, err
	}

	span.SetAttributes(attribute.String("signin.outcome", out.kind.String()))
	return out, nil
}

func (p *LoginProvider) delegate(ctx context.Context, captured navigation.Captured) (*OAuthSession, error) {
	p.deps.Runner.ResetListeners()
	p.deps.Runner.ClearCapture()
	return NewMergeProvider(p.merge, p.deps).Provide(ctx, captured)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
