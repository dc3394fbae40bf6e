package session

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/signin/pkg/browser"
	"github.com/entrhq/signin/pkg/navigation"
)

// MergeProvider completes an account merge in the window the login flow
// left open.
type MergeProvider struct {
	config ProviderConfig
	deps   Deps
	tracer trace.Tracer
}

// NewMergeProvider creates a merge provider for config.
func NewMergeProvider(config ProviderConfig, deps Deps) *MergeProvider {
	return &MergeProvider{
		config: config,
		deps:   deps,
		tracer: deps.tracer(),
	}
}

// Provide continues the open window with the snapshot captured by the login
// flow. When the merge target has a host the window is navigated there, with
// the snapshot's values added to the target's params; otherwise the current
// page keeps going. The merge cases are then raced like the login cases.
func (p *MergeProvider) Provide(ctx context.Context, captured navigation.Captured) (*OAuthSession, error) {
	if err := p.config.ValidateMerge(); err != nil {
		return nil, asSignInError(fmt.Errorf("%w: merge: %w", ErrInvalidConfig, err))
	}

	ctx, span := p.tracer.Start(ctx, "signin.merge", trace.WithAttributes(
		attribute.Int("signin.captured_keys", len(captured)),
	))
	defer span.End()

	logger := p.deps.logger()

	var target browser.Target
	if p.config.Target.Host != "" {
		var err error
		target, err = withPData(ctx, p.deps.Telemetry, withCaptured(p.config.Target, captured))
		if err != nil {
			recordError(span, err)
			return nil, asSignInError(err)
		}
	}

	pending := watchCases(p.deps.Runner, p.config.Return)
	if target.Host != "" {
		logger.Infof("continuing account merge at %s%s", target.Host, target.Path)
		if err := p.deps.Runner.Navigate(ctx, target); err != nil {
			cancelAll(pending)
			recordError(span, err)
			return nil, asSignInError(err)
		}
	}

	out, err := browser.Race(ctx, buildBranches(p.config.Return, pending, p.deps)...)
	if err != nil {
		logger.Warnf("account merge failed: %v", err)
		recordError(span, err)
		return nil, asSignInError(err)
	}
	if out.kind != outcomeSession {
		err := fmt.Errorf("%w: merge flow produced %s", ErrInvalidConfig, out.kind)
		recordError(span, err)
		return nil, asSignInError(err)
	}

	logger.Infof("account merge completed for user %s", out.session.UserToken)
	return out.session, nil
}
