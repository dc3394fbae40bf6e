package session

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/signin/pkg/browser"
	"github.com/entrhq/signin/pkg/logging"
	"github.com/entrhq/signin/pkg/navigation"
	"github.com/entrhq/signin/pkg/telemetry"
)

// Runner is the browser surface the sign-in flows drive. *browser.Controller
// implements it.
type Runner interface {
	Launch(ctx context.Context, target browser.Target) error
	Navigate(ctx context.Context, target browser.Target) error
	WatchFirst(specs ...navigation.MatchSpec) []*browser.Pending
	ClearCapture()
	ResetListeners()
	Close() error
}

var _ Runner = (*browser.Controller)(nil)

// Exchanger turns captured values into tokens.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code string) (*OAuthSession, error)
	ExchangeState(ctx context.Context, state string) (*OAuthSession, error)
}

// Deps carries everything a provider and its branches need.
type Deps struct {
	Runner    Runner
	Telemetry telemetry.ContextBuilder
	Exchanger Exchanger
	Logger    *logging.Logger
	Retry     RetryPolicy

	// TracerProvider defaults to the global provider
	TracerProvider trace.TracerProvider
}

func (d Deps) logger() *logging.Logger {
	if d.Logger == nil {
		return logging.NewWriterLogger("signin", io.Discard)
	}
	return d.Logger
}

func (d Deps) tracer() trace.Tracer {
	if d.TracerProvider == nil {
		return otel.Tracer(tracerName)
	}
	return d.TracerProvider.Tracer(tracerName)
}

// Retry defaults
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 500 * time.Millisecond
)

// RetryPolicy bounds how often reset-and-retry may relaunch the flow.
type RetryPolicy struct {
	// MaxAttempts counts the first launch; zero uses DefaultMaxAttempts
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// Delay is the settle delay before relaunching; zero uses DefaultRetryDelay
	Delay time.Duration `yaml:"delay" json:"delay"`

	// Multiplier above 1 grows the delay exponentially up to MaxDelay
	Multiplier float64       `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`
	MaxDelay   time.Duration `yaml:"max_delay,omitempty" json:"max_delay,omitempty"`
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Delay <= 0 {
		p.Delay = DefaultRetryDelay
	}
	if p.MaxDelay < p.Delay {
		p.MaxDelay = p.Delay
	}
	return p
}

func (p RetryPolicy) backOff() backoff.BackOff {
	if p.Multiplier <= 1 {
		return backoff.NewConstantBackOff(p.Delay)
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Delay,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxDelay,
	}
	b.Reset()
	return b
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
