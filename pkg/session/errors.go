package session

import (
	"context"
	"errors"

	"github.com/entrhq/signin/pkg/browser"
)

// ServerErrorMessage is reported when an error page carries no message.
const ServerErrorMessage = "Server Error"

var (
	// ErrTooManyAttempts is the cause when reset-and-retry exceeds its bound.
	ErrTooManyAttempts = errors.New("too many sign-in attempts")

	// ErrInvalidConfig is the cause when a provider configuration is rejected.
	ErrInvalidConfig = errors.New("invalid sign-in configuration")
)

// SignInError is the only error returned by Provide.
type SignInError struct {
	Message string
	Err     error
}

func (e *SignInError) Error() string {
	return e.Message
}

func (e *SignInError) Unwrap() error {
	return e.Err
}

// asSignInError normalises any failure into a SignInError, keeping the cause.
func asSignInError(err error) *SignInError {
	var signInErr *SignInError
	if errors.As(err, &signInErr) {
		return signInErr
	}

	message := "sign-in failed"
	switch {
	case errors.Is(err, ErrInvalidConfig):
		message = ErrInvalidConfig.Error()
	case errors.Is(err, browser.ErrLaunch):
		message = "unable to open the sign-in page"
	case errors.Is(err, browser.ErrCaptureAborted), errors.Is(err, context.Canceled):
		message = "sign-in cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		message = "sign-in timed out"
	case errors.Is(err, ErrTooManyAttempts):
		message = ErrTooManyAttempts.Error()
	}
	return &SignInError{Message: message, Err: err}
}
