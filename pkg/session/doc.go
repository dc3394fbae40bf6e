// Package session turns an embedded-browser login flow into an OAuthSession.
//
// A LoginProvider opens the identity provider's login page and races one
// branch per configured ReturnCase. Each branch waits for its own navigation
// pattern; the first to settle decides the result:
//
//   - credentials, state-token and federated-identity produce a session
//   - error closes the window and fails with the page's message
//   - delegated-merge continues in the same window through a MergeProvider
//   - reset-and-retry closes the window and relaunches after a short delay,
//     a bounded number of times
//
// Every error returned by Provide is a *SignInError; the underlying cause is
// available through errors.Is and errors.As.
package session
