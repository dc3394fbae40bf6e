// Package browser drives the embedded browser a sign-in flow runs in.
//
// The package is built around three concepts:
//
// 1. Driver/Window: the actual browser (Playwright or go-rod), reporting
// main-frame navigations and window closure through a Listener
// 2. Controller: owns one window at a time and matches its navigations
// against pending captures
// 3. Race: runs several capture branches and keeps the first to settle
//
// # Captures
//
// A capture waits for the first navigation matching a navigation.MatchSpec.
// Any number of captures may be pending at once; each navigation is checked
// against all of them, in registration order, before the next one is
// processed. Captures have no timeout. Closing the window, by the owner or
// by the user, fails every pending capture with ErrCaptureAborted.
//
// Watch and WatchFirst register captures without blocking, so they can be
// set up before Launch and no early redirect is missed. A WatchFirst set
// settles at most one of its captures per navigation, the first registered.
//
// # Example Usage
//
//	driver := browser.NewPlaywrightDriver(browser.Options{Headless: false})
//	if err := driver.Initialize(); err != nil {
//	    return err
//	}
//	ctrl := browser.NewController(driver)
//
//	pending := ctrl.Watch(navigation.MatchSpec{
//	    Host:   "id.example.org",
//	    Path:   "/oauth2callback",
//	    Params: []navigation.ParamMatcher{navigation.Resolve("code", "code")},
//	})
//	err := ctrl.Launch(ctx, browser.Target{Host: "id.example.org", Path: "/auth"})
//	captured, err := pending.Wait(ctx)
package browser
