package browser

import "context"

// Listener receives callbacks from an open Window.
type Listener struct {
	// OnNavigate is called with the URL of every main-frame navigation
	OnNavigate func(url string)

	// OnClose is called once when the window goes away
	OnClose func()
}

// Window is one open embedded-browser window.
type Window interface {
	// Navigate continues the window at url, returning once navigation has started
	Navigate(ctx context.Context, url string) error

	// Close closes the window and releases its resources. It may be called
	// again after the window went away on its own.
	Close() error
}

// Driver opens embedded-browser windows.
type Driver interface {
	// Open creates a window, attaches l and navigates to url
	Open(ctx context.Context, url string, l Listener) (Window, error)
}
