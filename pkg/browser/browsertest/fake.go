// Package browsertest provides a scripted browser.Driver for tests.
package browsertest

import (
	"context"
	"errors"
	"sync"

	"github.com/entrhq/signin/pkg/browser"
)

// ErrWindowClosed is returned when navigating a closed fake window.
var ErrWindowClosed = errors.New("fake window closed")

// FakeDriver records opened windows and lets tests emit navigations.
type FakeDriver struct {
	mu      sync.Mutex
	windows []*FakeWindow

	// OpenErr, when set, makes Open fail
	OpenErr error

	// OnOpen, when set, runs after a window is created and before Open
	// returns, like a page that redirects while it is still loading
	OnOpen func(w *FakeWindow)
}

// NewFakeDriver creates an empty fake driver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

// Open records a new window opened at url.
func (d *FakeDriver) Open(_ context.Context, url string, l browser.Listener) (browser.Window, error) {
	d.mu.Lock()
	if d.OpenErr != nil {
		d.mu.Unlock()
		return nil, d.OpenErr
	}
	w := &FakeWindow{listener: l, urls: []string{url}}
	d.windows = append(d.windows, w)
	onOpen := d.OnOpen
	d.mu.Unlock()

	if onOpen != nil {
		onOpen(w)
	}
	return w, nil
}

// Opened returns how many windows have been opened.
func (d *FakeDriver) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.windows)
}

// Window returns the i-th opened window.
func (d *FakeDriver) Window(i int) *FakeWindow {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.windows[i]
}

// Last returns the most recently opened window, or nil.
func (d *FakeDriver) Last() *FakeWindow {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.windows) == 0 {
		return nil
	}
	return d.windows[len(d.windows)-1]
}

// Emit delivers a navigation on the most recently opened window.
func (d *FakeDriver) Emit(url string) {
	if w := d.Last(); w != nil {
		w.Emit(url)
	}
}

// FakeWindow is a window opened by FakeDriver.
type FakeWindow struct {
	listener browser.Listener

	mu       sync.Mutex
	urls     []string
	closed   bool // Close was called
	gone     bool // the window went away, by Close or by the user
	notified bool
}

// Emit simulates the page navigating to url.
func (w *FakeWindow) Emit(url string) {
	w.mu.Lock()
	gone := w.gone
	w.mu.Unlock()

	if gone || w.listener.OnNavigate == nil {
		return
	}
	w.listener.OnNavigate(url)
}

// UserClose simulates the user dismissing the window. The listener is
// notified but the window is not released: Closed stays false until the
// owner calls Close.
func (w *FakeWindow) UserClose() {
	w.mu.Lock()
	w.gone = true
	w.mu.Unlock()

	w.notify()
}

// Navigate records url as a programmatic navigation.
func (w *FakeWindow) Navigate(_ context.Context, url string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.gone {
		return ErrWindowClosed
	}
	w.urls = append(w.urls, url)
	return nil
}

// Close releases the window. The listener is notified unless it already was.
func (w *FakeWindow) Close() error {
	w.mu.Lock()
	w.closed = true
	w.gone = true
	w.mu.Unlock()

	w.notify()
	return nil
}

func (w *FakeWindow) notify() {
	w.mu.Lock()
	notified := w.notified
	w.notified = true
	w.mu.Unlock()

	if !notified && w.listener.OnClose != nil {
		w.listener.OnClose()
	}
}

// URLs returns the launch URL followed by every programmatic navigation.
func (w *FakeWindow) URLs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.urls...)
}

// Closed reports whether the owner released the window with Close.
func (w *FakeWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}
