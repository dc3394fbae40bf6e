package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightDriver opens Chromium windows through Playwright.
type PlaywrightDriver struct {
	mu          sync.Mutex
	playwright  *playwright.Playwright
	opts        Options
	initialized bool
}

// NewPlaywrightDriver creates a new Playwright-backed driver.
func NewPlaywrightDriver(opts Options) *PlaywrightDriver {
	return &PlaywrightDriver{opts: opts.withDefaults()}
}

// Initialize installs and starts Playwright.
// This must be called before opening any window.
func (d *PlaywrightDriver) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}

	// Keep Playwright's installer quiet; the window is the only UI.
	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	d.playwright = pw
	d.initialized = true
	return nil
}

// Open launches Chromium, attaches l to the page and navigates to url.
func (d *PlaywrightDriver) Open(ctx context.Context, url string, l Listener) (Window, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil, fmt.Errorf("playwright driver not initialized")
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &d.opts.Headless,
	}
	if d.opts.BrowserPath != "" {
		launchOpts.ExecutablePath = &d.opts.BrowserPath
	}
	browser, err := d.playwright.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  d.opts.Viewport.Width,
			Height: d.opts.Viewport.Height,
		},
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(d.opts.Timeout)

	window := &playwrightWindow{
		browser: browser,
		context: browserCtx,
		page:    page,
	}

	page.OnFrameNavigated(func(frame playwright.Frame) {
		if frame != page.MainFrame() || l.OnNavigate == nil {
			return
		}
		l.OnNavigate(frame.URL())
	})
	// OnClose closes the window through Close, which calls back into
	// playwright; blocking calls from an event handler deadlock.
	page.OnClose(func(playwright.Page) {
		if l.OnClose != nil {
			go window.closeOnce.Do(l.OnClose)
		}
	})

	if err := window.Navigate(ctx, url); err != nil {
		_ = window.Close()
		return nil, err
	}

	return window, nil
}

// Shutdown stops Playwright. Windows must be closed by their owners first.
func (d *PlaywrightDriver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized && d.playwright != nil {
		if err := d.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		d.initialized = false
	}
	return nil
}

type playwrightWindow struct {
	browser   playwright.Browser
	context   playwright.BrowserContext
	page      playwright.Page
	closeOnce sync.Once // listener notification

	releaseOnce sync.Once
	releaseErr  error
}

// Navigate returns as soon as the navigation is committed; the identity
// provider's pages drive everything after that.
func (w *playwrightWindow) Navigate(ctx context.Context, url string) error {
	waitUntil := playwright.WaitUntilState("commit")
	opts := playwright.PageGotoOptions{WaitUntil: &waitUntil}

	if deadline, ok := ctx.Deadline(); ok {
		timeout := float64(time.Until(deadline).Milliseconds())
		if timeout <= 0 {
			return ctx.Err()
		}
		opts.Timeout = &timeout
	}

	if _, err := w.page.Goto(url, opts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Close releases the page, its context and the browser process. Only the
// first call does any work.
func (w *playwrightWindow) Close() error {
	w.releaseOnce.Do(func() {
		_ = w.page.Close()    // Ignore errors, continue cleanup
		_ = w.context.Close() // Ignore errors, continue cleanup
		if err := w.browser.Close(); err != nil {
			w.releaseErr = fmt.Errorf("failed to close browser: %w", err)
		}
	})
	return w.releaseErr
}
