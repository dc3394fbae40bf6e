package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodDriver opens windows in a Chrome instance driven over the DevTools
// protocol with go-rod. It either attaches to ControlURL or launches a
// browser itself.
type RodDriver struct {
	opts       Options
	controlURL string

	mu      sync.Mutex
	browser *rod.Browser
}

// NewRodDriver creates a rod-backed driver. An empty controlURL launches a
// local browser on first use.
func NewRodDriver(opts Options, controlURL string) *RodDriver {
	return &RodDriver{opts: opts.withDefaults(), controlURL: controlURL}
}

// Start connects to the browser, launching one if needed.
func (d *RodDriver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startLocked(ctx)
}

func (d *RodDriver) startLocked(ctx context.Context) error {
	if d.browser != nil {
		if _, err := d.browser.Version(); err == nil {
			return nil
		}
		_ = d.browser.Close()
		d.browser = nil
	}

	controlURL := d.controlURL
	if controlURL == "" {
		l := launcher.New().Headless(d.opts.Headless)
		if d.opts.BrowserPath != "" {
			l = l.Bin(d.opts.BrowserPath)
		}
		url, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(browser); err != nil {
		_ = browser.Close()
		return fmt.Errorf("enable target discovery: %w", err)
	}

	d.browser = browser
	return nil
}

// Open creates a page in a fresh incognito context and navigates it to url.
func (d *RodDriver) Open(ctx context.Context, url string, l Listener) (Window, error) {
	d.mu.Lock()
	if err := d.startLocked(context.Background()); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	browser := d.browser
	d.mu.Unlock()

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             d.opts.Viewport.Width,
		Height:            d.opts.Viewport.Height,
		DeviceScaleFactor: 1.0,
		Mobile:            true,
	}).Call(page); err != nil {
		_ = page.Close()
		_ = incognito.Close()
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	eventsCtx, stop := context.WithCancel(context.Background())
	window := &rodWindow{
		incognito: incognito,
		page:      page,
		stop:      stop,
		timeout:   time.Duration(d.opts.Timeout) * time.Millisecond,
	}

	// Navigation events for this page only, delivered one at a time.
	waitNav := page.Context(eventsCtx).EachEvent(func(ev *proto.PageFrameNavigated) {
		if ev.Frame.ParentID != "" || l.OnNavigate == nil {
			return
		}
		l.OnNavigate(ev.Frame.URL)
	})
	waitClose := browser.Context(eventsCtx).EachEvent(func(ev *proto.TargetTargetDestroyed) bool {
		if ev.TargetID != page.TargetID {
			return false
		}
		// OnClose ends up in Close, which cancels this subscription.
		if l.OnClose != nil {
			go window.closeOnce.Do(l.OnClose)
		}
		return true
	})
	go waitNav()
	go waitClose()

	if err := window.Navigate(ctx, url); err != nil {
		_ = window.Close()
		return nil, err
	}

	return window, nil
}

// Shutdown closes the browser connection.
func (d *RodDriver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser == nil {
		return nil
	}
	err := d.browser.Close()
	d.browser = nil
	return err
}

type rodWindow struct {
	incognito *rod.Browser
	page      *rod.Page
	stop      context.CancelFunc
	timeout   time.Duration
	closeOnce sync.Once // listener notification

	releaseOnce sync.Once
	releaseErr  error
}

func (w *rodWindow) Navigate(ctx context.Context, url string) error {
	if err := w.page.Context(ctx).Timeout(w.timeout).Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Close stops the event subscriptions and disposes the page together with
// its incognito browser context. Only the first call does any work.
func (w *rodWindow) Close() error {
	w.releaseOnce.Do(func() {
		defer w.stop()
		_ = w.page.Close() // already gone when the user closed it
		if err := w.incognito.Close(); err != nil {
			w.releaseErr = fmt.Errorf("dispose browser context: %w", err)
		}
	})
	return w.releaseErr
}
