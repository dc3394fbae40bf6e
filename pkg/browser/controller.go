package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/entrhq/signin/pkg/navigation"
)

// Controller owns one embedded-browser window at a time and turns its
// navigation events into captures.
//
// Events are dispatched one at a time. Each event is checked against every
// pending capture in registration order before the next event is processed.
// Captures registered together with WatchFirst are exclusive: only the
// first-registered match settles.
type Controller struct {
	driver Driver

	mu       sync.Mutex
	window   Window
	gen      uint64 // bumped whenever the window changes; stale callbacks are dropped
	watchers []*watcher
	current  navigation.Captured
}

type captureResult struct {
	captured navigation.Captured
	err      error
}

type watcher struct {
	spec   navigation.MatchSpec
	group  *watchGroup // nil for an independent watch
	result chan captureResult
}

// watchGroup ties together watches of which at most one may settle with a match.
type watchGroup struct{}

// settle must be called at most once, after the watcher left the pending list.
func (w *watcher) settle(captured navigation.Captured, err error) {
	w.result <- captureResult{captured: captured, err: err}
}

// Pending is a registered capture. It is matched against every navigation
// dispatched after registration, whether or not it is being waited on.
type Pending struct {
	c *Controller
	w *watcher
}

// Wait blocks until the capture settles and returns its snapshot. On
// ctx.Done the capture is detached and ctx.Err() is returned, unless it
// settled in the meantime.
func (p *Pending) Wait(ctx context.Context) (navigation.Captured, error) {
	select {
	case r := <-p.w.result:
		return r.captured, r.err
	case <-ctx.Done():
		if p.c.remove(p.w) {
			return nil, ctx.Err()
		}
		// settled while we were being cancelled
		r := <-p.w.result
		return r.captured, r.err
	}
}

// Cancel detaches a capture nobody is going to wait on. A later Wait fails
// with ErrCaptureAborted. Cancelling a settled capture is a no-op.
func (p *Pending) Cancel() {
	if p.c.remove(p.w) {
		p.w.settle(nil, ErrCaptureAborted)
	}
}

// NewController creates a controller that opens windows through driver.
func NewController(driver Driver) *Controller {
	return &Controller{driver: driver}
}

// Launch opens a window at target. A window already open is closed first,
// failing its pending captures. Captures registered while no window is open
// carry over to the new window and see every navigation it reports,
// including those delivered before Open returns.
func (c *Controller) Launch(ctx context.Context, target Target) error {
	u, err := target.URL()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	c.mu.Lock()
	var previous Window
	var aborted []*watcher
	if c.window != nil {
		previous, aborted = c.window, c.watchers
		c.window, c.watchers = nil, nil
	}
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	for _, w := range aborted {
		w.settle(nil, ErrCaptureAborted)
	}
	if previous != nil {
		if err := previous.Close(); err != nil {
			c.abort(gen)
			return fmt.Errorf("%w: failed to close previous window: %w", ErrLaunch, err)
		}
	}

	window, err := c.driver.Open(ctx, u, c.listener(gen))
	if err != nil {
		c.abort(gen)
		return fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = window.Close()
		return fmt.Errorf("window closed during launch: %w", ErrCaptureAborted)
	}
	c.window = window
	c.mu.Unlock()

	return nil
}

// Navigate continues the open window at target without relaunching it.
func (c *Controller) Navigate(ctx context.Context, target Target) error {
	u, err := target.URL()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	c.mu.Lock()
	window := c.window
	c.mu.Unlock()

	if window == nil {
		return fmt.Errorf("%w: no open window", ErrLaunch)
	}
	if err := window.Navigate(ctx, u); err != nil {
		return fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	return nil
}

// Watch registers a capture for spec and returns without blocking. The
// capture never times out on its own; it fails with ErrCaptureAborted when
// the window it is attached to closes.
func (c *Controller) Watch(spec navigation.MatchSpec) *Pending {
	return c.WatchFirst(spec)[0]
}

// WatchFirst registers one capture per spec, in order, as an exclusive set:
// the first navigation matching any of them settles the earliest matching
// one and fails the rest with ErrSuperseded.
func (c *Controller) WatchFirst(specs ...navigation.MatchSpec) []*Pending {
	var group *watchGroup
	if len(specs) > 1 {
		group = &watchGroup{}
	}

	pending := make([]*Pending, len(specs))
	c.mu.Lock()
	for i, spec := range specs {
		w := &watcher{spec: spec, group: group, result: make(chan captureResult, 1)}
		c.watchers = append(c.watchers, w)
		pending[i] = &Pending{c: c, w: w}
	}
	c.mu.Unlock()
	return pending
}

// Capture waits for the first navigation matching spec in the open window
// and returns its snapshot, which also becomes the controller's current
// snapshot.
//
// Capture fails with ErrCaptureAborted when no window is open or the window
// closes, and with ctx.Err() when ctx is done.
func (c *Controller) Capture(ctx context.Context, spec navigation.MatchSpec) (navigation.Captured, error) {
	w := &watcher{spec: spec, result: make(chan captureResult, 1)}

	c.mu.Lock()
	if c.window == nil {
		c.mu.Unlock()
		return nil, ErrCaptureAborted
	}
	c.watchers = append(c.watchers, w)
	c.mu.Unlock()

	return (&Pending{c: c, w: w}).Wait(ctx)
}

// ResolveCaptured returns key from the most recent capture.
func (c *Controller) ResolveCaptured(key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.current[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMissingCapturedKey, key)
	}
	return value, nil
}

// ClearCapture discards the current snapshot.
func (c *Controller) ClearCapture() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}

// ResetListeners detaches every pending capture. They fail with ErrListenersReset.
func (c *Controller) ResetListeners() {
	c.mu.Lock()
	watchers := c.watchers
	c.watchers = nil
	c.mu.Unlock()

	for _, w := range watchers {
		w.settle(nil, ErrListenersReset)
	}
}

// Close closes the open window, failing pending captures with ErrCaptureAborted.
// Closing an already closed controller is a no-op.
func (c *Controller) Close() error {
	c.mu.Lock()
	window := c.window
	watchers := c.watchers
	c.window = nil
	c.watchers = nil
	c.gen++
	c.mu.Unlock()

	for _, w := range watchers {
		w.settle(nil, ErrCaptureAborted)
	}

	if window == nil {
		return nil
	}
	if err := window.Close(); err != nil {
		return fmt.Errorf("failed to close browser window: %w", err)
	}
	return nil
}

// IsOpen reports whether a window is open.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window != nil
}

// PendingCaptures returns the number of captures still waiting for a match.
func (c *Controller) PendingCaptures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.watchers)
}

func (c *Controller) listener(gen uint64) Listener {
	return Listener{
		OnNavigate: func(url string) { c.dispatch(gen, url) },
		OnClose:    func() { c.windowClosed(gen) },
	}
}

// dispatch evaluates one navigation against the pending watchers. The lock
// is held for the whole event so events never interleave.
func (c *Controller) dispatch(gen uint64, raw string) {
	event, err := navigation.ParseEvent(raw)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}

	won := make(map[*watchGroup]bool)
	remaining := make([]*watcher, 0, len(c.watchers))
	var superseded []*watcher
	for _, w := range c.watchers {
		if w.group != nil && won[w.group] {
			superseded = append(superseded, w)
			continue
		}
		captured, ok := navigation.Match(event, w.spec)
		if !ok {
			remaining = append(remaining, w)
			continue
		}
		c.current = captured
		w.settle(captured.Clone(), nil)
		if w.group != nil {
			won[w.group] = true
		}
	}

	// earlier members of a group that has just settled
	if len(won) > 0 {
		kept := remaining[:0]
		for _, w := range remaining {
			if w.group != nil && won[w.group] {
				superseded = append(superseded, w)
				continue
			}
			kept = append(kept, w)
		}
		remaining = kept
	}

	for _, w := range superseded {
		w.settle(nil, ErrSuperseded)
	}
	c.watchers = remaining
}

// windowClosed handles a window closed by someone other than Close. The
// window is still closed through its Window so the driver releases it.
func (c *Controller) windowClosed(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	window := c.window
	watchers := c.watchers
	c.window = nil
	c.watchers = nil
	c.gen++
	c.mu.Unlock()

	for _, w := range watchers {
		w.settle(nil, ErrCaptureAborted)
	}
	if window != nil {
		_ = window.Close()
	}
}

// abort fails the captures waiting on a launch that did not produce a window.
func (c *Controller) abort(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	watchers := c.watchers
	c.watchers = nil
	c.gen++
	c.mu.Unlock()

	for _, w := range watchers {
		w.settle(nil, ErrCaptureAborted)
	}
}

func (c *Controller) remove(target *watcher) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, w := range c.watchers {
		if w == target {
			c.watchers = append(c.watchers[:i], c.watchers[i+1:]...)
			return true
		}
	}
	return false
}
