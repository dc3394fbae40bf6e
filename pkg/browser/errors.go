package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrLaunch is returned when the target is malformed or the browser
	// window cannot be created or navigated.
	ErrLaunch = errors.New("browser launch failed")

	// ErrCaptureAborted fails a pending capture whose window was closed.
	ErrCaptureAborted = errors.New("capture aborted: browser closed")

	// ErrListenersReset fails a pending capture detached by ResetListeners.
	ErrListenersReset = fmt.Errorf("%w: navigation listeners reset", ErrCaptureAborted)

	// ErrSuperseded fails the other captures of a WatchFirst set once one of
	// them matched.
	ErrSuperseded = fmt.Errorf("%w: another capture matched first", ErrCaptureAborted)

	// ErrMissingCapturedKey is returned by ResolveCaptured for absent keys.
	ErrMissingCapturedKey = errors.New("key not present in captured navigation")

	// ErrNoTasks is returned by Race when called without tasks.
	ErrNoTasks = errors.New("race requires at least one task")
)
