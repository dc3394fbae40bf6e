package browser

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Task is one branch taking part in a Race.
type Task[T any] func(ctx context.Context) (T, error)

// Race runs every task concurrently and returns the outcome of the first one
// to settle. A task failing with ErrCaptureAborted only settles the race when
// every task has aborted; closing the window from a winning branch therefore
// never lets a sibling's abort win.
//
// Once settled, the context shared by the tasks is cancelled and Race waits
// for the losers to return, so no capture or goroutine outlives the call.
//
// Race itself has no notion of task order. Tasks waiting on captures from
// one Controller.WatchFirst set are decided by the controller: the losers
// fail with ErrSuperseded, which counts as an abort here.
func Race[T any](ctx context.Context, tasks ...Task[T]) (T, error) {
	var zero T
	if len(tasks) == 0 {
		return zero, ErrNoTasks
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type settled struct {
		value T
		err   error
	}
	results := make(chan settled, len(tasks))

	var g errgroup.Group
	for _, task := range tasks {
		g.Go(func() error {
			value, err := task(ctx)
			results <- settled{value: value, err: err}
			return nil
		})
	}

	var aborted error
	for range tasks {
		r := <-results
		if r.err != nil && errors.Is(r.err, ErrCaptureAborted) {
			aborted = r.err
			continue
		}
		cancel()
		_ = g.Wait()
		return r.value, r.err
	}

	_ = g.Wait()
	return zero, aborted
}
