package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrInvalidInterval is returned by Start for a non-positive interval.
var ErrInvalidInterval = errors.New("auto-sync interval must be positive")

// SyncStat summarises one telemetry sync.
type SyncStat struct {
	SyncedEventCount int    `json:"syncedEventCount"`
	SyncTime         int64  `json:"syncTime"`
	SyncedFileSize   int64  `json:"syncedFileSize"`
	Error            string `json:"error,omitempty"`
}

// Syncer pushes buffered telemetry upstream.
type Syncer interface {
	Sync(ctx context.Context) (SyncStat, error)
}

// AutoSync calls a Syncer on a fixed interval. Syncs run one at a time on
// the loop goroutine; ticks that arrive while paused or during a sync are
// dropped.
type AutoSync struct {
	syncer Syncer
	paused atomic.Bool
}

// NewAutoSync creates an auto-sync loop for syncer.
func NewAutoSync(syncer Syncer) *AutoSync {
	return &AutoSync{syncer: syncer}
}

// Start begins syncing every interval until ctx is done. Each completed sync
// is reported on the returned channel, which is closed when the loop exits.
// Failed syncs carry the error text in SyncStat.Error.
func (a *AutoSync) Start(ctx context.Context, interval time.Duration) (<-chan SyncStat, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	a.paused.Store(false)
	stats := make(chan SyncStat)

	go func() {
		defer close(stats)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if a.paused.Load() {
				continue
			}

			stat, err := a.syncer.Sync(ctx)
			if err != nil {
				stat.Error = err.Error()
			}

			select {
			case stats <- stat:
			case <-ctx.Done():
				return
			}
		}
	}()

	return stats, nil
}

// Pause stops syncing on subsequent ticks.
func (a *AutoSync) Pause() {
	a.paused.Store(true)
}

// Continue resumes syncing on the next tick.
func (a *AutoSync) Continue() {
	a.paused.Store(false)
}
