package browser_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/signin/pkg/browser"
)

func waitForCancel(cancelled *atomic.Int32) browser.Task[string] {
	return func(ctx context.Context) (string, error) {
		<-ctx.Done()
		cancelled.Add(1)
		return "", ctx.Err()
	}
}

func TestRace_FirstFulfilmentWins(t *testing.T) {
	var cancelled atomic.Int32

	got, err := browser.Race(context.Background(),
		waitForCancel(&cancelled),
		func(context.Context) (string, error) { return "session", nil },
		waitForCancel(&cancelled),
	)

	require.NoError(t, err)
	assert.Equal(t, "session", got)
	assert.Equal(t, int32(2), cancelled.Load(), "losers are cancelled and joined before Race returns")
}

func TestRace_FirstRejectionWins(t *testing.T) {
	var cancelled atomic.Int32
	signInErr := errors.New("denied")

	_, err := browser.Race(context.Background(),
		waitForCancel(&cancelled),
		func(context.Context) (string, error) { return "", signInErr },
	)

	assert.ErrorIs(t, err, signInErr)
	assert.Equal(t, int32(1), cancelled.Load())
}

func TestRace_AbortedCapturesDoNotSettleWhileOthersPending(t *testing.T) {
	release := make(chan struct{})

	got, err := browser.Race(context.Background(),
		func(context.Context) (string, error) {
			defer close(release)
			return "", fmt.Errorf("watching callback: %w", browser.ErrCaptureAborted)
		},
		func(ctx context.Context) (string, error) {
			<-release
			return "late winner", nil
		},
	)

	require.NoError(t, err)
	assert.Equal(t, "late winner", got)
}

func TestRace_AllAborted(t *testing.T) {
	aborted := func(context.Context) (int, error) { return 0, browser.ErrCaptureAborted }

	_, err := browser.Race(context.Background(), aborted, aborted, aborted)
	assert.ErrorIs(t, err, browser.ErrCaptureAborted)
}

func TestRace_NoTasks(t *testing.T) {
	_, err := browser.Race[string](context.Background())
	assert.ErrorIs(t, err, browser.ErrNoTasks)
}

func TestRace_ParentCancellation(t *testing.T) {
	var cancelled atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := browser.Race(ctx, waitForCancel(&cancelled), waitForCancel(&cancelled))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(2), cancelled.Load())
}
