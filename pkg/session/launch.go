package session

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/entrhq/signin/pkg/browser"
	"github.com/entrhq/signin/pkg/navigation"
	"github.com/entrhq/signin/pkg/telemetry"
)

// PDataParam is the launch parameter carrying the platform descriptor.
const PDataParam = "pdata"

// withPData appends the JSON platform descriptor from builder to target.
// The configured target is never modified.
func withPData(ctx context.Context, builder telemetry.ContextBuilder, target browser.Target) (browser.Target, error) {
	if builder == nil {
		return browser.Target{}, fmt.Errorf("%w: no telemetry context builder", ErrInvalidConfig)
	}

	tc, err := builder.BuildContext(ctx)
	if err != nil {
		return browser.Target{}, fmt.Errorf("failed to build telemetry context: %w", err)
	}
	pdata, err := tc.PData.Encode()
	if err != nil {
		return browser.Target{}, err
	}

	return target.WithParams(browser.Param{Key: PDataParam, Value: pdata}), nil
}

// withCaptured appends the captured snapshot to target in key order, so the
// snapshot overrides configured params with the same key.
func withCaptured(target browser.Target, captured navigation.Captured) browser.Target {
	params := make([]browser.Param, 0, len(captured))
	for _, key := range slices.Sorted(maps.Keys(captured)) {
		params = append(params, browser.Param{Key: key, Value: captured[key]})
	}
	return target.WithParams(params...)
}
