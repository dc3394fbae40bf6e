// Package telemetry holds the telemetry collaborators the sign-in flow
// depends on: the context builder whose platform descriptor is injected into
// every launch, the event buffer with its HTTP syncer, and the periodic
// auto-sync loop.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
)

// PData describes the producing platform.
type PData struct {
	ID  string `yaml:"id" json:"id"`
	Pid string `yaml:"pid" json:"pid"`
	Ver string `yaml:"ver" json:"ver"`
}

// Encode returns the JSON form injected as a launch parameter.
func (p PData) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode pdata: %w", err)
	}
	return string(data), nil
}

// Context is the telemetry context of the running SDK.
type Context struct {
	PData   PData  `json:"pdata"`
	Channel string `json:"channel,omitempty"`
	Env     string `json:"env,omitempty"`
	Sid     string `json:"sid,omitempty"`
	Did     string `json:"did,omitempty"`
}

// ContextBuilder builds the current telemetry context.
type ContextBuilder interface {
	BuildContext(ctx context.Context) (*Context, error)
}

// StaticContextBuilder always returns the same context.
type StaticContextBuilder struct {
	Context Context
}

// BuildContext returns a copy of the configured context.
func (b StaticContextBuilder) BuildContext(ctx context.Context) (*Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := b.Context
	return &c, nil
}
