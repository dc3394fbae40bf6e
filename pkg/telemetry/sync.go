package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// Event is one telemetry event waiting to be synced.
type Event struct {
	EID   string         `json:"eid"`
	Ets   int64          `json:"ets"`
	MID   string         `json:"mid"`
	Edata map[string]any `json:"edata,omitempty"`
}

// NewEvent stamps an event of kind eid with the current time and a message id.
func NewEvent(eid string, edata map[string]any) Event {
	return Event{
		EID:   eid,
		Ets:   time.Now().UnixMilli(),
		MID:   uuid.NewString(),
		Edata: edata,
	}
}

// Buffer holds events until a sync takes them. It is safe for concurrent use.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Record queues e for the next sync.
func (b *Buffer) Record(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

// Len returns the number of queued events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func (b *Buffer) take() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.events
	b.events = nil
	return events
}

// requeue puts events from a failed sync back ahead of newer ones.
func (b *Buffer) requeue(events []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(events, b.events...)
}

type syncBatch struct {
	ID      string   `json:"id"`
	Ver     string   `json:"ver"`
	Ets     int64    `json:"ets"`
	Context *Context `json:"context"`
	Events  []Event  `json:"events"`
}

// HTTPSyncer posts buffered events, with the current telemetry context, to a
// collector endpoint as one JSON batch per sync.
type HTTPSyncer struct {
	url     string
	builder ContextBuilder
	buffer  *Buffer
	client  *retryablehttp.Client
}

// NewHTTPSyncer creates a syncer draining buffer into url. retryMax bounds
// retries on connection errors and 5xx responses.
func NewHTTPSyncer(url string, builder ContextBuilder, buffer *Buffer, retryMax int) *HTTPSyncer {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil

	return &HTTPSyncer{
		url:     url,
		builder: builder,
		buffer:  buffer,
		client:  client,
	}
}

// Sync sends every queued event. An empty buffer is a successful no-op; on
// failure the events stay queued for the next sync.
func (s *HTTPSyncer) Sync(ctx context.Context) (SyncStat, error) {
	started := time.Now()
	events := s.buffer.take()
	if len(events) == 0 {
		return SyncStat{SyncTime: started.UnixMilli()}, nil
	}

	stat, err := s.send(ctx, events)
	if err != nil {
		s.buffer.requeue(events)
		return SyncStat{SyncTime: started.UnixMilli()}, err
	}
	stat.SyncTime = started.UnixMilli()
	return stat, nil
}

func (s *HTTPSyncer) send(ctx context.Context, events []Event) (SyncStat, error) {
	telemetryCtx, err := s.builder.BuildContext(ctx)
	if err != nil {
		return SyncStat{}, fmt.Errorf("failed to build telemetry context: %w", err)
	}

	body, err := json.Marshal(syncBatch{
		ID:      "api.telemetry",
		Ver:     "3.0",
		Ets:     time.Now().UnixMilli(),
		Context: telemetryCtx,
		Events:  events,
	})
	if err != nil {
		return SyncStat{}, fmt.Errorf("failed to encode telemetry batch: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return SyncStat{}, fmt.Errorf("failed to create sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return SyncStat{}, fmt.Errorf("telemetry sync failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SyncStat{}, fmt.Errorf("telemetry sync failed: status %d", resp.StatusCode)
	}

	return SyncStat{
		SyncedEventCount: len(events),
		SyncedFileSize:   int64(len(body)),
	}, nil
}
