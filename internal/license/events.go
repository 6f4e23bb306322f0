package license

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

// maxQueueLen triggers a drop-oldest-500 prune (§4.4: "length > 1000 drops
// the oldest 500").
const maxQueueLen = 1000
const dropCount = 500

// flushIntervalSeconds and flushBatchSize are the opportunistic-flush
// triggers (§4.4): now-last_flush > 60s, or queue size ≥ 50.
const flushIntervalSeconds = 60
const flushBatchSize = 50

// telemetryOptOutEnv disables all flushing when set to "0" (§4.4).
const telemetryOptOutEnv = "OMG_TELEMETRY"

// Event is one queued telemetry record.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// EventQueue is a bounded FIFO with drop-oldest overflow and opportunistic
// batch flushing to a telemetry endpoint (§4.4, §6: event_queue.json).
type EventQueue struct {
	mu        sync.Mutex
	path      string
	endpoint  string
	client    *http.Client
	events    []Event
	lastFlush time.Time
}

// NewEventQueue wires a queue against a persistence path and a telemetry
// POST endpoint.
func NewEventQueue(path, endpoint string) *EventQueue {
	return &EventQueue{
		path:     path,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func telemetryDisabled() bool {
	return os.Getenv(telemetryOptOutEnv) == "0"
}

// Enqueue appends an event, pruning the oldest dropCount entries once the
// queue exceeds maxQueueLen.
func (q *EventQueue) Enqueue(e Event) {
	if telemetryDisabled() {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = append(q.events, e)
	if len(q.events) > maxQueueLen {
		q.events = append([]Event(nil), q.events[dropCount:]...)
	}
}

// MaybeFlush flushes when the opportunistic triggers fire: queue age past
// flushIntervalSeconds since the last flush, or queue size at or above
// flushBatchSize (§4.4 maybe_flush).
func (q *EventQueue) MaybeFlush(ctx context.Context, now time.Time) error {
	if telemetryDisabled() {
		return nil
	}

	q.mu.Lock()
	due := now.Sub(q.lastFlush) > flushIntervalSeconds*time.Second
	size := len(q.events)
	q.mu.Unlock()

	if !due && size < flushBatchSize {
		return nil
	}
	return q.Flush(ctx)
}

// Flush drains the queue and POSTs a JSON batch. On a non-2xx response or
// transport error, the drained events are re-enqueued ahead of anything
// queued meanwhile, preserving FIFO order and the drop-oldest invariant.
func (q *EventQueue) Flush(ctx context.Context) error {
	if telemetryDisabled() {
		return nil
	}

	q.mu.Lock()
	batch := q.events
	q.events = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		q.mu.Lock()
		q.lastFlush = time.Now()
		q.mu.Unlock()
		return nil
	}

	body, err := json.Marshal(batch)
	if err != nil {
		q.requeue(batch)
		return omgerrors.Internal("failed to marshal event batch", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.endpoint, bytes.NewReader(body))
	if err != nil {
		q.requeue(batch)
		return omgerrors.Internal("failed to build telemetry request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		q.requeue(batch)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		q.requeue(batch)
		return nil
	}

	q.mu.Lock()
	q.lastFlush = time.Now()
	q.mu.Unlock()
	return nil
}

// requeue prepends a drained batch back onto the front of the queue and
// re-applies the drop-oldest-500 invariant if the merge overflows.
func (q *EventQueue) requeue(batch []Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	merged := append(append([]Event(nil), batch...), q.events...)
	if len(merged) > maxQueueLen {
		merged = merged[dropCount:]
	}
	q.events = merged
}

// Len reports the current queue size.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Save persists the queue atomically (§6: event_queue.json).
func (q *EventQueue) Save() error {
	q.mu.Lock()
	events := append([]Event(nil), q.events...)
	path := q.path
	q.mu.Unlock()

	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return omgerrors.Internal("failed to marshal event queue", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return omgerrors.Internal("failed to write event queue", err)
	}
	return os.Rename(tmp, path)
}

// LoadEventQueue restores a previously-persisted queue, or an empty one if
// absent.
func LoadEventQueue(path, endpoint string) (*EventQueue, error) {
	q := NewEventQueue(path, endpoint)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return q, nil
	}
	if err != nil {
		return nil, omgerrors.Internal("failed to read event queue", err)
	}

	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, omgerrors.InvalidJSON(path, err)
	}
	q.events = events
	return q, nil
}
