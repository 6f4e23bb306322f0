package license

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueDropsOldestOnOverflow(t *testing.T) {
	q := NewEventQueue("", "")
	for i := 0; i < maxQueueLen+50; i++ {
		q.Enqueue(Event{Type: "cmd"})
	}
	assert.Equal(t, maxQueueLen-dropCount+50, q.Len())
}

func TestEnqueueNoOpWhenTelemetryDisabled(t *testing.T) {
	t.Setenv(telemetryOptOutEnv, "0")
	q := NewEventQueue("", "")
	q.Enqueue(Event{Type: "cmd"})
	assert.Equal(t, 0, q.Len())
}

func TestFlushPostsBatchAndClearsQueue(t *testing.T) {
	received := make(chan int, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- 1
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	q := NewEventQueue("", srv.URL)
	q.Enqueue(Event{Type: "cmd"})
	q.Enqueue(Event{Type: "cmd"})

	require.NoError(t, q.Flush(context.Background()))
	<-received
	assert.Equal(t, 0, q.Len())
}

func TestFlushRequeuesOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	q := NewEventQueue("", srv.URL)
	q.Enqueue(Event{Type: "cmd"})

	require.NoError(t, q.Flush(context.Background()))
	assert.Equal(t, 1, q.Len())
}

func TestFlushRequeuePreservesOrderAheadOfNewEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	q := NewEventQueue("", srv.URL)
	q.Enqueue(Event{Type: "first"})

	require.NoError(t, q.Flush(context.Background()))
	q.Enqueue(Event{Type: "second"})

	q.mu.Lock()
	defer q.mu.Unlock()
	require.Len(t, q.events, 2)
	assert.Equal(t, "first", q.events[0].Type)
	assert.Equal(t, "second", q.events[1].Type)
}

func TestMaybeFlushSkipsWhenBelowThresholds(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q := NewEventQueue("", srv.URL)
	q.lastFlush = time.Now()
	q.Enqueue(Event{Type: "cmd"})

	require.NoError(t, q.MaybeFlush(context.Background(), time.Now()))
	assert.False(t, called)
}

func TestMaybeFlushTriggersOnBatchSize(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q := NewEventQueue("", srv.URL)
	q.lastFlush = time.Now()
	for i := 0; i < flushBatchSize; i++ {
		q.Enqueue(Event{Type: "cmd"})
	}

	require.NoError(t, q.MaybeFlush(context.Background(), time.Now()))
	assert.True(t, called)
}

func TestSaveAndLoadEventQueueRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "event_queue.json")

	q := NewEventQueue(path, "")
	q.Enqueue(Event{Type: "cmd"})
	require.NoError(t, q.Save())

	loaded, err := LoadEventQueue(path, "")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
}

func TestLoadEventQueueMissingFileReturnsEmpty(t *testing.T) {
	q, err := LoadEventQueue(filepath.Join(t.TempDir(), "missing.json"), "")
	require.NoError(t, err)
	assert.Equal(t, 0, q.Len())
}
