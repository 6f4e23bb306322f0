// Package engine implements the Package Engine (§4.1): a single worker
// goroutine that owns a pkgdb.Adapter for the lifetime of the process, and
// an async façade the daemon and the in-process CLI fallback both call
// through identically (§4.2: "Contracts ... are identical").
package engine

import (
	"context"

	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	"github.com/PyRo1121/omg-sub002/pkg/logging"
)

// job is one unit of work sent to the worker goroutine. Exactly one job
// runs at a time, in submission order, because the adapter underneath is
// not reentrant (§4.1, §9).
type job struct {
	run  func(ctx context.Context, a pkgdb.Adapter)
	done chan struct{}
}

// Worker owns the Adapter handle and drains a job queue on a single
// goroutine. Initialization cost (≈50-100ms for a real ALPM handle) is
// paid once, at New, and amortized across the process lifetime.
type Worker struct {
	adapter pkgdb.Adapter
	jobs    chan job
	log     *logging.Logger
	closed  chan struct{}
}

// New starts the worker goroutine against adapter. The caller retains
// ownership of adapter's lifetime via Close.
func New(adapter pkgdb.Adapter, log *logging.Logger) *Worker {
	w := &Worker{
		adapter: adapter,
		jobs:    make(chan job, 64),
		log:     log,
		closed:  make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer close(w.closed)
	for j := range w.jobs {
		j.run(context.Background(), w.adapter)
		close(j.done)
	}
}

// submit enqueues fn and blocks the caller's goroutine (not the worker's)
// until it has run, honoring ctx cancellation while waiting in queue.
func (w *Worker) submit(ctx context.Context, fn func(ctx context.Context, a pkgdb.Adapter)) error {
	j := job{run: fn, done: make(chan struct{})}

	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.closed:
		return ErrWorkerClosed
	}

	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new jobs, drains what's queued, and releases the
// adapter. It is safe to call exactly once.
func (w *Worker) Close() error {
	close(w.jobs)
	<-w.closed
	return w.adapter.Close()
}
