package engine

import (
	"context"
	"errors"
	"sort"

	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
	"github.com/PyRo1121/omg-sub002/pkg/logging"
)

// ErrWorkerClosed is returned when a request is submitted after Close.
var ErrWorkerClosed = errors.New("engine: worker closed")

// Engine is the public async façade §4.1 describes: search/info/status/
// list_updates/execute_transaction, all funneled through a single Worker.
type Engine struct {
	worker *Worker
	log    *logging.Logger
}

// New wires an Engine on top of adapter, starting its worker goroutine.
func New(adapter pkgdb.Adapter, log *logging.Logger) *Engine {
	return &Engine{worker: New(adapter, log), log: log}
}

// Close stops the worker and releases the underlying adapter.
func (e *Engine) Close() error { return e.worker.Close() }

// Search performs the ordered substring search (§4.1 search()). An empty
// result is not an error; only adapter/database failures are.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]pkgdb.Package, error) {
	var results []pkgdb.Package
	var opErr error

	err := e.worker.submit(ctx, func(ctx context.Context, a pkgdb.Adapter) {
		results, opErr = a.Search(ctx, query, limit)
	})
	if err != nil {
		return nil, errWorkerAsEngineError(err)
	}
	return results, opErr
}

// Info returns the first sync-DB hit for name (§4.1 info()).
func (e *Engine) Info(ctx context.Context, name string) (pkgdb.Package, bool, error) {
	var pkg pkgdb.Package
	var found bool
	var opErr error

	err := e.worker.submit(ctx, func(ctx context.Context, a pkgdb.Adapter) {
		pkg, found, opErr = a.Info(ctx, name)
	})
	if err != nil {
		return pkgdb.Package{}, false, errWorkerAsEngineError(err)
	}
	return pkg, found, opErr
}

// Status computes (total, explicit, orphans, updates) in a single local-DB
// pass (§4.1 status()).
func (e *Engine) Status(ctx context.Context) (pkgdb.Status, error) {
	var status pkgdb.Status
	var opErr error

	err := e.worker.submit(ctx, func(ctx context.Context, a pkgdb.Adapter) {
		local, err := a.LocalStatus(ctx)
		if err != nil {
			opErr = err
			return
		}
		status, opErr = computeStatus(ctx, a, local)
	})
	if err != nil {
		return pkgdb.Status{}, errWorkerAsEngineError(err)
	}
	return status, opErr
}

// ListUpdates returns every installed package with a strictly newer sync-DB
// version (§4.1 list_updates()), sharing the single-pass scan status() uses.
func (e *Engine) ListUpdates(ctx context.Context) ([]pkgdb.UpdateEntry, error) {
	var entries []pkgdb.UpdateEntry
	var opErr error

	err := e.worker.submit(ctx, func(ctx context.Context, a pkgdb.Adapter) {
		local, err := a.LocalStatus(ctx)
		if err != nil {
			opErr = err
			return
		}
		entries, opErr = computeUpdates(ctx, a, local)
	})
	if err != nil {
		return nil, errWorkerAsEngineError(err)
	}
	return entries, opErr
}

func computeStatus(ctx context.Context, a pkgdb.Adapter, local []pkgdb.Package) (pkgdb.Status, error) {
	status := pkgdb.Status{Total: len(local)}

	for _, p := range local {
		if p.Reason == pkgdb.ReasonExplicit {
			status.Explicit++
		} else if len(p.RequiredBy) == 0 && len(p.OptionalFor) == 0 {
			status.Orphans++
		}

		syncVer, ok, err := a.SyncVersion(ctx, p.Name)
		if err != nil {
			return pkgdb.Status{}, err
		}
		if ok && pkgdb.ParseVersion(syncVer).Compare(pkgdb.ParseVersion(p.Version)) > 0 {
			status.Updates++
		}
	}

	return status, nil
}

func computeUpdates(ctx context.Context, a pkgdb.Adapter, local []pkgdb.Package) ([]pkgdb.UpdateEntry, error) {
	var entries []pkgdb.UpdateEntry

	for _, p := range local {
		syncVer, ok, err := a.SyncVersion(ctx, p.Name)
		if err != nil {
			return nil, err
		}
		if ok && pkgdb.ParseVersion(syncVer).Compare(pkgdb.ParseVersion(p.Version)) > 0 {
			entries = append(entries, pkgdb.UpdateEntry{Name: p.Name, OldVersion: p.Version, NewVersion: syncVer})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// LocalPackages returns every installed package, the data the daemon's
// SecurityAudit request (§4.2) scans.
func (e *Engine) LocalPackages(ctx context.Context) ([]pkgdb.Package, error) {
	var local []pkgdb.Package
	var opErr error

	err := e.worker.submit(ctx, func(ctx context.Context, a pkgdb.Adapter) {
		local, opErr = a.LocalStatus(ctx)
	})
	if err != nil {
		return nil, errWorkerAsEngineError(err)
	}
	return local, opErr
}

// DBModTime returns the native database's modification time, routed
// through the worker like every other adapter access (§5: "all native
// package-DB access is funnelled through the single worker thread").
// The daemon's ResultCache polls this to invalidate stale entries
// (§4.2).
func (e *Engine) DBModTime(ctx context.Context) (int64, error) {
	var modTime int64
	var opErr error

	err := e.worker.submit(ctx, func(ctx context.Context, a pkgdb.Adapter) {
		modTime, opErr = a.DBModTime(ctx)
	})
	if err != nil {
		return 0, errWorkerAsEngineError(err)
	}
	return modTime, opErr
}

// Explicit returns the names of explicitly-installed packages, the data
// behind the daemon's Explicit/ExplicitCount requests (§4.2).
func (e *Engine) Explicit(ctx context.Context) ([]string, error) {
	var names []string
	var opErr error

	err := e.worker.submit(ctx, func(ctx context.Context, a pkgdb.Adapter) {
		local, err := a.LocalStatus(ctx)
		if err != nil {
			opErr = err
			return
		}
		for _, p := range local {
			if p.Reason == pkgdb.ReasonExplicit {
				names = append(names, p.Name)
			}
		}
		sort.Strings(names)
	})
	if err != nil {
		return nil, errWorkerAsEngineError(err)
	}
	return names, opErr
}

// ExecuteTransaction drives the six-phase lifecycle (§4.1 execute_
// transaction()) to completion, publishing progress events on progress.
// verify, when non-nil, is invoked between Prepared and Verified to run
// PGP/policy checks (§4.3) before anything is committed.
func (e *Engine) ExecuteTransaction(ctx context.Context, ops []pkgdb.TransactionOp, flags pkgdb.TransactionFlags, verify VerifyFunc, progress chan<- pkgdb.ProgressEvent) error {
	var opErr error

	err := e.worker.submit(ctx, func(ctx context.Context, a pkgdb.Adapter) {
		opErr = runTransaction(ctx, a, ops, flags, verify, progress)
	})
	if err != nil {
		close(progress)
		return errWorkerAsEngineError(err)
	}
	return opErr
}

// errWorkerAsEngineError maps a plain context/queue error into the §7
// taxonomy so callers only ever see omgerrors.Error values.
func errWorkerAsEngineError(err error) error {
	if err == nil {
		return nil
	}
	if err == ErrWorkerClosed {
		return omgerrors.Internal("engine worker is shut down", err)
	}
	return err
}
