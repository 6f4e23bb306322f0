package pkgdb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

// MemoryAdapter is an in-memory Adapter used under OMG_TEST_MODE and by unit
// tests; it has no cgo/system dependency, so it is what the CLI falls back to
// whenever a real ALPM or dpkg handle can't be opened (§5: "Test mode ...
// disables ... daemon dialing so unit tests can exercise the in-process path
// deterministically").
type MemoryAdapter struct {
	mu       sync.Mutex
	local    map[string]Package // installed packages, keyed by Key()
	sync_    map[string]Package // sync-db packages, keyed by Key()
	modTime  int64
	txActive bool
}

// NewMemoryAdapter seeds an adapter from local and sync package snapshots.
func NewMemoryAdapter(local, sync []Package) *MemoryAdapter {
	a := &MemoryAdapter{
		local:   make(map[string]Package),
		sync_:   make(map[string]Package),
		modTime: time.Now().Unix(),
	}
	for _, p := range local {
		p.Installed = true
		a.local[p.Key()] = p
	}
	for _, p := range sync {
		a.sync_[p.Key()] = p
	}
	return a
}

func (a *MemoryAdapter) Search(ctx context.Context, query string, limit int) ([]Package, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	q := strings.ToLower(query)

	type scored struct {
		pkg   Package
		score int // 0=exact, 1=prefix, 2=substring
	}
	var matches []scored
	seen := map[string]bool{}

	for _, p := range a.sync_ {
		if seen[p.Name] {
			continue
		}
		name := strings.ToLower(p.Name)
		desc := strings.ToLower(p.Description)

		switch {
		case name == q:
			matches = append(matches, scored{p, 0})
			seen[p.Name] = true
		case strings.HasPrefix(name, q):
			matches = append(matches, scored{p, 1})
			seen[p.Name] = true
		case strings.Contains(name, q) || strings.Contains(desc, q):
			matches = append(matches, scored{p, 2})
			seen[p.Name] = true
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score < matches[j].score
		}
		if matches[i].pkg.DownloadCount != matches[j].pkg.DownloadCount {
			return matches[i].pkg.DownloadCount > matches[j].pkg.DownloadCount
		}
		return matches[i].pkg.Name < matches[j].pkg.Name
	})

	out := make([]Package, 0, limit)
	for i, m := range matches {
		if i >= limit {
			break
		}
		out = append(out, m.pkg)
	}
	return out, nil
}

func (a *MemoryAdapter) Info(ctx context.Context, name string) (Package, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, p := range a.sync_ {
		if p.Name == name {
			return p, true, nil
		}
	}
	return Package{}, false, nil
}

func (a *MemoryAdapter) LocalStatus(ctx context.Context) ([]Package, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Package, 0, len(a.local))
	for _, p := range a.local {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (a *MemoryAdapter) SyncVersion(ctx context.Context, name string) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, p := range a.sync_ {
		if p.Name == name {
			return p.Version, true, nil
		}
	}
	return "", false, nil
}

func (a *MemoryAdapter) PrepareTransaction(ctx context.Context, ops []TransactionOp, flags TransactionFlags) (*PreparedTransaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.txActive {
		return nil, omgerrors.TransactionBusy()
	}

	prepared := &PreparedTransaction{Ops: ops, Flags: flags}

	for _, op := range ops {
		switch op.Kind {
		case OpAdd:
			pkg, ok := a.sync_[a.syncKeyFor(op.Target)]
			if !ok {
				// allow local-file-path targets: synthesize a minimal
				// package record from the basename.
				pkg = Package{Name: op.Target, Repo: "local"}
			}
			prepared.ToInstall = append(prepared.ToInstall, pkg)
		case OpRemove:
			pkg, ok := a.local[a.localKeyFor(op.Target)]
			if !ok {
				return nil, omgerrors.PackageNotFound(op.Target)
			}
			if len(pkg.RequiredBy) > 0 && !flags.Recurse {
				return nil, omgerrors.DependencyConflict(
					pkg.Name + " is required by " + strings.Join(pkg.RequiredBy, ", "))
			}
			prepared.ToRemove = append(prepared.ToRemove, pkg)
		case OpSysUpgrade:
			for key, local := range a.local {
				if syncPkg, ok := a.sync_[key]; ok {
					if ParseVersion(syncPkg.Version).Compare(ParseVersion(local.Version)) > 0 {
						prepared.ToInstall = append(prepared.ToInstall, syncPkg)
					}
				}
			}
		}
	}

	a.txActive = true
	return prepared, nil
}

func (a *MemoryAdapter) syncKeyFor(name string) string {
	for key, p := range a.sync_ {
		if p.Name == name {
			return key
		}
	}
	return "sync/" + name
}

func (a *MemoryAdapter) localKeyFor(name string) string {
	for key, p := range a.local {
		if p.Name == name {
			return key
		}
	}
	return "local/" + name
}

func (a *MemoryAdapter) CommitTransaction(ctx context.Context, prepared *PreparedTransaction, progress chan<- ProgressEvent) error {
	defer close(progress)

	emit := func(phase Phase, name string, pct int) {
		select {
		case progress <- ProgressEvent{Phase: phase, PackageName: name, Percent: ClampPercent(pct), Timestamp: time.Now()}:
		case <-ctx.Done():
		}
	}

	for _, pkg := range prepared.ToInstall {
		emit(PhaseDownloadInit, pkg.Name, 0)
		emit(PhaseDownloadComplete, pkg.Name, 100)
		emit(PhaseIntegrity, pkg.Name, 100)

		a.mu.Lock()
		pkg.Installed = true
		a.local[pkg.Key()] = pkg
		a.mu.Unlock()

		emit(PhaseAdd, pkg.Name, 100)
	}

	for _, pkg := range prepared.ToRemove {
		a.mu.Lock()
		delete(a.local, pkg.Key())
		a.mu.Unlock()
		emit(PhaseRemove, pkg.Name, 100)
	}

	return nil
}

func (a *MemoryAdapter) ReleaseTransaction(prepared *PreparedTransaction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.txActive = false
}

func (a *MemoryAdapter) DBModTime(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.modTime, nil
}

func (a *MemoryAdapter) Close() error { return nil }

// Touch bumps the adapter's reported mod time, simulating an external sync
// (pacman -Sy) for cache-invalidation tests.
func (a *MemoryAdapter) Touch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.modTime = time.Now().UnixNano()
}
