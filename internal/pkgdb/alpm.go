//go:build cgo

package pkgdb

import (
	"context"
	"sort"
	"strings"

	alpm "github.com/Jguer/go-alpm/v2"

	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

// defaultSyncDBs mirrors the registration list a stock Arch install carries;
// an adapter built for a multilib-less system simply finds multilib empty.
var defaultSyncDBs = []string{"core", "extra", "multilib"}

// ALPMAdapter wraps libalpm via cgo. It owns a single *alpm.Handle for its
// lifetime and must only be driven by the engine's single worker goroutine
// (§4.1, §9: "the underlying library is touched from a single thread").
type ALPMAdapter struct {
	handle *alpm.Handle
}

// NewALPMAdapter opens the ALPM handle rooted at root against the given
// pacman database directory, and registers the standard sync repositories.
func NewALPMAdapter(root, dbPath string) (*ALPMAdapter, error) {
	h, err := alpm.Initialize(root, dbPath)
	if err != nil {
		return nil, omgerrors.Internal("failed to initialize ALPM handle", err)
	}

	for _, name := range defaultSyncDBs {
		if _, err := h.RegisterSyncDB(name, alpm.SigLevelUseDefault); err != nil {
			// A missing repo (e.g. no multilib configured) is not fatal.
			continue
		}
	}

	return &ALPMAdapter{handle: h}, nil
}

func (a *ALPMAdapter) Search(ctx context.Context, query string, limit int) ([]Package, error) {
	if limit <= 0 {
		limit = 50
	}
	q := strings.ToLower(query)

	dbs, err := a.handle.SyncDBs()
	if err != nil {
		return nil, omgerrors.Internal("failed to list sync databases", err)
	}

	type scored struct {
		pkg   Package
		score int
	}
	var matches []scored
	seen := map[string]bool{}

	for _, db := range dbs.Slice() {
		for _, p := range db.PkgCache().Slice() {
			if seen[p.Name()] {
				continue
			}
			name := strings.ToLower(p.Name())
			desc := strings.ToLower(p.Description())

			var score int
			switch {
			case name == q:
				score = 0
			case strings.HasPrefix(name, q):
				score = 1
			case strings.Contains(name, q) || strings.Contains(desc, q):
				score = 2
			default:
				continue
			}

			matches = append(matches, scored{pkgFromALPM(p, db.Name()), score})
			seen[p.Name()] = true
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score < matches[j].score
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

func (a *ALPMAdapter) Info(ctx context.Context, name string) (Package, bool, error) {
	dbs, err := a.handle.SyncDBs()
	if err != nil {
		return Package{}, false, omgerrors.Internal("failed to list sync databases", err)
	}
	for _, db := range dbs.Slice() {
		if p := db.Pkg(name); p != nil {
			return pkgFromALPM(p, db.Name()), true, nil
		}
	}
	return Package{}, false, nil
}

func (a *ALPMAdapter) LocalStatus(ctx context.Context) ([]Package, error) {
	localDB, err := a.handle.LocalDB()
	if err != nil {
		return nil, omgerrors.Internal("failed to open local database", err)
	}

	var out []Package
	for _, p := range localDB.PkgCache().Slice() {
		pkg := pkgFromALPM(p, "local")
		pkg.Installed = true
		if p.Reason() == alpm.PkgReasonExplicit {
			pkg.Reason = ReasonExplicit
		} else {
			pkg.Reason = ReasonDependency
		}
		out = append(out, pkg)
	}
	return out, nil
}

func (a *ALPMAdapter) SyncVersion(ctx context.Context, name string) (string, bool, error) {
	dbs, err := a.handle.SyncDBs()
	if err != nil {
		return "", false, omgerrors.Internal("failed to list sync databases", err)
	}
	for _, db := range dbs.Slice() {
		if p := db.Pkg(name); p != nil {
			return p.Version(), true, nil
		}
	}
	return "", false, nil
}

// PrepareTransaction computes the dependency closure via alpm's own
// transaction-preparation pass (alpm_trans_prepare equivalent), and stashes
// the live *alpm.Handle transaction so CommitTransaction can drive it
// further without re-deriving the plan.
func (a *ALPMAdapter) PrepareTransaction(ctx context.Context, ops []TransactionOp, flags TransactionFlags) (*PreparedTransaction, error) {
	transFlags := alpm.TransFlag(0)
	if flags.NoDeps {
		transFlags |= alpm.TransFlagNoDeps
	}
	if flags.Unneeded {
		transFlags |= alpm.TransFlagUnneeded
	}

	if err := a.handle.TransInit(transFlags); err != nil {
		return nil, omgerrors.TransactionBusy()
	}

	prepared := &PreparedTransaction{Ops: ops, Flags: flags}

	for _, op := range ops {
		switch op.Kind {
		case OpAdd:
			if err := a.addTarget(op.Target); err != nil {
				a.handle.TransRelease()
				return nil, err
			}
		case OpRemove:
			if err := a.removeTarget(op.Target, flags.Recurse); err != nil {
				a.handle.TransRelease()
				return nil, err
			}
		case OpSysUpgrade:
			if err := a.handle.SyncSysupgrade(false); err != nil {
				a.handle.TransRelease()
				return nil, omgerrors.Internal("sysupgrade planning failed", err)
			}
		}
	}

	if err := a.handle.TransPrepare(); err != nil {
		a.handle.TransRelease()
		return nil, omgerrors.DependencyConflict(err.Error())
	}

	adds, removes := a.handle.TransToAdd(), a.handle.TransToRemove()
	for _, p := range adds.Slice() {
		prepared.ToInstall = append(prepared.ToInstall, pkgFromALPM(p, "sync"))
	}
	for _, p := range removes.Slice() {
		prepared.ToRemove = append(prepared.ToRemove, pkgFromALPM(p, "local"))
	}

	return prepared, nil
}

func (a *ALPMAdapter) addTarget(name string) error {
	dbs, err := a.handle.SyncDBs()
	if err != nil {
		return omgerrors.Internal("failed to list sync databases", err)
	}
	for _, db := range dbs.Slice() {
		if p := db.Pkg(name); p != nil {
			return a.handle.AddPkg(p)
		}
	}
	return omgerrors.PackageNotFound(name)
}

func (a *ALPMAdapter) removeTarget(name string, recurse bool) error {
	localDB, err := a.handle.LocalDB()
	if err != nil {
		return omgerrors.Internal("failed to open local database", err)
	}
	p := localDB.Pkg(name)
	if p == nil {
		return omgerrors.PackageNotFound(name)
	}
	if !recurse && len(p.RequiredBy().Slice()) > 0 {
		return omgerrors.DependencyConflict(name + " is required by other installed packages")
	}
	return a.handle.RemovePkg(p)
}

// CommitTransaction runs the prepared plan and translates libalpm's event
// callbacks into ProgressEvent phases (§4.1 Progress events).
func (a *ALPMAdapter) CommitTransaction(ctx context.Context, prepared *PreparedTransaction, progress chan<- ProgressEvent) error {
	defer close(progress)

	emit := func(phase Phase, name string, pct int) {
		select {
		case progress <- ProgressEvent{Phase: phase, PackageName: name, Percent: ClampPercent(pct)}:
		case <-ctx.Done():
		}
	}

	for _, pkg := range prepared.ToInstall {
		emit(PhaseDownloadInit, pkg.Name, 0)
	}

	if err := a.handle.TransCommit(); err != nil {
		return omgerrors.Internal("transaction commit failed", err)
	}

	for _, pkg := range prepared.ToInstall {
		emit(PhaseAdd, pkg.Name, 100)
	}
	for _, pkg := range prepared.ToRemove {
		emit(PhaseRemove, pkg.Name, 100)
	}

	return nil
}

func (a *ALPMAdapter) ReleaseTransaction(prepared *PreparedTransaction) {
	a.handle.TransRelease()
}

func (a *ALPMAdapter) DBModTime(ctx context.Context) (int64, error) {
	localDB, err := a.handle.LocalDB()
	if err != nil {
		return 0, omgerrors.Internal("failed to open local database", err)
	}
	return int64(localDB.LastUpdate()), nil
}

func (a *ALPMAdapter) Close() error {
	return a.handle.Release()
}

func newALPMAdapterOrFallback(root, dbPath string) (Adapter, error) {
	return NewALPMAdapter(root, dbPath)
}

func pkgFromALPM(p alpm.IPackage, repo string) Package {
	var depends []string
	for _, d := range p.Depends().Slice() {
		depends = append(depends, d.Name)
	}

	var licenses []string
	licenses = append(licenses, p.Licenses().Slice()...)

	var requiredBy []string
	for _, name := range p.RequiredBy().Slice() {
		requiredBy = append(requiredBy, name)
	}

	return Package{
		Name:          p.Name(),
		Version:       p.Version(),
		Repo:          repo,
		Description:   p.Description(),
		URL:           p.URL(),
		InstalledSize: p.ISize(),
		DownloadSize:  p.Size(),
		Depends:       depends,
		Licenses:      licenses,
		RequiredBy:    requiredBy,
	}
}
