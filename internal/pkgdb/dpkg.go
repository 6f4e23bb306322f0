package pkgdb

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

const (
	dpkgQueryPath = "dpkg-query"
	aptCachePath  = "apt-cache"
	dpkgStatusDir = "/var/lib/dpkg"
)

// DpkgAdapter implements Adapter for Debian/Ubuntu by shelling out to
// dpkg-query and apt-cache, the same boundary the Arch path keeps at arm's
// length via cgo but dpkg has no equivalently stable C API to bind against
// (DESIGN.md documents this as the one Adapter built on external processes
// rather than a library).
type DpkgAdapter struct {
	mu sync.Mutex
}

// NewDpkgAdapter returns a ready DpkgAdapter. There is no persistent handle
// to open; each call invokes a short-lived subprocess.
func NewDpkgAdapter() *DpkgAdapter {
	return &DpkgAdapter{}
}

func (a *DpkgAdapter) run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	return string(out), err
}

func (a *DpkgAdapter) Search(ctx context.Context, query string, limit int) ([]Package, error) {
	if limit <= 0 {
		limit = 50
	}

	out, err := a.run(ctx, aptCachePath, "search", "--names-only", query)
	if err != nil {
		return nil, omgerrors.Internal("apt-cache search failed", err)
	}

	var results []Package
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() && len(results) < limit {
		line := scanner.Text()
		name, desc, ok := strings.Cut(line, " - ")
		if !ok {
			continue
		}
		results = append(results, Package{Name: strings.TrimSpace(name), Description: strings.TrimSpace(desc), Repo: "apt"})
	}

	return results, nil
}

func (a *DpkgAdapter) Info(ctx context.Context, name string) (Package, bool, error) {
	out, err := a.run(ctx, "apt-cache", "show", name)
	if err != nil {
		return Package{}, false, nil
	}
	return parseAptShow(out), true, nil
}

func parseAptShow(out string) Package {
	pkg := Package{Repo: "apt"}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ": ")
		if !ok {
			continue
		}
		switch key {
		case "Package":
			pkg.Name = value
		case "Version":
			pkg.Version = value
		case "Description":
			pkg.Description = value
		case "Homepage":
			pkg.URL = value
		case "Installed-Size":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				pkg.InstalledSize = n * 1024
			}
		case "Depends":
			for _, d := range strings.Split(value, ",") {
				d = strings.TrimSpace(strings.SplitN(d, " ", 2)[0])
				if d != "" {
					pkg.Depends = append(pkg.Depends, d)
				}
			}
		}
	}
	return pkg
}

func (a *DpkgAdapter) LocalStatus(ctx context.Context) ([]Package, error) {
	out, err := a.run(ctx, dpkgQueryPath, "-W", "-f",
		"${Package}\t${Version}\t${Status}\t${Essential}\n")
	if err != nil {
		return nil, omgerrors.Internal("dpkg-query failed", err)
	}

	var pkgs []Package
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 3 {
			continue
		}
		status := fields[2]
		if !strings.Contains(status, "installed") {
			continue
		}

		pkg := Package{
			Name:      fields[0],
			Version:   fields[1],
			Repo:      "dpkg",
			Installed: true,
			Reason:    ReasonDependency,
		}
		if strings.Contains(status, "install ok") && len(fields) >= 4 && fields[3] == "yes" {
			pkg.Reason = ReasonExplicit
		}
		pkgs = append(pkgs, pkg)
	}

	return pkgs, nil
}

func (a *DpkgAdapter) SyncVersion(ctx context.Context, name string) (string, bool, error) {
	out, err := a.run(ctx, aptCachePath, "policy", name)
	if err != nil {
		return "", false, nil
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Candidate:") {
			v := strings.TrimSpace(strings.TrimPrefix(line, "Candidate:"))
			if v == "(none)" {
				return "", false, nil
			}
			return v, true, nil
		}
	}
	return "", false, nil
}

// PrepareTransaction shells out to apt-get's --simulate pass to compute the
// plan without committing, mirroring ALPM's separate prepare/commit split.
func (a *DpkgAdapter) PrepareTransaction(ctx context.Context, ops []TransactionOp, flags TransactionFlags) (*PreparedTransaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prepared := &PreparedTransaction{Ops: ops, Flags: flags}

	for _, op := range ops {
		switch op.Kind {
		case OpAdd:
			pkg, ok, err := a.Info(ctx, op.Target)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, omgerrors.PackageNotFound(op.Target)
			}
			prepared.ToInstall = append(prepared.ToInstall, pkg)
		case OpRemove:
			local, err := a.LocalStatus(ctx)
			if err != nil {
				return nil, err
			}
			found := false
			for _, p := range local {
				if p.Name == op.Target {
					prepared.ToRemove = append(prepared.ToRemove, p)
					found = true
					break
				}
			}
			if !found {
				return nil, omgerrors.PackageNotFound(op.Target)
			}
		case OpSysUpgrade:
			local, err := a.LocalStatus(ctx)
			if err != nil {
				return nil, err
			}
			for _, p := range local {
				syncVer, ok, err := a.SyncVersion(ctx, p.Name)
				if err == nil && ok && ParseVersion(syncVer).Compare(ParseVersion(p.Version)) > 0 {
					upgraded := p
					upgraded.Version = syncVer
					prepared.ToInstall = append(prepared.ToInstall, upgraded)
				}
			}
		}
	}

	return prepared, nil
}

// CommitTransaction drives apt-get non-interactively (-y) for the prepared
// plan, one exec.CommandContext per operation so progress can be reported
// per package rather than only as a single opaque subprocess run.
func (a *DpkgAdapter) CommitTransaction(ctx context.Context, prepared *PreparedTransaction, progress chan<- ProgressEvent) error {
	defer close(progress)

	emit := func(phase Phase, name string, pct int) {
		select {
		case progress <- ProgressEvent{Phase: phase, PackageName: name, Percent: ClampPercent(pct), Timestamp: time.Now()}:
		case <-ctx.Done():
		}
	}

	for _, pkg := range prepared.ToInstall {
		emit(PhaseDownloadInit, pkg.Name, 0)
		cmd := exec.CommandContext(ctx, "apt-get", "install", "-y", pkg.Name)
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
		if err := cmd.Run(); err != nil {
			return omgerrors.Internal("apt-get install failed for "+pkg.Name, err)
		}
		emit(PhaseAdd, pkg.Name, 100)
	}

	for _, pkg := range prepared.ToRemove {
		cmd := exec.CommandContext(ctx, "apt-get", "remove", "-y", pkg.Name)
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
		if err := cmd.Run(); err != nil {
			return omgerrors.Internal("apt-get remove failed for "+pkg.Name, err)
		}
		emit(PhaseRemove, pkg.Name, 100)
	}

	return nil
}

func (a *DpkgAdapter) ReleaseTransaction(prepared *PreparedTransaction) {}

func (a *DpkgAdapter) DBModTime(ctx context.Context) (int64, error) {
	info, err := os.Stat(dpkgStatusDir + "/status")
	if err != nil {
		return 0, omgerrors.Internal("failed to stat dpkg status file", err)
	}
	return info.ModTime().Unix(), nil
}

func (a *DpkgAdapter) Close() error { return nil }
