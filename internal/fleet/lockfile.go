// Package fleet implements the team/fleet collaboration tooling named in
// §1 ("lock files, drift detection, Git hooks"): a reproducible lock
// file derived from the installed package set, drift detection against
// a previously-committed lock file, and a pre-commit hook installer.
package fleet

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"sort"

	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

// LockEntry pins one package to an exact version, repo, and content hash.
type LockEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Repo    string `json:"repo"`
	Hash    string `json:"hash"`
}

// LockFile is the committed, reproducible package manifest (§1).
type LockFile struct {
	Version  int         `json:"version"`
	Packages []LockEntry `json:"packages"`
}

const lockFileVersion = 1

func entryHash(name, version, repo string) string {
	sum := sha256.Sum256([]byte(name + "@" + version + "@" + repo))
	return hex.EncodeToString(sum[:])
}

// Generate builds a LockFile from the currently-installed package set,
// sorted by name for a stable, diff-friendly on-disk representation.
func Generate(packages []pkgdb.Package) LockFile {
	entries := make([]LockEntry, 0, len(packages))
	for _, p := range packages {
		entries = append(entries, LockEntry{
			Name:    p.Name,
			Version: p.Version,
			Repo:    p.Repo,
			Hash:    entryHash(p.Name, p.Version, p.Repo),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return LockFile{Version: lockFileVersion, Packages: entries}
}

// DriftKind classifies one difference between a lock file and the
// currently-installed set.
type DriftKind string

const (
	DriftMissing  DriftKind = "missing"  // locked but not installed
	DriftExtra    DriftKind = "extra"    // installed but not locked
	DriftVersion  DriftKind = "version"  // installed at a different version
)

// DriftEntry is one deviation surfaced by Diff.
type DriftEntry struct {
	Kind     DriftKind `json:"kind"`
	Name     string    `json:"name"`
	Locked   string    `json:"locked,omitempty"`
	Actual   string    `json:"actual,omitempty"`
}

// Diff compares lock against the currently-installed package set and
// returns every deviation, sorted by package name for deterministic
// output.
func Diff(lock LockFile, installed []pkgdb.Package) []DriftEntry {
	locked := make(map[string]LockEntry, len(lock.Packages))
	for _, e := range lock.Packages {
		locked[e.Name] = e
	}

	actual := make(map[string]pkgdb.Package, len(installed))
	for _, p := range installed {
		actual[p.Name] = p
	}

	var drift []DriftEntry
	for name, e := range locked {
		p, ok := actual[name]
		if !ok {
			drift = append(drift, DriftEntry{Kind: DriftMissing, Name: name, Locked: e.Version})
			continue
		}
		if p.Version != e.Version {
			drift = append(drift, DriftEntry{Kind: DriftVersion, Name: name, Locked: e.Version, Actual: p.Version})
		}
	}
	for name, p := range actual {
		if _, ok := locked[name]; !ok {
			drift = append(drift, DriftEntry{Kind: DriftExtra, Name: name, Actual: p.Version})
		}
	}

	sort.Slice(drift, func(i, j int) bool { return drift[i].Name < drift[j].Name })
	return drift
}

// Save persists lock to path atomically.
func Save(path string, lock LockFile) error {
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return omgerrors.Internal("failed to marshal lock file", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return omgerrors.Internal("failed to write lock file", err)
	}
	return os.Rename(tmp, path)
}

// Load reads a previously-generated LockFile.
func Load(path string) (LockFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LockFile{}, omgerrors.FileNotFound(path, err)
	}
	var lock LockFile
	if err := json.Unmarshal(data, &lock); err != nil {
		return LockFile{}, omgerrors.InvalidJSON(path, err)
	}
	return lock, nil
}
