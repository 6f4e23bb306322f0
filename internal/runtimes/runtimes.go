// Package runtimes implements the polyglot runtime version-switching
// façade (§1: "Node, Python, Go, Rust, Bun, Ruby, Java"). It is
// deliberately thin: a version lister, an active-version setter that
// writes a per-shell env shim, and a current-version query — adjacent
// to, not part of, the package manager's hard core.
package runtimes

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

// Language is one of the supported polyglot runtimes.
type Language string

const (
	Node   Language = "node"
	Python Language = "python"
	Go     Language = "go"
	Rust   Language = "rust"
	Bun    Language = "bun"
	Ruby   Language = "ruby"
	Java   Language = "java"
)

// SupportedLanguages enumerates every runtime this façade manages.
var SupportedLanguages = []Language{Node, Python, Go, Rust, Bun, Ruby, Java}

func isSupported(lang Language) bool {
	for _, l := range SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

// Version is one installed version of a given runtime.
type Version struct {
	Language Language `json:"language"`
	Value    string   `json:"version"`
	Path     string   `json:"path"`
}

// Manager roots every runtime's installed-version directories under a
// single versionsDir (e.g. $OMG_DATA_DIR/runtimes) and writes the
// active-version shim file alongside it.
type Manager struct {
	versionsDir string
}

// NewManager wires a Manager against the runtime installation root.
func NewManager(versionsDir string) *Manager {
	return &Manager{versionsDir: versionsDir}
}

func (m *Manager) langDir(lang Language) string {
	return filepath.Join(m.versionsDir, string(lang))
}

func (m *Manager) shimPath(lang Language) string {
	return filepath.Join(m.versionsDir, string(lang)+".current")
}

// List returns every installed version of lang, found as immediate
// subdirectories of its version directory, sorted lexicographically
// (callers needing semver ordering can re-sort with pkgdb.CompareVersions
// on the Value field).
func (m *Manager) List(lang Language) ([]Version, error) {
	if !isSupported(lang) {
		return nil, omgerrors.InvalidVersion(string(lang), nil).WithDetails("reason", "unsupported runtime")
	}

	dir := m.langDir(lang)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, omgerrors.Internal("failed to list runtime versions", err)
	}

	var versions []Version
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		versions = append(versions, Version{
			Language: lang,
			Value:    e.Name(),
			Path:     filepath.Join(dir, e.Name()),
		})
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Value < versions[j].Value })
	return versions, nil
}

// Use marks version as the active one for lang by writing a per-shell
// env shim file (a single `export PATH=...` line) that a shell rc file
// sources. It fails if the version is not installed.
func (m *Manager) Use(lang Language, version string) error {
	if !isSupported(lang) {
		return omgerrors.InvalidVersion(string(lang), nil).WithDetails("reason", "unsupported runtime")
	}

	versionDir := filepath.Join(m.langDir(lang), version)
	info, err := os.Stat(versionDir)
	if err != nil || !info.IsDir() {
		return omgerrors.EntryNotFound(fmt.Sprintf("runtime %s version %s", lang, version))
	}

	if err := os.MkdirAll(m.versionsDir, 0o755); err != nil {
		return omgerrors.Internal("failed to create runtime directory", err)
	}

	binDir := filepath.Join(versionDir, "bin")
	shim := fmt.Sprintf("export PATH=%q:\"$PATH\"\nexport OMG_%s_VERSION=%q\n",
		binDir, strings.ToUpper(string(lang)), version)

	tmp := m.shimPath(lang) + ".tmp"
	if err := os.WriteFile(tmp, []byte(shim), 0o644); err != nil {
		return omgerrors.Internal("failed to write runtime shim", err)
	}
	if err := os.Rename(tmp, m.shimPath(lang)); err != nil {
		return omgerrors.Internal("failed to persist runtime shim", err)
	}
	return nil
}

// Current returns the active version for lang, or nil if none has been
// selected via Use.
func (m *Manager) Current(lang Language) (*Version, error) {
	if !isSupported(lang) {
		return nil, omgerrors.InvalidVersion(string(lang), nil).WithDetails("reason", "unsupported runtime")
	}

	data, err := os.ReadFile(m.shimPath(lang))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, omgerrors.Internal("failed to read runtime shim", err)
	}

	envVar := fmt.Sprintf("OMG_%s_VERSION=", strings.ToUpper(string(lang)))
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimPrefix(line, "export ")
		if !strings.HasPrefix(line, envVar) {
			continue
		}
		value := strings.Trim(strings.TrimPrefix(line, envVar), `"`)
		return &Version{
			Language: lang,
			Value:    value,
			Path:     filepath.Join(m.langDir(lang), value),
		}, nil
	}
	return nil, nil
}
