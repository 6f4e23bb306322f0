// Package pkgdb defines the native package-database adapter contract (§4.1
// "Native DB Adapter") and the Package/Version data model (§3). Concrete
// adapters live in alpm.go (Arch/ALPM, build-tagged on cgo), dpkg.go
// (Debian/Ubuntu), and memory.go (in-memory, used under OMG_TEST_MODE and in
// unit tests).
package pkgdb

import "time"

// InstallReason mirrors ALPM's explicit/dependency distinction (§3).
type InstallReason int

const (
	ReasonExplicit InstallReason = iota
	ReasonDependency
)

// Package is the adapter-agnostic package record (§3 Package).
type Package struct {
	Name        string
	Version     string
	Release     string
	Repo        string
	Description string
	URL         string
	InstalledSize int64
	DownloadSize  int64
	Depends       []string
	Licenses      []string
	Reason        InstallReason
	Installed     bool
	// RequiredBy/OptionalFor are name lookups, never object pointers (§9:
	// "avoid building graph structures with ownership cycles").
	RequiredBy  []string
	OptionalFor []string
	// DownloadCount, when known, breaks ties in search ordering (§4.1).
	DownloadCount int64
	// IsVirtual distinguishes a provided/virtual package from a real one,
	// preserved in the source field per §4.1 info().
	IsVirtual bool
}

// Key returns the (name, repo) identity that must be unique per database
// handle (§3 Package invariant).
func (p Package) Key() string { return p.Repo + "/" + p.Name }

// TransactionOp is one operation in a Transaction's ordered list (§3).
type TransactionOpKind int

const (
	OpAdd TransactionOpKind = iota
	OpRemove
	OpSysUpgrade
)

// TransactionOp is Add(pkg-id or local-file-path) | Remove(installed-pkg-name) | SysUpgrade.
type TransactionOp struct {
	Kind   TransactionOpKind
	Target string // package name, pkg-id, or local file path; unused for SysUpgrade
}

// TransactionFlags are the transaction-wide flags from §3.
type TransactionFlags struct {
	Needed   bool
	Recurse  bool
	Unneeded bool
	NoDeps   bool
}

// Phase is one of the progress-event phases from §4.1.
type Phase string

const (
	PhaseDownloadInit     Phase = "download_init"
	PhaseDownloadProgress Phase = "download_progress"
	PhaseDownloadComplete Phase = "download_complete"
	PhaseIntegrity        Phase = "integrity"
	PhaseConflict         Phase = "conflict"
	PhaseDiskSpace        Phase = "disk_space"
	PhaseKeyring          Phase = "keyring"
	PhaseLoad             Phase = "load"
	PhaseAdd              Phase = "add"
	PhaseUpgrade          Phase = "upgrade"
	PhaseDowngrade        Phase = "downgrade"
	PhaseReinstall        Phase = "reinstall"
	PhaseRemove           Phase = "remove"
)

// ProgressEvent is the (phase, package-name, percent) tuple the worker
// publishes (§4.1); Percent is always clamped to [0,100] by the publisher
// regardless of what the native source reports (§8 boundary behavior).
type ProgressEvent struct {
	Phase           Phase
	PackageName     string
	Percent         int
	DownloadedBytes int64
	TotalBytes      int64
	Timestamp       time.Time
}

// ClampPercent enforces the §8 boundary behavior.
func ClampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Status is the result of §4.1 status(): (total, explicit, orphans, updates).
type Status struct {
	Total    int
	Explicit int
	Orphans  int
	Updates  int
}

// UpdateEntry is one row of §4.1 list_updates().
type UpdateEntry struct {
	Name       string
	OldVersion string
	NewVersion string
}

// UpdateType classifies a version jump for telemetry/UI purposes (§8
// invariant 4: must never be Unknown for two versions with a strict
// ordering).
type UpdateType string

const (
	UpdateMajor UpdateType = "major"
	UpdateMinor UpdateType = "minor"
	UpdatePatch UpdateType = "patch"
)
