package pkgdb

import "context"

// Adapter is the native package-database contract the Package Engine worker
// drives (§4.1). A concrete Adapter wraps ALPM (Arch) or dpkg/APT (Debian/
// Ubuntu); it must only ever be called from the single worker goroutine that
// owns it (§9: "the underlying library is touched from a single thread").
type Adapter interface {
	// Search performs the case-insensitive substring match over name and
	// description across all registered sync databases (§4.1 search()).
	// Ordering is the adapter's responsibility: exact-name-match, then
	// prefix-match, then substring-match, then download count, then name.
	Search(ctx context.Context, query string, limit int) ([]Package, error)

	// Info returns the first sync-DB hit for name, or (Package{}, false)
	// when unknown (§4.1 info()).
	Info(ctx context.Context, name string) (Package, bool, error)

	// LocalStatus scans the local database once (§4.1 status() /
	// list_updates() share this single pass).
	LocalStatus(ctx context.Context) ([]Package, error)

	// SyncVersion returns the best available sync-DB version of name, or
	// ("", false) if no sync database carries it.
	SyncVersion(ctx context.Context, name string) (string, bool, error)

	// PrepareTransaction computes the dependency closure and detects
	// conflicts for ops under flags, without committing anything (§3
	// Transaction prepare phase).
	PrepareTransaction(ctx context.Context, ops []TransactionOp, flags TransactionFlags) (*PreparedTransaction, error)

	// CommitTransaction executes a prepared transaction, publishing
	// progress events to the given channel as phases advance (§4.1
	// Progress events). The channel is closed by the adapter when the
	// commit finishes, successfully or not.
	CommitTransaction(ctx context.Context, prepared *PreparedTransaction, progress chan<- ProgressEvent) error

	// ReleaseTransaction is the unconditional, idempotent cleanup edge in
	// the transaction state machine (§4.1); it must be safe to call after
	// any failure at any phase.
	ReleaseTransaction(prepared *PreparedTransaction)

	// DBModTime returns the native database's modification time, used by
	// the daemon to invalidate its SearchIndex cache (§3).
	DBModTime(ctx context.Context) (int64, error)

	// Close releases the adapter's underlying handle. Called once, at
	// worker shutdown.
	Close() error
}

// PreparedTransaction is the adapter-internal handle produced by
// PrepareTransaction and consumed by CommitTransaction/ReleaseTransaction. Its
// contents are adapter-specific; the engine treats it opaquely.
type PreparedTransaction struct {
	Ops          []TransactionOp
	Flags        TransactionFlags
	ToInstall    []Package
	ToRemove     []Package
	ConflictErrs []string
	// handle is adapter-private state (e.g. an open ALPM transaction
	// pointer); adapters type-assert their own concrete type out of this
	// field via a side channel rather than exporting it, to keep
	// PreparedTransaction adapter-agnostic for the engine.
	adapterState interface{}
}

// WithAdapterState attaches adapter-private state and returns the same
// PreparedTransaction for chaining.
func (p *PreparedTransaction) WithAdapterState(state interface{}) *PreparedTransaction {
	p.adapterState = state
	return p
}

// AdapterState retrieves the adapter-private state.
func (p *PreparedTransaction) AdapterState() interface{} { return p.adapterState }
