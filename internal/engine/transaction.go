package engine

import (
	"context"
	"sync"

	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

// TxState is one node of the transaction state machine (§4.1).
type TxState int

const (
	TxIdle TxState = iota
	TxInitialized
	TxPopulated
	TxPrepared
	TxVerified
	TxCommitted
	TxFailed
)

func (s TxState) String() string {
	switch s {
	case TxIdle:
		return "idle"
	case TxInitialized:
		return "initialized"
	case TxPopulated:
		return "populated"
	case TxPrepared:
		return "prepared"
	case TxVerified:
		return "verified"
	case TxCommitted:
		return "committed"
	case TxFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// VerifyFunc checks every package about to be installed — local files and
// sync-DB packages with a sibling .sig alike — before anything commits
// (§4.1: "every Add ... is verified (§4.3)"). It returns the first
// signature/policy failure encountered, or nil if every package clears.
type VerifyFunc func(ctx context.Context, toInstall []pkgdb.Package) error

// Transaction tracks TxState across one call to runTransaction, purely for
// observability (daemon status reporting); the state machine's actual
// enforcement is the linear control flow in runTransaction itself.
type Transaction struct {
	mu    sync.Mutex
	state TxState
}

// State returns the current phase.
func (t *Transaction) State() TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) set(s TxState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// runTransaction drives Idle → Initialized → Populated → Prepared →
// Verified → Committed|Failed, calling adapter.ReleaseTransaction on every
// exit path (§4.1: "The release edge is unconditional and idempotent;
// failure in any phase must still release").
func runTransaction(ctx context.Context, a pkgdb.Adapter, ops []pkgdb.TransactionOp, flags pkgdb.TransactionFlags, verify VerifyFunc, progress chan<- pkgdb.ProgressEvent) error {
	tx := &Transaction{state: TxInitialized}
	tx.set(TxPopulated)

	prepared, err := a.PrepareTransaction(ctx, ops, flags)
	if err != nil {
		tx.set(TxFailed)
		close(progress)
		return err
	}
	tx.set(TxPrepared)

	if verify != nil {
		if err := verify(ctx, prepared.ToInstall); err != nil {
			tx.set(TxFailed)
			a.ReleaseTransaction(prepared)
			close(progress)
			return omgerrors.SignatureInvalid("transaction", err)
		}
	}
	tx.set(TxVerified)

	if err := a.CommitTransaction(ctx, prepared, progress); err != nil {
		tx.set(TxFailed)
		a.ReleaseTransaction(prepared)
		return err
	}

	tx.set(TxCommitted)
	a.ReleaseTransaction(prepared)
	return nil
}
