// Package domainerr centralizes the error taxonomy from spec.md §6.4 and
// §7: data-model errors (fatal, no local recovery), storage errors
// (fatal; nothing here retries LockContention), and control sentinels
// (StopEpochReached, CantReceiveBlock).
package domainerr

import (
	"errors"
	"fmt"

	"github.com/containerman17/dolos-ledger/chain"
)

// Sentinel control errors, compared with errors.Is.
var (
	// ErrStopEpochReached is a clean shutdown sentinel, not a failure.
	ErrStopEpochReached = errors.New("stop epoch reached")
	// ErrCantReceiveBlock indicates the caller fed a block to the
	// WorkBuffer FSM while it was not in {Empty, Restart, OpenBatch} —
	// a caller bug, not a runtime condition.
	ErrCantReceiveBlock = errors.New("cannot receive block in current FSM state")
	// ErrLockContention names storage lock contention. No code in this
	// module returns it or retries an operation on it.
	ErrLockContention = errors.New("storage lock contention")
	// ErrWalBehindState is always a bug per spec.md §4.10's startup
	// reconciliation: the WAL must never lag StateStore.
	ErrWalBehindState = errors.New("WAL behind StateStore: irrecoverable inconsistency")
	// ErrRollbackBeyondStable signals a rollback request for a point
	// outside the retained stability window.
	ErrRollbackBeyondStable = errors.New("rollback target beyond stable history")
	// ErrInvalidStoreVersion is returned when a store's persisted schema
	// fingerprint does not match the running binary's.
	ErrInvalidStoreVersion = errors.New("invalid store schema version")
)

// NoActiveEpochError is returned when an operation that requires an open
// epoch (most boundary and roll work) finds no EpochState singleton.
type NoActiveEpochError struct{}

func (e *NoActiveEpochError) Error() string { return "no active epoch" }

// InvalidPoolParamsError wraps a rejected pool registration certificate.
type InvalidPoolParamsError struct{ Reason string }

func (e *InvalidPoolParamsError) Error() string { return "invalid pool params: " + e.Reason }

// InvalidProposalParamsError wraps a rejected governance proposal.
type InvalidProposalParamsError struct{ Reason string }

func (e *InvalidProposalParamsError) Error() string { return "invalid proposal params: " + e.Reason }

// EpochBoundaryIncompleteError indicates a boundary work unit committed
// partially and must be retried/reconciled at startup.
type EpochBoundaryIncompleteError struct{ Phase string }

func (e *EpochBoundaryIncompleteError) Error() string {
	return fmt.Sprintf("epoch boundary incomplete at phase %s", e.Phase)
}

// MissingParamError mirrors pparams.MissingParamError at the domain-error
// level so callers outside pparams can type-switch uniformly.
type MissingParamError struct{ Name string }

func (e *MissingParamError) Error() string { return fmt.Sprintf("missing param: %s", e.Name) }

// MissingUtxoError is spec.md §6.4's MissingUtxo(TxoRef).
type MissingUtxoError struct{ Ref chain.TxoRef }

func (e *MissingUtxoError) Error() string { return fmt.Sprintf("missing utxo: %s", e.Ref) }

// DecodingError wraps a storage-layer codec failure.
type DecodingError struct {
	Context string
	Err     error
}

func (e *DecodingError) Error() string { return fmt.Sprintf("decoding error (%s): %v", e.Context, e.Err) }
func (e *DecodingError) Unwrap() error { return e.Err }

// InternalStoreError wraps an unexpected pebble/storage-engine failure.
type InternalStoreError struct {
	Context string
	Err     error
}

func (e *InternalStoreError) Error() string {
	return fmt.Sprintf("internal store error (%s): %v", e.Context, e.Err)
}
func (e *InternalStoreError) Unwrap() error { return e.Err }

// Phase1Error wraps a ledger-rule validation failure the Validator
// collaborator caught before script evaluation (spec.md §6.1's
// validate_tx outcomes: balance, UTXO existence, fee minimums, and
// similar checks that don't require running Plutus).
type Phase1Error struct{ Reason string }

func (e *Phase1Error) Error() string { return "phase-1 validation failed: " + e.Reason }

// Phase2Error wraps a Plutus script evaluation failure.
type Phase2Error struct{ Reason string }

func (e *Phase2Error) Error() string { return "phase-2 validation failed: " + e.Reason }

// InvalidTxError is a catch-all for a transaction the Validator rejects
// before it can even reach phase-1 checks (malformed CBOR, missing
// required fields).
type InvalidTxError struct{ Reason string }

func (e *InvalidTxError) Error() string { return "invalid tx: " + e.Reason }
