package collab

import "github.com/containerman17/dolos-ledger/chain"

// MempoolTx is a transaction tracked by the mempool, from submission
// through its eventual Finalized/Dropped resting state (spec.md §6.1,
// supplemented per SPEC_FULL.md §4.13 from original_source/'s
// crates/redb3/src/mempool.rs and tests/mempool.rs).
type MempoolTx struct {
	Hash    chain.TxHash
	Payload chain.EraCbor
}

// MempoolTxStage is the externally observable lifecycle stage spec.md
// §6.1 names. Inflight is reserved for a tx mid mark_inflight call — by
// the time any caller can observe it, Mempool.MarkInflight has already
// settled it into Propagated, so check_status never actually returns
// Inflight; it's kept for parity with the table name and the full stage
// set the spec enumerates (see DESIGN.md).
type MempoolTxStage int

const (
	StageUnknown MempoolTxStage = iota
	StagePending
	StageInflight
	StagePropagated
	StageAcknowledged
	StageConfirmed
	StageFinalized
	StageRolledBack
	StageDropped
)

func (s MempoolTxStage) String() string {
	switch s {
	case StagePending:
		return "Pending"
	case StageInflight:
		return "Inflight"
	case StagePropagated:
		return "Propagated"
	case StageAcknowledged:
		return "Acknowledged"
	case StageConfirmed:
		return "Confirmed"
	case StageFinalized:
		return "Finalized"
	case StageRolledBack:
		return "RolledBack"
	case StageDropped:
		return "Dropped"
	default:
		return "Unknown"
	}
}

// MempoolStatus is check_status(hash)'s full answer: the stage plus the
// consecutive-block counters the finalize/drop threshold policy runs
// off (spec.md §6.1, original_source/tests/mempool.rs).
type MempoolStatus struct {
	Stage            MempoolTxStage
	Confirmations    uint32
	NonConfirmations uint32
}

// MempoolEvent is one stage transition, published to Mempool.Subscribe's
// channel (spec.md §6.1's "reconciles against block events").
type MempoolEvent struct {
	Stage MempoolTxStage
	Tx    MempoolTx
}

// Validator is the optional collaborator spec.md §6.1 names:
// validate_tx(cbor, utxos, tip, genesis) -> MempoolTx | Phase1Error |
// Phase2Error | InvalidTx; ValidateTx here takes no genesis argument.
// Nothing in this module implements or calls it; it exists here only so
// that boundary lives next to the MempoolTx shape it produces. Errors
// are reported as one of domainerr's Phase1Error/Phase2Error/InvalidTxError.
type Validator interface {
	ValidateTx(cbor chain.EraCbor, utxos func(chain.TxoRef) (DecodedOutput, bool), tip chain.ChainPoint) (MempoolTx, error)
}
