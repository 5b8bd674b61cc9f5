package workunit

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/containerman17/dolos-ledger/boundary"
	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/entity"
	"github.com/containerman17/dolos-ledger/storage/utxoset"
	"github.com/containerman17/dolos-ledger/workbuffer"
)

// boundaryPoint synthesizes a ChainPoint to key a boundary work unit's WAL
// entry. RUPD/EWRAP/ESTART all happen "between" blocks at a real slot but
// carry no block hash of their own — and EWRAP/ESTART in particular can
// share a slot with the very block that triggered them, which would
// otherwise collide with that block's own WAL entry. Hashing the phase tag
// into the slot keeps every boundary entry's key unique and reproducible.
func boundaryPoint(kind byte, slot chain.Slot, epoch uint64) chain.ChainPoint {
	var buf [17]byte
	buf[0] = kind
	binary.BigEndian.PutUint64(buf[1:9], uint64(slot))
	binary.BigEndian.PutUint64(buf[9:17], epoch)
	h := sha256.Sum256(buf[:])
	var hash chain.BlockHash
	copy(hash[:], h[:])
	return chain.NewChainPoint(slot, hash)
}

// currentEpoch loads the View and the live EpochState every boundary phase
// needs as its starting point.
func (ex *Executor) currentEpoch() (*boundary.View, *entity.EpochState, error) {
	v := ex.view()
	epoch, ok, err := v.EpochState()
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("workunit: no active epoch")
	}
	return v, epoch, nil
}

// executeRupd runs spec.md §4.4's reward computation at the RUPD boundary
// (stability_window slots before the epoch's end).
func (ex *Executor) executeRupd(w workbuffer.Work) error {
	v, epoch, err := ex.currentEpoch()
	if err != nil {
		return err
	}
	deltas, err := boundary.RUPD(v, epoch.PParams.Live(), ex.activeProtocol)
	if err != nil {
		return err
	}
	point := boundaryPoint('r', w.Slot, 0)
	return ex.commitWork(point, deltas, utxoset.Delta{}, nil, nil)
}

// executeEwrap runs spec.md §4.5's five enactment/rewards/drops/refunds/
// wrap-up sub-steps in one atomic commit.
func (ex *Executor) executeEwrap(w workbuffer.Work) error {
	v, epoch, err := ex.currentEpoch()
	if err != nil {
		return err
	}
	endingEpoch := w.Epoch
	startingEpoch := endingEpoch + 1
	deltas, err := boundary.EWRAP(v, epoch.PParams.Live(), endingEpoch, startingEpoch)
	if err != nil {
		return err
	}
	point := boundaryPoint('w', w.Slot, endingEpoch)
	return ex.commitWork(point, deltas, utxoset.Delta{}, nil, nil)
}

// executeEstart runs spec.md §4.6's epoch open: pot roll-forward, a fresh
// EpochState, and (if the new epoch's first block carries a different
// protocol major version) the era transition. w.Batch carries exactly the
// peek workbuffer.PopWork attaches for this purpose.
func (ex *Executor) executeEstart(w workbuffer.Work) error {
	if len(w.Batch) != 1 {
		return fmt.Errorf("workunit: estart work unit must carry exactly one peek block, got %d", len(w.Batch))
	}
	peek := w.Batch[0]
	peekBlock, err := ex.Decoder.Decode(chain.EraCbor{Era: peek.Era, Bytes: peek.Raw})
	if err != nil {
		return fmt.Errorf("workunit: decode estart peek block: %w", err)
	}
	startingProtocol := peekBlock.Header.ProtocolMajor

	v, epoch, err := ex.currentEpoch()
	if err != nil {
		return err
	}
	summary, stabilityWindow := ex.Cache.Snapshot()
	nextNumber := w.Epoch
	nextNonces := deriveEpochNonce(epoch.Nonces, nextNumber)

	deltas, err := boundary.ESTART(v, summary, stabilityWindow, ex.activeProtocol, startingProtocol, nextNumber, nextNonces)
	if err != nil {
		return err
	}
	point := boundaryPoint('s', w.Slot, nextNumber)
	if err := ex.commitWork(point, deltas, utxoset.Delta{}, nil, nil); err != nil {
		return err
	}

	ex.activeProtocol = startingProtocol
	eras, err := ex.Coordinator.State.IterEntities(chain.NamespaceEraSummary, nil, nil)
	if err != nil {
		return err
	}
	summaries, err := decodeEraSummaries(eras)
	if err != nil {
		return err
	}
	ex.Cache.Refresh(summaries, stabilityWindow)
	return nil
}

// deriveEpochNonce computes the new epoch's nonce from the ending epoch's,
// a simplified stand-in for Cardano's full eta_v VRF-output accumulation
// (which needs the block-by-block VRF history boundary/workunit never
// retain). Byron has no nonce concept, so a nil prior nonce starts the
// hash chain from an all-zero seed at the Byron->Shelley transition.
func deriveEpochNonce(prior *[32]byte, epoch uint64) *[32]byte {
	var seed [32]byte
	if prior != nil {
		seed = *prior
	}
	var buf [40]byte
	copy(buf[:32], seed[:])
	binary.BigEndian.PutUint64(buf[32:], epoch)
	h := sha256.Sum256(buf[:])
	return &h
}
