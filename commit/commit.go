// Package commit implements the multi-store commit protocol from spec.md
// §4.10: WAL append, then StateStore -> UtxoSet -> IndexStore in one
// logical transaction (phase 3), Archive committed separately (phase 4),
// startup reconciliation, and the rollback procedure. Grounded on the
// teacher's own write ordering in ingestion/evm/rpc/storage: block data
// is written before the watermark/cursor that makes it visible, the same
// "durable data, then durable pointer" discipline this package applies
// across five stores instead of one.
package commit

import (
	"log"

	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/domainerr"
	"github.com/containerman17/dolos-ledger/entity"
	"github.com/containerman17/dolos-ledger/storage/archive"
	"github.com/containerman17/dolos-ledger/storage/indexstore"
	"github.com/containerman17/dolos-ledger/storage/statestore"
	"github.com/containerman17/dolos-ledger/storage/utxoset"
	"github.com/containerman17/dolos-ledger/storage/walstore"
)

// Coordinator owns the five store handles and enforces their commit
// ordering; it is the single writer spec.md §5 requires ("the core is
// pinned to one logical executor").
type Coordinator struct {
	WAL     *walstore.WAL
	State   *statestore.StateStore
	Utxo    *utxoset.UtxoSet
	Index   *indexstore.IndexStore
	Archive *archive.Archive
}

// EntityWrite is one namespace/key/value write destined for StateStore,
// produced by applying a Delta in the caller's compute phase.
type EntityWrite struct {
	Namespace chain.Namespace
	Key       chain.EntityKey
	Value     []byte // nil means delete
}

// StateBundle is everything phase 3 needs beyond the WAL entries
// themselves: the work unit's compute() output, already flattened into
// per-store write sets by the caller (roll/workunit packages own turning
// Deltas into these via entity.ApplyDelta).
type StateBundle struct {
	Cursor    chain.ChainPoint
	Entities  []EntityWrite
	UtxoDelta utxoset.Delta
	// IndexTags is keyed by slot because a single work unit's batch can
	// span several blocks (spec.md §4.3): every slot's tags are written
	// to the IndexStore in the same phase-3 writer, not just one slot's.
	IndexTags map[chain.Slot][]indexstore.Tag
}

// CommitState performs phase 3: WAL append (fsynced), then
// StateStore -> UtxoSet -> IndexStore, each its own writer, in that
// fixed order; only StateStore records the cursor.
func (c *Coordinator) CommitState(walEntries []walstore.Entry, bundle StateBundle) error {
	if err := c.WAL.AppendEntries(walEntries); err != nil {
		return err
	}

	sw := c.State.StartWriter()
	defer sw.Close()
	for _, w := range bundle.Entities {
		if w.Value == nil {
			if err := sw.DeleteEntity(w.Namespace, w.Key); err != nil {
				return err
			}
			continue
		}
		if err := sw.WriteEntity(w.Namespace, w.Key, w.Value); err != nil {
			return err
		}
	}
	if err := sw.SetCursor(bundle.Cursor); err != nil {
		return err
	}
	if err := sw.Commit(); err != nil {
		return err
	}

	uw := c.Utxo.StartWriter()
	defer uw.Close()
	if err := uw.Apply(bundle.UtxoDelta); err != nil {
		return err
	}
	if err := uw.Commit(); err != nil {
		return err
	}

	iw := c.Index.StartWriter()
	defer iw.Close()
	for slot, tags := range bundle.IndexTags {
		if err := iw.AddSlot(slot, tags); err != nil {
			return err
		}
	}
	return iw.Commit()
}

// CommitArchive performs phase 4: writes raw block bodies, independent of
// phase 3 and safe to lag (spec.md §4.10 step 3, §4.2 failure note: "a
// failure in phase 4 must leave a recovery marker such that the next
// startup can complete archive write from the WAL").
func (c *Coordinator) CommitArchive(bodies []archive.BlockBody) error {
	aw := c.Archive.StartWriter()
	defer aw.Close()
	for _, b := range bodies {
		if err := aw.PutBlock(b); err != nil {
			return err
		}
	}
	return aw.Commit()
}

// Cursors reports every store's persisted cursor for reconciliation.
type Cursors struct {
	Wal     chain.ChainPoint
	State   chain.ChainPoint
	Archive chain.ChainPoint
}

func (c *Coordinator) readCursors() (Cursors, error) {
	wal, err := c.WAL.Cursor()
	if err != nil {
		return Cursors{}, err
	}
	state, err := c.State.ReadCursor()
	if err != nil {
		return Cursors{}, err
	}
	tip, ok, err := c.Archive.GetTip()
	if err != nil {
		return Cursors{}, err
	}
	arch := chain.Origin
	if ok {
		arch = tip.Point
	}
	return Cursors{Wal: wal, State: state, Archive: arch}, nil
}

// Reconcile implements spec.md §4.10's startup check: WAL >= State >=
// Archive. If WAL lags State that is always a bug (WalBehindState,
// fatal). If State lags WAL, replay the missing WAL segment into
// StateStore/UtxoSet/IndexStore via applyRaw. If Archive lags WAL,
// replay missing blocks from the WAL's raw copies.
func (c *Coordinator) Reconcile(applyRaw func(walstore.Entry) (StateBundle, error)) error {
	cursors, err := c.readCursors()
	if err != nil {
		return err
	}
	if cursors.Wal.Less(cursors.State) {
		return domainerr.ErrWalBehindState
	}
	if cursors.State.Less(cursors.Wal) {
		entries, err := c.WAL.IterLogs(cursors.State, cursors.Wal)
		if err != nil {
			return err
		}
		log.Printf("[commit] reconciling %d entries: state behind wal", len(entries))
		for _, e := range entries {
			if e.Point.Equal(cursors.State) {
				continue
			}
			bundle, err := applyRaw(e)
			if err != nil {
				return err
			}
			if err := c.commitStateOnly(bundle); err != nil {
				return err
			}
		}
	}
	if cursors.Archive.Less(cursors.Wal) {
		blocks, err := c.WAL.IterBlocks(cursors.Archive, cursors.Wal)
		if err != nil {
			return err
		}
		log.Printf("[commit] reconciling %d blocks: archive behind wal", len(blocks))
		bodies := make([]archive.BlockBody, 0, len(blocks))
		for _, b := range blocks {
			if len(b.Block) == 0 {
				continue
			}
			bodies = append(bodies, archive.BlockBody{Point: b.Point, Era: b.Era, Raw: b.Block})
		}
		if err := c.CommitArchive(bodies); err != nil {
			return err
		}
	}
	return nil
}

// commitStateOnly replays a state bundle without re-appending to the WAL
// (used only during reconciliation, where the WAL entry already exists).
func (c *Coordinator) commitStateOnly(bundle StateBundle) error {
	sw := c.State.StartWriter()
	defer sw.Close()
	for _, w := range bundle.Entities {
		if w.Value == nil {
			if err := sw.DeleteEntity(w.Namespace, w.Key); err != nil {
				return err
			}
			continue
		}
		if err := sw.WriteEntity(w.Namespace, w.Key, w.Value); err != nil {
			return err
		}
	}
	if err := sw.SetCursor(bundle.Cursor); err != nil {
		return err
	}
	if err := sw.Commit(); err != nil {
		return err
	}
	uw := c.Utxo.StartWriter()
	defer uw.Close()
	if err := uw.Apply(bundle.UtxoDelta); err != nil {
		return err
	}
	if err := uw.Commit(); err != nil {
		return err
	}
	iw := c.Index.StartWriter()
	defer iw.Close()
	for slot, tags := range bundle.IndexTags {
		if err := iw.AddSlot(slot, tags); err != nil {
			return err
		}
	}
	return iw.Commit()
}

// Rollback implements spec.md §4.10's rollback procedure: locate P in the
// WAL, undo entries from tip down to (exclusive) P across all stores,
// truncate WAL and Archive after P, and reset cursors.
func (c *Coordinator) Rollback(p chain.ChainPoint, undo func(walstore.Entry) (StateBundle, error)) error {
	if !p.IsOrigin() {
		_, ok, err := c.WAL.LocatePoint(p.Slot)
		if err != nil {
			return err
		}
		if !ok {
			return domainerr.ErrRollbackBeyondStable
		}
	}

	tip, err := c.WAL.Cursor()
	if err != nil {
		return err
	}
	entries, err := c.WAL.IterLogs(p, tip)
	if err != nil {
		return err
	}
	// Undo in reverse order, excluding the entry at P itself.
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Point.Equal(p) {
			continue
		}
		bundle, err := undo(e)
		if err != nil {
			return err
		}
		if err := c.commitStateOnly(bundle); err != nil {
			return err
		}
	}

	if err := c.WAL.RemoveEntries(p); err != nil {
		return err
	}
	if !p.IsOrigin() {
		if err := c.Archive.TruncateFront(p); err != nil {
			return err
		}
	}
	log.Printf("[commit] rolled back to %s", p)
	return nil
}

// EntityWritesFromDeltas is a convenience for callers (roll/workunit)
// that have a flat list of (prevRaw, Delta) pairs already resolved from a
// StateStore read and want the EntityWrite list for CommitState.
func EntityWritesFromDeltas(pairs []struct {
	PrevRaw []byte
	Delta   entity.Delta
}) ([]EntityWrite, error) {
	out := make([]EntityWrite, 0, len(pairs))
	for _, pr := range pairs {
		raw, err := entity.ApplyDelta(pr.PrevRaw, pr.Delta)
		if err != nil {
			return nil, err
		}
		out = append(out, EntityWrite{
			Namespace: pr.Delta.Namespace(),
			Key:       pr.Delta.Key(),
			Value:     raw,
		})
	}
	return out, nil
}
