package mempool

import (
	"encoding/binary"
	"encoding/json"

	"github.com/cockroachdb/pebble/v2"
	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/collab"
	"github.com/containerman17/dolos-ledger/domainerr"
	"github.com/containerman17/dolos-ledger/storage/pebbleutil"
)

// Confirm reconciles the active set against one new chain point, per
// spec.md §6.1's confirm(point, seen, unseen, finalize_threshold,
// drop_threshold), generalized from original_source/crates/redb3's
// apply(seen, unseen) binary toggle to the full counter-driven policy
// original_source/tests/mempool.rs actually exercises:
//
//   - unseen: an explicit rollback signal (a reorg dropped this tx from
//     the chain) — any active tx named here resets unconditionally back
//     to Pending, confirmations and non-confirmations cleared.
//   - seen, first time: Propagated/Acknowledged -> Confirmed,
//     confirmations = 1.
//   - every other active tx not named in seen or unseen this round: if
//     already Confirmed, confirmations keeps growing (a tx doesn't need
//     to be re-named every block to still be "on chain" — it only drops
//     off via an explicit unseen entry); otherwise non_confirmations
//     grows, and hitting drop_threshold moves it to Dropped.
//   - any tx whose confirmations reaches finalize_threshold moves to
//     Finalized.
func (m *Mempool) Confirm(point chain.ChainPoint, seen, unseen []chain.TxHash, finalizeThreshold, dropThreshold uint32) error {
	batch := m.db.NewBatch()
	defer batch.Close()

	touched := make(map[chain.TxHash]bool, len(seen)+len(unseen))
	var events []collab.MempoolEvent

	for _, hash := range unseen {
		touched[hash] = true
		rec, ok, err := m.getActive(hash)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := batch.Delete(activeKey(hash), nil); err != nil {
			return &domainerr.InternalStoreError{Context: "mempool confirm rollback delete", Err: err}
		}
		if err := m.reinsertPending(batch, hash, rec.Payload); err != nil {
			return err
		}
		events = append(events,
			collab.MempoolEvent{Stage: collab.StageRolledBack, Tx: collab.MempoolTx{Hash: hash, Payload: rec.Payload}},
			collab.MempoolEvent{Stage: collab.StagePending, Tx: collab.MempoolTx{Hash: hash, Payload: rec.Payload}},
		)
	}

	for _, hash := range seen {
		if touched[hash] {
			continue // an explicit unseen this same round wins
		}
		touched[hash] = true
		rec, ok, err := m.getActive(hash)
		if err != nil {
			return err
		}
		if !ok {
			continue // only active (inflight/acknowledged/confirmed) txs participate in confirm
		}
		firstConfirm := rec.Confirmations == 0
		rec.Confirmations++
		rec.NonConfirmations = 0
		if done, err := m.settleActive(batch, hash, rec, finalizeThreshold, &events); err != nil {
			return err
		} else if !done && firstConfirm {
			events = append(events, collab.MempoolEvent{Stage: collab.StageConfirmed, Tx: collab.MempoolTx{Hash: hash, Payload: rec.Payload}})
		}
	}

	remaining, err := m.scanActive()
	if err != nil {
		return err
	}
	for hash, rec := range remaining {
		if touched[hash] {
			continue
		}
		if rec.Confirmations > 0 {
			rec.Confirmations++
			if _, err := m.settleActive(batch, hash, rec, finalizeThreshold, &events); err != nil {
				return err
			}
			continue
		}
		rec.NonConfirmations++
		if rec.NonConfirmations >= dropThreshold {
			if err := m.finalize(batch, hash, rec, collab.StageDropped, &events); err != nil {
				return err
			}
			continue
		}
		if err := m.putActive(batch, hash, rec); err != nil {
			return err
		}
	}

	if err := batch.Set(pebbleutil.CursorKey, point.Bytes(), nil); err != nil {
		return &domainerr.InternalStoreError{Context: "mempool confirm cursor", Err: err}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return &domainerr.InternalStoreError{Context: "mempool confirm commit", Err: err}
	}
	for _, ev := range events {
		m.publish(ev)
	}
	return nil
}

// settleActive writes rec back if it hasn't reached finalize_threshold,
// or moves it to the finalized log if it has. Returns done=true when the
// tx was finalized (caller should not also write the active record).
func (m *Mempool) settleActive(batch *pebble.Batch, hash chain.TxHash, rec activeRecord, finalizeThreshold uint32, events *[]collab.MempoolEvent) (bool, error) {
	if rec.Confirmations >= finalizeThreshold {
		return true, m.finalize(batch, hash, rec, collab.StageFinalized, events)
	}
	return false, m.putActive(batch, hash, rec)
}

func (m *Mempool) finalize(batch *pebble.Batch, hash chain.TxHash, rec activeRecord, stage collab.MempoolTxStage, events *[]collab.MempoolEvent) error {
	if err := batch.Delete(activeKey(hash), nil); err != nil {
		return &domainerr.InternalStoreError{Context: "mempool finalize delete active", Err: err}
	}
	seq, err := m.nextSeq(batch, keyFinalizedSeq)
	if err != nil {
		return err
	}
	fr := finalizedRecord{Hash: hash, Stage: stage, Payload: rec.Payload}
	raw, err := json.Marshal(fr)
	if err != nil {
		return &domainerr.DecodingError{Context: "mempool finalized record", Err: err}
	}
	if err := batch.Set(finalizedLogKey(seq), raw, nil); err != nil {
		return &domainerr.InternalStoreError{Context: "mempool finalize log", Err: err}
	}
	if err := batch.Set(finalizedIndexKey(hash), raw, nil); err != nil {
		return &domainerr.InternalStoreError{Context: "mempool finalize index", Err: err}
	}
	*events = append(*events, collab.MempoolEvent{Stage: stage, Tx: collab.MempoolTx{Hash: hash, Payload: rec.Payload}})
	return nil
}

func (m *Mempool) reinsertPending(batch *pebble.Batch, hash chain.TxHash, payload chain.EraCbor) error {
	seq, err := m.nextSeq(batch, keyPendingSeq)
	if err != nil {
		return err
	}
	if err := batch.Set(pendingPrimaryKey(seq, hash), encodeEraCbor(payload), nil); err != nil {
		return &domainerr.InternalStoreError{Context: "mempool rollback pending", Err: err}
	}
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	if err := batch.Set(pendingIndexKey(hash), seqBuf[:], nil); err != nil {
		return &domainerr.InternalStoreError{Context: "mempool rollback pending index", Err: err}
	}
	return nil
}

// scanActive loads the entire active set as a snapshot for Confirm's
// bookkeeping pass. Mempool active-set size is bounded by what a node
// has actually broadcast and not yet settled, so a full scan per
// confirmed block is the same cost class as PeekPending's scan.
func (m *Mempool) scanActive() (map[chain.TxHash]activeRecord, error) {
	iter, err := m.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefixActive},
		UpperBound: []byte{prefixActive + 1},
	})
	if err != nil {
		return nil, &domainerr.InternalStoreError{Context: "mempool scan active", Err: err}
	}
	defer iter.Close()

	out := make(map[chain.TxHash]activeRecord)
	for iter.First(); iter.Valid(); iter.Next() {
		var hash chain.TxHash
		copy(hash[:], iter.Key()[1:])
		var rec activeRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, &domainerr.DecodingError{Context: "mempool active record", Err: err}
		}
		out[hash] = rec
	}
	return out, nil
}

// CheckStatus answers spec.md §6.1's check_status(hash), searching the
// active set, then the finalized/dropped log, then Pending.
func (m *Mempool) CheckStatus(hash chain.TxHash) (collab.MempoolStatus, error) {
	rec, ok, err := m.getActive(hash)
	if err != nil {
		return collab.MempoolStatus{}, err
	}
	if ok {
		return collab.MempoolStatus{Stage: rec.stage(), Confirmations: rec.Confirmations, NonConfirmations: rec.NonConfirmations}, nil
	}

	v, closer, err := m.db.Get(finalizedIndexKey(hash))
	if err == nil {
		defer closer.Close()
		var fr finalizedRecord
		if err := json.Unmarshal(v, &fr); err != nil {
			return collab.MempoolStatus{}, &domainerr.DecodingError{Context: "mempool finalized record", Err: err}
		}
		return collab.MempoolStatus{Stage: fr.Stage}, nil
	}
	if err != pebble.ErrNotFound {
		return collab.MempoolStatus{}, &domainerr.InternalStoreError{Context: "mempool check_status finalized", Err: err}
	}

	if _, closer, err := m.db.Get(pendingIndexKey(hash)); err == nil {
		closer.Close()
		return collab.MempoolStatus{Stage: collab.StagePending}, nil
	} else if err != pebble.ErrNotFound {
		return collab.MempoolStatus{}, &domainerr.InternalStoreError{Context: "mempool check_status pending", Err: err}
	}

	return collab.MempoolStatus{Stage: collab.StageUnknown}, nil
}

// FinalizedPage is dump_finalized's paginated result: a slice of the
// append-only Finalized/Dropped log plus the total length so callers
// can tell when they've reached the end.
type FinalizedPage struct {
	Items []collab.MempoolTx
	Total int
}

// DumpFinalized returns a page of the finalized/dropped log in
// insertion order, starting at offset.
func (m *Mempool) DumpFinalized(offset, limit int) (FinalizedPage, error) {
	iter, err := m.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefixFinalizedLog},
		UpperBound: []byte{prefixFinalizedLog + 1},
	})
	if err != nil {
		return FinalizedPage{}, &domainerr.InternalStoreError{Context: "mempool dump_finalized", Err: err}
	}
	defer iter.Close()

	page := FinalizedPage{}
	i := 0
	for iter.First(); iter.Valid(); iter.Next() {
		page.Total++
		if i < offset {
			i++
			continue
		}
		if limit >= 0 && len(page.Items) >= limit {
			continue
		}
		var fr finalizedRecord
		if err := json.Unmarshal(iter.Value(), &fr); err != nil {
			return FinalizedPage{}, &domainerr.DecodingError{Context: "mempool finalized record", Err: err}
		}
		page.Items = append(page.Items, collab.MempoolTx{Hash: fr.Hash, Payload: fr.Payload})
		i++
	}
	return page, nil
}
