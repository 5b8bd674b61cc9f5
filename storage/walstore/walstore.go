// Package walstore implements the WAL contract from spec.md §4.9.1: a
// persistent ordered map ChainPoint -> LogValue<Delta>, fsynced on every
// append, prunable, and truncatable for rollback. Modeled on the
// teacher's indexers/pcx/db pebble wrapper and the watermark-as-cursor
// convention from ingestion/evm/rpc/storage/versiondb.go, generalized
// from a single uint64 watermark to a full ChainPoint-keyed log.
package walstore

import (
	"encoding/json"
	"log"

	"github.com/cockroachdb/pebble/v2"
	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/domainerr"
	"github.com/containerman17/dolos-ledger/entity"
	"github.com/containerman17/dolos-ledger/storage/pebbleutil"
)

// LogValue is the WAL's stored value: the typed delta bundle plus the raw
// block bytes, so commit_archive (phase 4) can recover from the WAL alone
// after a crash (spec.md §4.2).
type LogValue struct {
	Deltas   []entity.Envelope `json:"deltas"`
	RawEra   chain.EraTag      `json:"raw_era"`
	RawBlock []byte            `json:"raw_block"`
}

// WAL is a pebble-backed append-only log keyed by ChainPoint.Bytes().
type WAL struct {
	db *pebble.DB
}

func Open(dir string, cacheMiB int) (*WAL, error) {
	db, err := pebble.Open(dir, pebbleutil.Options("wal", cacheMiB))
	if err != nil {
		return nil, &domainerr.InternalStoreError{Context: "wal open", Err: err}
	}
	return &WAL{db: db}, nil
}

func (w *WAL) Close() error { return w.db.Close() }

// Entry pairs a chain point with its WAL value for AppendEntries/iteration.
type Entry struct {
	Point ChainPointKey
	Value LogValue
}

// ChainPointKey is re-exported as a thin alias so callers don't need to
// import chain directly for the common case.
type ChainPointKey = chain.ChainPoint

// AppendEntries writes entries and fsyncs before returning — "every
// append_entries must be fsynced before downstream commits treat the
// point as persisted" (spec.md §4.9.1).
func (w *WAL) AppendEntries(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := w.db.NewBatch()
	defer batch.Close()
	for _, e := range entries {
		val, err := json.Marshal(e.Value)
		if err != nil {
			return &domainerr.DecodingError{Context: "wal entry", Err: err}
		}
		if err := batch.Set(e.Point.Bytes(), val, nil); err != nil {
			return &domainerr.InternalStoreError{Context: "wal append", Err: err}
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return &domainerr.InternalStoreError{Context: "wal fsync", Err: err}
	}
	return nil
}

// ReadEntry fetches the log value for an exact chain point.
func (w *WAL) ReadEntry(p chain.ChainPoint) (LogValue, bool, error) {
	v, closer, err := w.db.Get(p.Bytes())
	if err == pebble.ErrNotFound {
		return LogValue{}, false, nil
	}
	if err != nil {
		return LogValue{}, false, &domainerr.InternalStoreError{Context: "wal read", Err: err}
	}
	defer closer.Close()
	var lv LogValue
	if err := json.Unmarshal(v, &lv); err != nil {
		return LogValue{}, false, &domainerr.DecodingError{Context: "wal entry", Err: err}
	}
	return lv, true, nil
}

// IterLogs scans [start, end] in ascending chain-point order.
func (w *WAL) IterLogs(start, end chain.ChainPoint) ([]Entry, error) {
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: start.Bytes(),
	})
	if err != nil {
		return nil, &domainerr.InternalStoreError{Context: "wal iter", Err: err}
	}
	defer iter.Close()

	var out []Entry
	endBytes := end.Bytes()
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if string(key) > string(endBytes) && !end.IsOrigin() {
			break
		}
		p, err := chain.ChainPointFromBytes(key)
		if err != nil {
			return nil, &domainerr.DecodingError{Context: "wal key", Err: err}
		}
		var lv LogValue
		if err := json.Unmarshal(iter.Value(), &lv); err != nil {
			return nil, &domainerr.DecodingError{Context: "wal entry", Err: err}
		}
		out = append(out, Entry{Point: p, Value: lv})
	}
	return out, nil
}

// IterBlocks is IterLogs projected onto just the raw block bytes, for
// commit_archive recovery (spec.md §4.2 phase 4 recovery marker).
func (w *WAL) IterBlocks(start, end chain.ChainPoint) ([]struct {
	Point chain.ChainPoint
	Era   chain.EraTag
	Block []byte
}, error) {
	entries, err := w.IterLogs(start, end)
	if err != nil {
		return nil, err
	}
	out := make([]struct {
		Point chain.ChainPoint
		Era   chain.EraTag
		Block []byte
	}, len(entries))
	for i, e := range entries {
		out[i].Point = e.Point
		out[i].Era = e.Value.RawEra
		out[i].Block = e.Value.RawBlock
	}
	return out, nil
}

// RemoveEntries cuts every entry after `after`; the entry at `after`
// itself stays. Used by rollback (spec.md §4.10 step 3).
func (w *WAL) RemoveEntries(after chain.ChainPoint) error {
	iter, err := w.db.NewIter(&pebble.IterOptions{LowerBound: after.Bytes()})
	if err != nil {
		return &domainerr.InternalStoreError{Context: "wal remove iter", Err: err}
	}
	defer iter.Close()

	batch := w.db.NewBatch()
	defer batch.Close()
	removed := 0
	afterKey := after.Bytes()
	for iter.First(); iter.Valid(); iter.Next() {
		if string(iter.Key()) == string(afterKey) {
			continue
		}
		if err := batch.Delete(iter.Key(), nil); err != nil {
			return &domainerr.InternalStoreError{Context: "wal remove", Err: err}
		}
		removed++
	}
	if removed == 0 {
		return nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return &domainerr.InternalStoreError{Context: "wal remove commit", Err: err}
	}
	log.Printf("[wal] removed %d entries after %s", removed, after)
	return nil
}

// PruneHistory drops the prefix older than maxSlots-back-from-tip,
// rate-limited by maxPrune entries per call; returns done=true once no
// further prunable entries remain (spec.md §4.9.1).
func (w *WAL) PruneHistory(tip chain.Slot, maxSlots uint64, maxPrune int) (done bool, err error) {
	if tip < chain.Slot(maxSlots) {
		return true, nil
	}
	cutoff := tip - chain.Slot(maxSlots)

	iter, iterErr := w.db.NewIter(&pebble.IterOptions{})
	if iterErr != nil {
		return false, &domainerr.InternalStoreError{Context: "wal prune iter", Err: iterErr}
	}
	defer iter.Close()

	batch := w.db.NewBatch()
	defer batch.Close()
	pruned := 0
	for iter.First(); iter.Valid(); iter.Next() {
		p, perr := chain.ChainPointFromBytes(iter.Key())
		if perr != nil {
			continue
		}
		if p.IsOrigin() || p.Slot >= cutoff {
			break
		}
		if maxPrune > 0 && pruned >= maxPrune {
			if err := batch.Commit(pebble.Sync); err != nil {
				return false, &domainerr.InternalStoreError{Context: "wal prune commit", Err: err}
			}
			return false, nil
		}
		if err := batch.Delete(iter.Key(), nil); err != nil {
			return false, &domainerr.InternalStoreError{Context: "wal prune", Err: err}
		}
		pruned++
	}
	if pruned == 0 {
		return true, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return false, &domainerr.InternalStoreError{Context: "wal prune commit", Err: err}
	}
	return true, nil
}

// LocatePoint finds the chain point at an exact slot, or the nearest
// point within an expanding window, used by rollback intersection
// (spec.md §4.9.1, §4.10 step 1).
func (w *WAL) LocatePoint(slot chain.Slot) (chain.ChainPoint, bool, error) {
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: slot.Bytes(),
	})
	if err != nil {
		return chain.ChainPoint{}, false, &domainerr.InternalStoreError{Context: "wal locate", Err: err}
	}
	defer iter.Close()
	if !iter.First() {
		return chain.ChainPoint{}, false, nil
	}
	p, perr := chain.ChainPointFromBytes(iter.Key())
	if perr != nil {
		return chain.ChainPoint{}, false, &domainerr.DecodingError{Context: "wal locate key", Err: perr}
	}
	return p, true, nil
}

// ResetTo clears the WAL and seeds it with an origin entry at point,
// used when bootstrapping from a snapshot rather than genesis.
func (w *WAL) ResetTo(point chain.ChainPoint) error {
	if err := w.db.DeleteRange([]byte{0}, []byte{0xff, 0xff, 0xff, 0xff}, pebble.Sync); err != nil {
		return &domainerr.InternalStoreError{Context: "wal reset", Err: err}
	}
	return w.AppendEntries([]Entry{{Point: point, Value: LogValue{}}})
}

// Cursor returns the most recently appended chain point.
func (w *WAL) Cursor() (chain.ChainPoint, error) {
	iter, err := w.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return chain.ChainPoint{}, &domainerr.InternalStoreError{Context: "wal cursor", Err: err}
	}
	defer iter.Close()
	if !iter.Last() {
		return chain.Origin, nil
	}
	return chain.ChainPointFromBytes(iter.Key())
}
