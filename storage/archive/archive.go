// Package archive implements the Archive contract from spec.md §4.9.5:
// an ordered map Slot -> BlockBody, with lookups by hash/number/tx and
// history pruning. Block bodies are zstd-compressed individually, the
// same codec the teacher uses for its batch storage
// (ingestion/evm/rpc/storage/batch.go's CompressBlocks/DecompressBlocks),
// adapted here from whole-batch JSONL framing to a single raw CBOR block
// per key since the archive indexes by exact slot rather than block-range
// batches.
package archive

import (
	"bytes"

	"github.com/cockroachdb/pebble/v2"
	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/domainerr"
	"github.com/containerman17/dolos-ledger/storage/indexstore"
	"github.com/containerman17/dolos-ledger/storage/pebbleutil"
	"github.com/klauspost/compress/zstd"
)

// BlockBody is the raw era-tagged block bytes plus the point identifying it.
type BlockBody struct {
	Point chain.ChainPoint
	Era   chain.EraTag
	Raw   []byte
}

type Archive struct {
	db  *pebble.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func Open(dir string, cacheMiB int) (*Archive, error) {
	db, err := pebble.Open(dir, pebbleutil.Options("archive", cacheMiB))
	if err != nil {
		return nil, &domainerr.InternalStoreError{Context: "archive open", Err: err}
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, &domainerr.InternalStoreError{Context: "archive zstd writer", Err: err}
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, &domainerr.InternalStoreError{Context: "archive zstd reader", Err: err}
	}
	return &Archive{db: db, enc: enc, dec: dec}, nil
}

func (a *Archive) Close() error {
	a.enc.Close()
	a.dec.Close()
	return a.db.Close()
}

func blockKey(slot chain.Slot) []byte { return append([]byte{'b'}, slot.Bytes()...) }

func (a *Archive) encode(era chain.EraTag, raw []byte) []byte {
	plain := make([]byte, 1+len(raw))
	plain[0] = byte(era)
	copy(plain[1:], raw)
	return a.enc.EncodeAll(plain, nil)
}

func (a *Archive) decode(compressed []byte) (chain.EraTag, []byte, error) {
	plain, err := a.dec.DecodeAll(compressed, nil)
	if err != nil {
		return 0, nil, &domainerr.DecodingError{Context: "archive block", Err: err}
	}
	if len(plain) == 0 {
		return 0, nil, &domainerr.DecodingError{Context: "archive block", Err: bytes.ErrTooLarge}
	}
	return chain.EraTag(plain[0]), plain[1:], nil
}

// Writer is the archive's phase-4 writer: separate from the phase-3
// multi-store writer per spec.md §4.10, committed last and not required
// to be synchronous with state reads.
type Writer struct {
	archive *Archive
	batch   *pebble.Batch
}

func (a *Archive) StartWriter() *Writer { return &Writer{archive: a, batch: a.db.NewBatch()} }

func (w *Writer) PutBlock(body BlockBody) error {
	enc := w.archive.encode(body.Era, body.Raw)
	if err := w.batch.Set(blockKey(body.Point.Slot), enc, nil); err != nil {
		return &domainerr.InternalStoreError{Context: "archive put", Err: err}
	}
	return nil
}

func (w *Writer) Commit() error {
	if err := w.batch.Commit(pebble.Sync); err != nil {
		return &domainerr.InternalStoreError{Context: "archive commit", Err: err}
	}
	return nil
}

func (w *Writer) Close() error { return w.batch.Close() }

func (a *Archive) GetBlockBySlot(slot chain.Slot) (BlockBody, bool, error) {
	v, closer, err := a.db.Get(blockKey(slot))
	if err == pebble.ErrNotFound {
		return BlockBody{}, false, nil
	}
	if err != nil {
		return BlockBody{}, false, &domainerr.InternalStoreError{Context: "archive get", Err: err}
	}
	defer closer.Close()
	era, raw, derr := a.decode(v)
	if derr != nil {
		return BlockBody{}, false, derr
	}
	return BlockBody{Point: chain.NewChainPoint(slot, chain.BlockHash{}), Era: era, Raw: raw}, true, nil
}

// GetBlockByHash resolves via IndexStore's point block-hash dimension,
// then loads by slot (spec.md §4.9.5).
func (a *Archive) GetBlockByHash(idx *indexstore.IndexStore, hash chain.BlockHash) (BlockBody, bool, error) {
	slot, ok, err := idx.SlotByBlockHash(hash)
	if err != nil || !ok {
		return BlockBody{}, ok, err
	}
	body, ok, err := a.GetBlockBySlot(slot)
	if ok {
		body.Point.Hash = hash
	}
	return body, ok, err
}

func (a *Archive) GetBlockByNumber(idx *indexstore.IndexStore, number uint64) (BlockBody, bool, error) {
	slot, ok, err := idx.SlotByBlockNumber(number)
	if err != nil || !ok {
		return BlockBody{}, ok, err
	}
	return a.GetBlockBySlot(slot)
}

// GetTx resolves a transaction's era and raw bytes via IndexStore's
// point tx-hash dimension, returning the owning block for the caller to
// extract the indexed transaction from (spec.md stores transactions only
// inside their block body, not separately).
func (a *Archive) GetTx(idx *indexstore.IndexStore, hash chain.TxHash) (BlockBody, bool, error) {
	slot, ok, err := idx.SlotByTxHash(hash)
	if err != nil || !ok {
		return BlockBody{}, ok, err
	}
	return a.GetBlockBySlot(slot)
}

// GetTxBySpentTxo resolves the block that spent a given TxoRef, via the
// spent-txo tag dimension (range-scanned since it isn't a point index;
// false positives are filtered by the caller re-scanning the block body).
func (a *Archive) GetTxBySpentTxo(idx *indexstore.IndexStore, ref chain.TxoRef) ([]BlockBody, error) {
	slots, err := idx.SlotsByTag(indexstore.DimSpentTxo, ref.Bytes(), 0, 0)
	if err != nil {
		return nil, err
	}
	out := make([]BlockBody, 0, len(slots))
	for _, s := range slots {
		b, ok, err := a.GetBlockBySlot(s)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// GetRange returns every block body with slot in [start, end).
func (a *Archive) GetRange(start, end chain.Slot) ([]BlockBody, error) {
	lower := blockKey(start)
	upper := blockKey(end)
	iter, err := a.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, &domainerr.InternalStoreError{Context: "archive range", Err: err}
	}
	defer iter.Close()

	var out []BlockBody
	for iter.First(); iter.Valid(); iter.Next() {
		slot, ok := chain.SlotFromBytes(iter.Key()[1:])
		if !ok {
			continue
		}
		era, raw, derr := a.decode(iter.Value())
		if derr != nil {
			return nil, derr
		}
		out = append(out, BlockBody{Point: chain.NewChainPoint(slot, chain.BlockHash{}), Era: era, Raw: raw})
	}
	return out, nil
}

// GetTip returns the highest-slot block body, or ok=false if the archive
// is empty.
func (a *Archive) GetTip() (BlockBody, bool, error) {
	iter, err := a.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return BlockBody{}, false, &domainerr.InternalStoreError{Context: "archive tip", Err: err}
	}
	defer iter.Close()
	if !iter.Last() {
		return BlockBody{}, false, nil
	}
	slot, ok := chain.SlotFromBytes(iter.Key()[1:])
	if !ok {
		return BlockBody{}, false, nil
	}
	era, raw, derr := a.decode(iter.Value())
	if derr != nil {
		return BlockBody{}, false, derr
	}
	return BlockBody{Point: chain.NewChainPoint(slot, chain.BlockHash{}), Era: era, Raw: raw}, true, nil
}

// FindIntersect returns the first of the given points whose slot exists
// in the archive, most-recent first, used by rollback to locate where
// consensus and local state last agreed.
func (a *Archive) FindIntersect(points []chain.ChainPoint) (chain.ChainPoint, bool, error) {
	for _, p := range points {
		if p.IsOrigin() {
			return p, true, nil
		}
		_, ok, err := a.GetBlockBySlot(p.Slot)
		if err != nil {
			return chain.ChainPoint{}, false, err
		}
		if ok {
			return p, true, nil
		}
	}
	return chain.ChainPoint{}, false, nil
}

// PruneHistory drops block bodies older than tip-maxSlots, rate-limited
// by maxPrune per call, mirroring walstore.PruneHistory's contract.
func (a *Archive) PruneHistory(tip chain.Slot, maxSlots uint64, maxPrune int) (done bool, err error) {
	if tip < chain.Slot(maxSlots) {
		return true, nil
	}
	cutoff := tip - chain.Slot(maxSlots)

	iter, iterErr := a.db.NewIter(&pebble.IterOptions{})
	if iterErr != nil {
		return false, &domainerr.InternalStoreError{Context: "archive prune iter", Err: iterErr}
	}
	defer iter.Close()

	batch := a.db.NewBatch()
	defer batch.Close()
	pruned := 0
	for iter.First(); iter.Valid(); iter.Next() {
		slot, ok := chain.SlotFromBytes(iter.Key()[1:])
		if !ok || slot >= cutoff {
			break
		}
		if maxPrune > 0 && pruned >= maxPrune {
			if err := batch.Commit(pebble.Sync); err != nil {
				return false, &domainerr.InternalStoreError{Context: "archive prune commit", Err: err}
			}
			return false, nil
		}
		if err := batch.Delete(iter.Key(), nil); err != nil {
			return false, &domainerr.InternalStoreError{Context: "archive prune", Err: err}
		}
		pruned++
	}
	if pruned == 0 {
		return true, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return false, &domainerr.InternalStoreError{Context: "archive prune commit", Err: err}
	}
	return true, nil
}

// TruncateFront drops every block after `after`; the block at `after`
// itself stays. Used by rollback (spec.md §4.10 step 3).
func (a *Archive) TruncateFront(after chain.ChainPoint) error {
	lower := blockKey(after.Slot + 1)
	iter, err := a.db.NewIter(&pebble.IterOptions{LowerBound: lower})
	if err != nil {
		return &domainerr.InternalStoreError{Context: "archive truncate iter", Err: err}
	}
	defer iter.Close()

	batch := a.db.NewBatch()
	defer batch.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := batch.Delete(iter.Key(), nil); err != nil {
			return &domainerr.InternalStoreError{Context: "archive truncate", Err: err}
		}
	}
	return batch.Commit(pebble.Sync)
}
