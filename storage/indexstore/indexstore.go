// Package indexstore implements the IndexStore contract from spec.md
// §4.9.4: ordered maps hash(key) -> Roaring<Slot> across the archive's tag
// dimensions (block hash/number, tx hash, address x3, asset, policy,
// datum, spent-txo, account-cert, metadata label, script). Roaring
// bitmaps are sourced from github.com/RoaringBitmap/roaring/v2 (seen in
// the AKJUS-bsc-erigon example's erigon-lib/kv/tables.go, which indexes
// block history the same way); the teacher itself has no bitmap index,
// so the pebble wrapping below follows the teacher's db.go conventions
// while the bitmap codec follows erigon-lib's usage of the library.
package indexstore

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cockroachdb/pebble/v2"
	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/domainerr"
	"github.com/containerman17/dolos-ledger/storage/pebbleutil"
)

// Dimension names one of the tag->slot indexes.
type Dimension string

const (
	DimBlockHash   Dimension = "blk_hash"   // point lookup
	DimBlockNumber Dimension = "blk_num"    // point lookup
	DimTxHash      Dimension = "tx_hash"    // point lookup
	DimAddress     Dimension = "addr"
	DimPayment     Dimension = "pay"
	DimStake       Dimension = "stake"
	DimAsset       Dimension = "asset"
	DimPolicy      Dimension = "policy"
	DimDatum       Dimension = "datum"
	DimSpentTxo    Dimension = "spent_txo"
	DimAccountCert Dimension = "acct_cert"
	DimMetaLabel   Dimension = "meta_label"
	DimScript      Dimension = "script"
)

// pointDimensions hold at most one slot per key and are stored directly as
// an 8-byte slot value rather than a bitmap, matching spec.md's "point
// lookups return the single slot" carve-out for block/tx hash dimensions.
var pointDimensions = map[Dimension]bool{
	DimBlockHash:   true,
	DimBlockNumber: true,
	DimTxHash:      true,
}

// Tag is one (dimension, key) pair to associate with a slot, emitted by
// the roll engine's archive/index tagging visitor.
type Tag struct {
	Dim Dimension
	Key []byte
}

type IndexStore struct {
	db *pebble.DB
}

func Open(dir string, cacheMiB int) (*IndexStore, error) {
	db, err := pebble.Open(dir, pebbleutil.Options("indexstore", cacheMiB))
	if err != nil {
		return nil, &domainerr.InternalStoreError{Context: "indexstore open", Err: err}
	}
	return &IndexStore{db: db}, nil
}

func (s *IndexStore) Close() error { return s.db.Close() }

func bitmapKey(dim Dimension, key []byte) []byte {
	b := make([]byte, 0, len(dim)+1+len(key))
	b = append(b, []byte(dim)...)
	b = append(b, ':')
	b = append(b, key...)
	return b
}

func (s *IndexStore) loadBitmap(key []byte) (*roaring.Bitmap, error) {
	v, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return roaring.New(), nil
	}
	if err != nil {
		return nil, &domainerr.InternalStoreError{Context: "indexstore bitmap read", Err: err}
	}
	defer closer.Close()
	bm := roaring.New()
	if _, err := bm.FromBuffer(v); err != nil {
		return nil, &domainerr.DecodingError{Context: "indexstore bitmap", Err: err}
	}
	return bm, nil
}

// Writer is the IndexStore's share of the multi-store commit transaction,
// the third store committed within phase 3 (spec.md §4.10 step 2).
type Writer struct {
	store   *IndexStore
	batch   *pebble.Batch
	touched map[string]*roaring.Bitmap
}

// StartWriter opens an indexed batch: bitmap reads inside AddSlot/RemoveSlot
// must see this writer's own uncommitted mutations (a block can tag the
// same key twice), which a plain write-only batch doesn't support.
func (s *IndexStore) StartWriter() *Writer {
	return &Writer{store: s, batch: s.db.NewIndexedBatch(), touched: make(map[string]*roaring.Bitmap)}
}

func (w *Writer) bitmapFor(dim Dimension, key []byte) (*roaring.Bitmap, []byte, error) {
	bk := bitmapKey(dim, key)
	if bm, ok := w.touched[string(bk)]; ok {
		return bm, bk, nil
	}
	v, closer, err := w.batch.Get(bk)
	var bm *roaring.Bitmap
	switch err {
	case pebble.ErrNotFound:
		bm = roaring.New()
	case nil:
		bm = roaring.New()
		if _, ferr := bm.FromBuffer(v); ferr != nil {
			closer.Close()
			return nil, nil, &domainerr.DecodingError{Context: "indexstore bitmap", Err: ferr}
		}
		closer.Close()
	default:
		return nil, nil, &domainerr.InternalStoreError{Context: "indexstore bitmap read", Err: err}
	}
	w.touched[string(bk)] = bm
	return bm, bk, nil
}

func (w *Writer) flushBitmap(bm *roaring.Bitmap, key []byte) error {
	buf, err := bm.ToBytes()
	if err != nil {
		return &domainerr.DecodingError{Context: "indexstore bitmap encode", Err: err}
	}
	if err := w.batch.Set(key, buf, nil); err != nil {
		return &domainerr.InternalStoreError{Context: "indexstore bitmap write", Err: err}
	}
	return nil
}

// AddSlot records slot under every tag, adding to the tag's bitmap (or
// overwriting the point value for point dimensions).
func (w *Writer) AddSlot(slot chain.Slot, tags []Tag) error {
	for _, t := range tags {
		if pointDimensions[t.Dim] {
			key := bitmapKey(t.Dim, t.Key)
			if err := w.batch.Set(key, slot.Bytes(), nil); err != nil {
				return &domainerr.InternalStoreError{Context: "indexstore point write", Err: err}
			}
			continue
		}
		bm, key, err := w.bitmapFor(t.Dim, t.Key)
		if err != nil {
			return err
		}
		bm.Add(uint32(slot))
		if err := w.flushBitmap(bm, key); err != nil {
			return err
		}
	}
	return nil
}

// RemoveSlot undoes AddSlot, clearing the bit (or deleting the point
// entry) for each tag — used by rollback.
func (w *Writer) RemoveSlot(slot chain.Slot, tags []Tag) error {
	for _, t := range tags {
		if pointDimensions[t.Dim] {
			key := bitmapKey(t.Dim, t.Key)
			if err := w.batch.Delete(key, nil); err != nil {
				return &domainerr.InternalStoreError{Context: "indexstore point delete", Err: err}
			}
			continue
		}
		bm, key, err := w.bitmapFor(t.Dim, t.Key)
		if err != nil {
			return err
		}
		bm.Remove(uint32(slot))
		if err := w.flushBitmap(bm, key); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) Commit() error {
	if err := w.batch.Commit(pebble.Sync); err != nil {
		return &domainerr.InternalStoreError{Context: "indexstore commit", Err: err}
	}
	return nil
}

func (w *Writer) Close() error { return w.batch.Close() }

// point looks up a single-slot dimension, returning ok=false if absent.
func (s *IndexStore) point(dim Dimension, key []byte) (chain.Slot, bool, error) {
	v, closer, err := s.db.Get(bitmapKey(dim, key))
	if err == pebble.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, &domainerr.InternalStoreError{Context: "indexstore point read", Err: err}
	}
	defer closer.Close()
	slot, ok := chain.SlotFromBytes(v)
	return slot, ok, nil
}

func (s *IndexStore) SlotByBlockHash(hash chain.BlockHash) (chain.Slot, bool, error) {
	return s.point(DimBlockHash, hash[:])
}

func (s *IndexStore) SlotByBlockNumber(n uint64) (chain.Slot, bool, error) {
	return s.point(DimBlockNumber, chain.Slot(n).Bytes())
}

func (s *IndexStore) SlotByTxHash(hash chain.TxHash) (chain.Slot, bool, error) {
	return s.point(DimTxHash, hash[:])
}

// SlotsByTag range-scans a tag's bitmap for slots in [start, end). False
// positives are permitted per spec.md §4.9.4; downstream filters by
// re-scanning the block.
func (s *IndexStore) SlotsByTag(dim Dimension, key []byte, start, end chain.Slot) ([]chain.Slot, error) {
	bm, err := s.loadBitmap(bitmapKey(dim, key))
	if err != nil {
		return nil, err
	}
	var out []chain.Slot
	it := bm.Iterator()
	for it.HasNext() {
		v := it.Next()
		if uint64(v) < uint64(start) {
			continue
		}
		if end != 0 && uint64(v) >= uint64(end) {
			break
		}
		out = append(out, chain.Slot(v))
	}
	return out, nil
}
