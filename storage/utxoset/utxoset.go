// Package utxoset implements the UtxoSet contract from spec.md §4.9.3: an
// ordered map (TxHash, u32) -> (EraTag, bytes) plus five filter multimaps
// keyed by address, payment part, stake part, policy id, and
// policy||name. Modeled on the teacher's indexers/pcx/indexers/utxos
// store (a pebble table of outputs plus a secondary address index),
// generalized from one address dimension to five.
package utxoset

import (
	"bytes"

	"github.com/cockroachdb/pebble/v2"
	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/domainerr"
	"github.com/containerman17/dolos-ledger/storage/pebbleutil"
)

// Dimension names the five filter multimaps.
type Dimension string

const (
	DimAddress Dimension = "addr"
	DimPayment Dimension = "pay"
	DimStake   Dimension = "stake"
	DimPolicy  Dimension = "policy"
	DimAsset   Dimension = "asset" // policy||name
)

var dimensions = [...]Dimension{DimAddress, DimPayment, DimStake, DimPolicy, DimAsset}

// FilterKeys bundles the dimension keys derived from one output, supplied
// by the roll engine's UTxO visitor (which knows how to decompose an
// address into payment/stake parts and an output into its asset bag).
type FilterKeys struct {
	Address [][]byte
	Payment [][]byte
	Stake   [][]byte
	Policy  [][]byte
	Asset   [][]byte
}

func (f FilterKeys) forDim(d Dimension) [][]byte {
	switch d {
	case DimAddress:
		return f.Address
	case DimPayment:
		return f.Payment
	case DimStake:
		return f.Stake
	case DimPolicy:
		return f.Policy
	case DimAsset:
		return f.Asset
	default:
		return nil
	}
}

// Output pairs a TxoRef with its era-tagged body and the filter keys it
// should be indexed under when produced.
type Output struct {
	Ref     chain.TxoRef
	Body    chain.EraCbor
	Filters FilterKeys
}

// Delta is the apply/undo unit spec.md §4.9.3 names: produced ∪ recovered
// are inserted, consumed ∪ undone are deleted, all in one transaction
// together with their filter entries.
type Delta struct {
	Produced  []Output
	Recovered []Output
	Consumed  []chain.TxoRef
	Undone    []chain.TxoRef
	// consumedFilters/undoneFilters must be supplied by the caller since
	// the filter keys for an output being deleted aren't recoverable from
	// its bytes alone without re-decoding; roll fills them in for outputs
	// its own batch produced, and workunit.resolveConsumedFilters re-derives
	// the rest by decoding the stored output.
	ConsumedFilters map[chain.TxoRef]FilterKeys
	UndoneFilters   map[chain.TxoRef]FilterKeys
}

type UtxoSet struct {
	db *pebble.DB
}

func Open(dir string, cacheMiB int) (*UtxoSet, error) {
	db, err := pebble.Open(dir, pebbleutil.Options("utxoset", cacheMiB))
	if err != nil {
		return nil, &domainerr.InternalStoreError{Context: "utxoset open", Err: err}
	}
	return &UtxoSet{db: db}, nil
}

func (u *UtxoSet) Close() error { return u.db.Close() }

func utxoKey(ref chain.TxoRef) []byte {
	return append([]byte{'u'}, ref.Bytes()...)
}

func filterKey(d Dimension, tag []byte, ref chain.TxoRef) []byte {
	b := make([]byte, 0, 1+len(d)+1+len(tag)+1+36)
	b = append(b, 'f')
	b = append(b, []byte(d)...)
	b = append(b, ':')
	b = append(b, tag...)
	b = append(b, ':')
	b = append(b, ref.Bytes()...)
	return b
}

// GetSparse resolves a set of refs to their bodies, skipping any not found
// (the caller treats a missing ref among consumed inputs as an error at a
// higher layer — per spec.md this store itself returns only what exists).
func (u *UtxoSet) GetSparse(refs []chain.TxoRef) (map[chain.TxoRef]chain.EraCbor, error) {
	out := make(map[chain.TxoRef]chain.EraCbor, len(refs))
	for _, ref := range refs {
		v, closer, err := u.db.Get(utxoKey(ref))
		if err == pebble.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, &domainerr.InternalStoreError{Context: "utxoset get", Err: err}
		}
		body := append([]byte{}, v[1:]...)
		era := chain.EraTag(v[0])
		closer.Close()
		out[ref] = chain.EraCbor{Era: era, Bytes: body}
	}
	return out, nil
}

// Writer is the UtxoSet's share of the multi-store commit transaction,
// the second store committed within phase 3 (spec.md §4.10 step 2).
type Writer struct {
	batch *pebble.Batch
}

func (u *UtxoSet) StartWriter() *Writer { return &Writer{batch: u.db.NewBatch()} }

func encodeBody(c chain.EraCbor) []byte {
	b := make([]byte, 1+len(c.Bytes))
	b[0] = byte(c.Era)
	copy(b[1:], c.Bytes)
	return b
}

func (w *Writer) insertOutput(o Output) error {
	if err := w.batch.Set(utxoKey(o.Ref), encodeBody(o.Body), nil); err != nil {
		return &domainerr.InternalStoreError{Context: "utxoset insert", Err: err}
	}
	for _, d := range dimensions {
		for _, tag := range o.Filters.forDim(d) {
			if err := w.batch.Set(filterKey(d, tag, o.Ref), []byte{1}, nil); err != nil {
				return &domainerr.InternalStoreError{Context: "utxoset filter insert", Err: err}
			}
		}
	}
	return nil
}

func (w *Writer) deleteOutput(ref chain.TxoRef, filters FilterKeys) error {
	if err := w.batch.Delete(utxoKey(ref), nil); err != nil {
		return &domainerr.InternalStoreError{Context: "utxoset delete", Err: err}
	}
	for _, d := range dimensions {
		for _, tag := range filters.forDim(d) {
			if err := w.batch.Delete(filterKey(d, tag, ref), nil); err != nil {
				return &domainerr.InternalStoreError{Context: "utxoset filter delete", Err: err}
			}
		}
	}
	return nil
}

// Apply inserts produced ∪ recovered and deletes consumed ∪ undone, all
// within the same batch (spec.md §4.9.3 "filter updates are in the same
// transaction as the utxo table").
func (w *Writer) Apply(d Delta) error {
	for _, o := range d.Produced {
		if err := w.insertOutput(o); err != nil {
			return err
		}
	}
	for _, o := range d.Recovered {
		if err := w.insertOutput(o); err != nil {
			return err
		}
	}
	for _, ref := range d.Consumed {
		if err := w.deleteOutput(ref, d.ConsumedFilters[ref]); err != nil {
			return err
		}
	}
	for _, ref := range d.Undone {
		if err := w.deleteOutput(ref, d.UndoneFilters[ref]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) Commit() error {
	if err := w.batch.Commit(pebble.Sync); err != nil {
		return &domainerr.InternalStoreError{Context: "utxoset commit", Err: err}
	}
	return nil
}

func (w *Writer) Close() error { return w.batch.Close() }

// IterByTag scans every TxoRef under a dimension/tag, for query.Store's
// address/payment/stake/policy lookups (e.g. all UTxOs at a stake part).
func (u *UtxoSet) IterByTag(d Dimension, tag []byte) ([]chain.TxoRef, error) {
	prefix := filterKey(d, tag, chain.TxoRef{})
	prefix = prefix[:len(prefix)-36] // strip the zero ref suffix, keep the tag prefix
	upper := append(append([]byte{}, prefix...), 0xff)
	iter, err := u.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, &domainerr.InternalStoreError{Context: "utxoset iter", Err: err}
	}
	defer iter.Close()

	var out []chain.TxoRef
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if !bytes.HasPrefix(key, prefix) {
			continue
		}
		refBytes := key[len(key)-36:]
		var hash chain.TxHash
		copy(hash[:], refBytes[:32])
		idx := uint32(refBytes[32])<<24 | uint32(refBytes[33])<<16 | uint32(refBytes[34])<<8 | uint32(refBytes[35])
		out = append(out, chain.TxoRef{Hash: hash, Index: idx})
	}
	return out, nil
}
