// Package statestore implements the StateStore contract from spec.md
// §4.9.2: a per-namespace ordered map EntityKey -> EntityValue with a
// persisted cursor and a typed read/write wrapper over entity's versioned
// codec. Modeled on the teacher's per-indexer store.go files (each a thin
// pebble wrapper keyed by string prefixes, e.g.
// indexers/pcx/indexers/utxos/store.go), generalized to a namespace byte
// prefix shared by every entity kind instead of one store per kind.
package statestore

import (
	"bytes"

	"github.com/cockroachdb/pebble/v2"
	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/domainerr"
	"github.com/containerman17/dolos-ledger/entity"
	"github.com/containerman17/dolos-ledger/storage/pebbleutil"
)

// StateStore is a pebble-backed, namespace-prefixed typed entity store.
type StateStore struct {
	db *pebble.DB
}

func Open(dir string, cacheMiB int) (*StateStore, error) {
	db, err := pebble.Open(dir, pebbleutil.Options("statestore", cacheMiB))
	if err != nil {
		return nil, &domainerr.InternalStoreError{Context: "statestore open", Err: err}
	}
	return &StateStore{db: db}, nil
}

func (s *StateStore) Close() error { return s.db.Close() }

func nsKey(ns chain.Namespace, key chain.EntityKey) []byte {
	b := make([]byte, 0, len(ns)+1+len(key))
	b = append(b, []byte(ns)...)
	b = append(b, ':')
	b = append(b, key...)
	return b
}

// ReadCursor returns the persisted chain point, or Origin if unset.
func (s *StateStore) ReadCursor() (chain.ChainPoint, error) {
	v, closer, err := s.db.Get(pebbleutil.CursorKey)
	if err == pebble.ErrNotFound {
		return chain.Origin, nil
	}
	if err != nil {
		return chain.ChainPoint{}, &domainerr.InternalStoreError{Context: "statestore cursor read", Err: err}
	}
	defer closer.Close()
	return chain.ChainPointFromBytes(v)
}

// SetCursor persists the cursor directly (non-transactional convenience;
// the commit protocol normally sets it via Writer.SetCursor instead).
func (s *StateStore) SetCursor(p chain.ChainPoint) error {
	if err := s.db.Set(pebbleutil.CursorKey, p.Bytes(), pebble.Sync); err != nil {
		return &domainerr.InternalStoreError{Context: "statestore cursor write", Err: err}
	}
	return nil
}

// ReadEntities fetches raw entity bytes for a set of keys in one namespace.
func (s *StateStore) ReadEntities(ns chain.Namespace, keys []chain.EntityKey) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, closer, err := s.db.Get(nsKey(ns, k))
		if err == pebble.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, &domainerr.InternalStoreError{Context: "statestore read", Err: err}
		}
		cp := make([]byte, len(v))
		copy(cp, v)
		closer.Close()
		out[string(k)] = cp
	}
	return out, nil
}

// IterEntities scans a namespace's key range [start, end).
func (s *StateStore) IterEntities(ns chain.Namespace, start, end chain.EntityKey) (map[string][]byte, error) {
	lower := nsKey(ns, start)
	var upper []byte
	if end != nil {
		upper = nsKey(ns, end)
	} else {
		upper = append(append([]byte{}, []byte(ns)...), ';') // ':' + 1
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, &domainerr.InternalStoreError{Context: "statestore iter", Err: err}
	}
	defer iter.Close()

	out := make(map[string][]byte)
	prefix := append(append([]byte{}, []byte(ns)...), ':')
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if !bytes.HasPrefix(key, prefix) {
			continue
		}
		entKey := append([]byte{}, key[len(prefix):]...)
		val := append([]byte{}, iter.Value()...)
		out[string(entKey)] = val
	}
	return out, nil
}

// WriteEntity writes raw encoded bytes for a single key (used internally
// by the typed helpers below and by Writer).
func (s *StateStore) WriteEntity(ns chain.Namespace, key chain.EntityKey, value []byte) error {
	if err := s.db.Set(nsKey(ns, key), value, pebble.Sync); err != nil {
		return &domainerr.InternalStoreError{Context: "statestore write", Err: err}
	}
	return nil
}

func (s *StateStore) DeleteEntity(ns chain.Namespace, key chain.EntityKey) error {
	if err := s.db.Delete(nsKey(ns, key), pebble.Sync); err != nil {
		return &domainerr.InternalStoreError{Context: "statestore delete", Err: err}
	}
	return nil
}

// Writer is a single-transaction batch writer: the StateStore's share of
// the multi-store commit protocol (spec.md §4.10).
type Writer struct {
	store *StateStore
	batch *pebble.Batch
}

func (s *StateStore) StartWriter() *Writer {
	return &Writer{store: s, batch: s.db.NewBatch()}
}

func (w *Writer) WriteEntity(ns chain.Namespace, key chain.EntityKey, value []byte) error {
	if err := w.batch.Set(nsKey(ns, key), value, nil); err != nil {
		return &domainerr.InternalStoreError{Context: "statestore batch write", Err: err}
	}
	return nil
}

func (w *Writer) WriteEntityBatch(ns chain.Namespace, values map[string][]byte) error {
	for k, v := range values {
		if err := w.batch.Set(nsKey(ns, chain.EntityKey(k)), v, nil); err != nil {
			return &domainerr.InternalStoreError{Context: "statestore batch write", Err: err}
		}
	}
	return nil
}

func (w *Writer) DeleteEntity(ns chain.Namespace, key chain.EntityKey) error {
	if err := w.batch.Delete(nsKey(ns, key), nil); err != nil {
		return &domainerr.InternalStoreError{Context: "statestore batch delete", Err: err}
	}
	return nil
}

func (w *Writer) SetCursor(p chain.ChainPoint) error {
	if err := w.batch.Set(pebbleutil.CursorKey, p.Bytes(), nil); err != nil {
		return &domainerr.InternalStoreError{Context: "statestore batch cursor", Err: err}
	}
	return nil
}

// Commit fsyncs the batch — StateStore is the first of the three stores
// committed within phase 3 (spec.md §4.10 step 2).
func (w *Writer) Commit() error {
	if err := w.batch.Commit(pebble.Sync); err != nil {
		return &domainerr.InternalStoreError{Context: "statestore commit", Err: err}
	}
	return nil
}

func (w *Writer) Close() error { return w.batch.Close() }

// --- Typed wrapper (entity.Encode/Decode round trip) ---

// ReadEntityTyped fetches and decodes a single entity, returning
// ok=false if absent.
func ReadEntityTyped[E entity.Entity](s *StateStore, ns chain.Namespace, key chain.EntityKey, out E) (bool, error) {
	m, err := s.ReadEntities(ns, []chain.EntityKey{key})
	if err != nil {
		return false, err
	}
	raw, ok := m[string(key)]
	if !ok {
		return false, nil
	}
	if err := entity.Decode(raw, out); err != nil {
		return false, &domainerr.DecodingError{Context: string(ns), Err: err}
	}
	return true, nil
}

// WriteEntityTyped encodes and writes a single entity through a Writer.
func WriteEntityTyped[E entity.Entity](w *Writer, ns chain.Namespace, key chain.EntityKey, v E) error {
	raw, err := entity.Encode(v)
	if err != nil {
		return &domainerr.DecodingError{Context: string(ns), Err: err}
	}
	return w.WriteEntity(ns, key, raw)
}
