// Package mempool implements the Mempool collaborator contract from
// spec.md §6.1, fully realized per SPEC_FULL.md §4.13 rather than left
// as an external interface: receive/mark_inflight/mark_acknowledged/
// confirm/check_status plus the Finalized/Dropped consecutive-block
// policy. Grounded on original_source/crates/redb3/src/mempool.rs's
// table layout (PENDING/INFLIGHT/ACKNOWLEDGED keyed by tx hash, a
// broadcast event feed) and its companion tests/mempool.rs, which
// exercises a richer confirm() state machine than mempool.rs's own
// apply() implements — the fuller machine modeled here. redb itself is
// a Rust-only embedded store with no Go binding; cockroachdb/pebble/v2,
// this core's one storage engine (every storage/* package), replaces it
// directly, with the prefixed-key-as-table convention
// storage/utxoset/utxoset.go already establishes for pebble-as-multi-table.
package mempool

import (
	"encoding/binary"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/pebble/v2"
	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/collab"
	"github.com/containerman17/dolos-ledger/domainerr"
	"github.com/containerman17/dolos-ledger/storage/pebbleutil"
)

// Key prefixes, mirroring storage/utxoset.go's single-byte table tags.
const (
	prefixPendingPrimary = 'p' // 'p'+seq(8BE)+hash(32) -> payload, FIFO order
	prefixPendingIndex   = 'q' // 'q'+hash(32) -> seq(8BE), reverse lookup
	prefixActive         = 'a' // 'a'+hash(32) -> activeRecord (Propagated/Acknowledged/Confirmed)
	prefixFinalizedLog   = 'f' // 'f'+seq(8BE) -> finalizedRecord, append-only dump order
	prefixFinalizedIndex = 'g' // 'g'+hash(32) -> finalizedRecord, point lookup
	keyPendingSeq        = "\x01seq-pending"
	keyFinalizedSeq      = "\x01seq-finalized"
)

// activeRecord is the persisted shape of a tx no longer merely Pending:
// submitted for broadcast (mark_inflight) and, maybe, acknowledged by a
// peer (mark_acknowledged), tracked against the consecutive-block
// confirm/drop counters until it resolves to Finalized or Dropped.
type activeRecord struct {
	Payload          chain.EraCbor
	Acknowledged     bool
	Confirmations    uint32
	NonConfirmations uint32
}

func (r activeRecord) stage() collab.MempoolTxStage {
	switch {
	case r.Confirmations > 0:
		return collab.StageConfirmed
	case r.Acknowledged:
		return collab.StageAcknowledged
	default:
		return collab.StagePropagated
	}
}

// finalizedRecord is one entry in the append-only finalized/dropped log
// dump_finalized pages over.
type finalizedRecord struct {
	Hash    chain.TxHash
	Stage   collab.MempoolTxStage
	Payload chain.EraCbor
}

// Mempool is the pebble-backed store. Not safe for concurrent writers —
// Receive/MarkInflight/MarkAcknowledged/Confirm must be serialized by
// the caller, same single-writer discipline as every other store in
// this core (spec.md §5).
type Mempool struct {
	db *pebble.DB

	subsMu sync.Mutex
	subs   []subscriber
	subsID int
}

func Open(dir string, cacheMiB int) (*Mempool, error) {
	db, err := pebble.Open(dir, pebbleutil.Options("mempool", cacheMiB))
	if err != nil {
		return nil, &domainerr.InternalStoreError{Context: "mempool open", Err: err}
	}
	return &Mempool{db: db}, nil
}

func (m *Mempool) Close() error { return m.db.Close() }

func pendingPrimaryKey(seq uint64, hash chain.TxHash) []byte {
	b := make([]byte, 1+8+32)
	b[0] = prefixPendingPrimary
	binary.BigEndian.PutUint64(b[1:9], seq)
	copy(b[9:], hash[:])
	return b
}

func pendingIndexKey(hash chain.TxHash) []byte {
	b := make([]byte, 1+32)
	b[0] = prefixPendingIndex
	copy(b[1:], hash[:])
	return b
}

func activeKey(hash chain.TxHash) []byte {
	b := make([]byte, 1+32)
	b[0] = prefixActive
	copy(b[1:], hash[:])
	return b
}

func finalizedLogKey(seq uint64) []byte {
	b := make([]byte, 1+8)
	b[0] = prefixFinalizedLog
	binary.BigEndian.PutUint64(b[1:], seq)
	return b
}

func finalizedIndexKey(hash chain.TxHash) []byte {
	b := make([]byte, 1+32)
	b[0] = prefixFinalizedIndex
	copy(b[1:], hash[:])
	return b
}

func hashFromPendingPrimaryKey(key []byte) chain.TxHash {
	var h chain.TxHash
	copy(h[:], key[9:41])
	return h
}

// nextSeq is the SEQ_TABLE singleton counter, generalized to two
// independent counters (pending submission order, finalized dump order)
// since both tables need FIFO ordering but advance at different rates.
func (m *Mempool) nextSeq(batch *pebble.Batch, key string) (uint64, error) {
	v, closer, err := m.db.Get([]byte(key))
	var cur uint64
	if err == nil {
		cur = binary.BigEndian.Uint64(v)
		closer.Close()
	} else if err != pebble.ErrNotFound {
		return 0, &domainerr.InternalStoreError{Context: "mempool seq read", Err: err}
	}
	next := cur + 1
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)
	if err := batch.Set([]byte(key), buf[:], nil); err != nil {
		return 0, &domainerr.InternalStoreError{Context: "mempool seq write", Err: err}
	}
	return cur, nil
}

func encodeEraCbor(c chain.EraCbor) []byte {
	b := make([]byte, 1+len(c.Bytes))
	b[0] = byte(c.Era)
	copy(b[1:], c.Bytes)
	return b
}

func decodeEraCbor(b []byte) chain.EraCbor {
	return chain.EraCbor{Era: chain.EraTag(b[0]), Bytes: append([]byte{}, b[1:]...)}
}

// Receive admits a new tx into the mempool at Pending (spec.md §6.1's
// receive(tx)). The caller supplies a pre-validated collab.MempoolTx
// (typically the Validator collaborator's output); Mempool itself never
// validates.
func (m *Mempool) Receive(tx collab.MempoolTx) error {
	batch := m.db.NewBatch()
	defer batch.Close()

	seq, err := m.nextSeq(batch, keyPendingSeq)
	if err != nil {
		return err
	}
	if err := batch.Set(pendingPrimaryKey(seq, tx.Hash), encodeEraCbor(tx.Payload), nil); err != nil {
		return &domainerr.InternalStoreError{Context: "mempool receive", Err: err}
	}
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	if err := batch.Set(pendingIndexKey(tx.Hash), seqBuf[:], nil); err != nil {
		return &domainerr.InternalStoreError{Context: "mempool receive index", Err: err}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return &domainerr.InternalStoreError{Context: "mempool receive commit", Err: err}
	}
	m.publish(collab.MempoolEvent{Stage: collab.StagePending, Tx: tx})
	return nil
}

// HasPending reports whether any tx is waiting to be picked up for
// broadcast.
func (m *Mempool) HasPending() (bool, error) {
	iter, err := m.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefixPendingPrimary},
		UpperBound: []byte{prefixPendingPrimary + 1},
	})
	if err != nil {
		return false, &domainerr.InternalStoreError{Context: "mempool has_pending", Err: err}
	}
	defer iter.Close()
	return iter.First(), nil
}

// PeekPending returns up to limit Pending txs in FIFO submission order
// without removing them.
func (m *Mempool) PeekPending(limit int) ([]collab.MempoolTx, error) {
	iter, err := m.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefixPendingPrimary},
		UpperBound: []byte{prefixPendingPrimary + 1},
	})
	if err != nil {
		return nil, &domainerr.InternalStoreError{Context: "mempool peek_pending", Err: err}
	}
	defer iter.Close()

	capHint := limit
	if capHint < 0 {
		capHint = 0
	}
	out := make([]collab.MempoolTx, 0, capHint)
	for iter.First(); iter.Valid() && (limit < 0 || len(out) < limit); iter.Next() {
		hash := hashFromPendingPrimaryKey(iter.Key())
		out = append(out, collab.MempoolTx{Hash: hash, Payload: decodeEraCbor(iter.Value())})
	}
	return out, nil
}

// Pending returns every Pending tx, FIFO order (spec.md §6.1's pending()
// — mirrors original_source/crates/redb3/src/mempool.rs's unbounded
// scan; callers needing a cap should use PeekPending).
func (m *Mempool) Pending() ([]collab.MempoolTx, error) {
	return m.PeekPending(-1)
}

// MarkInflight moves each hash found in Pending to the active set as
// Propagated — submitted for broadcast, not yet acknowledged by a peer
// (spec.md §6.1's mark_inflight).
func (m *Mempool) MarkInflight(hashes []chain.TxHash) error {
	batch := m.db.NewBatch()
	defer batch.Close()

	var moved []collab.MempoolTx
	for _, hash := range hashes {
		v, closer, err := m.db.Get(pendingIndexKey(hash))
		if err == pebble.ErrNotFound {
			continue
		}
		if err != nil {
			return &domainerr.InternalStoreError{Context: "mempool mark_inflight lookup", Err: err}
		}
		seq := binary.BigEndian.Uint64(v)
		closer.Close()

		payloadRaw, payloadCloser, err := m.db.Get(pendingPrimaryKey(seq, hash))
		if err != nil {
			return &domainerr.InternalStoreError{Context: "mempool mark_inflight payload", Err: err}
		}
		payload := decodeEraCbor(payloadRaw)
		payloadCloser.Close()

		if err := batch.Delete(pendingPrimaryKey(seq, hash), nil); err != nil {
			return &domainerr.InternalStoreError{Context: "mempool mark_inflight delete", Err: err}
		}
		if err := batch.Delete(pendingIndexKey(hash), nil); err != nil {
			return &domainerr.InternalStoreError{Context: "mempool mark_inflight delete index", Err: err}
		}
		rec := activeRecord{Payload: payload}
		if err := m.putActive(batch, hash, rec); err != nil {
			return err
		}
		moved = append(moved, collab.MempoolTx{Hash: hash, Payload: payload})
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return &domainerr.InternalStoreError{Context: "mempool mark_inflight commit", Err: err}
	}
	for _, tx := range moved {
		m.publish(collab.MempoolEvent{Stage: collab.StagePropagated, Tx: tx})
	}
	return nil
}

// MarkAcknowledged flips the active record's Acknowledged bit for every
// hash currently Propagated (spec.md §6.1's mark_acknowledged). Hashes
// not currently active, or already past Propagated, are left untouched.
func (m *Mempool) MarkAcknowledged(hashes []chain.TxHash) error {
	batch := m.db.NewBatch()
	defer batch.Close()

	var moved []collab.MempoolTx
	for _, hash := range hashes {
		rec, ok, err := m.getActive(hash)
		if err != nil {
			return err
		}
		if !ok || rec.Acknowledged || rec.Confirmations > 0 {
			continue
		}
		rec.Acknowledged = true
		if err := m.putActive(batch, hash, rec); err != nil {
			return err
		}
		moved = append(moved, collab.MempoolTx{Hash: hash, Payload: rec.Payload})
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return &domainerr.InternalStoreError{Context: "mempool mark_acknowledged commit", Err: err}
	}
	for _, tx := range moved {
		m.publish(collab.MempoolEvent{Stage: collab.StageAcknowledged, Tx: tx})
	}
	return nil
}

// GetInflight returns a tx still in the strict Propagated window — in
// flight, not yet acknowledged or confirmed — mirroring the original
// INFLIGHT_TABLE's exact residency window (spec.md §6.1's get_inflight).
func (m *Mempool) GetInflight(hash chain.TxHash) (collab.MempoolTx, bool, error) {
	rec, ok, err := m.getActive(hash)
	if err != nil || !ok || rec.Acknowledged || rec.Confirmations > 0 {
		return collab.MempoolTx{}, false, err
	}
	return collab.MempoolTx{Hash: hash, Payload: rec.Payload}, true, nil
}

func (m *Mempool) getActive(hash chain.TxHash) (activeRecord, bool, error) {
	v, closer, err := m.db.Get(activeKey(hash))
	if err == pebble.ErrNotFound {
		return activeRecord{}, false, nil
	}
	if err != nil {
		return activeRecord{}, false, &domainerr.InternalStoreError{Context: "mempool active get", Err: err}
	}
	defer closer.Close()
	var rec activeRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return activeRecord{}, false, &domainerr.DecodingError{Context: "mempool active record", Err: err}
	}
	return rec, true, nil
}

func (m *Mempool) putActive(batch *pebble.Batch, hash chain.TxHash, rec activeRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return &domainerr.DecodingError{Context: "mempool active record", Err: err}
	}
	if err := batch.Set(activeKey(hash), raw, nil); err != nil {
		return &domainerr.InternalStoreError{Context: "mempool active set", Err: err}
	}
	return nil
}
