// Package chain defines the core identifiers shared by every store and
// work-unit phase: slots, block/tx hashes, chain points, and the
// big-endian key encodings the pebble-backed stores persist them as.
package chain

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Slot is a monotonically increasing block slot number.
type Slot uint64

// Bytes returns the big-endian encoding used in every store key.
func (s Slot) Bytes() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(s))
	return b
}

// SlotFromBytes decodes a big-endian slot key. Returns false if len(b) != 8.
func SlotFromBytes(b []byte) (Slot, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return Slot(binary.BigEndian.Uint64(b)), true
}

// BlockHash is a 32-byte opaque block identifier.
type BlockHash [32]byte

func (h BlockHash) String() string { return hex.EncodeToString(h[:]) }

func (h BlockHash) IsZero() bool { return h == BlockHash{} }

// TxHash is a 32-byte transaction identifier.
type TxHash [32]byte

func (h TxHash) String() string { return hex.EncodeToString(h[:]) }

// TxoRef identifies a transaction output by its producing tx and index.
type TxoRef struct {
	Hash  TxHash
	Index uint32
}

// Bytes encodes a TxoRef as hash||big-endian(index), the canonical UtxoSet key.
func (r TxoRef) Bytes() []byte {
	b := make([]byte, 36)
	copy(b, r.Hash[:])
	binary.BigEndian.PutUint32(b[32:], r.Index)
	return b
}

func (r TxoRef) String() string {
	return fmt.Sprintf("%s#%d", r.Hash, r.Index)
}

// ChainPoint is Origin, or a specific (slot, hash) pair. Origin sorts before
// every specific point; specific points are ordered by slot then hash.
type ChainPoint struct {
	origin bool
	Slot   Slot
	Hash   BlockHash
}

// Origin is the point before genesis.
var Origin = ChainPoint{origin: true}

// NewChainPoint constructs a specific chain point.
func NewChainPoint(slot Slot, hash BlockHash) ChainPoint {
	return ChainPoint{Slot: slot, Hash: hash}
}

func (p ChainPoint) IsOrigin() bool { return p.origin }

// Less implements the total order: slot then hash, with Origin first.
func (p ChainPoint) Less(other ChainPoint) bool {
	if p.origin != other.origin {
		return p.origin
	}
	if p.origin {
		return false
	}
	if p.Slot != other.Slot {
		return p.Slot < other.Slot
	}
	return bytes.Compare(p.Hash[:], other.Hash[:]) < 0
}

func (p ChainPoint) Equal(other ChainPoint) bool {
	return p.origin == other.origin && p.Slot == other.Slot && p.Hash == other.Hash
}

// Bytes encodes the point as a WAL/Archive key: a one-byte origin flag
// followed by big-endian slot and the raw hash. Origin always sorts first.
func (p ChainPoint) Bytes() []byte {
	if p.origin {
		return []byte{0}
	}
	b := make([]byte, 1+8+32)
	b[0] = 1
	binary.BigEndian.PutUint64(b[1:9], uint64(p.Slot))
	copy(b[9:], p.Hash[:])
	return b
}

// ChainPointFromBytes decodes a key produced by Bytes.
func ChainPointFromBytes(b []byte) (ChainPoint, error) {
	if len(b) == 0 {
		return ChainPoint{}, fmt.Errorf("empty chain point key")
	}
	if b[0] == 0 {
		return Origin, nil
	}
	if len(b) != 1+8+32 {
		return ChainPoint{}, fmt.Errorf("invalid chain point key length %d", len(b))
	}
	var h BlockHash
	copy(h[:], b[9:])
	return NewChainPoint(Slot(binary.BigEndian.Uint64(b[1:9])), h), nil
}

func (p ChainPoint) String() string {
	if p.origin {
		return "origin"
	}
	return fmt.Sprintf("%d@%s", p.Slot, p.Hash)
}

// EntityKey is an opaque per-namespace key.
type EntityKey []byte

// Namespace is a short string tag identifying an entity type.
type Namespace string

const (
	NamespaceAccount       Namespace = "account"
	NamespacePool          Namespace = "pool"
	NamespaceDRep          Namespace = "drep"
	NamespaceProposal      Namespace = "proposal"
	NamespaceEpoch         Namespace = "epoch"
	NamespaceAsset         Namespace = "asset"
	NamespaceEraSummary    Namespace = "era_summary"
	NamespacePendingReward Namespace = "pending_reward"
)

// EraTag identifies the Cardano era a piece of CBOR was encoded in.
type EraTag uint8

const (
	EraByron EraTag = iota
	EraShelley
	EraAllegra
	EraMary
	EraAlonzo
	EraBabbage
	EraConway
)

// EraCbor is a typed, era-tagged, opaque-to-the-core byte encoding of a
// ledger object. Only the block-decoder collaborator (§6.1) interprets it.
type EraCbor struct {
	Era   EraTag
	Bytes []byte
}
