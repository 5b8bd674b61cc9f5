// Package query is the thin, in-scope read-only facade SPEC_FULL.md
// §4.13 carries over from original_source/src/querydb/store.rs: the
// same "one handle, a handful of get_* lookups over block/tx/utxo/
// protocol-parameter tables" shape, rebuilt on top of this core's own
// five storage engines instead of a redb database. It is not the
// RPC/HTTP surface itself (spec.md §6.1's "query server" collaborator
// stays out of scope) — just the facade an HTTP layer, a CLI, or a test
// would call into.
package query

import (
	"fmt"

	"github.com/containerman17/dolos-ledger/boundary"
	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/entity"
	"github.com/containerman17/dolos-ledger/storage/archive"
	"github.com/containerman17/dolos-ledger/storage/indexstore"
	"github.com/containerman17/dolos-ledger/storage/statestore"
	"github.com/containerman17/dolos-ledger/storage/utxoset"
)

// Store is the read-only facade, backed directly by the same store
// handles commit.Coordinator writes through. It never opens a write
// batch on any of them.
type Store struct {
	state   *statestore.StateStore
	utxo    *utxoset.UtxoSet
	index   *indexstore.IndexStore
	archive *archive.Archive
}

func New(state *statestore.StateStore, utxo *utxoset.UtxoSet, index *indexstore.IndexStore, arc *archive.Archive) *Store {
	return &Store{state: state, utxo: utxo, index: index, archive: arc}
}

// Tip returns the StateStore's committed cursor — the same point
// commit.Coordinator.CommitState last wrote.
func (s *Store) Tip() (chain.ChainPoint, error) { return s.state.ReadCursor() }

// Account looks up one stake account's current decoded state.
func (s *Store) Account(cred entity.StakeCredential) (*entity.AccountState, bool, error) {
	raw, err := s.state.ReadEntities(chain.NamespaceAccount, []chain.EntityKey{chain.EntityKey(cred[:])})
	if err != nil {
		return nil, false, err
	}
	b, ok := raw[string(cred[:])]
	if !ok {
		return nil, false, nil
	}
	acc := &entity.AccountState{}
	if err := entity.Decode(b, acc); err != nil {
		return nil, false, fmt.Errorf("query: decode account: %w", err)
	}
	return acc, true, nil
}

// Pool looks up one stake pool's current decoded state.
func (s *Store) Pool(hash entity.PoolHash) (*entity.PoolState, bool, error) {
	raw, err := s.state.ReadEntities(chain.NamespacePool, []chain.EntityKey{chain.EntityKey(hash[:])})
	if err != nil {
		return nil, false, err
	}
	b, ok := raw[string(hash[:])]
	if !ok {
		return nil, false, nil
	}
	p := &entity.PoolState{}
	if err := entity.Decode(b, p); err != nil {
		return nil, false, fmt.Errorf("query: decode pool: %w", err)
	}
	return p, true, nil
}

// Proposals returns every proposal currently tracked, decoded. There is
// no per-ID point lookup exposed separately: spec.md's governance
// surface is small enough (a handful of live proposals at any time) that
// boundary.View's same whole-namespace read serves both the epoch
// boundary code and this facade.
func (s *Store) Proposals() (map[entity.ProposalID]*entity.ProposalState, error) {
	return boundary.NewView(s.state).Proposals()
}

// DReps returns every DRep currently tracked, decoded.
func (s *Store) DReps() (map[entity.DRep]*entity.DRepState, error) {
	return boundary.NewView(s.state).DReps()
}

// EpochState returns the current CURRENT singleton.
func (s *Store) EpochState() (*entity.EpochState, bool, error) {
	return boundary.NewView(s.state).EpochState()
}

// UTxOByRef looks up one unspent output by its reference. Ported from
// store.rs's UTXO_TABLE lookup.
func (s *Store) UTxOByRef(ref chain.TxoRef) (chain.EraCbor, bool, error) {
	out, err := s.utxo.GetSparse([]chain.TxoRef{ref})
	if err != nil {
		return chain.EraCbor{}, false, err
	}
	cbor, ok := out[ref]
	return cbor, ok, nil
}

// UTxOsByAddress lists every live output at a full address. Ported from
// store.rs's UTXO_BY_ADDR_INDEX multimap.
func (s *Store) UTxOsByAddress(addr []byte) ([]chain.TxoRef, error) {
	return s.utxo.IterByTag(utxoset.DimAddress, addr)
}

// UTxOsByPaymentPart lists every live output at a payment credential.
func (s *Store) UTxOsByPaymentPart(part []byte) ([]chain.TxoRef, error) {
	return s.utxo.IterByTag(utxoset.DimPayment, part)
}

// UTxOsByStakePart lists every live output delegated to a stake part.
func (s *Store) UTxOsByStakePart(part []byte) ([]chain.TxoRef, error) {
	return s.utxo.IterByTag(utxoset.DimStake, part)
}

// UTxOsByPolicy lists every live output holding an asset under policy.
// Ported from store.rs's UTXO_BY_POLICY_INDEX multimap.
func (s *Store) UTxOsByPolicy(policy []byte) ([]chain.TxoRef, error) {
	return s.utxo.IterByTag(utxoset.DimPolicy, policy)
}

// BlockBySlot, BlockByHash, BlockByNumber, and TxByHash are ported from
// store.rs's BLOCK_TABLE/BLOCK_BY_HASH_INDEX/TX_TABLE: point lookups
// into the Archive, resolved through the IndexStore's slot indices.
func (s *Store) BlockBySlot(slot chain.Slot) (archive.BlockBody, bool, error) {
	return s.archive.GetBlockBySlot(slot)
}

func (s *Store) BlockByHash(hash chain.BlockHash) (archive.BlockBody, bool, error) {
	return s.archive.GetBlockByHash(s.index, hash)
}

func (s *Store) BlockByNumber(number uint64) (archive.BlockBody, bool, error) {
	return s.archive.GetBlockByNumber(s.index, number)
}

func (s *Store) TxByHash(hash chain.TxHash) (archive.BlockBody, bool, error) {
	return s.archive.GetTx(s.index, hash)
}

// ArchiveTip returns the Archive's own notion of tip — the highest-slot block
// committed, independent of the StateStore cursor (useful for detecting
// a partially-reconciled startup state, spec.md §4.10).
func (s *Store) ArchiveTip() (archive.BlockBody, bool, error) { return s.archive.GetTip() }
