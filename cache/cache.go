// Package cache implements the per-process Cache from spec.md §4.11: the
// active ChainSummary (era table) and stability window, refreshed after
// any work unit that can change era boundaries, plus the RewardMap held
// between RUPD and EWRAP. Grounded on the teacher's
// indexers/pcx/indexers/pending_rewards package — an in-memory,
// mutex-guarded cache keyed off the same "pending rewards between two
// phases" concept — generalized from a pebble-backed RPC response cache
// to a pure in-memory snapshot since spec.md requires RewardMap to be
// readable without I/O within a single work unit and persisted
// separately as PendingRewardState entities (§4.9, §9) rather than
// cached here for durability.
package cache

import (
	"sort"
	"sync"

	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/entity"
)

// ChainSummary is the ordered collection of EraSummaries defining
// slot<->epoch<->time mapping (spec.md glossary).
type ChainSummary struct {
	eras []entity.EraSummary // sorted by Start.Epoch ascending
}

func NewChainSummary(eras []entity.EraSummary) ChainSummary {
	sorted := append([]entity.EraSummary{}, eras...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Epoch < sorted[j].Start.Epoch })
	return ChainSummary{eras: sorted}
}

// EraAt returns the era covering slot, or ok=false if none does — spec.md
// invariant 5: "exactly one EraSummary covers s" for any reachable slot.
func (s ChainSummary) EraAt(slot chain.Slot) (entity.EraSummary, bool) {
	for i := len(s.eras) - 1; i >= 0; i-- {
		e := s.eras[i]
		if slot >= e.Start.Slot {
			if e.End == nil || slot < e.End.Slot {
				return e, true
			}
			return entity.EraSummary{}, false
		}
	}
	return entity.EraSummary{}, false
}

// EpochAt returns the epoch number containing slot.
func (s ChainSummary) EpochAt(slot chain.Slot) (uint64, bool) {
	era, ok := s.EraAt(slot)
	if !ok {
		return 0, false
	}
	elapsed := uint64(slot - era.Start.Slot)
	return era.Start.Epoch + elapsed/era.EpochLength, true
}

// EpochBounds returns the [startSlot, endSlot) range for an epoch number,
// using the era that contains it.
func (s ChainSummary) EpochBounds(epoch uint64) (start, end chain.Slot, ok bool) {
	for _, e := range s.eras {
		if epoch < e.Start.Epoch {
			continue
		}
		if e.End != nil && epoch >= e.End.Epoch {
			continue
		}
		offset := epoch - e.Start.Epoch
		s0 := uint64(e.Start.Slot) + offset*e.EpochLength
		return chain.Slot(s0), chain.Slot(s0 + e.EpochLength), true
	}
	return 0, 0, false
}

// Latest returns the highest-protocol era, used to pick the currently
// active parameter set's protocol major version.
func (s ChainSummary) Latest() (entity.EraSummary, bool) {
	if len(s.eras) == 0 {
		return entity.EraSummary{}, false
	}
	return s.eras[len(s.eras)-1], true
}

// Cache is the single per-process instance spec.md §4.11 describes.
// Mutated only by the core's single writer; readers call Snapshot for a
// point-in-time clone (spec.md §5 "the Cache is mutated only by the core
// writer; readers clone snapshots").
type Cache struct {
	mu              sync.RWMutex
	summary         ChainSummary
	stabilityWindow uint64
	rewardMap       map[entity.StakeCredential]entity.PendingRewardState
}

func New() *Cache {
	return &Cache{rewardMap: make(map[entity.StakeCredential]entity.PendingRewardState)}
}

// Refresh replaces the chain summary and stability window, called after
// genesis or any ESTART that crosses an era boundary.
func (c *Cache) Refresh(eras []entity.EraSummary, stabilityWindow uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary = NewChainSummary(eras)
	c.stabilityWindow = stabilityWindow
}

// Snapshot returns a read-only copy of the chain summary and stability
// window for concurrent readers.
func (c *Cache) Snapshot() (ChainSummary, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.summary, c.stabilityWindow
}

// SetRewardMap stores RUPD's computed reward map, to be consumed by the
// following EWRAP (spec.md §4.11). It is also persisted as
// PendingRewardState entities per spec.md §9's RUPD->EWRAP handoff note,
// so a crash between RUPD commit and EWRAP commit recovers from disk
// rather than from this in-memory copy.
func (c *Cache) SetRewardMap(m map[entity.StakeCredential]entity.PendingRewardState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rewardMap = m
}

// TakeRewardMap returns and clears the reward map, called once by EWRAP.
func (c *Cache) TakeRewardMap() map[entity.StakeCredential]entity.PendingRewardState {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.rewardMap
	c.rewardMap = make(map[entity.StakeCredential]entity.PendingRewardState)
	return m
}
