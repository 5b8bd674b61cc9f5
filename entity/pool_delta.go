package entity

import (
	"fmt"

	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/epochvalue"
)

// PoolRegisterDelta registers a new pool, or queues a params update if the
// pool already exists (spec.md §4.3 pool visitor).
type PoolRegisterDelta struct {
	Pool      PoolHash
	Params    PoolParams
	existedMarker
	prevUpdate *PoolParams
}

func (d *PoolRegisterDelta) Namespace() chain.Namespace { return chain.NamespacePool }
func (d *PoolRegisterDelta) Key() chain.EntityKey       { return poolKey(d.Pool) }

func (d *PoolRegisterDelta) Apply(prev Entity) (Entity, error) {
	pool, ok := prev.(*PoolState)
	if !ok || pool == nil {
		d.existed = false
		return &PoolState{
			Operator: d.Params.Operator,
			Params:   d.Params,
			Snapshot: epochvalue.New(PoolSnapshot{IsPending: true}),
		}, nil
	}
	d.existed = true
	clone := *pool
	d.prevUpdate = clone.ParamsUpdate
	update := d.Params
	clone.ParamsUpdate = &update
	return &clone, nil
}

func (d *PoolRegisterDelta) Undo(next Entity) (Entity, error) {
	if !d.existed {
		return nil, nil
	}
	pool, ok := next.(*PoolState)
	if !ok || pool == nil {
		return nil, fmt.Errorf("undo pool register: pool %x not found", d.Pool)
	}
	clone := *pool
	clone.ParamsUpdate = d.prevUpdate
	return &clone, nil
}

// PoolRetireDelta records the epoch a pool is scheduled to retire.
type PoolRetireDelta struct {
	Pool          PoolHash
	RetiringEpoch uint64
	prevRetiring  *uint64
}

func (d *PoolRetireDelta) Namespace() chain.Namespace { return chain.NamespacePool }
func (d *PoolRetireDelta) Key() chain.EntityKey       { return poolKey(d.Pool) }

func (d *PoolRetireDelta) Apply(prev Entity) (Entity, error) {
	pool, ok := prev.(*PoolState)
	if !ok || pool == nil {
		return nil, fmt.Errorf("retire: pool %x not found", d.Pool)
	}
	clone := *pool
	d.prevRetiring = clone.RetiringEpoch
	epoch := d.RetiringEpoch
	clone.RetiringEpoch = &epoch
	return &clone, nil
}

func (d *PoolRetireDelta) Undo(next Entity) (Entity, error) {
	pool, ok := next.(*PoolState)
	if !ok || pool == nil {
		return nil, fmt.Errorf("undo retire: pool %x not found", d.Pool)
	}
	clone := *pool
	clone.RetiringEpoch = d.prevRetiring
	return &clone, nil
}

// PoolSnapshotTransitionDelta is the EWRAP wrap-up step for a pool
// (spec.md §4.5 step 5, §4.12): set->live, marked->set, and stages the
// next snapshot (is_pending=false, is_retired per should_retire,
// blocks_minted reset to 0).
type PoolSnapshotTransitionDelta struct {
	Pool          PoolHash
	ShouldRetire  bool
	prevSnapshot  epochvalue.Snapshot[PoolSnapshot]
	prevParams    PoolParams
	prevUpdate    *PoolParams
}

func (d *PoolSnapshotTransitionDelta) Namespace() chain.Namespace { return chain.NamespacePool }
func (d *PoolSnapshotTransitionDelta) Key() chain.EntityKey       { return poolKey(d.Pool) }

func (d *PoolSnapshotTransitionDelta) Apply(prev Entity) (Entity, error) {
	pool, ok := prev.(*PoolState)
	if !ok || pool == nil {
		return nil, fmt.Errorf("snapshot transition: pool %x not found", d.Pool)
	}
	clone := *pool
	d.prevSnapshot = clone.Snapshot.Snapshot()
	d.prevParams = clone.Params
	d.prevUpdate = clone.ParamsUpdate
	clone.Snapshot.Transition()
	clone.Snapshot.Mark(PoolSnapshot{IsPending: false, IsRetired: d.ShouldRetire, BlocksMinted: 0})
	if clone.ParamsUpdate != nil {
		clone.Params = *clone.ParamsUpdate
		clone.ParamsUpdate = nil
	}
	return &clone, nil
}

func (d *PoolSnapshotTransitionDelta) Undo(next Entity) (Entity, error) {
	pool, ok := next.(*PoolState)
	if !ok || pool == nil {
		return nil, fmt.Errorf("undo snapshot transition: pool %x not found", d.Pool)
	}
	clone := *pool
	clone.Snapshot.Restore(d.prevSnapshot)
	clone.Params = d.prevParams
	clone.ParamsUpdate = d.prevUpdate
	return &clone, nil
}

// PoolBlockMintedDelta increments the rolling blocks_minted counter on the
// pool that minted the current block (fed from EpochState.Rolling at the
// chain level, but tracked per-pool here for §8 testable property 6).
type PoolBlockMintedDelta struct {
	Pool         PoolHash
	prevSnapshot epochvalue.Snapshot[PoolSnapshot]
}

func (d *PoolBlockMintedDelta) Namespace() chain.Namespace { return chain.NamespacePool }
func (d *PoolBlockMintedDelta) Key() chain.EntityKey       { return poolKey(d.Pool) }

func (d *PoolBlockMintedDelta) Apply(prev Entity) (Entity, error) {
	pool, ok := prev.(*PoolState)
	if !ok || pool == nil {
		return nil, fmt.Errorf("block minted: pool %x not found", d.Pool)
	}
	clone := *pool
	d.prevSnapshot = clone.Snapshot.Snapshot()
	marked := clone.Snapshot.Marked()
	marked.BlocksMinted++
	clone.Snapshot.Mark(marked)
	return &clone, nil
}

func (d *PoolBlockMintedDelta) Undo(next Entity) (Entity, error) {
	pool, ok := next.(*PoolState)
	if !ok || pool == nil {
		return nil, fmt.Errorf("undo block minted: pool %x not found", d.Pool)
	}
	clone := *pool
	clone.Snapshot.Restore(d.prevSnapshot)
	return &clone, nil
}
