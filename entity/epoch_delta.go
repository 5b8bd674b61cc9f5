package entity

import (
	"fmt"

	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/epochvalue"
	"github.com/containerman17/dolos-ledger/pparams"
)

func epochKey() chain.EntityKey { return chain.EntityKey(epochStateKey) }

// EpochGatherDelta accumulates fees/deposits seen in a block into the
// current epoch's running totals (spec.md §4.5 pot accounting inputs).
type EpochGatherDelta struct {
	Fees     uint64
	Deposits uint64
}

func (d *EpochGatherDelta) Namespace() chain.Namespace { return chain.NamespaceEpoch }
func (d *EpochGatherDelta) Key() chain.EntityKey       { return epochKey() }

func (d *EpochGatherDelta) Apply(prev Entity) (Entity, error) {
	e, ok := prev.(*EpochState)
	if !ok || e == nil {
		return nil, fmt.Errorf("gather: no active epoch")
	}
	clone := *e
	clone.GatheredFees += d.Fees
	clone.GatheredDeposits += d.Deposits
	return &clone, nil
}

func (d *EpochGatherDelta) Undo(next Entity) (Entity, error) {
	e, ok := next.(*EpochState)
	if !ok || e == nil {
		return nil, fmt.Errorf("undo gather: no active epoch")
	}
	clone := *e
	clone.GatheredFees -= d.Fees
	clone.GatheredDeposits -= d.Deposits
	return &clone, nil
}

// EpochParamOverlayDelta merges an accepted update proposal into
// EpochState.PParamsUpdate (spec.md §4.7); ESTART's snapshot transition
// later makes it live.
type EpochParamOverlayDelta struct {
	Overlay     *pparams.Overlay
	prevUpdate  *pparams.Overlay
}

func (d *EpochParamOverlayDelta) Namespace() chain.Namespace { return chain.NamespaceEpoch }
func (d *EpochParamOverlayDelta) Key() chain.EntityKey       { return epochKey() }

func (d *EpochParamOverlayDelta) Apply(prev Entity) (Entity, error) {
	e, ok := prev.(*EpochState)
	if !ok || e == nil {
		return nil, fmt.Errorf("param overlay: no active epoch")
	}
	clone := *e
	d.prevUpdate = clone.PParamsUpdate
	merged := pparams.NewOverlay()
	if clone.PParamsUpdate != nil {
		pparams.Merge(merged, clone.PParamsUpdate)
	}
	pparams.Merge(merged, d.Overlay)
	clone.PParamsUpdate = merged
	return &clone, nil
}

func (d *EpochParamOverlayDelta) Undo(next Entity) (Entity, error) {
	e, ok := next.(*EpochState)
	if !ok || e == nil {
		return nil, fmt.Errorf("undo param overlay: no active epoch")
	}
	clone := *e
	clone.PParamsUpdate = d.prevUpdate
	return &clone, nil
}

// EpochWrapUpDelta performs the EWRAP snapshot transition on EpochState:
// PParams (set->live, marked = migrated/overlaid params) and Rolling
// (blocks_minted reset). See spec.md §4.5 step 5.
type EpochWrapUpDelta struct {
	NewMarkedParams  *pparams.ParamSet
	prevPParams      epochvalue.Snapshot[*pparams.ParamSet]
	prevRolling      epochvalue.Snapshot[RollingStats]
}

func (d *EpochWrapUpDelta) Namespace() chain.Namespace { return chain.NamespaceEpoch }
func (d *EpochWrapUpDelta) Key() chain.EntityKey       { return epochKey() }

func (d *EpochWrapUpDelta) Apply(prev Entity) (Entity, error) {
	e, ok := prev.(*EpochState)
	if !ok || e == nil {
		return nil, fmt.Errorf("wrap up: no active epoch")
	}
	clone := *e
	d.prevPParams = clone.PParams.Snapshot()
	d.prevRolling = clone.Rolling.Snapshot()
	clone.PParams.Transition()
	clone.PParams.Mark(d.NewMarkedParams)
	clone.Rolling.Transition()
	clone.Rolling.Mark(RollingStats{BlocksMinted: 0})
	return &clone, nil
}

func (d *EpochWrapUpDelta) Undo(next Entity) (Entity, error) {
	e, ok := next.(*EpochState)
	if !ok || e == nil {
		return nil, fmt.Errorf("undo wrap up: no active epoch")
	}
	clone := *e
	clone.PParams.Restore(d.prevPParams)
	clone.Rolling.Restore(d.prevRolling)
	return &clone, nil
}

// EpochStartDelta replaces the singleton EpochState with a fresh one for
// the new epoch (spec.md §4.6 ESTART). The entire prior value is the undo
// data.
type EpochStartDelta struct {
	Next *EpochState
	Prev *EpochState
}

func (d *EpochStartDelta) Namespace() chain.Namespace { return chain.NamespaceEpoch }
func (d *EpochStartDelta) Key() chain.EntityKey       { return epochKey() }

func (d *EpochStartDelta) Apply(prev Entity) (Entity, error) {
	if prev != nil {
		p, ok := prev.(*EpochState)
		if !ok {
			return nil, fmt.Errorf("epoch start: unexpected prior entity type %T", prev)
		}
		d.Prev = p
	}
	return d.Next, nil
}

func (d *EpochStartDelta) Undo(Entity) (Entity, error) {
	if d.Prev == nil {
		return nil, nil
	}
	return d.Prev, nil
}

// EpochSetIncentivesDelta stages RUPD's computed pot-expansion incentives
// onto EpochState.Incentives for EWRAP/ESTART to consume (spec.md §4.4
// step 4).
type EpochSetIncentivesDelta struct {
	Incentives  uint64
	prevValue   *uint64
}

func (d *EpochSetIncentivesDelta) Namespace() chain.Namespace { return chain.NamespaceEpoch }
func (d *EpochSetIncentivesDelta) Key() chain.EntityKey       { return epochKey() }

func (d *EpochSetIncentivesDelta) Apply(prev Entity) (Entity, error) {
	e, ok := prev.(*EpochState)
	if !ok || e == nil {
		return nil, fmt.Errorf("set incentives: no active epoch")
	}
	clone := *e
	d.prevValue = clone.Incentives
	v := d.Incentives
	clone.Incentives = &v
	return &clone, nil
}

func (d *EpochSetIncentivesDelta) Undo(next Entity) (Entity, error) {
	e, ok := next.(*EpochState)
	if !ok || e == nil {
		return nil, fmt.Errorf("undo set incentives: no active epoch")
	}
	clone := *e
	clone.Incentives = d.prevValue
	return &clone, nil
}

// EpochSetRewardsToTreasuryDelta stages EWRAP step 2's undistributed
// reward total for ESTART to fold into treasury' (spec.md §4.6 step 1).
type EpochSetRewardsToTreasuryDelta struct {
	Amount    uint64
	prevValue *uint64
}

func (d *EpochSetRewardsToTreasuryDelta) Namespace() chain.Namespace { return chain.NamespaceEpoch }
func (d *EpochSetRewardsToTreasuryDelta) Key() chain.EntityKey       { return epochKey() }

func (d *EpochSetRewardsToTreasuryDelta) Apply(prev Entity) (Entity, error) {
	e, ok := prev.(*EpochState)
	if !ok || e == nil {
		return nil, fmt.Errorf("set rewards to treasury: no active epoch")
	}
	clone := *e
	d.prevValue = clone.RewardsToTreasury
	v := d.Amount
	clone.RewardsToTreasury = &v
	return &clone, nil
}

func (d *EpochSetRewardsToTreasuryDelta) Undo(next Entity) (Entity, error) {
	e, ok := next.(*EpochState)
	if !ok || e == nil {
		return nil, fmt.Errorf("undo set rewards to treasury: no active epoch")
	}
	clone := *e
	clone.RewardsToTreasury = d.prevValue
	return &clone, nil
}

// PoolRollingIncrementDelta bumps EpochState.Rolling.Live.BlocksMinted by
// one per block applied, independent of the per-pool counter in
// pool_delta.go (the two serve different queries: chain-wide vs per-pool).
type PoolRollingIncrementDelta struct {
	prevRolling epochvalue.Snapshot[RollingStats]
}

func (d *PoolRollingIncrementDelta) Namespace() chain.Namespace { return chain.NamespaceEpoch }
func (d *PoolRollingIncrementDelta) Key() chain.EntityKey       { return epochKey() }

func (d *PoolRollingIncrementDelta) Apply(prev Entity) (Entity, error) {
	e, ok := prev.(*EpochState)
	if !ok || e == nil {
		return nil, fmt.Errorf("rolling increment: no active epoch")
	}
	clone := *e
	d.prevRolling = clone.Rolling.Snapshot()
	live := clone.Rolling.Live()
	live.BlocksMinted++
	clone.Rolling.MutateLive(func(RollingStats) RollingStats { return live })
	return &clone, nil
}

func (d *PoolRollingIncrementDelta) Undo(next Entity) (Entity, error) {
	e, ok := next.(*EpochState)
	if !ok || e == nil {
		return nil, fmt.Errorf("undo rolling increment: no active epoch")
	}
	clone := *e
	clone.Rolling.Restore(d.prevRolling)
	return &clone, nil
}
