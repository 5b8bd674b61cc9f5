package entity

import "github.com/containerman17/dolos-ledger/chain"

// PendingRewardSetDelta persists a RUPD-computed reward entry so a crash
// between the RUPD commit and the EWRAP commit recovers correctly
// (spec.md §9 "RUPD->EWRAP handoff"). Keyed by credential so EWRAP can
// iterate and consume them; RUPD is idempotent so re-running overwrites
// the same key with the same value.
type PendingRewardSetDelta struct {
	Credential StakeCredential
	Entry      PendingRewardState
	prevEntry  *PendingRewardState
}

func (d *PendingRewardSetDelta) Namespace() chain.Namespace { return chain.NamespacePendingReward }
func (d *PendingRewardSetDelta) Key() chain.EntityKey       { return accountKey(d.Credential) }

func (d *PendingRewardSetDelta) Apply(prev Entity) (Entity, error) {
	if p, ok := prev.(*PendingRewardState); ok && p != nil {
		cp := *p
		d.prevEntry = &cp
	}
	entry := d.Entry
	return &entry, nil
}

func (d *PendingRewardSetDelta) Undo(Entity) (Entity, error) {
	if d.prevEntry == nil {
		return nil, nil
	}
	return d.prevEntry, nil
}

// PendingRewardClearDelta removes a pending reward entry once EWRAP has
// consumed it.
type PendingRewardClearDelta struct {
	Credential StakeCredential
	prevEntry  *PendingRewardState
}

func (d *PendingRewardClearDelta) Namespace() chain.Namespace { return chain.NamespacePendingReward }
func (d *PendingRewardClearDelta) Key() chain.EntityKey       { return accountKey(d.Credential) }

func (d *PendingRewardClearDelta) Apply(prev Entity) (Entity, error) {
	if p, ok := prev.(*PendingRewardState); ok && p != nil {
		cp := *p
		d.prevEntry = &cp
	}
	return nil, nil
}

func (d *PendingRewardClearDelta) Undo(Entity) (Entity, error) {
	if d.prevEntry == nil {
		return nil, nil
	}
	return d.prevEntry, nil
}
