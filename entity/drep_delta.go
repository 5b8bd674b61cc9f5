package entity

import (
	"fmt"

	"github.com/containerman17/dolos-ledger/chain"
)

// DRepRegisterDelta registers a new DRep with a deposit (spec.md §4.3 DRep
// visitor).
type DRepRegisterDelta struct {
	DRep    DRep
	At      chain.Slot
	Deposit uint64
	existedMarker
	prevState *DRepState
}

func (d *DRepRegisterDelta) Namespace() chain.Namespace { return chain.NamespaceDRep }
func (d *DRepRegisterDelta) Key() chain.EntityKey       { return drepKey(d.DRep) }

func (d *DRepRegisterDelta) Apply(prev Entity) (Entity, error) {
	d.existed = prev != nil
	if p, ok := prev.(*DRepState); ok && p != nil {
		cp := *p
		d.prevState = &cp
	}
	at := d.At
	return &DRepState{
		InitialSlot:    &at,
		LastActiveSlot: &at,
		Deposit:        d.Deposit,
	}, nil
}

func (d *DRepRegisterDelta) Undo(next Entity) (Entity, error) {
	if d.existed {
		return d.prevState, nil
	}
	return nil, nil
}

// DRepUpdateDelta bumps last_active_slot on an update certificate.
type DRepUpdateDelta struct {
	DRep           DRep
	At             chain.Slot
	prevLastActive *chain.Slot
}

func (d *DRepUpdateDelta) Namespace() chain.Namespace { return chain.NamespaceDRep }
func (d *DRepUpdateDelta) Key() chain.EntityKey       { return drepKey(d.DRep) }

func (d *DRepUpdateDelta) Apply(prev Entity) (Entity, error) {
	drep, ok := prev.(*DRepState)
	if !ok || drep == nil {
		return nil, fmt.Errorf("update drep: not found")
	}
	clone := *drep
	d.prevLastActive = clone.LastActiveSlot
	at := d.At
	clone.LastActiveSlot = &at
	return &clone, nil
}

func (d *DRepUpdateDelta) Undo(next Entity) (Entity, error) {
	drep, ok := next.(*DRepState)
	if !ok || drep == nil {
		return nil, fmt.Errorf("undo update drep: not found")
	}
	clone := *drep
	clone.LastActiveSlot = d.prevLastActive
	return &clone, nil
}

// DRepDeregisterDelta records the deregistration slot.
type DRepDeregisterDelta struct {
	DRep             DRep
	At               chain.Slot
	prevUnregistered *chain.Slot
}

func (d *DRepDeregisterDelta) Namespace() chain.Namespace { return chain.NamespaceDRep }
func (d *DRepDeregisterDelta) Key() chain.EntityKey       { return drepKey(d.DRep) }

func (d *DRepDeregisterDelta) Apply(prev Entity) (Entity, error) {
	drep, ok := prev.(*DRepState)
	if !ok || drep == nil {
		return nil, fmt.Errorf("deregister drep: not found")
	}
	clone := *drep
	d.prevUnregistered = clone.UnregisteredAt
	at := d.At
	clone.UnregisteredAt = &at
	return &clone, nil
}

func (d *DRepDeregisterDelta) Undo(next Entity) (Entity, error) {
	drep, ok := next.(*DRepState)
	if !ok || drep == nil {
		return nil, fmt.Errorf("undo deregister drep: not found")
	}
	clone := *drep
	clone.UnregisteredAt = d.prevUnregistered
	return &clone, nil
}

// DRepRefundDelta records that EWRAP step 4 has refunded a deregistered
// DRep's deposit, stamping the epoch it happened in so the same DRep is
// never refunded twice (spec.md §4.5 step 4, mirroring PoolRetireDelta's
// RetiringEpoch shape).
type DRepRefundDelta struct {
	DRep  DRep
	Epoch uint64
}

func (d *DRepRefundDelta) Namespace() chain.Namespace { return chain.NamespaceDRep }
func (d *DRepRefundDelta) Key() chain.EntityKey       { return drepKey(d.DRep) }

func (d *DRepRefundDelta) Apply(prev Entity) (Entity, error) {
	drep, ok := prev.(*DRepState)
	if !ok || drep == nil {
		return nil, fmt.Errorf("refund drep: not found")
	}
	clone := *drep
	epoch := d.Epoch
	clone.RetiringEpoch = &epoch
	return &clone, nil
}

func (d *DRepRefundDelta) Undo(next Entity) (Entity, error) {
	drep, ok := next.(*DRepState)
	if !ok || drep == nil {
		return nil, fmt.Errorf("undo refund drep: not found")
	}
	clone := *drep
	clone.RetiringEpoch = nil
	return &clone, nil
}

// DRepExpireDelta marks a DRep expired after drep_inactivity_period epochs
// of no activity (spec.md §4.12 DRep lifecycle).
type DRepExpireDelta struct {
	DRep        DRep
	prevExpired bool
}

func (d *DRepExpireDelta) Namespace() chain.Namespace { return chain.NamespaceDRep }
func (d *DRepExpireDelta) Key() chain.EntityKey       { return drepKey(d.DRep) }

func (d *DRepExpireDelta) Apply(prev Entity) (Entity, error) {
	drep, ok := prev.(*DRepState)
	if !ok || drep == nil {
		return nil, fmt.Errorf("expire drep: not found")
	}
	clone := *drep
	d.prevExpired = clone.Expired
	clone.Expired = true
	return &clone, nil
}

func (d *DRepExpireDelta) Undo(next Entity) (Entity, error) {
	drep, ok := next.(*DRepState)
	if !ok || drep == nil {
		return nil, fmt.Errorf("undo expire drep: not found")
	}
	clone := *drep
	clone.Expired = d.prevExpired
	return &clone, nil
}
