package entity

import (
	"fmt"

	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/epochvalue"
)

// AccountRegisterDelta registers a stake credential at a slot. Undo deletes
// the account if it did not previously exist (existedMarker.existed).
type AccountRegisterDelta struct {
	Credential StakeCredential
	At         chain.Slot
	existedMarker
}

func (d *AccountRegisterDelta) Namespace() chain.Namespace { return chain.NamespaceAccount }
func (d *AccountRegisterDelta) Key() chain.EntityKey       { return accountKey(d.Credential) }

func (d *AccountRegisterDelta) Apply(prev Entity) (Entity, error) {
	d.existed = prev != nil
	if d.existed {
		// Re-registration of an already-registered credential is a no-op
		// on registration time; downstream certs still apply normally.
		return prev, nil
	}
	at := d.At
	return &AccountState{
		RegisteredAt: &at,
		ActivePool:   epochvalue.New[*PoolHash](nil),
		LatestDRep:   epochvalue.New[*DRep](nil),
		TotalStake:   epochvalue.New[uint64](0),
	}, nil
}

func (d *AccountRegisterDelta) Undo(next Entity) (Entity, error) {
	if !d.existed {
		return nil, nil
	}
	return next, nil
}

// AccountDeregisterDelta removes registration bookkeeping from an account
// without deleting accumulated reward history (the credential entity
// persists so historical queries keep working; only RegisteredAt clears).
type AccountDeregisterDelta struct {
	Credential StakeCredential
	prevAt     *chain.Slot
}

func (d *AccountDeregisterDelta) Namespace() chain.Namespace { return chain.NamespaceAccount }
func (d *AccountDeregisterDelta) Key() chain.EntityKey       { return accountKey(d.Credential) }

func (d *AccountDeregisterDelta) Apply(prev Entity) (Entity, error) {
	acc, ok := prev.(*AccountState)
	if !ok || acc == nil {
		return nil, fmt.Errorf("deregister: account %x not found", d.Credential)
	}
	d.prevAt = acc.RegisteredAt
	clone := *acc
	clone.RegisteredAt = nil
	return &clone, nil
}

func (d *AccountDeregisterDelta) Undo(next Entity) (Entity, error) {
	acc, ok := next.(*AccountState)
	if !ok || acc == nil {
		return nil, fmt.Errorf("undo deregister: account %x not found", d.Credential)
	}
	clone := *acc
	clone.RegisteredAt = d.prevAt
	return &clone, nil
}

// AccountDelegatePoolDelta stages a pool delegation into ActivePool.Set
// (it takes effect at the next EWRAP snapshot transition).
type AccountDelegatePoolDelta struct {
	Credential StakeCredential
	Pool       PoolHash
	prevSet    epochvalue.Snapshot[*PoolHash]
}

func (d *AccountDelegatePoolDelta) Namespace() chain.Namespace { return chain.NamespaceAccount }
func (d *AccountDelegatePoolDelta) Key() chain.EntityKey       { return accountKey(d.Credential) }

func (d *AccountDelegatePoolDelta) Apply(prev Entity) (Entity, error) {
	acc, ok := prev.(*AccountState)
	if !ok || acc == nil {
		return nil, fmt.Errorf("delegate pool: account %x not found", d.Credential)
	}
	clone := *acc
	d.prevSet = clone.ActivePool.Snapshot()
	pool := d.Pool
	clone.ActivePool.Replace(&pool)
	return &clone, nil
}

func (d *AccountDelegatePoolDelta) Undo(next Entity) (Entity, error) {
	acc, ok := next.(*AccountState)
	if !ok || acc == nil {
		return nil, fmt.Errorf("undo delegate pool: account %x not found", d.Credential)
	}
	clone := *acc
	clone.ActivePool.Restore(d.prevSet)
	return &clone, nil
}

// AccountDelegateDRepDelta stages a DRep delegation, mirroring
// AccountDelegatePoolDelta for governance delegation.
type AccountDelegateDRepDelta struct {
	Credential StakeCredential
	DRep       DRep
	prevSet    epochvalue.Snapshot[*DRep]
}

func (d *AccountDelegateDRepDelta) Namespace() chain.Namespace { return chain.NamespaceAccount }
func (d *AccountDelegateDRepDelta) Key() chain.EntityKey       { return accountKey(d.Credential) }

func (d *AccountDelegateDRepDelta) Apply(prev Entity) (Entity, error) {
	acc, ok := prev.(*AccountState)
	if !ok || acc == nil {
		return nil, fmt.Errorf("delegate drep: account %x not found", d.Credential)
	}
	clone := *acc
	d.prevSet = clone.LatestDRep.Snapshot()
	drep := d.DRep
	clone.LatestDRep.Replace(&drep)
	return &clone, nil
}

func (d *AccountDelegateDRepDelta) Undo(next Entity) (Entity, error) {
	acc, ok := next.(*AccountState)
	if !ok || acc == nil {
		return nil, fmt.Errorf("undo delegate drep: account %x not found", d.Credential)
	}
	clone := *acc
	clone.LatestDRep.Restore(d.prevSet)
	return &clone, nil
}

// AccountWithdrawDelta decrements the live rewards pot by amount, crediting
// it implicitly to a produced tx output (tracked by the UTxO visitor, not
// here).
type AccountWithdrawDelta struct {
	Credential StakeCredential
	Amount     uint64
}

func (d *AccountWithdrawDelta) Namespace() chain.Namespace { return chain.NamespaceAccount }
func (d *AccountWithdrawDelta) Key() chain.EntityKey       { return accountKey(d.Credential) }

func (d *AccountWithdrawDelta) Apply(prev Entity) (Entity, error) {
	acc, ok := prev.(*AccountState)
	if !ok || acc == nil {
		return nil, fmt.Errorf("withdraw: account %x not found", d.Credential)
	}
	if acc.RewardsSum < d.Amount {
		return nil, fmt.Errorf("withdraw: account %x insufficient rewards (%d < %d)", d.Credential, acc.RewardsSum, d.Amount)
	}
	clone := *acc
	clone.RewardsSum -= d.Amount
	clone.WithdrawalsSum += d.Amount
	return &clone, nil
}

func (d *AccountWithdrawDelta) Undo(next Entity) (Entity, error) {
	acc, ok := next.(*AccountState)
	if !ok || acc == nil {
		return nil, fmt.Errorf("undo withdraw: account %x not found", d.Credential)
	}
	clone := *acc
	clone.RewardsSum += d.Amount
	clone.WithdrawalsSum -= d.Amount
	return &clone, nil
}

// AccountCreditRewardDelta is EWRAP step 2 (spec.md §4.5): credits
// rewards_sum for a still-registered account. Applied before any deposit
// refund in the same EWRAP, per invariant 5.
type AccountCreditRewardDelta struct {
	Credential StakeCredential
	Amount     uint64
}

func (d *AccountCreditRewardDelta) Namespace() chain.Namespace { return chain.NamespaceAccount }
func (d *AccountCreditRewardDelta) Key() chain.EntityKey       { return accountKey(d.Credential) }

func (d *AccountCreditRewardDelta) Apply(prev Entity) (Entity, error) {
	acc, ok := prev.(*AccountState)
	if !ok || acc == nil {
		return nil, fmt.Errorf("credit reward: account %x not found", d.Credential)
	}
	clone := *acc
	clone.RewardsSum += d.Amount
	return &clone, nil
}

func (d *AccountCreditRewardDelta) Undo(next Entity) (Entity, error) {
	acc, ok := next.(*AccountState)
	if !ok || acc == nil {
		return nil, fmt.Errorf("undo credit reward: account %x not found", d.Credential)
	}
	clone := *acc
	clone.RewardsSum -= d.Amount
	return &clone, nil
}

// AccountStakeSnapshotDelta performs the EWRAP wrap-up transition on
// TotalStake: set->live, marked->set, and stages the freshly computed
// stake total as the new marked value (spec.md §4.5 step 5).
type AccountStakeSnapshotDelta struct {
	Credential  StakeCredential
	NewMarked   uint64
	prevStake   epochvalue.Snapshot[uint64]
	prevPool    epochvalue.Snapshot[*PoolHash]
	prevDRep    epochvalue.Snapshot[*DRep]
}

func (d *AccountStakeSnapshotDelta) Namespace() chain.Namespace { return chain.NamespaceAccount }
func (d *AccountStakeSnapshotDelta) Key() chain.EntityKey       { return accountKey(d.Credential) }

func (d *AccountStakeSnapshotDelta) Apply(prev Entity) (Entity, error) {
	acc, ok := prev.(*AccountState)
	if !ok || acc == nil {
		return nil, fmt.Errorf("stake snapshot: account %x not found", d.Credential)
	}
	clone := *acc
	d.prevStake = clone.TotalStake.Snapshot()
	d.prevPool = clone.ActivePool.Snapshot()
	d.prevDRep = clone.LatestDRep.Snapshot()
	clone.TotalStake.Transition()
	clone.TotalStake.Mark(d.NewMarked)
	clone.ActivePool.Transition()
	clone.ActivePool.Mark(clone.ActivePool.Set())
	clone.LatestDRep.Transition()
	clone.LatestDRep.Mark(clone.LatestDRep.Set())
	return &clone, nil
}

func (d *AccountStakeSnapshotDelta) Undo(next Entity) (Entity, error) {
	acc, ok := next.(*AccountState)
	if !ok || acc == nil {
		return nil, fmt.Errorf("undo stake snapshot: account %x not found", d.Credential)
	}
	clone := *acc
	clone.TotalStake.Restore(d.prevStake)
	clone.ActivePool.Restore(d.prevPool)
	clone.LatestDRep.Restore(d.prevDRep)
	return &clone, nil
}
