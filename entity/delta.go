package entity

import "github.com/containerman17/dolos-ledger/chain"

// Delta is the EntityDelta capability from spec.md §9: a reversible,
// self-describing change to exactly one entity. Apply/Undo are pure and
// operate on the typed entity directly; the store writer is responsible
// for loading the "before" value, calling Apply, and persisting the
// result (and the inverse for rollback).
type Delta interface {
	Namespace() chain.Namespace
	Key() chain.EntityKey
	// Apply consumes prev (nil if the entity did not exist) and returns
	// the next value (nil meaning "delete the entity").
	Apply(prev Entity) (next Entity, err error)
	// Undo is the exact inverse of Apply: given the post-apply value (nil
	// if Apply deleted it), it reconstructs prev.
	Undo(next Entity) (prev Entity, err error)
}

// existedMarker distinguishes "entity did not exist" from "entity existed
// with zero value" in deltas that register a new entity, per spec.md §9's
// "marker that the entity did not exist".
type existedMarker struct {
	existed bool
}

func accountKey(c StakeCredential) chain.EntityKey { return chain.EntityKey(c[:]) }
func poolKey(h PoolHash) chain.EntityKey           { return chain.EntityKey(h[:]) }

func drepKey(d DRep) chain.EntityKey {
	k := make([]byte, 1+28)
	k[0] = byte(d.Kind)
	copy(k[1:], d.Credential[:])
	return k
}

func proposalKey(id ProposalID) chain.EntityKey {
	k := make([]byte, 32+4)
	copy(k, id.Tx[:])
	k[32] = byte(id.Idx >> 24)
	k[33] = byte(id.Idx >> 16)
	k[34] = byte(id.Idx >> 8)
	k[35] = byte(id.Idx)
	return k
}

func assetKey(policy [28]byte, name []byte) chain.EntityKey {
	k := make([]byte, 28+len(name))
	copy(k, policy[:])
	copy(k[28:], name)
	return k
}

const epochStateKey = "CURRENT"
