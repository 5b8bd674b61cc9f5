package entity

import (
	"fmt"

	"github.com/containerman17/dolos-ledger/chain"
)

// NewZero returns a freshly allocated, zero-valued entity for the given
// namespace, used by the generic apply/undo helpers below to decode raw
// StateStore bytes into the concrete type a Delta expects.
func NewZero(ns chain.Namespace) (Entity, error) {
	switch ns {
	case chain.NamespaceAccount:
		return &AccountState{}, nil
	case chain.NamespacePool:
		return &PoolState{}, nil
	case chain.NamespaceDRep:
		return &DRepState{}, nil
	case chain.NamespaceProposal:
		return &ProposalState{}, nil
	case chain.NamespaceEpoch:
		return &EpochState{}, nil
	case chain.NamespaceEraSummary:
		return &EraSummary{}, nil
	case chain.NamespaceAsset:
		return &AssetState{}, nil
	case chain.NamespacePendingReward:
		return &PendingRewardState{}, nil
	default:
		return nil, fmt.Errorf("registry: unknown namespace %q", ns)
	}
}

// DecodeNamespace decodes raw StateStore bytes into the concrete entity
// type for ns, or returns (nil, nil) if raw is empty (no prior value).
func DecodeNamespace(ns chain.Namespace, raw []byte) (Entity, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	zero, err := NewZero(ns)
	if err != nil {
		return nil, err
	}
	if err := Decode(raw, zero); err != nil {
		return nil, err
	}
	return zero, nil
}

// EncodeEntity is the non-generic counterpart to Encode, for callers that
// only hold an Entity interface value (e.g. the commit coordinator's
// generic apply/undo loop over mixed namespaces).
func EncodeEntity(e Entity) ([]byte, error) {
	if e == nil {
		return nil, nil
	}
	return Encode(e)
}

// ApplyDelta decodes prevRaw (if any) for d's namespace, applies d, and
// re-encodes the result. Returns nil bytes if the delta's Apply yields a
// nil entity (meaning: delete the key).
func ApplyDelta(prevRaw []byte, d Delta) ([]byte, error) {
	prev, err := DecodeNamespace(d.Namespace(), prevRaw)
	if err != nil {
		return nil, fmt.Errorf("apply %T: decode prev: %w", d, err)
	}
	next, err := d.Apply(prev)
	if err != nil {
		return nil, fmt.Errorf("apply %T: %w", d, err)
	}
	return EncodeEntity(next)
}

// UndoDelta is ApplyDelta's inverse: decodes nextRaw, calls Undo, and
// re-encodes the prior value (or returns nil bytes if the key should be
// deleted, i.e. the delta created it).
func UndoDelta(nextRaw []byte, d Delta) ([]byte, error) {
	next, err := DecodeNamespace(d.Namespace(), nextRaw)
	if err != nil {
		return nil, fmt.Errorf("undo %T: decode next: %w", d, err)
	}
	prev, err := d.Undo(next)
	if err != nil {
		return nil, fmt.Errorf("undo %T: %w", d, err)
	}
	return EncodeEntity(prev)
}
