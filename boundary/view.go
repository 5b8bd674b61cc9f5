// Package boundary implements the three epoch-boundary phases from
// spec.md §4.4-§4.6: RUPD (reward computation), EWRAP (enactment,
// rewards, drops, refunds, wrap-up), and ESTART (pot roll-forward, new
// EpochState, era transition). Grounded on the teacher's
// indexers/pcx/indexers/pending_rewards package for the "stage now,
// apply on the next phase" shape, and on spec.md §9's explicit warning
// to never split a boundary's five EWRAP sub-steps across multiple
// storage transactions: each of RUPD/EWRAP/ESTART returns one flat
// []entity.Delta slice for the caller (workunit) to commit atomically.
package boundary

import (
	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/entity"
	"github.com/containerman17/dolos-ledger/storage/statestore"
)

// View is the read side boundary needs: every registered entity of a
// given namespace, decoded. Backed directly by StateStore.IterEntities,
// since boundary work units read the whole namespace rather than a
// handful of keys (unlike roll, which only touches entities named by the
// block it's replaying).
type View struct {
	store *statestore.StateStore
}

func NewView(store *statestore.StateStore) *View { return &View{store: store} }

func (v *View) Accounts() (map[entity.StakeCredential]*entity.AccountState, error) {
	raw, err := v.store.IterEntities(chain.NamespaceAccount, nil, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[entity.StakeCredential]*entity.AccountState, len(raw))
	for k, b := range raw {
		var cred entity.StakeCredential
		copy(cred[:], []byte(k))
		acc := &entity.AccountState{}
		if err := entity.Decode(b, acc); err != nil {
			return nil, err
		}
		out[cred] = acc
	}
	return out, nil
}

func (v *View) Pools() (map[entity.PoolHash]*entity.PoolState, error) {
	raw, err := v.store.IterEntities(chain.NamespacePool, nil, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[entity.PoolHash]*entity.PoolState, len(raw))
	for k, b := range raw {
		var hash entity.PoolHash
		copy(hash[:], []byte(k))
		p := &entity.PoolState{}
		if err := entity.Decode(b, p); err != nil {
			return nil, err
		}
		out[hash] = p
	}
	return out, nil
}

func (v *View) DReps() (map[entity.DRep]*entity.DRepState, error) {
	raw, err := v.store.IterEntities(chain.NamespaceDRep, nil, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[entity.DRep]*entity.DRepState, len(raw))
	for k, b := range raw {
		key := []byte(k)
		if len(key) != 29 {
			continue
		}
		drep := entity.DRep{Kind: entity.DRepKind(key[0])}
		copy(drep.Credential[:], key[1:])
		d := &entity.DRepState{}
		if err := entity.Decode(b, d); err != nil {
			return nil, err
		}
		out[drep] = d
	}
	return out, nil
}

func (v *View) Proposals() (map[entity.ProposalID]*entity.ProposalState, error) {
	raw, err := v.store.IterEntities(chain.NamespaceProposal, nil, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[entity.ProposalID]*entity.ProposalState, len(raw))
	for k, b := range raw {
		key := []byte(k)
		if len(key) != 36 {
			continue
		}
		var id entity.ProposalID
		copy(id.Tx[:], key[:32])
		id.Idx = uint32(key[32])<<24 | uint32(key[33])<<16 | uint32(key[34])<<8 | uint32(key[35])
		p := &entity.ProposalState{}
		if err := entity.Decode(b, p); err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, nil
}

func (v *View) PendingRewards() (map[entity.StakeCredential]*entity.PendingRewardState, error) {
	raw, err := v.store.IterEntities(chain.NamespacePendingReward, nil, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[entity.StakeCredential]*entity.PendingRewardState, len(raw))
	for k, b := range raw {
		var cred entity.StakeCredential
		copy(cred[:], []byte(k))
		p := &entity.PendingRewardState{}
		if err := entity.Decode(b, p); err != nil {
			return nil, err
		}
		out[cred] = p
	}
	return out, nil
}

func (v *View) EpochState() (*entity.EpochState, bool, error) {
	e := &entity.EpochState{}
	ok, err := statestore.ReadEntityTyped(v.store, chain.NamespaceEpoch, chain.EntityKey("CURRENT"), e)
	if err != nil || !ok {
		return nil, ok, err
	}
	return e, true, nil
}
