package entity

import (
	"fmt"

	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/pparams"
)

// ProposalNewDelta records a new governance proposal / legacy pparam
// update (spec.md §4.3 proposal visitor). MaxEpoch and the precomputed
// Ratified/Canceled epochs (from the historical oracle, §4.8) are set at
// construction time by the roll visitor.
type ProposalNewDelta struct {
	ID            ProposalID
	Action        GovAction
	Overlay       *pparams.Overlay
	Deposit       *uint64
	RewardAccount *StakeCredential
	MaxEpoch      *uint64
	RatifiedEpoch *uint64
	CanceledEpoch *uint64
}

func (d *ProposalNewDelta) Namespace() chain.Namespace { return chain.NamespaceProposal }
func (d *ProposalNewDelta) Key() chain.EntityKey       { return proposalKey(d.ID) }

func (d *ProposalNewDelta) Apply(prev Entity) (Entity, error) {
	if prev != nil {
		return nil, fmt.Errorf("new proposal: id %v already exists", d.ID)
	}
	return &ProposalState{
		Action:        d.Action,
		ParamOverlay:  d.Overlay,
		Deposit:       d.Deposit,
		RewardAccount: d.RewardAccount,
		MaxEpoch:      d.MaxEpoch,
		RatifiedEpoch: d.RatifiedEpoch,
		CanceledEpoch: d.CanceledEpoch,
	}, nil
}

func (d *ProposalNewDelta) Undo(Entity) (Entity, error) { return nil, nil }

// ProposalEnactDelta marks a ratified proposal enacted at EWRAP (spec.md
// §4.5 step 1).
type ProposalEnactDelta struct {
	ID           ProposalID
	EnactedEpoch uint64
	prevEnacted  *uint64
}

func (d *ProposalEnactDelta) Namespace() chain.Namespace { return chain.NamespaceProposal }
func (d *ProposalEnactDelta) Key() chain.EntityKey       { return proposalKey(d.ID) }

func (d *ProposalEnactDelta) Apply(prev Entity) (Entity, error) {
	p, ok := prev.(*ProposalState)
	if !ok || p == nil {
		return nil, fmt.Errorf("enact proposal: %v not found", d.ID)
	}
	clone := *p
	d.prevEnacted = clone.EnactedEpoch
	epoch := d.EnactedEpoch
	clone.EnactedEpoch = &epoch
	return &clone, nil
}

func (d *ProposalEnactDelta) Undo(next Entity) (Entity, error) {
	p, ok := next.(*ProposalState)
	if !ok || p == nil {
		return nil, fmt.Errorf("undo enact proposal: %v not found", d.ID)
	}
	clone := *p
	clone.EnactedEpoch = d.prevEnacted
	return &clone, nil
}

// ProposalCancelDelta is EWRAP step 3 (spec.md §4.5): cancel a proposal
// scheduled as Canceled(ending_epoch), or whose MaxEpoch < starting_epoch
// (expiry uses the same field, distinguished by Expired).
type ProposalCancelDelta struct {
	ID           ProposalID
	CanceledEpoch uint64
	Expired      bool
	prevCanceled *uint64
}

func (d *ProposalCancelDelta) Namespace() chain.Namespace { return chain.NamespaceProposal }
func (d *ProposalCancelDelta) Key() chain.EntityKey       { return proposalKey(d.ID) }

func (d *ProposalCancelDelta) Apply(prev Entity) (Entity, error) {
	p, ok := prev.(*ProposalState)
	if !ok || p == nil {
		return nil, fmt.Errorf("cancel proposal: %v not found", d.ID)
	}
	clone := *p
	d.prevCanceled = clone.CanceledEpoch
	epoch := d.CanceledEpoch
	clone.CanceledEpoch = &epoch
	return &clone, nil
}

func (d *ProposalCancelDelta) Undo(next Entity) (Entity, error) {
	p, ok := next.(*ProposalState)
	if !ok || p == nil {
		return nil, fmt.Errorf("undo cancel proposal: %v not found", d.ID)
	}
	clone := *p
	clone.CanceledEpoch = d.prevCanceled
	return &clone, nil
}
