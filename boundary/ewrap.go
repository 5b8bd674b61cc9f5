package boundary

import (
	"github.com/containerman17/dolos-ledger/entity"
	"github.com/containerman17/dolos-ledger/pparams"
)

// EWRAP runs the five fixed sub-steps of spec.md §4.5 in order and
// returns every delta to commit in one transaction — splitting this
// across multiple commits is exactly what spec.md §9 warns against.
// endingEpoch/startingEpoch are epoch numbers. The oracle lookup for
// legacy-update ratification already ran in roll's proposal visitor, so
// EWRAP only needs RatifiedEpoch/CanceledEpoch off the ProposalState.
func EWRAP(view *View, pp *pparams.ParamSet, endingEpoch, startingEpoch uint64) ([]entity.Delta, error) {
	var deltas []entity.Delta

	proposals, err := view.Proposals()
	if err != nil {
		return nil, err
	}
	pools, err := view.Pools()
	if err != nil {
		return nil, err
	}
	accounts, err := view.Accounts()
	if err != nil {
		return nil, err
	}
	dreps, err := view.DReps()
	if err != nil {
		return nil, err
	}

	// Step 1: enactment.
	var paramOverlay *pparams.Overlay
	for id, p := range proposals {
		if p.RatifiedEpoch == nil || *p.RatifiedEpoch != startingEpoch || p.EnactedEpoch != nil {
			continue
		}
		deltas = append(deltas, &entity.ProposalEnactDelta{ID: id, EnactedEpoch: startingEpoch})
		if p.Action == entity.ActionParameterChange && p.ParamOverlay != nil {
			if paramOverlay == nil {
				paramOverlay = pparams.NewOverlay()
			}
			pparams.Merge(paramOverlay, p.ParamOverlay)
		}
	}
	if paramOverlay != nil {
		deltas = append(deltas, &entity.EpochParamOverlayDelta{Overlay: paramOverlay})
	}

	// Step 2: rewards — credited before any refund in step 3/4, per
	// spec.md invariant 5.
	pending, err := view.PendingRewards()
	if err != nil {
		return nil, err
	}
	var rewardsToTreasury uint64
	for cred, r := range pending {
		acc, registered := accounts[cred]
		if !registered || acc.RegisteredAt == nil {
			rewardsToTreasury += r.Amount
			deltas = append(deltas, &entity.PendingRewardClearDelta{Credential: cred})
			continue
		}
		deltas = append(deltas, &entity.AccountCreditRewardDelta{Credential: cred, Amount: r.Amount})
		deltas = append(deltas, &entity.PendingRewardClearDelta{Credential: cred})
	}

	// Step 3: drops — cancel proposals scheduled Canceled(ending_epoch) or
	// expired (max_epoch < starting_epoch), refunding deposits.
	for id, p := range proposals {
		expired := p.MaxEpoch != nil && *p.MaxEpoch < startingEpoch
		canceledNow := p.CanceledEpoch != nil && *p.CanceledEpoch == endingEpoch
		if (!expired && !canceledNow) || p.EnactedEpoch != nil {
			continue
		}
		deltas = append(deltas, &entity.ProposalCancelDelta{ID: id, CanceledEpoch: endingEpoch, Expired: expired})
		if p.Deposit != nil && p.RewardAccount != nil {
			deltas = append(deltas, &entity.AccountCreditRewardDelta{Credential: *p.RewardAccount, Amount: *p.Deposit})
		}
	}

	// Step 4: refunds. Pools are keyed by the retirement cert's explicit
	// target epoch; DRep deregistration carries no such lookahead epoch,
	// so retiring_dreps here is every DRep that's deregistered
	// (UnregisteredAt set) and not yet refunded (RetiringEpoch nil) — the
	// very next EWRAP observes it and refunds once, stamping
	// RetiringEpoch so it never refunds twice.
	poolDeposit, err := pp.EnsureUint64("pool_deposit")
	if err != nil {
		return nil, err
	}
	for _, p := range pools {
		if p.RetiringEpoch == nil || *p.RetiringEpoch != endingEpoch {
			continue
		}
		cred := entity.StakeCredential(p.Params.RewardAcc)
		deltas = append(deltas, &entity.AccountCreditRewardDelta{Credential: cred, Amount: poolDeposit})
	}
	for drep, d := range dreps {
		if d.UnregisteredAt == nil || d.RetiringEpoch != nil || d.Deposit == 0 {
			continue
		}
		deltas = append(deltas, &entity.DRepRefundDelta{DRep: drep, Epoch: endingEpoch})
		// DRepState carries no separate refund address (spec.md §3.2); the
		// DRep's own credential is the only one available. If it isn't
		// also a registered stake account, there's nowhere to credit it —
		// same "no live account, redirect to treasury" fallback step 2
		// already applies to pending rewards.
		cred := entity.StakeCredential(drep.Credential)
		if acc, registered := accounts[cred]; registered && acc.RegisteredAt != nil {
			deltas = append(deltas, &entity.AccountCreditRewardDelta{Credential: cred, Amount: d.Deposit})
		} else {
			rewardsToTreasury += d.Deposit
		}
	}

	// Step 5: wrap-up — snapshot transition on every pool and account, plus
	// EpochState.{pparams, rolling}.
	for hash, p := range pools {
		shouldRetire := p.RetiringEpoch != nil && *p.RetiringEpoch <= startingEpoch
		deltas = append(deltas, &entity.PoolSnapshotTransitionDelta{Pool: hash, ShouldRetire: shouldRetire})
	}
	for cred, acc := range accounts {
		newMarked := acc.TotalStake.Set()
		deltas = append(deltas, &entity.AccountStakeSnapshotDelta{Credential: cred, NewMarked: newMarked})
	}

	epoch, ok, err := view.EpochState()
	if err != nil || !ok {
		return deltas, err
	}
	migrated := epoch.PParams.Set()
	if migrated != nil && epoch.PParamsUpdate != nil {
		merged := pparams.Apply(epoch.PParamsUpdate, migrated)
		migrated = merged
	}
	deltas = append(deltas, &entity.EpochWrapUpDelta{NewMarkedParams: migrated})
	deltas = append(deltas, &entity.EpochSetRewardsToTreasuryDelta{Amount: rewardsToTreasury})

	return deltas, nil
}
