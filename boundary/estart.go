package boundary

import (
	"github.com/containerman17/dolos-ledger/cache"
	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/entity"
	"github.com/containerman17/dolos-ledger/epochvalue"
)

// ESTART opens the new epoch atomically with the first block of that
// epoch (spec.md §4.6). nextNumber is ending.Number+1; startingProtocol
// is the protocol major version carried by that first block; nextNonces
// is the epoch nonce for the new epoch, computed by workunit as
// sha256(ending nonce || nextNumber), starting from an all-zero seed
// when the ending epoch has no nonce (the Byron->Shelley transition); no
// Shelley genesis hash and no VRF output goes into it.
// summary/stabilityWindow come from the Cache (spec.md §4.11).
func ESTART(view *View, summary cache.ChainSummary, stabilityWindow uint64, activeProtocol, startingProtocol uint64, nextNumber uint64, nextNonces *[32]byte) ([]entity.Delta, error) {
	ending, ok, err := view.EpochState()
	if err != nil || !ok {
		return nil, err
	}

	var deltas []entity.Delta

	// Step 1: roll reserves'/treasury' forward. RUPD's incentives left
	// the reserves; EWRAP already moved any reward nobody could claim
	// (deregistered accounts) into RewardsToTreasury, so that is the
	// full "undistributed_rewards" term — RUPD always allocates the
	// entire AvailableRewards pot across PendingRewardState entries, so
	// there is no separate "unused_rewards" leftover beyond it.
	var incentives, rewardsToTreasury uint64
	if ending.Incentives != nil {
		incentives = *ending.Incentives
	}
	if ending.RewardsToTreasury != nil {
		rewardsToTreasury = *ending.RewardsToTreasury
	}
	pots := ending.InitialPots
	pots.Reserves -= incentives
	pots.Treasury += rewardsToTreasury + ending.GatheredDeposits

	// Step 2: fresh EpochState, pparams already migrated by EWRAP's
	// wrap-up (ending.PParams.Marked() is the migrated set EWRAP staged).
	next := &entity.EpochState{
		Number:      nextNumber,
		PParams:     epochvalue.New(ending.PParams.Marked()),
		Nonces:      nextNonces,
		InitialPots: pots,
		Rolling:     epochvalue.New(entity.RollingStats{}),
	}
	deltas = append(deltas, &entity.EpochStartDelta{Next: next})

	// Step 3: era transition.
	if startingProtocol != activeProtocol {
		if endingEra, ok := summary.Latest(); ok && endingEra.Protocol == activeProtocol {
			endSlot, _, boundsOK := summary.EpochBounds(nextNumber)
			if boundsOK {
				var endTime int64
				if endingEra.Start.Timestamp != 0 || endingEra.EpochLength != 0 {
					elapsedEpochs := nextNumber - endingEra.Start.Epoch
					endTime = endingEra.Start.Timestamp + int64(elapsedEpochs*endingEra.EpochLength*endingEra.SlotLength/1000)
				}
				deltas = append(deltas, &entity.EraSummaryCloseDelta{
					Protocol: activeProtocol,
					End: entity.EraBound{
						Epoch:     nextNumber,
						Slot:      endSlot,
						Timestamp: endTime,
					},
				})
			}
		}
		deltas = append(deltas, &entity.EraSummaryOpenDelta{
			Protocol: startingProtocol,
			Summary: entity.EraSummary{
				Protocol: startingProtocol,
				Start: entity.EraBound{
					Epoch: nextNumber,
				},
			},
		})
	}

	// Step 4: largest_stable_slot = epoch_first_slot(ending.number+2) -
	// stability_window, computed against the Cache snapshot taken before
	// this ESTART's EraSummary deltas commit. Nothing recomputes it after
	// they commit, so an era opened by this ESTART does not enter it.
	if start, _, boundsOK := summary.EpochBounds(nextNumber + 1); boundsOK {
		next.LargestStableSlot = start - chain.Slot(stabilityWindow)
	}

	return deltas, nil
}
