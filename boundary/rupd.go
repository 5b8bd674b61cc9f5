package boundary

import (
	"math"

	"github.com/containerman17/dolos-ledger/entity"
	"github.com/containerman17/dolos-ledger/pparams"
)

// StakeSnapshot is the RUPD step 1 output (spec.md §4.4): total stake, a
// per-pool breakdown, and each delegator's own stake and chosen pool.
type StakeSnapshot struct {
	TotalStake   uint64
	PerPool      map[entity.PoolHash]uint64
	PerDelegator map[entity.StakeCredential]DelegatorEntry
}

type DelegatorEntry struct {
	Stake uint64
	Pool  *entity.PoolHash
}

// SnapshotStake scans every AccountState, using total_stake.live combined
// with its currently-delegated pool, per spec.md §4.4 step 1.
func SnapshotStake(accounts map[entity.StakeCredential]*entity.AccountState) StakeSnapshot {
	snap := StakeSnapshot{
		PerPool:      make(map[entity.PoolHash]uint64),
		PerDelegator: make(map[entity.StakeCredential]DelegatorEntry),
	}
	for cred, acc := range accounts {
		if acc.RegisteredAt == nil {
			continue
		}
		stake := acc.TotalStake.Live()
		pool := acc.ActivePool.Live()
		snap.TotalStake += stake
		snap.PerDelegator[cred] = DelegatorEntry{Stake: stake, Pool: pool}
		if pool != nil {
			snap.PerPool[*pool] += stake
		}
	}
	return snap
}

// PotDelta is RUPD step 2's output, consumed by EWRAP (rewards pot) and
// ESTART (reserves'/treasury' roll-forward).
type PotDelta struct {
	Incentives        uint64
	RewardPot         uint64
	TreasuryTax       uint64
	AvailableRewards  uint64
}

// ComputePotDelta applies the monetary expansion (rho) and treasury tax
// (tau) parameters to the epoch's reserves, fees, and decayed deposits
// (spec.md §4.4 step 2).
func ComputePotDelta(pp *pparams.ParamSet, epoch *entity.EpochState) (PotDelta, error) {
	rho, err := pp.EnsureRational(pparams.ParamRho)
	if err != nil {
		return PotDelta{}, err
	}
	tau, err := pp.EnsureRational(pparams.ParamTau)
	if err != nil {
		return PotDelta{}, err
	}
	incentives := uint64(math.Floor(rho.Float() * float64(epoch.InitialPots.Reserves)))
	rewardPot := incentives + epoch.GatheredFees + epoch.DecayedDeposits
	treasuryTax := uint64(math.Floor(tau.Float() * float64(rewardPot)))
	return PotDelta{
		Incentives:       incentives,
		RewardPot:        rewardPot,
		TreasuryTax:      treasuryTax,
		AvailableRewards: rewardPot - treasuryTax,
	}, nil
}

// byronNeutralPotDelta is spec.md §4.4 step 5's special case: protocol <2
// produces a zero pot delta and zero effective rewards.
func byronNeutralPotDelta() PotDelta { return PotDelta{} }

// PoolReward is the Cardano reward-sharing-scheme split for one pool's
// epoch, spec.md §4.4 step 3.
type PoolReward struct {
	RPool          float64
	OperatorShare  uint64
	DelegatorShare map[entity.StakeCredential]uint64
}

// ComputePoolRewards runs the full per-pool formula for every pool with
// nonzero stake, and returns the flat PendingRewardState set RUPD
// persists (spec.md §4.4 step 3-4).
func ComputePoolRewards(snap StakeSnapshot, pools map[entity.PoolHash]*entity.PoolState, available PotDelta, pp *pparams.ParamSet) (map[entity.StakeCredential]entity.PendingRewardState, error) {
	result := make(map[entity.StakeCredential]entity.PendingRewardState)
	if snap.TotalStake == 0 || available.AvailableRewards == 0 {
		return result, nil
	}
	k, err := pp.EnsureUint64(pparams.ParamNOpt)
	if err != nil {
		return nil, err
	}
	a0, err := pp.EnsureRational(pparams.ParamA0)
	if err != nil {
		return nil, err
	}
	z0 := 1.0 / float64(k)
	totalStake := float64(snap.TotalStake)
	R := float64(available.AvailableRewards)

	for hash, poolStake := range snap.PerPool {
		pool, ok := pools[hash]
		if !ok || pool.Snapshot.Live().IsRetired {
			continue
		}
		sigma := float64(poolStake) / totalStake
		pledge := float64(pool.Params.Pledge) / totalStake
		sigmaPrime := math.Min(sigma, z0)
		sPrime := math.Min(pledge, sigma)
		rPool := R * (sigmaPrime + sPrime*a0.Float()*(sigmaPrime-sigma))

		fixedCost := float64(pool.Params.Cost)
		margin := pool.Params.Margin.Float()
		surplus := math.Max(0, rPool-fixedCost)
		operatorShare := fixedCost + margin*surplus
		if rPool < fixedCost {
			operatorShare = rPool
		}
		remaining := rPool - operatorShare

		for cred, delegator := range snap.PerDelegator {
			if delegator.Pool == nil || *delegator.Pool != hash || poolStake == 0 {
				continue
			}
			share := uint64(remaining * float64(delegator.Stake) / float64(poolStake))
			if share == 0 {
				continue
			}
			entry := result[cred]
			entry.Credential = cred
			entry.Pool = hash
			entry.Amount += share
			result[cred] = entry
		}

		leaderCred := entity.StakeCredential(pool.Params.RewardAcc)
		entry := result[leaderCred]
		entry.Credential = leaderCred
		entry.Pool = hash
		entry.Amount += uint64(operatorShare)
		entry.AsLeader = true
		result[leaderCred] = entry
	}
	return result, nil
}

// RUPD runs the full rewards-update phase (spec.md §4.4) and returns the
// deltas to commit: one PendingRewardSetDelta per credential plus an
// EpochGatherDelta-free update of EpochState.Incentives. Byron (protocol
// <2) short-circuits to a neutral pot delta per step 5.
func RUPD(view *View, pp *pparams.ParamSet, protocolMajor uint64) ([]entity.Delta, error) {
	epoch, ok, err := view.EpochState()
	if err != nil || !ok {
		return nil, err
	}

	var delta PotDelta
	var rewards map[entity.StakeCredential]entity.PendingRewardState
	if protocolMajor < 2 {
		delta = byronNeutralPotDelta()
		rewards = make(map[entity.StakeCredential]entity.PendingRewardState)
	} else {
		accounts, err := view.Accounts()
		if err != nil {
			return nil, err
		}
		pools, err := view.Pools()
		if err != nil {
			return nil, err
		}
		snap := SnapshotStake(accounts)
		delta, err = ComputePotDelta(pp, epoch)
		if err != nil {
			return nil, err
		}
		rewards, err = ComputePoolRewards(snap, pools, delta, pp)
		if err != nil {
			return nil, err
		}
	}

	deltas := make([]entity.Delta, 0, len(rewards)+1)
	for cred, r := range rewards {
		deltas = append(deltas, &entity.PendingRewardSetDelta{Credential: cred, Entry: r})
	}
	deltas = append(deltas, &entity.EpochSetIncentivesDelta{Incentives: delta.Incentives})
	return deltas, nil
}
