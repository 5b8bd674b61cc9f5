// Package entity defines the typed ledger entities (spec.md §3.2) and the
// EntityDelta capability (spec.md §9) that lets the StateStore writer apply
// and undo them without an open-ended type switch: every delta knows its
// own namespace, key, and how to turn a previous entity value into a next
// one and back.
package entity

import (
	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/epochvalue"
	"github.com/containerman17/dolos-ledger/pparams"
)

// Entity is the marker interface implemented by every stored entity type.
// The set is closed — see design note in spec.md §9 on dynamic dispatch.
type Entity interface {
	isEntity()
}

// PoolHash identifies a stake pool.
type PoolHash [28]byte

// DRep identifies a delegated representative: either a credential-backed
// DRep, or the two predefined always-abstain / always-no-confidence reps.
type DRep struct {
	Kind       DRepKind
	Credential [28]byte
}

type DRepKind uint8

const (
	DRepKindCredential DRepKind = iota
	DRepKindAlwaysAbstain
	DRepKindAlwaysNoConfidence
)

// StakeCredential is a 28-byte payment-agnostic stake credential.
type StakeCredential [28]byte

// AccountState is spec.md §3.2's per-stake-credential account record.
type AccountState struct {
	RegisteredAt  *chain.Slot
	ActivePool    epochvalue.Value[*PoolHash]
	LatestDRep    epochvalue.Value[*DRep]
	TotalStake    epochvalue.Value[uint64]
	RewardsSum    uint64
	WithdrawalsSum uint64
	ReservesSum   uint64
	TreasurySum   uint64
}

func (*AccountState) isEntity() {}

// PoolParams is the subset of stake pool registration parameters the core
// tracks (pledge/cost/margin drive reward math; the rest is opaque to the
// replay core and kept as raw bytes for API consumers).
type PoolParams struct {
	Operator  [28]byte
	Pledge    uint64
	Cost      uint64
	Margin    Rational
	RewardAcc StakeCredential
	Raw       []byte // full era-encoded params, opaque passthrough
}

// Rational is an exact numerator/denominator pair, used for margin and
// the monetary-expansion/treasury-tax protocol parameters.
type Rational struct {
	Num int64
	Den int64
}

func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// PoolSnapshot is the epoch-boundary view of a pool's lifecycle flags.
type PoolSnapshot struct {
	IsPending    bool
	IsRetired    bool
	BlocksMinted uint32
}

// PoolState is spec.md §3.2's per-pool record.
type PoolState struct {
	Operator      [28]byte
	RetiringEpoch *uint64
	Params        PoolParams
	ParamsUpdate  *PoolParams
	Snapshot      epochvalue.Value[PoolSnapshot]
}

func (*PoolState) isEntity() {}

// DRepState is spec.md §3.2's per-DRep record.
type DRepState struct {
	InitialSlot    *chain.Slot
	LastActiveSlot *chain.Slot
	UnregisteredAt *chain.Slot
	Expired        bool
	VotingPower    uint64
	Deposit        uint64
	// RetiringEpoch is the epoch EWRAP refunded this DRep's deposit in,
	// mirroring PoolState.RetiringEpoch's name. Unlike a pool's retiring
	// epoch (read straight off the retirement cert ahead of time), a DRep
	// deregistration cert carries no target epoch, so this is set by
	// EWRAP itself the first boundary it observes UnregisteredAt set and
	// RetiringEpoch still nil — nil means "deregistered but not yet
	// refunded", non-nil guards against refunding twice.
	RetiringEpoch *uint64
}

func (*DRepState) isEntity() {}

// ProposalID is tx_hash || output_index, per spec.md §3.2.
type ProposalID struct {
	Tx  chain.TxHash
	Idx uint32
}

// GovAction is the tag of a governance action / legacy pparam update.
type GovAction uint8

const (
	ActionParameterChange GovAction = iota
	ActionHardForkInitiation
	ActionTreasuryWithdrawal
	ActionNoConfidence
	ActionCommitteeUpdate
	ActionConstitution
	ActionInfo
)

// ProposalState is spec.md §3.2's per-proposal record.
type ProposalState struct {
	Action        GovAction
	ParamOverlay  *pparams.Overlay
	Deposit       *uint64
	RewardAccount *StakeCredential
	MaxEpoch      *uint64
	RatifiedEpoch *uint64
	CanceledEpoch *uint64
	EnactedEpoch  *uint64
}

func (*ProposalState) isEntity() {}

// Pots is the four scalar pot balances plus the deposit ledger, whose sum
// is invariant across epoch boundaries (spec.md invariant 6).
type Pots struct {
	Reserves      uint64
	Treasury      uint64
	Utxos         uint64
	Fees          uint64
	StakeDeposits uint64
	Rewards       uint64
}

// EpochState is the CURRENT singleton from spec.md §3.2.
type EpochState struct {
	Number             uint64
	PParams            epochvalue.Value[*pparams.ParamSet]
	PParamsUpdate      *pparams.Overlay
	Nonces             *[32]byte
	InitialPots        Pots
	Incentives         *uint64
	Rolling            epochvalue.Value[RollingStats]
	GatheredFees       uint64
	GatheredDeposits   uint64
	DecayedDeposits    uint64
	LargestStableSlot  chain.Slot
	RewardsToDistribute *uint64
	RewardsToTreasury   *uint64
}

func (*EpochState) isEntity() {}

// RollingStats is the EpochValue-wrapped per-epoch rolling counter set.
type RollingStats struct {
	BlocksMinted uint64
}

// EraSummary is spec.md §3.2's protocol-version-keyed era record. The
// collection of all EraSummary entities forms the ChainSummary used for
// slot<->epoch<->time math (spec.md §4.11).
type EraSummary struct {
	Protocol    uint64
	Start       EraBound
	End         *EraBound
	EpochLength uint64
	SlotLength  uint64 // milliseconds
}

func (*EraSummary) isEntity() {}

type EraBound struct {
	Epoch     uint64
	Slot      chain.Slot
	Timestamp int64 // unix seconds
}

// AssetState is spec.md §3.2's (policy||name)-keyed record.
type AssetState struct {
	Quantity     int64 // signed: mint positive, burn negative, net held here
	InitialTx    chain.TxHash
	InitialSlot  chain.Slot
	MintTxCount  uint64
}

func (*AssetState) isEntity() {}

// PendingRewardState carries a RUPD-computed reward entry into EWRAP
// (spec.md §4.4 step 4, §9 RUPD->EWRAP handoff).
type PendingRewardState struct {
	Credential StakeCredential
	Pool       PoolHash
	Amount     uint64
	AsLeader   bool
}

func (*PendingRewardState) isEntity() {}
