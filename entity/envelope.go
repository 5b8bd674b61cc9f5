package entity

import (
	"encoding/json"
	"fmt"
)

// Envelope is the WAL's on-disk representation of a Delta: a type tag plus
// its JSON-encoded fields (including whatever undo data the delta carries
// after Apply has run). The WAL never needs to know the closed set of
// delta types beyond this registry.
type Envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type deltaFactory func() Delta

var deltaRegistry = map[string]deltaFactory{
	"AccountRegister":       func() Delta { return &AccountRegisterDelta{} },
	"AccountDeregister":     func() Delta { return &AccountDeregisterDelta{} },
	"AccountDelegatePool":   func() Delta { return &AccountDelegatePoolDelta{} },
	"AccountDelegateDRep":   func() Delta { return &AccountDelegateDRepDelta{} },
	"AccountWithdraw":       func() Delta { return &AccountWithdrawDelta{} },
	"AccountCreditReward":   func() Delta { return &AccountCreditRewardDelta{} },
	"AccountStakeSnapshot":  func() Delta { return &AccountStakeSnapshotDelta{} },
	"PoolRegister":          func() Delta { return &PoolRegisterDelta{} },
	"PoolRetire":            func() Delta { return &PoolRetireDelta{} },
	"PoolSnapshotTransition": func() Delta { return &PoolSnapshotTransitionDelta{} },
	"PoolBlockMinted":       func() Delta { return &PoolBlockMintedDelta{} },
	"DRepRegister":          func() Delta { return &DRepRegisterDelta{} },
	"DRepUpdate":            func() Delta { return &DRepUpdateDelta{} },
	"DRepDeregister":        func() Delta { return &DRepDeregisterDelta{} },
	"DRepExpire":            func() Delta { return &DRepExpireDelta{} },
	"ProposalNew":           func() Delta { return &ProposalNewDelta{} },
	"ProposalEnact":         func() Delta { return &ProposalEnactDelta{} },
	"ProposalCancel":        func() Delta { return &ProposalCancelDelta{} },
	"AssetMint":             func() Delta { return &AssetMintDelta{} },
	"EpochGather":           func() Delta { return &EpochGatherDelta{} },
	"EpochParamOverlay":     func() Delta { return &EpochParamOverlayDelta{} },
	"EpochWrapUp":           func() Delta { return &EpochWrapUpDelta{} },
	"EpochStart":            func() Delta { return &EpochStartDelta{} },
	"EpochSetIncentives":    func() Delta { return &EpochSetIncentivesDelta{} },
	"EpochSetRewardsToTreasury": func() Delta { return &EpochSetRewardsToTreasuryDelta{} },
	"PoolRollingIncrement":  func() Delta { return &PoolRollingIncrementDelta{} },
	"EraSummaryOpen":        func() Delta { return &EraSummaryOpenDelta{} },
	"EraSummaryClose":       func() Delta { return &EraSummaryCloseDelta{} },
	"PendingRewardSet":      func() Delta { return &PendingRewardSetDelta{} },
	"PendingRewardClear":    func() Delta { return &PendingRewardClearDelta{} },
}

// kindOf returns the registry key for a concrete delta value via a type
// switch — the one place the closed set is enumerated by name, per the
// design note in spec.md §9 ("a switch on the variant ... replaces the
// source's trait-object indirection").
func kindOf(d Delta) (string, error) {
	switch d.(type) {
	case *AccountRegisterDelta:
		return "AccountRegister", nil
	case *AccountDeregisterDelta:
		return "AccountDeregister", nil
	case *AccountDelegatePoolDelta:
		return "AccountDelegatePool", nil
	case *AccountDelegateDRepDelta:
		return "AccountDelegateDRep", nil
	case *AccountWithdrawDelta:
		return "AccountWithdraw", nil
	case *AccountCreditRewardDelta:
		return "AccountCreditReward", nil
	case *AccountStakeSnapshotDelta:
		return "AccountStakeSnapshot", nil
	case *PoolRegisterDelta:
		return "PoolRegister", nil
	case *PoolRetireDelta:
		return "PoolRetire", nil
	case *PoolSnapshotTransitionDelta:
		return "PoolSnapshotTransition", nil
	case *PoolBlockMintedDelta:
		return "PoolBlockMinted", nil
	case *DRepRegisterDelta:
		return "DRepRegister", nil
	case *DRepUpdateDelta:
		return "DRepUpdate", nil
	case *DRepDeregisterDelta:
		return "DRepDeregister", nil
	case *DRepExpireDelta:
		return "DRepExpire", nil
	case *ProposalNewDelta:
		return "ProposalNew", nil
	case *ProposalEnactDelta:
		return "ProposalEnact", nil
	case *ProposalCancelDelta:
		return "ProposalCancel", nil
	case *AssetMintDelta:
		return "AssetMint", nil
	case *EpochGatherDelta:
		return "EpochGather", nil
	case *EpochParamOverlayDelta:
		return "EpochParamOverlay", nil
	case *EpochWrapUpDelta:
		return "EpochWrapUp", nil
	case *EpochStartDelta:
		return "EpochStart", nil
	case *EpochSetIncentivesDelta:
		return "EpochSetIncentives", nil
	case *EpochSetRewardsToTreasuryDelta:
		return "EpochSetRewardsToTreasury", nil
	case *PoolRollingIncrementDelta:
		return "PoolRollingIncrement", nil
	case *EraSummaryOpenDelta:
		return "EraSummaryOpen", nil
	case *EraSummaryCloseDelta:
		return "EraSummaryClose", nil
	case *PendingRewardSetDelta:
		return "PendingRewardSet", nil
	case *PendingRewardClearDelta:
		return "PendingRewardClear", nil
	default:
		return "", fmt.Errorf("envelope: unregistered delta type %T", d)
	}
}

// EncodeDelta wraps a delta in its envelope for WAL storage.
func EncodeDelta(d Delta) (Envelope, error) {
	kind, err := kindOf(d)
	if err != nil {
		return Envelope{}, err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return Envelope{}, fmt.Errorf("envelope: marshal %s: %w", kind, err)
	}
	return Envelope{Kind: kind, Data: data}, nil
}

// DecodeDelta reconstructs a delta from its envelope, including whatever
// undo data Apply had written into its fields before it was encoded.
func DecodeDelta(e Envelope) (Delta, error) {
	factory, ok := deltaRegistry[e.Kind]
	if !ok {
		return nil, fmt.Errorf("envelope: unknown delta kind %q", e.Kind)
	}
	d := factory()
	if err := json.Unmarshal(e.Data, d); err != nil {
		return nil, fmt.Errorf("envelope: unmarshal %s: %w", e.Kind, err)
	}
	return d, nil
}
