// Package pparams implements the protocol parameter set (spec.md §3.2
// PParamsSet), the overlay type two update encodings decode into, and the
// pure hard-fork migration function (spec.md §4.7).
package pparams

import (
	"encoding/json"
	"fmt"
)

// MissingParamError is returned by EnsureX accessors, per spec.md §6.4.
type MissingParamError struct{ Name string }

func (e *MissingParamError) Error() string { return fmt.Sprintf("missing param: %s", e.Name) }

// Rational is an exact fraction, used by rate-like parameters.
type Rational struct {
	Num int64
	Den int64
}

// CostModel is a flat list of Plutus cost-model integers for one language.
type CostModel []int64

// ExUnitPrices is the execution-unit price pair for Plutus script fees.
type ExUnitPrices struct {
	MemPrice  Rational
	StepPrice Rational
}

// ExUnits bounds per-tx / per-block Plutus execution budgets.
type ExUnits struct {
	Mem  uint64
	Step uint64
}

// ParamSet is a sparse set of typed protocol parameter values, keyed by
// name. Unset parameters return ok=false from Get; EnsureX panics-free
// accessors return MissingParamError instead.
type ParamSet struct {
	values map[string]any
}

// NewParamSet returns an empty parameter set.
func NewParamSet() *ParamSet {
	return &ParamSet{values: make(map[string]any)}
}

// MarshalJSON exposes the otherwise-unexported value map so ParamSet
// round-trips through the entity codec (entity.Encode/Decode).
func (p *ParamSet) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	return json.Marshal(p.values)
}

func (p *ParamSet) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if p.values == nil {
		p.values = make(map[string]any)
	}
	return json.Unmarshal(b, &p.values)
}

// Clone returns a deep-enough copy for ESTART's "cloned pparams" step
// (spec.md §4.6 step 2): the top-level map is copied, value contents
// (cost models, rationals) are treated as immutable after being set.
func (p *ParamSet) Clone() *ParamSet {
	n := NewParamSet()
	for k, v := range p.values {
		n.values[k] = v
	}
	return n
}

func (p *ParamSet) Set(name string, v any) { p.values[name] = v }

func (p *ParamSet) Get(name string) (any, bool) {
	v, ok := p.values[name]
	return v, ok
}

func (p *ParamSet) ensure(name string) (any, error) {
	v, ok := p.values[name]
	if !ok {
		return nil, &MissingParamError{Name: name}
	}
	return v, nil
}

func (p *ParamSet) EnsureUint64(name string) (uint64, error) {
	v, err := p.ensure(name)
	if err != nil {
		return 0, err
	}
	u, ok := v.(uint64)
	if !ok {
		return 0, fmt.Errorf("param %s has wrong type %T", name, v)
	}
	return u, nil
}

func (p *ParamSet) EnsureRational(name string) (Rational, error) {
	v, err := p.ensure(name)
	if err != nil {
		return Rational{}, err
	}
	r, ok := v.(Rational)
	if !ok {
		return Rational{}, fmt.Errorf("param %s has wrong type %T", name, v)
	}
	return r, nil
}

// Well-known parameter names. Grouped by era for readability; the set
// itself is flat (no namespacing at runtime).
const (
	ParamMinFeeA                 = "min_fee_a"
	ParamMinFeeB                 = "min_fee_b"
	ParamMaxBlockBodySize        = "max_block_body_size"
	ParamMaxTxSize               = "max_tx_size"
	ParamMaxBlockHeaderSize      = "max_block_header_size"
	ParamKeyDeposit              = "key_deposit"
	ParamPoolDeposit             = "pool_deposit"
	ParamMaxEpoch                = "e_max"
	ParamNOpt                    = "n_opt"
	ParamA0                      = "a0"
	ParamRho                     = "rho" // monetary expansion
	ParamTau                     = "tau" // treasury tax
	ParamProtocolMajor           = "protocol_major"
	ParamProtocolMinor           = "protocol_minor"
	ParamMinPoolCost             = "min_pool_cost"
	ParamAdaPerUtxoByte          = "ada_per_utxo_byte"
	ParamCostModelsPlutusV1      = "cost_models_plutus_v1"
	ParamCostModelsPlutusV2      = "cost_models_plutus_v2"
	ParamCostModelsPlutusV3      = "cost_models_plutus_v3"
	ParamExUnitPrices            = "ex_unit_prices"
	ParamMaxTxExUnits            = "max_tx_ex_units"
	ParamMaxBlockExUnits         = "max_block_ex_units"
	ParamCollateralPercentage    = "collateral_percentage"
	ParamMaxCollateralInputs     = "max_collateral_inputs"
	ParamGovActionDeposit        = "gov_action_deposit"
	ParamDRepDeposit             = "drep_deposit"
	ParamDRepActivity            = "drep_activity" // drep_inactivity_period, in epochs
	ParamGovActionValidityPeriod = "gov_action_validity_period"
	ParamCommitteeMinSize        = "committee_min_size"
	ParamCommitteeMaxTermLength  = "committee_max_term_length"
)

// Overlay is a sparse set of proposed parameter changes, the common shape
// both the pre-Conway ProtocolParamUpdate and the Conway ParameterChange
// governance action decode into (spec.md §4.7).
type Overlay struct {
	values map[string]any
}

func NewOverlay() *Overlay { return &Overlay{values: make(map[string]any)} }

// MarshalJSON/UnmarshalJSON mirror ParamSet's, for the same reason:
// Overlay appears inside WAL delta envelopes (e.g. EpochParamOverlayDelta).
func (o *Overlay) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	return json.Marshal(o.values)
}

func (o *Overlay) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if o.values == nil {
		o.values = make(map[string]any)
	}
	return json.Unmarshal(b, &o.values)
}

func (o *Overlay) Set(name string, v any) { o.values[name] = v }

func (o *Overlay) Entries() map[string]any { return o.values }

// Apply returns a new ParamSet with the overlay's entries applied on top
// of base (spec.md §8 round-trip law: apply(extract(update), base) ==
// base.overlay(update)).
func Apply(overlay *Overlay, base *ParamSet) *ParamSet {
	next := base.Clone()
	if overlay == nil {
		return next
	}
	for k, v := range overlay.values {
		next.Set(k, v)
	}
	return next
}

// Merge folds src into dst in place, used when EWRAP accumulates multiple
// accepted update proposals into EpochState.PParamsUpdate before ESTART
// applies them as one overlay.
func Merge(dst, src *Overlay) {
	for k, v := range src.values {
		dst.Set(k, v)
	}
}
