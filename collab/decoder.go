// Package collab declares the external collaborator contracts spec.md
// §6.1 names: the block decoder, network source, validator, query
// server, and mempool. These are interfaces only — per spec.md, the
// block decoder and network source are external libraries the core
// depends on but does not implement; this package exists so the core
// (roll, boundary, workunit) can be written against a stable contract
// without importing a concrete CBOR/multi-era parser. Modeled on the
// teacher's own collaborator-boundary pattern in
// ingestion/evm/rpc/client: a narrow interface the ingestion loop
// consumes, with the concrete RPC client living in a separate package.
package collab

import "github.com/containerman17/dolos-ledger/chain"

// BlockHeader is the subset of header fields the core needs for
// boundary detection and archive tagging.
type BlockHeader struct {
	Slot           chain.Slot
	Hash           chain.BlockHash
	Number         uint64
	PrevHash       chain.BlockHash
	ProtocolMajor  uint64
	ProtocolMinor  uint64
}

// Value is a decoded output's lovelace amount plus any native assets.
type Value struct {
	Lovelace uint64
	Assets   []AssetAmount
}

type AssetAmount struct {
	Policy   [28]byte
	Name     []byte
	Quantity int64 // negative for burns, seen only in mint entries
}

// DecodedOutput is a transaction output with its address already
// decomposed into the three forms the UtxoSet filter dimensions index.
type DecodedOutput struct {
	Ref         chain.TxoRef
	Address     []byte
	PaymentPart []byte // nil for byron-style or script-only outputs without one
	StakePart   []byte // nil if the address carries no staking component
	Value       Value
	DatumHash   *[32]byte
	ScriptHash  *[28]byte
	Raw         chain.EraCbor
}

// CertKind enumerates the certificate shapes the Account/Pool/DRep
// visitors recognize (spec.md §4.3).
type CertKind int

const (
	CertStakeRegistration CertKind = iota
	CertStakeDeregistration
	CertStakeDelegation
	CertPoolRegistration
	CertPoolRetirement
	CertDRepRegistration
	CertDRepUpdate
	CertDRepDeregistration
	CertVoteDelegation
)

// Cert is a decoded certificate; only the fields relevant to Kind are
// populated.
type Cert struct {
	Kind CertKind

	// StakeRegistration / StakeDeregistration / StakeDelegation /
	// VoteDelegation / DRepRegistration / DRepUpdate / DRepDeregistration
	Credential    [28]byte
	// PointerCreds is set only when Credential itself isn't usable
	// directly (a pre-Shelley pointer-style reference) — resolved ahead
	// of roll via oracle.PointerToCred, since that lookup is a pure
	// function over static historical data and needs no StateStore read.
	PointerCreds  *chain.EntityKey
	PoolHash      [28]byte
	DRepKind      int
	DRepCredential [28]byte
	Deposit       uint64

	// PoolRegistration / PoolRetirement
	Operator     [28]byte
	Pledge       uint64
	Cost         uint64
	MarginNum    int64
	MarginDen    int64
	RewardAcct   [28]byte
	RetiringAt   uint64 // epoch
	RawPoolCert  []byte
}

// MintEntry is one policy's worth of mint/burn quantities in a tx.
type MintEntry struct {
	Policy [28]byte
	Name   []byte
	Amount int64
}

// UpdateProposal is a legacy (pre-Conway) protocol parameter update
// attached directly to a transaction body.
type UpdateProposal struct {
	Overlay  []ParamEntry
	EpochNo  uint64
}

// ParamEntry is one name/value pair out of a decoded parameter overlay;
// the roll engine translates these into pparams.Overlay.Set calls.
type ParamEntry struct {
	Name  string
	Value any
}

// GovActionKind mirrors entity.GovAction for the decoder boundary so this
// package doesn't need to import entity (kept dependency-free of the
// domain model; roll translates GovActionKind into entity.GovAction).
type GovActionKind int

const (
	GovActionParameterChange GovActionKind = iota
	GovActionHardForkInitiation
	GovActionTreasuryWithdrawal
	GovActionNoConfidence
	GovActionCommitteeUpdate
	GovActionConstitution
	GovActionInfo
)

// GovProposal is a Conway-era governance action proposal procedure.
type GovProposal struct {
	Idx          uint32
	Action       GovActionKind
	ParamOverlay []ParamEntry
	Deposit      uint64
	RewardAcct   [28]byte
}

// DecodedTx is one transaction's full decoded surface.
type DecodedTx struct {
	Hash       chain.TxHash
	Fee        uint64
	Inputs     []chain.TxoRef
	Outputs    []DecodedOutput
	Certs      []Cert
	Mints      []MintEntry
	Updates    []UpdateProposal
	Proposals  []GovProposal
	MetaLabels []uint64
	Scripts    [][28]byte
	Datums     [][32]byte
}

// DecodedBlock is a fully decoded multi-era block, the output of the
// external block-decoder collaborator given (EraTag, bytes).
type DecodedBlock struct {
	Header BlockHeader
	Txs    []DecodedTx
}

// BlockDecoder is the collaborator contract itself (spec.md §6.1). The
// core depends only on this interface. No concrete multi-era CBOR parser
// ships in this module: cmd/dolos-node wires nopDecoder, which fails
// every call.
type BlockDecoder interface {
	Decode(raw chain.EraCbor) (DecodedBlock, error)

	// DecodeOutput decodes a single transaction output's era-tagged body —
	// the shape UtxoSet stores for each entry — without requiring the
	// enclosing block. workunit needs this to re-derive a pre-existing
	// consumed output's filter keys (spec.md §4.9.3: UtxoSet keeps no
	// reverse filter index), which is a much smaller ask of the decoder
	// than handing it a synthetic one-output block.
	DecodeOutput(raw chain.EraCbor) (DecodedOutput, error)
}
