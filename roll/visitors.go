package roll

import (
	"encoding/binary"

	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/collab"
	"github.com/containerman17/dolos-ledger/entity"
	"github.com/containerman17/dolos-ledger/oracle"
	"github.com/containerman17/dolos-ledger/storage/indexstore"
	"github.com/containerman17/dolos-ledger/storage/utxoset"
)

// --- UTxO visitor ---------------------------------------------------

// utxoVisitor emits produced outputs for every output and consumed refs
// for every input, per spec.md §4.3. It also keeps a local produced-set so
// an input spent later in the same batch (spending an output produced
// earlier in the batch) resolves without a StateStore round trip.
type utxoVisitor struct {
	lk           Lookups
	produced     []utxoset.Output
	consumed     []chain.TxoRef
	producedThis map[chain.TxoRef]utxoset.FilterKeys
}

func newUtxoVisitor(lk Lookups) *utxoVisitor {
	return &utxoVisitor{lk: lk, producedThis: make(map[chain.TxoRef]utxoset.FilterKeys)}
}

func (v *utxoVisitor) visitRoot(collab.BlockHeader) {}
func (v *utxoVisitor) visitTx(collab.DecodedTx)      {}

// FilterKeysFor derives a produced output's UtxoSet filter keys from its
// decoded shape. Exported so workunit's genesis handling and its
// pre-existing-consumed-output re-derivation (see utxoVisitor.flush) can
// build the same keys outside a Batch() call.
func FilterKeysFor(out collab.DecodedOutput) utxoset.FilterKeys {
	filters := utxoset.FilterKeys{}
	if len(out.Address) > 0 {
		filters.Address = [][]byte{out.Address}
	}
	if len(out.PaymentPart) > 0 {
		filters.Payment = [][]byte{out.PaymentPart}
	}
	if len(out.StakePart) > 0 {
		filters.Stake = [][]byte{out.StakePart}
	}
	policies := make(map[[28]byte]bool)
	for _, a := range out.Value.Assets {
		policies[a.Policy] = true
		filters.Asset = append(filters.Asset, append(append([]byte{}, a.Policy[:]...), a.Name...))
	}
	for p := range policies {
		filters.Policy = append(filters.Policy, append([]byte{}, p[:]...))
	}
	return filters
}

func (v *utxoVisitor) visitOutput(_ collab.DecodedTx, out collab.DecodedOutput) {
	filters := FilterKeysFor(out)
	v.produced = append(v.produced, utxoset.Output{Ref: out.Ref, Body: out.Raw, Filters: filters})
	v.producedThis[out.Ref] = filters
}

func (v *utxoVisitor) visitInput(_ collab.DecodedTx, in chain.TxoRef) {
	v.consumed = append(v.consumed, in)
}

func (v *utxoVisitor) visitCert(collab.DecodedTx, collab.Cert)                       {}
func (v *utxoVisitor) visitUpdate(collab.DecodedTx, collab.UpdateProposal)           {}
func (v *utxoVisitor) visitProposal(collab.DecodedTx, uint32, collab.GovProposal)    {}
func (v *utxoVisitor) visitMint(collab.DecodedTx, collab.MintEntry)                  {}

// flush assembles the batch's UtxoSet delta. Consumed refs produced
// earlier in the same batch carry their filter keys along directly; refs
// consumed from pre-existing state carry no filter keys here because
// UtxoSet exposes no reverse filter lookup (spec.md §4.9.3) — the
// workunit package fills those in by re-decoding the output it loaded in
// phase 1 through the same collab.DecodedOutput path used in visitOutput.
func (v *utxoVisitor) flush(result *Result) {
	d := utxoset.Delta{
		Consumed:        v.consumed,
		ConsumedFilters: make(map[chain.TxoRef]utxoset.FilterKeys, len(v.consumed)),
		Produced:        v.produced,
	}
	for _, ref := range v.consumed {
		if f, ok := v.producedThis[ref]; ok {
			d.ConsumedFilters[ref] = f
		}
	}
	result.UtxoDelta = d
}

// --- Account visitor --------------------------------------------------

// accountVisitor handles registrations, deregistrations, delegations, and
// withdrawals (spec.md §4.3).
type accountVisitor struct {
	lk     Lookups
	deltas []entity.Delta
	slot   chain.Slot
}

func newAccountVisitor(lk Lookups) *accountVisitor { return &accountVisitor{lk: lk} }

func (v *accountVisitor) visitRoot(h collab.BlockHeader) { v.slot = h.Slot }
func (v *accountVisitor) visitTx(collab.DecodedTx)        {}
func (v *accountVisitor) visitOutput(collab.DecodedTx, collab.DecodedOutput) {}
func (v *accountVisitor) visitInput(collab.DecodedTx, chain.TxoRef)          {}

func (v *accountVisitor) visitCert(_ collab.DecodedTx, c collab.Cert) {
	cred := v.resolveCredential(c)
	switch c.Kind {
	case collab.CertStakeRegistration:
		v.deltas = append(v.deltas, &entity.AccountRegisterDelta{Credential: cred, At: v.slot})
	case collab.CertStakeDeregistration:
		v.deltas = append(v.deltas, &entity.AccountDeregisterDelta{Credential: cred})
	case collab.CertStakeDelegation:
		pool := entity.PoolHash(c.PoolHash)
		v.deltas = append(v.deltas, &entity.AccountDelegatePoolDelta{Credential: cred, Pool: pool})
	case collab.CertVoteDelegation:
		drep := entity.DRep{Kind: entity.DRepKind(c.DRepKind), Credential: c.DRepCredential}
		v.deltas = append(v.deltas, &entity.AccountDelegateDRepDelta{Credential: cred, DRep: drep})
	}
}

// resolveCredential returns the certificate's own credential unless it
// carries a pointer requiring the oracle.Pointer table (spec.md §4.3's
// "pointer->credential resolution via hacks::pointers").
func (v *accountVisitor) resolveCredential(c collab.Cert) entity.StakeCredential {
	if c.PointerCreds != nil {
		var cred entity.StakeCredential
		copy(cred[:], *c.PointerCreds)
		return cred
	}
	return entity.StakeCredential(c.Credential)
}

func (v *accountVisitor) visitUpdate(collab.DecodedTx, collab.UpdateProposal)        {}
func (v *accountVisitor) visitProposal(collab.DecodedTx, uint32, collab.GovProposal) {}
func (v *accountVisitor) visitMint(collab.DecodedTx, collab.MintEntry)               {}

func (v *accountVisitor) flush(result *Result) {
	result.Deltas = append(result.Deltas, v.deltas...)
}

// --- Pool visitor -------------------------------------------------------

type poolVisitor struct {
	deltas []entity.Delta
}

func newPoolVisitor() *poolVisitor { return &poolVisitor{} }

func (v *poolVisitor) visitRoot(collab.BlockHeader)                          {}
func (v *poolVisitor) visitTx(collab.DecodedTx)                              {}
func (v *poolVisitor) visitOutput(collab.DecodedTx, collab.DecodedOutput)    {}
func (v *poolVisitor) visitInput(collab.DecodedTx, chain.TxoRef)             {}

func (v *poolVisitor) visitCert(_ collab.DecodedTx, c collab.Cert) {
	switch c.Kind {
	case collab.CertPoolRegistration:
		params := entity.PoolParams{
			Operator:  c.Operator,
			Pledge:    c.Pledge,
			Cost:      c.Cost,
			Margin:    entity.Rational{Num: c.MarginNum, Den: c.MarginDen},
			RewardAcc: entity.StakeCredential(c.RewardAcct),
			Raw:       c.RawPoolCert,
		}
		v.deltas = append(v.deltas, &entity.PoolRegisterDelta{Pool: entity.PoolHash(c.Operator), Params: params})
	case collab.CertPoolRetirement:
		v.deltas = append(v.deltas, &entity.PoolRetireDelta{Pool: entity.PoolHash(c.Operator), RetiringEpoch: c.RetiringAt})
	}
}

func (v *poolVisitor) visitUpdate(collab.DecodedTx, collab.UpdateProposal)        {}
func (v *poolVisitor) visitProposal(collab.DecodedTx, uint32, collab.GovProposal) {}
func (v *poolVisitor) visitMint(collab.DecodedTx, collab.MintEntry)               {}
func (v *poolVisitor) flush(result *Result)                                       { result.Deltas = append(result.Deltas, v.deltas...) }

// --- DRep visitor ---------------------------------------------------

type drepVisitor struct {
	deltas []entity.Delta
	slot   chain.Slot
}

func newDRepVisitor() *drepVisitor { return &drepVisitor{} }

func (v *drepVisitor) visitRoot(h collab.BlockHeader) { v.slot = h.Slot }
func (v *drepVisitor) visitTx(collab.DecodedTx)        {}
func (v *drepVisitor) visitOutput(collab.DecodedTx, collab.DecodedOutput) {}
func (v *drepVisitor) visitInput(collab.DecodedTx, chain.TxoRef)          {}

func (v *drepVisitor) visitCert(_ collab.DecodedTx, c collab.Cert) {
	drep := entity.DRep{Kind: entity.DRepKind(c.DRepKind), Credential: c.DRepCredential}
	switch c.Kind {
	case collab.CertDRepRegistration:
		v.deltas = append(v.deltas, &entity.DRepRegisterDelta{DRep: drep, At: v.slot, Deposit: c.Deposit})
	case collab.CertDRepUpdate:
		v.deltas = append(v.deltas, &entity.DRepUpdateDelta{DRep: drep, At: v.slot})
	case collab.CertDRepDeregistration:
		v.deltas = append(v.deltas, &entity.DRepDeregisterDelta{DRep: drep, At: v.slot})
	}
}

func (v *drepVisitor) visitUpdate(collab.DecodedTx, collab.UpdateProposal)        {}
func (v *drepVisitor) visitProposal(collab.DecodedTx, uint32, collab.GovProposal) {}
func (v *drepVisitor) visitMint(collab.DecodedTx, collab.MintEntry)               {}
func (v *drepVisitor) flush(result *Result)                                       { result.Deltas = append(result.Deltas, v.deltas...) }

// --- Proposal visitor -------------------------------------------------

// proposalVisitor handles new Conway governance proposals and legacy
// (pre-Conway) pparam updates carried directly on the tx body, per
// spec.md §4.3. Legacy updates are folded into a synthetic
// ActionParameterChange proposal so both paths feed the same entity
// namespace.
type proposalVisitor struct {
	lk     Lookups
	deltas []entity.Delta
	epoch  uint64
}

func newProposalVisitor(lk Lookups) *proposalVisitor { return &proposalVisitor{lk: lk} }

func (v *proposalVisitor) visitRoot(collab.BlockHeader)                       {}
func (v *proposalVisitor) visitTx(collab.DecodedTx)                           {}
func (v *proposalVisitor) visitOutput(collab.DecodedTx, collab.DecodedOutput) {}
func (v *proposalVisitor) visitInput(collab.DecodedTx, chain.TxoRef)          {}
func (v *proposalVisitor) visitCert(collab.DecodedTx, collab.Cert)            {}

func (v *proposalVisitor) visitUpdate(tx collab.DecodedTx, up collab.UpdateProposal) {
	id := entity.ProposalID{Tx: tx.Hash, Idx: 0}
	maxEpoch := up.EpochNo
	outcome, err := oracle.RequireOutcome(v.lk.NetworkMagic, v.lk.ActiveProtocol, tx.Hash.String())
	d := &entity.ProposalNewDelta{
		ID:       id,
		Action:   entity.ActionParameterChange,
		Overlay:  overlayFromEntries(up.Overlay),
		MaxEpoch: &maxEpoch,
	}
	if err == nil {
		switch outcome.Kind {
		case oracle.OutcomeRatified, oracle.OutcomeRatifiedCurrentEpoch:
			epoch := outcome.Epoch
			d.RatifiedEpoch = &epoch
		case oracle.OutcomeCanceled:
			epoch := outcome.Epoch
			d.CanceledEpoch = &epoch
		}
	}
	v.deltas = append(v.deltas, d)
}

func (v *proposalVisitor) visitProposal(tx collab.DecodedTx, idx uint32, p collab.GovProposal) {
	id := entity.ProposalID{Tx: tx.Hash, Idx: idx}
	maxEpoch := v.epoch + v.lk.GovernanceActionValidityPeriod
	var rewardAcct *entity.StakeCredential
	if p.Action == collab.GovActionTreasuryWithdrawal {
		cred := entity.StakeCredential(p.RewardAcct)
		rewardAcct = &cred
	}
	deposit := p.Deposit
	v.deltas = append(v.deltas, &entity.ProposalNewDelta{
		ID:            id,
		Action:        entity.GovAction(p.Action),
		Overlay:       overlayFromEntries(p.ParamOverlay),
		Deposit:       &deposit,
		RewardAccount: rewardAcct,
		MaxEpoch:      &maxEpoch,
	})
}

func (v *proposalVisitor) visitMint(collab.DecodedTx, collab.MintEntry) {}
func (v *proposalVisitor) flush(result *Result)                        { result.Deltas = append(result.Deltas, v.deltas...) }

// --- Asset visitor ----------------------------------------------------

type assetVisitor struct {
	deltas []entity.Delta
	slot   chain.Slot
}

func newAssetVisitor() *assetVisitor { return &assetVisitor{} }

func (v *assetVisitor) visitRoot(h collab.BlockHeader) { v.slot = h.Slot }
func (v *assetVisitor) visitTx(collab.DecodedTx)        {}
func (v *assetVisitor) visitOutput(collab.DecodedTx, collab.DecodedOutput) {}
func (v *assetVisitor) visitInput(collab.DecodedTx, chain.TxoRef)          {}
func (v *assetVisitor) visitCert(collab.DecodedTx, collab.Cert)           {}
func (v *assetVisitor) visitUpdate(collab.DecodedTx, collab.UpdateProposal) {}
func (v *assetVisitor) visitProposal(collab.DecodedTx, uint32, collab.GovProposal) {}

func (v *assetVisitor) visitMint(tx collab.DecodedTx, m collab.MintEntry) {
	v.deltas = append(v.deltas, &entity.AssetMintDelta{
		Policy: m.Policy, Name: m.Name, Quantity: m.Amount, Tx: tx.Hash, Slot: v.slot,
	})
}

func (v *assetVisitor) flush(result *Result) { result.Deltas = append(result.Deltas, v.deltas...) }

// --- Archive/index tagging visitor -------------------------------------

// archiveVisitor collects every tag dimension the IndexStore needs for a
// block's slot (spec.md §4.3's last bullet): tx hashes, address
// decompositions, policies, assets, datum/script hashes, spent-txo refs,
// metadata labels, and account certs.
type archiveVisitor struct {
	header collab.BlockHeader
	tags   map[chain.Slot][]indexstore.Tag
}

func newArchiveVisitor() *archiveVisitor {
	return &archiveVisitor{tags: make(map[chain.Slot][]indexstore.Tag)}
}

func (v *archiveVisitor) add(dim indexstore.Dimension, key []byte) {
	v.tags[v.header.Slot] = append(v.tags[v.header.Slot], indexstore.Tag{Dim: dim, Key: key})
}

func (v *archiveVisitor) visitRoot(h collab.BlockHeader) {
	v.header = h
	numBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(numBuf, h.Number)
	v.add(indexstore.DimBlockHash, h.Hash[:])
	v.add(indexstore.DimBlockNumber, numBuf)
}

func (v *archiveVisitor) visitTx(tx collab.DecodedTx) {
	v.add(indexstore.DimTxHash, tx.Hash[:])
	for _, label := range tx.MetaLabels {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, label)
		v.add(indexstore.DimMetaLabel, buf)
	}
	for _, s := range tx.Scripts {
		v.add(indexstore.DimScript, append([]byte{}, s[:]...))
	}
	for _, d := range tx.Datums {
		v.add(indexstore.DimDatum, append([]byte{}, d[:]...))
	}
}

func (v *archiveVisitor) visitOutput(_ collab.DecodedTx, out collab.DecodedOutput) {
	if len(out.Address) > 0 {
		v.add(indexstore.DimAddress, out.Address)
	}
	if len(out.PaymentPart) > 0 {
		v.add(indexstore.DimPayment, out.PaymentPart)
	}
	if len(out.StakePart) > 0 {
		v.add(indexstore.DimStake, out.StakePart)
	}
	for _, a := range out.Value.Assets {
		v.add(indexstore.DimAsset, append(append([]byte{}, a.Policy[:]...), a.Name...))
		v.add(indexstore.DimPolicy, append([]byte{}, a.Policy[:]...))
	}
}

func (v *archiveVisitor) visitInput(_ collab.DecodedTx, in chain.TxoRef) {
	v.add(indexstore.DimSpentTxo, in.Bytes())
}

func (v *archiveVisitor) visitCert(_ collab.DecodedTx, c collab.Cert) {
	v.add(indexstore.DimAccountCert, append([]byte{}, c.Credential[:]...))
}

func (v *archiveVisitor) visitUpdate(collab.DecodedTx, collab.UpdateProposal)        {}
func (v *archiveVisitor) visitProposal(collab.DecodedTx, uint32, collab.GovProposal) {}
func (v *archiveVisitor) visitMint(_ collab.DecodedTx, m collab.MintEntry) {
	v.add(indexstore.DimAsset, append(append([]byte{}, m.Policy[:]...), m.Name...))
	v.add(indexstore.DimPolicy, append([]byte{}, m.Policy[:]...))
}

func (v *archiveVisitor) flush(result *Result) {
	for slot, tags := range v.tags {
		result.Tags[slot] = append(result.Tags[slot], tags...)
	}
}
