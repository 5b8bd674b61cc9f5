// Package roll implements spec.md §4.3's WorkBatch processing: a fixed
// set of visitors walk every block in a batch and accumulate the
// EntityDeltas, UtxoSet delta, and IndexStore tags a commit.StateBundle
// needs. Modeled on the teacher's indexer dispatch in
// indexers/pcx/indexers/*/events.go, where one handler function per
// event kind accumulates into a shared batch result rather than building
// a polymorphic visitor interface hierarchy — spec.md §9 calls this out
// explicitly as "visitor polymorphism as a closed function-pointer set".
package roll

import (
	"fmt"

	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/collab"
	"github.com/containerman17/dolos-ledger/entity"
	"github.com/containerman17/dolos-ledger/oracle"
	"github.com/containerman17/dolos-ledger/pparams"
	"github.com/containerman17/dolos-ledger/storage/indexstore"
	"github.com/containerman17/dolos-ledger/storage/utxoset"
)

// Lookups bundles the read-side dependencies the visitors need while
// walking a batch. Pointer-address resolution (oracle.PointerToCred) and
// consumed-output UtxoSet lookups are both handled upstream of Batch —
// the former is decoded straight into Cert.PointerCreds since it's a
// pure function of static historical data, the latter is resolved by
// workunit after Batch returns since deriving a pre-existing consumed
// output's filter keys needs the collab.BlockDecoder this package
// deliberately doesn't depend on (see roll/visitors.go's utxoVisitor).
type Lookups struct {
	// GovernanceActionValidityPeriod is the active pparam, used to compute
	// a new proposal's MaxEpoch.
	GovernanceActionValidityPeriod uint64
	// NetworkMagic selects the oracle branch for legacy proposal outcomes.
	NetworkMagic oracle.NetworkMagic
	// ActiveProtocol is the protocol major version in force, used as the
	// oracle's key alongside NetworkMagic.
	ActiveProtocol uint16
}

// Result is everything a WorkBatch's compute phase produces, ready to be
// flattened into a commit.StateBundle by the workunit package (which also
// knows the chain point to use as the new cursor).
type Result struct {
	Deltas    []entity.Delta
	UtxoDelta utxoset.Delta
	Tags      map[chain.Slot][]indexstore.Tag
}

// visitor is the closed set of per-concern accumulators. Each is wired
// into Batch() in a fixed order; none of them depend on another's output
// within the same block, except the UTxO visitor's produced set feeding
// the Account/Pool/Proposal visitors' implicit reward-output bookkeeping
// (tracked structurally by the caller, not by cross-visitor calls).
type visitor interface {
	visitRoot(block collab.BlockHeader)
	visitTx(tx collab.DecodedTx)
	visitOutput(tx collab.DecodedTx, out collab.DecodedOutput)
	visitInput(tx collab.DecodedTx, in chain.TxoRef)
	visitCert(tx collab.DecodedTx, cert collab.Cert)
	visitUpdate(tx collab.DecodedTx, up collab.UpdateProposal)
	visitProposal(tx collab.DecodedTx, idx uint32, prop collab.GovProposal)
	visitMint(tx collab.DecodedTx, m collab.MintEntry)
	flush(result *Result)
}

// Batch runs every visitor over every block in order and merges their
// output into a single Result (spec.md §4.3: "a WorkBatch is an ordered,
// non-empty sequence of blocks with no epoch boundary between them").
func Batch(blocks []collab.DecodedBlock, lk Lookups) (Result, error) {
	if len(blocks) == 0 {
		return Result{}, fmt.Errorf("roll: empty batch")
	}

	utxoVisitor := newUtxoVisitor(lk)
	visitors := []visitor{
		utxoVisitor,
		newAccountVisitor(lk),
		newPoolVisitor(),
		newDRepVisitor(),
		newProposalVisitor(lk),
		newAssetVisitor(),
		newArchiveVisitor(),
	}

	for _, block := range blocks {
		for _, v := range visitors {
			v.visitRoot(block.Header)
		}
		for _, tx := range block.Txs {
			for _, v := range visitors {
				v.visitTx(tx)
			}
			for _, out := range tx.Outputs {
				for _, v := range visitors {
					v.visitOutput(tx, out)
				}
			}
			for _, in := range tx.Inputs {
				for _, v := range visitors {
					v.visitInput(tx, in)
				}
			}
			for _, c := range tx.Certs {
				for _, v := range visitors {
					v.visitCert(tx, c)
				}
			}
			for _, u := range tx.Updates {
				for _, v := range visitors {
					v.visitUpdate(tx, u)
				}
			}
			for idx, p := range tx.Proposals {
				for _, v := range visitors {
					v.visitProposal(tx, uint32(idx), p)
				}
			}
			for _, m := range tx.Mints {
				for _, v := range visitors {
					v.visitMint(tx, m)
				}
			}
		}
	}

	result := Result{Tags: make(map[chain.Slot][]indexstore.Tag)}
	for _, v := range visitors {
		v.flush(&result)
	}
	return result, nil
}

// overlayFromEntries turns the decoder's flat ParamEntry list into a
// pparams.Overlay, the shape entity.ProposalNewDelta and the parameter
// application path (pparams.Apply) both expect.
func overlayFromEntries(entries []collab.ParamEntry) *pparams.Overlay {
	if len(entries) == 0 {
		return nil
	}
	o := pparams.NewOverlay()
	for _, e := range entries {
		o.Set(e.Name, e.Value)
	}
	return o
}
