package workunit

import (
	"fmt"

	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/collab"
	"github.com/containerman17/dolos-ledger/entity"
	"github.com/containerman17/dolos-ledger/roll"
	"github.com/containerman17/dolos-ledger/storage/archive"
	"github.com/containerman17/dolos-ledger/storage/utxoset"
	"github.com/containerman17/dolos-ledger/workbuffer"
)

// executeBlocks runs the compute phase for a plain WorkBlocks unit (spec.md
// §4.3): decode every raw block, resolve pre-existing consumed outputs'
// filter keys (the one gap roll.Batch leaves to its caller), run the
// visitor batch, fold in fee/deposit gather accounting, and commit.
func (ex *Executor) executeBlocks(w workbuffer.Work) error {
	if len(w.Batch) == 0 {
		return fmt.Errorf("workunit: empty block batch")
	}

	decoded := make([]collab.DecodedBlock, 0, len(w.Batch))
	bodies := make([]archive.BlockBody, 0, len(w.Batch))
	for _, blk := range w.Batch {
		db, err := ex.Decoder.Decode(chain.EraCbor{Era: blk.Era, Bytes: blk.Raw})
		if err != nil {
			return fmt.Errorf("workunit: decode block %s: %w", blk.Point, err)
		}
		decoded = append(decoded, db)
		bodies = append(bodies, archive.BlockBody{Point: blk.Point, Era: blk.Era, Raw: blk.Raw})
	}

	lk := roll.Lookups{
		GovernanceActionValidityPeriod: ex.GovernanceActionValidityPeriod,
		NetworkMagic:                   ex.Magic,
		ActiveProtocol:                 uint16(ex.activeProtocol),
	}
	result, err := roll.Batch(decoded, lk)
	if err != nil {
		return err
	}

	if err := ex.resolveConsumedFilters(&result.UtxoDelta); err != nil {
		return err
	}

	var fees, deposits uint64
	for _, db := range decoded {
		for _, tx := range db.Txs {
			fees += tx.Fee
			for _, c := range tx.Certs {
				switch c.Kind {
				case collab.CertStakeRegistration, collab.CertDRepRegistration:
					deposits += c.Deposit
				}
			}
			for _, p := range tx.Proposals {
				deposits += p.Deposit
			}
		}
	}
	deltas := append(result.Deltas, &entity.EpochGatherDelta{Fees: fees, Deposits: deposits})

	last := w.Batch[len(w.Batch)-1]
	return ex.commitWork(last.Point, deltas, result.UtxoDelta, result.Tags, bodies)
}

// resolveConsumedFilters fills in FilterKeys for every consumed ref the
// batch didn't itself produce, by reading the pre-existing output back out
// of UtxoSet and decoding it through the same collab.DecodedOutput shape
// roll's utxoVisitor builds filters from (roll/visitors.go's documented
// gap: UtxoSet has no reverse filter lookup, spec.md §4.9.3).
func (ex *Executor) resolveConsumedFilters(delta *utxoset.Delta) error {
	var missing []chain.TxoRef
	for _, ref := range delta.Consumed {
		if _, ok := delta.ConsumedFilters[ref]; !ok {
			missing = append(missing, ref)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	raw, err := ex.Coordinator.Utxo.GetSparse(missing)
	if err != nil {
		return err
	}
	for _, ref := range missing {
		body, ok := raw[ref]
		if !ok {
			continue
		}
		out, err := ex.Decoder.DecodeOutput(body)
		if err != nil {
			return fmt.Errorf("workunit: decode consumed output %s: %w", ref, err)
		}
		delta.ConsumedFilters[ref] = roll.FilterKeysFor(out)
	}
	return nil
}
