package workunit

import (
	"fmt"

	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/entity"
	"github.com/containerman17/dolos-ledger/epochvalue"
	"github.com/containerman17/dolos-ledger/roll"
	"github.com/containerman17/dolos-ledger/storage/utxoset"
	"github.com/containerman17/dolos-ledger/workbuffer"
)

// executeGenesis seeds the StateStore/UtxoSet with the static genesis
// config the caller's loader decoded (spec.md §6.3), and opens the first
// EraSummary/EpochState pair. There is nothing to archive: genesis has no
// block body, only the synthetic config blob carried as the pseudo-block's
// Raw payload.
func (ex *Executor) executeGenesis(w workbuffer.Work) error {
	if len(w.Batch) != 1 {
		return fmt.Errorf("workunit: genesis work unit must carry exactly one pseudo-block, got %d", len(w.Batch))
	}
	cfg, err := DecodeGenesisConfig(w.Batch[0].Raw)
	if err != nil {
		return err
	}

	var deltas []entity.Delta
	deltas = append(deltas, &entity.EraSummaryOpenDelta{
		Protocol: cfg.Protocol,
		Summary: entity.EraSummary{
			Protocol:    cfg.Protocol,
			Start:       entity.EraBound{Epoch: 0, Slot: cfg.StartSlot, Timestamp: cfg.StartTime},
			EpochLength: cfg.EpochLength,
			SlotLength:  cfg.SlotLength,
		},
	})
	deltas = append(deltas, &entity.EpochStartDelta{Next: &entity.EpochState{
		Number:      0,
		PParams:     epochvalue.New(cfg.ParamSet),
		InitialPots: entity.Pots{Reserves: cfg.InitialReserves},
		Rolling:     epochvalue.New(entity.RollingStats{}),
	}})

	produced := make([]utxoset.Output, 0, len(cfg.InitialUtxos))
	for _, out := range cfg.InitialUtxos {
		produced = append(produced, utxoset.Output{
			Ref:     out.Ref,
			Body:    out.Raw,
			Filters: roll.FilterKeysFor(out),
		})
	}
	utxoDelta := utxoset.Delta{Produced: produced}

	ex.activeProtocol = cfg.Protocol
	if err := ex.commitWork(w.Batch[0].Point, deltas, utxoDelta, nil, nil); err != nil {
		return err
	}

	eras, err := ex.Coordinator.State.IterEntities(chain.NamespaceEraSummary, nil, nil)
	if err != nil {
		return err
	}
	summary, err := decodeEraSummaries(eras)
	if err != nil {
		return err
	}
	ex.Cache.Refresh(summary, cfg.StabilityWindow)
	return nil
}

func decodeEraSummaries(raw map[string][]byte) ([]entity.EraSummary, error) {
	out := make([]entity.EraSummary, 0, len(raw))
	for _, b := range raw {
		e := &entity.EraSummary{}
		if err := entity.Decode(b, e); err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}
