// Package workunit implements spec.md §4.2's four-phase work unit
// lifecycle (load, compute, commit_state, commit_archive) for every
// variant workbuffer.Buffer.PopWork can yield: genesis, a block batch,
// RUPD, EWRAP, and ESTART. Grounded on the teacher's ingestion loop
// (evm-ingestion/main.go's fetch-decode-persist cycle) generalized from
// one phase per block to four phases per work unit, with phase 3/4
// ordering delegated to the already-grounded commit.Coordinator.
package workunit

import (
	"encoding/json"
	"fmt"

	"github.com/containerman17/dolos-ledger/boundary"
	"github.com/containerman17/dolos-ledger/cache"
	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/collab"
	"github.com/containerman17/dolos-ledger/commit"
	"github.com/containerman17/dolos-ledger/entity"
	"github.com/containerman17/dolos-ledger/oracle"
	"github.com/containerman17/dolos-ledger/pparams"
	"github.com/containerman17/dolos-ledger/storage/archive"
	"github.com/containerman17/dolos-ledger/storage/indexstore"
	"github.com/containerman17/dolos-ledger/storage/utxoset"
	"github.com/containerman17/dolos-ledger/storage/walstore"
	"github.com/containerman17/dolos-ledger/workbuffer"
)

// GenesisConfig is the static genesis parameters this core replays from.
// Byron's genesis JSON (avvm/non-avvm balances, protocol magic, start
// time) has no CBOR representation a BlockDecoder could produce from a
// block body, so the caller's config loader (spec.md §6.3) decodes it
// ahead of time and hands it to the FSM as the WorkGenesis pseudo-block's
// raw payload (json-encoded, not era-CBOR).
type GenesisConfig struct {
	Protocol        uint64
	EpochLength     uint64
	SlotLength      uint64
	StartSlot       chain.Slot
	StartTime       int64
	InitialReserves uint64
	StabilityWindow uint64
	ParamSet        *pparams.ParamSet
	InitialUtxos    []collab.DecodedOutput
}

// EncodeGenesisConfig/DecodeGenesisConfig round-trip a GenesisConfig
// through the workbuffer.Block.Raw field used to carry it.
func EncodeGenesisConfig(cfg GenesisConfig) ([]byte, error) { return json.Marshal(cfg) }

func DecodeGenesisConfig(raw []byte) (GenesisConfig, error) {
	var cfg GenesisConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return GenesisConfig{}, fmt.Errorf("workunit: decode genesis config: %w", err)
	}
	return cfg, nil
}

// Executor runs one work unit at a time against the store Coordinator,
// the single writer spec.md §5 pins the core to. It is not safe for
// concurrent use — exactly the single-threaded discipline the FSM itself
// already assumes.
type Executor struct {
	Coordinator *commit.Coordinator
	Cache       *cache.Cache
	Decoder     collab.BlockDecoder
	Magic       oracle.NetworkMagic
	GovernanceActionValidityPeriod uint64

	activeProtocol uint64
}

func NewExecutor(coord *commit.Coordinator, c *cache.Cache, dec collab.BlockDecoder, magic oracle.NetworkMagic, govValidityPeriod uint64) *Executor {
	return &Executor{Coordinator: coord, Cache: c, Decoder: dec, Magic: magic, GovernanceActionValidityPeriod: govValidityPeriod}
}

// RestoreActiveProtocol primes the Executor's era tracking after a
// restart (genesis only runs once per chain, so a resumed process has no
// other way to learn which era is currently open). The composition root
// calls this with the still-open EraSummary's protocol before feeding the
// FSM any work.
func (ex *Executor) RestoreActiveProtocol(protocol uint64) { ex.activeProtocol = protocol }

// Execute runs one WorkUnit's full four-phase lifecycle: load (decode
// raw blocks / read the view), compute (roll.Batch or a boundary phase),
// commit_state, commit_archive.
func (ex *Executor) Execute(w workbuffer.Work) error {
	switch w.Kind {
	case workbuffer.WorkGenesis:
		return ex.executeGenesis(w)
	case workbuffer.WorkBlocks:
		return ex.executeBlocks(w)
	case workbuffer.WorkRupd:
		return ex.executeRupd(w)
	case workbuffer.WorkEwrap:
		return ex.executeEwrap(w)
	case workbuffer.WorkEstart:
		return ex.executeEstart(w)
	case workbuffer.WorkForcedStop:
		return nil
	default:
		return fmt.Errorf("workunit: unknown work kind %d", w.Kind)
	}
}

func (ex *Executor) view() *boundary.View { return boundary.NewView(ex.Coordinator.State) }

// stageWrites applies deltas against the StateStore in order, threading
// each touched key's running value forward so a later delta in the same
// work unit sees the effect of an earlier one on the same entity,
// without a second StateStore round trip per delta.
func (ex *Executor) stageWrites(deltas []entity.Delta) ([]commit.EntityWrite, error) {
	type cacheKey struct {
		ns  chain.Namespace
		key string
	}
	staged := make(map[cacheKey][]byte)
	loaded := make(map[cacheKey]bool)
	writes := make([]commit.EntityWrite, 0, len(deltas))

	for _, d := range deltas {
		ck := cacheKey{ns: d.Namespace(), key: string(d.Key())}
		prevRaw, ok := staged[ck]
		if !ok && !loaded[ck] {
			raw, err := ex.Coordinator.State.ReadEntities(ck.ns, []chain.EntityKey{d.Key()})
			if err != nil {
				return nil, err
			}
			prevRaw = raw[ck.key]
			loaded[ck] = true
		}
		nextRaw, err := entity.ApplyDelta(prevRaw, d)
		if err != nil {
			return nil, err
		}
		staged[ck] = nextRaw
		writes = append(writes, commit.EntityWrite{Namespace: ck.ns, Key: d.Key(), Value: nextRaw})
	}
	return writes, nil
}

// commitWork runs phase 3 (state) then phase 4 (archive) for one work
// unit: deltas become WAL envelopes and StateStore writes, utxoDelta and
// tags go to UtxoSet/IndexStore, and bodies (if any) go to Archive.
func (ex *Executor) commitWork(cursor chain.ChainPoint, deltas []entity.Delta, utxoDelta utxoset.Delta, tags map[chain.Slot][]indexstore.Tag, bodies []archive.BlockBody) error {
	envelopes := make([]entity.Envelope, 0, len(deltas))
	for _, d := range deltas {
		env, err := entity.EncodeDelta(d)
		if err != nil {
			return fmt.Errorf("workunit: encode delta: %w", err)
		}
		envelopes = append(envelopes, env)
	}
	writes, err := ex.stageWrites(deltas)
	if err != nil {
		return fmt.Errorf("workunit: stage writes: %w", err)
	}

	var walEra chain.EraTag
	var walRaw []byte
	if len(bodies) == 1 {
		walEra = bodies[0].Era
		walRaw = bodies[0].Raw
	}

	bundle := commit.StateBundle{
		Cursor:    cursor,
		Entities:  writes,
		UtxoDelta: utxoDelta,
		IndexTags: tags,
	}
	walEntries := []walstore.Entry{{
		Point: cursor,
		Value: walstore.LogValue{Deltas: envelopes, RawEra: walEra, RawBlock: walRaw},
	}}
	if err := ex.Coordinator.CommitState(walEntries, bundle); err != nil {
		return fmt.Errorf("workunit: commit state: %w", err)
	}
	if len(bodies) > 0 {
		if err := ex.Coordinator.CommitArchive(bodies); err != nil {
			return fmt.Errorf("workunit: commit archive: %w", err)
		}
	}
	return nil
}

