// Package workbuffer implements the WorkBuffer FSM from spec.md §4.1: a
// single-threaded state machine that consumes decoded blocks and emits
// WorkUnits in a deterministic sequence, crossing RUPD/EWRAP/ESTART epoch
// boundaries as the chain summary dictates. The state set is closed, so
// it is modeled the same way entity/envelope.go models the closed delta
// set — one Kind tag plus a struct wide enough to hold every state's
// payload — rather than an interface hierarchy, per spec.md §9's design
// note on replacing dynamic dispatch with a switch.
package workbuffer

import (
	"fmt"

	"github.com/containerman17/dolos-ledger/cache"
	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/domainerr"
)

// Block is a decoded raw block as delivered by the network-source
// collaborator (spec.md §6.1).
type Block struct {
	Point chain.ChainPoint
	Era   chain.EraTag
	Raw   []byte
}

type stateKind int

const (
	stateEmpty stateKind = iota
	stateGenesis
	stateRestart
	stateOpenBatch
	statePreRupdBoundary
	stateRupdBoundary
	statePreEwrapBoundary
	stateEwrapBoundary
	stateEstartBoundary
	statePreForcedStop
	stateForcedStop
)

// WorkKind discriminates the WorkUnit variants pop_work can yield.
type WorkKind int

const (
	WorkGenesis WorkKind = iota
	WorkBlocks
	WorkRupd
	WorkEwrap
	WorkEstart
	WorkForcedStop
)

// Work is the emitted unit: exactly the fields relevant to Kind are
// populated, mirroring spec.md §4.1's yield annotations.
type Work struct {
	Kind  WorkKind
	Batch []Block    // WorkBlocks, and the single block carried by WorkGenesis
	Slot  chain.Slot // WorkRupd, WorkEwrap, WorkEstart: the boundary slot
	Epoch uint64     // WorkEwrap, WorkEstart: the epoch under computation
}

// Buffer is the FSM itself.
type Buffer struct {
	state stateKind

	genesisBlock *Block
	restartPoint chain.ChainPoint

	batch        []Block
	nextBlock    *Block
	endingEpoch  uint64
	nextEpoch    uint64
	forcedBlock  *Block

	cache           *cache.Cache
	stabilityWindow uint64
	stopEpoch       *uint64
}

// NewEmpty starts the FSM with no prior state (a fresh chain).
func NewEmpty(c *cache.Cache, stopEpoch *uint64) *Buffer {
	return &Buffer{state: stateEmpty, cache: c, stopEpoch: stopEpoch}
}

// NewRestart resumes the FSM from a persisted cursor, as happens on
// every process start after genesis.
func NewRestart(point chain.ChainPoint, c *cache.Cache, stopEpoch *uint64) *Buffer {
	return &Buffer{state: stateRestart, restartPoint: point, cache: c, stopEpoch: stopEpoch}
}

// CanReceiveBlock is spec.md §4.1's contract: true iff in
// {Empty, Restart, OpenBatch}.
func (b *Buffer) CanReceiveBlock() bool {
	switch b.state {
	case stateEmpty, stateRestart, stateOpenBatch:
		return true
	default:
		return false
	}
}

// boundary classifies the transition between two slots against the
// active chain summary: isEpoch is true iff the pair straddles the first
// slot of a new epoch; isRupd is true iff the pair straddles the first
// slot at or after `epoch_last_slot - stability_window` of the ending
// epoch (spec.md §4.1).
func boundary(prev, next chain.Slot, summary cache.ChainSummary, stabilityWindow uint64) (isEpoch, isRupd bool, endingEpoch uint64) {
	prevEpoch, prevOK := summary.EpochAt(prev)
	nextEpoch, nextOK := summary.EpochAt(next)
	if !prevOK || !nextOK {
		return false, false, 0
	}
	isEpoch = nextEpoch > prevEpoch

	_, end, ok := summary.EpochBounds(prevEpoch)
	if !ok {
		return isEpoch, false, prevEpoch
	}
	lastSlot := end - 1
	var rupdSlot chain.Slot
	if uint64(lastSlot) >= stabilityWindow {
		rupdSlot = lastSlot - chain.Slot(stabilityWindow)
	}
	isRupd = prev < rupdSlot && next >= rupdSlot
	return isEpoch, isRupd, prevEpoch
}

// ReceiveBlock feeds one decoded block into the FSM. Must only be called
// when CanReceiveBlock() is true; calling it otherwise is a caller bug
// per spec.md §4.1 and returns ErrCantReceiveBlock rather than silently
// misbehaving.
func (b *Buffer) ReceiveBlock(blk Block) error {
	if !b.CanReceiveBlock() {
		return domainerr.ErrCantReceiveBlock
	}

	switch b.state {
	case stateEmpty:
		b.genesisBlock = &blk
		b.state = stateGenesis
		return nil

	case stateRestart:
		b.classifyAndOpen(b.restartPoint.Slot, blk)
		return nil

	case stateOpenBatch:
		prevSlot := b.batch[len(b.batch)-1].Point.Slot
		b.classifyAndOpen(prevSlot, blk)
		return nil

	default:
		return domainerr.ErrCantReceiveBlock
	}
}

// classifyAndOpen decides, given the slot of the last-seen point and the
// incoming block, whether to extend the open batch or stage a boundary.
func (b *Buffer) classifyAndOpen(prevSlot chain.Slot, blk Block) {
	summary, stabilityWindow := b.cache.Snapshot()
	isEpoch, isRupd, endingEpoch := boundary(prevSlot, blk.Point.Slot, summary, stabilityWindow)

	switch {
	case isEpoch:
		b.state = statePreEwrapBoundary
		b.nextBlock = &blk
		b.endingEpoch = endingEpoch
	case isRupd:
		b.state = statePreRupdBoundary
		b.nextBlock = &blk
	default:
		b.batch = append(b.batch, blk)
		b.state = stateOpenBatch
	}
}

// PopWork advances the FSM by one step, returning the next WorkUnit to
// execute. ok is false when no work is currently ready (Empty, Restart,
// OpenBatch all wait for more blocks or a boundary).
func (b *Buffer) PopWork() (Work, bool) {
	switch b.state {
	case stateGenesis:
		blk := *b.genesisBlock
		b.batch = []Block{blk}
		b.genesisBlock = nil
		b.state = stateOpenBatch
		return Work{Kind: WorkGenesis, Batch: []Block{blk}}, true

	case statePreRupdBoundary:
		out := b.batch
		b.batch = nil
		b.state = stateRupdBoundary
		return Work{Kind: WorkBlocks, Batch: out}, true

	case stateRupdBoundary:
		slot := b.nextBlock.Point.Slot
		b.batch = []Block{*b.nextBlock}
		b.nextBlock = nil
		b.state = stateOpenBatch
		return Work{Kind: WorkRupd, Slot: slot}, true

	case statePreEwrapBoundary:
		out := b.batch
		b.batch = nil
		b.state = stateEwrapBoundary
		return Work{Kind: WorkBlocks, Batch: out}, true

	case stateEwrapBoundary:
		slot := b.nextBlock.Point.Slot
		epoch := b.endingEpoch
		b.nextEpoch = epoch + 1
		b.state = stateEstartBoundary
		return Work{Kind: WorkEwrap, Slot: slot, Epoch: epoch}, true

	case stateEstartBoundary:
		slot := b.nextBlock.Point.Slot
		epoch := b.nextEpoch
		peek := *b.nextBlock
		if b.stopEpoch != nil && epoch == *b.stopEpoch {
			b.forcedBlock = b.nextBlock
			b.nextBlock = nil
			b.state = statePreForcedStop
		} else {
			b.batch = []Block{*b.nextBlock}
			b.nextBlock = nil
			b.state = stateOpenBatch
		}
		// Batch carries a peek at the new epoch's first block so the
		// caller can check its protocol version for an era transition
		// before ESTART computes the new EpochState; the same block is
		// queued for the WorkBlocks that follows, not additional work.
		return Work{Kind: WorkEstart, Slot: slot, Epoch: epoch, Batch: []Block{peek}}, true

	case statePreForcedStop:
		out := []Block{*b.forcedBlock}
		b.forcedBlock = nil
		b.state = stateForcedStop
		return Work{Kind: WorkBlocks, Batch: out}, true

	case stateForcedStop:
		return Work{Kind: WorkForcedStop}, true

	default:
		return Work{}, false
	}
}

func (b *Buffer) String() string {
	names := [...]string{
		"Empty", "Genesis", "Restart", "OpenBatch", "PreRupdBoundary",
		"RupdBoundary", "PreEwrapBoundary", "EwrapBoundary",
		"EstartBoundary", "PreForcedStop", "ForcedStop",
	}
	if int(b.state) < len(names) {
		return names[b.state]
	}
	return fmt.Sprintf("unknown(%d)", b.state)
}
