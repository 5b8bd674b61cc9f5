package collab

import (
	"context"

	"github.com/containerman17/dolos-ledger/chain"
)

// RawBlock is one era-tagged block as handed off the wire, before
// BlockDecoder ever sees it — just enough for workbuffer.Block.
type RawBlock struct {
	Point chain.ChainPoint
	Era   chain.EraTag
	Raw   []byte
}

// NetworkSource is the external collaborator spec.md §6.1 calls the
// node's upstream chain-sync client: it feeds RawBlocks (and rollback
// notifications) to the core, which only ever calls ReceiveBlock in
// response. Kept as narrow a contract as BlockDecoder for the same
// reason — the concrete sync protocol (a local node's Unix socket, a
// remote relay's mini-protocols, or in this core's case a websocket
// feed, per SPEC_FULL.md's domain-stack table) is external, and the core
// never needs to know which.
type NetworkSource interface {
	// Subscribe starts delivering RawBlocks on the returned channel from
	// the given resume point onward, until ctx is canceled. The channel
	// closes when the source gives up (after exhausting its own retry
	// policy) or ctx is done.
	Subscribe(ctx context.Context, resumeFrom chain.ChainPoint) (<-chan RawBlock, <-chan error)
}
