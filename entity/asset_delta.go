package entity

import (
	"fmt"

	"github.com/containerman17/dolos-ledger/chain"
)

// AssetMintDelta applies a mint (positive) or burn (negative) quantity
// delta to (policy||name) (spec.md §4.3 asset visitor). The first mint of
// an asset records InitialTx/InitialSlot.
type AssetMintDelta struct {
	Policy   [28]byte
	Name     []byte
	Quantity int64
	Tx       chain.TxHash
	Slot     chain.Slot
	existedMarker
}

func (d *AssetMintDelta) Namespace() chain.Namespace { return chain.NamespaceAsset }
func (d *AssetMintDelta) Key() chain.EntityKey       { return assetKey(d.Policy, d.Name) }

func (d *AssetMintDelta) Apply(prev Entity) (Entity, error) {
	asset, ok := prev.(*AssetState)
	if !ok || asset == nil {
		d.existed = false
		return &AssetState{
			Quantity:    d.Quantity,
			InitialTx:   d.Tx,
			InitialSlot: d.Slot,
			MintTxCount: 1,
		}, nil
	}
	d.existed = true
	clone := *asset
	clone.Quantity += d.Quantity
	clone.MintTxCount++
	return &clone, nil
}

func (d *AssetMintDelta) Undo(next Entity) (Entity, error) {
	if !d.existed {
		return nil, nil
	}
	asset, ok := next.(*AssetState)
	if !ok || asset == nil {
		return nil, fmt.Errorf("undo mint: asset not found")
	}
	clone := *asset
	clone.Quantity -= d.Quantity
	clone.MintTxCount--
	return &clone, nil
}
