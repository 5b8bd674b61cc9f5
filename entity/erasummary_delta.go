package entity

import (
	"encoding/binary"
	"fmt"

	"github.com/containerman17/dolos-ledger/chain"
)

func eraSummaryKey(protocol uint64) chain.EntityKey {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, protocol)
	return k
}

// EraSummaryOpenDelta opens a new EraSummary at genesis or at an era
// transition (spec.md §3.5 Genesis, §4.6 step 3).
type EraSummaryOpenDelta struct {
	Protocol uint64
	Summary  EraSummary
}

func (d *EraSummaryOpenDelta) Namespace() chain.Namespace { return chain.NamespaceEraSummary }
func (d *EraSummaryOpenDelta) Key() chain.EntityKey       { return eraSummaryKey(d.Protocol) }

func (d *EraSummaryOpenDelta) Apply(prev Entity) (Entity, error) {
	if prev != nil {
		return nil, fmt.Errorf("era summary %d already open", d.Protocol)
	}
	s := d.Summary
	return &s, nil
}

func (d *EraSummaryOpenDelta) Undo(Entity) (Entity, error) { return nil, nil }

// EraSummaryCloseDelta sets the End bound of a previously-open EraSummary
// when a new era begins (spec.md §4.6 step 3 and invariant 7: closed at
// start, open at end).
type EraSummaryCloseDelta struct {
	Protocol uint64
	End      EraBound
	prevEnd  *EraBound
}

func (d *EraSummaryCloseDelta) Namespace() chain.Namespace { return chain.NamespaceEraSummary }
func (d *EraSummaryCloseDelta) Key() chain.EntityKey       { return eraSummaryKey(d.Protocol) }

func (d *EraSummaryCloseDelta) Apply(prev Entity) (Entity, error) {
	s, ok := prev.(*EraSummary)
	if !ok || s == nil {
		return nil, fmt.Errorf("close era summary: protocol %d not found", d.Protocol)
	}
	clone := *s
	d.prevEnd = clone.End
	end := d.End
	clone.End = &end
	return &clone, nil
}

func (d *EraSummaryCloseDelta) Undo(next Entity) (Entity, error) {
	s, ok := next.(*EraSummary)
	if !ok || s == nil {
		return nil, fmt.Errorf("undo close era summary: protocol %d not found", d.Protocol)
	}
	clone := *s
	clone.End = d.prevEnd
	return &clone, nil
}
