package mempool

import (
	"testing"

	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/collab"
)

func testHash(b byte) chain.TxHash {
	var h chain.TxHash
	h[0] = b
	return h
}

func testPoint(slot chain.Slot, b byte) chain.ChainPoint {
	var h chain.BlockHash
	h[0] = b
	return chain.NewChainPoint(slot, h)
}

func testTx(b byte) collab.MempoolTx {
	return collab.MempoolTx{
		Hash:    testHash(b),
		Payload: chain.EraCbor{Era: chain.EraTag(1), Bytes: []byte{0xAA, b}},
	}
}

func openTestMempool(t *testing.T) *Mempool {
	t.Helper()
	m, err := Open(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestReceiveAndPending(t *testing.T) {
	m := openTestMempool(t)

	has, err := m.HasPending()
	if err != nil {
		t.Fatalf("HasPending: %v", err)
	}
	if has {
		t.Fatalf("HasPending on empty store = true, want false")
	}

	for _, b := range []byte{1, 2, 3} {
		if err := m.Receive(testTx(b)); err != nil {
			t.Fatalf("Receive(%d): %v", b, err)
		}
	}

	has, err = m.HasPending()
	if err != nil {
		t.Fatalf("HasPending: %v", err)
	}
	if !has {
		t.Fatalf("HasPending after Receive = false, want true")
	}

	all, err := m.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Pending len = %d, want 3", len(all))
	}
	for i, want := range []byte{1, 2, 3} {
		if all[i].Hash != testHash(want) {
			t.Errorf("Pending()[%d].Hash = %x, want FIFO order %x", i, all[i].Hash, testHash(want))
		}
	}

	page, err := m.PeekPending(2)
	if err != nil {
		t.Fatalf("PeekPending: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("PeekPending(2) len = %d, want 2", len(page))
	}
}

func TestMarkInflightAndAcknowledged(t *testing.T) {
	m := openTestMempool(t)
	tx := testTx(1)
	if err := m.Receive(tx); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	if err := m.MarkInflight([]chain.TxHash{tx.Hash}); err != nil {
		t.Fatalf("MarkInflight: %v", err)
	}

	has, err := m.HasPending()
	if err != nil {
		t.Fatalf("HasPending: %v", err)
	}
	if has {
		t.Fatalf("HasPending after MarkInflight = true, want false (tx moved to active)")
	}

	got, ok, err := m.GetInflight(tx.Hash)
	if err != nil {
		t.Fatalf("GetInflight: %v", err)
	}
	if !ok {
		t.Fatalf("GetInflight not found right after MarkInflight")
	}
	if got.Hash != tx.Hash {
		t.Errorf("GetInflight hash = %x, want %x", got.Hash, tx.Hash)
	}

	status, err := m.CheckStatus(tx.Hash)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if status.Stage != collab.StagePropagated {
		t.Errorf("CheckStatus after MarkInflight = %v, want Propagated", status.Stage)
	}

	if err := m.MarkAcknowledged([]chain.TxHash{tx.Hash}); err != nil {
		t.Fatalf("MarkAcknowledged: %v", err)
	}

	status, err = m.CheckStatus(tx.Hash)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if status.Stage != collab.StageAcknowledged {
		t.Errorf("CheckStatus after MarkAcknowledged = %v, want Acknowledged", status.Stage)
	}

	if _, ok, err := m.GetInflight(tx.Hash); err != nil {
		t.Fatalf("GetInflight: %v", err)
	} else if ok {
		t.Errorf("GetInflight after MarkAcknowledged = found, want not found (out of the strict inflight window)")
	}
}

func TestCheckStatusUnknown(t *testing.T) {
	m := openTestMempool(t)
	status, err := m.CheckStatus(testHash(0xFF))
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if status.Stage != collab.StageUnknown {
		t.Errorf("CheckStatus on unknown hash = %v, want Unknown", status.Stage)
	}
}
