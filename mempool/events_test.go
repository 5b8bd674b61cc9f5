package mempool

import (
	"testing"
	"time"

	"github.com/containerman17/dolos-ledger/collab"
)

func TestSubscribePublishesReceiveEvent(t *testing.T) {
	m := openTestMempool(t)
	ch, unsubscribe := m.Subscribe(4)
	defer unsubscribe()

	tx := testTx(1)
	if err := m.Receive(tx); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Stage != collab.StagePending || ev.Tx.Hash != tx.Hash {
			t.Fatalf("event = %+v, want Pending for %x", ev, tx.Hash)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Receive event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := openTestMempool(t)
	ch, unsubscribe := m.Subscribe(4)
	unsubscribe()

	if err := m.Receive(testTx(1)); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	_, open := <-ch
	if open {
		t.Fatal("channel still open/delivering after unsubscribe")
	}
}

func TestSlowSubscriberNeverBlocksWriter(t *testing.T) {
	m := openTestMempool(t)
	ch, unsubscribe := m.Subscribe(1)
	defer unsubscribe()

	// Fill the buffer, then submit past capacity: publish must drop
	// rather than block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			if err := m.Receive(testTx(byte(i + 1))); err != nil {
				t.Errorf("Receive: %v", err)
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Receive blocked on a slow subscriber")
	}
	<-ch // drain the one buffered event so the test doesn't leak a goroutine reference
}
