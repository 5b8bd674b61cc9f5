package mempool

import (
	"testing"

	"github.com/containerman17/dolos-ledger/chain"
	"github.com/containerman17/dolos-ledger/collab"
)

// submitAndPropagate receives tx and walks it straight to Propagated, the
// common starting point for the confirm() scenarios below.
func submitAndPropagate(t *testing.T, m *Mempool, tx collab.MempoolTx) {
	t.Helper()
	if err := m.Receive(tx); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := m.MarkInflight([]chain.TxHash{tx.Hash}); err != nil {
		t.Fatalf("MarkInflight: %v", err)
	}
}

func TestConfirmPropagatedTxFirstSeenBecomesConfirmed(t *testing.T) {
	m := openTestMempool(t)
	tx := testTx(1)
	submitAndPropagate(t, m, tx)

	point := testPoint(100, 1)
	if err := m.Confirm(point, []chain.TxHash{tx.Hash}, nil, 5, 5); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	status, err := m.CheckStatus(tx.Hash)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if status.Stage != collab.StageConfirmed {
		t.Fatalf("stage = %v, want Confirmed", status.Stage)
	}
	if status.Confirmations != 1 {
		t.Fatalf("confirmations = %d, want 1", status.Confirmations)
	}
}

func TestConfirmFinalizesAfterThreshold(t *testing.T) {
	m := openTestMempool(t)
	tx := testTx(1)
	submitAndPropagate(t, m, tx)

	const finalizeThreshold = 3
	for i := 0; i < finalizeThreshold; i++ {
		point := testPoint(chain.Slot(100+i), byte(i+1))
		if err := m.Confirm(point, []chain.TxHash{tx.Hash}, nil, finalizeThreshold, 10); err != nil {
			t.Fatalf("Confirm[%d]: %v", i, err)
		}
	}

	status, err := m.CheckStatus(tx.Hash)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if status.Stage != collab.StageFinalized {
		t.Fatalf("stage = %v, want Finalized after %d confirmations", status.Stage, finalizeThreshold)
	}

	page, err := m.DumpFinalized(0, -1)
	if err != nil {
		t.Fatalf("DumpFinalized: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 || page.Items[0].Hash != tx.Hash {
		t.Fatalf("DumpFinalized = %+v, want single entry for %x", page, tx.Hash)
	}
}

func TestConfirmNotFinalizedBeforeThreshold(t *testing.T) {
	m := openTestMempool(t)
	tx := testTx(1)
	submitAndPropagate(t, m, tx)

	const finalizeThreshold = 5
	for i := 0; i < finalizeThreshold-1; i++ {
		point := testPoint(chain.Slot(100+i), byte(i+1))
		if err := m.Confirm(point, []chain.TxHash{tx.Hash}, nil, finalizeThreshold, 10); err != nil {
			t.Fatalf("Confirm[%d]: %v", i, err)
		}
	}

	status, err := m.CheckStatus(tx.Hash)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if status.Stage != collab.StageConfirmed {
		t.Fatalf("stage = %v, want still Confirmed (not yet at threshold)", status.Stage)
	}
	if status.Confirmations != finalizeThreshold-1 {
		t.Fatalf("confirmations = %d, want %d", status.Confirmations, finalizeThreshold-1)
	}
}

// TestConfirmedTxKeepsGrowingWithoutReappearingInSeen covers the
// behavior original_source/tests/mempool.rs exercises that mempool.rs's
// own apply() doesn't implement: once a tx is Confirmed, it doesn't need
// to be re-named in seen every round to keep accumulating toward
// finalize_threshold.
func TestConfirmedTxKeepsGrowingWithoutReappearingInSeen(t *testing.T) {
	m := openTestMempool(t)
	tx := testTx(1)
	submitAndPropagate(t, m, tx)

	if err := m.Confirm(testPoint(100, 1), []chain.TxHash{tx.Hash}, nil, 3, 10); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	// Neither seen nor unseen this round; should still grow since it's
	// already Confirmed.
	if err := m.Confirm(testPoint(101, 2), nil, nil, 3, 10); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	status, err := m.CheckStatus(tx.Hash)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if status.Stage != collab.StageConfirmed {
		t.Fatalf("stage = %v, want Confirmed", status.Stage)
	}
	if status.Confirmations != 2 {
		t.Fatalf("confirmations = %d, want 2 (grew without reappearing in seen)", status.Confirmations)
	}
}

func TestConfirmDropsAfterThreshold(t *testing.T) {
	m := openTestMempool(t)
	tx := testTx(1)
	submitAndPropagate(t, m, tx)

	const dropThreshold = 3
	for i := 0; i < dropThreshold; i++ {
		point := testPoint(chain.Slot(100+i), byte(i+1))
		// never named in seen: non_confirmations grows every round
		if err := m.Confirm(point, nil, nil, 10, dropThreshold); err != nil {
			t.Fatalf("Confirm[%d]: %v", i, err)
		}
	}

	status, err := m.CheckStatus(tx.Hash)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if status.Stage != collab.StageDropped {
		t.Fatalf("stage = %v, want Dropped after %d unseen rounds", status.Stage, dropThreshold)
	}
}

func TestConfirmNotDroppedBeforeThreshold(t *testing.T) {
	m := openTestMempool(t)
	tx := testTx(1)
	submitAndPropagate(t, m, tx)

	const dropThreshold = 5
	for i := 0; i < dropThreshold-1; i++ {
		point := testPoint(chain.Slot(100+i), byte(i+1))
		if err := m.Confirm(point, nil, nil, 10, dropThreshold); err != nil {
			t.Fatalf("Confirm[%d]: %v", i, err)
		}
	}

	status, err := m.CheckStatus(tx.Hash)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if status.Stage != collab.StagePropagated {
		t.Fatalf("stage = %v, want still Propagated (not yet at drop threshold)", status.Stage)
	}
}

// TestConfirmUnseenRollsBackRegardlessOfDepth covers unseen's
// unconditional rollback — even a tx with several prior confirmations
// goes straight back to Pending on an explicit unseen, no partial decay.
func TestConfirmUnseenRollsBackRegardlessOfDepth(t *testing.T) {
	m := openTestMempool(t)
	tx := testTx(1)
	submitAndPropagate(t, m, tx)

	for i := 0; i < 2; i++ {
		point := testPoint(chain.Slot(100+i), byte(i+1))
		if err := m.Confirm(point, []chain.TxHash{tx.Hash}, nil, 10, 10); err != nil {
			t.Fatalf("Confirm[%d]: %v", i, err)
		}
	}

	status, err := m.CheckStatus(tx.Hash)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if status.Confirmations != 2 {
		t.Fatalf("confirmations = %d, want 2 before rollback", status.Confirmations)
	}

	if err := m.Confirm(testPoint(102, 3), nil, []chain.TxHash{tx.Hash}, 10, 10); err != nil {
		t.Fatalf("Confirm (unseen): %v", err)
	}

	status, err = m.CheckStatus(tx.Hash)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if status.Stage != collab.StagePending {
		t.Fatalf("stage after unseen = %v, want Pending", status.Stage)
	}

	has, err := m.HasPending()
	if err != nil {
		t.Fatalf("HasPending: %v", err)
	}
	if !has {
		t.Fatalf("HasPending after rollback = false, want true")
	}
}

// TestConfirmReConfirmAfterRollback covers a tx resuming the Confirmed
// climb from zero after a reorg rolled it back to Pending — the counters
// genuinely reset, they don't resume from where they left off.
func TestConfirmReConfirmAfterRollback(t *testing.T) {
	m := openTestMempool(t)
	tx := testTx(1)
	submitAndPropagate(t, m, tx)

	if err := m.Confirm(testPoint(100, 1), []chain.TxHash{tx.Hash}, nil, 10, 10); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := m.Confirm(testPoint(101, 2), nil, []chain.TxHash{tx.Hash}, 10, 10); err != nil {
		t.Fatalf("Confirm (unseen): %v", err)
	}

	// Back in Pending; re-propagate and re-confirm.
	if err := m.MarkInflight([]chain.TxHash{tx.Hash}); err != nil {
		t.Fatalf("MarkInflight: %v", err)
	}
	if err := m.Confirm(testPoint(102, 3), []chain.TxHash{tx.Hash}, nil, 10, 10); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	status, err := m.CheckStatus(tx.Hash)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if status.Stage != collab.StageConfirmed {
		t.Fatalf("stage = %v, want Confirmed", status.Stage)
	}
	if status.Confirmations != 1 {
		t.Fatalf("confirmations = %d, want 1 (fresh climb after rollback)", status.Confirmations)
	}
}

// TestConfirmMixedBatchIndependentOutcomes covers several txs moving
// through confirm() independently in the same round: one finalizing, one
// dropping, one still too early to resolve either way. Acknowledgment
// alone doesn't exempt a tx from the drop counter — only an actual
// confirmation does — so the never-confirmed acknowledged tx here drops
// on the same schedule as a merely-propagated one.
func TestConfirmMixedBatchIndependentOutcomes(t *testing.T) {
	m := openTestMempool(t)
	finalizing := testTx(1)
	dropping := testTx(2)
	tooEarly := testTx(3)
	submitAndPropagate(t, m, finalizing)
	submitAndPropagate(t, m, dropping)
	if err := m.MarkAcknowledged([]chain.TxHash{dropping.Hash}); err != nil {
		t.Fatalf("MarkAcknowledged: %v", err)
	}

	const finalizeThreshold, dropThreshold = 2, 3

	// Round 1: finalizing seen; dropping untouched. tooEarly isn't in
	// the active set yet, so it only accumulates over rounds 2 and 3.
	if err := m.Confirm(testPoint(100, 1), []chain.TxHash{finalizing.Hash}, nil, finalizeThreshold, dropThreshold); err != nil {
		t.Fatalf("Confirm round 1: %v", err)
	}
	submitAndPropagate(t, m, tooEarly)
	// Round 2: finalizing seen again -> finalizes; dropping and tooEarly
	// both untouched.
	if err := m.Confirm(testPoint(101, 2), []chain.TxHash{finalizing.Hash}, nil, finalizeThreshold, dropThreshold); err != nil {
		t.Fatalf("Confirm round 2: %v", err)
	}
	// Round 3: dropping reaches drop_threshold (3rd untouched round);
	// tooEarly is only on its 2nd, one short.
	if err := m.Confirm(testPoint(102, 3), nil, nil, finalizeThreshold, dropThreshold); err != nil {
		t.Fatalf("Confirm round 3: %v", err)
	}

	fStatus, err := m.CheckStatus(finalizing.Hash)
	if err != nil {
		t.Fatalf("CheckStatus(finalizing): %v", err)
	}
	if fStatus.Stage != collab.StageFinalized {
		t.Fatalf("finalizing stage = %v, want Finalized", fStatus.Stage)
	}

	dStatus, err := m.CheckStatus(dropping.Hash)
	if err != nil {
		t.Fatalf("CheckStatus(dropping): %v", err)
	}
	if dStatus.Stage != collab.StageDropped {
		t.Fatalf("dropping stage = %v, want Dropped (acknowledgment doesn't exempt from the drop counter)", dStatus.Stage)
	}

	eStatus, err := m.CheckStatus(tooEarly.Hash)
	if err != nil {
		t.Fatalf("CheckStatus(tooEarly): %v", err)
	}
	if eStatus.Stage != collab.StagePropagated {
		t.Fatalf("tooEarly stage = %v, want still Propagated (one round short of drop_threshold)", eStatus.Stage)
	}
	if eStatus.NonConfirmations != dropThreshold-1 {
		t.Fatalf("tooEarly non_confirmations = %d, want %d", eStatus.NonConfirmations, dropThreshold-1)
	}
}

func TestDumpFinalizedPagination(t *testing.T) {
	m := openTestMempool(t)
	const n = 5
	txs := make([]collab.MempoolTx, n)
	for i := 0; i < n; i++ {
		tx := testTx(byte(i + 1))
		txs[i] = tx
		submitAndPropagate(t, m, tx)
		if err := m.Confirm(testPoint(chain.Slot(100+i), byte(i+1)), []chain.TxHash{tx.Hash}, nil, 1, 10); err != nil {
			t.Fatalf("Confirm[%d]: %v", i, err)
		}
	}

	page, err := m.DumpFinalized(1, 2)
	if err != nil {
		t.Fatalf("DumpFinalized: %v", err)
	}
	if page.Total != n {
		t.Fatalf("Total = %d, want %d", page.Total, n)
	}
	if len(page.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(page.Items))
	}
	if page.Items[0].Hash != txs[1].Hash || page.Items[1].Hash != txs[2].Hash {
		t.Fatalf("DumpFinalized(1, 2) returned wrong slice: %+v", page.Items)
	}
}
