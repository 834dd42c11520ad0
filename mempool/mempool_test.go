// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"math/big"
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
)

func sampleTx(nonce uint64) *types.Transaction {
	to := common.HexToAddress("0xdac17f958d2ee523a2206206994597c13d831ec")
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: big.NewInt(10_000_000_000),
		Gas:      21000,
		To:       &to,
		Value:    big.NewInt(1),
	})
}

func TestAddIsIdempotentPerHash(t *testing.T) {
	m := New()
	tx := sampleTx(0)

	entry, fresh := m.Add("ws", tx)
	if !fresh {
		t.Fatalf("expected the first Add to report fresh=true")
	}
	if entry.Hash != tx.Hash() {
		t.Fatalf("entry hash mismatch")
	}

	_, freshAgain := m.Add("ws", tx)
	if freshAgain {
		t.Fatalf("re-adding the same hash must report fresh=false")
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
}

func TestSetFailedMarksTheEntry(t *testing.T) {
	m := New()
	tx := sampleTx(1)
	m.Add("ws", tx)

	m.SetFailed(tx.Hash())
	entry, ok := m.Get(tx.Hash())
	if !ok || !entry.Failed {
		t.Fatalf("expected entry to be marked failed")
	}
}

func TestPruneRemovesOnlyOlderThanCutoff(t *testing.T) {
	m := New()
	old := sampleTx(2)
	m.Add("ws", old)
	m.txs[old.Hash()].FirstSeen = time.Now().Add(-time.Hour)

	fresh := sampleTx(3)
	m.Add("ws", fresh)

	removed := m.Prune(time.Now().Add(-time.Minute))
	if removed != 1 {
		t.Fatalf("Prune removed %d entries, want 1", removed)
	}
	if _, ok := m.Get(old.Hash()); ok {
		t.Fatalf("old entry should have been pruned")
	}
	if _, ok := m.Get(fresh.Hash()); !ok {
		t.Fatalf("fresh entry should have survived pruning")
	}
}
