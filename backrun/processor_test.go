// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package backrun

import (
	"context"
	"math/big"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/events"
	"github.com/luxfi/loom/market"
	"github.com/luxfi/loom/mempool"
)

// TestProcessorRunDispatchesAndDrainsPendingTx drives Processor.Run's
// per-tx dispatch (one goroutine per spec.md §4.2's "dispatches one
// goroutine per actionable pending tx") through a full header->tx->state
// cycle, then checks no goroutine it spawned is still running once Run has
// returned.
func TestProcessorRunDispatchesAndDrainsPendingTx(t *testing.T) {
	ctrl := gomock.NewController(t)
	oracle := NewMockTraceOracle(ctrl)

	traced := make(chan struct{}, 1)
	oracle.EXPECT().TraceCallDiff(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, CallRequest) (chain.StateDiff, chain.StateDiff, error) {
			traced <- struct{}{}
			return chain.StateDiff{}, chain.StateDiff{}, nil
		})

	p := &Processor{
		Oracle:       oracle,
		Market:       market.New(),
		Mempool:      mempool.New(),
		MarketEvents: events.NewBroadcaster[events.MarketEvent](4, nil),
		MempoolTxs:   events.NewBroadcaster[events.MempoolTx](4, nil),
		StateUpdates: events.NewBroadcaster[events.StateUpdateEvent](4, nil),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.MarketEvents.Send(events.MarketEvent{Header: &events.BlockHeaderUpdate{
		Number: 100, NextBaseFee: big.NewInt(1_000_000_000),
	}})
	p.MarketEvents.Send(events.MarketEvent{State: &events.BlockStateUpdate{}})

	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tx := types.NewTx(&types.LegacyTx{GasPrice: big.NewInt(2_000_000_000), Gas: 21000, To: &to, Value: big.NewInt(0)})
	p.MempoolTxs.Send(events.MempoolTx{Source: "test", Tx: tx})

	select {
	case <-traced:
	case <-time.After(time.Second):
		t.Fatal("processTx never called the oracle")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}
