// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package estimator

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/encoder"
	"github.com/luxfi/loom/events"
	"github.com/luxfi/loom/evm"
	"github.com/luxfi/loom/market"
	"github.com/luxfi/loom/pool"
	"github.com/luxfi/loom/statedb"
	"github.com/luxfi/loom/swapline"
)

// fakeCaller is a test double for evm.Caller's Call method, standing in for
// the real geth-backed executor the composition root assembles.
type fakeCaller struct {
	gasUsed    uint64
	accessList evm.AccessList
	err        error
}

func (f *fakeCaller) StaticCall(ctx context.Context, db *statedb.StateDB, env evm.BlockContext, to common.Address, data []byte) ([]byte, uint64, error) {
	return nil, 0, nil
}

func (f *fakeCaller) Call(ctx context.Context, db *statedb.StateDB, env evm.BlockContext, from, to common.Address, data []byte, value *uint256.Int, gasLimit uint64) ([]byte, uint64, evm.AccessList, error) {
	if f.err != nil {
		return nil, 0, nil, f.err
	}
	return nil, f.gasUsed, f.accessList, nil
}

func testSwapCompose(t *testing.T) events.SwapComposeData {
	t.Helper()
	tokenA := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenB := common.HexToAddress("0x2222222222222222222222222222222222222222")
	p := pool.NewConstantProductPool(common.HexToAddress("0x3333333333333333333333333333333333333333"), pool.ProtocolUniswapV2, tokenA, tokenB, true)

	path := &market.SwapPath{
		Tokens: []*chain.Token{chain.NewToken(tokenA, "A", 18), chain.NewToken(tokenB, "B", 18)},
		Pools:  []pool.Pool{p},
	}
	line := swapline.New(path)
	line.AmountIn = swapline.SetAmount(uint256.NewInt(1_000_000_000_000_000_000))

	cache := statedb.NewCache(16, 1<<16)
	db := statedb.New(common.Hash{}, cache, nil)

	return events.SwapComposeData{
		Stage:     events.StageEstimate,
		Swap:      line,
		PostState: db,
		Tx:        events.TxComposeData{NextBlockNumber: 1, GasLimit: 500_000},
	}
}

func TestHandleSwapComposeEmitsReadyOnSuccess(t *testing.T) {
	data := testSwapCompose(t)
	enc := encoder.New(common.HexToAddress("0x9999999999999999999999999999999999999999"), common.Address{})
	caller := &fakeCaller{gasUsed: 100_000, accessList: evm.AccessList{{Address: common.HexToAddress("0x4444444444444444444444444444444444444444")}}}

	e := New(caller, enc)
	composeEvents := events.NewBroadcaster[events.SwapComposeData](4, nil)
	sub := composeEvents.Subscribe()
	defer sub.Unsubscribe()
	e.ComposeEvents = composeEvents

	require.NoError(t, e.HandleSwapCompose(context.Background(), data))

	select {
	case got := <-sub.C():
		require.Equal(t, events.StageReady, got.Stage)
		require.Equal(t, uint64(150_000), got.Tx.GasLimit)
		require.Len(t, got.Tx.AccessList, 1)
	default:
		t.Fatalf("expected a SwapComposeData to be published")
	}
}

func TestHandleSwapComposeRejectsBelowGasFloor(t *testing.T) {
	data := testSwapCompose(t)
	enc := encoder.New(common.HexToAddress("0x9999999999999999999999999999999999999999"), common.Address{})
	caller := &fakeCaller{gasUsed: 1000}

	e := New(caller, enc)
	composeEvents := events.NewBroadcaster[events.SwapComposeData](4, nil)
	sub := composeEvents.Subscribe()
	defer sub.Unsubscribe()
	e.ComposeEvents = composeEvents
	healthEvents := events.NewBroadcaster[events.HealthEvent](4, nil)
	healthSub := healthEvents.Subscribe()
	defer healthSub.Unsubscribe()
	e.HealthEvents = healthEvents

	require.NoError(t, e.HandleSwapCompose(context.Background(), data))

	select {
	case <-sub.C():
		t.Fatalf("expected no SwapComposeData for a collapsed estimation")
	default:
	}
	select {
	case got := <-healthSub.C():
		require.NotNil(t, got.SwapLineEstimationError)
	default:
		t.Fatalf("expected a SwapLineEstimationError health event")
	}
}

func TestHandleSwapComposeIgnoresOtherStages(t *testing.T) {
	data := testSwapCompose(t)
	data.Stage = events.StagePrepare
	enc := encoder.New(common.HexToAddress("0x9999999999999999999999999999999999999999"), common.Address{})
	e := New(&fakeCaller{}, enc)
	composeEvents := events.NewBroadcaster[events.SwapComposeData](4, nil)
	sub := composeEvents.Subscribe()
	defer sub.Unsubscribe()
	e.ComposeEvents = composeEvents

	require.NoError(t, e.HandleSwapCompose(context.Background(), data))
	select {
	case <-sub.C():
		t.Fatalf("expected Prepare-stage data to be ignored")
	default:
	}
}
