// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package searcher

import (
	"context"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/events"
	"github.com/luxfi/loom/market"
	"github.com/luxfi/loom/pool"
	"github.com/luxfi/loom/statedb"
)

// mispricedPair builds two ConstantProductPools on the same (tokenA, tokenB)
// pair with different reserve ratios, so a cyclic path through both is
// profitable: buy the cheap side, sell the expensive side.
func mispricedPair(t *testing.T) (m *market.Market, path *market.SwapPath, db *statedb.StateDB, tokenA, tokenB common.Address, addrX, addrY common.Address) {
	t.Helper()

	tokenA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenB = common.HexToAddress("0x2222222222222222222222222222222222222222")
	addrX = common.HexToAddress("0x3333333333333333333333333333333333333333")
	addrY = common.HexToAddress("0x4444444444444444444444444444444444444444")

	poolX := pool.NewConstantProductPool(addrX, pool.ProtocolUniswapV2, tokenA, tokenB, true)
	poolY := pool.NewConstantProductPool(addrY, pool.ProtocolUniswapV2, tokenB, tokenA, true)

	m = market.New()
	tA := chain.NewToken(tokenA, "A", 18)
	tA.Basic = true
	m.AddToken(tA)
	m.AddToken(chain.NewToken(tokenB, "B", 18))
	require.NoError(t, m.AddPool(poolX))
	require.NoError(t, m.AddPool(poolY))

	path = &market.SwapPath{
		Tokens: []*chain.Token{m.GetToken(tokenA), m.GetToken(tokenB), m.GetToken(tokenA)},
		Pools:  []pool.Pool{poolX, poolY},
	}
	m.AddPaths([]*market.SwapPath{path})

	cache := statedb.NewCache(16, 1<<16)
	db = statedb.New(common.Hash{}, cache, nil)
	// poolX prices 1 tokenA ~= 2 tokenB; poolY prices 1 tokenB ~= 1 tokenA.
	// Round-tripping A -> B (poolX) -> A (poolY) nets a profit even after
	// each hop's 0.3% fee.
	setReserves(db, addrX, uint256.NewInt(1_000_000_000_000_000_000_000), uint256.NewInt(2_000_000_000_000_000_000_000))
	setReserves(db, addrY, uint256.NewInt(1_000_000_000_000_000_000_000), uint256.NewInt(1_000_000_000_000_000_000_000))
	return m, path, db, tokenA, tokenB, addrX, addrY
}

// setReserves packs (reserve0, reserve1) into slot 8, the layout
// ConstantProductPool's knownFactory path reads from.
func setReserves(db *statedb.StateDB, addr common.Address, reserve0, reserve1 *uint256.Int) {
	packed := new(uint256.Int).Or(reserve0, new(uint256.Int).Lsh(reserve1, 112))
	db.SetState(addr, common.BigToHash(common.Big8), common.BigToHash(packed.ToBig()))
}

func TestHandleStateUpdateEmitsPrepareOnProfit(t *testing.T) {
	m, _, db, tokenA, tokenB, addrX, _ := mispricedPair(t)

	composeEvents := events.NewBroadcaster[events.SwapComposeData](4, nil)
	sub := composeEvents.Subscribe()
	defer sub.Unsubscribe()

	s := &Searcher{Market: m, ComposeEvents: composeEvents, HealthEvents: events.NewBroadcaster[events.HealthEvent](4, nil)}

	evt := events.StateUpdateEvent{
		StateDB:       db,
		AffectedPools: []events.AffectedPool{{Pool: addrX, From: tokenA, To: tokenB}},
		Origin:        "test",
	}
	require.NoError(t, s.HandleStateUpdate(context.Background(), evt))

	select {
	case got := <-sub.C():
		require.Equal(t, events.StagePrepare, got.Stage)
		require.NotNil(t, got.Swap)
		profit, err := got.Swap.Profit()
		require.NoError(t, err)
		require.True(t, profit.Sign() > 0)
	default:
		t.Fatalf("expected a SwapComposeData to be published")
	}
}

func TestHandleStateUpdateIgnoresUnaffectedPools(t *testing.T) {
	m, _, db, _, _, _, _ := mispricedPair(t)
	composeEvents := events.NewBroadcaster[events.SwapComposeData](4, nil)
	sub := composeEvents.Subscribe()
	defer sub.Unsubscribe()

	s := &Searcher{Market: m, ComposeEvents: composeEvents}

	evt := events.StateUpdateEvent{
		StateDB: db,
		AffectedPools: []events.AffectedPool{{
			Pool: common.HexToAddress("0x9999999999999999999999999999999999999999"),
			From: common.HexToAddress("0x1111111111111111111111111111111111111111"),
			To:   common.HexToAddress("0x2222222222222222222222222222222222222222"),
		}},
	}
	require.NoError(t, s.HandleStateUpdate(context.Background(), evt))

	select {
	case <-sub.C():
		t.Fatalf("expected no SwapComposeData for an unregistered pool")
	default:
	}
}

func TestHandleStateUpdateRejectsNilStateDB(t *testing.T) {
	s := &Searcher{Market: market.New()}
	err := s.HandleStateUpdate(context.Background(), events.StateUpdateEvent{})
	require.Error(t, err)
}

func TestGasCostAdjustedWithoutPriceDefaultsTrue(t *testing.T) {
	tok := chain.NewToken(common.Address{}, "X", 18)
	require.True(t, gasCostAdjusted(tok, big.NewInt(100), 21000, big.NewInt(1)))
}
