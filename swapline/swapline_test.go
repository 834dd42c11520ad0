// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package swapline

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/market"
	"github.com/luxfi/loom/pool"
	"github.com/luxfi/loom/statedb"
)

// reservesSlot mirrors pool.ConstantProductPool's packed reserve slot (slot 8
// in the canonical UniswapV2Pair layout) for test fixture construction.
var reservesSlot = common.BigToHash(common.Big8)

const reserveBits = 112

func newCPPool(addr, token0, token1 common.Address, reserve0, reserve1 *uint256.Int, db *statedb.StateDB) *pool.ConstantProductPool {
	p := pool.NewConstantProductPool(addr, pool.ProtocolUniswapV2, token0, token1, true)
	packed := new(uint256.Int).Or(reserve0, new(uint256.Int).Lsh(reserve1, reserveBits))
	db.SetState(addr, reservesSlot, common.BigToHash(packed.ToBig()))
	return p
}

// arbLine builds a cyclic WETH -> TOKEN1 -> WETH SwapLine across two
// differently-priced constant-product pools, buying TOKEN1 in pool B (2100
// per WETH) and selling it in pool A (2000 per WETH), so a profitable
// amount_in exists for the optimizer to find.
func arbLine(t *testing.T) (*SwapLine, *statedb.StateDB) {
	t.Helper()
	weth := common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	token1 := common.HexToAddress("0x1100000000000000000000000000000000000011")

	poolA := common.HexToAddress("0xaa00000000000000000000000000000000000a")
	poolB := common.HexToAddress("0xbb00000000000000000000000000000000000b")

	cache := statedb.NewCache(16, 1<<16)
	db := statedb.New(common.Hash{}, cache, nil)

	pA := newCPPool(poolA, weth, token1,
		uint256.MustFromDecimal("1000000000000000000000"),     // 1000 WETH
		uint256.MustFromDecimal("2000000000000000000000000"), // 2,000,000 TOKEN1 -> price 2000 TOKEN1/WETH
		db,
	)
	pB := newCPPool(poolB, token1, weth,
		uint256.MustFromDecimal("2100000000000000000000000"), // 2,100,000 TOKEN1
		uint256.MustFromDecimal("1000000000000000000000"),    // 1000 WETH -> price 2100 TOKEN1/WETH
		db,
	)

	wethToken := chain.NewToken(weth, "WETH", 18)
	token1Token := chain.NewToken(token1, "TOKEN1", 18)
	path := &market.SwapPath{
		Tokens: []*chain.Token{wethToken, token1Token, wethToken},
		Pools:  []pool.Pool{pB, pA},
	}
	return New(path), db
}

func TestOptimizeWithInAmountFindsProfitablePath(t *testing.T) {
	line, db := arbLine(t)
	ctx := context.Background()

	out, err := line.OptimizeWithInAmount(ctx, db, uint256.NewInt(1_000_000_000_000_000_000)) // 1 WETH
	require.NoError(t, err)
	require.Equal(t, AmountSet, out.AmountIn.Kind)
	require.Equal(t, AmountSet, out.AmountOut.Kind)

	profit, err := out.Profit()
	require.NoError(t, err)
	require.True(t, profit.Sign() > 0, "optimizer should find a profitable amount_in on a mispriced pair")
}

func TestOptimizeWithInAmountIsLocallyOptimal(t *testing.T) {
	line, db := arbLine(t)
	ctx := context.Background()

	out, err := line.OptimizeWithInAmount(ctx, db, uint256.NewInt(1_000_000_000_000_000_000))
	require.NoError(t, err)

	bestIn := out.AmountIn.Value
	bestProfit, err := out.Profit()
	require.NoError(t, err)

	// Perturb the converged amount_in by +/-0.1% (the final step size the
	// optimizer terminates at) and check neither perturbation does better,
	// matching spec.md §8 scenario 6's monotonicity requirement.
	delta := new(uint256.Int).Div(bestIn, uint256.NewInt(1000))
	up := new(uint256.Int).Add(bestIn, delta)
	down := new(uint256.Int).Sub(bestIn, delta)

	probe := New(line.Path)
	outUp, gasUp, err := probe.calculateWithInAmount(ctx, db, up)
	require.NoError(t, err)
	_ = gasUp
	profitUp := calcProfit(up, outUp)

	outDown, gasDown, err := probe.calculateWithInAmount(ctx, db, down)
	require.NoError(t, err)
	_ = gasDown
	profitDown := calcProfit(down, outDown)

	require.True(t, bestProfit.Cmp(profitUp) >= 0)
	require.True(t, bestProfit.Cmp(profitDown) >= 0)
}

func TestSplitResetsOtherSideAmount(t *testing.T) {
	line, _ := arbLine(t)
	line.AmountIn = SetAmount(uint256.NewInt(1))
	line.AmountOut = SetAmount(uint256.NewInt(2))

	prefix, suffix, err := line.Split(1)
	require.NoError(t, err)
	require.Equal(t, AmountSet, prefix.AmountIn.Kind)
	require.Equal(t, AmountNotSet, prefix.AmountOut.Kind)
	require.Equal(t, AmountNotSet, suffix.AmountIn.Kind)
	require.Equal(t, AmountSet, suffix.AmountOut.Kind)
}

func TestCanFlashSwapRequiresEveryPool(t *testing.T) {
	line, _ := arbLine(t)
	require.True(t, line.CanFlashSwap(), "both constant-product pools in the fixture support flash swaps")
}
