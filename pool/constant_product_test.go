// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/loom/statedb"
)

// usdcWethPool builds the scenario-1 fixture from spec.md §8: the mainnet
// USDC/WETH v2 pair at 0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc.
func usdcWethPool(t *testing.T, reserve0, reserve1 *uint256.Int) (*ConstantProductPool, *statedb.StateDB) {
	t.Helper()
	addr := common.HexToAddress("0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc")
	usdc := common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	weth := common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	p := NewConstantProductPool(addr, ProtocolUniswapV2, usdc, weth, true)

	packed := new(uint256.Int).Or(reserve0, new(uint256.Int).Lsh(reserve1, reserveBits))
	cache := statedb.NewCache(16, 1<<16)
	db := statedb.New(common.Hash{}, cache, nil)
	db.SetState(addr, reservesSlot, common.BigToHash(packed.ToBig()))
	return p, db
}

func TestConstantProductOutAmountMatchesFormula(t *testing.T) {
	reserve0 := uint256.NewInt(50_000_000_000_000) // USDC, 6dp
	reserve1 := uint256.NewInt(20_000_000_000_000_000_000) // WETH, 18dp units (scaled down for the test)
	p, db := usdcWethPool(t, reserve0, reserve1)

	amountIn := uint256.NewInt(133_333_333_333)
	out, gas, err := p.CalculateOutAmount(context.Background(), db, p.token0, p.token1, amountIn)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000), gas)

	amountInWithFee := new(uint256.Int).Mul(amountIn, uint256.NewInt(9970))
	num := new(uint256.Int).Mul(amountInWithFee, reserve1)
	den := new(uint256.Int).Add(new(uint256.Int).Mul(reserve0, uint256.NewInt(10000)), amountInWithFee)
	want := new(uint256.Int).Div(num, den)
	want = want.Sub(want, uint256.NewInt(1))

	require.True(t, out.Eq(want))
}

func TestConstantProductMonotoneInAmountIn(t *testing.T) {
	reserve0 := uint256.NewInt(50_000_000_000_000)
	reserve1 := uint256.NewInt(20_000_000_000_000_000_000)
	p, db := usdcWethPool(t, reserve0, reserve1)

	small := uint256.NewInt(1_000_000)
	large := uint256.NewInt(2_000_000)

	outSmall, _, err := p.CalculateOutAmount(context.Background(), db, p.token0, p.token1, small)
	require.NoError(t, err)
	outLarge, _, err := p.CalculateOutAmount(context.Background(), db, p.token0, p.token1, large)
	require.NoError(t, err)

	require.True(t, outLarge.Gt(outSmall), "calculate_out_amount must be strictly monotone in amount_in")
}

func TestConstantProductInAmountRoundTrips(t *testing.T) {
	reserve0 := uint256.NewInt(50_000_000_000_000)
	reserve1 := uint256.NewInt(20_000_000_000_000_000_000)
	p, db := usdcWethPool(t, reserve0, reserve1)

	amountIn := uint256.NewInt(10_000_000)
	ctx := context.Background()
	out, _, err := p.CalculateOutAmount(ctx, db, p.token0, p.token1, amountIn)
	require.NoError(t, err)

	back, _, err := p.CalculateInAmount(ctx, db, p.token0, p.token1, out)
	require.NoError(t, err)
	require.True(t, back.Cmp(amountIn) >= 0, "calculate_in_amount(calculate_out_amount(x)) must be >= x")
}

func TestConstantProductRejectsUnsupportedDirection(t *testing.T) {
	reserve0 := uint256.NewInt(1000)
	reserve1 := uint256.NewInt(1000)
	p, db := usdcWethPool(t, reserve0, reserve1)

	other := common.HexToAddress("0x0000000000000000000000000000000000000099")
	_, _, err := p.CalculateOutAmount(context.Background(), db, other, p.token1, uint256.NewInt(1))
	require.Error(t, err)
}
