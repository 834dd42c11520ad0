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

func TestConcentratedLiquidityDelegatesToQuoter(t *testing.T) {
	poolAddr := common.HexToAddress("0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640")
	quoter := common.HexToAddress("0x61ffe014ba17989e743c5f6cb21bf9697530b21e")
	usdc := common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	weth := common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")

	caller := newFakeCaller()
	expectedOut := uint256.NewInt(42_000_000)
	caller.onCall(quoter, quoteExactInputSingle, expectedOut)

	p := NewConcentratedLiquidityPool(poolAddr, ProtocolUniswapV3, usdc, weth, 5, quoter, 10, caller)
	cache := statedb.NewCache(16, 1<<16)
	db := statedb.New(common.Hash{}, cache, nil)

	out, gas, err := p.CalculateOutAmount(context.Background(), db, usdc, weth, uint256.NewInt(1_000_000))
	require.NoError(t, err)
	require.True(t, out.Eq(expectedOut))
	require.Equal(t, uint64(120_000), gas)
}

func TestConcentratedLiquidityRejectsUnsupportedDirection(t *testing.T) {
	poolAddr := common.HexToAddress("0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640")
	usdc := common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	weth := common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	other := common.HexToAddress("0x0000000000000000000000000000000000000099")

	p := NewConcentratedLiquidityPool(poolAddr, ProtocolUniswapV3, usdc, weth, 5, common.Address{}, 10, newFakeCaller())
	db := statedb.New(common.Hash{}, statedb.NewCache(1, 1<<10), nil)

	_, _, err := p.CalculateOutAmount(context.Background(), db, other, weth, uint256.NewInt(1))
	require.Error(t, err)
}

func TestMaverickDelegatesToQuoter(t *testing.T) {
	poolAddr := common.HexToAddress("0x14ab37803a655b2f95c61b0cd338010a7bc31ed1")
	quoter := common.HexToAddress("0xbeb6a4fccd49d2e95ee6a9a9b1bba9b3bf96fdd0")
	usdc := common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	weth := common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")

	caller := newFakeCaller()
	expectedOut := uint256.NewInt(7_000_000)
	caller.onCall(quoter, maverickQuoteSelector, expectedOut)

	p := NewMaverickPool(poolAddr, usdc, weth, 10, quoter, 0, 1, caller)
	db := statedb.New(common.Hash{}, statedb.NewCache(8, 1<<14), nil)

	out, _, err := p.CalculateOutAmount(context.Background(), db, usdc, weth, uint256.NewInt(500_000))
	require.NoError(t, err)
	require.True(t, out.Eq(expectedOut))
}

func TestNativePoolPricesAtParity(t *testing.T) {
	weth := common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	p := NewNativePool(weth)
	db := statedb.New(common.Hash{}, statedb.NewCache(1, 1<<10), nil)

	amount := uint256.NewInt(1_000_000_000_000_000_000)
	out, _, err := p.CalculateOutAmount(context.Background(), db, common.Address{}, weth, amount)
	require.NoError(t, err)
	require.True(t, out.Eq(amount))
}
