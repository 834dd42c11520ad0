// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package encoder

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/market"
	"github.com/luxfi/loom/pool"
	"github.com/luxfi/loom/swapline"
)

func twoHopLine() (*swapline.SwapLine, common.Address, common.Address, common.Address) {
	tokenA := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenB := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenC := common.HexToAddress("0x3333333333333333333333333333333333333333")
	poolX := pool.NewConstantProductPool(common.HexToAddress("0x4444444444444444444444444444444444444444"), pool.ProtocolUniswapV2, tokenA, tokenB, true)
	poolY := pool.NewConstantProductPool(common.HexToAddress("0x5555555555555555555555555555555555555555"), pool.ProtocolUniswapV2, tokenB, tokenC, true)

	path := &market.SwapPath{
		Tokens: []*chain.Token{
			chain.NewToken(tokenA, "A", 18),
			chain.NewToken(tokenB, "B", 18),
			chain.NewToken(tokenC, "C", 18),
		},
		Pools: []pool.Pool{poolX, poolY},
	}
	line := swapline.New(path)
	line.AmountIn = swapline.SetAmount(uint256.NewInt(1_000_000_000_000_000_000))
	line.AmountOut = swapline.SetAmount(uint256.NewInt(2_000_000_000_000_000_000))
	return line, tokenA, tokenB, tokenC
}

func TestEncodeSwapLineProducesPreswapTransferPlusOneCallPerHop(t *testing.T) {
	line, tokenA, _, _ := twoHopLine()
	enc := New(common.HexToAddress("0x9999999999999999999999999999999999999999"), common.Address{})

	calls, err := enc.EncodeSwapLine(line)
	require.NoError(t, err)
	// ConstantProductPool requires a preswap transfer before hop 0, so the
	// sequence is [transfer, hop0 swap, hop1 swap].
	require.Len(t, calls, 3)

	// The preswap transfer moves the known amount_in to hop 0's pool.
	require.Equal(t, tokenA, calls[0].Target)
	require.Nil(t, calls[0].CallStack)

	// Hop 0 carries the real amount_in inline, no call-stack splice.
	require.Equal(t, line.Path.Pools[0].Id().Address, calls[1].Target)
	require.Nil(t, calls[1].CallStack)

	// Hop 1's amount is fed from hop 0's return.
	require.Equal(t, line.Path.Pools[1].Id().Address, calls[2].Target)
	require.NotNil(t, calls[2].CallStack)
	require.True(t, calls[2].CallStack.Relative)
}

func TestEncodeTipsAppendsInternalCall(t *testing.T) {
	line, tokenA, _, _ := twoHopLine()
	weth := common.HexToAddress("0x7777777777777777777777777777777777777777")
	enc := New(common.HexToAddress("0x9999999999999999999999999999999999999999"), weth)

	calls, err := enc.EncodeSwapLine(line)
	require.NoError(t, err)

	dst := common.HexToAddress("0x8888888888888888888888888888888888888888")
	withTips := enc.EncodeTips(calls, tokenA, uint256.NewInt(1), uint256.NewInt(100), dst)
	require.Len(t, withTips, len(calls)+1)
	require.Equal(t, KindInternalCall, withTips[len(withTips)-1].Kind)

	// Original sequence is untouched (Clone, not mutate in place).
	require.Len(t, calls, 3)
}

func TestEncodeFlashSwapLineInAmountNestsInReverse(t *testing.T) {
	line, _, _, _ := twoHopLine()
	enc := New(common.HexToAddress("0x9999999999999999999999999999999999999999"), common.Address{})

	inside := Calls{NewInternalCall([]byte{0xde, 0xad})}
	flash, err := enc.EncodeFlashSwapLineInAmount(line, inside)
	require.NoError(t, err)
	// One opcode per pool wraps the inside payload, plus the inside payload
	// itself: hop 1 (the reversed-first pool) wraps the original inside
	// call, and hop 0 wraps hop 1.
	require.Len(t, flash, len(line.Path.Pools)+len(inside))

	// The outermost (first-executed) opcode is the line's first pool: a
	// flash swap enters there, and everything nested inside runs as part of
	// its callback before it settles.
	require.Equal(t, line.Path.Pools[0].Id().Address, flash[0].Target)
	require.Equal(t, line.Path.Pools[1].Id().Address, flash[1].Target)
}

func TestEncodeTipsUsesWETHVariant(t *testing.T) {
	weth := common.HexToAddress("0x7777777777777777777777777777777777777777")
	enc := New(common.HexToAddress("0x9999999999999999999999999999999999999999"), weth)

	var calls Calls
	withTips := enc.EncodeTips(calls, weth, uint256.NewInt(1), uint256.NewInt(100), common.Address{})
	require.Len(t, withTips, 1)

	calldata := withTips[0].Calldata
	require.Equal(t, tipsWETHSelector, calldata[:4])
}
