// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/evm"
	"github.com/luxfi/loom/statedb"
)

// ConcentratedLiquidityPool implements tick-bitmap AMMs (Uniswap-v3-like,
// Pancake-v3) per spec.md §4.3. Per that section's explicit "either ... or"
// clause, this variant takes the periphery-quoter delegation path: it calls
// the protocol's QuoterV2-style `quoteExactInputSingle` via an evm.Caller
// static call rather than re-implementing the sqrt-price/tick-walk loop
// in-process. TickBitmap (tickbitmap.go) still implements the bit-math the
// in-library walk would need, grounded on
// original_source/crates/uniswap-v3-math/src/tick_bitmap.rs, so a future
// in-process walker has a ready-made bitmap to drive — but the pricing call
// itself is delegated, matching the spec's allowed alternative exactly.
type ConcentratedLiquidityPool struct {
	id        Id
	protocol  Protocol
	token0    common.Address
	token1    common.Address
	fee       uint32 // parts-per-10000
	quoter    common.Address
	tickSpacing int32
	caller    evm.Caller
}

func NewConcentratedLiquidityPool(addr common.Address, protocol Protocol, token0, token1 common.Address, fee uint32, quoter common.Address, tickSpacing int32, caller evm.Caller) *ConcentratedLiquidityPool {
	return &ConcentratedLiquidityPool{
		id: Id{Address: addr}, protocol: protocol,
		token0: token0, token1: token1, fee: fee,
		quoter: quoter, tickSpacing: tickSpacing, caller: caller,
	}
}

func (p *ConcentratedLiquidityPool) Id() Id            { return p.id }
func (p *ConcentratedLiquidityPool) Class() Class       { return ClassConcentratedLiquidity }
func (p *ConcentratedLiquidityPool) Protocol() Protocol { return p.protocol }
func (p *ConcentratedLiquidityPool) Fee() uint32        { return p.fee }
func (p *ConcentratedLiquidityPool) Tokens() []common.Address {
	return []common.Address{p.token0, p.token1}
}
func (p *ConcentratedLiquidityPool) CanFlashSwap() bool { return false }

func (p *ConcentratedLiquidityPool) SwapDirections() []chain.SwapDirection {
	return []chain.SwapDirection{
		{From: p.token0, To: p.token1},
		{From: p.token1, To: p.token0},
	}
}

func (p *ConcentratedLiquidityPool) RequiredState() RequiredState {
	// Declares the pool's slot0() (sqrtPriceX96, tick) and liquidity()
	// reads. The tick-bitmap words around the active tick are not declared.
	return RequiredState{
		StaticCalls: []StaticCallRef{
			{Address: p.id.Address, Calldata: slot0Selector[:]},
			{Address: p.id.Address, Calldata: liquiditySelector[:]},
		},
	}
}

func (p *ConcentratedLiquidityPool) PreswapRequirement(common.Address, common.Address) PreswapRequirement {
	return PreswapRequirement(PreswapCallback)
}

var (
	slot0Selector          = crypto.Keccak256([]byte("slot0()"))[:4]
	liquiditySelector      = crypto.Keccak256([]byte("liquidity()"))[:4]
	quoteExactInputSingle  = crypto.Keccak256([]byte("quoteExactInputSingle((address,address,uint256,uint24,uint160))"))[:4]
)

func (p *ConcentratedLiquidityPool) CalculateOutAmount(ctx context.Context, db *statedb.StateDB, from, to common.Address, amountIn *uint256.Int) (*uint256.Int, uint64, error) {
	if !HasDirection(p.SwapDirections(), from, to) {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: "unsupported direction"}
	}
	calldata := encodeQuoteExactInputSingle(from, to, amountIn, p.fee)
	ret, gasUsed, err := p.caller.StaticCall(ctx, db, evm.BlockContext{}, p.quoter, calldata)
	if err != nil {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: fmt.Sprintf("quoter call: %v", err)}
	}
	if len(ret) < 32 {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: ErrZeroOutput.Error()}
	}
	out := new(uint256.Int).SetBytes(ret[:32])
	if out.IsZero() {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: ErrZeroOutput.Error()}
	}
	if gasUsed == 0 {
		gasUsed = 120_000
	}
	return out, gasUsed, nil
}

func (p *ConcentratedLiquidityPool) CalculateInAmount(context.Context, *statedb.StateDB, common.Address, common.Address, *uint256.Int) (*uint256.Int, uint64, error) {
	return nil, 0, ErrNotSupported
}

func (p *ConcentratedLiquidityPool) AbiEncoder() AbiEncoder {
	return &concentratedAbiEncoder{pool: p}
}

func encodeQuoteExactInputSingle(from, to common.Address, amountIn *uint256.Int, fee uint32) []byte {
	calldata := make([]byte, 4+32*5)
	copy(calldata, quoteExactInputSingle)
	copy(calldata[4+12:4+32], from.Bytes())
	copy(calldata[4+32+12:4+64], to.Bytes())
	amountBytes := amountIn.Bytes32()
	copy(calldata[4+64:4+96], amountBytes[:])
	feeBytes := common.LeftPadBytes(new(uint256.Int).SetUint64(uint64(fee)).Bytes(), 32)
	copy(calldata[4+96:4+128], feeBytes)
	// sqrtPriceLimitX96 left as zero = no limit.
	return calldata
}

type concentratedAbiEncoder struct{ pool *ConcentratedLiquidityPool }

var swapV3Selector = crypto.Keccak256([]byte("swap(address,bool,int256,uint160,bytes)"))[:4]

func (e *concentratedAbiEncoder) EncodeSwapInAmount(recipient, from, to common.Address, amountIn []byte) (SwapCalldata, error) {
	zeroForOne := from == e.pool.token0
	calldata := make([]byte, 4+32*5)
	copy(calldata, swapV3Selector)
	copy(calldata[4+12:4+32], recipient.Bytes())
	if zeroForOne {
		calldata[4+63] = 1
	}
	amountOffset := 4 + 64
	copy(calldata[amountOffset:amountOffset+32], common.LeftPadBytes(amountIn, 32))
	return SwapCalldata{Calldata: calldata, AmountOffset: amountOffset, ReturnOffset: 0, ReturnIsNegative: true}, nil
}

func (e *concentratedAbiEncoder) EncodeSwapOutAmount(recipient, from, to common.Address, amountOut []byte) (SwapCalldata, error) {
	// Uniswap-v3 style swap() takes a signed amountSpecified; negative means
	// "exact output". Re-use the in-amount layout with a negated value.
	neg := new(uint256.Int).SetBytes(common.LeftPadBytes(amountOut, 32))
	neg = new(uint256.Int).Sub(new(uint256.Int), neg) // two's complement negate
	return e.EncodeSwapInAmount(recipient, from, to, neg.Bytes())
}

func (e *concentratedAbiEncoder) SwapInAmountReturnScript() []byte {
	// A single opcode meaning "negate the 32-byte return slice before using
	// it as the next hop's amount", for v3's signed-delta return convention
	// (spec.md §4.3's "subtract from zero for v3 negative-delta semantics").
	return []byte{0x01}
}
