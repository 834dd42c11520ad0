// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/statedb"
)

// NativePool prices the 1:1 wrap/unwrap between a chain's native asset and
// its canonical wrapped ERC-20 (WETH on mainnet and its forks elsewhere).
// There's no reserve curve: deposit() and withdraw() always exchange at
// parity, so this variant needs no RequiredState reads and no on-chain call
// to price a swap, only to execute one.
type NativePool struct {
	id     Id
	native common.Address // conventionally the zero address
	wrapped common.Address
}

func NewNativePool(wrapped common.Address) *NativePool {
	return &NativePool{id: Id{Address: wrapped}, native: common.Address{}, wrapped: wrapped}
}

func (p *NativePool) Id() Id             { return p.id }
func (p *NativePool) Class() Class        { return ClassNativeWrapper }
func (p *NativePool) Protocol() Protocol  { return ProtocolWETH }
func (p *NativePool) Fee() uint32         { return 0 }
func (p *NativePool) Tokens() []common.Address { return []common.Address{p.native, p.wrapped} }
func (p *NativePool) CanFlashSwap() bool  { return false }

func (p *NativePool) SwapDirections() []chain.SwapDirection {
	return []chain.SwapDirection{
		{From: p.native, To: p.wrapped},
		{From: p.wrapped, To: p.native},
	}
}

func (p *NativePool) RequiredState() RequiredState { return RequiredState{} }

func (p *NativePool) PreswapRequirement(from, to common.Address) PreswapRequirement {
	if from == p.native {
		return PreswapRequirement(PreswapBase)
	}
	return PreswapRequirement(PreswapTransfer)
}

func (p *NativePool) CalculateOutAmount(ctx context.Context, db *statedb.StateDB, from, to common.Address, amountIn *uint256.Int) (*uint256.Int, uint64, error) {
	if !HasDirection(p.SwapDirections(), from, to) {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: "unsupported direction"}
	}
	if amountIn.IsZero() {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: ErrZeroOutput.Error()}
	}
	return new(uint256.Int).Set(amountIn), 45_000, nil
}

func (p *NativePool) CalculateInAmount(ctx context.Context, db *statedb.StateDB, from, to common.Address, amountOut *uint256.Int) (*uint256.Int, uint64, error) {
	if !HasDirection(p.SwapDirections(), from, to) {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: "unsupported direction"}
	}
	return new(uint256.Int).Set(amountOut), 45_000, nil
}

func (p *NativePool) AbiEncoder() AbiEncoder { return &nativeAbiEncoder{pool: p} }

type nativeAbiEncoder struct{ pool *NativePool }

var (
	depositSelector  = crypto.Keccak256([]byte("deposit()"))[:4]
	withdrawSelector = crypto.Keccak256([]byte("withdraw(uint256)"))[:4]
)

func (e *nativeAbiEncoder) EncodeSwapInAmount(recipient, from, to common.Address, amountIn []byte) (SwapCalldata, error) {
	if from == e.pool.native {
		// deposit() takes no arguments; the amount travels as call value, so
		// there's no calldata slot to splice and AmountOffset is meaningless.
		return SwapCalldata{Calldata: append([]byte{}, depositSelector...), AmountOffset: -1, ReturnOffset: -1}, nil
	}
	calldata := make([]byte, 4+32)
	copy(calldata, withdrawSelector)
	copy(calldata[4:4+32], common.LeftPadBytes(amountIn, 32))
	return SwapCalldata{Calldata: calldata, AmountOffset: 4, ReturnOffset: -1}, nil
}

func (e *nativeAbiEncoder) EncodeSwapOutAmount(recipient, from, to common.Address, amountOut []byte) (SwapCalldata, error) {
	return e.EncodeSwapInAmount(recipient, from, to, amountOut)
}

func (e *nativeAbiEncoder) SwapInAmountReturnScript() []byte { return nil }
