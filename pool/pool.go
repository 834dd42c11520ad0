// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pool implements the AMM pool abstraction of spec.md §3/§4.3: a
// capability-set interface plus concrete variants (constant-product,
// concentrated-liquidity, stable-swap/curve, Maverick, native-wrapper).
package pool

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/statedb"
)

// Class identifies the pricing-math family of a pool.
type Class int

const (
	ClassConstantProduct Class = iota
	ClassConcentratedLiquidity
	ClassStableSwap
	ClassMaverick
	ClassNativeWrapper
)

// Protocol identifies the concrete deployer/fork, used to pick fee constants
// and storage layouts within a Class.
type Protocol int

const (
	ProtocolUniswapV2 Protocol = iota
	ProtocolSushiswapV2
	ProtocolUniswapV3
	ProtocolPancakeV3
	ProtocolCurve
	ProtocolMaverickV2
	ProtocolWETH
)

// PreswapRequirement enumerates how funds must reach the pool before the
// swap call, per spec.md §3.
type PreswapRequirement int

const (
	PreswapBase PreswapRequirement = iota
	PreswapTransfer
	PreswapCallback
	PreswapAllowance
)

// Id is the opaque pool identifier. For most protocols it is just the pool's
// on-chain address; AddrIndex distinguishes multiple logical pools living at
// one address (some Maverick/Curve meta-pool layouts).
type Id struct {
	Address  common.Address
	AddrIndex uint16
}

// RequiredState declares the on-chain reads needed to price a pool in
// isolation (spec.md §3). StaticCalls are (address, calldata) pairs whose
// return value must be captured.
type RequiredState struct {
	Slots      []SlotRef
	SlotRanges []SlotRangeRef
	StaticCalls []StaticCallRef
}

type SlotRef struct {
	Address common.Address
	Slot    common.Hash
}

type SlotRangeRef struct {
	Address    common.Address
	FromSlot   common.Hash
	Count      int
}

type StaticCallRef struct {
	Address  common.Address
	Calldata []byte
}

// Pool is the capability set every variant implements. calculate_out_amount
// / calculate_in_amount are pure functions over the provided StateDB: no
// external I/O, no mutation, per spec.md §4.3.
type Pool interface {
	Id() Id
	Class() Class
	Protocol() Protocol
	Fee() uint32 // parts-per-10000 fee, e.g. 30 == 0.3%
	Tokens() []common.Address

	// SwapDirections returns the exact set of ordered (tokenIn, tokenOut)
	// pairs this pool supports, per the Pool invariant in spec.md §3.
	SwapDirections() []chain.SwapDirection

	CalculateOutAmount(ctx context.Context, db *statedb.StateDB, from, to common.Address, amountIn *uint256.Int) (amountOut *uint256.Int, gasEstimate uint64, err error)

	// CalculateInAmount is the inverse of CalculateOutAmount. Not every
	// variant supports it; ErrNotSupported is returned when it doesn't.
	CalculateInAmount(ctx context.Context, db *statedb.StateDB, from, to common.Address, amountOut *uint256.Int) (amountIn *uint256.Int, gasEstimate uint64, err error)

	CanFlashSwap() bool
	RequiredState() RequiredState
	PreswapRequirement(from, to common.Address) PreswapRequirement
	AbiEncoder() AbiEncoder
}

// HasDirection reports whether directions contains (from, to).
func HasDirection(directions []chain.SwapDirection, from, to common.Address) bool {
	for _, d := range directions {
		if d.From == from && d.To == to {
			return true
		}
	}
	return false
}
