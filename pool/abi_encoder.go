// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import "github.com/luxfi/geth/common"

// SwapCalldata is the result of encoding one hop's swap call: the calldata
// itself, the byte offset within it where the amount is written (so the
// multicaller can later splice a stack value over it), and the byte offset
// within the call's return-data where the output amount begins.
type SwapCalldata struct {
	Calldata       []byte
	AmountOffset   int
	ReturnOffset   int
	ReturnIsNegative bool // true for protocols that return a signed delta (Uni-v3 style)
}

// AbiEncoder produces calldata for a pool's swap function, for both the
// in-amount-provided and out-amount-provided directions, per spec.md §4.3's
// PoolAbiEncoder.
type AbiEncoder interface {
	EncodeSwapInAmount(recipient common.Address, from, to common.Address, amountIn []byte) (SwapCalldata, error)
	EncodeSwapOutAmount(recipient common.Address, from, to common.Address, amountOut []byte) (SwapCalldata, error)

	// SwapInAmountReturnScript, when non-nil, is a short multicaller
	// byte-code program (spec.md §4.3) the encoder interprets to derive the
	// next hop's input from this hop's return value, e.g. negating a
	// v3-style signed delta. A nil return means "use the return value as
	// the next amount unmodified".
	SwapInAmountReturnScript() []byte
}
