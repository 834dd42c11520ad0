// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package encoder

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"

	"github.com/luxfi/loom/pool"
	"github.com/luxfi/loom/swapline"
)

var (
	erc20TransferSelector  = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
	erc20BalanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
)

func encodeErc20Transfer(to common.Address, amount *uint256.Int) []byte {
	calldata := make([]byte, 4+64)
	copy(calldata, erc20TransferSelector)
	copy(calldata[4+12:4+32], to.Bytes())
	if amount == nil {
		amount = new(uint256.Int)
	}
	b := amount.Bytes32()
	copy(calldata[4+32:4+64], b[:])
	return calldata
}

func encodeErc20BalanceOf(addr common.Address) []byte {
	calldata := make([]byte, 4+32)
	copy(calldata, erc20BalanceOfSelector)
	copy(calldata[4+12:4+32], addr.Bytes())
	return calldata
}

// SwapLineEncoder turns a swapline.SwapLine into the ordered opcodes a
// multicaller contract runs to perform the swap, per spec.md §4.9.
// Grounded on swapline_encoder.rs's SwapLineEncoder: multicaller_address
// plus a per-hop AbiEncoder (here, pool.Pool.AbiEncoder() rather than a
// separately injected trait object, since every pool variant already
// carries its own).
type SwapLineEncoder struct {
	MulticallerAddress common.Address
	WETH               common.Address
}

func New(multicallerAddress, weth common.Address) *SwapLineEncoder {
	return &SwapLineEncoder{MulticallerAddress: multicallerAddress, WETH: weth}
}

// swapTarget resolves the address a hop's swap sends its output to: the
// next pool (so it can feed straight into the following hop) or the
// multicaller contract on the last hop, per encode_swap_line_in_amount's
// swap_to resolution.
func (e *SwapLineEncoder) swapTarget(line *swapline.SwapLine, hop int) common.Address {
	pools := line.Path.Pools
	if hop < len(pools)-1 {
		return pools[hop+1].Id().Address
	}
	if line.SwapTo != nil {
		return *line.SwapTo
	}
	return e.MulticallerAddress
}

// EncodeSwapLine encodes a straight-line (non-cyclic-flash) walk of line,
// the real amount_in feeding hop 0 and every later hop consuming hop-1's
// return via RelativeStack(0), grounded on encode_swap_line_in_amount. Hop
// 0 additionally gets a preswap transfer opcode when its pool's
// PreswapRequirement is Transfer, since the swap call itself assumes the
// funds already sit at the pool.
func (e *SwapLineEncoder) EncodeSwapLine(line *swapline.SwapLine) (Calls, error) {
	var opcodes Calls
	amount := line.AmountIn

	for i, p := range line.Path.Pools {
		from := line.Path.Tokens[i].Address
		to := line.Path.Tokens[i+1].Address
		swapTo := e.swapTarget(line, i)

		if i == 0 && p.PreswapRequirement(from, to) == pool.PreswapTransfer {
			opcodes = e.encodePreswapTransfer(opcodes, from, p.Id().Address, amount)
			if amount.Kind != swapline.AmountSet {
				amount = swapline.RelativeStack(0)
			}
		}

		call, _, err := e.encodeHop(p, from, to, amount, swapTo)
		if err != nil {
			return nil, fmt.Errorf("encode hop %d (%s): %w", i, p.Id().Address, err)
		}
		opcodes.Add(call)

		amount = swapline.RelativeStack(0)
	}
	return opcodes, nil
}

// encodePreswapTransfer emits the opcode(s) that move funds to dst before a
// pool's swap call runs, per spec.md §3's PreswapRequirement. AmountSet
// transfers the known value directly; AmountBalance first reads the
// source's balance and splices it into the transfer; any other mode
// (amount only known from a prior hop's return) splices that return value
// in directly.
func (e *SwapLineEncoder) encodePreswapTransfer(opcodes Calls, token, dst common.Address, amount swapline.SwapAmount) Calls {
	switch amount.Kind {
	case swapline.AmountSet:
		opcodes.Add(NewCall(token, encodeErc20Transfer(dst, amount.Value)))
	case swapline.AmountBalance:
		balCall := NewStaticCall(token, encodeErc20BalanceOf(amount.Account)).WithReturnStack(true, 0, 0x20)
		opcodes.Add(balCall)
		transferCall := NewCall(token, encodeErc20Transfer(dst, nil)).WithCallStack(true, 0, 0x24, 0x20)
		opcodes.Add(transferCall)
	default:
		transferCall := NewCall(token, encodeErc20Transfer(dst, nil)).WithCallStack(false, 0, 0x24, 0x20)
		opcodes.Add(transferCall)
	}
	return opcodes
}

// encodeHop builds the one opcode that executes a single hop's swap call,
// splicing the prior hop's return (via amount.Kind == AmountRelativeStack)
// into this hop's amount slot when it isn't the line's initial amount.
func (e *SwapLineEncoder) encodeHop(p pool.Pool, from, to common.Address, amount swapline.SwapAmount, swapTo common.Address) (Call, []byte, error) {
	enc := p.AbiEncoder()

	var sc pool.SwapCalldata
	var err error
	switch amount.Kind {
	case swapline.AmountSet:
		b := amount.Value.Bytes32()
		sc, err = enc.EncodeSwapInAmount(swapTo, from, to, b[:])
	default:
		// Amount not known at encode time (fed from a prior hop's return, or
		// a balance probe); lay out the calldata shape with a placeholder
		// and let the CallStack splice overwrite AmountOffset at run time.
		sc, err = enc.EncodeSwapInAmount(swapTo, from, to, make([]byte, 32))
	}
	if err != nil {
		return Call{}, nil, err
	}

	call := NewCall(p.Id().Address, sc.Calldata)
	switch amount.Kind {
	case swapline.AmountSet, swapline.AmountNotSet:
	case swapline.AmountStack0:
		call = call.WithCallStack(false, 0, uint32(sc.AmountOffset), 0x20)
	case swapline.AmountRelativeStack:
		call = call.WithCallStack(true, amount.StackSlot, uint32(sc.AmountOffset), 0x20)
	case swapline.AmountBalance:
		call = call.WithCallStack(false, 0, uint32(sc.AmountOffset), 0x20)
	}
	if sc.ReturnOffset >= 0 {
		call = call.WithReturnStack(true, uint32(sc.ReturnOffset), 0x20)
	}
	return call, enc.SwapInAmountReturnScript(), nil
}

// EncodeFlashSwapLineInAmount wraps line's pools, reversed, each nesting the
// previous iteration's opcodes as its callback payload, so the first
// (innermost) call to execute on-chain is the *last* pool in line, and the
// outermost call a keeper sends is the *first*. Grounded on
// encode_flash_swap_line_in_amount; every hop but the final reversed one
// (the line's real starting pool) is fed RelativeStack(0) from its own
// flash callback, matching the Rust's identical amount_in selection.
//
// Per-protocol-class post-flash transfer wiring (UniswapV2's explicit ERC20
// transfer vs UniswapV3/Maverick/PancakeV3's callback-return path) is left
// commented out even in swapline_encoder.rs itself; this port relies on
// each pool's AbiEncoder to already emit the correct preswap/return shape
// for its own protocol, so no separate per-class branch is needed here.
func (e *SwapLineEncoder) EncodeFlashSwapLineInAmount(line *swapline.SwapLine, inside Calls) (Calls, error) {
	pools := line.Path.Pools
	tokens := line.Path.Tokens
	n := len(pools)

	flashOpcodes := inside.Clone()
	for idx := 0; idx < n; idx++ {
		poolIdx := n - 1 - idx
		flashPool := pools[poolIdx]
		from := tokens[poolIdx].Address
		to := tokens[poolIdx+1].Address

		amount := swapline.RelativeStack(0)
		if idx == n-1 {
			amount = line.AmountIn
		}

		enc := flashPool.AbiEncoder()
		var sc pool.SwapCalldata
		var err error
		if amount.Kind == swapline.AmountSet {
			b := amount.Value.Bytes32()
			sc, err = enc.EncodeSwapInAmount(e.MulticallerAddress, from, to, b[:])
		} else {
			sc, err = enc.EncodeSwapInAmount(e.MulticallerAddress, from, to, make([]byte, 32))
		}
		if err != nil {
			return nil, fmt.Errorf("encode flash hop %d (%s): %w", poolIdx, flashPool.Id().Address, err)
		}

		call := NewCall(flashPool.Id().Address, sc.Calldata)
		if amount.Kind != swapline.AmountSet {
			call = call.WithCallStack(true, amount.StackSlot, uint32(sc.AmountOffset), 0x20)
		}
		if sc.ReturnOffset >= 0 {
			call = call.WithReturnStack(true, uint32(sc.ReturnOffset), 0x20)
		}

		next := Calls{call}
		next = append(next, flashOpcodes...)
		flashOpcodes = next
	}
	return flashOpcodes, nil
}

// EncodeFlashSwapLineOutAmount is EncodeFlashSwapLineInAmount's mirror for
// an out-amount-driven flash line: forward iteration, only the final hop
// carries the line's real amount_out, every earlier hop takes
// RelativeStack(0) from the hop nested inside it. Grounded on
// encode_flash_swap_line_out_amount.
func (e *SwapLineEncoder) EncodeFlashSwapLineOutAmount(line *swapline.SwapLine, inside Calls) (Calls, error) {
	pools := line.Path.Pools
	tokens := line.Path.Tokens
	n := len(pools)

	flashOpcodes := inside.Clone()
	for poolIdx := 0; poolIdx < n; poolIdx++ {
		flashPool := pools[poolIdx]
		from := tokens[poolIdx].Address
		to := tokens[poolIdx+1].Address

		amount := swapline.RelativeStack(0)
		if poolIdx == n-1 {
			amount = line.AmountOut
		}

		enc := flashPool.AbiEncoder()
		var sc pool.SwapCalldata
		var err error
		if amount.Kind == swapline.AmountSet {
			b := amount.Value.Bytes32()
			sc, err = enc.EncodeSwapOutAmount(e.MulticallerAddress, from, to, b[:])
		} else {
			sc, err = enc.EncodeSwapOutAmount(e.MulticallerAddress, from, to, make([]byte, 32))
		}
		if err != nil {
			return nil, fmt.Errorf("encode flash hop %d (%s): %w", poolIdx, flashPool.Id().Address, err)
		}

		call := NewCall(flashPool.Id().Address, sc.Calldata)
		if amount.Kind != swapline.AmountSet {
			call = call.WithCallStack(true, amount.StackSlot, uint32(sc.AmountOffset), 0x20)
		}
		if sc.ReturnOffset >= 0 {
			call = call.WithReturnStack(true, uint32(sc.ReturnOffset), 0x20)
		}

		next := Calls{call}
		next = append(next, flashOpcodes...)
		flashOpcodes = next
	}
	return flashOpcodes, nil
}

// EncodeTips appends a final internal helper-call that transfers tips from
// the multicaller's balance of token to dst once minBalance clears,
// choosing the WETH-specific variant when token is the chain's wrapped
// native asset, per encode_tips.
func (e *SwapLineEncoder) EncodeTips(opcodes Calls, token common.Address, minBalance, tips *uint256.Int, dst common.Address) Calls {
	out := opcodes.Clone()
	if token == e.WETH {
		out.Add(NewInternalCall(encodeMulticallerTransferTipsWETH(minBalance, tips, dst)))
	} else {
		out.Add(NewInternalCall(encodeMulticallerTransferTips(token, minBalance, tips, dst)))
	}
	return out
}

var (
	tipsSelector     = crypto.Keccak256([]byte("transferTips(address,uint256,uint256,address)"))[:4]
	tipsWETHSelector = crypto.Keccak256([]byte("transferTipsWETH(uint256,uint256,address)"))[:4]
)

func encodeMulticallerTransferTips(token common.Address, minBalance, tips *uint256.Int, dst common.Address) []byte {
	calldata := make([]byte, 4+32*4)
	copy(calldata, tipsSelector)
	copy(calldata[4+12:4+32], token.Bytes())
	mb := minBalance.Bytes32()
	copy(calldata[4+32:4+64], mb[:])
	tb := tips.Bytes32()
	copy(calldata[4+64:4+96], tb[:])
	copy(calldata[4+96+12:4+128], dst.Bytes())
	return calldata
}

func encodeMulticallerTransferTipsWETH(minBalance, tips *uint256.Int, dst common.Address) []byte {
	calldata := make([]byte, 4+32*3)
	copy(calldata, tipsWETHSelector)
	mb := minBalance.Bytes32()
	copy(calldata[4:4+32], mb[:])
	tb := tips.Bytes32()
	copy(calldata[4+32:4+64], tb[:])
	copy(calldata[4+64+12:4+96], dst.Bytes())
	return calldata
}
