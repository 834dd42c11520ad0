// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package encoder implements spec.md §4.9's Swap Encoder: it turns a
// swapline.SwapLine into the ordered sequence of multicaller opcodes that
// perform the swap on-chain, grounded on
// original_source/crates/execution/multicaller/src/swapline_encoder.rs.
package encoder

import (
	"encoding/binary"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
)

// Kind discriminates a Call's on-chain dispatch, per spec.md §4.9: a
// static-call, a call, a call-with-value, or an internal helper-call run
// inside the multicaller contract itself rather than dispatched out.
type Kind int

const (
	KindStaticCall Kind = iota
	KindCall
	KindCallWithValue
	KindInternalCall
)

// StackSplice describes "take 32 bytes from a prior opcode's return data (or
// the multicaller's scratch stack) and splice them into this opcode's
// calldata at CalldataOffset", per spec.md §4.9's call-stack spec. Relative
// true means StackOffset counts back from the current opcode (0 = the
// immediately preceding opcode); false means it indexes the stack from the
// start.
type StackSplice struct {
	Relative       bool
	StackOffset    uint32
	CalldataOffset uint32
	Len            uint32
}

// ReturnSplice describes "expose Len bytes of this opcode's return data at
// ReturnOffset for later opcodes' StackSplice to consume".
type ReturnSplice struct {
	Relative bool
	Offset   uint32
	Len      uint32
}

// Call is one opcode in a MulticallerCalls sequence: a target, a calldata
// template, an optional value, and the splice specs that let one opcode's
// output feed another's input without leaving the EVM.
type Call struct {
	Kind     Kind
	Target   common.Address
	Calldata []byte
	Value    *common.Hash // nil unless Kind == CallWithValue

	CallStack   *StackSplice
	ReturnStack *ReturnSplice
}

// NewCall builds a plain call that carries no native value.
func NewCall(target common.Address, calldata []byte) Call {
	return Call{Kind: KindCall, Target: target, Calldata: calldata}
}

// NewStaticCall builds a read-only call.
func NewStaticCall(target common.Address, calldata []byte) Call {
	return Call{Kind: KindStaticCall, Target: target, Calldata: calldata}
}

// NewCallWithValue builds a call carrying native value.
func NewCallWithValue(target common.Address, calldata []byte, value common.Hash) Call {
	return Call{Kind: KindCallWithValue, Target: target, Calldata: calldata, Value: &value}
}

// NewInternalCall builds a helper-call dispatched against the multicaller
// contract itself (erc20 transfer, balance-of, tips, and similar scratch
// operations spec.md §4.9 groups under "internal helper-call").
func NewInternalCall(calldata []byte) Call {
	return Call{Kind: KindInternalCall, Calldata: calldata}
}

// WithCallStack sets CallStack and returns the receiver, for chaining.
func (c Call) WithCallStack(relative bool, stackOffset, calldataOffset, length uint32) Call {
	c.CallStack = &StackSplice{Relative: relative, StackOffset: stackOffset, CalldataOffset: calldataOffset, Len: length}
	return c
}

// WithReturnStack sets ReturnStack and returns the receiver, for chaining.
func (c Call) WithReturnStack(relative bool, offset, length uint32) Call {
	c.ReturnStack = &ReturnSplice{Relative: relative, Offset: offset, Len: length}
	return c
}

// Calls is an ordered sequence of opcodes, execution order == slice order.
type Calls []Call

func (cs *Calls) Add(c Call) { *cs = append(*cs, c) }

// Clone returns an independent copy, mirroring MulticallerCalls::clone's use
// in swapline_encoder.rs to thread one partial sequence into the next hop
// without aliasing.
func (cs Calls) Clone() Calls {
	out := make(Calls, len(cs))
	copy(out, cs)
	return out
}

var executeSelector = crypto.Keccak256([]byte("execute((uint8,address,uint256,bytes,bool,uint32,uint32,uint32,bool,uint32,uint32)[])"))[:4]

// Pack serializes cs into the calldata a keeper sends to the multicaller
// contract's execute entrypoint, grounded on the existence of
// OpcodesEncoderV2::pack_do_calls_data (referenced, not defined, in the
// retrieved original_source pack): one fixed-width record per opcode
// (kind, target, value, call-stack spec, return-stack spec) followed by its
// variable-length calldata, length-prefixed.
func (cs Calls) Pack() []byte {
	out := make([]byte, 0, len(executeSelector)+64*len(cs))
	out = append(out, executeSelector...)

	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(cs)))
	out = append(out, count[:]...)

	for _, c := range cs {
		out = append(out, byte(c.Kind))
		out = append(out, c.Target.Bytes()...)

		var value common.Hash
		if c.Value != nil {
			value = *c.Value
		}
		out = append(out, value.Bytes()...)

		out = append(out, packStackSplice(c.CallStack)...)
		out = append(out, packReturnSplice(c.ReturnStack)...)

		var length [4]byte
		binary.BigEndian.PutUint32(length[:], uint32(len(c.Calldata)))
		out = append(out, length[:]...)
		out = append(out, c.Calldata...)
	}
	return out
}

func packStackSplice(s *StackSplice) []byte {
	buf := make([]byte, 14)
	if s == nil {
		return buf
	}
	buf[0] = 1
	if s.Relative {
		buf[1] = 1
	}
	binary.BigEndian.PutUint32(buf[2:6], s.StackOffset)
	binary.BigEndian.PutUint32(buf[6:10], s.CalldataOffset)
	binary.BigEndian.PutUint32(buf[10:14], s.Len)
	return buf
}

func packReturnSplice(s *ReturnSplice) []byte {
	buf := make([]byte, 10)
	if s == nil {
		return buf
	}
	buf[0] = 1
	if s.Relative {
		buf[1] = 1
	}
	binary.BigEndian.PutUint32(buf[2:6], s.Offset)
	binary.BigEndian.PutUint32(buf[6:10], s.Len)
	return buf
}
