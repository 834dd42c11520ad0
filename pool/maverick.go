// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"context"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/evm"
	"github.com/luxfi/loom/statedb"
)

// binSlotBig derives a deterministic pseudo-slot for a bin index. Real
// Maverick bin storage lives behind a mapping whose preimage requires the
// pool's declared storage index; RequiredState callers normally resolve
// actual slots via the indexer rather than recomputing a hash here, so this
// is only used to give each offset in the ladder a distinct placeholder key.
func binSlotBig(bin int32) *big.Int {
	b := big.NewInt(int64(bin))
	if b.Sign() < 0 {
		b = new(big.Int).Add(b, new(big.Int).Lsh(big.NewInt(1), 32))
	}
	return b
}

// MaverickPool implements Maverick v2's moving-bin AMM, per spec.md §4.3's
// periphery-quoter delegation path (the same "either in-library or delegate"
// clause ConcentratedLiquidityPool uses). Maverick's active-bin set moves
// with price, so RequiredState pre-seeds the +-4 bins around the pool's last
// known active bin rather than a fixed tick-bitmap window — a swap that
// walks further than that will simply miss cache and fall through to the
// external fetcher (or report a conservative low quote), which is an
// accepted tradeoff for this delegation strategy.
type MaverickPool struct {
	id          Id
	tokenA      common.Address
	tokenB      common.Address
	fee         uint32
	quoter      common.Address
	activeBin   int32
	binWidth    uint32
	caller      evm.Caller
}

func NewMaverickPool(addr common.Address, tokenA, tokenB common.Address, fee uint32, quoter common.Address, activeBin int32, binWidth uint32, caller evm.Caller) *MaverickPool {
	return &MaverickPool{
		id: Id{Address: addr}, tokenA: tokenA, tokenB: tokenB,
		fee: fee, quoter: quoter, activeBin: activeBin, binWidth: binWidth, caller: caller,
	}
}

func (p *MaverickPool) Id() Id             { return p.id }
func (p *MaverickPool) Class() Class        { return ClassMaverick }
func (p *MaverickPool) Protocol() Protocol  { return ProtocolMaverickV2 }
func (p *MaverickPool) Fee() uint32         { return p.fee }
func (p *MaverickPool) Tokens() []common.Address { return []common.Address{p.tokenA, p.tokenB} }
func (p *MaverickPool) CanFlashSwap() bool  { return false }

func (p *MaverickPool) SwapDirections() []chain.SwapDirection {
	return []chain.SwapDirection{
		{From: p.tokenA, To: p.tokenB},
		{From: p.tokenB, To: p.tokenA},
	}
}

// binSlots returns the storage slots for the pre-seeded +-4 bin ladder
// around the pool's last known active bin, keyed by bin offset.
func (p *MaverickPool) binSlots() []SlotRef {
	slots := make([]SlotRef, 0, 9)
	for offset := -4; offset <= 4; offset++ {
		bin := p.activeBin + int32(offset)*int32(p.binWidth)
		slots = append(slots, SlotRef{Address: p.id.Address, Slot: common.BigToHash(binSlotBig(bin))})
	}
	return slots
}

func (p *MaverickPool) RequiredState() RequiredState {
	return RequiredState{
		Slots:       p.binSlots(),
		StaticCalls: []StaticCallRef{{Address: p.id.Address, Calldata: getStateSelector[:]}},
	}
}

func (p *MaverickPool) PreswapRequirement(common.Address, common.Address) PreswapRequirement {
	return PreswapRequirement(PreswapCallback)
}

var (
	getStateSelector      = crypto.Keccak256([]byte("getState()"))[:4]
	maverickQuoteSelector = crypto.Keccak256([]byte("calculateSwap(address,uint128,bool,bool,int32)"))[:4]
)

func (p *MaverickPool) CalculateOutAmount(ctx context.Context, db *statedb.StateDB, from, to common.Address, amountIn *uint256.Int) (*uint256.Int, uint64, error) {
	if !HasDirection(p.SwapDirections(), from, to) {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: "unsupported direction"}
	}
	tokenAIn := from == p.tokenA
	calldata := encodeMaverickQuote(p.id.Address, amountIn, tokenAIn)
	ret, gasUsed, err := p.caller.StaticCall(ctx, db, evm.BlockContext{}, p.quoter, calldata)
	if err != nil {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: fmt.Sprintf("maverick quoter call: %v", err)}
	}
	if len(ret) < 32 {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: ErrZeroOutput.Error()}
	}
	out := new(uint256.Int).SetBytes(ret[:32])
	if out.IsZero() {
		return nil, 0, &SwapError{Pool: p.id, From: from.Hex(), To: to.Hex(), Msg: ErrZeroOutput.Error()}
	}
	if gasUsed == 0 {
		gasUsed = 140_000
	}
	return out, gasUsed, nil
}

func (p *MaverickPool) CalculateInAmount(context.Context, *statedb.StateDB, common.Address, common.Address, *uint256.Int) (*uint256.Int, uint64, error) {
	return nil, 0, ErrNotSupported
}

func encodeMaverickQuote(pool common.Address, amountIn *uint256.Int, tokenAIn bool) []byte {
	calldata := make([]byte, 4+32*5)
	copy(calldata, maverickQuoteSelector)
	copy(calldata[4+12:4+32], pool.Bytes())
	amt := amountIn.Bytes32()
	copy(calldata[4+32:4+64], amt[:])
	if tokenAIn {
		calldata[4+95] = 1
	}
	// exactOutput left false (byte 4+127 == 0); tickLimit left at zero (no limit).
	return calldata
}

func (p *MaverickPool) AbiEncoder() AbiEncoder { return &maverickAbiEncoder{pool: p} }

type maverickAbiEncoder struct{ pool *MaverickPool }

var maverickSwapSelector = crypto.Keccak256([]byte("swap(address,uint256,bool,bool,int32)"))[:4]

func (e *maverickAbiEncoder) EncodeSwapInAmount(recipient, from, to common.Address, amountIn []byte) (SwapCalldata, error) {
	tokenAIn := from == e.pool.tokenA
	calldata := make([]byte, 4+32*5)
	copy(calldata, maverickSwapSelector)
	copy(calldata[4+12:4+32], recipient.Bytes())
	amountOffset := 4 + 32
	copy(calldata[amountOffset:amountOffset+32], common.LeftPadBytes(amountIn, 32))
	if tokenAIn {
		calldata[4+95] = 1
	}
	return SwapCalldata{Calldata: calldata, AmountOffset: amountOffset, ReturnOffset: 0}, nil
}

func (e *maverickAbiEncoder) EncodeSwapOutAmount(recipient, from, to common.Address, amountOut []byte) (SwapCalldata, error) {
	sc, err := e.EncodeSwapInAmount(recipient, from, to, amountOut)
	if err != nil {
		return SwapCalldata{}, err
	}
	// byte 4+127 is the exactOutput flag; flip it on for this call shape.
	sc.Calldata[4+127] = 1
	return sc, nil
}

func (e *maverickAbiEncoder) SwapInAmountReturnScript() []byte { return nil }
