// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package swapline implements spec.md §3/§4.5's SwapLine: a SwapPath
// augmented with concrete amounts, plus the optimize_with_in_amount
// gradient-free multiplicative line search, transcribed from
// original_source/crates/defi-entities/src/swapline.rs.
package swapline

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/loom/market"
	"github.com/luxfi/loom/pool"
	"github.com/luxfi/loom/statedb"
)

// AmountKind discriminates SwapAmountType's variants.
type AmountKind int

const (
	AmountNotSet AmountKind = iota
	AmountSet
	AmountStack0
	AmountRelativeStack
	AmountBalance
)

// SwapAmount is spec.md §6's SwapAmountType sum: Set(value), Stack0,
// RelativeStack(k), or Balance(addr).
type SwapAmount struct {
	Kind      AmountKind
	Value     *uint256.Int
	StackSlot uint32
	Account   common.Address
}

func SetAmount(v *uint256.Int) SwapAmount      { return SwapAmount{Kind: AmountSet, Value: v} }
func Stack0() SwapAmount                       { return SwapAmount{Kind: AmountStack0} }
func RelativeStack(k uint32) SwapAmount        { return SwapAmount{Kind: AmountRelativeStack, StackSlot: k} }
func BalanceOf(addr common.Address) SwapAmount { return SwapAmount{Kind: AmountBalance, Account: addr} }

// UnwrapOrZero returns the Set value, or zero for any other variant.
func (a SwapAmount) UnwrapOrZero() *uint256.Int {
	if a.Kind == AmountSet && a.Value != nil {
		return new(uint256.Int).Set(a.Value)
	}
	return new(uint256.Int)
}

var (
	errNotArbPath      = errors.New("swapline: NOT_ARB_PATH")
	errTokensDontMatch = errors.New("swapline: TOKENS_DONT_MATCH")
	errAmountsNotSet   = errors.New("swapline: AMOUNTS_NOT_SET")
)

// SwapLine is a SwapPath carrying concrete amount_in/amount_out, the
// per-hop amounts array, an optional swap_to override, and gas used.
type SwapLine struct {
	Path      *market.SwapPath
	AmountIn  SwapAmount
	AmountOut SwapAmount
	Amounts   []*uint256.Int
	SwapTo    *common.Address
	GasUsed   uint64
}

func New(path *market.SwapPath) *SwapLine {
	return &SwapLine{Path: path}
}

func (l *SwapLine) Pools() []pool.Pool { return l.Path.Pools }

func (l *SwapLine) FirstToken() common.Address { return l.Path.Tokens[0].Address }
func (l *SwapLine) LastToken() common.Address  { return l.Path.Tokens[len(l.Path.Tokens)-1].Address }

// Split divides the line at poolIndex into (prefix, suffix): prefix keeps
// amount_in, suffix keeps amount_out, both reset their other amount and gas.
// Mirrors swapline.rs's split (and its identical merge).
func (l *SwapLine) Split(poolIndex int) (prefix, suffix *SwapLine, err error) {
	if poolIndex < 1 || poolIndex >= len(l.Path.Pools) {
		return nil, nil, fmt.Errorf("split index %d out of range", poolIndex)
	}
	prefix = &SwapLine{
		Path: &market.SwapPath{
			Tokens: l.Path.Tokens[0 : poolIndex+1],
			Pools:  l.Path.Pools[0:poolIndex],
		},
		AmountIn: l.AmountIn,
	}
	suffix = &SwapLine{
		Path: &market.SwapPath{
			Tokens: l.Path.Tokens[poolIndex:],
			Pools:  l.Path.Pools[poolIndex:],
		},
		AmountOut: l.AmountOut,
	}
	return prefix, suffix, nil
}

// CanFlashSwap reports whether every pool on the line supports flash swaps.
func (l *SwapLine) CanFlashSwap() bool {
	for _, p := range l.Path.Pools {
		if !p.CanFlashSwap() {
			return false
		}
	}
	return true
}

// AbsProfit returns amount_out - amount_in when positive and the path is
// cyclic with both amounts Set, matching swapline.rs's abs_profit (zero
// otherwise, never negative).
func (l *SwapLine) AbsProfit() *uint256.Int {
	if l.FirstToken() != l.LastToken() {
		return new(uint256.Int)
	}
	if l.AmountIn.Kind != AmountSet || l.AmountOut.Kind != AmountSet {
		return new(uint256.Int)
	}
	if l.AmountOut.Value.Cmp(l.AmountIn.Value) <= 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(l.AmountOut.Value, l.AmountIn.Value)
}

// Profit returns amount_out - amount_in as a signed value (negative meaning
// a loss), valid only when the path is cyclic and both amounts are Set.
func (l *SwapLine) Profit() (*big.Int, error) {
	if len(l.Path.Tokens) < 3 {
		return nil, errNotArbPath
	}
	if l.FirstToken() != l.LastToken() {
		return nil, errTokensDontMatch
	}
	if l.AmountIn.Kind != AmountSet || l.AmountOut.Kind != AmountSet {
		return nil, errAmountsNotSet
	}
	return new(big.Int).Sub(l.AmountOut.Value.ToBig(), l.AmountIn.Value.ToBig()), nil
}

func calcProfit(inAmount, outAmount *uint256.Int) *big.Int {
	return new(big.Int).Sub(outAmount.ToBig(), inAmount.ToBig())
}

// calculateWithInAmount runs inAmount through every hop of the path via
// CalculateOutAmount, returning the final out amount and summed gas.
func (l *SwapLine) calculateWithInAmount(ctx context.Context, db *statedb.StateDB, inAmount *uint256.Int) (*uint256.Int, uint64, error) {
	outAmount := new(uint256.Int).Set(inAmount)
	var gasUsed uint64
	for i, p := range l.Path.Pools {
		tokenFrom := l.Path.Tokens[i].Address
		tokenTo := l.Path.Tokens[i+1].Address
		out, gas, err := p.CalculateOutAmount(ctx, db, tokenFrom, tokenTo, outAmount)
		if err != nil {
			return nil, 0, &pool.SwapError{Pool: p.Id(), From: tokenFrom.Hex(), To: tokenTo.Hex(), Amount: inAmount.String(), Msg: err.Error()}
		}
		if out.IsZero() {
			return nil, 0, &pool.SwapError{Pool: p.Id(), From: tokenFrom.Hex(), To: tokenTo.Hex(), Amount: inAmount.String(), Msg: "ZERO_AMOUNT"}
		}
		outAmount = out
		gasUsed += gas
	}
	return outAmount, gasUsed, nil
}

// calculateWithOutAmount is the reverse walk via CalculateInAmount.
func (l *SwapLine) calculateWithOutAmount(ctx context.Context, db *statedb.StateDB, outAmount *uint256.Int) (*uint256.Int, uint64, error) {
	inAmount := new(uint256.Int).Set(outAmount)
	var gasUsed uint64
	n := len(l.Path.Pools)
	for i := n - 1; i >= 0; i-- {
		p := l.Path.Pools[i]
		tokenFrom := l.Path.Tokens[i].Address
		tokenTo := l.Path.Tokens[i+1].Address
		in, gas, err := p.CalculateInAmount(ctx, db, tokenFrom, tokenTo, inAmount)
		if err != nil {
			return nil, 0, &pool.SwapError{Pool: p.Id(), From: tokenFrom.Hex(), To: tokenTo.Hex(), Amount: outAmount.String(), Msg: err.Error()}
		}
		if in.IsZero() || in.Eq(maxUint256) {
			return nil, 0, &pool.SwapError{Pool: p.Id(), From: tokenFrom.Hex(), To: tokenTo.Hex(), Amount: outAmount.String(), Msg: "ZERO_AMOUNT"}
		}
		inAmount = in
		gasUsed += gas
	}
	return inAmount, gasUsed, nil
}

var maxUint256 *uint256.Int

func init() {
	maxUint256 = new(uint256.Int).Not(new(uint256.Int))
}

// OptimizeWithInAmount runs the gradient-free multiplicative line search of
// spec.md §4.5, transcribed in full from swapline.rs's
// optimize_with_in_amount: initial step 10000/denominator 1000 (i.e. a
// starting +/-10x relative step), a direction-flip that costs one extra
// iteration before shrinking the step by 10x, terminating when the step
// reaches 1 or after 30 iterations. Mutates l.AmountIn/AmountOut/GasUsed in
// place and also returns l for chaining.
func (l *SwapLine) OptimizeWithInAmount(ctx context.Context, db *statedb.StateDB, inAmount *uint256.Int) (*SwapLine, error) {
	currentInAmount := new(uint256.Int).Set(inAmount)
	var bestProfit *big.Int
	currentStep := uint256.NewInt(10000)
	denominator := uint256.NewInt(1000)
	incDirection := true
	firstStepChange := false
	nextAmount := new(uint256.Int).Set(currentInAmount)
	prevInAmount := new(uint256.Int)
	counter := 0

	for {
		counter++
		if counter > 30 {
			return l, nil
		}

		currentOutAmount, currentGasUsed, err := l.calculateWithInAmount(ctx, db, nextAmount)
		if counter == 1 && err != nil {
			return l, err
		}
		if err != nil {
			currentOutAmount = new(uint256.Int)
			currentGasUsed = 0
		}

		currentProfit := calcProfit(nextAmount, currentOutAmount)

		switch {
		case bestProfit == nil:
			bestProfit = currentProfit
			l.AmountIn = SetAmount(nextAmount)
			l.AmountOut = SetAmount(currentOutAmount)
			l.GasUsed = currentGasUsed
			currentInAmount = nextAmount
			if currentOutAmount.IsZero() || currentProfit.Sign() < 0 {
				return l, nil
			}

		case bestProfit.Cmp(currentProfit) > 0 || currentOutAmount.IsZero():
			switch {
			case firstStepChange && incDirection && currentStep.Cmp(denominator) < 0:
				incDirection = false
				nextAmount = prevInAmount
				currentInAmount = prevInAmount
				firstStepChange = true
			case firstStepChange && !incDirection:
				incDirection = true
				currentStep = new(uint256.Int).Div(currentStep, uint256.NewInt(10))
				bestProfit = currentProfit
				firstStepChange = true
				if currentStep.Eq(uint256.NewInt(1)) {
					return l, nil
				}
			default:
				currentStep = new(uint256.Int).Div(currentStep, uint256.NewInt(10))
				firstStepChange = true
				if currentStep.Eq(uint256.NewInt(1)) {
					return l, nil
				}
			}

		default:
			bestProfit = currentProfit
			l.AmountIn = SetAmount(nextAmount)
			l.AmountOut = SetAmount(currentOutAmount)
			l.GasUsed = currentGasUsed
			currentInAmount = nextAmount
			firstStepChange = false
		}

		prevInAmount = currentInAmount
		delta := new(uint256.Int).Div(new(uint256.Int).Mul(currentInAmount, currentStep), denominator)
		if incDirection {
			nextAmount = new(uint256.Int).Add(currentInAmount, delta)
		} else {
			if delta.Cmp(currentInAmount) >= 0 {
				nextAmount = new(uint256.Int)
			} else {
				nextAmount = new(uint256.Int).Sub(currentInAmount, delta)
			}
		}
	}
}
