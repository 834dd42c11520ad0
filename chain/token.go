// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chain holds the primitive value types shared across the backrunning
// engine: tokens, addresses, and the state-diff shape produced by block
// ingestion and pending-tx tracing.
package chain

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Token identifies an ERC-20 (or native-wrapper) asset tracked by the market.
//
// Basic marks a token the searcher accepts as a cycle endpoint (WETH, a major
// stablecoin); MiddleOnly marks a token permitted only as an intermediate hop.
// A token must not be both.
type Token struct {
	Address    common.Address
	Symbol     string
	Decimals   uint8
	Basic      bool
	MiddleOnly bool

	// Weight breaks ties between candidate middle-only tokens during path
	// ranking; higher is preferred. Zero for tokens that never compete.
	Weight int

	// ethPrice, when non-nil, converts an amount of this token into its
	// wei-equivalent numeraire. nil means "price unknown" and callers must
	// fall back to treating the token itself as the numeraire.
	ethPrice *uint256.Int
}

// NewToken builds a Token with no ETH-equivalence price set.
func NewToken(addr common.Address, symbol string, decimals uint8) *Token {
	return &Token{Address: addr, Symbol: symbol, Decimals: decimals}
}

// SetEthPrice records the token's price in wei per whole token (i.e. per
// 10**Decimals units), used by ToEth.
func (t *Token) SetEthPrice(weiPerToken *uint256.Int) {
	t.ethPrice = weiPerToken
}

// ToFloat converts a raw on-chain amount to a float64 in whole-token units.
func (t *Token) ToFloat(amount *uint256.Int) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount.ToBig())
	div := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(t.Decimals)), nil))
	f.Quo(f, div)
	out, _ := f.Float64()
	return out
}

// FromFloat converts a whole-token float amount into a raw on-chain amount.
func (t *Token) FromFloat(amount float64) *uint256.Int {
	f := big.NewFloat(amount)
	mul := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(t.Decimals)), nil))
	f.Mul(f, mul)
	i, _ := f.Int(nil)
	u, _ := uint256.FromBig(i)
	return u
}

// ToEth converts a raw amount of this token into a wei-equivalent numeraire,
// returning (value, ok). ok is false if no price has been set.
func (t *Token) ToEth(amount *uint256.Int) (*uint256.Int, bool) {
	if t.ethPrice == nil || amount == nil {
		return nil, false
	}
	// amount (raw units) * ethPrice (wei per whole token) / 10**decimals
	num := new(uint256.Int).Mul(amount, t.ethPrice)
	div := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(t.Decimals)))
	if div.IsZero() {
		return nil, false
	}
	out := new(uint256.Int).Div(num, div)
	return out, true
}

// FromEth is ToEth's inverse: given a wei-equivalent amount, returns how
// much of this token is worth that much, returning (amount, ok). ok is false
// if no price has been set. Used by the searcher to size its probe amount as
// a token's equivalent of a fixed wei value (spec.md §4.6 point 3).
func (t *Token) FromEth(weiAmount *uint256.Int) (*uint256.Int, bool) {
	if t.ethPrice == nil || t.ethPrice.IsZero() || weiAmount == nil {
		return nil, false
	}
	num := new(uint256.Int).Mul(weiAmount, new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(t.Decimals))))
	return new(uint256.Int).Div(num, t.ethPrice), true
}

// SwapDirection is an ordered (tokenIn, tokenOut) pair a pool supports.
type SwapDirection struct {
	From common.Address
	To   common.Address
}
