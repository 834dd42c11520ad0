// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package blockhistory

import "math/big"

// ChainParameters is the small constant set the next-base-fee calculation
// needs, mirroring original_source's defi_types::ChainParameters. Kept
// self-contained rather than reusing the teacher's plugin/evm/header
// base-fee code: that code computes the base fee from a window of historical
// blocks under a Lux-specific fee-config/activation schedule
// (extras.ChainConfig, commontype.FeeConfig) which has no equivalent here —
// spec.md asks for the plain EIP-1559 gasUsed/gasLimit/baseFee rule.
type ChainParameters struct {
	BaseFeeChangeDenominator *big.Int
	ElasticityMultiplier     uint64
}

// Ethereum returns the mainnet EIP-1559 constants: base fee moves by at most
// 1/8 per block, and the gas target is half the gas limit.
func Ethereum() ChainParameters {
	return ChainParameters{
		BaseFeeChangeDenominator: big.NewInt(8),
		ElasticityMultiplier:     2,
	}
}

// CalcNextBlockBaseFee computes the base fee a block built on top of a
// parent with the given gasUsed/gasLimit/baseFee would need, per EIP-1559.
func (c ChainParameters) CalcNextBlockBaseFee(gasUsed, gasLimit uint64, baseFee *big.Int) *big.Int {
	if baseFee == nil {
		return big.NewInt(0)
	}
	elasticity := c.ElasticityMultiplier
	if elasticity == 0 {
		elasticity = 2
	}
	gasTarget := gasLimit / elasticity
	if gasTarget == 0 {
		return new(big.Int).Set(baseFee)
	}

	denom := c.BaseFeeChangeDenominator
	if denom == nil || denom.Sign() == 0 {
		denom = big.NewInt(8)
	}

	switch {
	case gasUsed == gasTarget:
		return new(big.Int).Set(baseFee)

	case gasUsed > gasTarget:
		gasUsedDelta := new(big.Int).SetUint64(gasUsed - gasTarget)
		x := new(big.Int).Mul(baseFee, gasUsedDelta)
		y := x.Div(x, new(big.Int).SetUint64(gasTarget))
		baseFeeDelta := new(big.Int).Div(y, denom)
		if baseFeeDelta.Sign() == 0 {
			baseFeeDelta = big.NewInt(1)
		}
		return new(big.Int).Add(baseFee, baseFeeDelta)

	default:
		gasUsedDelta := new(big.Int).SetUint64(gasTarget - gasUsed)
		x := new(big.Int).Mul(baseFee, gasUsedDelta)
		y := x.Div(x, new(big.Int).SetUint64(gasTarget))
		baseFeeDelta := new(big.Int).Div(y, denom)
		next := new(big.Int).Sub(baseFee, baseFeeDelta)
		if next.Sign() < 0 {
			return big.NewInt(0)
		}
		return next
	}
}
