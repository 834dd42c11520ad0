// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package backrun implements spec.md §4.2's pending-tx processor: per-tx gas
// coercion, a prestate/poststate trace round-trip, affected-pool detection,
// and the pool-code secondary discovery pass. Grounded on
// original_source/crates/strategy/backrun/src/pending_tx_state_change_processor.rs.
package backrun

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/luxfi/geth/core/types"
)

var (
	// ErrNoGasPrice is returned when a legacy/2930 tx carries no gas price to
	// coerce, mirroring the original's NO_GAS_PRICE.
	ErrNoGasPrice = errors.New("backrun: legacy/access-list tx has no gas price")
	// ErrNoBaseFee is returned when a 1559 tx carries no max fee per gas.
	ErrNoBaseFee = errors.New("backrun: 1559 tx has no max fee per gas")
	// ErrUnknownTxType is returned for a tx type this engine does not trace.
	ErrUnknownTxType = errors.New("backrun: unknown transaction type")
	// ErrBlobTx signals a 4844 blob tx, which is ignored rather than traced
	// (spec.md §4.2 point 1, supplemented feature §4.2 point 5).
	ErrBlobTx = errors.New("backrun: blob transaction ignored")
)

// CoercedGas is the gas-price triple a trace call request needs, after
// raising it to at least the next block's base fee per spec.md §4.2 point 1.
type CoercedGas struct {
	Type      uint8
	GasPrice  *big.Int // legacy / EIP-2930
	GasFeeCap *big.Int // EIP-1559
	GasTipCap *big.Int // EIP-1559
}

// CoerceGasFields raises tx's gas price (legacy/2930) or max fee per gas
// (1559) to nextBaseFee if it falls below it, so the trace call doesn't
// under-price the block it's being simulated against. 4844 blob txs return
// ErrBlobTx; any other type returns ErrUnknownTxType.
func CoerceGasFields(tx *types.Transaction, nextBaseFee *big.Int) (*CoercedGas, error) {
	switch tx.Type() {
	case types.LegacyTxType, types.AccessListTxType:
		gasPrice := tx.GasPrice()
		if gasPrice == nil {
			return nil, ErrNoGasPrice
		}
		if gasPrice.Cmp(nextBaseFee) < 0 {
			gasPrice = new(big.Int).Set(nextBaseFee)
		}
		return &CoercedGas{Type: tx.Type(), GasPrice: gasPrice}, nil

	case types.DynamicFeeTxType:
		feeCap := tx.GasFeeCap()
		if feeCap == nil {
			return nil, ErrNoBaseFee
		}
		if feeCap.Cmp(nextBaseFee) < 0 {
			feeCap = new(big.Int).Set(nextBaseFee)
		}
		return &CoercedGas{Type: tx.Type(), GasFeeCap: feeCap, GasTipCap: tx.GasTipCap()}, nil

	case types.BlobTxType:
		return nil, ErrBlobTx

	default:
		return nil, fmt.Errorf("%w: type=%d", ErrUnknownTxType, tx.Type())
	}
}
