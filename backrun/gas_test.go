// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package backrun

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
)

func TestCoerceGasFieldsRaisesLegacyGasPrice(t *testing.T) {
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tx := types.NewTx(&types.LegacyTx{GasPrice: big.NewInt(10), Gas: 21000, To: &to, Value: big.NewInt(0)})

	coerced, err := CoerceGasFields(tx, big.NewInt(100))
	if err != nil {
		t.Fatalf("CoerceGasFields: %v", err)
	}
	if coerced.GasPrice.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("gas price = %s, want 100 (raised to next base fee)", coerced.GasPrice)
	}
}

func TestCoerceGasFieldsLeavesSufficientLegacyGasPrice(t *testing.T) {
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tx := types.NewTx(&types.LegacyTx{GasPrice: big.NewInt(500), Gas: 21000, To: &to, Value: big.NewInt(0)})

	coerced, err := CoerceGasFields(tx, big.NewInt(100))
	if err != nil {
		t.Fatalf("CoerceGasFields: %v", err)
	}
	if coerced.GasPrice.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("gas price = %s, want unchanged at 500", coerced.GasPrice)
	}
}

func TestCoerceGasFieldsRaises1559FeeCap(t *testing.T) {
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tx := types.NewTx(&types.DynamicFeeTx{
		GasFeeCap: big.NewInt(10),
		GasTipCap: big.NewInt(1),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(0),
	})

	coerced, err := CoerceGasFields(tx, big.NewInt(100))
	if err != nil {
		t.Fatalf("CoerceGasFields: %v", err)
	}
	if coerced.GasFeeCap.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("fee cap = %s, want 100", coerced.GasFeeCap)
	}
	if coerced.GasTipCap.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("tip cap should be left untouched, got %s", coerced.GasTipCap)
	}
}

func TestCoerceGasFieldsIgnoresBlobTx(t *testing.T) {
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tx := types.NewTx(&types.BlobTx{
		GasFeeCap: uint256.NewInt(10),
		GasTipCap: uint256.NewInt(1),
		Gas:       21000,
		To:        to,
		Value:     uint256.NewInt(0),
	})

	_, err := CoerceGasFields(tx, big.NewInt(100))
	if !errors.Is(err, ErrBlobTx) {
		t.Fatalf("expected ErrBlobTx, got %v", err)
	}
}
