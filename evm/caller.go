// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package evm declares the narrow simulation seam pool variants and the
// estimator call through: a static/value call executed against a StateDB
// snapshot and a block environment. The concrete executor (cmd/loom's
// NodeCaller, which sends the call to a node's JSON-RPC with the snapshot's
// mutations passed as a state override) is runtime plumbing assembled by the
// composition root; only the interface lives in the algorithmic packages so
// pool math and the estimator stay pure and unit-testable against a fake.
package evm

import (
	"context"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/loom/statedb"
)

// BlockContext is the subset of block metadata pool math and the estimator
// need to run a call: coinbase, number, time, and base fee, mirroring the
// "block-override" spec.md §4.2 describes for trace calls.
type BlockContext struct {
	Coinbase  common.Address
	Number    *big.Int
	Time      uint64
	BaseFee   *big.Int
	GasLimit  uint64
}

// Caller executes read-only and value calls against a StateDB snapshot.
// CalculateOutAmount-style pool math uses StaticCall; the estimator's
// access-list pass uses Call (it needs gas accounting and an access list).
type Caller interface {
	StaticCall(ctx context.Context, db *statedb.StateDB, env BlockContext, to common.Address, data []byte) (ret []byte, gasUsed uint64, err error)
	Call(ctx context.Context, db *statedb.StateDB, env BlockContext, from, to common.Address, data []byte, value *uint256.Int, gasLimit uint64) (ret []byte, gasUsed uint64, accessList AccessList, err error)
}

// AccessList mirrors the EIP-2930 access list shape: a set of addresses and,
// per address, the storage keys touched.
type AccessList []AccessTuple

type AccessTuple struct {
	Address     common.Address
	StorageKeys []common.Hash
}
