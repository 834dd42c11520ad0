// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package backrun

import (
	"context"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"

	"github.com/luxfi/loom/chain"
)

// CallRequest is the minimal shape a TraceOracle needs to run a
// prestate/poststate diff trace: the tx itself plus the gas fields coerced
// by CoerceGasFields, and the block/state context to constrain the trace to.
type CallRequest struct {
	Tx  *types.Transaction
	Gas CoercedGas

	BlockNumber uint64
	BlockTime   uint64
	Coinbase    common.Address
	BaseFee     *big.Int

	StateOverride chain.StateDiff
}

// TraceOracle abstracts the EVM-trace round-trip spec.md §4.2 point 2
// requires. It's out of this core's scope (spec.md §1: "node RPC ...
// adapters" are external collaborators) — callers supply a concrete
// implementation that talks to a debug_traceCall-capable node.
type TraceOracle interface {
	// TraceCallDiff returns the prestate and poststate diffs of running req
	// against the constrained block/state context.
	TraceCallDiff(ctx context.Context, req CallRequest) (pre, post chain.StateDiff, err error)
}
