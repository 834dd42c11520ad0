// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package estimator implements spec.md §4.7's EVM Estimator: given a
// SwapCompose::Estimate, it encodes the swap's calldata, runs an
// access-list gas estimation against the post-state DB via evm.Caller, and
// produces a SwapCompose::Ready carrying the real gas cost and access list.
package estimator

import (
	"context"
	"errors"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"

	"github.com/luxfi/loom/encoder"
	"github.com/luxfi/loom/events"
	"github.com/luxfi/loom/evm"
)

var (
	errNotEstimateStage = errors.New("estimator: SwapComposeData is not at Estimate stage")
	errNoSwap           = errors.New("estimator: SwapComposeData has no Swap or PostState")
)

// Estimator runs the EVM Estimator stage described above.
type Estimator struct {
	Caller  evm.Caller
	Encoder *encoder.SwapLineEncoder

	// GasFloor is the minimum gas_used an estimation must clear to be
	// considered real rather than a collapsed call path (spec.md §4.7
	// point 4's 60_000 default).
	GasFloor uint64

	// GasInflationNum/Den scale gas_used up into the tx's gas_limit
	// (spec.md §4.7 point 5's 1.5x default, expressed as a rational to
	// stay in integer arithmetic).
	GasInflationNum uint64
	GasInflationDen uint64

	ComposeEvents *events.Broadcaster[events.SwapComposeData]
	HealthEvents  *events.Broadcaster[events.HealthEvent]
}

// New returns an Estimator configured with spec.md §4.7's quoted defaults.
func New(caller evm.Caller, enc *encoder.SwapLineEncoder) *Estimator {
	return &Estimator{
		Caller:          caller,
		Encoder:         enc,
		GasFloor:        60_000,
		GasInflationNum: 3,
		GasInflationDen: 2,
	}
}

// HandleSwapCompose runs the estimator stage over data, ignoring anything
// not at StageEstimate. It never returns an error for an estimation
// rejection (collapsed gas, failed call) — those are reported as a
// SwapLineEstimationError health event and the compose is simply dropped.
func (e *Estimator) HandleSwapCompose(ctx context.Context, data events.SwapComposeData) error {
	if data.Stage != events.StageEstimate {
		return nil
	}
	if data.Swap == nil || data.PostState == nil {
		return errNoSwap
	}

	calls, err := e.Encoder.EncodeSwapLine(data.Swap)
	if err != nil {
		e.reject(data, "encode: "+err.Error())
		return nil
	}
	calldata := calls.Pack()

	var signer common.Address
	if data.Tx.Signer != nil {
		signer = *data.Tx.Signer
	}

	env := evm.BlockContext{
		Number:   new(big.Int).SetUint64(data.Tx.NextBlockNumber),
		Time:     data.Tx.NextBlockTimestamp,
		GasLimit: data.Tx.GasLimit,
	}

	_, gasUsed, accessList, err := e.Caller.Call(ctx, data.PostState, env, signer, e.Encoder.MulticallerAddress, calldata, uint256.NewInt(0), data.Tx.GasLimit)
	if err != nil {
		e.reject(data, "call: "+err.Error())
		return nil
	}
	if gasUsed < e.GasFloor {
		e.reject(data, "gas_used below floor, collapsed call path")
		return nil
	}

	out := data
	out.Stage = events.StageReady
	out.Tx.GasLimit = gasUsed * e.GasInflationNum / e.GasInflationDen
	out.Tx.AccessList = toTypesAccessList(accessList)
	e.ComposeEvents.Send(out)
	return nil
}

func (e *Estimator) reject(data events.SwapComposeData, msg string) {
	if e.HealthEvents == nil {
		return
	}
	var hash common.Hash
	if data.Swap != nil {
		hash = common.BigToHash(new(big.Int).SetUint64(data.Swap.Path.Hash()))
	}
	e.HealthEvents.Send(events.HealthEvent{SwapLineEstimationError: &events.SwapLineEstimationError{
		PathHash: hash,
		Msg:      msg,
	}})
}

func toTypesAccessList(al evm.AccessList) types.AccessList {
	out := make(types.AccessList, 0, len(al))
	for _, tuple := range al {
		out = append(out, types.AccessTuple{
			Address:     tuple.Address,
			StorageKeys: tuple.StorageKeys,
		})
	}
	return out
}
