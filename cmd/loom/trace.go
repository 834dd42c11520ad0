// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/rlp"
	"github.com/luxfi/geth/rpc"

	"github.com/luxfi/loom/backrun"
	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/merger"
)

// NodeTraceOracle implements backrun.TraceOracle (and, via Prestate, doubles
// as a merger.PrestateFetcher) by calling debug_traceCall with the
// prestateTracer in diffMode against a real node, per spec.md §4.2 point 2's
// "evm-trace round-trip".
type NodeTraceOracle struct {
	Client *rpc.Client
}

type prestateDiffResult struct {
	Pre  map[common.Address]prestateAccount `json:"pre"`
	Post map[common.Address]prestateAccount `json:"post"`
}

type prestateAccount struct {
	Balance *hexutil.Big                `json:"balance,omitempty"`
	Nonce   *hexutil.Uint64              `json:"nonce,omitempty"`
	Code    *hexutil.Bytes               `json:"code,omitempty"`
	Storage map[common.Hash]common.Hash  `json:"storage,omitempty"`
}

func toStateDiff(accounts map[common.Address]prestateAccount) chain.StateDiff {
	out := make(chain.StateDiff, len(accounts))
	for addr, a := range accounts {
		ad := chain.AccountDiff{}
		if a.Balance != nil {
			h := common.BigToHash((*big.Int)(a.Balance))
			ad.Balance = &h
		}
		if a.Nonce != nil {
			n := uint64(*a.Nonce)
			ad.Nonce = &n
		}
		if a.Code != nil {
			ad.Code = *a.Code
		}
		if len(a.Storage) > 0 {
			ad.Storage = a.Storage
		}
		out[addr] = ad
	}
	return out
}

// diffToOverrides adapts a chain.StateDiff into the same state-override wire
// shape caller.go's overrides() builds, reused here since debug_traceCall
// accepts overrides with the same balance/nonce/code/stateDiff fields.
func diffToOverrides(diff chain.StateDiff) map[common.Address]overrideAccount {
	out := make(map[common.Address]overrideAccount, len(diff))
	for addr, ad := range diff {
		ov := overrideAccount{}
		if ad.Balance != nil {
			ov.Balance = (*hexutil.Big)(new(big.Int).SetBytes(ad.Balance[:]))
		}
		if ad.Nonce != nil {
			n := hexutil.Uint64(*ad.Nonce)
			ov.Nonce = &n
		}
		if ad.Code != nil {
			code := hexutil.Bytes(ad.Code)
			ov.Code = &code
		}
		if len(ad.Storage) > 0 {
			ov.StateDiff = ad.Storage
		}
		out[addr] = ov
	}
	return out
}

// TraceCallDiff implements backrun.TraceOracle.
func (o *NodeTraceOracle) TraceCallDiff(ctx context.Context, req backrun.CallRequest) (pre, post chain.StateDiff, err error) {
	raw, err := rlp.EncodeToBytes(req.Tx)
	if err != nil {
		return nil, nil, fmt.Errorf("cmd/loom: rlp encode tx: %w", err)
	}

	var result prestateDiffResult
	params := map[string]any{
		"tracer": "prestateTracer",
		"tracerConfig": map[string]any{
			"diffMode": true,
		},
	}
	if len(req.StateOverride) > 0 {
		params["stateOverrides"] = diffToOverrides(req.StateOverride)
	}
	blockArg := map[string]any{
		"blockNumber": hexutil.EncodeUint64(req.BlockNumber),
	}
	if err := o.Client.CallContext(ctx, &result, "debug_traceCall", hexutil.Bytes(raw), blockArg, params); err != nil {
		return nil, nil, fmt.Errorf("cmd/loom: debug_traceCall: %w", err)
	}
	return toStateDiff(result.Pre), toStateDiff(result.Post), nil
}

// Prestate implements merger.PrestateFetcher: it recovers tx's sender with
// signer, takes the expected nonce from tx itself, and runs the same
// prestateTracer trace the backrun processor uses, keeping the trace's
// post-state diff as the Prestate's Diff, per the merger's need to check
// "does this stuffing tx still apply at its expected nonce".
func (o *NodeTraceOracle) Prestate(signer types.Signer) merger.PrestateFetcher {
	return func(ctx context.Context, tx *types.Transaction) (merger.Prestate, error) {
		from, err := types.Sender(signer, tx)
		if err != nil {
			return merger.Prestate{}, fmt.Errorf("cmd/loom: recover sender: %w", err)
		}
		_, post, err := o.TraceCallDiff(ctx, backrun.CallRequest{Tx: tx})
		if err != nil {
			return merger.Prestate{}, err
		}
		return merger.Prestate{From: from, Nonce: tx.Nonce(), Diff: post}, nil
	}
}
