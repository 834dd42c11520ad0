// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/geth/rpc"

	"github.com/luxfi/loom/evm"
	"github.com/luxfi/loom/statedb"
)

// NodeCaller is evm.Caller's one concrete implementation: it runs
// StaticCall/Call against a real node's eth_call/eth_createAccessList JSON-RPC
// methods, passing db's top-of-overlay mutations as a state override object
// rather than replaying real EVM bytecode locally. This is the
// "evm_access_list(db, env, tx)... against post-state DB" composition
// original_source/crates/execution/estimator/ describes (its AlloyDB-backed
// local executor has no equivalent here, since this module has no bytecode
// interpreter of its own — pool math stays closed-form and only the final
// multicaller call needs a real EVM, which only a node has).
type NodeCaller struct {
	Client *rpc.Client
}

// overrideAccount mirrors the public eth_call/eth_createAccessList
// state-override object schema (balance/nonce/code/stateDiff), independent
// of any specific client library's internal type for it.
type overrideAccount struct {
	Balance   *hexutil.Big                `json:"balance,omitempty"`
	Nonce     *hexutil.Uint64             `json:"nonce,omitempty"`
	Code      *hexutil.Bytes              `json:"code,omitempty"`
	StateDiff map[common.Hash]common.Hash `json:"stateDiff,omitempty"`
}

type callObject struct {
	From     common.Address  `json:"from,omitempty"`
	To       *common.Address `json:"to,omitempty"`
	Gas      hexutil.Uint64  `json:"gas,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Data     hexutil.Bytes   `json:"data,omitempty"`
}

func overrides(db *statedb.StateDB) map[common.Address]overrideAccount {
	acctOverrides := db.Overrides()
	out := make(map[common.Address]overrideAccount, len(acctOverrides))
	for addr, a := range acctOverrides {
		ov := overrideAccount{}
		if a.Balance != nil {
			ov.Balance = (*hexutil.Big)(a.Balance.ToBig())
		}
		nonce := hexutil.Uint64(a.Nonce)
		ov.Nonce = &nonce
		if a.CodeSet {
			code := hexutil.Bytes(a.Code)
			ov.Code = &code
		}
		if len(a.Storage) > 0 {
			ov.StateDiff = a.Storage
		}
		out[addr] = ov
	}
	return out
}

func blockNumberArg(env evm.BlockContext) string {
	if env.Number == nil {
		return "latest"
	}
	return hexutil.EncodeBig(env.Number)
}

// StaticCall runs a zero-value read-only call via eth_call with db's
// mutations applied as a state override.
func (c *NodeCaller) StaticCall(ctx context.Context, db *statedb.StateDB, env evm.BlockContext, to common.Address, data []byte) ([]byte, uint64, error) {
	call := callObject{To: &to, Data: data, Gas: hexutil.Uint64(env.GasLimit)}

	var ret hexutil.Bytes
	if err := c.Client.CallContext(ctx, &ret, "eth_call", call, blockNumberArg(env), overrides(db)); err != nil {
		return nil, 0, fmt.Errorf("cmd/loom: eth_call: %w", err)
	}

	var gasUsed hexutil.Uint64
	if err := c.Client.CallContext(ctx, &gasUsed, "eth_estimateGas", call); err != nil {
		return ret, 0, fmt.Errorf("cmd/loom: eth_estimateGas: %w", err)
	}
	return ret, uint64(gasUsed), nil
}

// Call runs a value-carrying call via eth_createAccessList, which returns
// both the gas used and the access list the estimator needs in one round
// trip, then separately recovers the return data with eth_call.
func (c *NodeCaller) Call(ctx context.Context, db *statedb.StateDB, env evm.BlockContext, from, to common.Address, data []byte, value *uint256.Int, gasLimit uint64) ([]byte, uint64, evm.AccessList, error) {
	var weiValue *big.Int
	if value != nil {
		weiValue = value.ToBig()
	}
	call := callObject{
		From:     from,
		To:       &to,
		Data:     data,
		Gas:      hexutil.Uint64(gasLimit),
		Value:    (*hexutil.Big)(weiValue),
		GasPrice: (*hexutil.Big)(big.NewInt(0)),
	}
	override := overrides(db)

	var alResp struct {
		AccessList evm.AccessList `json:"accessList"`
		GasUsed    hexutil.Uint64 `json:"gasUsed"`
		Error      string         `json:"error"`
	}
	if err := c.Client.CallContext(ctx, &alResp, "eth_createAccessList", call, blockNumberArg(env), override); err != nil {
		return nil, 0, nil, fmt.Errorf("cmd/loom: eth_createAccessList: %w", err)
	}
	if alResp.Error != "" {
		return nil, 0, nil, fmt.Errorf("cmd/loom: eth_createAccessList reverted: %s", alResp.Error)
	}

	var ret hexutil.Bytes
	if err := c.Client.CallContext(ctx, &ret, "eth_call", call, blockNumberArg(env), override); err != nil {
		return nil, uint64(alResp.GasUsed), alResp.AccessList, fmt.Errorf("cmd/loom: eth_call: %w", err)
	}
	return ret, uint64(alResp.GasUsed), alResp.AccessList, nil
}
