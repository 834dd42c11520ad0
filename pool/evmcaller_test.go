// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/loom/evm"
	"github.com/luxfi/loom/statedb"
)

// fakeCaller is a test double for evm.Caller: it returns a canned 32-byte
// word for any StaticCall against a registered (address, 4-byte-selector)
// pair, standing in for the real geth-backed executor so pool variants that
// delegate pricing to a periphery quoter can be exercised without a node.
type fakeCaller struct {
	responses map[fakeCallKey][]byte
	err       error
}

type fakeCallKey struct {
	to       common.Address
	selector [4]byte
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{responses: make(map[fakeCallKey][]byte)}
}

func (f *fakeCaller) onCall(to common.Address, selector []byte, ret *uint256.Int) {
	var key fakeCallKey
	key.to = to
	copy(key.selector[:], selector)
	word := ret.Bytes32()
	f.responses[key] = word[:]
}

func (f *fakeCaller) StaticCall(ctx context.Context, db *statedb.StateDB, env evm.BlockContext, to common.Address, data []byte) ([]byte, uint64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	var key fakeCallKey
	key.to = to
	copy(key.selector[:], data[:4])
	if ret, ok := f.responses[key]; ok {
		return ret, 0, nil
	}
	return nil, 0, nil
}

func (f *fakeCaller) Call(ctx context.Context, db *statedb.StateDB, env evm.BlockContext, from, to common.Address, data []byte, value *uint256.Int, gasLimit uint64) ([]byte, uint64, evm.AccessList, error) {
	ret, gas, err := f.StaticCall(ctx, db, env, to, data)
	return ret, gas, nil, err
}
