// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statedb

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/loom/chain"
)

func TestForkIsolation(t *testing.T) {
	cache := NewCache(16, 1<<16)
	root := New(common.Hash{1}, cache, nil)
	addr := common.HexToAddress("0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc")

	root.SetBalance(addr, uint256.NewInt(100))

	fork := root.Fork()
	fork.SetBalance(addr, uint256.NewInt(200))

	ctx := context.Background()
	require.Equal(t, uint64(100), root.GetBalance(ctx, addr).Uint64())
	require.Equal(t, uint64(200), fork.GetBalance(ctx, addr).Uint64())
}

func TestForkReadsThroughToParent(t *testing.T) {
	cache := NewCache(16, 1<<16)
	root := New(common.Hash{1}, cache, nil)
	addr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	slot := common.HexToHash("0x01")

	root.SetState(addr, slot, common.HexToHash("0xaa"))
	fork := root.Fork()

	ctx := context.Background()
	require.Equal(t, common.HexToHash("0xaa"), fork.GetState(ctx, addr, slot))

	fork.SetState(addr, slot, common.HexToHash("0xbb"))
	require.Equal(t, common.HexToHash("0xaa"), root.GetState(ctx, addr, slot))
	require.Equal(t, common.HexToHash("0xbb"), fork.GetState(ctx, addr, slot))
}

func TestMaintainCollapsesChainWithoutChangingValues(t *testing.T) {
	cache := NewCache(16, 1<<16)
	root := New(common.Hash{1}, cache, nil)
	addr := common.HexToAddress("0x0000000000000000000000000000000000000002")
	root.SetBalance(addr, uint256.NewInt(7))

	l1 := root.Fork()
	l2 := l1.Fork()
	l2.SetNonce(addr, 3)

	ctx := context.Background()
	require.Equal(t, uint64(7), l2.GetBalance(ctx, addr).Uint64())

	l2.Maintain()
	require.Nil(t, l2.parent)
	require.Equal(t, uint64(7), l2.GetBalance(ctx, addr).Uint64())
	require.Equal(t, uint64(3), l2.GetNonce(ctx, addr))
}

func TestApplyDiffBulk(t *testing.T) {
	cache := NewCache(16, 1<<16)
	db := New(common.Hash{1}, cache, nil)
	addr := common.HexToAddress("0x0000000000000000000000000000000000000003")
	bal := common.BigToHash(uint256.NewInt(42).ToBig())
	nonce := uint64(1)

	diff := chain.StateDiff{
		addr: chain.AccountDiff{Balance: &bal, Nonce: &nonce},
	}
	db.ApplyDiff(diff)

	ctx := context.Background()
	require.Equal(t, uint64(42), db.GetBalance(ctx, addr).Uint64())
	require.Equal(t, uint64(1), db.GetNonce(ctx, addr))
}
