// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package market

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/pool"
	"github.com/luxfi/loom/statedb"
)

// mockPool is a minimal pool.Pool double for path-enumeration tests, mirroring
// original_source/crates/types/entities/src/swap_path.rs's test EmptyPool /
// market.rs's test MockPool.
type mockPool struct {
	address        common.Address
	token0, token1 common.Address
}

func newMockPool(addr, token0, token1 common.Address) *mockPool {
	return &mockPool{address: addr, token0: token0, token1: token1}
}

func (p *mockPool) Id() pool.Id             { return pool.Id{Address: p.address} }
func (p *mockPool) Class() pool.Class        { return pool.ClassConstantProduct }
func (p *mockPool) Protocol() pool.Protocol  { return pool.ProtocolUniswapV2 }
func (p *mockPool) Fee() uint32              { return 30 }
func (p *mockPool) Tokens() []common.Address { return []common.Address{p.token0, p.token1} }
func (p *mockPool) CanFlashSwap() bool       { return false }

func (p *mockPool) SwapDirections() []chain.SwapDirection {
	return []chain.SwapDirection{
		{From: p.token0, To: p.token1},
		{From: p.token1, To: p.token0},
	}
}

func (p *mockPool) RequiredState() pool.RequiredState { return pool.RequiredState{} }
func (p *mockPool) PreswapRequirement(common.Address, common.Address) pool.PreswapRequirement {
	return pool.PreswapRequirement(pool.PreswapBase)
}

func (p *mockPool) CalculateOutAmount(context.Context, *statedb.StateDB, common.Address, common.Address, *uint256.Int) (*uint256.Int, uint64, error) {
	panic("not implemented")
}
func (p *mockPool) CalculateInAmount(context.Context, *statedb.StateDB, common.Address, common.Address, *uint256.Int) (*uint256.Int, uint64, error) {
	panic("not implemented")
}
func (p *mockPool) AbiEncoder() pool.AbiEncoder { return nil }
