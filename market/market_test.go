// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package market

import (
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/pool"
)

func addr(b byte) common.Address {
	var a common.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func TestAddPoolIndexesBothDirections(t *testing.T) {
	m := New()
	token0, token1 := addr(1), addr(2)
	p := newMockPool(addr(0xaa), token0, token1)

	require.NoError(t, m.AddPool(p))
	require.Equal(t, p.address, m.GetPool(p.address).Id().Address)

	require.Contains(t, m.GetTokenTokenPools(token0, token1), p.Id())
	require.Contains(t, m.GetTokenTokenPools(token1, token0), p.Id())
	require.Contains(t, m.GetTokenTokens(token0), token1)
	require.Contains(t, m.GetTokenPools(token0), p.Id())
}

func TestSetPoolOkTogglesAdjacency(t *testing.T) {
	m := New()
	token0, token1 := addr(1), addr(2)
	p := newMockPool(addr(0xaa), token0, token1)
	require.NoError(t, m.AddPool(p))

	require.True(t, m.IsPoolOk(p.Id()))
	require.Len(t, m.GetTokenTokenPools(token0, token1), 1)

	m.SetPoolOk(p.Id(), false)
	require.False(t, m.IsPoolOk(p.Id()))
	require.Len(t, m.GetTokenTokenPools(token0, token1), 0)

	m.SetPoolOk(p.Id(), true)
	require.True(t, m.IsPoolOk(p.Id()))
	require.Len(t, m.GetTokenTokenPools(token0, token1), 1)
}

func TestBuildSwapPathVecTwoHops(t *testing.T) {
	m := New()
	weth := addr(0x11)
	wethToken := chain.NewToken(weth, "WETH", 18)
	wethToken.Basic = true
	m.AddToken(wethToken)

	token1 := addr(0x21)
	pool1 := newMockPool(addr(0x31), weth, token1)
	pool2 := newMockPool(addr(0x32), weth, token1)
	require.NoError(t, m.AddPool(pool1))
	require.NoError(t, m.AddPool(pool2))

	directions := map[pool.Pool][]chain.SwapDirection{pool2: pool2.SwapDirections()}
	paths, err := m.BuildSwapPathVec(directions)
	require.NoError(t, err)

	var cyclic []*SwapPath
	for _, p := range paths {
		if p.PoolCount() == 2 && p.TokenCount() == 3 {
			cyclic = append(cyclic, p)
		}
	}
	require.Len(t, cyclic, 2)
	for _, p := range cyclic {
		require.Equal(t, weth, p.Tokens[0].Address)
		require.Equal(t, weth, p.Tokens[2].Address)
	}
}

func TestBuildSwapPathVecThreeHops(t *testing.T) {
	m := New()
	weth := addr(0x11)
	wethToken := chain.NewToken(weth, "WETH", 18)
	wethToken.Basic = true
	m.AddToken(wethToken)

	token1, token2 := addr(0x21), addr(0x22)
	pool1 := newMockPool(addr(0x31), token1, weth)
	pool2 := newMockPool(addr(0x32), token1, token2)
	pool3 := newMockPool(addr(0x33), token2, weth)
	require.NoError(t, m.AddPool(pool1))
	require.NoError(t, m.AddPool(pool2))
	require.NoError(t, m.AddPool(pool3))

	directions := map[pool.Pool][]chain.SwapDirection{pool3: pool3.SwapDirections()}
	paths, err := m.BuildSwapPathVec(directions)
	require.NoError(t, err)

	var cyclic []*SwapPath
	for _, p := range paths {
		if p.PoolCount() == 3 && p.TokenCount() == 4 {
			cyclic = append(cyclic, p)
		}
	}
	require.Len(t, cyclic, 2)
}

func TestSwapPathsDisableAndEnable(t *testing.T) {
	m := New()
	weth := addr(0x11)
	wethToken := chain.NewToken(weth, "WETH", 18)
	wethToken.Basic = true
	m.AddToken(wethToken)

	token1 := addr(0x21)
	pool1 := newMockPool(addr(0x31), weth, token1)
	pool2 := newMockPool(addr(0x32), weth, token1)
	require.NoError(t, m.AddPool(pool1))
	require.NoError(t, m.AddPool(pool2))

	directions := map[pool.Pool][]chain.SwapDirection{pool2: pool2.SwapDirections()}
	paths, err := m.BuildSwapPathVec(directions)
	require.NoError(t, err)
	m.AddPaths(paths)

	enabled := m.SwapPaths().GetPoolPathsEnabledVec(pool2.Id())
	require.NotEmpty(t, enabled)

	// Disable pool1's contribution to every path it appears in; paths that
	// also route through pool2 should drop out of pool2's enabled vec, since
	// they're now disabled for a reason other than pool2 itself.
	for _, p := range m.SwapPaths().GetPoolPathsEnabledVec(pool1.Id()) {
		idx := indexOfPool(p, pool1.Id())
		if idx < 0 {
			continue
		}
		from, to := p.hopDirection(idx)
		m.SwapPaths().DisablePoolPaths(pool1.Id(), from, to, true)
	}

	afterDisable := m.SwapPaths().GetPoolPathsEnabledVec(pool2.Id())
	require.Empty(t, afterDisable)

	// Re-enabling pool1 restores paths that were disabled solely because of
	// it, matching spec.md §9's "disable then re-enable restores the set"
	// invariant.
	for _, p := range m.SwapPaths().GetPoolPathsEnabledVec(pool1.Id()) {
		idx := indexOfPool(p, pool1.Id())
		if idx < 0 {
			continue
		}
		from, to := p.hopDirection(idx)
		m.SwapPaths().DisablePoolPaths(pool1.Id(), from, to, false)
	}
	require.NotEmpty(t, m.SwapPaths().GetPoolPathsEnabledVec(pool2.Id()))
}

func indexOfPool(p *SwapPath, id pool.Id) int {
	for i, pl := range p.Pools {
		if pl.Id() == id {
			return i
		}
	}
	return -1
}
