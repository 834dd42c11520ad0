// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package market

import (
	"bytes"
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/luxfi/geth/common"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/pool"
)

const maxPathPools = 4

// Market is the indexed catalog of tokens, pools, and swap paths described in
// spec.md §3/§4.4, grounded on
// original_source/crates/types/entities/src/market.rs. All indices are
// maintained together under a single RWMutex — write sections stay to one
// mutation, per spec.md §5's shared-resource policy.
type Market struct {
	mu sync.RWMutex

	pools         map[poolKey]pool.Pool
	poolsDisabled map[poolKey]bool
	tokens        map[common.Address]*chain.Token

	tokenTokens     map[common.Address]mapset.Set[common.Address]
	tokenTokenPools map[common.Address]map[common.Address][]pool.Id
	tokenPools      map[common.Address][]pool.Id

	swapPaths *SwapPaths
	cache     *PathCache
}

func New() *Market {
	return &Market{
		pools:           make(map[poolKey]pool.Pool),
		poolsDisabled:   make(map[poolKey]bool),
		tokens:          make(map[common.Address]*chain.Token),
		tokenTokens:     make(map[common.Address]mapset.Set[common.Address]),
		tokenTokenPools: make(map[common.Address]map[common.Address][]pool.Id),
		tokenPools:      make(map[common.Address][]pool.Id),
		swapPaths:       NewSwapPaths(),
	}
}

// SetPathCache attaches an on-disk PathCache BuildSwapPathVec consults ahead
// of its BFS. Optional: a Market with no cache set behaves exactly as before.
func (m *Market) SetPathCache(c *PathCache) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = c
}

func (m *Market) AddToken(t *chain.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.Address] = t
}

func (m *Market) IsBasicToken(addr common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[addr]
	return ok && t.Basic
}

func (m *Market) GetToken(addr common.Address) *chain.Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens[addr]
}

// GetTokenOrDefault returns the registered token, or a bare placeholder
// Token{Address: addr} if none is registered — market.rs's
// get_token_or_default.
func (m *Market) GetTokenOrDefault(addr common.Address) *chain.Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tokens[addr]; ok {
		return t
	}
	return chain.NewToken(addr, "", 18)
}

// AddPool registers p and indexes its swap directions. Returns an error if a
// pool already exists at p.Id().
func (m *Market) AddPool(p pool.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyOf(p.Id())
	if _, ok := m.pools[k]; ok {
		return fmt.Errorf("pool already exists %s", p.Id().Address.Hex())
	}
	m.pools[k] = p
	for _, d := range p.SwapDirections() {
		if m.tokenTokenPools[d.From] == nil {
			m.tokenTokenPools[d.From] = make(map[common.Address][]pool.Id)
		}
		m.tokenTokenPools[d.From][d.To] = append(m.tokenTokenPools[d.From][d.To], p.Id())
		if m.tokenTokens[d.From] == nil {
			m.tokenTokens[d.From] = mapset.NewSet[common.Address]()
		}
		m.tokenTokens[d.From].Add(d.To)
		m.tokenPools[d.From] = append(m.tokenPools[d.From], p.Id())
	}
	return nil
}

func (m *Market) GetPool(addr common.Address) pool.Pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pools[poolKey{addr: addr}]
}

func (m *Market) IsPool(addr common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pools[poolKey{addr: addr}]
	return ok
}

// PoolsAtAddress returns every registered pool living at addr (ordinarily
// one, but some Curve/Maverick layouts register several logical pools at a
// single address under distinct AddrIndex values). Used by the mempool's
// pending-tx processor to intersect a state diff's touched addresses with
// the market's pool index (spec.md §4.2 point 3).
func (m *Market) PoolsAtAddress(addr common.Address) []pool.Pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []pool.Pool
	for k, p := range m.pools {
		if k.addr == addr {
			out = append(out, p)
		}
	}
	return out
}

// SetPoolOk sets the pool's enabled flag and keeps the tokenTokenPools index
// consistent with it, per market.rs's set_pool_ok.
func (m *Market) SetPoolOk(id pool.Id, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyOf(id)
	m.poolsDisabled[k] = !ok
	p, exists := m.pools[k]
	if !exists {
		return
	}
	for _, d := range p.SwapDirections() {
		lst := m.tokenTokenPools[d.From][d.To]
		if !ok {
			filtered := lst[:0]
			for _, pid := range lst {
				if pid != id {
					filtered = append(filtered, pid)
				}
			}
			m.tokenTokenPools[d.From][d.To] = filtered
		} else {
			found := false
			for _, pid := range lst {
				if pid == id {
					found = true
					break
				}
			}
			if !found {
				m.tokenTokenPools[d.From][d.To] = append(lst, id)
			}
		}
	}
}

func (m *Market) IsPoolOk(id pool.Id) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	disabled, ok := m.poolsDisabled[keyOf(id)]
	if !ok {
		return true
	}
	return !disabled
}

func (m *Market) GetTokenTokenPools(from, to common.Address) []pool.Id {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inner, ok := m.tokenTokenPools[from]
	if !ok {
		return nil
	}
	return append([]pool.Id(nil), inner[to]...)
}

func (m *Market) GetTokenTokens(from common.Address) []common.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.tokenTokens[from]
	if !ok {
		return nil
	}
	return set.ToSlice()
}

func (m *Market) GetTokenPools(from common.Address) []pool.Id {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]pool.Id(nil), m.tokenPools[from]...)
}

func (m *Market) SwapPaths() *SwapPaths { return m.swapPaths }

// AddPaths adds paths to the market's swap-path catalog, deduplicating by
// hash.
func (m *Market) AddPaths(paths []*SwapPath) {
	for _, p := range paths {
		m.swapPaths.Add(p)
	}
}

// BuildSwapPathVec implements spec.md §4.4's build_swap_path_vec: given a set
// of pivot pools each with admissible directions, returns every cyclic path
// that ends with that pivot and starts at a basic token. Search is
// breadth-first-by-construction (bounded DFS), limited by: path length <= 4
// pools, each pool used at most once, and the cycle endpoint being a basic
// token. Each enumerated pivot direction yields two directional paths: the
// path itself and its reverse.
func (m *Market) BuildSwapPathVec(directions map[pool.Pool][]chain.SwapDirection) ([]*SwapPath, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Iterate pivots in a deterministic order so BuildSwapPathVec's output
	// (and, downstream, the order cache entries are written in) doesn't
	// depend on Go's randomized map iteration.
	pivots := maps.Keys(directions)
	slices.SortFunc(pivots, func(a, b pool.Pool) bool {
		ka, kb := a.Id(), b.Id()
		if c := bytes.Compare(ka.Address.Bytes(), kb.Address.Bytes()); c != 0 {
			return c < 0
		}
		return ka.AddrIndex < kb.AddrIndex
	})

	var out []*SwapPath
	for _, pivot := range pivots {
		dirs := directions[pivot]
		for _, d := range dirs {
			basic := m.tokens[d.To]
			if basic == nil || !basic.Basic {
				continue
			}

			if cached := m.cache.load(pivot.Id(), d.From, d.To); cached != nil {
				if paths, ok := m.decodeCachedPaths(cached); ok {
					out = append(out, paths...)
					continue
				}
			}

			var pivotPaths []*SwapPath
			prefixes := m.findPaths(d.To, d.From, pivot.Id(), maxPathPools-1)
			for _, prefix := range prefixes {
				full := &SwapPath{
					Tokens: append(append([]*chain.Token(nil), prefix.tokens...), basic),
					Pools:  append(append([]pool.Pool(nil), prefix.pools...), pivot),
				}
				if !full.IsCyclic() {
					continue
				}
				pivotPaths = append(pivotPaths, full, full.reversed())
			}
			out = append(out, pivotPaths...)

			encoded := make([]cachedSwapPath, len(pivotPaths))
			for i, p := range pivotPaths {
				encoded[i] = encodePath(p)
			}
			m.cache.store(pivot.Id(), d.From, d.To, encoded)
		}
	}
	return out, nil
}

// decodeCachedPaths resolves every entry in cached against this Market's
// live pool index, failing the whole batch (so the caller falls back to a
// fresh BFS) if any single path references a pool no longer registered.
func (m *Market) decodeCachedPaths(cached []cachedSwapPath) ([]*SwapPath, bool) {
	out := make([]*SwapPath, 0, len(cached))
	for _, c := range cached {
		p, ok := m.decodePath(c)
		if !ok {
			return nil, false
		}
		out = append(out, p)
	}
	return out, true
}

// pathAccum is the intermediate BFS state: tokens visited (starting at the
// search root) and the pools used to reach the current token.
type pathAccum struct {
	tokens []*chain.Token
	pools  []pool.Pool
	used   mapset.Set[poolKey]
}

// findPaths enumerates every simple path from startAddr to targetAddr of
// length 1..maxHops pools, never reusing excludePivot or any pool already on
// the path.
func (m *Market) findPaths(startAddr, targetAddr common.Address, excludePivot pool.Id, maxHops int) []pathAccum {
	start := m.tokens[startAddr]
	if start == nil {
		start = chain.NewToken(startAddr, "", 18)
	}
	used := mapset.NewSet[poolKey]()
	used.Add(keyOf(excludePivot))
	var results []pathAccum
	var walk func(cur common.Address, acc pathAccum, depth int)
	walk = func(cur common.Address, acc pathAccum, depth int) {
		if cur == targetAddr && depth > 0 {
			results = append(results, pathAccum{
				tokens: append([]*chain.Token(nil), acc.tokens...),
				pools:  append([]pool.Pool(nil), acc.pools...),
			})
		}
		if depth >= maxHops {
			return
		}
		for to, ids := range m.tokenTokenPools[cur] {
			for _, id := range ids {
				k := keyOf(id)
				if acc.used.Contains(k) {
					continue
				}
				p, ok := m.pools[k]
				if !ok {
					continue
				}
				tTo := m.tokens[to]
				if tTo == nil {
					tTo = chain.NewToken(to, "", 18)
				}
				nextAcc := pathAccum{
					tokens: append(append([]*chain.Token(nil), acc.tokens...), tTo),
					pools:  append(append([]pool.Pool(nil), acc.pools...), p),
					used:   acc.used.Clone(),
				}
				nextAcc.used.Add(k)
				walk(to, nextAcc, depth+1)
			}
		}
	}
	walk(startAddr, pathAccum{tokens: []*chain.Token{start}, pools: nil, used: used}, 0)
	return results
}
