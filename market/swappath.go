// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package market indexes tokens and pools into a direction graph and an
// enumerated catalog of cyclic swap paths, grounded on
// original_source/crates/types/entities/src/{market,swap_path}.rs.
package market

import (
	"hash/fnv"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/pool"
)

// SwapPath is an ordered sequence of tokens t0..tn and pools p0..pn-1 such
// that each pi supports the direction (ti, ti+1), per spec.md §3. Cyclic iff
// t0 == tn.
type SwapPath struct {
	Tokens []*chain.Token
	Pools  []pool.Pool

	Disabled      bool
	DisabledPools []pool.Id
	Score         *uint256.Int
}

func (p *SwapPath) PoolCount() int   { return len(p.Pools) }
func (p *SwapPath) TokenCount() int  { return len(p.Tokens) }
func (p *SwapPath) IsEmpty() bool    { return len(p.Tokens) == 0 && len(p.Pools) == 0 }
func (p *SwapPath) IsCyclic() bool {
	if len(p.Tokens) < 2 {
		return false
	}
	return p.Tokens[0].Address == p.Tokens[len(p.Tokens)-1].Address
}

// Hash is over the token and pool address sequence, matching swap_path.rs's
// Hash impl (which hashes tokens then pools).
func (p *SwapPath) Hash() uint64 {
	h := fnv.New64a()
	for _, t := range p.Tokens {
		h.Write(t.Address[:])
	}
	for _, pl := range p.Pools {
		id := pl.Id()
		h.Write(id.Address[:])
	}
	return h.Sum64()
}

// reversed builds the reverse-direction path: tokens and pools both reversed.
func (p *SwapPath) reversed() *SwapPath {
	n := len(p.Tokens)
	tokens := make([]*chain.Token, n)
	for i, t := range p.Tokens {
		tokens[n-1-i] = t
	}
	m := len(p.Pools)
	pools := make([]pool.Pool, m)
	for i, pl := range p.Pools {
		pools[m-1-i] = pl
	}
	return &SwapPath{Tokens: tokens, Pools: pools}
}

// hopDirection returns the (from, to) token pair that hop i of the path
// swaps through pool pi.
func (p *SwapPath) hopDirection(i int) (from, to common.Address) {
	return p.Tokens[i].Address, p.Tokens[i+1].Address
}

// SwapPaths is the catalog of enumerated paths: the path vector, a
// hash->index map for dedup, and a poolId->[]index reverse index, per
// swap_path.rs's SwapPaths.
type SwapPaths struct {
	mu sync.RWMutex

	paths       []*SwapPath
	pathHashIdx map[uint64]int
	poolPaths   map[poolKey][]int
	// disabledDirections records (direction, pool) disable state for
	// diagnostics; matches swap_path.rs's disabled_directions map.
	disabledDirections map[uint64]bool
}

type poolKey struct {
	addr      common.Address
	addrIndex uint16
}

func keyOf(id pool.Id) poolKey { return poolKey{addr: id.Address, addrIndex: id.AddrIndex} }

func NewSwapPaths() *SwapPaths {
	return &SwapPaths{
		pathHashIdx:         make(map[uint64]int),
		poolPaths:           make(map[poolKey][]int),
		disabledDirections:  make(map[uint64]bool),
	}
}

// Add inserts path, deduplicating by hash. Returns the index path was stored
// at, or -1 if it was already present.
func (s *SwapPaths) Add(path *SwapPath) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := path.Hash()
	if _, ok := s.pathHashIdx[h]; ok {
		return -1
	}
	idx := len(s.paths)
	s.pathHashIdx[h] = idx
	s.paths = append(s.paths, path)
	for _, pl := range path.Pools {
		k := keyOf(pl.Id())
		s.poolPaths[k] = append(s.poolPaths[k], idx)
	}
	return idx
}

func (s *SwapPaths) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.paths)
}

func (s *SwapPaths) GetByIndex(idx int) *SwapPath {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx < 0 || idx >= len(s.paths) {
		return nil
	}
	return s.paths[idx]
}

func (s *SwapPaths) GetByHash(h uint64) *SwapPath {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.pathHashIdx[h]
	if !ok {
		return nil
	}
	return s.paths[idx]
}

// DisablePath sets the disabled flag on the stored path matching path's hash.
func (s *SwapPaths) DisablePath(path *SwapPath, disable bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.pathHashIdx[path.Hash()]
	if !ok {
		return false
	}
	s.paths[idx].Disabled = disable
	return true
}

// DisablePoolPaths marks every path whose step through poolID has direction
// (from, to) as disabled, appending poolID to that path's DisabledPools list.
// A path with more than one distinct disabled pool remains disabled even if
// any single contributing pool is re-enabled later — exactly swap_path.rs's
// disable_pool_paths semantics.
func (s *SwapPaths) DisablePoolPaths(poolID pool.Id, from, to common.Address, disabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyOf(poolID)
	indices, ok := s.poolPaths[k]
	if !ok {
		return
	}
	for _, idx := range indices {
		p := s.paths[idx]
		hopIdx := -1
		for i, pl := range p.Pools {
			if keyOf(pl.Id()) == k {
				hopIdx = i
				break
			}
		}
		if hopIdx < 0 {
			continue
		}
		hopFrom, hopTo := p.hopDirection(hopIdx)
		if hopFrom != from || hopTo != to {
			continue
		}
		if disabled {
			if !containsPoolID(p.DisabledPools, poolID) {
				p.DisabledPools = append(p.DisabledPools, poolID)
			}
		} else {
			p.DisabledPools = removePoolID(p.DisabledPools, poolID)
		}
		// A path stays disabled as long as any distinct pool remains in its
		// DisabledPools list — re-enabling one contributing pool only clears
		// Disabled once every other contributor has also been re-enabled,
		// per spec.md §9's invariant 7.
		p.Disabled = len(p.DisabledPools) > 0
		s.disabledDirections[directionPoolHash(from, to, poolID)] = disabled
	}
}

func containsPoolID(ids []pool.Id, id pool.Id) bool {
	for _, x := range ids {
		if x.Address == id.Address && x.AddrIndex == id.AddrIndex {
			return true
		}
	}
	return false
}

func removePoolID(ids []pool.Id, id pool.Id) []pool.Id {
	out := ids[:0]
	for _, x := range ids {
		if x.Address != id.Address || x.AddrIndex != id.AddrIndex {
			out = append(out, x)
		}
	}
	return out
}

func directionPoolHash(from, to common.Address, id pool.Id) uint64 {
	h := fnv.New64a()
	h.Write(from[:])
	h.Write(to[:])
	h.Write(id.Address[:])
	return h.Sum64()
}

// GetPoolPathsEnabledVec returns only the paths through poolID whose
// DisabledPools list is empty, or contains exactly poolID — swap_path.rs's
// get_pool_paths_enabled_vec.
func (s *SwapPaths) GetPoolPathsEnabledVec(poolID pool.Id) []*SwapPath {
	s.mu.RLock()
	defer s.mu.RUnlock()
	indices, ok := s.poolPaths[keyOf(poolID)]
	if !ok {
		return nil
	}
	out := make([]*SwapPath, 0, len(indices))
	for _, idx := range indices {
		p := s.paths[idx]
		if len(p.DisabledPools) == 0 || (len(p.DisabledPools) == 1 && containsPoolID(p.DisabledPools, poolID)) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
