// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package market

import (
	"encoding/json"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/pool"
)

// PathCache persists BuildSwapPathVec's enumerated swap paths, keyed by
// pivot pool and direction, so a restart doesn't re-run the BFS for a pivot
// whose pool topology hasn't changed. It's an optional accelerator on top of
// an in-memory Market, not persisted engine state — spec.md §6 lists
// "Persisted state layout: None required by the core" and this cache can be
// dropped and rebuilt with no behavior change, just slower startup.
type PathCache struct {
	db database.Database
}

// NewPathCache wraps db for use by a Market. A nil db makes every load a
// miss and every store a no-op, so callers that don't configure
// db_access.path still work unmodified.
func NewPathCache(db database.Database) *PathCache {
	return &PathCache{db: db}
}

// cachedToken/cachedSwapPath are PathCache's on-disk encoding: token
// fields plus pool identities (address + AddrIndex). On load, tokens are
// rebuilt from these fields and pools are looked up in the owning Market.
type cachedToken struct {
	Address  common.Address
	Decimals uint8
	Basic    bool
}

type cachedSwapPath struct {
	Tokens []cachedToken
	Pools  []pool.Id
}

func pathCacheKey(pivot pool.Id, from, to common.Address) []byte {
	key := make([]byte, 0, common.AddressLength*3+2)
	key = append(key, []byte("loom/pathcache/")...)
	key = append(key, pivot.Address.Bytes()...)
	key = append(key, byte(pivot.AddrIndex>>8), byte(pivot.AddrIndex))
	key = append(key, from.Bytes()...)
	key = append(key, to.Bytes()...)
	return key
}

// load returns the cached full+reversed path pair for (pivot, from, to), or
// nil if nothing is cached for that key.
func (c *PathCache) load(pivot pool.Id, from, to common.Address) []cachedSwapPath {
	if c == nil || c.db == nil {
		return nil
	}
	raw, err := c.db.Get(pathCacheKey(pivot, from, to))
	if err != nil {
		return nil
	}
	var out []cachedSwapPath
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// store persists encoded for (pivot, from, to), overwriting any prior entry.
// Failures are not fatal: the cache is an accelerator, so a write error just
// means the next restart pays the BFS cost again.
func (c *PathCache) store(pivot pool.Id, from, to common.Address, encoded []cachedSwapPath) {
	if c == nil || c.db == nil {
		return
	}
	raw, err := json.Marshal(encoded)
	if err != nil {
		return
	}
	_ = c.db.Put(pathCacheKey(pivot, from, to), raw)
}

func encodePath(p *SwapPath) cachedSwapPath {
	tokens := make([]cachedToken, len(p.Tokens))
	for i, t := range p.Tokens {
		tokens[i] = cachedToken{Address: t.Address, Decimals: t.Decimals, Basic: t.Basic}
	}
	ids := make([]pool.Id, len(p.Pools))
	for i, pl := range p.Pools {
		ids[i] = pl.Id()
	}
	return cachedSwapPath{Tokens: tokens, Pools: ids}
}

// decodePath rebuilds a cached path: each token from its cached address,
// decimals and Basic flag (token names are not cached), each pool by lookup
// in m's live pool index. Returns ok=false if any referenced pool is no longer registered (topology
// changed since the cache was written), in which case the caller should
// fall back to a fresh BFS rather than serve a stale/partial path.
func (m *Market) decodePath(c cachedSwapPath) (*SwapPath, bool) {
	tokens := make([]*chain.Token, len(c.Tokens))
	for i, t := range c.Tokens {
		tokens[i] = chain.NewToken(t.Address, "", t.Decimals)
		tokens[i].Basic = t.Basic
	}
	pools := make([]pool.Pool, len(c.Pools))
	for i, id := range c.Pools {
		p, ok := m.pools[keyOf(id)]
		if !ok {
			return nil, false
		}
		pools[i] = p
	}
	return &SwapPath{Tokens: tokens, Pools: pools}, true
}
