// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statedb

import (
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	lru "github.com/hashicorp/golang-lru"
	"github.com/luxfi/geth/common"
)

// Cache is the shared "recently seen" layer all StateDB snapshots read
// through on a commit-layer miss. It is safe for concurrent use by many
// readers and is updated in the background by Maintain.
//
// Account metadata (balance, nonce, code) lives in a small bounded LRU, since
// the working set of "hot" accounts at any one time is modest. Storage slots
// are far more numerous and short-lived in aggregate, so they live in a
// fastcache byte-cache sized for low GC pressure rather than an LRU with
// per-entry allocation.
type Cache struct {
	mu       sync.RWMutex
	accounts *lru.Cache
	storage  *fastcache.Cache
	stats    *cacheStats
}

// NewCache builds a Cache with accountSlots entries of LRU-evicted account
// metadata and storageBytes bytes of fastcache-backed storage-slot cache.
func NewCache(accountSlots int, storageBytes int) *Cache {
	accCache, err := lru.New(accountSlots)
	if err != nil {
		// Only size<=0 causes an error; fall back to a minimal cache rather
		// than panicking a long-running engine over a config typo.
		accCache, _ = lru.New(1)
	}
	return &Cache{
		accounts: accCache,
		storage:  fastcache.New(storageBytes),
	}
}

func (c *Cache) getAccount(addr common.Address) (*Account, bool) {
	v, ok := c.accounts.Get(addr)
	c.stats.recordAccountGet(ok)
	if !ok {
		return nil, false
	}
	return v.(*Account).clone(), true
}

func (c *Cache) putAccount(addr common.Address, acc *Account) {
	c.accounts.Add(addr, acc.clone())
	c.stats.recordAccountWrite()
}

func storageKey(addr common.Address, slot common.Hash) []byte {
	key := make([]byte, common.AddressLength+common.HashLength)
	copy(key, addr[:])
	copy(key[common.AddressLength:], slot[:])
	return key
}

func (c *Cache) getStorage(addr common.Address, slot common.Hash) (common.Hash, bool) {
	buf := c.storage.GetBig(nil, storageKey(addr, slot))
	if len(buf) == 0 {
		c.stats.recordStorageGet(false)
		return common.Hash{}, false
	}
	var h common.Hash
	copy(h[common.HashLength-len(buf):], buf)
	c.stats.recordStorageGet(true)
	return h, true
}

func (c *Cache) putStorage(addr common.Address, slot, value common.Hash) {
	c.storage.SetBig(storageKey(addr, slot), value.Bytes())
	c.stats.recordStorageWrite()
}

// Absorb merges a finalized account (including its storage) into the cache,
// overwriting anything previously cached for that address. Used by
// Maintain() to fold a collapsed commit layer into the shared cache.
func (c *Cache) Absorb(addr common.Address, acc *Account) {
	if acc == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putAccount(addr, acc)
	for slot, val := range acc.Storage {
		c.putStorage(addr, slot, val)
	}
}
