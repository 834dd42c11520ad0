// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statedb

import (
	"context"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/loom/chain"
)

// StateDB is a layered snapshot: every write goes into the StateDB's own top
// overlay and never mutates a parent layer or the shared cache, so a StateDB
// value can be cloned (Fork) and handed to many concurrent readers (worker
// pool path evaluations, §5) without synchronization.
//
// Layers chain backwards through parent pointers to an eventual root backed
// by the shared Cache and, beyond that, the optional ExtFetcher. Fork is O(1):
// it allocates a new empty overlay whose parent is the forked-from snapshot.
type StateDB struct {
	BlockHash common.Hash

	parent  *StateDB
	overlay map[common.Address]*Account
	cache   *Cache
	ext     ExtFetcher
}

// New creates a root StateDB with no mutations, backed by cache and
// (optionally) ext. ext may be nil, in which case it behaves as NoFetcher.
func New(blockHash common.Hash, cache *Cache, ext ExtFetcher) *StateDB {
	if ext == nil {
		ext = NoFetcher{}
	}
	return &StateDB{
		BlockHash: blockHash,
		overlay:   make(map[common.Address]*Account),
		cache:     cache,
		ext:       ext,
	}
}

// Fork returns a cheap clone of db: a new empty overlay chained to db. Writes
// to the fork never affect db or any of db's other forks.
func (db *StateDB) Fork() *StateDB {
	return &StateDB{
		BlockHash: db.BlockHash,
		parent:    db,
		overlay:   make(map[common.Address]*Account),
		cache:     db.cache,
		ext:       db.ext,
	}
}

// account walks the overlay chain for addr, falling back to the cache and
// then the external fetcher. The returned Account is never nil; an address
// never seen anywhere comes back as a zero-value Account.
func (db *StateDB) account(ctx context.Context, addr common.Address) *Account {
	for d := db; d != nil; d = d.parent {
		if a, ok := d.overlay[addr]; ok {
			return a
		}
	}
	if db.cache != nil {
		if a, ok := db.cache.getAccount(addr); ok {
			return a
		}
	}
	acc := &Account{Balance: new(uint256.Int)}
	if bal, err := db.ext.GetBalance(ctx, addr); err == nil {
		acc.Balance = bal
	}
	if nonce, err := db.ext.GetNonce(ctx, addr); err == nil {
		acc.Nonce = nonce
	}
	if code, err := db.ext.GetCode(ctx, addr); err == nil {
		acc.Code = code
		acc.CodeSet = true
	}
	return acc
}

func (db *StateDB) write(addr common.Address, f func(*Account)) {
	cur := db.overlay[addr]
	if cur == nil {
		cur = db.account(context.Background(), addr).clone()
	} else {
		cur = cur.clone()
	}
	f(cur)
	db.overlay[addr] = cur
}

// GetBalance returns addr's current balance, reading through the layers.
func (db *StateDB) GetBalance(ctx context.Context, addr common.Address) *uint256.Int {
	acc := db.account(ctx, addr)
	if acc.Balance == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(acc.Balance)
}

// SetBalance sets addr's balance in the top overlay.
func (db *StateDB) SetBalance(addr common.Address, v *uint256.Int) {
	db.write(addr, func(a *Account) { a.Balance = new(uint256.Int).Set(v) })
}

// GetNonce returns addr's current nonce.
func (db *StateDB) GetNonce(ctx context.Context, addr common.Address) uint64 {
	return db.account(ctx, addr).Nonce
}

// SetNonce sets addr's nonce in the top overlay.
func (db *StateDB) SetNonce(addr common.Address, nonce uint64) {
	db.write(addr, func(a *Account) { a.Nonce = nonce })
}

// GetCode returns addr's contract code, if any.
func (db *StateDB) GetCode(ctx context.Context, addr common.Address) []byte {
	return db.account(ctx, addr).Code
}

// SetCode sets addr's contract code in the top overlay.
func (db *StateDB) SetCode(addr common.Address, code []byte) {
	db.write(addr, func(a *Account) { a.Code = code; a.CodeSet = true })
}

// GetState returns the value stored at addr's storage slot, reading through
// the overlay chain, the shared cache, and finally the external fetcher.
func (db *StateDB) GetState(ctx context.Context, addr common.Address, slot common.Hash) common.Hash {
	for d := db; d != nil; d = d.parent {
		if a, ok := d.overlay[addr]; ok {
			if v, ok := a.Storage[slot]; ok {
				return v
			}
		}
	}
	if db.cache != nil {
		if v, ok := db.cache.getStorage(addr, slot); ok {
			return v
		}
	}
	if v, err := db.ext.GetStorage(ctx, addr, slot); err == nil {
		return v
	}
	return common.Hash{}
}

// SetState writes a storage slot in the top overlay.
func (db *StateDB) SetState(addr common.Address, slot, value common.Hash) {
	db.write(addr, func(a *Account) {
		if a.Storage == nil {
			a.Storage = make(map[common.Hash]common.Hash, 1)
		}
		a.Storage[slot] = value
	})
}

// ApplyDiff bulk-applies a chain.StateDiff to the top overlay. It never
// touches db.parent — exactly the "bulk-apply of a diff" operation described
// in spec.md §3 for StateDB.
func (db *StateDB) ApplyDiff(diff chain.StateDiff) {
	for addr, ad := range diff {
		db.write(addr, func(a *Account) {
			if ad.Balance != nil {
				a.Balance = new(uint256.Int).SetBytes(ad.Balance[:])
			}
			if ad.Nonce != nil {
				a.Nonce = *ad.Nonce
			}
			if ad.Code != nil {
				a.Code = ad.Code
				a.CodeSet = true
			}
			if ad.Storage != nil {
				if a.Storage == nil {
					a.Storage = make(map[common.Hash]common.Hash, len(ad.Storage))
				}
				for slot, val := range ad.Storage {
					a.Storage[slot] = val
				}
			}
		})
	}
}

// Overrides merges the entire overlay chain (without touching the shared
// cache or mutating db) into one address-keyed map, suitable for building an
// RPC state-override payload when a simulation needs to run against a real
// node rather than purely the closed-form pool math (evm.Caller's
// node-backed implementations use this).
func (db *StateDB) Overrides() map[common.Address]*Account {
	merged := make(map[common.Address]*Account)
	for d := db; d != nil; d = d.parent {
		for addr, a := range d.overlay {
			if _, ok := merged[addr]; !ok {
				merged[addr] = a
			} else {
				merged[addr] = mergeFrom(a, merged[addr])
			}
		}
	}
	return merged
}

// Maintain merges this snapshot's entire overlay chain into the shared
// cache and collapses db to a single top overlay holding the merged accounts,
// with no parent layer — "merge commit layer into cache, shrink" per
// spec.md §3/§9. It is safe to call from a background goroutine after the
// front-end has already moved on to a child StateDB, since Maintain only
// mutates db's own overlay map and the shared cache, never a parent's.
func (db *StateDB) Maintain() {
	merged := make(map[common.Address]*Account)
	var chainLen int
	for d := db; d != nil; d = d.parent {
		chainLen++
		for addr, a := range d.overlay {
			if _, ok := merged[addr]; !ok {
				merged[addr] = a
			} else {
				merged[addr] = mergeFrom(a, merged[addr])
			}
		}
	}
	if chainLen <= 1 {
		return
	}
	if db.cache != nil {
		var wg sync.WaitGroup
		for addr, a := range merged {
			wg.Add(1)
			go func(addr common.Address, a *Account) {
				defer wg.Done()
				db.cache.Absorb(addr, a)
			}(addr, a)
		}
		wg.Wait()
	}
	db.parent = nil
	db.overlay = merged
}
