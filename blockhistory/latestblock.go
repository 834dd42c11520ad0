// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package blockhistory

import (
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"

	"github.com/luxfi/loom/chain"
)

// LatestBlock is spec.md §3's single-writer structure exposing the most
// recently known (number, hash, header?, block?, logs?, state-diff?). Each
// field of an Update call is independently optional: passing nil leaves the
// prior value in place, matching original_source's LatestBlock::update.
type LatestBlock struct {
	mu sync.RWMutex

	number    uint64
	hash      common.Hash
	header    *types.Header
	block     *types.Block
	logs      []*types.Log
	stateDiff chain.StateDiff
}

func NewLatestBlock() *LatestBlock { return &LatestBlock{} }

// Update sets number/hash unconditionally and any of header/block/logs/diff
// that are non-nil.
func (l *LatestBlock) Update(number uint64, hash common.Hash, header *types.Header, block *types.Block, logs []*types.Log, diff chain.StateDiff) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.number = number
	l.hash = hash
	if header != nil {
		l.header = header
	}
	if block != nil {
		l.block = block
	}
	if logs != nil {
		l.logs = logs
	}
	if diff != nil {
		l.stateDiff = diff
	}
}

func (l *LatestBlock) NumberAndHash() (uint64, common.Hash) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.number, l.hash
}

func (l *LatestBlock) Header() *types.Header {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.header
}

func (l *LatestBlock) Block() *types.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.block
}

func (l *LatestBlock) Logs() []*types.Log {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.logs
}

func (l *LatestBlock) StateDiff() chain.StateDiff {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stateDiff
}
