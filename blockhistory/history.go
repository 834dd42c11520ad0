// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package blockhistory

import (
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/statedb"
)

// DefaultMaxDepth is the retained re-org reconciliation depth spec.md §9
// suggests ("cap the retained depth, e.g. 32").
const DefaultMaxDepth = 32

// ReorgInfo reports whether set_chain_head caused a re-org and, if so, how
// deep: the number of blocks between the previous head and the fork point.
type ReorgInfo struct {
	IsReorg bool
	Depth   int
}

// BlockHistory is the ring of recent blocks keyed by hash, with re-org
// detection over the parent-hash links, grounded on
// original_source/crates/core/block-history-actor/src/block_history_actor.rs.
type BlockHistory struct {
	mu sync.RWMutex

	entries    map[common.Hash]*BlockHistoryEntry
	headHash   common.Hash
	headNumber uint64
	maxDepth   int
}

func NewBlockHistory(maxDepth int) *BlockHistory {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &BlockHistory{
		entries:  make(map[common.Hash]*BlockHistoryEntry),
		maxDepth: maxDepth,
	}
}

func (h *BlockHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

func (h *BlockHistory) Head() (uint64, common.Hash) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.headNumber, h.headHash
}

func (h *BlockHistory) Get(hash common.Hash) *BlockHistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.entries[hash]
}

// ancestorChainLocked walks from hash through known entries' ParentHash
// links, stopping once an unknown parent is hit or limit hops are taken.
// Caller must hold h.mu.
func (h *BlockHistory) ancestorChainLocked(hash common.Hash, limit int) []common.Hash {
	out := make([]common.Hash, 0, limit)
	cur := hash
	for i := 0; i < limit; i++ {
		out = append(out, cur)
		entry, ok := h.entries[cur]
		if !ok {
			break
		}
		if entry.ParentHash == (common.Hash{}) {
			break
		}
		cur = entry.ParentHash
	}
	return out
}

// SetChainHead implements spec.md §4.1's head-set protocol, steps 1-2:
// locate H in the history (inserting with a parent link if absent), and
// determine whether it extends the current head or triggers a re-org.
// Depth is current_height - fork_height: the previous head's block number
// minus the common ancestor's (0 means H's parent was already the head).
func (h *BlockHistory) SetChainHead(header *types.Header) (ReorgInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	hash := header.Hash()
	number := header.Number.Uint64()
	entry, existed := h.entries[hash]
	if !existed {
		entry = &BlockHistoryEntry{Hash: hash, ParentHash: header.ParentHash, Number: number, Header: header}
		h.entries[hash] = entry
	} else {
		entry.Header = header
	}

	if h.headHash == (common.Hash{}) {
		h.headHash, h.headNumber = hash, number
		return ReorgInfo{}, nil
	}
	if entry.ParentHash == h.headHash {
		h.headHash, h.headNumber = hash, number
		return ReorgInfo{}, nil
	}

	newChain := h.ancestorChainLocked(hash, h.maxDepth)
	oldChain := h.ancestorChainLocked(h.headHash, h.maxDepth)
	oldPos := make(map[common.Hash]int, len(oldChain))
	for i, oh := range oldChain {
		oldPos[oh] = i
	}

	forkIdx := -1
	for _, nh := range newChain {
		if i, ok := oldPos[nh]; ok {
			forkIdx = i
			break
		}
	}
	if forkIdx == -1 {
		entry.Orphan = true
		return ReorgInfo{}, fmt.Errorf("blockhistory: %s has no common ancestor with head within depth %d, buffering as orphan", hash.Hex(), h.maxDepth)
	}

	// Depth is current_height - fork_height per spec.md §4.1 step 2, not the
	// fork hash's position within the ancestor-chain search: a skipped
	// block or a long buffered orphan chain can make those two numbers
	// differ.
	prevHeadNumber := h.headNumber
	forkHeight := h.entries[oldChain[forkIdx]].Number
	depth := int(prevHeadNumber - forkHeight)

	h.headHash, h.headNumber = hash, number
	return ReorgInfo{IsReorg: forkIdx > 0, Depth: depth}, nil
}

// AddBlock attaches a full block body to its already-known header entry, per
// spec.md §4.1's independent block-with-tx stream.
func (h *BlockHistory) AddBlock(block *types.Block) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	hash := block.Hash()
	entry, ok := h.entries[hash]
	if !ok {
		entry = &BlockHistoryEntry{Hash: hash, ParentHash: block.ParentHash(), Number: block.NumberU64()}
		h.entries[hash] = entry
	}
	entry.Block = block
	return nil
}

// AddLogs attaches the logs for an already-known block hash.
func (h *BlockHistory) AddLogs(hash common.Hash, logs []*types.Log) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.entries[hash]
	if !ok {
		return fmt.Errorf("blockhistory: add_logs on unknown block %s", hash.Hex())
	}
	entry.Logs = logs
	return nil
}

// AddStateDiff implements spec.md §4.1's strict state-diff application
// ordering. It returns the derived post-block StateDB when hash is the
// current head (the caller is expected to swap it into the market and emit
// BlockStateUpdate); it returns (nil, nil) when the diff was stored for a
// non-head block (no re-derivation performed).
func (h *BlockHistory) AddStateDiff(hash common.Hash, marketDB *statedb.StateDB, diff chain.StateDiff) (*statedb.StateDB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.entries[hash]
	if !ok {
		return nil, fmt.Errorf("blockhistory: add_state_diff on unknown block %s", hash.Hex())
	}
	entry.StateDiff = diff

	if hash != h.headHash {
		return nil, nil
	}

	var base *statedb.StateDB
	if marketDB != nil && marketDB.BlockHash == entry.ParentHash {
		base = marketDB
	} else {
		recomputed, err := h.recomputeFromAncestorLocked(entry)
		if err != nil {
			return nil, err
		}
		base = recomputed
	}

	post := base.Fork()
	post.ApplyDiff(diff)
	post.BlockHash = hash
	entry.PostDB = post
	return post, nil
}

// recomputeFromAncestorLocked finds the nearest ancestor of entry whose
// PostDB is already known and folds the intervening diffs forward onto it,
// per spec.md §9's "re-org recompute path". Caller must hold h.mu.
func (h *BlockHistory) recomputeFromAncestorLocked(entry *BlockHistoryEntry) (*statedb.StateDB, error) {
	var pending []*BlockHistoryEntry
	cur := entry
	for i := 0; i < h.maxDepth; i++ {
		parent, ok := h.entries[cur.ParentHash]
		if !ok {
			return nil, fmt.Errorf("blockhistory: cannot recompute state for %s: ancestor %s not in history", entry.Hash.Hex(), cur.ParentHash.Hex())
		}
		if parent.PostDB != nil {
			base := parent.PostDB
			for j := len(pending) - 1; j >= 0; j-- {
				step := pending[j]
				base = base.Fork()
				base.ApplyDiff(step.StateDiff)
				base.BlockHash = step.Hash
			}
			return base, nil
		}
		pending = append(pending, parent)
		cur = parent
	}
	return nil, fmt.Errorf("blockhistory: cannot recompute state for %s: exceeded max depth %d", entry.Hash.Hex(), h.maxDepth)
}
