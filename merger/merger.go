// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package merger implements spec.md §4.8's Same-Path Merger: it watches
// SwapCompose::Ready records carrying exactly one stuffing tx, groups ready
// swaps by identical SwapPath, and when siblings exist, searches for a
// commit-clean ordering of their stuffing txs before re-running the
// optimizer against the merged post-state, grounded on
// original_source/crates/strategy/merger/src/samepath_merger_actor.rs.
package merger

import (
	"context"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/events"
	"github.com/luxfi/loom/statedb"
	"github.com/luxfi/loom/swapline"
)

// maxOrderingAttempts bounds the iterative reordering search, per spec.md
// §4.8 point 2.
const maxOrderingAttempts = 10

// probeWei mirrors searcher's fixed 0.1 ETH probe, reused here since the
// merger re-runs the same optimizer over the merged post-state.
var probeWei = uint256.NewInt(100_000_000_000_000_000)

// Prestate is one stuffing tx's effect on state, plus the sender/nonce pair
// the merger needs to detect an ordering where it would fail to commit.
type Prestate struct {
	From  common.Address
	Nonce uint64
	Diff  chain.StateDiff
}

// PrestateFetcher resolves a stuffing tx's prestate diff, e.g. via a debug
// trace against the node, per spec.md §4.8 point 1.
type PrestateFetcher func(ctx context.Context, tx *types.Transaction) (Prestate, error)

// SamePathMerger runs the merge described above.
type SamePathMerger struct {
	Fetch         PrestateFetcher
	ComposeEvents *events.Broadcaster[events.SwapComposeData]

	mu         sync.Mutex
	byStuffing map[common.Hash]events.SwapComposeData
	prestate   sync.Map // common.Hash -> Prestate
}

func New(fetch PrestateFetcher, composeEvents *events.Broadcaster[events.SwapComposeData]) *SamePathMerger {
	return &SamePathMerger{
		Fetch:         fetch,
		ComposeEvents: composeEvents,
		byStuffing:    make(map[common.Hash]events.SwapComposeData),
	}
}

// Reset clears the per-block known-ready-swaps set and the prestate cache,
// called on every new block header per the Rust worker's
// BlockHeaderUpdate handling (a new block invalidates every previously
// fetched prestate).
func (m *SamePathMerger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byStuffing = make(map[common.Hash]events.SwapComposeData)
	m.prestate = sync.Map{}
}

// HandleSwapCompose records data if it's a single-stuffing-tx Ready compose,
// then attempts a merge against any already-known sibling sharing the same
// SwapPath. It never returns an error for a failed/skipped merge attempt —
// those simply produce no new SwapCompose::Prepare.
func (m *SamePathMerger) HandleSwapCompose(ctx context.Context, data events.SwapComposeData) error {
	if data.Stage != events.StageReady || len(data.Tx.StuffingTxHashes) != 1 || data.Swap == nil {
		return nil
	}
	stuffingHash := data.Tx.StuffingTxHashes[0]

	siblings := m.siblings(data)

	m.mu.Lock()
	m.byStuffing[stuffingHash] = data
	m.mu.Unlock()

	if len(siblings) == 0 {
		return nil
	}

	// The already-known siblings come first and data last, so a sender's
	// later-nonce tx follows its earlier one in the natural order.
	all := append(siblings, data)
	m.tryMerge(ctx, all)
	return nil
}

// siblings returns every known Ready compose whose SwapPath hash matches
// data's but whose stuffing tx differs, mirroring get_merge_list.
func (m *SamePathMerger) siblings(data events.SwapComposeData) []events.SwapComposeData {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash := data.Swap.Path.Hash()
	stuffingHash := data.Tx.StuffingTxHashes[0]

	var out []events.SwapComposeData
	for k, v := range m.byStuffing {
		if k == stuffingHash || v.Swap == nil {
			continue
		}
		if v.Swap.Path.Hash() == hash {
			out = append(out, v)
		}
	}
	return out
}

func (m *SamePathMerger) fetchCached(ctx context.Context, tx *types.Transaction) (Prestate, error) {
	if cached, ok := m.prestate.Load(tx.Hash()); ok {
		return cached.(Prestate), nil
	}
	ps, err := m.Fetch(ctx, tx)
	if err != nil {
		return Prestate{}, err
	}
	m.prestate.Store(tx.Hash(), ps)
	return ps, nil
}

// tryMerge fetches every candidate's stuffing tx prestate, searches for a
// commit-clean ordering, and on success re-optimizes and emits a new
// SwapCompose::Prepare, per spec.md §4.8 points 1-3.
func (m *SamePathMerger) tryMerge(ctx context.Context, candidates []events.SwapComposeData) {
	if len(candidates) < 2 {
		return
	}
	base := candidates[0].PostState
	if base == nil {
		return
	}

	txs := make([]*types.Transaction, len(candidates))
	prestates := make([]Prestate, len(candidates))
	for i, c := range candidates {
		if len(c.Tx.StuffingTxs) == 0 {
			return
		}
		tx := c.Tx.StuffingTxs[0]
		ps, err := m.fetchCached(ctx, tx)
		if err != nil {
			return
		}
		txs[i] = tx
		prestates[i] = ps
	}

	order, db, ok := findCommitOrder(ctx, base, prestates)
	if !ok || len(order) < 2 {
		return
	}

	line := swapline.New(candidates[0].Swap.Path)
	first := line.Path.Tokens[0]
	probe, priced := first.FromEth(probeWei)
	if !priced {
		probe = first.FromFloat(0.1)
	}
	if _, err := line.OptimizeWithInAmount(ctx, db, probe); err != nil {
		return
	}

	stuffingTxs := make([]*types.Transaction, len(order))
	stuffingHashes := make([]common.Hash, len(order))
	for i, idx := range order {
		stuffingTxs[i] = txs[idx]
		stuffingHashes[i] = txs[idx].Hash()
	}

	merged := candidates[0]
	merged.Stage = events.StagePrepare
	merged.Origin = "samepath_merger"
	merged.PostState = db
	merged.Swap = line
	merged.Tx.StuffingTxs = stuffingTxs
	merged.Tx.StuffingTxHashes = stuffingHashes

	m.ComposeEvents.Send(merged)
}

// findCommitOrder ports same_path_merger_task's reorder loop: starting from
// natural order, apply each prestate's diff in turn against a fork of base,
// checking the sender's nonce still matches the expected nonce at that
// point (our closed-form stand-in for "the real tx would revert here"). On
// a mismatch at index i, swap i with i-1 or drop it, bounded by
// maxOrderingAttempts; a dropped index may be re-tried once more before
// being removed outright. Total removals are capped at len(prestates)/2
// (spec.md §9's resolution for this Open Question): dropping more than
// half the candidates means the set doesn't actually commute into a
// single valid order, so it's better to give up than return a stub
// bundle of one or two survivors.
func findCommitOrder(ctx context.Context, base *statedb.StateDB, prestates []Prestate) ([]int, *statedb.StateDB, bool) {
	order := make([]int, len(prestates))
	for i := range order {
		order[i] = i
	}
	maxRemovals := len(prestates) / 2

	changing := -1
	counter := 0
	removed := 0
	for {
		counter++
		if counter > maxOrderingAttempts {
			return nil, nil, false
		}

		db := base.Fork()
		ok := true
		for idx, txIdx := range order {
			ps := prestates[txIdx]
			if db.GetNonce(ctx, ps.From) != ps.Nonce {
				switch {
				case changing >= 0 && ((changing == idx && idx == 0) || changing == idx-1):
					order = removeAt(order, changing)
					changing = -1
					removed++
				case idx > 0 && idx < len(order):
					order[idx], order[idx-1] = order[idx-1], order[idx]
					changing = idx - 1
				default:
					order = removeAt(order, 0)
					changing = -1
					removed++
				}
				if removed > maxRemovals {
					return nil, nil, false
				}
				ok = false
				break
			}
			db.ApplyDiff(ps.Diff)
			db.SetNonce(ps.From, ps.Nonce+1)
		}
		if ok {
			return order, db, true
		}
	}
}

func removeAt(s []int, i int) []int {
	out := make([]int, 0, len(s)-1)
	out = append(out, s[:i]...)
	out = append(out, s[i+1:]...)
	return out
}
