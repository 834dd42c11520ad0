// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package searcher implements spec.md §4.6's state-change arb searcher: on
// every StateUpdateEvent it clones the starting StateDB, enumerates the swap
// paths through each affected pool/direction, and runs the SwapLine
// optimizer for each candidate across a bounded CPU-tier worker pool,
// grounded on original_source/crates/strategy/arb/src/state_change_arb_searcher.rs
// with a worker pool built from a sync.WaitGroup plus a buffered semaphore,
// matching spec.md §5's "dedicated worker pool sized max(1, cpus-2)".
package searcher

import (
	"context"
	"errors"
	"math/big"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/events"
	"github.com/luxfi/loom/log"
	"github.com/luxfi/loom/market"
	"github.com/luxfi/loom/pool"
	"github.com/luxfi/loom/statedb"
	"github.com/luxfi/loom/swapline"
)

// probeWei is the fixed 0.1 ETH probe amount spec.md §4.6 point 3 specifies,
// converted into each candidate path's first token via Token.FromEth.
var probeWei = uint256.NewInt(100_000_000_000_000_000)

// failureThreshold is the number of successive per-pool/direction
// evaluation failures after which the searcher requests the direction be
// disabled, per spec.md §4.6's failure semantics.
const failureThreshold = 5

// Searcher runs the state-change arb search described above.
type Searcher struct {
	Market *market.Market

	// Workers bounds the CPU-tier worker pool; zero means
	// max(1, runtime.NumCPU()-2).
	Workers int

	ComposeEvents *events.Broadcaster[events.SwapComposeData]
	HealthEvents  *events.Broadcaster[events.HealthEvent]

	failures sync.Map // poolDirKey -> *int32
}

type poolDirKey struct {
	pool common.Address
	from common.Address
	to   common.Address
}

func (s *Searcher) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	if n := runtime.NumCPU() - 2; n > 0 {
		return n
	}
	return 1
}

// HandleStateUpdate runs one search over evt, per spec.md §4.6's algorithm.
// It never returns an error for individual path failures — those are
// counted and, past threshold, reported as a PoolDisabled health event; it
// only returns an error if evt's StateDB is nil (nothing to search against).
func (s *Searcher) HandleStateUpdate(ctx context.Context, evt events.StateUpdateEvent) error {
	if evt.StateDB == nil {
		return errors.New("searcher: StateUpdateEvent has no StateDB")
	}
	if evt.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, evt.Budget)
		defer cancel()
	}

	db := evt.StateDB.Fork()
	for _, diff := range evt.StateUpdate {
		db.ApplyDiff(diff)
	}

	candidates := s.candidatePaths(evt.AffectedPools)
	if len(candidates) == 0 {
		return nil
	}

	sem := make(chan struct{}, s.workers())
	var wg sync.WaitGroup
	for _, path := range candidates {
		path := path
		select {
		case <-ctx.Done():
			log.Debug("searcher: budget exceeded, dropping remaining candidates", "origin", evt.Origin)
			wg.Wait()
			return nil
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.evaluate(ctx, db, path, evt)
		}()
	}
	wg.Wait()
	return nil
}

// candidatePaths resolves spec.md §4.6 point 2: for each affected
// (pool, tokenIn, tokenOut), pull the pool's enabled paths and keep only
// those whose hop through the pool matches the given direction, deduped by
// path hash (the shared SwapPaths index already guarantees one *SwapPath
// per hash, so map-by-pointer-identity is enough).
func (s *Searcher) candidatePaths(affected []events.AffectedPool) []*market.SwapPath {
	seen := make(map[uint64]*market.SwapPath)
	for _, ap := range affected {
		p := s.Market.GetPool(ap.Pool)
		if p == nil {
			continue
		}
		for _, path := range s.Market.SwapPaths().GetPoolPathsEnabledVec(p.Id()) {
			if !pathMatchesDirection(path, p.Id(), ap.From, ap.To) {
				continue
			}
			seen[path.Hash()] = path
		}
	}
	out := make([]*market.SwapPath, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	return out
}

func pathMatchesDirection(path *market.SwapPath, id pool.Id, from, to common.Address) bool {
	for i, pl := range path.Pools {
		if pl.Id() != id {
			continue
		}
		if path.Tokens[i].Address == from && path.Tokens[i+1].Address == to {
			return true
		}
	}
	return false
}

// evaluate runs the optimizer for one candidate path and, on profit,
// publishes a SwapCompose::Prepare; on a pool-math failure it counts the
// failure against every (pool, direction) hop on the path.
func (s *Searcher) evaluate(ctx context.Context, db *statedb.StateDB, path *market.SwapPath, evt events.StateUpdateEvent) {
	first := s.Market.GetTokenOrDefault(path.Tokens[0].Address)
	probe, ok := first.FromEth(probeWei)
	if !ok {
		// No ETH price recorded for this token; fall back to treating the
		// token itself as the numeraire at a conservative order of
		// magnitude (0.1 whole token).
		probe = first.FromFloat(0.1)
	}

	line := swapline.New(path)
	if _, err := line.OptimizeWithInAmount(ctx, db, probe); err != nil {
		s.recordFailure(path)
		return
	}

	profit, err := line.Profit()
	if err != nil || profit.Sign() <= 0 {
		return
	}

	if !gasCostAdjusted(first, profit, line.GasUsed, evt.NextBaseFee) {
		return
	}

	s.ComposeEvents.Send(events.SwapComposeData{
		Stage: events.StagePrepare,
		Tx: events.TxComposeData{
			NextBlockNumber:    evt.NextBlockNumber,
			NextBlockTimestamp: evt.NextBlockTimestamp,
			GasLimit:           line.GasUsed,
			StuffingTxs:        evt.Txs,
			StuffingTxHashes:   evt.TxHashes,
		},
		Swap:      line,
		PostState: db,
		Origin:    evt.Origin,
	})
}

// gasCostAdjusted reports whether profit (in the path's own token) clears
// the gas cost of executing it, converted to the same numeraire via the
// token's recorded ETH price. Without a price it falls back to the
// unadjusted profit check already performed by the caller.
func gasCostAdjusted(token *chain.Token, profit *big.Int, gasUsed uint64, nextBaseFee *big.Int) bool {
	if nextBaseFee == nil {
		return true
	}
	profitU, overflow := uint256.FromBig(profit)
	if overflow {
		return true
	}
	profitWei, ok := token.ToEth(profitU)
	if !ok {
		return true
	}
	gasCost := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), nextBaseFee)
	gasCostU, overflow := uint256.FromBig(gasCost)
	if overflow {
		return true
	}
	return profitWei.Cmp(gasCostU) > 0
}

// recordFailure increments the failure counter for every (pool, direction)
// hop on path; once a hop crosses failureThreshold it requests
// DisablePoolPaths and emits a PoolDisabled health event, per spec.md
// §4.6's failure semantics.
func (s *Searcher) recordFailure(path *market.SwapPath) {
	for i, pl := range path.Pools {
		from, to := path.Tokens[i].Address, path.Tokens[i+1].Address
		key := poolDirKey{pool: pl.Id().Address, from: from, to: to}
		v, _ := s.failures.LoadOrStore(key, new(int32))
		count := atomic.AddInt32(v.(*int32), 1)
		if count == failureThreshold {
			s.Market.SwapPaths().DisablePoolPaths(pl.Id(), from, to, true)
			if s.HealthEvents != nil {
				s.HealthEvents.Send(events.HealthEvent{PoolDisabled: &events.PoolDisabled{
					Pool: pl.Id().Address, From: from, To: to,
				}})
			}
		}
	}
}
