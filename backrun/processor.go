// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package backrun

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/events"
	"github.com/luxfi/loom/log"
	"github.com/luxfi/loom/market"
	"github.com/luxfi/loom/mempool"
	"github.com/luxfi/loom/statedb"
)

// pendingTxBudget and poolCodeBudget are the compute-time budgets spec.md
// §4.2 points 4-5 assign to each origin.
const (
	pendingTxBudget = 9 * time.Second
	poolCodeBudget  = 3 * time.Second

	originPendingTx = "pending_tx_searcher"
	originPoolCode  = "poolcode_searcher"
)

// blockContext is the next-block frame a processed tx's trace call is
// constrained to, refreshed by each BlockHeaderUpdate/BlockStateUpdate pair.
type blockContext struct {
	number      uint64
	time        uint64
	nextBaseFee *big.Int
}

// PoolDiscoverer instantiates and registers pools recognized by a
// CodeRegistry match. Concrete bytecode-to-pool construction is out of this
// core's scope (spec.md §1 excludes "pool-specific ABI-decoding details
// beyond the pool interface's behavioral contract"); callers supply it.
type PoolDiscoverer func(ctx context.Context, candidates []PoolCandidate) []events.AffectedPool

// Processor implements spec.md §4.2's mempool + pending-tx processor:
// per-tx gas coercion, a trace round-trip, affected-pool detection, and the
// pool-code secondary pass. Grounded on
// original_source/crates/strategy/backrun/src/pending_tx_state_change_processor.rs's
// pending_tx_state_change_worker/task pair.
type Processor struct {
	Oracle   TraceOracle
	Market   *market.Market
	Mempool  *mempool.Mempool
	GetDB    func() *statedb.StateDB
	Registry *CodeRegistry // nil disables the pool-code discovery pass
	Discover PoolDiscoverer
	Filter   *mempool.Filter // nil admits every tx

	MarketEvents *events.Broadcaster[events.MarketEvent]
	MempoolTxs   *events.Broadcaster[events.MempoolTx]
	StateUpdates *events.Broadcaster[events.StateUpdateEvent]

	affecting sync.Map // common.Hash -> bool
}

// Run subscribes to market and mempool events and dispatches one goroutine
// per actionable pending tx, until ctx is canceled. It will not dispatch any
// tx before the first BlockHeaderUpdate, and pauses dispatch again between a
// BlockHeaderUpdate and its matching BlockStateUpdate, per spec.md §4.2's
// "Ordering" paragraph.
func (p *Processor) Run(ctx context.Context) error {
	marketSub := p.MarketEvents.Subscribe()
	defer marketSub.Unsubscribe()
	txSub := p.MempoolTxs.Subscribe()
	defer txSub.Unsubscribe()

	var cur blockContext
	var ready bool

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-marketSub.C():
			if !ok {
				return nil
			}
			if h := msg.Header; h != nil {
				cur = blockContext{
					number:      h.Number + 1,
					time:        h.Timestamp + 12,
					nextBaseFee: h.NextBaseFee,
				}
				ready = false
				log.Debug("backrun: next-block context refreshed", "number", cur.number)
			}
			if msg.State != nil && cur.number != 0 {
				ready = true
				log.Debug("backrun: block state update received, processor unblocked")
			}

		case msg, ok := <-txSub.C():
			if !ok {
				return nil
			}
			if !ready {
				log.Warn("backrun: dropping pending tx, waiting for block header and state update", "hash", msg.Tx.Hash())
				continue
			}
			go p.processTx(ctx, msg.Source, msg.Tx, cur)
		}
	}
}

// processTx runs the per-tx task described in spec.md §4.2's numbered
// contract, points 1-6.
func (p *Processor) processTx(ctx context.Context, source string, tx *types.Transaction, cur blockContext) {
	hash := tx.Hash()

	if v, ok := p.affecting.Load(hash); ok && !v.(bool) {
		return // already known to not affect any pool; short-circuit.
	}

	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err == nil && p.Filter != nil {
		admit, ferr := p.Filter.Admit(source, from, tx)
		if ferr == nil && !admit {
			return
		}
	}

	gas, err := CoerceGasFields(tx, cur.nextBaseFee)
	if err != nil {
		if err == ErrBlobTx {
			log.Debug("backrun: ignoring blob tx", "hash", hash)
		} else {
			log.Error("backrun: gas coercion failed", "hash", hash, "err", err)
		}
		return
	}

	req := CallRequest{
		Tx:          tx,
		Gas:         *gas,
		BlockNumber: cur.number,
		BlockTime:   cur.time,
		BaseFee:     cur.nextBaseFee,
	}

	pre, post, err := p.Oracle.TraceCallDiff(ctx, req)
	if err != nil {
		p.Mempool.SetFailed(hash)
		log.Debug("backrun: trace call error", "hash", hash, "err", err)
		return
	}

	affected := AffectedPoolsFromDiffs(p.Market, []chain.StateDiff{post})
	p.affecting.Store(hash, len(affected) > 0)

	log.Debug("backrun: mempool affected pools", "hash", hash, "source", source, "pools", len(affected))

	if len(affected) > 0 {
		p.sendStateUpdate(cur, []chain.StateDiff{post}, []chain.StateDiff{pre}, affected, hash, tx, originPendingTx, pendingTxBudget)
	}

	merged := []chain.StateDiff{pre, post}
	if p.Registry != nil && p.Registry.IsPoolCode(merged) {
		candidates := p.Registry.DetectPoolCode(merged)
		var codeAffected []events.AffectedPool
		if p.Discover != nil {
			codeAffected = p.Discover(ctx, candidates)
		}
		if v, ok := p.affecting.Load(hash); !ok || !v.(bool) {
			p.affecting.Store(hash, len(codeAffected) > 0)
		}
		log.Debug("backrun: mempool code pools", "hash", hash, "source", source, "pools", len(codeAffected))
		if len(codeAffected) > 0 {
			p.sendStateUpdate(cur, merged, nil, codeAffected, hash, tx, originPoolCode, poolCodeBudget)
		}
	}
}

func (p *Processor) sendStateUpdate(cur blockContext, update, required []chain.StateDiff, affected []events.AffectedPool, hash common.Hash, tx *types.Transaction, origin string, budget time.Duration) {
	var db *statedb.StateDB
	if p.GetDB != nil {
		db = p.GetDB()
	}
	p.StateUpdates.Send(events.StateUpdateEvent{
		NextBlockNumber:    cur.number,
		NextBlockTimestamp: cur.time,
		NextBaseFee:        cur.nextBaseFee,
		StateDB:            db,
		StateUpdate:        update,
		StateRequired:      required,
		AffectedPools:      affected,
		TxHashes:           []common.Hash{hash},
		Txs:                []*types.Transaction{tx},
		Origin:             origin,
		Budget:             budget,
	})
}
