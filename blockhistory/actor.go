// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package blockhistory

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/luxfi/geth/core/types"

	"github.com/luxfi/loom/events"
	"github.com/luxfi/loom/log"
	"github.com/luxfi/loom/statedb"
)

// Actor runs the block-history worker loop: it consumes the four independent
// block-update streams (header, body, logs, state diff) named in spec.md
// §4.1 and produces MarketEvent notifications for downstream actors.
// Grounded on original_source/crates/defi-actors/src/block_history/
// block_history_actor.rs's new_block_history_worker, whose single
// tokio::select! loop is split here into one goroutine per stream joined by
// an errgroup, since the streams don't interact except through History and
// LatestBlock, which are already safe for concurrent use.
type Actor struct {
	ChainParameters ChainParameters

	History     *BlockHistory
	LatestBlock *LatestBlock

	HeaderUpdates *events.Broadcaster[events.MessageBlockHeader]
	BlockUpdates  *events.Broadcaster[events.MessageBlock]
	LogUpdates    *events.Broadcaster[events.MessageBlockLogs]
	StateUpdates  *events.Broadcaster[events.MessageBlockStateUpdate]

	MarketEvents *events.Broadcaster[events.MarketEvent]

	// GetStateDB/SetStateDB read-modify-write the market's live StateDB
	// pointer. Kept as funcs rather than a market.Market field so this
	// package doesn't need to import market (which itself has no reason to
	// depend on blockhistory).
	GetStateDB func() *statedb.StateDB
	SetStateDB func(*statedb.StateDB)
}

// Run subscribes to every input stream and processes messages until ctx is
// canceled or a stream's channel closes for good.
func (a *Actor) Run(ctx context.Context) error {
	headerSub := a.HeaderUpdates.Subscribe()
	defer headerSub.Unsubscribe()
	blockSub := a.BlockUpdates.Subscribe()
	defer blockSub.Unsubscribe()
	logSub := a.LogUpdates.Subscribe()
	defer logSub.Unsubscribe()
	stateSub := a.StateUpdates.Subscribe()
	defer stateSub.Unsubscribe()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.runHeaders(ctx, headerSub) })
	g.Go(func() error { return a.runBlocks(ctx, blockSub) })
	g.Go(func() error { return a.runLogs(ctx, logSub) })
	g.Go(func() error { return a.runStateUpdates(ctx, stateSub) })
	return g.Wait()
}

func (a *Actor) runHeaders(ctx context.Context, sub *events.Subscription[events.MessageBlockHeader]) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			a.handleHeader(msg.Header)
		}
	}
}

func (a *Actor) handleHeader(header *types.Header) {
	reorg, err := a.History.SetChainHead(header)
	if err != nil {
		log.Warn("blockhistory: orphan header buffered", "hash", header.Hash(), "number", header.Number, "err", err)
		return
	}
	if reorg.IsReorg {
		log.Info("blockhistory: reorg detected", "hash", header.Hash(), "number", header.Number, "depth", reorg.Depth)
	} else {
		log.Debug("blockhistory: head advanced", "hash", header.Hash(), "number", header.Number)
	}

	number := header.Number.Uint64()
	hash := header.Hash()
	a.LatestBlock.Update(number, hash, header, nil, nil, nil)

	nextBaseFee := a.ChainParameters.CalcNextBlockBaseFee(header.GasUsed, header.GasLimit, header.BaseFee)
	a.MarketEvents.Send(events.MarketEvent{Header: &events.BlockHeaderUpdate{
		Number:      number,
		Hash:        hash,
		Timestamp:   header.Time,
		BaseFee:     header.BaseFee,
		NextBaseFee: nextBaseFee,
	}})
}

func (a *Actor) runBlocks(ctx context.Context, sub *events.Subscription[events.MessageBlock]) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			block := msg.Block
			if err := a.History.AddBlock(block); err != nil {
				log.Error("blockhistory: add_block failed", "err", err, "hash", block.Hash())
				continue
			}
			number, hash := block.NumberU64(), block.Hash()
			a.LatestBlock.Update(number, hash, nil, block, nil, nil)
			a.MarketEvents.Send(events.MarketEvent{Tx: &events.BlockTxUpdate{Number: number, Hash: hash}})
		}
	}
}

func (a *Actor) runLogs(ctx context.Context, sub *events.Subscription[events.MessageBlockLogs]) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			hash := msg.Header.Hash()
			if err := a.History.AddLogs(hash, msg.Logs); err != nil {
				log.Error("blockhistory: add_logs failed", "err", err, "hash", hash)
				continue
			}
			number := msg.Header.Number.Uint64()
			a.LatestBlock.Update(number, hash, nil, nil, msg.Logs, nil)
			a.MarketEvents.Send(events.MarketEvent{Logs: &events.BlockLogsUpdate{Number: number, Hash: hash}})
		}
	}
}

func (a *Actor) runStateUpdates(ctx context.Context, sub *events.Subscription[events.MessageBlockStateUpdate]) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			hash := msg.Header.Hash()
			number := msg.Header.Number.Uint64()
			a.LatestBlock.Update(number, hash, nil, nil, nil, msg.StateUpdate)

			marketDB := a.GetStateDB()
			post, err := a.History.AddStateDiff(hash, marketDB, msg.StateUpdate)
			if err != nil {
				log.Error("blockhistory: add_state_diff failed", "err", err, "hash", hash)
				continue
			}
			if post == nil {
				continue
			}
			a.SetStateDB(post)
			a.MarketEvents.Send(events.MarketEvent{State: &events.BlockStateUpdate{Hash: hash}})
			go post.Maintain()
		}
	}
}
