// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package events defines the inbound/outbound message schemas of spec.md §6
// and the bounded broadcast channel used to move them between actors without
// ever blocking a producer on a slow consumer.
package events

import (
	"math/big"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/statedb"
	"github.com/luxfi/loom/swapline"
)

// MessageBlockHeader carries a newly observed header, independent of its
// block body, logs, or state diff (spec.md §4.1: "four independent streams").
type MessageBlockHeader struct {
	Header *types.Header
}

// MessageBlock carries a full block (header + transactions).
type MessageBlock struct {
	Block *types.Block
}

// MessageBlockLogs carries the logs emitted by one block.
type MessageBlockLogs struct {
	Header *types.Header
	Logs   []*types.Log
}

// MessageBlockStateUpdate carries the state diff produced by executing one
// block, rooted on its parent.
type MessageBlockStateUpdate struct {
	Header      *types.Header
	StateUpdate chain.StateDiff
}

// MempoolTx carries one observed pending transaction and the source that
// reported it (node websocket feed, direct submission, ...).
type MempoolTx struct {
	Source string
	Tx     *types.Transaction
}

// BlockHeaderUpdate is emitted once the block-history actor has linked a
// header into the canonical chain.
type BlockHeaderUpdate struct {
	Number      uint64
	Hash        common.Hash
	Timestamp   uint64
	BaseFee     *big.Int
	NextBaseFee *big.Int
}

// BlockTxUpdate announces that a block's transaction bodies are now known.
type BlockTxUpdate struct {
	Number uint64
	Hash   common.Hash
}

// BlockLogsUpdate announces that a block's logs are now known.
type BlockLogsUpdate struct {
	Number uint64
	Hash   common.Hash
}

// BlockStateUpdate announces that the market's StateDB has advanced to
// reflect block Hash.
type BlockStateUpdate struct {
	Hash common.Hash
}

// MarketEvent is the sum type over the four MarketEvents variants named in
// spec.md §4.1/§6. Exactly one of the embedded pointers is non-nil.
type MarketEvent struct {
	Header *BlockHeaderUpdate
	Tx     *BlockTxUpdate
	Logs   *BlockLogsUpdate
	State  *BlockStateUpdate
}

// HealthEvent is the sum type over spec.md §6's MessageHealthEvent variants.
type HealthEvent struct {
	SwapLineEstimationError *SwapLineEstimationError
	PoolDisabled            *PoolDisabled
	QueueOverflow           *QueueOverflow
}

// SwapLineEstimationError reports that a candidate path failed estimation.
type SwapLineEstimationError struct {
	PathHash common.Hash
	Msg      string
}

// PoolDisabled reports that a (pool, direction) has been disabled after
// repeated failures, per spec.md §4.6's failure semantics.
type PoolDisabled struct {
	Pool common.Address
	From common.Address
	To   common.Address
}

// QueueOverflow reports that a bounded broadcast channel dropped a message
// rather than block its producer, per spec.md §5's back-pressure policy.
type QueueOverflow struct {
	Channel string
}

// StateUpdateEvent is the hand-off from a state-change producer (the
// pending-tx processor or the block-state arb path) to the searcher, per
// spec.md §3: next block context, a starting StateDB, the forward diff, the
// affected pools, the triggering txs, an origin tag and a compute budget.
type StateUpdateEvent struct {
	NextBlockNumber    uint64
	NextBlockTimestamp uint64
	NextBaseFee        *big.Int

	StateDB *statedb.StateDB

	StateUpdate   []chain.StateDiff
	StateRequired []chain.StateDiff

	AffectedPools []AffectedPool

	TxHashes []common.Hash
	Txs      []*types.Transaction

	Origin string
	Budget time.Duration
}

// AffectedPool names a pool whose reserves/ticks a StateUpdateEvent's diff
// touches, plus the direction hint that triggered inclusion.
type AffectedPool struct {
	Pool common.Address
	From common.Address
	To   common.Address
}

// SwapComposeStage discriminates SwapComposeData's three pipeline positions,
// per spec.md's data-flow line: searcher produces Prepare, the merger may
// replace it with another Prepare, the estimator consumes Estimate and
// produces Ready.
type SwapComposeStage int

const (
	StagePrepare SwapComposeStage = iota
	StageEstimate
	StageReady
)

func (s SwapComposeStage) String() string {
	switch s {
	case StagePrepare:
		return "Prepare"
	case StageEstimate:
		return "Estimate"
	case StageReady:
		return "Ready"
	default:
		return "Unknown"
	}
}

// TxComposeData is the tx-assembly half of a SwapComposeData: the fields
// needed to build the eventual signed transaction, independent of which
// swap is being composed.
type TxComposeData struct {
	NextBlockNumber    uint64
	NextBlockTimestamp uint64
	GasLimit           uint64
	PriorityGasFee     *big.Int
	Nonce              uint64
	Balance            *big.Int

	StuffingTxs      []*types.Transaction
	StuffingTxHashes []common.Hash

	Signer *common.Address

	AccessList types.AccessList
}

// SwapComposeData is the pipeline record threaded through
// searcher -> merger -> estimator -> signer, per spec.md §3's
// SwapComposeData and §6's SwapCompose::{Prepare,Estimate,Ready}.
type SwapComposeData struct {
	Stage SwapComposeStage

	Tx   TxComposeData
	Swap *swapline.SwapLine

	PostState *statedb.StateDB

	TipsPct *big.Int
	Origin  string
	Tips    *big.Int
}
