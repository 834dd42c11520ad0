// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package blockhistory implements spec.md §3/§4.1's block-history/market-state
// manager: a ring of recent blocks keyed by hash, re-org detection, and
// ordered state-diff application onto the market's StateDB. Grounded on
// original_source/crates/core/block-history-actor/src/block_history_actor.rs's
// set_chain_head / diff-application ordering.
package blockhistory

import (
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/statedb"
)

// BlockHistoryEntry is spec.md §3's per-hash record: the header, optionally
// the full block, optionally logs, optionally a state diff, and the derived
// post-block StateDB snapshot once known.
type BlockHistoryEntry struct {
	Hash       common.Hash
	ParentHash common.Hash
	Number     uint64

	Header    *types.Header
	Block     *types.Block
	Logs      []*types.Log
	StateDiff chain.StateDiff
	PostDB    *statedb.StateDB

	// Orphan is set by SetChainHead when the entry shares no ancestor with
	// the current head within the history's max depth.
	Orphan bool
}
