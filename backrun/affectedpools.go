// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package backrun

import (
	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/events"
	"github.com/luxfi/loom/market"
	"github.com/luxfi/loom/pool"
)

// AffectedPoolsFromDiffs intersects every touched address across diffs with
// the market's pool index, per spec.md §4.2 point 3. A pool is reported once
// per (from, to) direction whose reserves/ticks plausibly moved — since a
// generic state diff doesn't name which direction was swapped, every
// registered direction of a touched pool is reported; the searcher itself
// re-derives actual profitability per direction.
func AffectedPoolsFromDiffs(m *market.Market, diffs []chain.StateDiff) []events.AffectedPool {
	var out []events.AffectedPool
	seen := make(map[pool.Id]map[chain.SwapDirection]bool)
	for _, diff := range diffs {
		for _, addr := range diff.Addresses() {
			for _, p := range m.PoolsAtAddress(addr) {
				id := p.Id()
				for _, dir := range p.SwapDirections() {
					if seen[id] == nil {
						seen[id] = make(map[chain.SwapDirection]bool)
					}
					if seen[id][dir] {
						continue
					}
					seen[id][dir] = true
					out = append(out, events.AffectedPool{Pool: id.Address, From: dir.From, To: dir.To})
				}
			}
		}
	}
	return out
}
