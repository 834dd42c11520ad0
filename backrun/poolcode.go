// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package backrun

import (
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"

	"github.com/luxfi/loom/chain"
	"github.com/luxfi/loom/pool"
)

// CodeRegistry maps a deployed contract's runtime-code hash to the pool
// class/protocol it belongs to, letting DetectPoolCode recognize a factory's
// freshly deployed pair/pool without decoding its constructor args — the
// ABI-decoding itself stays out of this core's scope per spec.md §1.
type CodeRegistry struct {
	byCodeHash map[common.Hash]pool.Protocol
}

// NewCodeRegistry builds a registry from known runtime bytecode blobs,
// hashing each with Keccak256 the way a factory's CREATE2-deployed code is
// fingerprinted on-chain.
func NewCodeRegistry(known map[pool.Protocol][]byte) *CodeRegistry {
	r := &CodeRegistry{byCodeHash: make(map[common.Hash]pool.Protocol, len(known))}
	for protocol, code := range known {
		r.byCodeHash[crypto.Keccak256Hash(code)] = protocol
	}
	return r
}

// PoolCandidate is an address whose code diff matches a registered pool
// bytecode pattern, newly created within the diff under examination.
type PoolCandidate struct {
	Address  common.Address
	Protocol pool.Protocol
}

// IsPoolCode reports whether any account in the merged diff set had code
// installed matching a registered pool bytecode pattern — the cheap
// pre-check the original runs before the (more expensive) discovery pass.
func (r *CodeRegistry) IsPoolCode(diffs []chain.StateDiff) bool {
	return len(r.DetectPoolCode(diffs)) > 0
}

// DetectPoolCode scans every diff's account code writes for a match against
// the registry, per spec.md §4.2 point 5. Matches are returned so the caller
// can run the secondary "pool-code installation" discovery pass (instantiate
// the new pool, register it with the market, and treat it as affected).
func (r *CodeRegistry) DetectPoolCode(diffs []chain.StateDiff) []PoolCandidate {
	var out []PoolCandidate
	seen := make(map[common.Address]bool)
	for _, diff := range diffs {
		for addr, ad := range diff {
			if ad.Code == nil || seen[addr] {
				continue
			}
			if protocol, ok := r.byCodeHash[crypto.Keccak256Hash(ad.Code)]; ok {
				seen[addr] = true
				out = append(out, PoolCandidate{Address: addr, Protocol: protocol})
			}
		}
	}
	return out
}
