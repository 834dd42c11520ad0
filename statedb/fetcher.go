// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statedb

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// ExtFetcher is the optional external fallback consulted only once a read
// misses both the commit layer and the cache layer. A concrete
// implementation (an AlloyDB-style client against a live node) is explicitly
// out of scope for this core per spec.md §1 — "node RPC / websocket / direct
// node-DB ingress adapters" are external collaborators. Only the interface
// lives here.
type ExtFetcher interface {
	GetBalance(ctx context.Context, addr common.Address) (*uint256.Int, error)
	GetNonce(ctx context.Context, addr common.Address) (uint64, error)
	GetCode(ctx context.Context, addr common.Address) ([]byte, error)
	GetStorage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error)
}

// NoFetcher is an ExtFetcher that always misses, for StateDB instances backed
// purely by preloaded required-state (no external fallback configured).
type NoFetcher struct{}

var errNoFetcher = errNotFound("ext fetcher not configured")

type errNotFound string

func (e errNotFound) Error() string { return string(e) }

func (NoFetcher) GetBalance(context.Context, common.Address) (*uint256.Int, error) {
	return nil, errNoFetcher
}
func (NoFetcher) GetNonce(context.Context, common.Address) (uint64, error) {
	return 0, errNoFetcher
}
func (NoFetcher) GetCode(context.Context, common.Address) ([]byte, error) {
	return nil, errNoFetcher
}
func (NoFetcher) GetStorage(context.Context, common.Address, common.Hash) (common.Hash, error) {
	return common.Hash{}, errNoFetcher
}
