// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"github.com/luxfi/geth/common"
)

// AccountDiff is the per-address before/after view carried by a state diff:
// balance, nonce, code, and per-slot storage. Any field left nil/empty means
// "unchanged" for that field.
type AccountDiff struct {
	Balance *common.Hash // wei, encoded as a 32-byte big-endian value; nil = unchanged
	Nonce   *uint64
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// StateDiff is a per-address set of AccountDiff, keyed by address. It is the
// Go-native shape of the spec's "MessageBlockStateUpdate{ state_update:
// [{address → {balance?, nonce?, code?, storage}}] }".
type StateDiff map[common.Address]AccountDiff

// Merge folds other on top of d, returning a new StateDiff where per-address,
// per-field entries in other take precedence. Used to fold multiple diffs
// (e.g. several stuffing txs) into one forward diff without mutating either
// input.
func (d StateDiff) Merge(other StateDiff) StateDiff {
	out := make(StateDiff, len(d)+len(other))
	for addr, ad := range d {
		out[addr] = ad.clone()
	}
	for addr, ad := range other {
		base, ok := out[addr]
		if !ok {
			out[addr] = ad.clone()
			continue
		}
		if ad.Balance != nil {
			base.Balance = ad.Balance
		}
		if ad.Nonce != nil {
			base.Nonce = ad.Nonce
		}
		if ad.Code != nil {
			base.Code = ad.Code
		}
		if ad.Storage != nil {
			if base.Storage == nil {
				base.Storage = make(map[common.Hash]common.Hash, len(ad.Storage))
			}
			for slot, val := range ad.Storage {
				base.Storage[slot] = val
			}
		}
		out[addr] = base
	}
	return out
}

func (ad AccountDiff) clone() AccountDiff {
	out := ad
	if ad.Storage != nil {
		out.Storage = make(map[common.Hash]common.Hash, len(ad.Storage))
		for k, v := range ad.Storage {
			out.Storage[k] = v
		}
	}
	return out
}

// Addresses returns the set of addresses touched by the diff, used by the
// market to compute the affected-pools intersection (spec §4.2 point 3).
func (d StateDiff) Addresses() []common.Address {
	out := make([]common.Address, 0, len(d))
	for addr := range d {
		out = append(out, addr)
	}
	return out
}
