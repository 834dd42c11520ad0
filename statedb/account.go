// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package statedb implements the engine's three-layer EVM key-value store:
// an in-memory commit layer holding the mutations of the current simulation,
// a shared cached layer of recently seen accounts and storage, and an
// optional external fetcher consulted only on a full cache miss.
package statedb

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Account is the in-memory view of one address: balance, nonce, code, and any
// storage slots touched so far. A nil Storage map means "no slots known yet",
// distinct from an empty-but-non-nil map ("known to have no touched slots").
type Account struct {
	Balance *uint256.Int
	Nonce   uint64
	Code    []byte
	CodeSet bool // true once Code has been explicitly read or written, even if empty
	Storage map[common.Hash]common.Hash
}

func (a *Account) clone() *Account {
	if a == nil {
		return nil
	}
	out := &Account{Nonce: a.Nonce, CodeSet: a.CodeSet}
	if a.Balance != nil {
		out.Balance = new(uint256.Int).Set(a.Balance)
	}
	if a.Code != nil {
		out.Code = append([]byte(nil), a.Code...)
	}
	if a.Storage != nil {
		out.Storage = make(map[common.Hash]common.Hash, len(a.Storage))
		for k, v := range a.Storage {
			out.Storage[k] = v
		}
	}
	return out
}

// mergeFrom overlays src's known fields on top of a, returning a new Account.
// Fields unset in src (nil Balance, CodeSet false, nil Storage) are taken from
// a unchanged.
func mergeFrom(a, src *Account) *Account {
	if a == nil {
		return src.clone()
	}
	out := a.clone()
	if src.Balance != nil {
		out.Balance = new(uint256.Int).Set(src.Balance)
	}
	out.Nonce = src.Nonce
	if src.CodeSet {
		out.Code = append([]byte(nil), src.Code...)
		out.CodeSet = true
	}
	if src.Storage != nil {
		if out.Storage == nil {
			out.Storage = make(map[common.Hash]common.Hash, len(src.Storage))
		}
		for k, v := range src.Storage {
			out.Storage[k] = v
		}
	}
	return out
}
