// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"math/big"
	"strings"

	"github.com/hashicorp/go-bexpr"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
)

// candidate is the flat, bexpr-tagged view of a pending tx that admission
// expressions are evaluated against. Operators can write predicates like
// `to == "0xdac17f958d2ee523a2206206994597c13d831ec7" && value > "0"` to
// exclude uninteresting traffic before it reaches the trace round-trip,
// cutting RPC load the way spec.md §4.2's per-hash short-circuit cuts
// redundant work.
type candidate struct {
	Hash   string `bexpr:"hash"`
	Source string `bexpr:"source"`
	From   string `bexpr:"from"`
	To     string `bexpr:"to"`
	Value  string `bexpr:"value"`
	Type   uint8  `bexpr:"type"`
}

// Filter is a compiled admission expression over pending txs.
type Filter struct {
	evaluator *bexpr.Evaluator
}

// NewFilter compiles expr using hashicorp/go-bexpr's grammar. An empty expr
// admits everything.
func NewFilter(expr string) (*Filter, error) {
	if expr == "" {
		return &Filter{}, nil
	}
	ev, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		return nil, err
	}
	return &Filter{evaluator: ev}, nil
}

// Admit reports whether tx passes the compiled expression. A nil Filter (or
// one built from an empty expression) admits everything.
func (f *Filter) Admit(source string, from common.Address, tx *types.Transaction) (bool, error) {
	if f == nil || f.evaluator == nil {
		return true, nil
	}
	to := ""
	if tx.To() != nil {
		to = strings.ToLower(tx.To().Hex())
	}
	value := "0"
	if v := tx.Value(); v != nil {
		value = new(big.Int).Set(v).String()
	}
	c := candidate{
		Hash:   strings.ToLower(tx.Hash().Hex()),
		Source: source,
		From:   strings.ToLower(from.Hex()),
		To:     to,
		Value:  value,
		Type:   tx.Type(),
	}
	return f.evaluator.Evaluate(c)
}
