// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import "errors"

// SwapError is the pool-math failure record of spec.md §7, returned by
// pool math instead of panicking so the searcher can count failures per
// (pool, direction) and eventually disable it.
type SwapError struct {
	Pool   Id
	From   string
	To     string
	Amount string
	Msg    string
}

func (e *SwapError) Error() string { return e.Msg }

// Sentinel error kinds named in spec.md §4.3's "Error kinds" list.
var (
	ErrReserveExceeded = errors.New("pool: amount exceeds reserve")
	ErrZeroOutput      = errors.New("pool: computed output is zero")
	ErrDivByZero       = errors.New("pool: division by zero in pool math")
	ErrNotSupported    = errors.New("pool: operation not supported by this variant")
	ErrLiquidityUnderflow = errors.New("pool: tick liquidity underflow")
)
