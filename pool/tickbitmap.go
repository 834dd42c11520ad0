// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/loom/statedb"
	"context"
)

// TickBitmap tracks which ticks are initialized for a concentrated-liquidity
// pool, grounded on original_source/crates/uniswap-v3-math/src/tick_bitmap.rs.
// Ticks are addressed by (word, bit): word = tick >> 8 (signed arithmetic
// shift so negative ticks map to negative words), bit = tick & 0xff. Each
// word is a 256-bit mask read from the pool's tickBitmap(int16) mapping slot.
type TickBitmap struct {
	pool common.Address
	// baseSlot is the storage slot of tickBitmap[0]; word w lives at
	// keccak256(int16(w) . baseSlot) per Solidity mapping layout, but since
	// resolving that requires the real slot-hashing preimage and the pool's
	// actual declared storage index, callers normally reach words through
	// RequiredState-declared slots instead of recomputing the hash here.
	wordSlots map[int16]common.Hash
}

// NewTickBitmap builds a TickBitmap whose words are addressed by the given
// precomputed (word index -> storage slot) map, as produced by a pool's
// RequiredState resolution.
func NewTickBitmap(poolAddr common.Address, wordSlots map[int16]common.Hash) *TickBitmap {
	return &TickBitmap{pool: poolAddr, wordSlots: wordSlots}
}

// Position splits a tick into its word index and bit position within that
// word, exactly as tick_bitmap.rs's `position`.
func Position(tick int32) (word int16, bit uint8) {
	word = int16(tick >> 8)
	bit = uint8(tick & 0xff)
	return
}

func (b *TickBitmap) word(ctx context.Context, db *statedb.StateDB, w int16) *big.Int {
	slot, ok := b.wordSlots[w]
	if !ok {
		return new(big.Int)
	}
	h := db.GetState(ctx, b.pool, slot)
	return new(big.Int).SetBytes(h[:])
}

// IsInitialized reports whether tick is a boundary between initialized
// liquidity ranges.
func (b *TickBitmap) IsInitialized(ctx context.Context, db *statedb.StateDB, tick int32) bool {
	word, bit := Position(tick)
	w := b.word(ctx, db, word)
	return w.Bit(int(bit)) == 1
}

// NextInitializedTickWithinOneWord finds the next initialized tick in the
// same word as tick, searching left-to-right (lte=true, decreasing) or
// right-to-left (lte=false, increasing), mirroring tick_bitmap.rs's
// `next_initialized_tick_within_one_word`. It returns the found tick and
// whether it was actually initialized (false means the search hit the edge
// of the word with no initialized tick, and the caller should advance to the
// adjacent word).
func (b *TickBitmap) NextInitializedTickWithinOneWord(ctx context.Context, db *statedb.StateDB, tick int32, tickSpacing int32, lte bool) (next int32, initialized bool) {
	compressed := tick / tickSpacing
	if tick < 0 && tick%tickSpacing != 0 {
		compressed--
	}

	if lte {
		word, bit := Position(compressed)
		w := b.word(ctx, db, word)
		mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(bit)+1), big.NewInt(1))
		masked := new(big.Int).And(w, mask)
		if masked.Sign() != 0 {
			msb := masked.BitLen() - 1
			next = (int32(word)<<8 + int32(msb)) * tickSpacing
			return next, true
		}
		next = (int32(word)<<8 + 0) * tickSpacing
		return next, false
	}

	compressed++
	word, bit := Position(compressed)
	w := b.word(ctx, db, word)
	mask := new(big.Int).Not(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(bit)), big.NewInt(1)))
	mask.And(mask, maxUint256())
	masked := new(big.Int).And(w, mask)
	if masked.Sign() != 0 {
		lsb := lsbIndex(masked)
		next = (int32(word)<<8 + int32(lsb)) * tickSpacing
		return next, true
	}
	next = (int32(word)<<8 + 255) * tickSpacing
	return next, false
}

func maxUint256() *big.Int {
	m := new(big.Int).Lsh(big.NewInt(1), 256)
	return m.Sub(m, big.NewInt(1))
}

func lsbIndex(x *big.Int) int {
	for i := 0; i < x.BitLen(); i++ {
		if x.Bit(i) == 1 {
			return i
		}
	}
	return 0
}
