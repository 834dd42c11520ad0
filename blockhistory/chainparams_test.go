// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package blockhistory

import (
	"math/big"
	"testing"
)

func TestCalcNextBlockBaseFeeStable(t *testing.T) {
	c := Ethereum()
	baseFee := big.NewInt(1_000_000_000)
	next := c.CalcNextBlockBaseFee(15_000_000, 30_000_000, baseFee)
	if next.Cmp(baseFee) != 0 {
		t.Fatalf("gasUsed == target should leave base fee unchanged, got %s", next)
	}
}

func TestCalcNextBlockBaseFeeIncreasesWhenFull(t *testing.T) {
	c := Ethereum()
	baseFee := big.NewInt(1_000_000_000)
	next := c.CalcNextBlockBaseFee(30_000_000, 30_000_000, baseFee)
	if next.Cmp(baseFee) <= 0 {
		t.Fatalf("a fully-used block should increase the base fee, got %s from %s", next, baseFee)
	}
	// At max elasticity (100% usage against a 50% target) the increase is
	// exactly baseFee/denominator = 1_000_000_000/8 = 125_000_000.
	want := new(big.Int).Add(baseFee, big.NewInt(125_000_000))
	if next.Cmp(want) != 0 {
		t.Fatalf("next base fee = %s, want %s", next, want)
	}
}

func TestCalcNextBlockBaseFeeDecreasesWhenEmpty(t *testing.T) {
	c := Ethereum()
	baseFee := big.NewInt(1_000_000_000)
	next := c.CalcNextBlockBaseFee(0, 30_000_000, baseFee)
	if next.Cmp(baseFee) >= 0 {
		t.Fatalf("an empty block should decrease the base fee, got %s from %s", next, baseFee)
	}
	want := new(big.Int).Sub(baseFee, big.NewInt(125_000_000))
	if next.Cmp(want) != 0 {
		t.Fatalf("next base fee = %s, want %s", next, want)
	}
}

func TestCalcNextBlockBaseFeeNeverGoesNegative(t *testing.T) {
	c := Ethereum()
	baseFee := big.NewInt(1)
	next := c.CalcNextBlockBaseFee(0, 30_000_000, baseFee)
	if next.Sign() < 0 {
		t.Fatalf("base fee must never go negative, got %s", next)
	}
}

func TestCalcNextBlockBaseFeeMinimumIncrementIsOne(t *testing.T) {
	c := Ethereum()
	// A tiny base fee with a tiny overage still must move by at least 1 wei.
	baseFee := big.NewInt(1)
	next := c.CalcNextBlockBaseFee(15_000_001, 30_000_000, baseFee)
	want := big.NewInt(2)
	if next.Cmp(want) != 0 {
		t.Fatalf("next base fee = %s, want %s (minimum +1 wei increment)", next, want)
	}
}
