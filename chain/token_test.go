// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestToEthFromEthRoundTrip(t *testing.T) {
	tok := NewToken(common.Address{}, "TOK", 18)
	tok.SetEthPrice(uint256.NewInt(2_000_000_000_000_000_000)) // 2 ETH per whole token

	amount := uint256.NewInt(5_000_000_000_000_000_000) // 5 whole tokens
	wei, ok := tok.ToEth(amount)
	require.True(t, ok)
	require.True(t, wei.Eq(uint256.NewInt(10_000_000_000_000_000_000)))

	back, ok := tok.FromEth(wei)
	require.True(t, ok)
	require.True(t, back.Eq(amount))
}

func TestFromEthWithoutPriceReturnsFalse(t *testing.T) {
	tok := NewToken(common.Address{}, "TOK", 18)
	_, ok := tok.FromEth(uint256.NewInt(1))
	require.False(t, ok)
}
