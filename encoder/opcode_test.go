// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package encoder

import (
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestCallsPackRoundTripsSelectorAndCount(t *testing.T) {
	target := common.HexToAddress("0x1111111111111111111111111111111111111111")
	calls := Calls{
		NewCall(target, []byte{0xaa, 0xbb}),
		NewStaticCall(target, []byte{0xcc}).WithReturnStack(true, 0, 0x20),
	}

	packed := calls.Pack()
	require.True(t, len(packed) > len(executeSelector))
	require.Equal(t, executeSelector, packed[:4])
}

func TestCallsCloneDoesNotAliasUnderlyingArray(t *testing.T) {
	target := common.HexToAddress("0x2222222222222222222222222222222222222222")
	original := Calls{NewCall(target, []byte{0x01})}
	clone := original.Clone()
	clone[0].Target = common.HexToAddress("0x3333333333333333333333333333333333333333")

	require.Equal(t, target, original[0].Target)
}
