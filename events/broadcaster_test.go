// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster[int](4, nil)
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()

	b.Send(7)

	require.Equal(t, 7, <-sub1.C())
	require.Equal(t, 7, <-sub2.C())
}

func TestBroadcasterDropsOnOverflowWithoutBlocking(t *testing.T) {
	overflowed := 0
	b := NewBroadcaster[int](1, func() { overflowed++ })
	sub := b.Subscribe()

	b.Send(1) // fills the buffer of 1
	b.Send(2) // should be dropped, not block

	require.Equal(t, 1, overflowed)
	require.Equal(t, 1, <-sub.C())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcaster[int](1, nil)
	sub := b.Subscribe()
	sub.Unsubscribe()
	require.Equal(t, 0, b.Len())
	b.Send(42) // must not panic or block with zero subscribers
}
