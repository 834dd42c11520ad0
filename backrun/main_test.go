// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package backrun

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain uses goleak to verify tests in this package, in particular
// Processor.Run's per-tx dispatch, do not leak goroutines past test end.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
