// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package blockhistory

import (
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
)

func TestLatestBlockUpdateNilFieldsLeavePriorValues(t *testing.T) {
	lb := NewLatestBlock()

	h := &types.Header{Number: header(1, common.Hash{}, 0).Number}
	logs := []*types.Log{{Address: common.HexToAddress("0xabc")}}

	lb.Update(1, common.HexToHash("0x01"), h, nil, logs, nil)
	if lb.Header() != h {
		t.Fatalf("header not set")
	}
	if len(lb.Logs()) != 1 {
		t.Fatalf("logs not set")
	}

	// A second update that passes nil for header/logs must leave them as-is
	// while still moving number/hash forward.
	lb.Update(2, common.HexToHash("0x02"), nil, nil, nil, nil)
	number, hash := lb.NumberAndHash()
	if number != 2 || hash != common.HexToHash("0x02") {
		t.Fatalf("number/hash not updated: got (%d, %s)", number, hash.Hex())
	}
	if lb.Header() != h {
		t.Fatalf("header should be unchanged by a nil update, got %v", lb.Header())
	}
	if len(lb.Logs()) != 1 {
		t.Fatalf("logs should be unchanged by a nil update, got %v", lb.Logs())
	}
}
