// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package backrun

import (
	"context"
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/luxfi/loom/chain"
)

// MockTraceOracle is a gomock-style test double for TraceOracle, hand-written
// in the shape `mockgen -source=trace.go` would produce, so Processor.Run can
// be driven in tests without a debug_traceCall-capable node.
type MockTraceOracle struct {
	ctrl     *gomock.Controller
	recorder *MockTraceOracleMockRecorder
}

type MockTraceOracleMockRecorder struct {
	mock *MockTraceOracle
}

func NewMockTraceOracle(ctrl *gomock.Controller) *MockTraceOracle {
	mock := &MockTraceOracle{ctrl: ctrl}
	mock.recorder = &MockTraceOracleMockRecorder{mock}
	return mock
}

func (m *MockTraceOracle) EXPECT() *MockTraceOracleMockRecorder {
	return m.recorder
}

func (m *MockTraceOracle) TraceCallDiff(ctx context.Context, req CallRequest) (chain.StateDiff, chain.StateDiff, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "TraceCallDiff", ctx, req)
	pre, _ := ret[0].(chain.StateDiff)
	post, _ := ret[1].(chain.StateDiff)
	err, _ := ret[2].(error)
	return pre, post, err
}

func (mr *MockTraceOracleMockRecorder) TraceCallDiff(ctx, req interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "TraceCallDiff", reflect.TypeOf((*MockTraceOracle)(nil).TraceCallDiff), ctx, req)
}
