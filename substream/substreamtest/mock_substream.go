// Package substreamtest provides test doubles for substream.Substream.
// MockSubstream is a gomock mock of the interface; DummySubstream is a
// trivial stand-in that never yields data, for scenarios that don't assert
// on stream contents; NewPipe connects two in-memory substreams back to back.
package substreamtest

import (
	"context"
	"io"
	reflect "reflect"
	"sync"

	gomock "github.com/golang/mock/gomock"

	"github.com/libp2p/go-notifengine/substream"
)

// MockSubstream is a mock of the substream.Substream interface.
type MockSubstream struct {
	ctrl     *gomock.Controller
	recorder *MockSubstreamMockRecorder
}

// MockSubstreamMockRecorder is the mock recorder for MockSubstream.
type MockSubstreamMockRecorder struct {
	mock *MockSubstream
}

// NewMockSubstream creates a new mock instance.
func NewMockSubstream(ctrl *gomock.Controller) *MockSubstream {
	mock := &MockSubstream{ctrl: ctrl}
	mock.recorder = &MockSubstreamMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockSubstream) EXPECT() *MockSubstreamMockRecorder {
	return m.recorder
}

// ReadFrame mocks base method.
func (m *MockSubstream) ReadFrame(ctx context.Context) ([]byte, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ReadFrame", ctx)
	ret0, _ := ret[0].([]byte)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// ReadFrame indicates an expected call.
func (mr *MockSubstreamMockRecorder) ReadFrame(ctx interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ReadFrame", reflect.TypeOf((*MockSubstream)(nil).ReadFrame), ctx)
}

// WriteFrame mocks base method.
func (m *MockSubstream) WriteFrame(ctx context.Context, frame []byte) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "WriteFrame", ctx, frame)
	ret0, _ := ret[0].(error)
	return ret0
}

// WriteFrame indicates an expected call.
func (mr *MockSubstreamMockRecorder) WriteFrame(ctx, frame interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "WriteFrame", reflect.TypeOf((*MockSubstream)(nil).WriteFrame), ctx, frame)
}

// Close mocks base method.
func (m *MockSubstream) Close() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Close")
	ret0, _ := ret[0].(error)
	return ret0
}

// Close indicates an expected call.
func (mr *MockSubstreamMockRecorder) Close() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Close", reflect.TypeOf((*MockSubstream)(nil).Close))
}

// DummySubstream is a Substream whose content is irrelevant to the test at
// hand: WriteFrame succeeds without blocking until Close, ReadFrame blocks
// until Close or ctx ends and never yields a frame, and after Close both
// fail.
type DummySubstream struct {
	closed chan struct{}
}

// NewDummySubstream returns a ready-to-use DummySubstream.
func NewDummySubstream() *DummySubstream {
	return &DummySubstream{closed: make(chan struct{})}
}

func (d *DummySubstream) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-d.closed:
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *DummySubstream) WriteFrame(ctx context.Context, frame []byte) error {
	select {
	case <-d.closed:
		return context.Canceled
	default:
		return nil
	}
}

func (d *DummySubstream) Close() error {
	select {
	case <-d.closed:
	default:
		close(d.closed)
	}
	return nil
}

// IsClosed reports whether Close has already been called, for tests that
// assert a substream was torn down without racing on the underlying channel.
func (d *DummySubstream) IsClosed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}

// pipeEnd is one side of an in-memory, in-process substream pair, used where
// a test needs ReadFrame/WriteFrame to actually exchange bytes (e.g.
// completing a handshake), unlike DummySubstream.
type pipeEnd struct {
	rx     chan []byte
	tx     chan<- []byte
	closed chan struct{}
	once   sync.Once
}

// NewPipe returns two connected Substreams: a frame written to one is read
// from the other, in either direction. It is the in-process analogue of the
// channel-backed substream the WebRTC engine produces (substream/channel),
// used here so protocol tests don't need a real transport.
func NewPipe() (substream.Substream, substream.Substream) {
	aToB := make(chan []byte, 4)
	bToA := make(chan []byte, 4)
	a := &pipeEnd{rx: bToA, tx: aToB, closed: make(chan struct{})}
	b := &pipeEnd{rx: aToB, tx: bToA, closed: make(chan struct{})}
	return a, b
}

func (p *pipeEnd) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-p.rx:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-p.closed:
		return nil, io.ErrClosedPipe
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) WriteFrame(ctx context.Context, frame []byte) error {
	select {
	case p.tx <- frame:
		return nil
	case <-p.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
