// Package channel implements the WebRTC channel-backend: a
// substream.Substream whose bytes are relayed through Go channels rather
// than a raw transport connection. The owning connection engine delivers
// inbound frames and drains the shared outbound queue.
package channel

import (
	"context"
	"io"
	"sync"

	"github.com/libp2p/go-notifengine/substream"
	"github.com/libp2p/go-notifengine/types"
)

// defaultQueueLen bounds each substream's inbound buffer and the Backend's
// shared outbound queue. When a slow protocol handler lets its inbound buffer
// fill, the deliver call blocks its caller until the handler reads or the
// substream closes.
const defaultQueueLen = 64

// OutboundFrame is one message a channel-backed substream has queued for
// delivery to the remote peer, identified by the substream whose WriteFrame
// produced it.
type OutboundFrame struct {
	ID   types.SubstreamId
	Data []byte
}

// Backend owns the multiplexed outbound path for every channel-backed
// substream belonging to one WebRTC connection engine. One Backend is created
// per connection.
type Backend struct {
	queueLen int
	out      chan OutboundFrame
}

// NewBackend constructs a Backend whose substreams each buffer up to queueLen
// inbound frames, and whose shared outbound queue holds up to queueLen frames
// across all of its substreams. queueLen <= 0 selects defaultQueueLen.
func NewBackend(queueLen int) *Backend {
	if queueLen <= 0 {
		queueLen = defaultQueueLen
	}
	return &Backend{
		queueLen: queueLen,
		out:      make(chan OutboundFrame, queueLen),
	}
}

// Substream allocates a new channel-backed substream.Substream bound to id
// and returns it alongside the inbound delivery function the engine calls
// whenever a frame for id arrives from the remote peer.
func (b *Backend) Substream(id types.SubstreamId) (substream.Substream, func(data []byte) bool) {
	s := &channelSubstream{
		id:     id,
		rx:     make(chan []byte, b.queueLen),
		out:    b.out,
		closed: make(chan struct{}),
	}
	deliver := func(data []byte) bool {
		// Checked first so a closed substream refuses input even while rx
		// still has room.
		select {
		case <-s.closed:
			return false
		default:
		}
		select {
		case s.rx <- data:
			return true
		case <-s.closed:
			return false
		}
	}
	return s, deliver
}

// Out returns the channel every channel-backed substream's outbound frames
// are multiplexed onto, for the owning engine to select over alongside its
// other input sources.
func (b *Backend) Out() <-chan OutboundFrame {
	return b.out
}

type channelSubstream struct {
	id  types.SubstreamId
	rx  chan []byte
	out chan<- OutboundFrame

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *channelSubstream) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case data, open := <-s.rx:
		if !open {
			return nil, io.EOF
		}
		return data, nil
	case <-s.closed:
		return nil, io.ErrClosedPipe
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *channelSubstream) WriteFrame(ctx context.Context, frame []byte) error {
	select {
	case <-s.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case s.out <- OutboundFrame{ID: s.id, Data: frame}:
		return nil
	case <-s.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *channelSubstream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	return nil
}
