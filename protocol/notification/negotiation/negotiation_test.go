package negotiation

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/libp2p/go-notifengine/protocol"
	"github.com/libp2p/go-notifengine/substream/substreamtest"
)

func TestNegotiateInboundSuccess(t *testing.T) {
	local, remote := substreamtest.NewPipe()
	events := make(chan Event, 1)
	p := peer.ID("peer-a")

	require.NoError(t, remote.WriteFrame(context.Background(), []byte{1, 2, 3}))
	NegotiateInbound(context.Background(), 0, p, local, events)

	ev := <-events
	require.Equal(t, InboundNegotiated, ev.Kind)
	require.Equal(t, p, ev.Peer)
	require.Equal(t, []byte{1, 2, 3}, ev.Handshake)
}

func TestNegotiateInboundReadError(t *testing.T) {
	sub := substreamtest.NewDummySubstream()
	sub.Close() // ReadFrame now fails immediately
	events := make(chan Event, 1)
	p := peer.ID("peer-b")

	NegotiateInbound(context.Background(), 0, p, sub, events)

	ev := <-events
	require.Equal(t, NegotiationError, ev.Kind)
	require.Equal(t, protocol.DirInbound, ev.Direction)
	require.Error(t, ev.Err)
}

func TestNegotiateOutboundSuccess(t *testing.T) {
	local, remote := substreamtest.NewPipe()
	events := make(chan Event, 1)
	p := peer.ID("peer-c")

	NegotiateOutbound(context.Background(), 0, p, local, []byte{9, 9}, events)

	// Read back what NegotiateOutbound sent as the local handshake.
	sent, err := remote.ReadFrame(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte{9, 9}, sent)

	require.NoError(t, remote.WriteFrame(context.Background(), []byte{4, 5, 6}))

	ev := <-events
	require.Equal(t, OutboundNegotiated, ev.Kind)
	require.Equal(t, p, ev.Peer)
	require.Equal(t, []byte{4, 5, 6}, ev.Handshake)
}

func TestNegotiateOutboundWriteError(t *testing.T) {
	sub := substreamtest.NewDummySubstream()
	sub.Close()
	events := make(chan Event, 1)
	p := peer.ID("peer-d")

	NegotiateOutbound(context.Background(), 0, p, sub, []byte{1}, events)

	ev := <-events
	require.Equal(t, NegotiationError, ev.Kind)
	require.Equal(t, protocol.DirOutbound, ev.Direction)
	require.Error(t, ev.Err)
}

func TestNegotiateInboundTimeoutOption(t *testing.T) {
	local, _ := substreamtest.NewPipe()
	events := make(chan Event, 1)
	p := peer.ID("peer-timeout")

	// Nothing ever writes the handshake; the configured bound must fire.
	NegotiateInbound(context.Background(), 20*time.Millisecond, p, local, events)

	select {
	case ev := <-events:
		require.Equal(t, NegotiationError, ev.Kind)
		require.Equal(t, protocol.DirInbound, ev.Direction)
	case <-time.After(time.Second):
		t.Fatal("expected a NegotiationError once the timeout elapsed")
	}
}

func TestNegotiateOutboundReadTimeout(t *testing.T) {
	local, _ := substreamtest.NewPipe()
	events := make(chan Event, 1)
	p := peer.ID("peer-e")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	NegotiateOutbound(ctx, 0, p, local, []byte{1}, events)

	select {
	case ev := <-events:
		require.Equal(t, NegotiationError, ev.Kind)
		require.Equal(t, protocol.DirOutbound, ev.Direction)
	case <-time.After(time.Second):
		t.Fatal("expected a NegotiationError once the context timed out")
	}
}
