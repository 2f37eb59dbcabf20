package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/libp2p/go-notifengine/substream/substreamtest"
)

func TestProtocolSetRegisterAndReportSubstreamOpen(t *testing.T) {
	s := NewProtocolSet(4)
	sink := make(chan InnerTransportEvent, 1)
	s.Register("/notif/1", sink)

	sub := substreamtest.NewDummySubstream()
	ok := s.ReportSubstreamOpen(context.Background(), peer.ID("p1"), "/notif/1", DirInbound, sub)
	require.True(t, ok)

	select {
	case ev := <-sink:
		opened, ok := ev.(EventSubstreamOpened)
		require.True(t, ok)
		require.Equal(t, peer.ID("p1"), opened.Peer)
		require.Equal(t, DirInbound, opened.Direction)
	default:
		t.Fatal("expected an EventSubstreamOpened on the registered sink")
	}
}

func TestProtocolSetReportSubstreamOpenWithoutHandler(t *testing.T) {
	s := NewProtocolSet(4)
	sub := substreamtest.NewDummySubstream()
	ok := s.ReportSubstreamOpen(context.Background(), peer.ID("p2"), "/unregistered/1", DirInbound, sub)
	require.False(t, ok)
}

func TestProtocolSetUnregister(t *testing.T) {
	s := NewProtocolSet(4)
	sink := make(chan InnerTransportEvent, 1)
	s.Register("/notif/1", sink)
	s.Unregister("/notif/1")

	sub := substreamtest.NewDummySubstream()
	ok := s.ReportSubstreamOpen(context.Background(), peer.ID("p3"), "/notif/1", DirInbound, sub)
	require.False(t, ok)
}

func TestProtocolSetNames(t *testing.T) {
	s := NewProtocolSet(4)
	s.Register("/notif/1", make(chan InnerTransportEvent, 1))
	s.Register("/notif/2", make(chan InnerTransportEvent, 1))

	names := s.Names()
	require.Len(t, names, 2)
	require.ElementsMatch(t, []ProtocolName{"/notif/1", "/notif/2"}, names)
}

func TestProtocolSetRequestOpenSubstreamAndCommands(t *testing.T) {
	s := NewProtocolSet(2)
	ev := EventOpenSubstream{Peer: peer.ID("p4"), Protocol: "/notif/1"}

	ok := s.RequestOpenSubstream(context.Background(), ev)
	require.True(t, ok)

	select {
	case cmd := <-s.Commands():
		open, ok := cmd.(EventOpenSubstream)
		require.True(t, ok)
		require.Equal(t, ev, open)
	default:
		t.Fatal("expected the command to be queryable from Commands()")
	}
}

func TestProtocolSetRequestOpenSubstreamRespectsContext(t *testing.T) {
	s := NewProtocolSet(0) // 0 selects the default queue len; fill it first
	for i := 0; i < defaultCommandQueueLen; i++ {
		require.True(t, s.RequestOpenSubstream(context.Background(), EventOpenSubstream{Peer: peer.ID("filler")}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ok := s.RequestOpenSubstream(ctx, EventOpenSubstream{Peer: peer.ID("overflow")})
	require.False(t, ok)
}
