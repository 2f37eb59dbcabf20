package notification

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/libp2p/go-notifengine/protocol"
	"github.com/libp2p/go-notifengine/protocol/notification/negotiation"
	"github.com/libp2p/go-notifengine/substream/substreamtest"
	"github.com/libp2p/go-notifengine/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testProtocol protocol.ProtocolName = "/notif/1"

func newTestProtocol(t *testing.T) (*NotificationProtocol, *Handle) {
	t.Helper()
	n, h := New(testProtocol, []byte{1, 3, 3, 7})
	t.Cleanup(n.Close)
	return n, h
}

func establish(t *testing.T, n *NotificationProtocol, p peer.ID, cmds chan protocol.OpenSubstreamCommand) {
	t.Helper()
	require.NoError(t, n.OnConnectionEstablished(p, protocol.NewConnectionHandle(cmds)))
}

// driveToOpen takes a freshly-registered peer all the way to StateOpen by
// driving the On* methods directly, without a running event loop. It returns
// the OpenSubstreamCommand id the transport was asked to dial, in case a
// test needs it.
func driveToOpen(t *testing.T, n *NotificationProtocol, h *Handle, p peer.ID) types.SubstreamId {
	t.Helper()
	ctx := context.Background()

	cmds := make(chan protocol.OpenSubstreamCommand, 4)
	establish(t, n, p, cmds)

	require.NoError(t, n.OnOpenSubstream(p))
	var cmd protocol.OpenSubstreamCommand
	select {
	case cmd = <-cmds:
	default:
		t.Fatal("expected an OpenSubstreamCommand to be queued")
	}

	outboundLocal, outboundRemote := substreamtest.NewPipe()
	require.NoError(t, n.OnOutboundSubstream(cmd.Protocol, nil, p, cmd.ID, outboundLocal))
	require.NoError(t, outboundRemote.WriteFrame(ctx, []byte{9, 9, 9, 9}))

	inboundLocal, inboundRemote := substreamtest.NewPipe()
	require.NoError(t, inboundRemote.WriteFrame(ctx, []byte{1, 3, 3, 7}))
	require.NoError(t, n.OnInboundSubstream(cmd.Protocol, nil, p, inboundLocal))

	// Both negotiators run concurrently; drain their two completion events in
	// whatever order they land.
	require.True(t, n.NextEvent(ctx))
	require.True(t, n.NextEvent(ctx))

	ev, ok := h.Next(ctx)
	require.True(t, ok)
	validate, ok := ev.(EventValidateSubstream)
	require.True(t, ok)
	require.Equal(t, []byte{1, 3, 3, 7}, validate.Handshake)
	require.Equal(t, testProtocol, validate.Protocol)

	require.NoError(t, n.OnValidationResult(p, Accept))
	require.True(t, n.NextEvent(ctx)) // handshake-sent completion -> checkTerminal

	ev2, ok := h.Next(ctx)
	require.True(t, ok)
	opened, ok := ev2.(EventNotificationStreamOpened)
	require.True(t, ok)
	require.Equal(t, protocol.DirOutbound, opened.Direction)
	require.Equal(t, []byte{9, 9, 9, 9}, opened.Handshake)
	require.Equal(t, testProtocol, opened.Protocol)

	pc := n.peers[p]
	require.Equal(t, StateOpen, pc.State.Kind)

	return cmd.ID
}

func TestOpenSubstreamDialsAndTracksOutboundInitiated(t *testing.T) {
	n, _ := newTestProtocol(t)
	p := peer.ID("peer-open")
	cmds := make(chan protocol.OpenSubstreamCommand, 4)
	establish(t, n, p, cmds)

	require.NoError(t, n.OnOpenSubstream(p))

	pc := n.peers[p]
	require.Equal(t, StateOutboundInitiated, pc.State.Kind)

	select {
	case cmd := <-cmds:
		require.Equal(t, pc.State.SubstreamID, cmd.ID)
		require.Equal(t, testProtocol, cmd.Protocol)
		require.Equal(t, p, cmd.Peer)
	default:
		t.Fatal("expected an OpenSubstreamCommand")
	}
}

func TestOpenSubstreamIdempotentWhileInFlight(t *testing.T) {
	n, _ := newTestProtocol(t)
	p := peer.ID("peer-open-idempotent")
	cmds := make(chan protocol.OpenSubstreamCommand, 4)
	establish(t, n, p, cmds)

	require.NoError(t, n.OnOpenSubstream(p))
	<-cmds
	firstID := n.peers[p].State.SubstreamID

	// A second request while one is already in flight must not dial again.
	require.NoError(t, n.OnOpenSubstream(p))
	select {
	case <-cmds:
		t.Fatal("did not expect a second dial while one is already in flight")
	default:
	}
	require.Equal(t, firstID, n.peers[p].State.SubstreamID)
}

func TestOpenSubstreamOnClosedConnection(t *testing.T) {
	n, h := newTestProtocol(t)
	p := peer.ID("peer-no-receiver")
	// An unbuffered channel with nobody reading models a transport whose
	// receiving half is gone.
	cmds := make(chan protocol.OpenSubstreamCommand)
	establish(t, n, p, cmds)

	require.NoError(t, n.OnOpenSubstream(p))

	pc := n.peers[p]
	require.Equal(t, StateClosed, pc.State.Kind)
	require.Nil(t, pc.State.PendingOpen)

	ev, ok := h.Next(context.Background())
	require.True(t, ok)
	fail, ok := ev.(EventNotificationStreamOpenFailure)
	require.True(t, ok)
	require.Equal(t, p, fail.Peer)
	require.Equal(t, ErrNoConnection, fail.Error)
}

func TestRemoteOpensMultipleInboundSubstreams(t *testing.T) {
	n, _ := newTestProtocol(t)
	p := peer.ID("peer-multi-inbound")
	cmds := make(chan protocol.OpenSubstreamCommand, 4)
	establish(t, n, p, cmds)

	first := substreamtest.NewDummySubstream()
	require.NoError(t, n.OnInboundSubstream(testProtocol, nil, p, first))
	require.Equal(t, StateValidating, n.peers[p].State.Kind)
	require.Equal(t, InboundReadingHandshake, n.peers[p].State.Inbound.Kind)

	// A second inbound substream while the first is still being validated is
	// rejected outright -- at most one inbound substream is tolerated.
	second := substreamtest.NewDummySubstream()
	require.NoError(t, n.OnInboundSubstream(testProtocol, nil, p, second))
	require.True(t, second.IsClosed())
	require.False(t, first.IsClosed())
	require.Equal(t, InboundReadingHandshake, n.peers[p].State.Inbound.Kind)
}

func TestPendingOutboundTrackedCorrectly(t *testing.T) {
	n, h := newTestProtocol(t)
	ctx := context.Background()
	p := peer.ID("peer-pending-outbound")
	cmds := make(chan protocol.OpenSubstreamCommand, 4)
	establish(t, n, p, cmds)

	require.NoError(t, n.OnOpenSubstream(p))
	pc := n.peers[p]
	require.Equal(t, StateOutboundInitiated, pc.State.Kind)
	outboundID := pc.State.SubstreamID
	<-cmds

	inboundSub, remoteSub := substreamtest.NewPipe()
	require.NoError(t, n.OnInboundSubstream(testProtocol, nil, p, inboundSub))
	require.Equal(t, StateValidating, pc.State.Kind)
	require.Equal(t, protocol.DirOutbound, pc.State.Direction)
	require.Equal(t, OutboundInitiated, pc.State.Outbound.Kind)
	require.Equal(t, outboundID, pc.State.Outbound.SubstreamID)

	require.NoError(t, remoteSub.WriteFrame(ctx, []byte{1, 3, 3, 7}))
	require.True(t, n.NextEvent(ctx)) // InboundNegotiated
	require.Equal(t, InboundValidating, pc.State.Inbound.Kind)

	ev, ok := h.Next(ctx)
	require.True(t, ok)
	_, ok = ev.(EventValidateSubstream)
	require.True(t, ok)

	// The remote rejects; the peer collapses to Closed but remembers the
	// outbound substream id it's still waiting to hear back about.
	require.NoError(t, n.OnValidationResult(p, Reject))
	require.Equal(t, StateClosed, pc.State.Kind)
	require.NotNil(t, pc.State.PendingOpen)
	require.Equal(t, outboundID, *pc.State.PendingOpen)

	ev2, ok := h.Next(ctx)
	require.True(t, ok)
	fail, ok := ev2.(EventNotificationStreamOpenFailure)
	require.True(t, ok)
	require.Equal(t, ErrRejected, fail.Error)

	// The outbound substream finally materializes after the reject; it must
	// be silently discarded rather than reopening anything.
	outboundSub := substreamtest.NewDummySubstream()
	require.NoError(t, n.OnOutboundSubstream(testProtocol, nil, p, outboundID, outboundSub))
	require.Equal(t, StateClosed, pc.State.Kind)
	require.Nil(t, pc.State.PendingOpen)
	require.True(t, outboundSub.IsClosed())
}

func TestValidationResultAfterConnectionGone(t *testing.T) {
	n, h := newTestProtocol(t)
	ctx := context.Background()
	p := peer.ID("peer-conn-gone")
	cmds := make(chan protocol.OpenSubstreamCommand, 4)
	establish(t, n, p, cmds)

	require.NoError(t, n.OnOpenSubstream(p))
	pc := n.peers[p]
	<-cmds

	inboundSub, remoteSub := substreamtest.NewPipe()
	require.NoError(t, n.OnInboundSubstream(testProtocol, nil, p, inboundSub))
	require.NoError(t, remoteSub.WriteFrame(ctx, []byte{1, 3, 3, 7}))
	require.True(t, n.NextEvent(ctx))
	_, ok := h.Next(ctx)
	require.True(t, ok)

	delete(n.connections, p) // the transport tore the connection down

	err := n.OnValidationResult(p, Accept)
	require.ErrorIs(t, err, ErrConnectionGone)
	require.Equal(t, StateClosed, pc.State.Kind)
	require.Nil(t, pc.State.PendingOpen)

	waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, ok = h.Next(waitCtx)
	require.False(t, ok)
}

func TestInboundAcceptedOutboundFailsToOpen(t *testing.T) {
	n, h := newTestProtocol(t)
	ctx := context.Background()
	p := peer.ID("peer-outbound-dial-failure")
	cmds := make(chan protocol.OpenSubstreamCommand, 4)
	establish(t, n, p, cmds)

	require.NoError(t, n.OnOpenSubstream(p))
	pc := n.peers[p]
	outboundID := pc.State.SubstreamID
	<-cmds

	inboundSub, remoteSub := substreamtest.NewPipe()
	require.NoError(t, n.OnInboundSubstream(testProtocol, nil, p, inboundSub))
	require.NoError(t, remoteSub.WriteFrame(ctx, []byte{1, 3, 3, 7}))
	require.True(t, n.NextEvent(ctx)) // InboundNegotiated

	ev, ok := h.Next(ctx)
	require.True(t, ok)
	_, ok = ev.(EventValidateSubstream)
	require.True(t, ok)

	require.NoError(t, n.OnValidationResult(p, Accept))
	require.True(t, n.NextEvent(ctx)) // handshake-sent: inbound reaches Open
	require.Equal(t, InboundOpen, pc.State.Inbound.Kind)
	require.Equal(t, StateValidating, pc.State.Kind) // outbound never arrived

	// The outbound dial now fails permanently; Open can never be reached, so
	// the whole session tears down even though inbound had already been
	// accepted.
	require.NoError(t, n.OnOutboundSubstream(testProtocol, nil, p, outboundID, nil))
	require.Equal(t, StateClosed, pc.State.Kind)

	ev2, ok := h.Next(ctx)
	require.True(t, ok)
	fail, ok := ev2.(EventNotificationStreamOpenFailure)
	require.True(t, ok)
	require.Equal(t, ErrDialFailure, fail.Error)
}

func TestCloseSubstreamStaleAfterInternalShutdown(t *testing.T) {
	n, h := newTestProtocol(t)
	p := peer.ID("peer-stale-close")
	driveToOpen(t, n, h, p)

	pc := n.peers[p]
	close(pc.State.Shutdown) // something else already tore the session down

	h.CloseSubstream(p) // stale request arriving after the fact

	// The stale app command and the shutdown-watch completion, in whatever
	// order they land.
	require.True(t, n.NextEvent(context.Background()))
	require.True(t, n.NextEvent(context.Background()))

	require.Equal(t, StateClosed, pc.State.Kind)
	require.Nil(t, pc.State.PendingOpen)

	waitCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, ok := h.Next(waitCtx)
	require.False(t, ok)
}

func TestCloseAlreadyClosedConnection(t *testing.T) {
	n, _ := newTestProtocol(t)
	p := peer.ID("peer-close-noop")
	cmds := make(chan protocol.OpenSubstreamCommand, 4)
	establish(t, n, p, cmds)

	// CloseSubstream on a peer that never reached Open is simply a no-op.
	require.NotPanics(t, func() { n.CloseSubstream(p) })
	require.Equal(t, StateClosed, n.peers[p].State.Kind)
}

func TestConnectionClosedWhileOpen(t *testing.T) {
	n, h := newTestProtocol(t)
	p := peer.ID("peer-closed-while-open")
	driveToOpen(t, n, h, p)

	n.OnConnectionClosed(p)

	ev, ok := h.Next(context.Background())
	require.True(t, ok)
	closedEv, ok := ev.(EventNotificationStreamClosed)
	require.True(t, ok)
	require.Equal(t, p, closedEv.Peer)

	_, exists := n.peers[p]
	require.False(t, exists)
}

func TestConnectionClosedForOutboundInitiated(t *testing.T) {
	n, h := newTestProtocol(t)
	p := peer.ID("peer-closed-outbound-initiated")
	cmds := make(chan protocol.OpenSubstreamCommand, 4)
	establish(t, n, p, cmds)

	require.NoError(t, n.OnOpenSubstream(p))
	require.Equal(t, StateOutboundInitiated, n.peers[p].State.Kind)

	n.OnConnectionClosed(p)

	ev, ok := h.Next(context.Background())
	require.True(t, ok)
	fail, ok := ev.(EventNotificationStreamOpenFailure)
	require.True(t, ok)
	require.Equal(t, p, fail.Peer)
	require.Equal(t, ErrRejected, fail.Error)

	_, exists := n.peers[p]
	require.False(t, exists)
}

func TestConnectionClosedForValidating(t *testing.T) {
	n, h := newTestProtocol(t)
	p := peer.ID("peer-closed-validating")
	cmds := make(chan protocol.OpenSubstreamCommand, 4)
	establish(t, n, p, cmds)

	sub := substreamtest.NewDummySubstream()
	require.NoError(t, n.OnInboundSubstream(testProtocol, nil, p, sub))
	require.Equal(t, StateValidating, n.peers[p].State.Kind)

	n.OnConnectionClosed(p)

	ev, ok := h.Next(context.Background())
	require.True(t, ok)
	fail, ok := ev.(EventNotificationStreamOpenFailure)
	require.True(t, ok)
	require.Equal(t, ErrRejected, fail.Error)
}

func TestConnectionClosedForClosedIsSilent(t *testing.T) {
	n, h := newTestProtocol(t)
	p := peer.ID("peer-closed-closed")
	cmds := make(chan protocol.OpenSubstreamCommand, 4)
	establish(t, n, p, cmds)

	n.OnConnectionClosed(p)

	waitCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, ok := h.Next(waitCtx)
	require.False(t, ok)

	_, exists := n.peers[p]
	require.False(t, exists)
}

func TestHandshakeErrorCollapsesToRejected(t *testing.T) {
	n, h := newTestProtocol(t)
	ctx := context.Background()
	p := peer.ID("peer-handshake-error")
	cmds := make(chan protocol.OpenSubstreamCommand, 4)
	establish(t, n, p, cmds)

	// The inbound substream dies before the remote's handshake arrives.
	sub := substreamtest.NewDummySubstream()
	sub.Close()
	require.NoError(t, n.OnInboundSubstream(testProtocol, nil, p, sub))

	require.True(t, n.NextEvent(ctx)) // NegotiationError
	require.Equal(t, StateClosed, n.peers[p].State.Kind)

	ev, ok := h.Next(ctx)
	require.True(t, ok)
	fail, ok := ev.(EventNotificationStreamOpenFailure)
	require.True(t, ok)
	require.Equal(t, ErrRejected, fail.Error)
}

func TestReconnectYieldsFreshPeerContext(t *testing.T) {
	n, h := newTestProtocol(t)
	p := peer.ID("peer-reconnect")
	driveToOpen(t, n, h, p)

	n.OnConnectionClosed(p)
	ev, ok := h.Next(context.Background())
	require.True(t, ok)
	_, ok = ev.(EventNotificationStreamClosed)
	require.True(t, ok)

	cmds := make(chan protocol.OpenSubstreamCommand, 4)
	establish(t, n, p, cmds)
	pc := n.peers[p]
	require.Equal(t, StateClosed, pc.State.Kind)
	require.Nil(t, pc.State.PendingOpen)

	// No stale events linger from the previous session.
	waitCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, ok = h.Next(waitCtx)
	require.False(t, ok)
}

func TestOnConnectionEstablishedRejectsDuplicate(t *testing.T) {
	n, _ := newTestProtocol(t)
	p := peer.ID("peer-dup")
	cmds := make(chan protocol.OpenSubstreamCommand, 4)
	establish(t, n, p, cmds)

	err := n.OnConnectionEstablished(p, protocol.NewConnectionHandle(cmds))
	require.ErrorIs(t, err, ErrPeerAlreadyExists)
}

func TestHandshakeEventForUnknownPeerClosesSubstream(t *testing.T) {
	n, _ := newTestProtocol(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// A negotiator may report back after its peer was already removed; the
	// orphaned substream must be closed rather than leaked.
	sub := substreamtest.NewMockSubstream(ctrl)
	sub.EXPECT().Close().Return(nil)

	n.OnHandshakeEvent(negotiation.Event{
		Kind:      negotiation.InboundNegotiated,
		Peer:      peer.ID("peer-ghost"),
		Handshake: []byte{1},
		Substream: sub,
	})
}

func TestMetricsCountOpenedStreams(t *testing.T) {
	reg := prometheus.NewRegistry()
	n, h := New(testProtocol, []byte{1, 3, 3, 7}, WithMetrics(reg))
	t.Cleanup(n.Close)

	driveToOpen(t, n, h, peer.ID("peer-metrics"))

	require.Equal(t, float64(1), testutil.ToFloat64(n.metrics.opened))
	require.Equal(t, float64(0), testutil.ToFloat64(n.metrics.closed))

	n.OnConnectionClosed(peer.ID("peer-metrics"))
	require.Equal(t, float64(1), testutil.ToFloat64(n.metrics.closed))
}

func TestSendNotificationRejectsOversize(t *testing.T) {
	n, h := newTestProtocol(t)
	p := peer.ID("peer-oversize")
	driveToOpen(t, n, h, p)

	big := make([]byte, n.cfg.MaxNotificationSize+1)
	err := n.sendNotification(p, big)
	require.ErrorIs(t, err, ErrNotificationTooLarge)
}
