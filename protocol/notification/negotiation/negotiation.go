// Package negotiation drives the handshake exchange that follows a
// notification substream opening: the initiator writes its handshake bytes
// and reads the remote's, the listener reads first and answers after
// validation. Each substream's negotiation runs as its own goroutine,
// reporting its outcome on a shared event channel so the owning
// NotificationProtocol can reconcile races from a single goroutine.
package negotiation

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/libp2p/go-notifengine/protocol"
	"github.com/libp2p/go-notifengine/substream"
)

// EventKind distinguishes the outcomes a negotiation can report.
type EventKind int

const (
	InboundNegotiated EventKind = iota
	OutboundNegotiated
	NegotiationError
)

// Event is what a negotiator goroutine reports back to the owning
// NotificationProtocol.
type Event struct {
	Kind      EventKind
	Peer      peer.ID
	Handshake []byte
	Substream substream.Substream
	// Direction identifies which half of the peer's Validating state this
	// event concerns, used by NegotiationError to know which side to reset.
	Direction protocol.Direction
	Err       error
}

// NegotiateInbound reads the remote's handshake bytes from sub — the first
// (and only, for this exchange) frame an inbound substream carries before
// validation — and reports InboundNegotiated or NegotiationError on events.
// A non-zero timeout bounds the whole exchange; zero waits indefinitely.
func NegotiateInbound(ctx context.Context, timeout time.Duration, peerID peer.ID, sub substream.Substream, events chan<- Event) {
	go func() {
		ctx, cancel := bound(ctx, timeout)
		defer cancel()
		handshake, err := sub.ReadFrame(ctx)
		if err != nil {
			events <- Event{Kind: NegotiationError, Peer: peerID, Direction: protocol.DirInbound, Err: err}
			return
		}
		events <- Event{Kind: InboundNegotiated, Peer: peerID, Handshake: handshake, Substream: sub}
	}()
}

// NegotiateOutbound writes localHandshake to sub (we are the substream's
// initiator, so we speak first), then reads the remote's returned handshake
// and reports OutboundNegotiated or NegotiationError on events.
func NegotiateOutbound(ctx context.Context, timeout time.Duration, peerID peer.ID, sub substream.Substream, localHandshake []byte, events chan<- Event) {
	go func() {
		ctx, cancel := bound(ctx, timeout)
		defer cancel()
		if err := sub.WriteFrame(ctx, localHandshake); err != nil {
			events <- Event{Kind: NegotiationError, Peer: peerID, Direction: protocol.DirOutbound, Err: err}
			return
		}
		handshake, err := sub.ReadFrame(ctx)
		if err != nil {
			events <- Event{Kind: NegotiationError, Peer: peerID, Direction: protocol.DirOutbound, Err: err}
			return
		}
		events <- Event{Kind: OutboundNegotiated, Peer: peerID, Handshake: handshake, Substream: sub}
	}()
}

func bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
