package notification

import (
	"github.com/libp2p/go-notifengine/protocol"
	"github.com/libp2p/go-notifengine/substream"
	"github.com/libp2p/go-notifengine/types"
)

// InboundStateKind is the inbound substream sub-lattice of a peer's state.
type InboundStateKind int

const (
	InboundClosed InboundStateKind = iota
	InboundReadingHandshake
	InboundValidating
	InboundSendingHandshake
	InboundOpen
)

// InboundState carries the substream reference only in the sub-states that
// actually hold one; ReadingHandshake and SendingHandshake hand the
// substream to a goroutine instead (the negotiation package's inbound reader
// for ReadingHandshake, NotificationProtocol.sendHandshake for
// SendingHandshake).
type InboundState struct {
	Kind    InboundStateKind
	Inbound substream.Substream
}

func InboundClosedState() InboundState          { return InboundState{Kind: InboundClosed} }
func InboundReadingHandshakeState() InboundState { return InboundState{Kind: InboundReadingHandshake} }
func InboundValidatingState(sub substream.Substream) InboundState {
	return InboundState{Kind: InboundValidating, Inbound: sub}
}
func InboundSendingHandshakeState() InboundState { return InboundState{Kind: InboundSendingHandshake} }
func InboundOpenState(sub substream.Substream) InboundState {
	return InboundState{Kind: InboundOpen, Inbound: sub}
}

// OutboundStateKind is the outbound substream sub-lattice of a peer's state.
type OutboundStateKind int

const (
	OutboundClosed OutboundStateKind = iota
	OutboundInitiated
	OutboundNegotiating
	OutboundOpen
)

// OutboundState mirrors InboundState: Negotiating carries no substream
// reference (the negotiator goroutine owns it until it reports back).
type OutboundState struct {
	Kind        OutboundStateKind
	SubstreamID types.SubstreamId
	Handshake   []byte
	Outbound    substream.Substream
}

func OutboundClosedState() OutboundState { return OutboundState{Kind: OutboundClosed} }
func OutboundInitiatedState(id types.SubstreamId) OutboundState {
	return OutboundState{Kind: OutboundInitiated, SubstreamID: id}
}
func OutboundNegotiatingState() OutboundState { return OutboundState{Kind: OutboundNegotiating} }
func OutboundOpenState(handshake []byte, sub substream.Substream) OutboundState {
	return OutboundState{Kind: OutboundOpen, Handshake: handshake, Outbound: sub}
}

// PeerStateKind is the top-level state of a peer's notification session.
type PeerStateKind int

const (
	StateClosed PeerStateKind = iota
	StateOutboundInitiated
	StateValidating
	StateOpen
)

// PeerState is a hand-rolled tagged union: only the fields relevant to Kind
// are meaningful. The constructor functions below are the only supported way
// to build one; never assemble a PeerState literal directly.
type PeerState struct {
	Kind PeerStateKind

	// StateClosed
	PendingOpen *types.SubstreamId

	// StateOutboundInitiated
	SubstreamID types.SubstreamId

	// StateValidating
	Direction protocol.Direction
	Protocol  protocol.ProtocolName
	Fallback  *protocol.ProtocolName
	Outbound  OutboundState
	Inbound   InboundState

	// StateOpen
	Shutdown chan struct{}
}

func ClosedState(pendingOpen *types.SubstreamId) PeerState {
	return PeerState{Kind: StateClosed, PendingOpen: pendingOpen}
}

func OutboundInitiatedPeerState(id types.SubstreamId) PeerState {
	return PeerState{Kind: StateOutboundInitiated, SubstreamID: id}
}

func ValidatingState(direction protocol.Direction, name protocol.ProtocolName, fallback *protocol.ProtocolName, outbound OutboundState, inbound InboundState) PeerState {
	return PeerState{
		Kind:      StateValidating,
		Direction: direction,
		Protocol:  name,
		Fallback:  fallback,
		Outbound:  outbound,
		Inbound:   inbound,
	}
}

func OpenPeerState(shutdown chan struct{}) PeerState {
	return PeerState{Kind: StateOpen, Shutdown: shutdown}
}

// PeerContext is the single per-peer record the protocol tracks. Everything
// else a peer needs (its ConnectionHandle, its Open-state substream for
// SendNotification) lives in sibling maps on NotificationProtocol, not here.
type PeerContext struct {
	State PeerState
}
