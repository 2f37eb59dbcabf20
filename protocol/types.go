// Package protocol holds the message and command types exchanged between
// the transport, the protocol set, and individual protocols, plus the
// ProtocolSet registry that routes substream-open notifications and
// open-substream commands between them.
package protocol

import (
	"github.com/libp2p/go-libp2p/core/peer"
	coreprotocol "github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/libp2p/go-notifengine/substream"
	"github.com/libp2p/go-notifengine/types"
)

// ProtocolName is an interned protocol path, e.g. "/notif/1".
type ProtocolName = coreprotocol.ID

// Direction records which side initiated a substream or a notification
// exchange.
type Direction int

const (
	DirInbound Direction = iota
	DirOutbound
)

func (d Direction) String() string {
	if d == DirInbound {
		return "inbound"
	}
	return "outbound"
}

// ConnectionHandle is the per-connection command sink the notification
// protocol uses to ask the transport to open an outbound substream. It is a
// thin sender; the transport manager owns the receiving half.
type ConnectionHandle struct {
	commands chan<- OpenSubstreamCommand
}

// OpenSubstreamCommand asks the transport to dial a new outbound substream
// for protocol to peer, tagged with the SubstreamId the caller pre-allocated
// so the eventual SubstreamOpened/SubstreamOpenFailure event can be matched
// back to this request.
type OpenSubstreamCommand struct {
	Protocol ProtocolName
	Peer     peer.ID
	ID       types.SubstreamId
}

// NewConnectionHandle wraps the send half of a transport's command channel.
func NewConnectionHandle(commands chan<- OpenSubstreamCommand) ConnectionHandle {
	return ConnectionHandle{commands: commands}
}

// OpenSubstream attempts to enqueue an OpenSubstreamCommand. It reports
// whether the command was accepted; a false return means the transport's
// receiving half is gone or refusing input.
func (h ConnectionHandle) OpenSubstream(cmd OpenSubstreamCommand) (ok bool) {
	if h.commands == nil {
		return false
	}
	defer func() {
		// A send on a channel whose only reader disappeared concurrently
		// with a close() surfaces as a panic; translate that into the same
		// "receiver is gone" signal a closed channel or full buffer would.
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case h.commands <- cmd:
		return true
	default:
		return false
	}
}

// InnerTransportEvent is the set of messages the transport manager delivers
// to a protocol.
type InnerTransportEvent interface{ isInnerTransportEvent() }

type EventConnectionEstablished struct {
	Peer       peer.ID
	Connection types.ConnectionId
	Address    ma.Multiaddr
	Handle     ConnectionHandle
}

type EventConnectionClosed struct {
	Peer peer.ID
}

type EventSubstreamOpened struct {
	Peer      peer.ID
	Protocol  ProtocolName
	Fallback  *ProtocolName
	Direction Direction
	Substream substream.Substream
}

type EventSubstreamOpenFailure struct {
	Peer        peer.ID
	SubstreamID types.SubstreamId
	Error       error
}

func (EventConnectionEstablished) isInnerTransportEvent() {}
func (EventConnectionClosed) isInnerTransportEvent()      {}
func (EventSubstreamOpened) isInnerTransportEvent()       {}
func (EventSubstreamOpenFailure) isInnerTransportEvent()  {}

// ProtocolEvent is the set of commands a protocol handler issues to the
// connection/engine that owns its substreams.
type ProtocolEvent interface{ isProtocolEvent() }

type EventOpenSubstream struct {
	Peer     peer.ID
	Protocol ProtocolName
}

func (EventOpenSubstream) isProtocolEvent() {}
