// Package notification implements a long-lived, full-duplex notification
// protocol over a pair of substreams per peer: per-peer tracking of the
// inbound and outbound halves, the application-facing validation step, and
// the race reconciliation needed when the two halves complete out of order.
package notification

import (
	"errors"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/libp2p/go-notifengine/protocol"
)

// NotificationErrorKind enumerates why a notification substream never
// opened.
type NotificationErrorKind int

const (
	ErrKindRejected NotificationErrorKind = iota
	ErrKindNoConnection
	ErrKindDialFailure
	ErrKindNegotiationFailed
)

func (k NotificationErrorKind) String() string {
	switch k {
	case ErrKindRejected:
		return "rejected"
	case ErrKindNoConnection:
		return "no connection"
	case ErrKindDialFailure:
		return "dial failure"
	case ErrKindNegotiationFailed:
		return "negotiation failed"
	default:
		return "unknown"
	}
}

// NotificationError reports why a notification session failed to open.
type NotificationError struct {
	Kind NotificationErrorKind
}

func (e *NotificationError) Error() string {
	return "notification substream failed to open: " + e.Kind.String()
}

var (
	ErrRejected          = &NotificationError{Kind: ErrKindRejected}
	ErrNoConnection      = &NotificationError{Kind: ErrKindNoConnection}
	ErrDialFailure       = &NotificationError{Kind: ErrKindDialFailure}
	ErrNegotiationFailed = &NotificationError{Kind: ErrKindNegotiationFailed}
)

// Local operational errors returned directly by NotificationProtocol methods,
// distinct from NotificationError which is delivered asynchronously as part
// of a NotificationEvent.
var (
	ErrPeerAlreadyExists    = errors.New("notification: peer already registered")
	ErrPeerDoesntExist      = errors.New("notification: peer not registered")
	ErrConnectionGone       = errors.New("notification: connection already torn down")
	ErrNotificationTooLarge = errors.New("notification: exceeds configured max notification size")
)

// ValidationResult is the application's verdict on an EventValidateSubstream.
type ValidationResult int

const (
	Reject ValidationResult = iota
	Accept
)

// NotificationEvent is the set of messages delivered to the application via
// Handle.Next.
type NotificationEvent interface{ isNotificationEvent() }

// EventValidateSubstream asks the application whether to accept an inbound
// notification substream, carrying the handshake bytes the remote sent.
type EventValidateSubstream struct {
	Peer      peer.ID
	Protocol  protocol.ProtocolName
	Handshake []byte
}

// EventNotificationStreamOpened fires once both the inbound and outbound
// substreams for peer have completed their handshake and the application
// accepted the session.
type EventNotificationStreamOpened struct {
	Peer      peer.ID
	Protocol  protocol.ProtocolName
	Direction protocol.Direction
	Handshake []byte
}

// EventNotificationStreamClosed reports that an open notification session
// ended, whether by the remote disconnecting or the connection closing.
type EventNotificationStreamClosed struct {
	Peer peer.ID
}

// EventNotificationStreamOpenFailure reports that a notification session
// never reached Open.
type EventNotificationStreamOpenFailure struct {
	Peer  peer.ID
	Error *NotificationError
}

func (EventValidateSubstream) isNotificationEvent()             {}
func (EventNotificationStreamOpened) isNotificationEvent()      {}
func (EventNotificationStreamClosed) isNotificationEvent()      {}
func (EventNotificationStreamOpenFailure) isNotificationEvent() {}
