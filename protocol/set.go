package protocol

import (
	"context"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/libp2p/go-notifengine/substream"
)

var log = logging.Logger("notifengine/protocol")

const defaultCommandQueueLen = 32

// ProtocolSet is the registry shared by transports and protocols. It routes
// substream-open notifications from a transport/engine to the registered
// protocol handler's event sink, and carries open-substream requests the
// other way.
type ProtocolSet struct {
	mu       sync.RWMutex
	handlers map[ProtocolName]chan<- InnerTransportEvent

	commands chan ProtocolEvent
}

// NewProtocolSet constructs an empty ProtocolSet. commandQueueLen bounds the
// shared outbound-command queue; <= 0 selects a sane default.
func NewProtocolSet(commandQueueLen int) *ProtocolSet {
	if commandQueueLen <= 0 {
		commandQueueLen = defaultCommandQueueLen
	}
	return &ProtocolSet{
		handlers: make(map[ProtocolName]chan<- InnerTransportEvent),
		commands: make(chan ProtocolEvent, commandQueueLen),
	}
}

// Register binds name to sink: from now on, substreams negotiated for name
// are reported on sink.
func (s *ProtocolSet) Register(name ProtocolName, sink chan<- InnerTransportEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = sink
}

// Unregister removes name from the registry.
func (s *ProtocolSet) Unregister(name ProtocolName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, name)
}

// Names lists every registered protocol, in the form the multistream-select
// listener side offers during negotiation.
func (s *ProtocolSet) Names() []ProtocolName {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]ProtocolName, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	return names
}

// ReportSubstreamOpen delivers a freshly negotiated substream to the handler
// registered for name. It reports whether a handler was found and the event
// was accepted; callers must close sub themselves when this returns false.
func (s *ProtocolSet) ReportSubstreamOpen(ctx context.Context, peerID peer.ID, name ProtocolName, direction Direction, sub substream.Substream) bool {
	s.mu.RLock()
	sink, ok := s.handlers[name]
	s.mu.RUnlock()
	if !ok {
		log.Warnf("no handler registered for protocol %s, dropping inbound substream from %s", name, peerID)
		return false
	}

	event := EventSubstreamOpened{
		Peer:      peerID,
		Protocol:  name,
		Direction: direction,
		Substream: sub,
	}
	select {
	case sink <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// Commands returns the channel of open-substream requests issued by
// registered protocol handlers, consumed by a connection engine.
func (s *ProtocolSet) Commands() <-chan ProtocolEvent {
	return s.commands
}

// RequestOpenSubstream enqueues an open-substream request on behalf of a
// protocol handler. It reports whether the request was accepted.
func (s *ProtocolSet) RequestOpenSubstream(ctx context.Context, ev EventOpenSubstream) bool {
	select {
	case s.commands <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
