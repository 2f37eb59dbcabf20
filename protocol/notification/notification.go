package notification

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/libp2p/go-notifengine/protocol"
	"github.com/libp2p/go-notifengine/protocol/notification/negotiation"
	"github.com/libp2p/go-notifengine/substream"
	"github.com/libp2p/go-notifengine/types"
)

var log = logging.Logger("notifengine/notification")

// Config holds the construction-time parameters of a NotificationProtocol.
type Config struct {
	ProtocolName        protocol.ProtocolName
	FallbackNames       []protocol.ProtocolName
	HandshakeBytes      []byte
	MaxNotificationSize int
	EventQueueLen       int
	CommandQueueLen     int
	TransportQueueLen   int
	NegotiationTimeout  time.Duration
	MetricsRegisterer   prometheus.Registerer
}

const (
	defaultMaxNotificationSize = 1 << 20
	defaultEventQueueLen       = 64
	defaultCommandQueueLen     = 64
	defaultTransportQueueLen   = 64
)

// Option configures a NotificationProtocol at construction time.
type Option func(*Config)

func WithFallbackNames(names ...protocol.ProtocolName) Option {
	return func(c *Config) { c.FallbackNames = names }
}

func WithMaxNotificationSize(n int) Option {
	return func(c *Config) { c.MaxNotificationSize = n }
}

// WithNegotiationTimeout bounds how long a handshake exchange may take
// before it is treated as a NegotiationError. Zero (the default) never
// times out; callers who want a bound opt in here.
func WithNegotiationTimeout(d time.Duration) Option {
	return func(c *Config) { c.NegotiationTimeout = d }
}

func WithEventQueueLen(n int) Option {
	return func(c *Config) { c.EventQueueLen = n }
}

func WithCommandQueueLen(n int) Option {
	return func(c *Config) { c.CommandQueueLen = n }
}

// WithMetrics registers this protocol's counters with reg. Without this
// option no metrics are collected.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Config) { c.MetricsRegisterer = reg }
}

func defaultConfig(name protocol.ProtocolName, handshake []byte) Config {
	return Config{
		ProtocolName:        name,
		HandshakeBytes:      handshake,
		MaxNotificationSize: defaultMaxNotificationSize,
		EventQueueLen:       defaultEventQueueLen,
		CommandQueueLen:     defaultCommandQueueLen,
		TransportQueueLen:   defaultTransportQueueLen,
	}
}

type appCommandKind int

const (
	cmdOpenSubstream appCommandKind = iota
	cmdCloseSubstream
	cmdValidationResult
	cmdSendNotification
)

type appCommand struct {
	kind   appCommandKind
	peer   peer.ID
	result ValidationResult
	data   []byte
}

type handshakeSentMsg struct {
	peer peer.ID
	sub  substream.Substream
}

// NotificationProtocol is a per-peer state machine coordinating bidirectional
// notification substream establishment: handshake exchange, application
// validation, the open/close lifecycle, and reconciliation of races between
// inbound and outbound openings. All mutation of peers/connections/
// openSubstreams happens on whichever goroutine calls NextEvent/Run, or
// directly via the On* methods — callers must not invoke those concurrently.
// Tests drive the On* methods directly without a running loop.
type NotificationProtocol struct {
	cfg Config

	peers       map[peer.ID]*PeerContext
	connections map[peer.ID]protocol.ConnectionHandle
	// openSubstreams holds the negotiated outbound substream for a peer once
	// Open, so SendNotification has somewhere to write. PeerState.Open itself
	// carries only the shutdown channel.
	openSubstreams map[peer.ID]substream.Substream

	substreamIDs *types.SubstreamIDAllocator

	transportEvents chan protocol.InnerTransportEvent
	handshakeEvents chan negotiation.Event
	handshakeSent   chan handshakeSentMsg
	shutdownTx      chan peer.ID
	appCommands     chan appCommand
	events          chan NotificationEvent

	metrics *protocolMetrics

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a NotificationProtocol for protocolName, along with the
// Handle the application uses to drive it.
func New(protocolName protocol.ProtocolName, handshake []byte, opts ...Option) (*NotificationProtocol, *Handle) {
	cfg := defaultConfig(protocolName, handshake)
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &NotificationProtocol{
		cfg:             cfg,
		peers:           make(map[peer.ID]*PeerContext),
		connections:     make(map[peer.ID]protocol.ConnectionHandle),
		openSubstreams:  make(map[peer.ID]substream.Substream),
		substreamIDs:    types.NewSubstreamIDAllocator(),
		transportEvents: make(chan protocol.InnerTransportEvent, cfg.TransportQueueLen),
		handshakeEvents: make(chan negotiation.Event, cfg.TransportQueueLen),
		handshakeSent:   make(chan handshakeSentMsg, cfg.TransportQueueLen),
		shutdownTx:      make(chan peer.ID, cfg.TransportQueueLen),
		appCommands:     make(chan appCommand, cfg.CommandQueueLen),
		events:          make(chan NotificationEvent, cfg.EventQueueLen),
		ctx:             ctx,
		cancel:          cancel,
	}
	if cfg.MetricsRegisterer != nil {
		n.metrics = newProtocolMetrics(cfg.MetricsRegisterer)
	}
	handle := &Handle{events: n.events, commands: n.appCommands}
	return n, handle
}

// TransportEvents returns the channel a transport/ProtocolSet should send
// InnerTransportEvent values on.
func (n *NotificationProtocol) TransportEvents() chan<- protocol.InnerTransportEvent {
	return n.transportEvents
}

// Close stops any negotiations this protocol's goroutines are still running.
func (n *NotificationProtocol) Close() {
	n.cancel()
}

func (n *NotificationProtocol) emit(ev NotificationEvent) {
	n.metrics.observeEvent(ev)
	select {
	case n.events <- ev:
	case <-n.ctx.Done():
	}
}

// Run drives the protocol until ctx is done, dispatching every event it
// selects to the matching On* method.
func (n *NotificationProtocol) Run(ctx context.Context) {
	for n.NextEvent(ctx) {
	}
}

// NextEvent processes exactly one pending event — a transport event, a
// handshake negotiation result, a handshake-sent completion, a shutdown
// completion, or an application command — and reports whether it processed
// one before ctx (or the protocol's own lifetime) ended.
func (n *NotificationProtocol) NextEvent(ctx context.Context) bool {
	select {
	case ev := <-n.transportEvents:
		n.dispatchTransportEvent(ev)
		return true
	case ev := <-n.handshakeEvents:
		n.OnHandshakeEvent(ev)
		return true
	case msg := <-n.handshakeSent:
		n.onInboundHandshakeSent(msg.peer, msg.sub)
		return true
	case p := <-n.shutdownTx:
		n.onShutdownComplete(p)
		return true
	case cmd := <-n.appCommands:
		n.dispatchAppCommand(cmd)
		return true
	case <-ctx.Done():
		return false
	case <-n.ctx.Done():
		return false
	}
}

func (n *NotificationProtocol) dispatchTransportEvent(ev protocol.InnerTransportEvent) {
	switch e := ev.(type) {
	case protocol.EventConnectionEstablished:
		if err := n.OnConnectionEstablished(e.Peer, e.Handle); err != nil {
			log.Debugf("connection established for already-known peer %s: %s", e.Peer, err)
		}
	case protocol.EventConnectionClosed:
		n.OnConnectionClosed(e.Peer)
	case protocol.EventSubstreamOpened:
		switch e.Direction {
		case protocol.DirInbound:
			if err := n.OnInboundSubstream(e.Protocol, e.Fallback, e.Peer, e.Substream); err != nil {
				log.Debugf("inbound substream from unknown peer %s: %s", e.Peer, err)
			}
		case protocol.DirOutbound:
			// Outbound substreams are reported by the owning transport/engine
			// through OnOutboundSubstream directly, so the pre-allocated
			// substream id can be carried along; this arm is unreachable for
			// transports following that contract.
		}
	case protocol.EventSubstreamOpenFailure:
		if err := n.OnOutboundSubstream(n.cfg.ProtocolName, nil, e.Peer, e.SubstreamID, nil); err != nil {
			log.Debugf("outbound substream failure for unknown peer %s: %s", e.Peer, err)
		}
	}
}

func (n *NotificationProtocol) dispatchAppCommand(cmd appCommand) {
	switch cmd.kind {
	case cmdOpenSubstream:
		if err := n.OnOpenSubstream(cmd.peer); err != nil {
			log.Debugf("open substream requested for unknown peer %s: %s", cmd.peer, err)
		}
	case cmdCloseSubstream:
		n.CloseSubstream(cmd.peer)
	case cmdValidationResult:
		if err := n.OnValidationResult(cmd.peer, cmd.result); err != nil {
			log.Debugf("validation result for peer %s: %s", cmd.peer, err)
		}
	case cmdSendNotification:
		if err := n.sendNotification(cmd.peer, cmd.data); err != nil {
			log.Debugf("send notification to peer %s: %s", cmd.peer, err)
		}
	}
}

// OnConnectionEstablished registers a newly connected peer. A peer may have
// at most one live connection entry; a duplicate is an error.
func (n *NotificationProtocol) OnConnectionEstablished(p peer.ID, handle protocol.ConnectionHandle) error {
	if _, exists := n.peers[p]; exists {
		return ErrPeerAlreadyExists
	}
	n.peers[p] = &PeerContext{State: ClosedState(nil)}
	n.connections[p] = handle
	return nil
}

// OnConnectionClosed tears down whatever state p had: an open session emits
// NotificationStreamClosed, a session still being established emits an open
// failure, and an idle peer is removed silently. Any owned substreams are
// closed.
func (n *NotificationProtocol) OnConnectionClosed(p peer.ID) {
	ctx, ok := n.peers[p]
	if !ok {
		return
	}

	switch ctx.State.Kind {
	case StateOutboundInitiated:
		n.emit(EventNotificationStreamOpenFailure{Peer: p, Error: ErrRejected})
	case StateValidating:
		closeValidatingSubstreams(ctx.State)
		n.emit(EventNotificationStreamOpenFailure{Peer: p, Error: ErrRejected})
	case StateOpen:
		// Wake the shutdown watcher so its goroutine exits with the peer,
		// and release the substream the session still owns.
		select {
		case <-ctx.State.Shutdown:
		default:
			close(ctx.State.Shutdown)
		}
		if sub, ok := n.openSubstreams[p]; ok {
			closeSubstream(sub)
		}
		n.emit(EventNotificationStreamClosed{Peer: p})
	}

	delete(n.peers, p)
	delete(n.connections, p)
	delete(n.openSubstreams, p)
}

// OnOpenSubstream requests that an outbound notification substream be opened
// to p. The request is suppressed if a session is already open or in flight.
func (n *NotificationProtocol) OnOpenSubstream(p peer.ID) error {
	ctx, ok := n.peers[p]
	if !ok {
		return ErrPeerDoesntExist
	}

	if ctx.State.Kind != StateClosed || ctx.State.PendingOpen != nil {
		// Already in flight, already open, or a stale open already pending.
		return nil
	}

	handle, ok := n.connections[p]
	id := n.substreamIDs.Next()
	if !ok || !handle.OpenSubstream(protocol.OpenSubstreamCommand{Protocol: n.cfg.ProtocolName, Peer: p, ID: id}) {
		n.emit(EventNotificationStreamOpenFailure{Peer: p, Error: ErrNoConnection})
		return nil
	}

	ctx.State = OutboundInitiatedPeerState(id)
	return nil
}

// OnInboundSubstream reports that the remote opened an inbound substream.
// At most one inbound substream per peer is tolerated; extras are closed.
func (n *NotificationProtocol) OnInboundSubstream(protocolName protocol.ProtocolName, fallback *protocol.ProtocolName, p peer.ID, sub substream.Substream) error {
	ctx, ok := n.peers[p]
	if !ok {
		closeSubstream(sub)
		return ErrPeerDoesntExist
	}

	switch {
	case ctx.State.Kind == StateClosed:
		ctx.State = ValidatingState(protocol.DirInbound, protocolName, fallback, OutboundClosedState(), InboundReadingHandshakeState())
	case ctx.State.Kind == StateOutboundInitiated:
		ctx.State = ValidatingState(protocol.DirOutbound, protocolName, fallback, OutboundInitiatedState(ctx.State.SubstreamID), InboundReadingHandshakeState())
	case ctx.State.Kind == StateValidating && ctx.State.Inbound.Kind == InboundClosed:
		// The outbound half is already independently negotiating (or open);
		// this is the first inbound substream for the session.
		ctx.State.Inbound = InboundReadingHandshakeState()
	default:
		// Validating with an inbound substream already present, or Open.
		closeSubstream(sub)
		return nil
	}

	negotiation.NegotiateInbound(n.ctx, n.cfg.NegotiationTimeout, p, sub, n.handshakeEvents)
	return nil
}

// OnOutboundSubstream reports that the outbound substream identified by id
// has materialized (sub != nil) or failed to open (sub == nil, in which case
// this reconciles local state and reports the failure to the application).
func (n *NotificationProtocol) OnOutboundSubstream(protocolName protocol.ProtocolName, fallback *protocol.ProtocolName, p peer.ID, id types.SubstreamId, sub substream.Substream) error {
	ctx, ok := n.peers[p]
	if !ok {
		closeSubstream(sub)
		return ErrPeerDoesntExist
	}

	switch ctx.State.Kind {
	case StateOutboundInitiated:
		if ctx.State.SubstreamID != id {
			closeSubstream(sub)
			return nil
		}
		if sub == nil {
			ctx.State = ClosedState(nil)
			n.emit(EventNotificationStreamOpenFailure{Peer: p, Error: ErrDialFailure})
			return nil
		}
		ctx.State = ValidatingState(protocol.DirOutbound, protocolName, fallback, OutboundNegotiatingState(), InboundClosedState())
		negotiation.NegotiateOutbound(n.ctx, n.cfg.NegotiationTimeout, p, sub, n.cfg.HandshakeBytes, n.handshakeEvents)

	case StateValidating:
		if ctx.State.Outbound.Kind != OutboundInitiated || ctx.State.Outbound.SubstreamID != id {
			closeSubstream(sub)
			return nil
		}
		if sub == nil {
			// Open can never be reached without an outbound half, regardless of
			// how far the inbound half has progressed; tear the whole session
			// down rather than leaving it stuck in Validating forever.
			if ctx.State.Inbound.Kind == InboundValidating || ctx.State.Inbound.Kind == InboundOpen {
				closeSubstream(ctx.State.Inbound.Inbound)
			}
			ctx.State = ClosedState(nil)
			n.emit(EventNotificationStreamOpenFailure{Peer: p, Error: ErrDialFailure})
			return nil
		}
		ctx.State.Outbound = OutboundNegotiatingState()
		negotiation.NegotiateOutbound(n.ctx, n.cfg.NegotiationTimeout, p, sub, n.cfg.HandshakeBytes, n.handshakeEvents)

	case StateClosed:
		// A substream whose session was torn down before the dial completed:
		// discard it quietly and clear the pending-open marker.
		if ctx.State.PendingOpen != nil && *ctx.State.PendingOpen == id {
			ctx.State = ClosedState(nil)
		}
		closeSubstream(sub)

	default:
		closeSubstream(sub)
	}
	return nil
}

// OnHandshakeEvent reconciles the result of one negotiator goroutine with
// the peer's current state, advancing toward Open or collapsing to Closed.
func (n *NotificationProtocol) OnHandshakeEvent(event negotiation.Event) {
	ctx, ok := n.peers[event.Peer]
	if !ok {
		closeSubstream(event.Substream)
		return
	}

	switch event.Kind {
	case negotiation.InboundNegotiated:
		if ctx.State.Kind == StateValidating && ctx.State.Inbound.Kind == InboundReadingHandshake {
			ctx.State.Inbound = InboundValidatingState(event.Substream)
			n.emit(EventValidateSubstream{Peer: event.Peer, Protocol: ctx.State.Protocol, Handshake: event.Handshake})
		} else {
			closeSubstream(event.Substream)
		}

	case negotiation.OutboundNegotiated:
		if ctx.State.Kind == StateValidating && ctx.State.Outbound.Kind == OutboundNegotiating {
			ctx.State.Outbound = OutboundOpenState(event.Handshake, event.Substream)
			n.checkTerminal(event.Peer, ctx)
		} else {
			closeSubstream(event.Substream)
		}

	case negotiation.NegotiationError:
		if ctx.State.Kind != StateValidating {
			return
		}
		switch event.Direction {
		case protocol.DirInbound:
			if ctx.State.Inbound.Kind != InboundClosed && ctx.State.Inbound.Kind != InboundOpen {
				ctx.State.Inbound = InboundClosedState()
			}
		case protocol.DirOutbound:
			if ctx.State.Outbound.Kind == OutboundNegotiating {
				ctx.State.Outbound = OutboundClosedState()
			}
		}
		if ctx.State.Inbound.Kind == InboundClosed && ctx.State.Outbound.Kind == OutboundClosed {
			ctx.State = ClosedState(nil)
			n.emit(EventNotificationStreamOpenFailure{Peer: event.Peer, Error: ErrRejected})
		}
	}
}

func (n *NotificationProtocol) onInboundHandshakeSent(p peer.ID, sub substream.Substream) {
	ctx, ok := n.peers[p]
	if !ok || ctx.State.Kind != StateValidating || ctx.State.Inbound.Kind != InboundSendingHandshake {
		closeSubstream(sub)
		return
	}
	ctx.State.Inbound = InboundOpenState(sub)
	n.checkTerminal(p, ctx)
}

// checkTerminal transitions ctx into StateOpen once both halves have
// completed, handing the session to the application.
func (n *NotificationProtocol) checkTerminal(p peer.ID, ctx *PeerContext) {
	if ctx.State.Kind != StateValidating {
		return
	}
	if ctx.State.Inbound.Kind != InboundOpen || ctx.State.Outbound.Kind != OutboundOpen {
		return
	}

	direction := ctx.State.Direction
	protocolName := ctx.State.Protocol
	handshake := ctx.State.Outbound.Handshake
	outbound := ctx.State.Outbound.Outbound

	shutdown := make(chan struct{})
	ctx.State = OpenPeerState(shutdown)
	n.openSubstreams[p] = outbound
	go n.watchShutdown(p, shutdown)

	n.emit(EventNotificationStreamOpened{Peer: p, Protocol: protocolName, Direction: direction, Handshake: handshake})
}

// watchShutdown waits for CloseSubstream (or a remote-driven teardown) to
// close shutdown, then reports completion back to the owning loop via
// shutdownTx so the teardown itself runs on the loop's goroutine.
func (n *NotificationProtocol) watchShutdown(p peer.ID, shutdown chan struct{}) {
	select {
	case <-shutdown:
	case <-n.ctx.Done():
		return
	}
	select {
	case n.shutdownTx <- p:
	case <-n.ctx.Done():
	}
}

func (n *NotificationProtocol) onShutdownComplete(p peer.ID) {
	ctx, ok := n.peers[p]
	if !ok || ctx.State.Kind != StateOpen {
		return
	}
	if sub, ok := n.openSubstreams[p]; ok {
		closeSubstream(sub)
		delete(n.openSubstreams, p)
	}
	ctx.State = ClosedState(nil)
}

// OnValidationResult applies the application's verdict on a pending
// ValidateSubstream. Accept sends the local handshake over the inbound
// substream; Reject tears the session down, remembering any still-in-flight
// outbound dial so its eventual completion can be discarded.
func (n *NotificationProtocol) OnValidationResult(p peer.ID, result ValidationResult) error {
	ctx, ok := n.peers[p]
	if !ok {
		return ErrPeerDoesntExist
	}
	if ctx.State.Kind != StateValidating || ctx.State.Inbound.Kind != InboundValidating {
		return nil
	}
	n.metrics.observeValidation(result)

	_, connAlive := n.connections[p]
	if !connAlive {
		closeValidatingSubstreams(ctx.State)
		ctx.State = ClosedState(nil)
		return ErrConnectionGone
	}

	switch result {
	case Reject:
		var pending *types.SubstreamId
		if ctx.State.Outbound.Kind == OutboundInitiated {
			id := ctx.State.Outbound.SubstreamID
			pending = &id
		}
		closeValidatingSubstreams(ctx.State)
		ctx.State = ClosedState(pending)
		n.emit(EventNotificationStreamOpenFailure{Peer: p, Error: ErrRejected})

	case Accept:
		sub := ctx.State.Inbound.Inbound
		ctx.State.Inbound = InboundSendingHandshakeState()
		go n.sendHandshake(p, sub)
	}
	return nil
}

func (n *NotificationProtocol) sendHandshake(p peer.ID, sub substream.Substream) {
	ctx, cancel := n.ctx, context.CancelFunc(func() {})
	if n.cfg.NegotiationTimeout > 0 {
		ctx, cancel = context.WithTimeout(n.ctx, n.cfg.NegotiationTimeout)
	}
	defer cancel()

	if err := sub.WriteFrame(ctx, n.cfg.HandshakeBytes); err != nil {
		select {
		case n.handshakeEvents <- negotiation.Event{Kind: negotiation.NegotiationError, Peer: p, Direction: protocol.DirInbound, Err: err}:
		case <-n.ctx.Done():
		}
		return
	}
	select {
	case n.handshakeSent <- handshakeSentMsg{peer: p, sub: sub}:
	case <-n.ctx.Done():
	}
}

// CloseSubstream requests that p's open notification session end. It is a
// no-op outside StateOpen, so stale close requests are tolerated.
func (n *NotificationProtocol) CloseSubstream(p peer.ID) {
	ctx, ok := n.peers[p]
	if !ok || ctx.State.Kind != StateOpen {
		return
	}
	select {
	case <-ctx.State.Shutdown:
		// already closed
	default:
		close(ctx.State.Shutdown)
	}
}

func (n *NotificationProtocol) sendNotification(p peer.ID, data []byte) error {
	if len(data) > n.cfg.MaxNotificationSize {
		return ErrNotificationTooLarge
	}
	sub, ok := n.openSubstreams[p]
	if !ok {
		return ErrPeerDoesntExist
	}
	return sub.WriteFrame(n.ctx, data)
}

func closeValidatingSubstreams(state PeerState) {
	if state.Inbound.Kind == InboundValidating || state.Inbound.Kind == InboundOpen {
		closeSubstream(state.Inbound.Inbound)
	}
	if state.Outbound.Kind == OutboundOpen {
		closeSubstream(state.Outbound.Outbound)
	}
}

func closeSubstream(sub substream.Substream) {
	if sub == nil {
		return
	}
	_ = sub.Close()
}

// Handle is the application-facing façade over a NotificationProtocol,
// communicating with its owning goroutine purely over channels so the
// application and the protocol's event loop may run on different goroutines.
type Handle struct {
	events   <-chan NotificationEvent
	commands chan<- appCommand
}

// Next blocks for the next NotificationEvent, or returns ok == false if ctx
// ends first. The event channel is never closed, so Next does not return
// when the protocol shuts down; only ctx ends the wait.
func (h *Handle) Next(ctx context.Context) (NotificationEvent, bool) {
	select {
	case ev, ok := <-h.events:
		return ev, ok
	case <-ctx.Done():
		return nil, false
	}
}

func (h *Handle) OpenSubstream(p peer.ID) {
	h.commands <- appCommand{kind: cmdOpenSubstream, peer: p}
}

func (h *Handle) CloseSubstream(p peer.ID) {
	h.commands <- appCommand{kind: cmdCloseSubstream, peer: p}
}

func (h *Handle) ValidationResult(p peer.ID, result ValidationResult) {
	h.commands <- appCommand{kind: cmdValidationResult, peer: p, result: result}
}

// SendNotification queues data for delivery over p's open outbound
// substream. It is a best-effort async send; delivery failures surface as a
// log line from the owning loop.
func (h *Handle) SendNotification(p peer.ID, data []byte) {
	h.commands <- appCommand{kind: cmdSendNotification, peer: p, data: data}
}
