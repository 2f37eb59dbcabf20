// Package libp2pwebrtc implements a single-connection WebRTC data plane: it
// multiplexes application substreams over WebRTC data channels, performs
// inbound protocol selection on the first frame of each channel, and relays
// framed messages between channels and the registered protocol handlers.
//
// pion drives ICE/SCTP internally via callbacks rather than exposing a
// manually polled protocol object, so every callback (data channel open, ICE
// state change, the detached channel's read loop) becomes a send on a shared
// events channel, and (*Engine).Run's single select loop owns all mutable
// state for the lifetime of the connection.
package libp2pwebrtc

import (
	"context"
	"fmt"
	"io"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	logging "github.com/ipfs/go-log/v2"
	tec "github.com/jbenet/go-temp-err-catcher"
	pool "github.com/libp2p/go-buffer-pool"
	flow "github.com/libp2p/go-flow-metrics"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-msgio"
	"github.com/multiformats/go-varint"
	"github.com/pion/datachannel"
	"github.com/pion/webrtc/v3"

	"github.com/libp2p/go-notifengine/internal/msmux"
	"github.com/libp2p/go-notifengine/protocol"
	"github.com/libp2p/go-notifengine/substream/channel"
	"github.com/libp2p/go-notifengine/transport/webrtc/pb"
	"github.com/libp2p/go-notifengine/types"
)

var log = logging.Logger("notifengine/webrtc")

// closedChannelMemory bounds how many recently closed channel ids the engine
// remembers in order to discard frames that were already queued when the
// channel went away.
const closedChannelMemory = 128

type channelEventKind int

const (
	evChannelOpen channelEventKind = iota
	evChannelData
	evChannelClosed
)

type channelEvent struct {
	kind channelEventKind
	id   uint16
	data []byte
	ch   *openedChannel
}

// openedChannel is the write half of a detached data channel.
type openedChannel struct {
	w io.Writer
}

// substreamContext binds a substream id to the WebRTC channel carrying it
// and the inbound-delivery half of its channel-backend.
type substreamContext struct {
	channelID uint16
	deliver   func([]byte) bool
}

// Engine owns one WebRTC connection's data plane. One Engine exists per
// negotiated peer connection; Run must be called exactly once and owns all
// mutable state (idMapping, channels) for as long as it runs.
type Engine struct {
	cfg Config

	pc         *webrtc.PeerConnection
	remotePeer peer.ID
	protocols  *protocol.ProtocolSet

	backend      *channel.Backend
	substreamIDs *types.SubstreamIDAllocator

	// idMapping, channels and dataChannels are touched only from Run's
	// goroutine once a channel's open event has been processed; the pion
	// callback goroutines that produce channelEvents never read or write
	// them directly. A channel without an idMapping entry is still in its
	// pre-negotiation phase.
	idMapping    map[uint16]types.SubstreamId
	channels     map[types.SubstreamId]*substreamContext
	dataChannels map[uint16]*openedChannel

	// closedChannels remembers channels that were recently torn down, so
	// frames drained from their read loops after the close are not mistaken
	// for a fresh channel's multistream-select request.
	closedChannels *lru.Cache[uint16, struct{}]

	ingress *flow.Meter
	egress  *flow.Meter

	events   chan channelEvent
	iceState chan webrtc.ICEConnectionState

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine constructs an Engine driving pc's data channels for remotePeer,
// dispatching negotiated inbound substreams to protocols.
func NewEngine(pc *webrtc.PeerConnection, remotePeer peer.ID, protocols *protocol.ProtocolSet, opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	e := newEngine(cfg, remotePeer, protocols)
	e.pc = pc

	pc.OnDataChannel(e.onDataChannel)
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		select {
		case e.iceState <- state:
		case <-e.ctx.Done():
		}
	})

	return e
}

func newEngine(cfg Config, remotePeer peer.ID, protocols *protocol.ProtocolSet) *Engine {
	closed, _ := lru.New[uint16, struct{}](closedChannelMemory)
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:            cfg,
		remotePeer:     remotePeer,
		protocols:      protocols,
		backend:        channel.NewBackend(cfg.SubstreamQueueLen),
		substreamIDs:   types.NewSubstreamIDAllocator(),
		idMapping:      make(map[uint16]types.SubstreamId),
		channels:       make(map[types.SubstreamId]*substreamContext),
		dataChannels:   make(map[uint16]*openedChannel),
		closedChannels: closed,
		ingress:        new(flow.Meter),
		egress:         new(flow.Meter),
		events:         make(chan channelEvent, cfg.SubstreamQueueLen),
		iceState:       make(chan webrtc.ICEConnectionState, 4),
		ctx:            ctx,
		cancel:         cancel,
	}
}

func (e *Engine) onDataChannel(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		rwc, err := dc.Detach()
		if err != nil {
			log.Warnf("could not detach data channel %d: %s", *dc.ID(), err)
			return
		}
		id := *dc.ID()
		e.pushEvent(channelEvent{kind: evChannelOpen, id: id, ch: &openedChannel{w: rwc}})
		e.readLoop(id, rwc)
	})
}

// readLoop decodes length-prefixed pb.Message frames from a detached channel
// and forwards each to Run via e.events, in arrival order.
func (e *Engine) readLoop(id uint16, rwc datachannel.ReadWriteCloser) {
	reader := msgio.NewVarintReaderSize(rwc, e.cfg.MaxNotificationSize)
	defer reader.Close()
	var catcher tec.TempErrCatcher
	for {
		frame, err := reader.ReadMsg()
		if err != nil {
			if catcher.IsTemporary(err) {
				continue
			}
			e.pushEvent(channelEvent{kind: evChannelClosed, id: id})
			return
		}
		e.ingress.Mark(uint64(len(frame)))
		// msgio reuses its read buffer, so hand Run its own copy.
		data := pool.Get(len(frame))
		copy(data, frame)
		reader.ReleaseMsg(frame)
		e.pushEvent(channelEvent{kind: evChannelData, id: id, data: data})
	}
}

func (e *Engine) pushEvent(ev channelEvent) {
	select {
	case e.events <- ev:
	case <-e.ctx.Done():
	}
}

// Run drives the engine's event loop until ctx ends, the connection reports
// disconnected, or an unrecoverable protocol error occurs. It always
// disconnects the peer connection before returning on any error path.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.cfg.PollInterval
	if interval > 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := e.cfg.Clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-e.events:
			if err := e.handleChannelEvent(ev); err != nil {
				e.disconnect()
				return err
			}

		case state := <-e.iceState:
			if state == webrtc.ICEConnectionStateDisconnected {
				e.disconnect()
				return ErrDisconnected
			}

		case frame := <-e.backend.Out():
			if err := e.writeToSubstream(frame.ID, frame.Data); err != nil {
				e.disconnect()
				return err
			}

		case cmd, ok := <-e.protocols.Commands():
			if !ok {
				e.disconnect()
				return ErrEngineClosed
			}
			// Dialing a fresh outbound substream means creating a new data
			// channel and driving SDP renegotiation, which belongs to the
			// transport manager owning this connection. The engine only owns
			// substreams once they exist.
			if open, ok := cmd.(protocol.EventOpenSubstream); ok {
				log.Debugf("open-substream request for protocol %s to %s: dialing is owned by the transport manager", open.Protocol, e.remotePeer)
			}

		case <-ticker.C:
			// Periodic wakeup; pion drives its own ICE/SCTP timers, so there
			// is no protocol clock to advance here.

		case <-ctx.Done():
			e.disconnect()
			return ctx.Err()

		case <-e.ctx.Done():
			return ErrEngineClosed
		}
	}
}

// Close stops the engine and disconnects its peer connection.
func (e *Engine) Close() {
	e.cancel()
	e.disconnect()
}

// Stats reports the engine's inbound and outbound payload bandwidth.
func (e *Engine) Stats() (ingress, egress flow.Snapshot) {
	return e.ingress.Snapshot(), e.egress.Snapshot()
}

func (e *Engine) disconnect() {
	if e.pc != nil {
		_ = e.pc.Close()
	}
}

func (e *Engine) handleChannelEvent(ev channelEvent) error {
	switch ev.kind {
	case evChannelOpen:
		e.dataChannels[ev.id] = ev.ch
		e.closedChannels.Remove(ev.id)
		return nil

	case evChannelClosed:
		// TODO: report the close to the protocol set so it can tear down the
		// substream promptly instead of waiting on a ReadFrame error.
		if sid, ok := e.idMapping[ev.id]; ok {
			delete(e.idMapping, ev.id)
			delete(e.channels, sid)
		}
		delete(e.dataChannels, ev.id)
		e.closedChannels.Add(ev.id, struct{}{})
		return nil

	case evChannelData:
		return e.onChannelData(ev.id, ev.data)

	default:
		return nil
	}
}

// onChannelData routes one decoded frame: a channel without an idMapping
// entry is still negotiating and its first non-empty payload is treated as a
// multistream-select request; a mapped channel has its payload forwarded to
// the owning substream.
func (e *Engine) onChannelData(id uint16, raw []byte) error {
	msg := &pb.Message{}
	if err := msg.Unmarshal(raw); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidData, err)
	}

	if sid, ok := e.idMapping[id]; ok {
		if len(msg.Message) == 0 {
			// Header-only frame (pure flag signal); framing permits this.
			return nil
		}
		ctx, ok := e.channels[sid]
		if !ok {
			return ErrChannelDoesntExist
		}
		ctx.deliver(msg.Message)
		return nil
	}

	if e.closedChannels.Contains(id) {
		// A frame the read loop had already queued when the channel closed.
		return nil
	}
	if len(msg.Message) == 0 {
		// An empty frame before negotiation carries nothing to select on.
		return nil
	}
	return e.negotiateProtocol(id, msg.Message)
}

// negotiateProtocol runs listener-side multistream-select on a channel's
// first frame, then registers the freshly agreed substream.
func (e *Engine) negotiateProtocol(id uint16, request []byte) error {
	names := e.protocols.Names()
	offered := make([]string, len(names))
	for i, n := range names {
		offered[i] = string(n)
	}

	selected, response, err := msmux.Negotiate(offered, request)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidData, err)
	}
	if err := e.writeRaw(id, response); err != nil {
		return err
	}

	sid := e.substreamIDs.Next()
	sub, deliver := e.backend.Substream(sid)
	e.idMapping[id] = sid
	e.channels[sid] = &substreamContext{channelID: id, deliver: deliver}

	if !e.protocols.ReportSubstreamOpen(e.ctx, e.remotePeer, protocol.ProtocolName(selected), protocol.DirInbound, sub) {
		_ = sub.Close()
		delete(e.idMapping, id)
		delete(e.channels, sid)
	}
	return nil
}

// writeToSubstream looks up sid's owning channel and writes data to the
// remote peer. A missing mapping is fatal for the connection.
func (e *Engine) writeToSubstream(sid types.SubstreamId, data []byte) error {
	ctx, ok := e.channels[sid]
	if !ok {
		return ErrChannelDoesntExist
	}
	return e.writeRaw(ctx.channelID, data)
}

// writeRaw wraps payload in a pb.Message, frames it with an unsigned-varint
// length prefix, and writes the whole frame to channel id in one call.
func (e *Engine) writeRaw(id uint16, payload []byte) error {
	ch, ok := e.dataChannels[id]
	if !ok {
		return ErrChannelDoesntExist
	}

	msg := &pb.Message{Message: payload}
	size := msg.Size()
	buf := pool.Get(varint.UvarintSize(uint64(size)) + size)
	defer pool.Put(buf)

	n := varint.PutUvarint(buf, uint64(size))
	if _, err := msg.MarshalTo(buf[n:]); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidData, err)
	}
	if _, err := ch.w.Write(buf); err != nil {
		return err
	}
	e.egress.Mark(uint64(size))
	return nil
}
