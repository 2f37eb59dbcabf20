// Package notifengine assembles the pieces of the substream lifecycle
// engine — a ProtocolSet registry plus one or more notification protocols —
// into a single runnable node. Transports (such as the WebRTC engine in
// transport/webrtc) attach to the node's ProtocolSet; applications drive
// each protocol through its Handle.
package notifengine

import (
	"context"
	"errors"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pbnjay/memory"
	"github.com/raulk/go-watchdog"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"

	"github.com/libp2p/go-notifengine/protocol"
	"github.com/libp2p/go-notifengine/protocol/notification"
)

var log = logging.Logger("notifengine")

type protocolConfig struct {
	name      protocol.ProtocolName
	handshake []byte
	opts      []notification.Option
}

type config struct {
	commandQueueLen  int
	watchdogFraction float64
	protocols        []protocolConfig
}

// Option configures a Node at construction time.
type Option func(*config) error

// WithNotificationProtocol registers a notification protocol under name,
// announcing handshake on every substream it negotiates.
func WithNotificationProtocol(name protocol.ProtocolName, handshake []byte, opts ...notification.Option) Option {
	return func(c *config) error {
		for _, p := range c.protocols {
			if p.name == name {
				return fmt.Errorf("notifengine: protocol %s registered twice", name)
			}
		}
		c.protocols = append(c.protocols, protocolConfig{name: name, handshake: handshake, opts: opts})
		return nil
	}
}

// WithCommandQueueLen bounds the ProtocolSet's shared outbound-command
// queue.
func WithCommandQueueLen(n int) Option {
	return func(c *config) error {
		c.commandQueueLen = n
		return nil
	}
}

// WithMemoryWatchdog starts a heap-driven GC watchdog alongside the node,
// limiting the heap to the given fraction of total system memory. fraction
// must lie in (0, 1]; without this option no watchdog runs.
func WithMemoryWatchdog(fraction float64) Option {
	return func(c *config) error {
		if fraction <= 0 || fraction > 1 {
			return fmt.Errorf("notifengine: watchdog fraction %f outside (0, 1]", fraction)
		}
		c.watchdogFraction = fraction
		return nil
	}
}

// Node owns a ProtocolSet and the event loops of every protocol registered
// on it.
type Node struct {
	app *fx.App

	set       *protocol.ProtocolSet
	protocols map[protocol.ProtocolName]*notification.NotificationProtocol
	handles   map[protocol.ProtocolName]*notification.Handle

	runCtx    context.Context
	runCancel context.CancelFunc
	loops     *errgroup.Group

	stopWatchdog func()
}

// New builds a Node from opts. The node is inert until Start is called.
func New(opts ...Option) (*Node, error) {
	var cfg config
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if len(cfg.protocols) == 0 {
		return nil, errors.New("notifengine: no protocols configured")
	}

	node := &Node{
		protocols: make(map[protocol.ProtocolName]*notification.NotificationProtocol),
		handles:   make(map[protocol.ProtocolName]*notification.Handle),
	}
	node.runCtx, node.runCancel = context.WithCancel(context.Background())

	node.app = fx.New(
		fx.NopLogger,
		fx.Provide(func() *protocol.ProtocolSet {
			return protocol.NewProtocolSet(cfg.commandQueueLen)
		}),
		fx.Invoke(func(set *protocol.ProtocolSet) {
			node.set = set
			for _, pc := range cfg.protocols {
				n, h := notification.New(pc.name, pc.handshake, pc.opts...)
				set.Register(pc.name, n.TransportEvents())
				node.protocols[pc.name] = n
				node.handles[pc.name] = h
			}
		}),
		fx.Invoke(func(lc fx.Lifecycle) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error { return node.start(cfg) },
				OnStop:  func(context.Context) error { return node.stop() },
			})
		}),
	)
	if err := node.app.Err(); err != nil {
		return nil, err
	}
	return node, nil
}

func (n *Node) start(cfg config) error {
	if cfg.watchdogFraction > 0 {
		limit := uint64(float64(memory.TotalMemory()) * cfg.watchdogFraction)
		err, stop := watchdog.HeapDriven(limit, 20, watchdog.NewAdaptivePolicy(0.5))
		if err != nil {
			// The watchdog is advisory; a platform without the needed GC
			// instrumentation still gets a fully functional node.
			log.Warnf("memory watchdog unavailable: %s", err)
		} else {
			n.stopWatchdog = stop
		}
	}

	n.loops, _ = errgroup.WithContext(n.runCtx)
	for name, proto := range n.protocols {
		proto := proto
		log.Debugf("starting notification protocol loop for %s", name)
		n.loops.Go(func() error {
			proto.Run(n.runCtx)
			return nil
		})
	}
	return nil
}

func (n *Node) stop() error {
	n.runCancel()
	for _, proto := range n.protocols {
		proto.Close()
	}
	err := n.loops.Wait()
	if n.stopWatchdog != nil {
		n.stopWatchdog()
		n.stopWatchdog = nil
	}
	return err
}

// Start runs the node's lifecycle: protocol event loops and, if configured,
// the memory watchdog.
func (n *Node) Start(ctx context.Context) error {
	return n.app.Start(ctx)
}

// Close stops every protocol loop and releases the node's resources.
func (n *Node) Close() error {
	return n.app.Stop(context.Background())
}

// ProtocolSet exposes the registry transports attach to.
func (n *Node) ProtocolSet() *protocol.ProtocolSet {
	return n.set
}

// NotificationHandle returns the application handle for name, or nil if no
// such protocol was configured.
func (n *Node) NotificationHandle(name protocol.ProtocolName) *notification.Handle {
	return n.handles[name]
}
