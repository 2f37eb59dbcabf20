package libp2pwebrtc

import (
	"time"

	"github.com/benbjohnson/clock"
)

// defaultSubstreamQueueLen bounds the per-substream channel-backend buffer.
const defaultSubstreamQueueLen = 64

// defaultPollInterval paces the engine's housekeeping tick in the absence of
// other input. pion drives its own ICE/SCTP timers internally, so this tick
// carries no protocol work of its own.
const defaultPollInterval = 100 * time.Millisecond

// Config holds construction-time parameters for an Engine.
type Config struct {
	// SubstreamQueueLen bounds the per-substream channel-backend buffer.
	SubstreamQueueLen int
	// PollInterval bounds how often the engine wakes in the absence of other
	// input. Run clamps it to [1ms, 100ms].
	PollInterval time.Duration
	// MaxNotificationSize rejects-and-closes a channel whose frame payload
	// exceeds this many bytes.
	MaxNotificationSize int
	// Clock drives the engine's tick; swapped for a mock in tests.
	Clock clock.Clock
}

// Option configures an Engine at construction time.
type Option func(*Config)

func WithSubstreamQueueLen(n int) Option {
	return func(c *Config) { c.SubstreamQueueLen = n }
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Config) { c.PollInterval = d }
}

func WithMaxNotificationSize(n int) Option {
	return func(c *Config) { c.MaxNotificationSize = n }
}

func WithClock(clk clock.Clock) Option {
	return func(c *Config) { c.Clock = clk }
}

func defaultConfig() Config {
	return Config{
		SubstreamQueueLen:   defaultSubstreamQueueLen,
		PollInterval:        defaultPollInterval,
		MaxNotificationSize: 1 << 20,
		Clock:               clock.New(),
	}
}
