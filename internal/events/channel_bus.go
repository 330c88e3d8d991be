package events

import (
	"sync"

	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/events"
	tglog "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/log"
)

const defaultBufferSize = 256

// ChannelEventBus delivers events through a buffered channel. Emit never
// blocks: when the buffer is full the event is dropped with a warning.
type ChannelEventBus struct {
	channel chan events.Event
	log     tglog.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

var _ events.Bus = (*ChannelEventBus)(nil)

// NewChannelEventBus creates a bus with the given buffer size (a default is
// used for non-positive values). It panics on a nil logger.
func NewChannelEventBus(bufferSize int, log tglog.Logger) *ChannelEventBus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if log == nil {
		panic("ChannelEventBus requires a non-nil logger")
	}
	return &ChannelEventBus{
		channel: make(chan events.Event, bufferSize),
		log:     log.With("component", "ChannelEventBus"),
	}
}

func (c *ChannelEventBus) Emit(event events.Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.channel <- event:
	default:
		c.log.Warnf("Event channel buffer full, dropping event type '%s'", event.Type)
	}
}

// Channel returns the receive side for listeners.
func (c *ChannelEventBus) Channel() <-chan events.Event {
	return c.channel
}

// Close stops delivery; listeners see the channel close after draining it.
// Emit after Close is a no-op.
func (c *ChannelEventBus) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.channel)
		c.mu.Unlock()
	})
}
