package events

import "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/events"

// NoOpEventBus discards every event. It is the engine default.
type NoOpEventBus struct{}

var _ events.Bus = (*NoOpEventBus)(nil)

func NewNoOpEventBus() events.Bus {
	return &NoOpEventBus{}
}

func (n *NoOpEventBus) Emit(events.Event) {}
