package events

import (
	"time"

	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting. Delivery is
// asynchronous; each subscriber sees events in publish order.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers of its type.
// Usage: bus.Publish(SessionStateChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case SessionStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case SessionTerminatedEvent:
		event.Publish(b.dispatcher, e)
	case ControlAppliedEvent:
		event.Publish(b.dispatcher, e)
	case FrameRateEvent:
		event.Publish(b.dispatcher, e)
	case ProducerConnectedEvent:
		event.Publish(b.dispatcher, e)
	case ProducerDisconnectedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type it accepts and returns an
// unsubscribe function. Handlers of unknown types are ignored.
// Usage: unsub := bus.Subscribe(func(e SessionTerminatedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(SessionStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionTerminatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ControlAppliedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameRateEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProducerConnectedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProducerDisconnectedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel forwards events of type T to ch, dropping them when ch
// is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// Now formats the current time for event timestamps.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
