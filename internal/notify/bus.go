package notify

import (
	"time"

	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// It implements EventSink.
type Bus struct {
	dispatcher *event.Dispatcher
}

func NewBus() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Emit publishes the typed event for a known name and always the envelope.
func (b *Bus) Emit(name string, payload map[string]any) {
	now := time.Now()
	if payload == nil {
		payload = map[string]any{}
	}
	switch name {
	case EventProcessStarted:
		b.Publish(ProcessStartedEvent{Timestamp: now})
	case EventProcessStopped:
		b.Publish(ProcessStoppedEvent{Timestamp: now})
	case EventTemplatesChanged:
		names, _ := payload["templates"].([]string)
		b.Publish(TemplatesChangedEvent{Templates: names, Timestamp: now})
	}
	b.Publish(Envelope{Name: name, Payload: payload, Timestamp: now})
}

// Publish publishes an event to all subscribers of its type.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case ProcessStartedEvent:
		event.Publish(b.dispatcher, e)
	case ProcessStoppedEvent:
		event.Publish(b.dispatcher, e)
	case TemplatesChangedEvent:
		event.Publish(b.dispatcher, e)
	case Envelope:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers a typed handler and returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e ProcessStartedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ProcessStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessStoppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(TemplatesChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(Envelope):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeAll receives every emitted event in order.
func (b *Bus) SubscribeAll(fn func(Envelope)) func() {
	return event.Subscribe(b.dispatcher, fn)
}

// Channel bridges the envelope stream to a buffered channel for SSE.
// Events are dropped when the reader falls behind.
func (b *Bus) Channel(buffer int) (<-chan Envelope, func()) {
	ch := make(chan Envelope, buffer)
	unsub := b.SubscribeAll(func(e Envelope) {
		select {
		case ch <- e:
		default:
		}
	})
	return ch, unsub
}
