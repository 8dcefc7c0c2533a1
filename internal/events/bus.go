// Package events is the in-process event bus shared by the caster, the
// receiver, the recorder and their front ends.
package events

import "github.com/kelindar/event"

// Bus wraps a kelindar/event dispatcher. A nil *Bus drops every event.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish publishes an event to all subscribers of its concrete type.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case ReceiverStateChanged:
		event.Publish(b.dispatcher, e)
	case RecordingStarted:
		event.Publish(b.dispatcher, e)
	case RecordingFinalized:
		event.Publish(b.dispatcher, e)
	case SubscriberJoined:
		event.Publish(b.dispatcher, e)
	case SubscriberLeft:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type named by its parameter and
// returns an unsubscribe function. Unknown handler types are ignored.
func (b *Bus) Subscribe(handler any) func() {
	if b == nil {
		return func() {}
	}
	switch h := handler.(type) {
	case func(ReceiverStateChanged):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingStarted):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingFinalized):
		return event.Subscribe(b.dispatcher, h)
	case func(SubscriberJoined):
		return event.Subscribe(b.dispatcher, h)
	case func(SubscriberLeft):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
