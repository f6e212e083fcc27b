// Package outbox defines how order and cart events leave the use case that raised them.
package outbox

import "context"

// Event is a domain event identified by a dotted name such as "order.placed".
type Event interface {
	EventName() string
}

// Keyed events name the aggregate they belong to so ordered transports keep
// one order's events in sequence.
type Keyed interface {
	Event
	PartitionKey() string
}

// Handler processes a published event. Its error is logged by the bus, never returned to the publisher.
type Handler func(ctx context.Context, e Event) error

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Subscriber interface {
	Subscribe(eventName string, h Handler)
}

// Bus is both ends of the in-process broker.
type Bus interface {
	Publisher
	Subscriber
}

// Names returns the names of the given event prototypes, in order.
func Names(events ...Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventName())
	}
	return out
}
