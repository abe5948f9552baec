// internal/events/handler.go
package events

import (
	"context"
	"sync"
)

// Handler consumes committed engine events. The indexer, the metrics
// collector and the stream hub are the bus subscribers. Handlers run on the
// bus dispatcher one event at a time, so a slow handler delays every later
// event and eventually makes Publish wait.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc lets a plain function subscribe to the bus.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription is returned by Subscribe. Unsubscribe may be called more than
// once.
type Subscription interface {
	Unsubscribe()
}

type busSubscription struct {
	bus       *Bus
	eventType EventType
	id        string
	once      sync.Once
}

func (s *busSubscription) Unsubscribe() {
	s.once.Do(func() { s.bus.unsubscribe(s.id, s.eventType) })
}
