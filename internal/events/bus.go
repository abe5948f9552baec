// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AllEvents subscribes a handler to every event type.
const AllEvents EventType = "*"

// DefaultPublishTimeout bounds how long Publish waits for queue space.
const DefaultPublishTimeout = 5 * time.Second

var (
	ErrBusClosed   = errors.New("event bus is shutting down")
	ErrChannelFull = errors.New("event channel full")
)

// Publisher accepts committed events. The engine publishes through it.
type Publisher interface {
	Publish(event Event) error
}

// Bus is an in-memory event bus. Publish queues events and a dispatcher
// goroutine delivers them to subscribers in publish order.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[EventType]map[string]Handler
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	eventChan  chan Event
	bufferSize int
	// publishTimeout is how long Publish blocks on a full queue. Zero
	// drops immediately.
	publishTimeout time.Duration

	statsMu   sync.Mutex
	published uint64
	dropped   uint64
	failed    uint64
}

var _ Publisher = (*Bus)(nil)

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithPublishTimeout sets how long Publish waits for queue space before it
// gives up with ErrChannelFull. Zero makes Publish non-blocking.
func WithPublishTimeout(d time.Duration) BusOption {
	return func(b *Bus) {
		if d >= 0 {
			b.publishTimeout = d
		}
	}
}

// NewBus creates a new event bus.
func NewBus(logger *zap.Logger, bufferSize int, opts ...BusOption) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	bus := &Bus{
		handlers:       make(map[EventType]map[string]Handler),
		logger:         logger.Named("event_bus"),
		ctx:            ctx,
		cancel:         cancel,
		eventChan:      make(chan Event, bufferSize),
		bufferSize:     bufferSize,
		publishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(bus)
	}

	bus.wg.Add(1)
	go bus.processEvents()

	return bus
}

// Subscribe registers a handler for a specific event type, or AllEvents.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]Handler)
	}

	b.handlers[eventType][id] = handler

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))

	return &busSubscription{bus: b, eventType: eventType, id: id}
}

// SubscribeFunc is a convenience method for subscribing with a function.
func (b *Bus) SubscribeFunc(eventType EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

// Publish queues an event for delivery. On a full queue it blocks for up to
// the publish timeout, which slows the publisher down to the pace of the
// subscribers. An event that still finds no room is not delivered and
// ErrChannelFull is returned so the caller can account for it.
func (b *Bus) Publish(event Event) error {
	select {
	case <-b.ctx.Done():
		return ErrBusClosed
	default:
	}

	select {
	case b.eventChan <- event:
		b.countPublished()
		return nil
	default:
	}

	if b.publishTimeout > 0 {
		timer := time.NewTimer(b.publishTimeout)
		defer timer.Stop()

		select {
		case b.eventChan <- event:
			b.countPublished()
			return nil
		case <-b.ctx.Done():
			return ErrBusClosed
		case <-timer.C:
		}
	}

	b.statsMu.Lock()
	b.dropped++
	b.statsMu.Unlock()
	b.logger.Error("Event channel full, event not delivered",
		zap.String("event_type", string(event.Type())),
		zap.String("event_id", event.ID()),
		zap.Duration("waited", b.publishTimeout))
	return fmt.Errorf("%w: %s %s", ErrChannelFull, event.Type(), event.ID())
}

func (b *Bus) countPublished() {
	b.statsMu.Lock()
	b.published++
	b.statsMu.Unlock()
}

// PublishSync delivers an event to its subscribers on the calling goroutine.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := make(map[string]Handler, len(b.handlers[event.Type()])+len(b.handlers[AllEvents]))
	for id, h := range b.handlers[event.Type()] {
		handlers[id] = h
	}
	for id, h := range b.handlers[AllEvents] {
		handlers[id] = h
	}
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	var errs []error
	for id, handler := range handlers {
		if err := handler.Handle(ctx, event); err != nil {
			b.logger.Error("Handler error",
				zap.String("event_type", string(event.Type())),
				zap.String("event_id", event.ID()),
				zap.String("handler_id", id),
				zap.Error(err))
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		b.statsMu.Lock()
		b.failed++
		b.statsMu.Unlock()
		return fmt.Errorf("handlers failed: %w", errors.Join(errs...))
	}

	return nil
}

// processEvents delivers queued events one at a time so subscribers observe
// them in commit order.
func (b *Bus) processEvents() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			// Drain remaining events
			for {
				select {
				case event := <-b.eventChan:
					_ = b.PublishSync(context.Background(), event)
				default:
					return
				}
			}
		case event := <-b.eventChan:
			if err := b.PublishSync(b.ctx, event); err != nil {
				b.logger.Error("Failed to process event",
					zap.String("event_type", string(event.Type())),
					zap.Error(err))
			}
		}
	}
}

// unsubscribe removes a handler subscription.
func (b *Bus) unsubscribe(id string, eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.handlers[eventType]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(b.handlers, eventType)
		}
	}

	b.logger.Debug("Handler unsubscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))
}

// Shutdown stops accepting events, drains the queue and waits for the
// dispatcher to exit.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.logger.Info("Shutting down event bus")

	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("Event bus shutdown complete")
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout")
		return ctx.Err()
	}
}

// Stats describes the bus.
type Stats struct {
	BufferSize      int            `json:"buffer_size"`
	Pending         int            `json:"pending_events"`
	Published       uint64         `json:"published"`
	Dropped         uint64         `json:"dropped"`
	Failed          uint64         `json:"failed"`
	HandlersPerType map[string]int `json:"handlers_per_type"`
}

// Stats returns statistics about the event bus.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	counts := make(map[string]int, len(b.handlers))
	for eventType, handlers := range b.handlers {
		counts[string(eventType)] = len(handlers)
	}
	b.mu.RUnlock()

	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return Stats{
		BufferSize:      b.bufferSize,
		Pending:         len(b.eventChan),
		Published:       b.published,
		Dropped:         b.dropped,
		Failed:          b.failed,
		HandlersPerType: counts,
	}
}
