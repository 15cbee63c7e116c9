package memory

import (
	"context"
	"sync"

	"github.com/crewd/crewd/pkg/domain"
	"github.com/crewd/crewd/pkg/ports"
)

// EventBus is an in-process implementation of ports.EventBus. Handlers
// run asynchronously; a slow subscriber never blocks a publisher.
type EventBus struct {
	mu          sync.RWMutex
	nextID      int
	subscribers map[string]map[int]ports.EventHandler
}

// NewEventBus creates an in-memory event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string]map[int]ports.EventHandler),
	}
}

// Publish delivers the event to every subscriber of the topic.
func (e *EventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	handlers := make([]ports.EventHandler, 0, len(e.subscribers[topic]))
	for _, h := range e.subscribers[topic] {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()

	for _, handler := range handlers {
		go func(h ports.EventHandler) {
			// Handler errors are the subscriber's problem; delivery is
			// fire-and-forget.
			_ = h(ctx, event)
		}(handler)
	}
	return nil
}

// Subscribe registers a handler for a topic and returns an unsubscribe
// handle. The handle is idempotent. The subscription also detaches when
// ctx ends.
func (e *EventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) (func(), error) {
	e.mu.Lock()
	if e.subscribers[topic] == nil {
		e.subscribers[topic] = make(map[int]ports.EventHandler)
	}
	id := e.nextID
	e.nextID++
	e.subscribers[topic][id] = handler
	e.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	unsubscribe := func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subscribers[topic], id)
			e.mu.Unlock()
			close(done)
		})
	}

	// The watcher exits on unsubscribe too, so a subscription under a
	// non-cancellable context does not pin a goroutine forever.
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-done:
		}
	}()

	return unsubscribe, nil
}

// Close drops all subscribers.
func (e *EventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = make(map[string]map[int]ports.EventHandler)
	return nil
}
