package events

import "sync"

// Kind enumerates the auth lifecycle events the cart orchestrator reacts to.
type Kind string

const (
	CustomerAuthenticated Kind = "customer.authenticated"
	CustomerLoggedOut     Kind = "customer.logged_out"
)

// Event is published on the bus when auth state flips.
type Event struct {
	Kind       Kind
	CustomerID string
}

// Bus is a small in-process publish/subscribe hub. It replaces back-references
// between sibling services: publishers never hold their subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]func(Event)
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers a handler and returns an unsubscribe func. Handlers run
// synchronously on the publisher's goroutine and must not block.
func (b *Bus) Subscribe(handler func(Event)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers the event to every current subscriber.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs))
	for _, handler := range b.subs {
		handlers = append(handlers, handler)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(evt)
	}
}
