package identity

import (
	"sync"

	"github.com/lumera-ai/lumera/internal/identity/domain"
)

// Bus fans provider session events out to in-process subscribers. Delivery
// is synchronous in subscription order; handlers must not block.
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[int]func(domain.Event)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(domain.Event))}
}

// Subscribe registers a handler and returns its cancel function.
func (b *Bus) Subscribe(handler func(domain.Event)) func() {
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

// Publish delivers the event to all current subscribers.
func (b *Bus) Publish(event domain.Event) {
	b.mu.Lock()
	handlers := make([]func(domain.Event), 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}
