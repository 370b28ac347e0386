// Package eventbus decouples event producers (the Coordinator, Agent
// Pool, QA Loop) from consumers (loggers, the Human Review Service, test
// observers) with single-process, synchronous, in-memory dispatch.
package eventbus

import (
	"sync"

	"github.com/nexus-build/nexus/internal/models"
)

// Handler receives one event at a time. A panicking handler is recovered
// so it cannot take down the producer or other subscribers.
type Handler func(models.Event)

// Unsubscribe removes the subscription it was returned from.
type Unsubscribe func()

// Bus dispatches events synchronously to subscribers, in per-subscriber
// emission order. There is no cross-subscriber ordering guarantee and no
// persistence: delivery is at-most-once, in memory, for the life of the
// process.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[models.EventKind][]*subscription
	nextID      uint64
}

type subscription struct {
	id      uint64
	handler Handler
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[models.EventKind][]*subscription)}
}

// Subscribe registers handler for events of kind. The returned
// Unsubscribe removes it; calling it more than once is a no-op.
func (b *Bus) Subscribe(kind models.EventKind, handler Handler) Unsubscribe {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscription{id: id, handler: handler}
	b.subscribers[kind] = append(b.subscribers[kind], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subscribers[kind]
			for i, s := range subs {
				if s.id == id {
					b.subscribers[kind] = append(subs[:i], subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish dispatches evt to every subscriber registered for evt.Kind, in
// subscription order. Each handler invocation is guarded individually: a
// panic in one subscriber is recovered and does not prevent the remaining
// subscribers from being called, nor does it propagate to the caller.
func (b *Bus) Publish(evt models.Event) {
	b.mu.RLock()
	subs := make([]*subscription, len(b.subscribers[evt.Kind]))
	copy(subs, b.subscribers[evt.Kind])
	b.mu.RUnlock()

	for _, sub := range subs {
		b.dispatch(sub.handler, evt)
	}
}

func (b *Bus) dispatch(handler Handler, evt models.Event) {
	defer func() {
		_ = recover()
	}()
	handler(evt)
}
