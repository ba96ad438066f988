package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// HandlerFunc handles one lifecycle event.
type HandlerFunc func(Event)

// Bus delivers lifecycle events to subscribers synchronously, in
// registration order. Subscribers are keyed by name: registering the same
// name twice is a no-op, so a callback is added at most once. The session
// layer serializes all Emit calls, so handlers never run concurrently.
type Bus struct {
	mu   sync.Mutex
	subs []subscriber
}

type subscriber struct {
	name    string
	handler HandlerFunc
}

// NewBus creates an empty lifecycle bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a named handler. A name already present is a no-op.
func (b *Bus) Subscribe(name string, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs {
		if s.name == name {
			log.Debug().Str("subscriber", name).Msg("already subscribed, ignoring")
			return
		}
	}
	b.subs = append(b.subs, subscriber{name: name, handler: handler})
	log.Debug().Str("subscriber", name).Msg("subscribed to lifecycle events")
}

// Unsubscribe removes a named handler if present.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	filtered := b.subs[:0]
	for _, s := range b.subs {
		if s.name != name {
			filtered = append(filtered, s)
		}
	}
	b.subs = filtered
}

// Clear removes every subscriber. Used at teardown.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
}

// Emit delivers the event to every subscriber in registration order. A
// panicking handler is logged and does not stop delivery to the rest.
func (b *Bus) Emit(ev Event) {
	b.mu.Lock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event", string(ev.Type)).
				Str("subscriber", s.name).
				Interface("panic", r).
				Msg("lifecycle handler panicked")
		}
	}()
	s.handler(ev)
}
