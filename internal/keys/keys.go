// Package keys delivers key presses to handlers that are attached for as
// long as their owner is active. Nothing here is global: each owner gets
// its handlers from an explicit Source and removes them on teardown.
package keys

import "sync"

// Names of the keys the bindings care about.
const (
	Enter = "Enter"
	K     = "k"
)

// Event is one key press.
type Event struct {
	Key   string
	Shift bool
	Meta  bool
}

// Handler reacts to a key press.
type Handler func(Event)

// Source delivers key presses. Subscribe returns a function that removes
// the handler; calling it more than once is safe.
type Source interface {
	Subscribe(h Handler) (unsubscribe func())
}

// Bus is an in-process Source. Handlers run synchronously on the goroutine
// calling Dispatch, in subscription order.
type Bus struct {
	mu       sync.Mutex
	nextID   int
	order    []int
	handlers map[int]Handler
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe adds h.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Dispatch delivers ev to every subscribed handler.
func (b *Bus) Dispatch(ev Event) {
	b.mu.Lock()
	hs := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		hs = append(hs, b.handlers[id])
	}
	b.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

// Len returns the number of subscribed handlers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}
