package event

import (
	"fmt"
	"log"
	"runtime/debug"
	"sync"
)

// Handler consumes a published event.
type Handler func(Event)

// wildcard is the internal key under which SubscribeAll handlers live.
const wildcard = "*"

// entry is one registered handler in a per-type list.
type entry struct {
	id      string
	handler Handler
}

// Bus is a synchronous in-process pub-sub bus. Handlers run on the
// publisher's goroutine in registration order, specific subscribers before
// wildcard ones. A panicking handler is recovered and logged so it cannot
// stop delivery to the rest.
type Bus struct {
	mu    sync.RWMutex
	seq   uint64
	lists map[string][]entry // event type (or wildcard) to ordered handlers
	byID  map[string]string  // subscription id to its list key
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		lists: make(map[string][]entry),
		byID:  make(map[string]string),
	}
}

// Subscribe registers a handler for one event type, such as
// TypeTaskCompleted. The returned id cancels the subscription via
// Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := fmt.Sprintf("sub-%d", b.seq)
	b.lists[eventType] = append(b.lists[eventType], entry{id: id, handler: handler})
	b.byID[id] = eventType
	return id
}

// SubscribeAll registers a handler that receives every published event.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe(wildcard, handler)
}

// Unsubscribe cancels a subscription by id. Returns false for an unknown id.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	key, ok := b.byID[id]
	if !ok {
		return false
	}
	delete(b.byID, id)

	list := b.lists[key]
	for i, e := range list {
		if e.id == id {
			b.lists[key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return true
}

// Publish delivers the event to every matching handler, specific
// subscribers first, then wildcard subscribers, each group in registration
// order. The handler lists are snapshotted so handlers may subscribe or
// unsubscribe during delivery.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	specific := append([]entry(nil), b.lists[e.EventType()]...)
	all := append([]entry(nil), b.lists[wildcard]...)
	b.mu.RUnlock()

	for _, sub := range specific {
		deliver(sub.handler, e)
	}
	for _, sub := range all {
		deliver(sub.handler, e)
	}
}

func deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: event handler panicked for %s: %v\n%s",
				e.EventType(), r, debug.Stack())
		}
	}()
	h(e)
}

// Clear drops all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists = make(map[string][]entry)
	b.byID = make(map[string]string)
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}
