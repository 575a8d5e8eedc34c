package transport

import (
	"fmt"
	"sync"
)

// ChanTransport is an in-process Transport. Envelopes for participants with
// an active subscription are handed to the subscriber's delivery goroutine,
// which preserves per-destination FIFO order; envelopes for everyone else
// accumulate in an inbox buffer until drained by Receive.
type ChanTransport struct {
	mu        sync.Mutex
	inboxes   map[string][]Envelope
	subs      map[string]*chanSub
	observers map[string]struct{}
	closed    bool
}

type chanSub struct {
	ch   chan Envelope
	done chan struct{}
}

// NewChanTransport creates an empty in-process transport.
func NewChanTransport() *ChanTransport {
	return &ChanTransport{
		inboxes:   make(map[string][]Envelope),
		subs:      make(map[string]*chanSub),
		observers: make(map[string]struct{}),
	}
}

// subBuffer bounds how far a slow subscriber can fall behind before Send
// blocks.
const subBuffer = 256

// Send delivers the envelope to its destination, either directly to an
// active subscriber or into the destination's buffer.
func (t *ChanTransport) Send(env Envelope) error {
	env = stamp(env)
	if err := env.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport: closed")
	}
	t.observers[env.To] = struct{}{}
	sub, ok := t.subs[env.To]
	if !ok {
		t.inboxes[env.To] = append(t.inboxes[env.To], env)
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	sub.ch <- env
	return nil
}

// Broadcast delivers the envelope to every participant the transport has
// seen: each active subscriber plus the buffer of every past Receive caller.
func (t *ChanTransport) Broadcast(env Envelope) error {
	env.To = BroadcastRecipient
	env = stamp(env)
	if err := env.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport: closed")
	}
	var targets []*chanSub
	for id := range t.observers {
		if sub, ok := t.subs[id]; ok {
			targets = append(targets, sub)
		} else {
			t.inboxes[id] = append(t.inboxes[id], env)
		}
	}
	t.mu.Unlock()

	for _, sub := range targets {
		sub.ch <- env
	}
	return nil
}

// Receive drains and returns the participant's buffered envelopes.
func (t *ChanTransport) Receive(id string) ([]Envelope, error) {
	if id == "" {
		return nil, fmt.Errorf("transport: participant id is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.observers[id] = struct{}{}
	pending := t.inboxes[id]
	delete(t.inboxes, id)
	return pending, nil
}

// Subscribe registers fn for the participant. Buffered envelopes are
// delivered first, then live sends, in order. Only one subscription per
// participant is allowed at a time.
func (t *ChanTransport) Subscribe(id string, fn func(Envelope)) (cancel func(), err error) {
	if id == "" {
		return nil, fmt.Errorf("transport: participant id is required")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport: closed")
	}
	if _, exists := t.subs[id]; exists {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport: participant %s already subscribed", id)
	}

	sub := &chanSub{
		ch:   make(chan Envelope, subBuffer),
		done: make(chan struct{}),
	}
	t.observers[id] = struct{}{}
	backlog := t.inboxes[id]
	delete(t.inboxes, id)
	t.subs[id] = sub
	t.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, env := range backlog {
			fn(env)
		}
		for {
			select {
			case env := <-sub.ch:
				fn(env)
			case <-sub.done:
				// Drain anything raced in before the cancel.
				for {
					select {
					case env := <-sub.ch:
						fn(env)
					default:
						return
					}
				}
			}
		}
	}()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
		close(sub.done)
		wg.Wait()
	}, nil
}

// Close rejects further sends and subscriptions. Buffered envelopes are
// discarded.
func (t *ChanTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	t.inboxes = make(map[string][]Envelope)
	return nil
}
