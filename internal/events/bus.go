// Package events is the process-wide publish/subscribe channel that carries
// audio engine events to registered listeners.
package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

const defaultQueueSize = 256

// Listener receives the normalized payload of one event
type Listener func(payload any)

// Subscription is the disposable handle for one (kind, listener) registration
type Subscription struct {
	id       uint64
	kind     Kind
	listener Listener
	bus      *Bus

	once    sync.Once
	removed atomic.Bool
}

// Kind returns the event kind this subscription listens to
func (s *Subscription) Kind() Kind {
	return s.kind
}

// Removed reports whether Remove has been called
func (s *Subscription) Removed() bool {
	return s.removed.Load()
}

// Remove unregisters the listener. Calling it more than once is harmless.
func (s *Subscription) Remove() {
	s.once.Do(func() {
		s.removed.Store(true)
		s.bus.remove(s)
	})
}

type envelope struct {
	kind    Kind
	payload any
}

// Bus delivers named events to the listeners registered for them.
//
// Emit delivers synchronously on the calling goroutine. Post enqueues the
// event for the goroutine running Run (or for Drain), which keeps every
// delivery on a single goroutine in emission order.
type Bus struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[Kind][]*Subscription

	schema *Schema
	queue  chan envelope
	done   chan struct{}
	closed atomic.Bool

	dropped atomic.Int64
}

// NewBus creates an event bus with the default queue size
func NewBus() *Bus {
	return NewBusWithQueue(defaultQueueSize)
}

// NewBusWithQueue creates an event bus whose Post queue holds size events
func NewBusWithQueue(size int) *Bus {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Bus{
		listeners: make(map[Kind][]*Subscription),
		schema:    NewSchema(),
		queue:     make(chan envelope, size),
		done:      make(chan struct{}),
	}
}

// AddListener registers listener for kind and returns its subscription
func (b *Bus) AddListener(kind Kind, listener Listener) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:       b.nextID,
		kind:     kind,
		listener: listener,
		bus:      b,
	}
	b.listeners[kind] = append(b.listeners[kind], sub)

	slog.Debug("Event listener added", "kind", kind, "subscription", sub.id)
	return sub
}

// ListenerCount returns the number of live listeners for kind
func (b *Bus) ListenerCount(kind Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[kind])
}

// Dropped returns how many events were discarded because their payload was invalid
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.listeners[sub.kind]
	for i, s := range subs {
		if s.id == sub.id {
			// Copy so snapshots taken by an in-flight Emit stay intact
			next := make([]*Subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.listeners, sub.kind)
			} else {
				b.listeners[sub.kind] = next
			}
			break
		}
	}

	slog.Debug("Event listener removed", "kind", sub.kind, "subscription", sub.id)
}

// Emit validates payload and delivers it to every listener of kind, in
// registration order, on the calling goroutine
func (b *Bus) Emit(kind Kind, payload any) {
	normalized, err := b.schema.Normalize(kind, payload)
	if err != nil {
		b.dropped.Add(1)
		slog.Warn("Dropping event with invalid payload", "kind", kind, "error", err)
		return
	}

	b.mu.Lock()
	subs := b.listeners[kind]
	b.mu.Unlock()

	for _, sub := range subs {
		// A listener earlier in this delivery may have removed a later one
		if sub.Removed() {
			continue
		}
		sub.listener(normalized)
	}
}

// Post enqueues an event for ordered delivery by Run or Drain. Events
// posted after Close are discarded.
func (b *Bus) Post(kind Kind, payload any) {
	if b.closed.Load() {
		slog.Debug("Bus closed, discarding event", "kind", kind)
		return
	}

	select {
	case b.queue <- envelope{kind: kind, payload: payload}:
	case <-b.done:
		slog.Debug("Bus closed, discarding event", "kind", kind)
	}
}

// Run delivers posted events until ctx is cancelled or the bus is closed
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return nil
		case env := <-b.queue:
			b.Emit(env.kind, env.payload)
		}
	}
}

// Drain delivers every event currently queued and returns how many were delivered
func (b *Bus) Drain() int {
	n := 0
	for {
		select {
		case env := <-b.queue:
			b.Emit(env.kind, env.payload)
			n++
		default:
			return n
		}
	}
}

// Close stops Run and makes further posts no-ops
func (b *Bus) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.done)
	}
}
