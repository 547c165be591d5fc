// Package event provides a pub/sub bus for the runtime's SSE event kinds,
// built on watermill's gochannel for infrastructure while preserving
// direct-call dispatch semantics so subscribers keep full type information
// on types.Event.Data.
package event

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/prismrun/prism/pkg/types"
)

// Subscriber is a function that receives events.
type Subscriber func(types.Event)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus fans a published types.Event out to every subscriber registered for
// its kind, plus every global subscriber. One Bus is shared by a session's
// Agent Loop (publisher) and its SSE Emitter (subscriber).
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel // infrastructure hook, not on the hot path

	subscribers map[types.EventKind][]subscriberEntry
	global      []subscriberEntry

	nextID       uint64
	closed       bool
	closedCancel context.CancelFunc
	closedCtx    context.Context
}

var globalBus = newBus()

func newBus() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers:  make(map[types.EventKind][]subscriberEntry),
		closedCtx:    ctx,
		closedCancel: cancel,
	}
}

// NewBus creates a standalone Bus (one per session, so a slow client on
// session A's stream can never backpressure session B's).
func NewBus() *Bus {
	return newBus()
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers fn for one event kind. The returned func unsubscribes.
func Subscribe(kind types.EventKind, fn Subscriber) func() {
	return globalBus.Subscribe(kind, fn)
}

func (b *Bus) Subscribe(kind types.EventKind, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.subscribers[kind] = append(b.subscribers[kind], subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribe(kind, id) }
}

// SubscribeAll registers fn for every event kind.
func SubscribeAll(fn Subscriber) func() {
	return globalBus.SubscribeAll(fn)
}

func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribeGlobal(id) }
}

func (b *Bus) unsubscribe(kind types.EventKind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[kind]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[kind] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			break
		}
	}
}

// Publish delivers ev to every matching subscriber, each in its own
// goroutine, and returns without waiting on them.
func Publish(ev types.Event) {
	globalBus.Publish(ev)
}

func (b *Bus) Publish(ev types.Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := b.collect(ev.Kind)
	b.mu.RUnlock()

	for _, sub := range subs {
		go sub(ev)
	}
}

// PublishSync delivers ev to every matching subscriber synchronously, in
// registration order, before returning. The Agent Loop uses this so a
// session's event ordering on the wire always matches emission order.
func PublishSync(ev types.Event) {
	globalBus.PublishSync(ev)
}

func (b *Bus) PublishSync(ev types.Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := b.collect(ev.Kind)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub(ev)
	}
}

func (b *Bus) collect(kind types.EventKind) []Subscriber {
	subs := make([]Subscriber, 0, len(b.subscribers[kind])+len(b.global))
	for _, entry := range b.subscribers[kind] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	return subs
}

// Reset clears all subscribers from the global bus. For tests.
func Reset() {
	globalBus.mu.Lock()
	globalBus.closed = true
	globalBus.closedCancel()
	globalBus.mu.Unlock()

	_ = globalBus.pubsub.Close()
	time.Sleep(10 * time.Millisecond)

	globalBus = newBus()
}

// Close closes the bus and drops all its subscribers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.closedCancel()
	b.subscribers = make(map[types.EventKind][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}

// PubSub exposes the underlying watermill GoChannel for advanced use —
// middleware, routing, or a future distributed broker swap.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}

func PubSub() *gochannel.GoChannel {
	return globalBus.PubSub()
}
