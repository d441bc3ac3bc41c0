// Package eventbus fans in-process events out to subscribers. Slow
// subscribers miss events rather than stall publishers; the bus counts what
// it drops.
package eventbus

import (
	"slices"
	"sync"
	"sync/atomic"
)

const defaultBuffer = 8

// TypedBus delivers events of type T to every current subscriber.
type TypedBus[T any] struct {
	buffer  int
	dropped atomic.Uint64

	mu     sync.RWMutex
	subs   []chan T
	closed bool
}

// NewTyped returns a bus with the default per-subscriber buffer.
func NewTyped[T any]() *TypedBus[T] { return NewTypedBuffered[T](defaultBuffer) }

// NewTypedBuffered returns a bus whose subscribers each hold up to size
// undelivered events.
func NewTypedBuffered[T any](size int) *TypedBus[T] {
	return &TypedBus[T]{buffer: max(size, 1)}
}

// Publish offers e to every subscriber without blocking. Subscribers with a
// full buffer miss it.
func (b *TypedBus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe returns a new subscription channel. After Close it returns an
// already closed channel.
func (b *TypedBus[T]) Subscribe() <-chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe ends the subscription and closes its channel.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := slices.IndexFunc(b.subs, func(ch chan T) bool { return ch == sub })
	if i < 0 {
		return
	}
	close(b.subs[i])
	b.subs = slices.Delete(b.subs, i, i+1)
}

// Subscribers returns the number of active subscriptions.
func (b *TypedBus[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was
// full.
func (b *TypedBus[T]) Dropped() uint64 { return b.dropped.Load() }

// Close ends every subscription. Publishing afterwards is a no-op.
func (b *TypedBus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
