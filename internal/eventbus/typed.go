// Package eventbus provides an in-process fan-out bus used to hand remote
// commands from the intake channels (poll, MQTT) to their consumers.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 16

// TypedBus is a type-safe publish/subscribe bus for events of type T.
// Publish never blocks: an event is dropped for a subscriber whose queue is
// full, and counted in Dropped.
type TypedBus[T any] struct {
	mu      sync.RWMutex
	subs    []chan T
	closed  bool
	buffer  int
	dropped atomic.Uint64
}

// NewTyped creates a bus with DefaultBuffer slots per subscriber.
func NewTyped[T any]() *TypedBus[T] { return NewTypedWithBuffer[T](DefaultBuffer) }

// NewTypedWithBuffer creates a bus with the given per-subscriber buffer.
func NewTypedWithBuffer[T any](buffer int) *TypedBus[T] {
	if buffer < 0 {
		buffer = 0
	}
	return &TypedBus[T]{buffer: buffer}
}

// Publish sends e to every subscriber.
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

// Subscribers returns the number of active subscribers.
func (b *TypedBus[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Subscribe registers a subscriber and returns its channel. Subscribing to a
// closed bus returns a closed channel.
func (b *TypedBus[T]) Subscribe() <-chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Dropped returns how many per-subscriber deliveries were skipped.
func (b *TypedBus[T]) Dropped() uint64 { return b.dropped.Load() }

// Close closes the bus and all subscriber channels.
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
