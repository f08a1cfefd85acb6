// Package notify fans out values to subscribers without ever blocking the publisher.
package notify

import "sync"

// Broadcaster delivers the most recent published value to every subscriber.
//
// Each subscription has a one-slot buffer. When a subscriber falls behind, the
// stale buffered value is replaced by the newer one, so readers always observe
// the latest state and publishers never block.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[chan T]struct{}
	closed bool
}

// NewBroadcaster constructs an empty broadcaster.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[chan T]struct{})}
}

// Subscribe registers a new subscriber. The returned func unsubscribes and closes
// the channel; calling it more than once is safe. Subscribing to a stopped
// broadcaster returns an already closed channel.
func (b *Broadcaster[T]) Subscribe() (func(), <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, 1)
	if b.closed {
		close(ch)
		return func() {}, ch
	}
	b.subs[ch] = struct{}{}

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; !ok {
			return
		}
		delete(b.subs, ch)
		drainAndClose(ch)
	}
	return unsub, ch
}

// Publish delivers v to every subscriber, replacing any undelivered older value.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		// Buffer full: drop the stale value and retry once. Publish holds the lock,
		// so no other publisher can refill the slot in between.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Len returns the number of active subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// StopAll closes every subscription. Later subscriptions receive a closed channel.
func (b *Broadcaster[T]) StopAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for ch := range b.subs {
		drainAndClose(ch)
		delete(b.subs, ch)
	}
}

// drainAndClose removes any buffered value before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}
