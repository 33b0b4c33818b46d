// ABOUTME: Lossy multicast queue with bounded capacity
// ABOUTME: Publishers never block; lagging subscribers skip ahead and are told how much they missed
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Recv once the queue has been closed and drained
var ErrClosed = errors.New("queue closed")

// LagError reports that a subscriber fell behind and items were dropped.
// The subscription stays usable; the next Recv returns the oldest item
// still buffered.
type LagError struct {
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("subscriber lagged, %d items dropped", e.Missed)
}

// Queue is a fixed-capacity ring shared by one or more publishers and any
// number of subscribers. Each subscriber sees items in publish order.
type Queue[T any] struct {
	mu     sync.Mutex
	ring   []T
	next   uint64        // sequence number of the next published item
	notify chan struct{} // closed and replaced on every publish
	closed bool
}

// New creates a queue retaining at most capacity items per subscriber
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		ring:   make([]T, capacity),
		notify: make(chan struct{}),
	}
}

// Publish appends an item, overwriting the oldest one when the ring is full.
// It never blocks on subscribers.
func (q *Queue[T]) Publish(item T) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.ring[q.next%uint64(len(q.ring))] = item
	q.next++
	wake := q.notify
	q.notify = make(chan struct{})
	q.mu.Unlock()

	close(wake)
}

// Close wakes every subscriber; Recv returns ErrClosed after the remaining
// buffered items are consumed.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

// Published returns the total number of items published so far
func (q *Queue[T]) Published() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.next
}

// Subscribe returns a handle that receives items published from now on
func (q *Queue[T]) Subscribe() *Subscription[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return &Subscription[T]{queue: q, next: q.next}
}

// Subscription is a single consumer's cursor into the queue. It must not be
// shared between goroutines.
type Subscription[T any] struct {
	queue *Queue[T]
	next  uint64
}

// Recv returns the next item, blocking until one is published. If the
// subscriber has fallen more than the queue capacity behind it returns a
// *LagError and moves to the oldest retained item.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	q := s.queue

	for {
		q.mu.Lock()
		size := uint64(len(q.ring))
		if q.next > size && s.next < q.next-size {
			oldest := q.next - size
			missed := oldest - s.next
			s.next = oldest
			q.mu.Unlock()
			return zero, &LagError{Missed: missed}
		}
		if s.next < q.next {
			item := q.ring[s.next%size]
			s.next++
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		wait := q.notify
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}
