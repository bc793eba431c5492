// Package relay provides an unbounded FIFO channel used to rehost
// single-consumer streams (adapter events, GATT notifications) so they can
// sit in a select next to other sources without producers ever blocking.
package relay

import "sync"

// Queue is an unbounded FIFO. Push never blocks; items come out of Out in
// push order.
type Queue[T any] struct {
	out   chan T
	ready chan struct{}
	done  chan struct{}

	mu       sync.Mutex
	items    []T
	closed   bool
	stopOnce sync.Once
}

// NewQueue creates a queue and starts its delivery goroutine.
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{
		out:   make(chan T),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go q.pump()
	return q
}

// Forward takes ownership of src and republishes every value on a new
// queue. When src is closed the queue drains and then closes Out.
func Forward[T any](src <-chan T) *Queue[T] {
	q := NewQueue[T]()
	go func() {
		for v := range src {
			if !q.Push(v) {
				return
			}
		}
		q.Close()
	}()
	return q
}

// Out returns the delivery channel. It is closed once the queue has been
// closed and drained, or stopped.
func (q *Queue[T]) Out() <-chan T {
	return q.out
}

// Push appends v. It reports false if the queue no longer accepts items.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.wake()
	return true
}

// Len returns the number of items not yet delivered.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting items. Pending items are still delivered before
// Out is closed. It is safe to call multiple times.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Stop closes the queue and abandons pending items. Use it when the
// consumer has gone away.
func (q *Queue[T]) Stop() {
	q.Close()
	q.stopOnce.Do(func() {
		close(q.done)
	})
}

func (q *Queue[T]) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-q.ready:
				continue
			case <-q.done:
				return
			}
		}
		item := q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- item:
		case <-q.done:
			return
		}
	}
}
