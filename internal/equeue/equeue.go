// Package equeue provides an unbounded in-process FIFO.
package equeue

import (
	"context"
	"errors"
	"sync"

	"github.com/gammazero/deque"
)

var (
	ErrQueueClosed = errors.New("queue closed")
)

// Queue is an unbounded multi-producer FIFO. Push never blocks.
type Queue[T any] struct {
	mu     sync.Mutex
	items  *deque.Deque[T]
	notify chan struct{}
	done   chan struct{}
	closed bool
}

func New[T any]() *Queue[T] {
	return &Queue[T]{
		items:  deque.New[T](),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items.PushBack(item)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}

	return nil
}

// Pop blocks until an item is available, ctx is done, or the queue is
// closed and drained.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			item := q.items.PopFront()
			more := q.items.Len() > 0
			q.mu.Unlock()

			if more {
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return item, nil
		}
		closed := q.closed
		q.mu.Unlock()

		var zero T
		if closed {
			return zero, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-q.notify:
		case <-q.done:
		}
	}
}

// Close stops accepting new items. Items already queued can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Len reports the number of items waiting to be popped.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.items.Len()
}
