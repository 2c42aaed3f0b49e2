// Package queue provides the FIFO storage used behind the channel lock.
package queue

import "github.com/gammazero/deque"

// Deque is a generic FIFO queue over a ring buffer that grows on push and
// shrinks as it drains. It is not safe for concurrent use; callers guard it
// with their own lock.
type Deque[T any] struct {
	d deque.Deque[T]
}

// New creates a new empty queue.
func New[T any]() *Deque[T] {
	return &Deque[T]{}
}

// PushBack appends items to the tail of the queue.
func (q *Deque[T]) PushBack(items ...T) {
	for _, item := range items {
		q.d.PushBack(item)
	}
}

// PopFront removes and returns the head item. ok is false if the queue is empty.
func (q *Deque[T]) PopFront() (item T, ok bool) {
	if q.d.Len() == 0 {
		return item, false
	}
	return q.d.PopFront(), true
}

// Empty returns true if the queue has no items.
func (q *Deque[T]) Empty() bool {
	return q.d.Len() == 0
}

// Len returns the number of items in the queue.
func (q *Deque[T]) Len() int {
	return q.d.Len()
}

// Cap returns the capacity of the underlying buffer.
func (q *Deque[T]) Cap() int {
	return q.d.Cap()
}

// Clear removes all items and releases the buffer.
func (q *Deque[T]) Clear() {
	q.d = deque.Deque[T]{}
}

// Drain returns all items in FIFO order and clears the queue.
func (q *Deque[T]) Drain() []T {
	result := make([]T, q.d.Len())
	for i := range result {
		result[i] = q.d.At(i)
	}
	q.Clear()
	return result
}
