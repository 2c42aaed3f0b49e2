package mpmc

import (
	"context"
	"iter"
	"sync/atomic"
)

// Receiver is the consuming end of a channel. Clones compete for items.
type Receiver[T any] struct {
	shared   *shared[T]
	released atomic.Bool
}

// Recv returns the next item in FIFO order. When the queue is empty and a
// Sender is still live it blocks until an item arrives or the last Sender is
// closed. ok is false once the queue is drained and no Sender remains; that
// state is final.
func (rx *Receiver[T]) Recv() (v T, ok bool) {
	rx.mustBeLive()

	s := rx.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if v, ok = s.queue.PopFront(); ok {
			return v, true
		}
		if s.senders == 0 {
			return v, false
		}
		// a wake only means "look again": another receiver may already
		// have taken the item
		s.available.Wait()
	}
}

// RecvContext is Recv that also gives up when ctx is done, returning
// ctx.Err(). It returns ErrClosed at the end of the channel.
func (rx *Receiver[T]) RecvContext(ctx context.Context) (v T, err error) {
	rx.mustBeLive()

	s := rx.shared

	// Taking the lock before broadcasting means the waiter is either parked
	// already or has not checked ctx yet, so the wake cannot be lost.
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.mu.Unlock()
		s.available.Broadcast()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if item, ok := s.queue.PopFront(); ok {
			return item, nil
		}
		if s.senders == 0 {
			return v, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return v, err
		}
		s.available.Wait()
	}
}

// TryRecv returns the head item without blocking. It returns ErrEmpty when
// nothing is queued but Senders remain, and ErrClosed at the end of the
// channel.
func (rx *Receiver[T]) TryRecv() (v T, err error) {
	rx.mustBeLive()

	s := rx.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	if item, ok := s.queue.PopFront(); ok {
		return item, nil
	}
	if s.senders == 0 {
		return v, ErrClosed
	}
	return v, ErrEmpty
}

// Drain removes and returns everything currently queued without blocking.
func (rx *Receiver[T]) Drain() []T {
	rx.mustBeLive()

	s := rx.shared
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Drain()
}

// All returns an iterator over received items that ends when the channel is
// closed. Breaking out of the loop leaves the remaining items queued.
func (rx *Receiver[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok := rx.Recv()
			if !ok || !yield(v) {
				return
			}
		}
	}
}

// Clone returns another Receiver on the same channel.
func (rx *Receiver[T]) Clone() *Receiver[T] {
	rx.mustBeLive()
	return &Receiver[T]{shared: rx.shared}
}

// Close releases this handle. Queued items and Senders are unaffected.
func (rx *Receiver[T]) Close() {
	rx.released.Store(true)
}

// Len returns the number of queued items.
func (rx *Receiver[T]) Len() int {
	return rx.shared.len()
}

func (rx *Receiver[T]) mustBeLive() {
	if rx.released.Load() {
		panic(ErrReleased)
	}
}
