package mpmc

import "sync/atomic"

// Sender is the producing end of a channel. The channel stays open for
// reading as long as at least one Sender has not been closed.
type Sender[T any] struct {
	shared   *shared[T]
	released atomic.Bool
}

// Send appends v to the tail of the queue and wakes at most one blocked
// receiver. It never blocks and never fails, even if no Receiver is left.
func (tx *Sender[T]) Send(v T) {
	tx.mustBeLive()

	s := tx.shared
	s.mu.Lock()
	s.queue.PushBack(v)
	s.mu.Unlock()

	s.available.Signal()
}

// Clone registers a new producer and returns its handle.
func (tx *Sender[T]) Clone() *Sender[T] {
	tx.mustBeLive()

	s := tx.shared
	s.mu.Lock()
	s.senders++
	s.mu.Unlock()

	return &Sender[T]{shared: s}
}

// Close releases this handle. When it was the last live Sender, every
// blocked receiver is woken so it can observe the end of the channel.
// Closing an already closed handle does nothing.
func (tx *Sender[T]) Close() {
	if !tx.released.CompareAndSwap(false, true) {
		return
	}

	s := tx.shared
	s.mu.Lock()
	s.senders--
	last := s.senders == 0
	s.mu.Unlock()

	if last {
		s.available.Broadcast()
	}
}

// Len returns the number of queued items.
func (tx *Sender[T]) Len() int {
	return tx.shared.len()
}

// Senders returns the number of live Sender handles on the channel.
func (tx *Sender[T]) Senders() int {
	s := tx.shared
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.senders
}

func (tx *Sender[T]) mustBeLive() {
	if tx.released.Load() {
		panic(ErrReleased)
	}
}
