package channel

import (
	"sync"
	"sync/atomic"

	"github.com/OCAP2/mpmc/pkg/mpmc"
)

// chanState is shared by every handle of a native Go channel.
type chanState[T any] struct {
	ch chan T

	mu      sync.Mutex
	senders int
}

// bufferedSender ref-counts producers over a native channel and closes it
// when the last one is released.
type bufferedSender[T any] struct {
	state    *chanState[T]
	released atomic.Bool
}

// Send blocks while the buffer is full.
func (s *bufferedSender[T]) Send(v T) {
	s.mustBeLive()
	s.state.ch <- v
}

func (s *bufferedSender[T]) Clone() Sender[T] {
	s.mustBeLive()
	s.state.mu.Lock()
	s.state.senders++
	s.state.mu.Unlock()
	return &bufferedSender[T]{state: s.state}
}

func (s *bufferedSender[T]) Close() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.senders--
	if s.state.senders == 0 {
		close(s.state.ch)
	}
}

// mustBeLive panics with the same value as an mpmc handle used after Close.
func (s *bufferedSender[T]) mustBeLive() {
	if s.released.Load() {
		panic(mpmc.ErrReleased)
	}
}

type bufferedReceiver[T any] struct {
	state *chanState[T]
}

func (r *bufferedReceiver[T]) Recv() (T, bool) {
	v, ok := <-r.state.ch
	return v, ok
}

func (r *bufferedReceiver[T]) Clone() Receiver[T] {
	return &bufferedReceiver[T]{state: r.state}
}

func (r *bufferedReceiver[T]) Close() {}

// Len returns the number of items currently in the buffer
func (r *bufferedReceiver[T]) Len() int {
	return len(r.state.ch)
}

// NewBuffered creates a channel backed by a Go channel with the given size.
// Send blocks while the buffer is full.
func NewBuffered[T any](size int) (Sender[T], Receiver[T]) {
	state := &chanState[T]{ch: make(chan T, size), senders: 1}
	return &bufferedSender[T]{state: state}, &bufferedReceiver[T]{state: state}
}
