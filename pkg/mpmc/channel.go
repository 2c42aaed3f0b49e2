package mpmc

import (
	"errors"
	"sync"

	"github.com/OCAP2/mpmc/internal/queue"
)

var (
	// ErrClosed is returned by the non-blocking and context-aware receive forms
	// once the queue is drained and no Sender remains.
	ErrClosed = errors.New("mpmc: channel closed")

	// ErrEmpty is returned by TryRecv when the queue is empty but Senders remain.
	ErrEmpty = errors.New("mpmc: channel empty")

	// ErrReleased is the panic value for using a handle after its Close.
	ErrReleased = errors.New("mpmc: use of released handle")
)

// shared is the state every handle of one channel points at.
// queue and senders are only read or written while mu is held.
type shared[T any] struct {
	mu      sync.Mutex
	queue   queue.Deque[T]
	senders int

	// available is bound to mu. Signal and Broadcast are called without
	// holding mu so woken receivers can take the lock straight away.
	available *sync.Cond
}

// New creates a channel and returns its first Sender and Receiver.
func New[T any]() (*Sender[T], *Receiver[T]) {
	s := &shared[T]{senders: 1}
	s.available = sync.NewCond(&s.mu)
	return &Sender[T]{shared: s}, &Receiver[T]{shared: s}
}

func (s *shared[T]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}
