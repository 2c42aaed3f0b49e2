package channel

import "github.com/OCAP2/mpmc/pkg/mpmc"

// unboundedSender adapts *mpmc.Sender to Sender.
type unboundedSender[T any] struct {
	*mpmc.Sender[T]
}

func (s unboundedSender[T]) Clone() Sender[T] {
	return unboundedSender[T]{s.Sender.Clone()}
}

// unboundedReceiver adapts *mpmc.Receiver to Receiver.
type unboundedReceiver[T any] struct {
	*mpmc.Receiver[T]
}

func (r unboundedReceiver[T]) Clone() Receiver[T] {
	return unboundedReceiver[T]{r.Receiver.Clone()}
}

// NewUnbounded creates a channel backed by an mpmc queue. Send never blocks.
func NewUnbounded[T any]() (Sender[T], Receiver[T]) {
	tx, rx := mpmc.New[T]()
	return unboundedSender[T]{tx}, unboundedReceiver[T]{rx}
}
