// Package channel provides generic endpoint interfaces for decoupled communication.
package channel

// Sender provides write access to a channel.
// Every clone must be closed; the channel ends when the last one is.
type Sender[T any] interface {
	Send(T)
	Clone() Sender[T]
	Close()
}

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	// Recv blocks for the next item; ok is false once the channel has ended.
	Recv() (v T, ok bool)
	Clone() Receiver[T]
	Close()
	Len() int
}
