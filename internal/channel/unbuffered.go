package channel

// NewUnbuffered creates a channel backed by an unbuffered Go channel.
// Every Send blocks until a receiver takes the item.
func NewUnbuffered[T any]() (Sender[T], Receiver[T]) {
	return NewBuffered[T](0)
}
