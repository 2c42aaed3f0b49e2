package channel

import "fmt"

// Kind selects a channel backend.
type Kind string

const (
	KindMPMC       Kind = "mpmc"
	KindBuffered   Kind = "buffered"
	KindUnbuffered Kind = "unbuffered"
)

// New creates a channel of the given kind. size only applies to KindBuffered.
func New[T any](kind Kind, size int) (Sender[T], Receiver[T], error) {
	switch kind {
	case KindMPMC:
		tx, rx := NewUnbounded[T]()
		return tx, rx, nil
	case KindBuffered:
		if size < 0 {
			return nil, nil, fmt.Errorf("invalid buffer size: %d", size)
		}
		tx, rx := NewBuffered[T](bufferSize(size))
		return tx, rx, nil
	case KindUnbuffered:
		tx, rx := NewUnbuffered[T]()
		return tx, rx, nil
	default:
		return nil, nil, fmt.Errorf("unknown channel kind: %s", kind)
	}
}
