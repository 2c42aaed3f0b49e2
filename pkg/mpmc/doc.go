// Package mpmc provides an unbounded, thread-safe, multi-producer
// multi-consumer FIFO channel.
//
// New returns one Sender and one Receiver bound to the same shared state.
// Either handle can be cloned. Every Sender clone counts towards the set of
// live producers; once the last Sender is closed and the queue is drained,
// every Receiver observes the end of the channel and Recv returns false from
// then on. Receivers compete for items: each item is delivered to exactly one
// Recv call.
//
// Releasing a handle is explicit:
//
//	tx, rx := mpmc.New[int]()
//	go func() {
//		defer tx.Close()
//		for i := range 10 {
//			tx.Send(i)
//		}
//	}()
//	for v := range rx.All() {
//		fmt.Println(v)
//	}
//
// A Sender that is never closed keeps the channel open forever and any
// receiver blocked in Recv stays blocked.
//
// Send does not know whether any Receiver is still alive. Items sent after the
// last Receiver is gone stay queued until the channel becomes unreachable, so
// producers must stop (and close their Senders) once nobody is consuming.
package mpmc
