//go:build debug

package channel

// bufferSize returns the Go channel size used for KindBuffered.
// In debug builds buffered channels are unbuffered (ignores size) so that
// producer/consumer hand-offs happen one at a time.
func bufferSize(size int) int {
	return 0
}
