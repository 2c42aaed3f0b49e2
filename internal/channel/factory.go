//go:build !debug

package channel

// bufferSize returns the Go channel size used for KindBuffered.
func bufferSize(size int) int {
	return size
}
