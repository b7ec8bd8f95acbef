// Package pool recycles fixed-size byte buffers used as block payloads.
package pool

// Pool hands out buffers of a fixed length.
type Pool interface {
	// Get returns a buffer of the pool's length. It may block until a buffer is
	// returned; ok is false if done was closed first.
	Get(done <-chan struct{}) (buf []byte, ok bool)

	// Put returns a buffer to the pool. The caller must not use buf afterward.
	Put(buf []byte)
}
