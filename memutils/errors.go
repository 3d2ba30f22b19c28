package memutils

import "github.com/pkg/errors"

var (
	// ErrAllocationFailure is the error returned when the system allocator cannot supply memory for a new
	// block. It is recoverable: the caller may retry, apply backpressure, or drop work.
	ErrAllocationFailure error = errors.New("system allocator could not satisfy the block request")
	// ErrCorruptionDetected marks the panic value raised when a block guard does not match, a reference count
	// underflows, or a block is released while still referenced. It is never returned as an ordinary error.
	ErrCorruptionDetected error = errors.New("memory corruption detected")
	// ErrInvalidChunkSize is returned when a pool is created with a chunk size that leaves no room for data
	ErrInvalidChunkSize error = errors.New("chunk size must be larger than the block header")
)
