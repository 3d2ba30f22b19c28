package mbuf

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/memkit/memorykit/memutils"
)

//go:generate mockgen -destination mocks/system_allocator.go -package mock_mbuf github.com/memkit/memorykit/mbuf SystemAllocator

// SystemAllocator supplies the raw chunks that back pool blocks. Pools only call Allocate on a free list
// miss and only call Free during compaction.
type SystemAllocator interface {
	// Allocate returns a chunk of exactly size bytes. When memory is unavailable it must return an error
	// rather than panic; the pool reports it to its caller as memutils.ErrAllocationFailure.
	Allocate(size int) ([]byte, error)
	// Free is called with a chunk previously returned by Allocate once the pool no longer needs it
	Free(chunk []byte)
}

// HeapAllocator is the default SystemAllocator. Chunks are ordinary Go heap slices; Free drops the
// pool's last reference so the garbage collector can reclaim them. An optional byte limit turns
// exhaustion into an AllocationFailure instead of unbounded growth.
//
// A HeapAllocator may be shared between pools owned by different workers to enforce a process-wide limit.
type HeapAllocator struct {
	limit     int64
	allocated atomic.Int64
}

var _ SystemAllocator = &HeapAllocator{}

// NewHeapAllocator creates a HeapAllocator that hands out at most limit bytes, or any number of bytes
// if limit is 0
func NewHeapAllocator(limit int) *HeapAllocator {
	return &HeapAllocator{limit: int64(limit)}
}

func (a *HeapAllocator) Allocate(size int) ([]byte, error) {
	if size < 1 {
		return nil, errors.Newf("invalid chunk size %d", size)
	}

	for {
		allocated := a.allocated.Load()
		next := allocated + int64(size)
		if a.limit > 0 && next > a.limit {
			return nil, errors.Wrapf(memutils.ErrAllocationFailure,
				"allocating %d bytes would exceed the memory limit of %d bytes (%d already allocated)",
				size, a.limit, allocated)
		}

		if a.allocated.CompareAndSwap(allocated, next) {
			break
		}
	}

	return make([]byte, size), nil
}

// Free returns len(chunk) bytes to the limit. The count never drops below zero, so freeing a chunk twice
// or freeing one from another allocator cannot raise the limit.
func (a *HeapAllocator) Free(chunk []byte) {
	for {
		allocated := a.allocated.Load()
		next := allocated - int64(len(chunk))
		if next < 0 {
			next = 0
		}

		if a.allocated.CompareAndSwap(allocated, next) {
			return
		}
	}
}

// AllocatedBytes returns the number of bytes currently handed out and not yet freed
func (a *HeapAllocator) AllocatedBytes() int {
	return int(a.allocated.Load())
}

// Limit returns the configured byte limit, or 0 if there is none
func (a *HeapAllocator) Limit() int {
	return int(a.limit)
}
