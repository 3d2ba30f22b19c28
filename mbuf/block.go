package mbuf

import (
	"github.com/cockroachdb/errors"
	"github.com/memkit/memorykit/memutils"
)

const (
	// BlockHeaderSize is the number of bytes of every chunk reserved for block metadata. The data
	// region of a block is the chunk minus this header.
	BlockHeaderSize int = 64

	blockMagic uint32 = 0xdeadbeef
	freedMagic uint32 = 0xfeeefeee
)

// Block is a fixed-capacity unit of memory handed out by a Pool. It carries a reference count: the
// block returns to its pool's free list when the count drops to zero. Blocks are normally wrapped in
// Views rather than used directly.
//
// A Block is never reused once compaction returns its chunk to the system, so stale handles keep
// their freed guard and are always detected.
type Block struct {
	pool     *Pool
	id       int
	magic    uint32
	refCount int

	chunk []byte
	data  []byte

	provenance error
}

func (b *Block) init(pool *Pool, id int, chunk []byte) {
	if b.chunk != nil {
		panic("attempting to initialize a block that is already in use")
	}

	b.pool = pool
	b.id = id
	b.magic = blockMagic
	b.refCount = 0
	b.chunk = chunk
	b.data = chunk[:pool.dataSize:pool.dataSize]
	b.provenance = nil

	if memutils.DebugMargin > 0 {
		memutils.WriteMagicValue(b.chunk, pool.dataSize)
	}
}

func (b *Block) destroy() {
	if b.chunk == nil {
		panic("attempting to destroy a block that has no backing chunk")
	}

	b.magic = freedMagic
	b.pool = nil
	b.chunk = nil
	b.data = nil
	b.provenance = nil
}

func corruptionf(format string, args ...interface{}) error {
	return errors.Mark(errors.AssertionFailedWithDepthf(1, format, args...), memutils.ErrCorruptionDetected)
}

func (b *Block) checkGuard(operation string) {
	if b.magic != blockMagic {
		panic(corruptionf("MEMORY CORRUPTION DETECTED: block %d has guard %#x during %s", b.id, b.magic, operation))
	}

	if memutils.DebugMargin > 0 && !memutils.ValidateMagicValue(b.chunk, len(b.data)) {
		panic(corruptionf("MEMORY CORRUPTION DETECTED: block %d was overrun past its data region during %s", b.id, operation))
	}
}

func (b *Block) owner() *Pool {
	pool := b.pool
	if pool == nil {
		panic(corruptionf("MEMORY CORRUPTION DETECTED: block %d is not owned by any pool", b.id))
	}
	return pool
}

// Ref adds a reference to the block. The caller must already hold a reference.
func (b *Block) Ref() {
	b.refWithDepth(1)
}

func (b *Block) refWithDepth(skip int) {
	pool := b.owner()
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	b.ref(skip + 1)
}

func (b *Block) ref(skip int) {
	b.checkGuard("Ref")
	if b.refCount < 1 {
		panic(corruptionf("block %d: reference taken on a block with no live references", b.id))
	}

	b.refCount++

	if b.pool.tracker != nil {
		b.pool.tracker.Referenced(b, skip+1)
	}
}

// Unref drops a reference to the block. When the last reference is dropped, the block returns to its
// pool's free list. Dropping a reference that was never taken panics.
func (b *Block) Unref() {
	pool := b.owner()
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	b.checkGuard("Unref")
	if b.refCount == 0 {
		panic(corruptionf("block %d: reference count underflow", b.id))
	}

	b.refCount--
	if b.refCount == 0 {
		pool.release(b)
	}
}

// RefCount returns the number of live references to the block
func (b *Block) RefCount() int {
	pool := b.pool
	if pool == nil {
		return b.refCount
	}

	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	return b.refCount
}

// ID returns a number identifying the block within its pool. IDs are never reused by a pool.
func (b *Block) ID() int { return b.id }

// Pool returns the pool that owns the block
func (b *Block) Pool() *Pool { return b.pool }

// Len returns the size of the block's data region in bytes
func (b *Block) Len() int { return len(b.data) }

// Bytes returns the block's whole data region. The slice's capacity ends with the data region, so
// appending to it never writes into the block header.
func (b *Block) Bytes() []byte { return b.data }

// Provenance returns the stack trace of the most recent acquisition or reference of this block, or an
// empty string if the pool was not created with CreateCaptureProvenance.
func (b *Block) Provenance() string {
	pool := b.pool
	if pool == nil {
		return ""
	}

	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	return provenanceString(b.provenance)
}
