package mbuf

type AllocateBlockMemoryCallback func(
	pool *Pool,
	blockID int,
	size int,
	userData interface{},
)

type FreeBlockMemoryCallback func(
	pool *Pool,
	blockID int,
	size int,
	userData interface{},
)

// MemoryCallbackOptions holds callbacks that run when a pool allocates a chunk from its SystemAllocator
// or returns one during compaction. Reusing a block from the free list runs neither callback.
type MemoryCallbackOptions struct {
	Allocate AllocateBlockMemoryCallback
	Free     FreeBlockMemoryCallback
	UserData interface{}
}

type memoryCallbacks struct {
	Callbacks *MemoryCallbackOptions
	Pool      *Pool
}

func (c *memoryCallbacks) Allocate(block *Block) {
	if c.Callbacks != nil && c.Callbacks.Allocate != nil {
		c.Callbacks.Allocate(c.Pool, block.id, len(block.chunk), c.Callbacks.UserData)
	}
}

func (c *memoryCallbacks) Free(block *Block) {
	if c.Callbacks != nil && c.Callbacks.Free != nil {
		c.Callbacks.Free(c.Pool, block.id, len(block.chunk), c.Callbacks.UserData)
	}
}
