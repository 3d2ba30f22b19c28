package mbuf

import (
	"github.com/cockroachdb/errors"
	"github.com/memkit/memorykit/memutils"
	"github.com/memkit/memorykit/mbuf/internal/utils"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific pool behaviors to activate or deactivate
type CreateFlags int32

var poolCreateFlagsMapping = newFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	poolCreateFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return poolCreateFlagsMapping.FlagsToString(f)
}

const (
	// CreateSynchronized guards the pool and the reference counts of its blocks with a mutex. Pools are
	// meant to be owned by a single worker, so this is off by default; turn it on only when one pool
	// must be shared between goroutines.
	CreateSynchronized CreateFlags = 1 << iota
	// CreateTrackActiveBlocks keeps a registry of every active block, which can be visited with
	// Pool.VisitActiveBlocks and is reported by Pool.Destroy and Pool.BuildStatsString.
	CreateTrackActiveBlocks
	// CreateCaptureProvenance records a stack trace each time a block is acquired or referenced, available
	// through Block.Provenance. It implies CreateTrackActiveBlocks. Capturing stacks is expensive and
	// intended for hunting dangling references.
	CreateCaptureProvenance
)

func init() {
	CreateSynchronized.Register("CreateSynchronized")
	CreateTrackActiveBlocks.Register("CreateTrackActiveBlocks")
	CreateCaptureProvenance.Register("CreateCaptureProvenance")
}

const (
	// DefaultChunkSize is the chunk size used when CreateOptions.ChunkSize is 0. It is equal to 16Kb.
	DefaultChunkSize int = 16 * 1024
)

// CreateOptions contains optional settings when creating a pool
type CreateOptions struct {
	// Flags indicates specific pool behaviors to activate or deactivate
	Flags CreateFlags
	// ChunkSize is the number of bytes allocated from the system for each block, including
	// BlockHeaderSize bytes of metadata. The usable data size of every block is ChunkSize - BlockHeaderSize.
	ChunkSize int

	// SystemAllocator supplies the memory behind each block. If it is nil, a HeapAllocator is used.
	SystemAllocator SystemAllocator
	// MemoryLimit is the maximum number of bytes the default HeapAllocator will hand out, or 0 for no
	// limit. Acquisitions beyond the limit fail with memutils.ErrAllocationFailure. It may not be combined
	// with a custom SystemAllocator.
	MemoryLimit int

	// MemoryCallbackOptions is an optional set of callbacks that will be executed when block memory is
	// allocated from or returned to the system allocator
	MemoryCallbackOptions *MemoryCallbackOptions
}

// New creates a new Pool
//
// logger - Receives debug traces and reports of unreleased blocks. If it is nil, slog.Default() is used.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, options CreateOptions) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	chunkSize := options.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}

	if chunkSize <= BlockHeaderSize {
		return nil, errors.Wrapf(memutils.ErrInvalidChunkSize, "chunk size %d must be greater than the %d byte block header", chunkSize, BlockHeaderSize)
	}

	if options.MemoryLimit < 0 {
		return nil, errors.Newf("memory limit %d may not be negative", options.MemoryLimit)
	}

	system := options.SystemAllocator
	if system == nil {
		system = NewHeapAllocator(options.MemoryLimit)
	} else if options.MemoryLimit != 0 {
		return nil, errors.New("CreateOptions.MemoryLimit was provided alongside a custom SystemAllocator, but it only applies to the default HeapAllocator")
	}

	pool := &Pool{
		logger:    logger,
		flags:     options.Flags,
		chunkSize: chunkSize,
		dataSize:  chunkSize - BlockHeaderSize,
		system:    system,
		mutex: utils.OptionalMutex{
			UseMutex: options.Flags&CreateSynchronized != 0,
		},
	}
	pool.callbacks = memoryCallbacks{
		Callbacks: options.MemoryCallbackOptions,
		Pool:      pool,
	}

	if options.Flags&(CreateTrackActiveBlocks|CreateCaptureProvenance) != 0 {
		pool.tracker = newBlockTracker(options.Flags&CreateCaptureProvenance != 0)
	}

	logger.Debug("Pool::New",
		slog.Int("ChunkSize", pool.chunkSize),
		slog.Int("DataSize", pool.dataSize),
		slog.String("Flags", pool.flags.String()),
	)

	return pool, nil
}
