// Package mbuf is a fixed-size block allocator with reference-counted, zero-copy views.
//
// A Pool recycles blocks through a LIFO free list instead of returning them to the system
// allocator. Callers take Views over a block's data; every live View holds one reference on the
// block, and the block returns to the free list when the last reference is dropped.
//
// Pools, blocks and views are not synchronized unless the pool is created with CreateSynchronized.
// The intended deployment is one pool per worker.
package mbuf

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/memkit/memorykit/mbuf/internal/utils"
	"github.com/memkit/memorykit/memutils"
	"golang.org/x/exp/slog"
)

type Pool struct {
	logger    *slog.Logger
	mutex     utils.OptionalMutex
	flags     CreateFlags
	system    SystemAllocator
	callbacks memoryCallbacks
	tracker   *blockTracker

	chunkSize int
	dataSize  int

	freeBlocks  []*Block
	freeCount   int
	activeCount int
	nextBlockID int

	cacheHits   int
	cacheMisses int
	reclaimed   int
}

// ChunkSize returns the number of bytes allocated from the system for each block
func (p *Pool) ChunkSize() int { return p.chunkSize }

// DataSize returns the usable size in bytes of every block's data region. It is fixed for the
// lifetime of the pool.
func (p *Pool) DataSize() int { return p.dataSize }

// Flags returns the flags the pool was created with
func (p *Pool) Flags() CreateFlags { return p.flags }

// FreeCount returns the number of blocks waiting on the free list
func (p *Pool) FreeCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.freeCount
}

// ActiveCount returns the number of blocks with at least one live reference
func (p *Pool) ActiveCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.activeCount
}

// BlockCount returns the number of blocks currently allocated from the system, free or active
func (p *Pool) BlockCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.freeCount + p.activeCount
}

// Acquire returns a block holding a single reference that belongs to the caller. The most recently
// freed block is reused if there is one; otherwise a new chunk is requested from the system allocator.
// If the system allocator cannot supply one, the returned error is marked with
// memutils.ErrAllocationFailure.
//
// The caller must eventually Unref the block. Wrapping it with NewView adds a separate reference.
// Use Get to acquire a block and wrap it in a single step.
func (p *Pool) Acquire() (*Block, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.acquire(1)
}

// Get acquires a block and returns a View over its whole data region. The view takes over the
// block's initial reference, so releasing the view is all that is needed to return the block.
// On failure the empty View is returned along with the error.
func (p *Pool) Get() (View, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	block, err := p.acquire(1)
	if err != nil {
		return View{}, err
	}

	return View{block: block, start: 0, end: len(block.data)}, nil
}

func (p *Pool) acquire(skip int) (*Block, error) {
	var block *Block

	if count := len(p.freeBlocks); count > 0 {
		block = p.freeBlocks[count-1]
		p.freeBlocks[count-1] = nil
		p.freeBlocks = p.freeBlocks[:count-1]
		p.freeCount--
		p.cacheHits++

		block.checkGuard("Acquire")
		if block.refCount != 0 {
			panic(corruptionf("block %d was on the free list with %d live references", block.id, block.refCount))
		}
	} else {
		chunk, err := p.allocateChunk()
		if err != nil {
			p.logger.Debug("  Pool::Acquire FAILED", slog.Int("ChunkSize", p.chunkSize), slog.Any("error", err))
			return nil, err
		}

		block = &Block{}
		block.init(p, p.nextBlockID, chunk)
		p.nextBlockID++
		p.cacheMisses++

		p.callbacks.Allocate(block)
	}

	block.magic = blockMagic
	block.refCount = 1
	p.activeCount++

	if p.tracker != nil {
		p.tracker.Register(block, skip+1)
	}

	memutils.DebugValidate(lockedPool{p})

	return block, nil
}

func (p *Pool) allocateChunk() ([]byte, error) {
	chunk, err := p.system.Allocate(p.chunkSize)
	if err != nil {
		if !errors.Is(err, memutils.ErrAllocationFailure) {
			err = errors.Mark(err, memutils.ErrAllocationFailure)
		}
		return nil, errors.Wrapf(err, "failed to allocate a %d byte block", p.chunkSize)
	}

	if len(chunk) < p.chunkSize {
		p.system.Free(chunk)
		return nil, errors.Mark(
			errors.Newf("system allocator returned a %d byte chunk for a %d byte request", len(chunk), p.chunkSize),
			memutils.ErrAllocationFailure,
		)
	}

	return chunk[:p.chunkSize:p.chunkSize], nil
}

// release returns a block with no remaining references to the free list. The pool mutex must be held.
func (p *Pool) release(block *Block) {
	block.checkGuard("Release")

	if block.pool != p {
		panic(corruptionf("block %d was released into a pool that does not own it", block.id))
	}
	if block.refCount != 0 {
		panic(corruptionf("block %d was released with %d live references", block.id, block.refCount))
	}
	if p.activeCount < 1 {
		panic(corruptionf("block %d was released, but the pool has no active blocks", block.id))
	}

	if p.tracker != nil {
		p.tracker.Unregister(block)
	}

	p.freeBlocks = append(p.freeBlocks, block)
	p.activeCount--
	p.freeCount++

	memutils.DebugValidate(lockedPool{p})
}

// Compact returns every block on the free list to the system allocator and returns how many were
// reclaimed. Active blocks are not touched.
func (p *Pool) Compact() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	count := p.compact()
	p.logger.Debug("Pool::Compact", slog.Int("Reclaimed", count))

	return count
}

func (p *Pool) compact() int {
	count := p.freeCount

	for index := len(p.freeBlocks) - 1; index >= 0; index-- {
		block := p.freeBlocks[index]
		p.freeBlocks[index] = nil

		block.checkGuard("Compact")
		p.callbacks.Free(block)
		p.system.Free(block.chunk)

		block.destroy()
		p.freeCount--
	}
	p.freeBlocks = p.freeBlocks[:0]

	if p.freeCount != 0 {
		panic(corruptionf("the free count was %d after compaction", p.freeCount))
	}

	p.reclaimed += count
	return count
}

// Destroy compacts the pool. If any blocks are still active, they are logged as unreleased memory
// (with their provenance, if tracked) and an error is returned.
func (p *Pool) Destroy() error {
	p.logger.Debug("Pool::Destroy")

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.compact()

	if p.activeCount > 0 {
		if p.tracker != nil {
			for _, block := range p.tracker.ActiveBlocks() {
				p.logUnreleasedBlock(block)
			}
		}

		return errors.Newf("%d blocks were not released before the destruction of this pool", p.activeCount)
	}

	return nil
}

func (p *Pool) logUnreleasedBlock(block *Block) {
	attrs := []slog.Attr{
		slog.Int("id", block.id),
		slog.Int("refCount", block.refCount),
	}
	if block.provenance != nil {
		attrs = append(attrs, slog.String("provenance", provenanceString(block.provenance)))
	}

	p.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unreleased block", attrs...)
}

// VisitActiveBlocks calls visit for every active block in order of block ID. It returns an error if the
// pool was not created with CreateTrackActiveBlocks, and stops at the first error returned by visit.
// The set of blocks is captured before the first call, so visit may use the pool and its blocks.
func (p *Pool) VisitActiveBlocks(visit func(block *Block) error) error {
	p.mutex.Lock()
	if p.tracker == nil {
		p.mutex.Unlock()
		return errors.New("active blocks can only be visited in pools created with CreateTrackActiveBlocks")
	}
	blocks := p.tracker.ActiveBlocks()
	p.mutex.Unlock()

	for _, block := range blocks {
		err := visit(block)
		if err != nil {
			return err
		}
	}

	return nil
}

// Validate performs internal consistency checks on the pool and its free list. It is fairly expensive
// and is meant for diagnostics.
func (p *Pool) Validate() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.validate()
}

type lockedPool struct {
	pool *Pool
}

func (p lockedPool) Validate() error {
	return p.pool.validate()
}

func (p *Pool) validate() error {
	if p.dataSize != p.chunkSize-BlockHeaderSize {
		return errors.Newf("the data size %d does not match the chunk size %d", p.dataSize, p.chunkSize)
	}
	if p.freeCount != len(p.freeBlocks) {
		return errors.Newf("the free count of the pool is %d, but the free list holds %d blocks", p.freeCount, len(p.freeBlocks))
	}
	if p.activeCount < 0 {
		return errors.Newf("the active count of the pool is negative: %d", p.activeCount)
	}

	allocated := p.cacheMisses - p.reclaimed
	if p.freeCount+p.activeCount != allocated {
		return errors.Newf("the pool has %d free and %d active blocks, but %d blocks are allocated from the system", p.freeCount, p.activeCount, allocated)
	}

	for _, block := range p.freeBlocks {
		if block == nil {
			return errors.New("the free list contains a nil block")
		}
		if block.magic != blockMagic {
			return errors.Newf("free block %d has guard %#x", block.id, block.magic)
		}
		if block.pool != p {
			return errors.Newf("free block %d is not owned by this pool", block.id)
		}
		if block.refCount != 0 {
			return errors.Newf("free block %d has %d live references", block.id, block.refCount)
		}
		if len(block.data) != p.dataSize || len(block.chunk) != p.chunkSize {
			return errors.Newf("free block %d has a %d byte chunk and a %d byte data region", block.id, len(block.chunk), len(block.data))
		}
		if !memutils.ValidateMagicValue(block.chunk, p.dataSize) {
			return errors.Newf("free block %d was overrun past its data region", block.id)
		}
	}

	if p.tracker != nil {
		return p.tracker.Validate(p)
	}

	return nil
}

// AddStatistics sums this pool's block counts into the provided memutils.Statistics
func (p *Pool) AddStatistics(stats *memutils.Statistics) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.addStatistics(stats)
}

func (p *Pool) addStatistics(stats *memutils.Statistics) {
	blockCount := p.freeCount + p.activeCount

	stats.BlockCount += blockCount
	stats.ActiveBlockCount += p.activeCount
	stats.FreeBlockCount += p.freeCount
	stats.BlockBytes += blockCount * p.chunkSize
	stats.ActiveBytes += p.activeCount * p.dataSize
}

// AddDetailedStatistics sums this pool's block counts and free list effectiveness into the provided
// memutils.DetailedStatistics. Reference figures are only added when active blocks are tracked.
func (p *Pool) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.addDetailedStatistics(stats)
}

func (p *Pool) addDetailedStatistics(stats *memutils.DetailedStatistics) {
	p.addStatistics(&stats.Statistics)
	stats.CacheHits += p.cacheHits
	stats.CacheMisses += p.cacheMisses
	stats.Reclaimed += p.reclaimed

	if p.tracker != nil {
		p.tracker.AddDetailedStatistics(stats)
	}
}

// BuildStatsString returns a JSON document describing the pool. When detailed is true and active
// blocks are tracked, every active block is listed.
func (p *Pool) BuildStatsString(detailed bool) string {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var stats memutils.DetailedStatistics
	stats.Clear()
	p.addDetailedStatistics(&stats)

	writer := jwriter.NewWriter()
	obj := writer.Object()

	obj.Name("ChunkSize").Int(p.chunkSize)
	obj.Name("DataSize").Int(p.dataSize)
	obj.Name("Flags").String(p.flags.String())

	total := obj.Name("Total").Object()
	PrintDetailedStatistics(&total, &stats)
	total.End()

	if detailed && p.tracker != nil {
		p.tracker.PrintActiveBlocks(&obj)
	}

	obj.End()

	return string(writer.Bytes())
}

// PrintDetailedStatistics writes every field of stats into a JSON object. It is the format used for
// the totals of BuildStatsString, and lets callers that aggregate several pools report them the same way.
func PrintDetailedStatistics(json *jwriter.ObjectState, stats *memutils.DetailedStatistics) {
	json.Name("BlockCount").Int(stats.BlockCount)
	json.Name("ActiveBlockCount").Int(stats.ActiveBlockCount)
	json.Name("FreeBlockCount").Int(stats.FreeBlockCount)
	json.Name("BlockBytes").Int(stats.BlockBytes)
	json.Name("ActiveBytes").Int(stats.ActiveBytes)
	json.Name("CacheHits").Int(stats.CacheHits)
	json.Name("CacheMisses").Int(stats.CacheMisses)
	json.Name("Reclaimed").Int(stats.Reclaimed)
	json.Name("ReferenceCount").Int(stats.ReferenceCount)
	json.Name("ReferenceCountMax").Int(stats.ReferenceCountMax)
}
