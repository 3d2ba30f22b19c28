package memutils

// Statistics summarizes the blocks owned by one or more pools. Pools are normally owned by a single
// worker each, so summing Statistics from every worker gives the process-wide picture.
type Statistics struct {
	// BlockCount is the number of blocks currently allocated from the system, free or active
	BlockCount int
	// ActiveBlockCount is the number of blocks currently referenced by at least one holder
	ActiveBlockCount int
	// FreeBlockCount is the number of blocks waiting on a free list for reuse
	FreeBlockCount int
	// BlockBytes is the number of bytes allocated from the system, including block headers
	BlockBytes int
	// ActiveBytes is the number of data bytes in active blocks
	ActiveBytes int
}

func (s *Statistics) Clear() {
	s.BlockCount = 0
	s.ActiveBlockCount = 0
	s.FreeBlockCount = 0
	s.BlockBytes = 0
	s.ActiveBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.BlockCount += other.BlockCount
	s.ActiveBlockCount += other.ActiveBlockCount
	s.FreeBlockCount += other.FreeBlockCount
	s.BlockBytes += other.BlockBytes
	s.ActiveBytes += other.ActiveBytes
}

type DetailedStatistics struct {
	Statistics
	// CacheHits counts acquisitions satisfied from a free list
	CacheHits int
	// CacheMisses counts acquisitions that required a fresh system allocation
	CacheMisses int
	// Reclaimed counts blocks returned to the system by compaction
	Reclaimed int
	// ReferenceCount is the sum of the reference counts of all active blocks. It is only
	// collected when active blocks are tracked.
	ReferenceCount int
	// ReferenceCountMax is the largest reference count of any active block. It is only
	// collected when active blocks are tracked.
	ReferenceCountMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.CacheHits = 0
	s.CacheMisses = 0
	s.Reclaimed = 0
	s.ReferenceCount = 0
	s.ReferenceCountMax = 0
}

func (s *DetailedStatistics) AddReferences(refCount int) {
	s.ReferenceCount += refCount

	if refCount > s.ReferenceCountMax {
		s.ReferenceCountMax = refCount
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.CacheHits += other.CacheHits
	s.CacheMisses += other.CacheMisses
	s.Reclaimed += other.Reclaimed
	s.ReferenceCount += other.ReferenceCount

	if other.ReferenceCountMax > s.ReferenceCountMax {
		s.ReferenceCountMax = other.ReferenceCountMax
	}
}
