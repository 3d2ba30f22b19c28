package memutils_test

import (
	"testing"

	"github.com/memkit/memorykit/memutils"
	"github.com/stretchr/testify/require"
)

func TestDetailedStatisticsAdd(t *testing.T) {
	var total memutils.DetailedStatistics
	total.Clear()

	total.AddDetailedStatistics(&memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			BlockCount:       3,
			ActiveBlockCount: 2,
			FreeBlockCount:   1,
			BlockBytes:       3072,
			ActiveBytes:      1920,
		},
		CacheHits:         10,
		CacheMisses:       3,
		ReferenceCount:    5,
		ReferenceCountMax: 4,
	})
	total.AddDetailedStatistics(&memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			BlockCount:     1,
			FreeBlockCount: 1,
			BlockBytes:     1024,
		},
		CacheMisses:       2,
		Reclaimed:         1,
		ReferenceCountMax: 2,
	})
	total.AddReferences(6)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			BlockCount:       4,
			ActiveBlockCount: 2,
			FreeBlockCount:   2,
			BlockBytes:       4096,
			ActiveBytes:      1920,
		},
		CacheHits:         10,
		CacheMisses:       5,
		Reclaimed:         1,
		ReferenceCount:    11,
		ReferenceCountMax: 6,
	}, total)

	total.Clear()
	require.Equal(t, memutils.DetailedStatistics{}, total)
}
