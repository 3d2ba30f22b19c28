package mbuf_test

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/memkit/memorykit/mbuf"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func activeBlockIDs(t *testing.T, pool *mbuf.Pool) []int {
	var ids []int
	err := pool.VisitActiveBlocks(func(block *mbuf.Block) error {
		ids = append(ids, block.ID())
		return nil
	})
	require.NoError(t, err)

	return ids
}

func TestVisitActiveBlocksRequiresTracking(t *testing.T) {
	pool := readyPool(t, mbuf.CreateOptions{ChunkSize: 256})

	err := pool.VisitActiveBlocks(func(block *mbuf.Block) error {
		return nil
	})
	require.Error(t, err)
}

func TestTrackActiveBlocks(t *testing.T) {
	pool := readyPool(t, mbuf.CreateOptions{ChunkSize: 256, Flags: mbuf.CreateTrackActiveBlocks})

	views := make([]mbuf.View, 4)
	for i := range views {
		var err error
		views[i], err = pool.Get()
		require.NoError(t, err)
	}
	require.Equal(t, []int{0, 1, 2, 3}, activeBlockIDs(t, pool))

	views[1].Release()
	views[2].Release()
	require.Equal(t, []int{0, 3}, activeBlockIDs(t, pool))

	reused, err := pool.Get()
	require.NoError(t, err)
	require.Equal(t, 2, reused.Block().ID())
	require.Equal(t, []int{0, 2, 3}, activeBlockIDs(t, pool))
	require.NoError(t, pool.Validate())

	reused.Release()
	views[0].Release()
	views[3].Release()
	require.Empty(t, activeBlockIDs(t, pool))
	require.NoError(t, pool.Validate())
}

func TestVisitActiveBlocksStopsOnError(t *testing.T) {
	pool := readyPool(t, mbuf.CreateOptions{ChunkSize: 256, Flags: mbuf.CreateTrackActiveBlocks})

	first, err := pool.Get()
	require.NoError(t, err)
	defer first.Release()
	second, err := pool.Get()
	require.NoError(t, err)
	defer second.Release()

	stop := errors.New("stop")
	visited := 0
	err = pool.VisitActiveBlocks(func(block *mbuf.Block) error {
		visited++
		// Blocks may be used from inside the visitor
		require.Equal(t, 1, block.RefCount())
		return stop
	})
	require.True(t, errors.Is(err, stop))
	require.Equal(t, 1, visited)
}

func TestTrackedReferenceStatistics(t *testing.T) {
	pool := readyPool(t, mbuf.CreateOptions{ChunkSize: 1024, Flags: mbuf.CreateTrackActiveBlocks})

	view, err := pool.Get()
	require.NoError(t, err)
	clone := view.Clone()
	sub := view.Sub(0, 10)

	other, err := pool.Get()
	require.NoError(t, err)

	stats := pool.BuildStatsString(false)
	require.JSONEq(t, `{
		"ChunkSize": 1024,
		"DataSize": 960,
		"Flags": "CreateTrackActiveBlocks",
		"Total": {
			"BlockCount": 2,
			"ActiveBlockCount": 2,
			"FreeBlockCount": 0,
			"BlockBytes": 2048,
			"ActiveBytes": 1920,
			"CacheHits": 0,
			"CacheMisses": 2,
			"Reclaimed": 0,
			"ReferenceCount": 4,
			"ReferenceCountMax": 3
		}
	}`, stats)

	stats = pool.BuildStatsString(true)
	require.JSONEq(t, `{
		"ChunkSize": 1024,
		"DataSize": 960,
		"Flags": "CreateTrackActiveBlocks",
		"Total": {
			"BlockCount": 2,
			"ActiveBlockCount": 2,
			"FreeBlockCount": 0,
			"BlockBytes": 2048,
			"ActiveBytes": 1920,
			"CacheHits": 0,
			"CacheMisses": 2,
			"Reclaimed": 0,
			"ReferenceCount": 4,
			"ReferenceCountMax": 3
		},
		"ActiveBlocks": [
			{"ID": 0, "RefCount": 3},
			{"ID": 1, "RefCount": 1}
		]
	}`, stats)

	view.Release()
	clone.Release()
	sub.Release()
	other.Release()
}

func TestUntrackedStatsString(t *testing.T) {
	pool := readyPool(t, mbuf.CreateOptions{ChunkSize: 1024})

	view, err := pool.Get()
	require.NoError(t, err)
	view.Release()

	require.JSONEq(t, `{
		"ChunkSize": 1024,
		"DataSize": 960,
		"Flags": "None",
		"Total": {
			"BlockCount": 1,
			"ActiveBlockCount": 0,
			"FreeBlockCount": 1,
			"BlockBytes": 1024,
			"ActiveBytes": 0,
			"CacheHits": 0,
			"CacheMisses": 1,
			"Reclaimed": 0,
			"ReferenceCount": 0,
			"ReferenceCountMax": 0
		}
	}`, pool.BuildStatsString(true))
}

func TestCaptureProvenance(t *testing.T) {
	pool := readyPool(t, mbuf.CreateOptions{ChunkSize: 256, Flags: mbuf.CreateCaptureProvenance})

	block, err := pool.Acquire()
	require.NoError(t, err)

	provenance := block.Provenance()
	require.Contains(t, provenance, "block 0 acquired")
	require.Contains(t, provenance, "TestCaptureProvenance")

	view := mbuf.NewView(block, 0, 10)
	provenance = block.Provenance()
	require.Contains(t, provenance, "block 0 referenced (2 references)")
	require.Contains(t, provenance, "TestCaptureProvenance")

	// Capturing provenance implies tracking
	require.Equal(t, []int{0}, activeBlockIDs(t, pool))

	block.Unref()
	view.Release()
	require.Empty(t, block.Provenance())
}

func TestDestroyReportsProvenance(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	pool, err := mbuf.New(logger, mbuf.CreateOptions{ChunkSize: 256, Flags: mbuf.CreateCaptureProvenance})
	require.NoError(t, err)

	leaked, err := pool.Get()
	require.NoError(t, err)

	require.Error(t, pool.Destroy())
	require.Contains(t, logs.String(), "[UNRELEASED MEMORY]")
	require.Contains(t, logs.String(), "TestDestroyReportsProvenance")

	leaked.Release()
	require.NoError(t, pool.Destroy())
}
