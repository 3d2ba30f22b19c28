package mbuf_test

import (
	"math"
	"testing"

	"github.com/memkit/memorykit/mbuf"
	"github.com/stretchr/testify/require"
)

func requireBounds(t *testing.T, view mbuf.View, start, end int) {
	t.Helper()

	require.Equal(t, start, view.Start(), "start")
	require.Equal(t, end, view.End(), "end")
	require.Equal(t, end-start, view.Len())
	require.Len(t, view.Bytes(), end-start)
}

func TestViewRootClamping(t *testing.T) {
	pool := readyPool(t, mbuf.CreateOptions{ChunkSize: 1024})
	capacity := pool.DataSize()

	block, err := pool.Acquire()
	require.NoError(t, err)

	full := mbuf.NewView(block, 0, capacity+100)
	requireBounds(t, full, 0, capacity)

	past := mbuf.NewView(block, capacity+1, 10)
	requireBounds(t, past, capacity, capacity)
	require.True(t, past.IsEmpty())
	require.False(t, past.IsNull())

	negative := mbuf.NewView(block, -5, 10)
	requireBounds(t, negative, 0, 10)

	huge := mbuf.NewView(block, 10, math.MaxInt)
	requireBounds(t, huge, 10, capacity)

	overflow := mbuf.NewView(block, math.MaxInt, math.MaxInt)
	requireBounds(t, overflow, capacity, capacity)

	exact := mbuf.NewView(block, 100, 50)
	requireBounds(t, exact, 100, 150)

	require.Equal(t, 7, block.RefCount())

	for _, view := range []*mbuf.View{&full, &past, &negative, &huge, &overflow, &exact} {
		view.Release()
		require.True(t, view.IsNull())
	}

	require.Equal(t, 1, block.RefCount())
	block.Unref()
	require.Equal(t, 1, pool.FreeCount())
}

func TestViewSubClamping(t *testing.T) {
	pool := readyPool(t, mbuf.CreateOptions{ChunkSize: 1024})

	block, err := pool.Acquire()
	require.NoError(t, err)

	parent := mbuf.NewView(block, 5, 10)
	requireBounds(t, parent, 5, 15)

	sub := parent.Sub(3, 100)
	requireBounds(t, sub, 8, 15)
	require.Same(t, block, sub.Block())

	past := parent.Sub(20, 5)
	requireBounds(t, past, 15, 15)

	nested := sub.Sub(2, 3)
	requireBounds(t, nested, 10, 13)

	nestedPast := nested.Sub(1, math.MaxInt)
	requireBounds(t, nestedPast, 11, 13)

	require.Equal(t, 6, block.RefCount())

	block.Unref()
	parent.Release()
	sub.Release()
	past.Release()
	nested.Release()
	require.Equal(t, 1, pool.ActiveCount())

	nestedPast.Release()
	require.Equal(t, 0, pool.ActiveCount())
	require.Equal(t, 1, pool.FreeCount())
}

func TestViewNull(t *testing.T) {
	pool := readyPool(t, mbuf.CreateOptions{ChunkSize: 256})

	var view mbuf.View
	require.True(t, view.IsNull())
	require.True(t, view.IsEmpty())
	require.Equal(t, 0, view.Len())
	require.Nil(t, view.Bytes())
	require.Nil(t, view.Block())
	require.False(t, view.Exclusive())

	require.True(t, view.Sub(0, 10).IsNull())
	require.True(t, view.Clone().IsNull())
	require.True(t, mbuf.NewView(nil, 0, 10).IsNull())

	moved := view.Move()
	require.True(t, moved.IsNull())

	view.Release()
	view.Release()
	view.Advance(10)
	view.Truncate(10)
	require.Equal(t, 0, view.Len())

	require.Equal(t, 0, pool.BlockCount())
}

func TestViewGetConsumesInitialReference(t *testing.T) {
	pool := readyPool(t, mbuf.CreateOptions{ChunkSize: 1024})

	view, err := pool.Get()
	require.NoError(t, err)
	requireBounds(t, view, 0, 960)
	require.Equal(t, 1, view.Block().RefCount())

	view.Release()
	require.Equal(t, 0, pool.ActiveCount())
	require.Equal(t, 1, pool.FreeCount())
}

func TestViewNewViewAddsReference(t *testing.T) {
	pool := readyPool(t, mbuf.CreateOptions{ChunkSize: 1024})

	block, err := pool.Acquire()
	require.NoError(t, err)

	view := mbuf.NewView(block, 0, block.Len())
	require.Equal(t, 2, block.RefCount())
	require.False(t, view.Exclusive())

	block.Unref()
	require.True(t, view.Exclusive())
	require.Equal(t, 1, pool.ActiveCount())

	view.Release()
	require.Equal(t, 0, pool.ActiveCount())
}

func TestViewCloneMoveRelease(t *testing.T) {
	pool := readyPool(t, mbuf.CreateOptions{ChunkSize: 512})

	view, err := pool.Get()
	require.NoError(t, err)
	block := view.Block()

	view.Truncate(100)
	clone := view.Clone()
	requireBounds(t, clone, 0, 100)
	require.Equal(t, 2, block.RefCount())

	moved := clone.Move()
	require.True(t, clone.IsNull())
	requireBounds(t, moved, 0, 100)
	require.Equal(t, 2, block.RefCount())

	clone.Release()
	require.Equal(t, 2, block.RefCount())

	moved.Release()
	require.True(t, moved.IsNull())
	require.Equal(t, 1, block.RefCount())
	require.True(t, view.Exclusive())

	view.Release()
	require.Equal(t, 1, pool.FreeCount())
}

func TestViewAdvanceTruncate(t *testing.T) {
	pool := readyPool(t, mbuf.CreateOptions{ChunkSize: 1024})

	view, err := pool.Get()
	require.NoError(t, err)
	defer view.Release()

	view.Advance(100)
	requireBounds(t, view, 100, 960)

	view.Truncate(10)
	requireBounds(t, view, 100, 110)

	view.Truncate(50)
	requireBounds(t, view, 100, 110)

	view.Advance(-5)
	requireBounds(t, view, 100, 110)

	view.Advance(50)
	requireBounds(t, view, 110, 110)
	require.True(t, view.IsEmpty())
	require.False(t, view.IsNull())

	require.Equal(t, 1, view.Block().RefCount())
}

func TestViewZeroCopy(t *testing.T) {
	pool := readyPool(t, mbuf.CreateOptions{ChunkSize: 256})

	view, err := pool.Get()
	require.NoError(t, err)

	sub := view.Sub(10, 4)
	copy(sub.Bytes(), "abcd")
	require.Equal(t, []byte("abcd"), view.Bytes()[10:14])

	nested := sub.Sub(1, 2)
	require.Equal(t, []byte("bc"), nested.Bytes())

	view.Release()
	sub.Release()

	// The block stays alive while any view holds it
	require.Equal(t, []byte("bc"), nested.Bytes())
	require.Equal(t, 1, pool.ActiveCount())

	nested.Release()
	require.Equal(t, 0, pool.ActiveCount())
}

func TestViewBytesCapacity(t *testing.T) {
	pool := readyPool(t, mbuf.CreateOptions{ChunkSize: 256})

	view, err := pool.Get()
	require.NoError(t, err)
	defer view.Release()

	sub := view.Sub(10, 4)
	defer sub.Release()

	data := sub.Bytes()
	require.Equal(t, 4, cap(data))

	data = append(data, 'x')
	require.Len(t, data, 5)
	require.Equal(t, byte(0), view.Bytes()[14])
}

func TestViewAssignmentDoesNotReference(t *testing.T) {
	pool := readyPool(t, mbuf.CreateOptions{ChunkSize: 256})

	view, err := pool.Get()
	require.NoError(t, err)

	copied := view
	require.Equal(t, 1, copied.Block().RefCount())

	view.Release()
	require.Equal(t, 1, pool.FreeCount())

	// The copy never took a reference, so releasing it underflows
	requireCorruption(t, func() {
		copied.Release()
	})
	require.Equal(t, 1, pool.FreeCount())
	require.NoError(t, pool.Validate())
}
