package mbuf

import "github.com/memkit/memorykit/memutils"

// View is a window [Start, End) onto the data region of a Block. Every View that references a
// block holds exactly one reference on it; Release drops that reference. The zero View references
// no block and is empty.
//
// Views are values, but copying one with plain assignment does not add a reference, and releasing
// both copies underflows the block's count. Use Clone to share a view and Move to hand one over.
type View struct {
	block *Block
	start int
	end   int
}

// NewView returns a view over [offset, offset+length) of the block's data region, narrowed to fit
// inside the data region. A request that falls outside the region yields an empty view that still
// references the block. The view adds its own reference, so the caller keeps whatever reference it
// already held. A nil block yields the zero View.
func NewView(block *Block, offset, length int) View {
	if block == nil {
		return View{}
	}

	block.refWithDepth(1)

	start, end := memutils.ClampRange(0, offset, length, 0, len(block.data))
	return View{block: block, start: start, end: end}
}

// Sub returns a view over [offset, offset+length) measured from the start of v, narrowed to fit
// inside v's own bounds. The new view adds a reference to v's block. Sub of a view that references
// no block is the zero View.
func (v View) Sub(offset, length int) View {
	if v.block == nil {
		return View{}
	}

	v.block.refWithDepth(1)

	start, end := memutils.ClampRange(v.start, offset, length, v.start, v.end)
	return View{block: v.block, start: start, end: end}
}

// Clone returns a copy of v holding its own reference on the block
func (v View) Clone() View {
	if v.block == nil {
		return View{}
	}

	v.block.refWithDepth(1)
	return v
}

// Move returns v's block reference and bounds and leaves v as the zero View
func (v *View) Move() View {
	moved := *v
	*v = View{}
	return moved
}

// Release drops v's reference on its block, which returns to its pool if this was the last one, and
// leaves v as the zero View. Releasing the zero View does nothing.
func (v *View) Release() {
	block := v.block
	*v = View{}

	if block != nil {
		block.Unref()
	}
}

// Advance drops n bytes from the front of v. n is clamped to the length of v.
func (v *View) Advance(n int) {
	v.start = memutils.Clamp(memutils.AddClamped(v.start, n), v.start, v.end)
}

// Truncate shortens v to at most n bytes
func (v *View) Truncate(n int) {
	v.end = memutils.Clamp(memutils.AddClamped(v.start, n), v.start, v.end)
}

// Len returns the number of bytes in the view
func (v View) Len() int { return v.end - v.start }

// IsEmpty reports whether the view has no bytes. An empty view may still reference a block.
func (v View) IsEmpty() bool { return v.start == v.end }

// IsNull reports whether the view references no block
func (v View) IsNull() bool { return v.block == nil }

func (v View) Start() int { return v.start }

func (v View) End() int { return v.end }

// Block returns the block the view references, or nil
func (v View) Block() *Block { return v.block }

// Bytes returns the bytes of the view. The slice's capacity ends with the view, so appending to it
// never overwrites bytes visible through other views of the same block.
func (v View) Bytes() []byte {
	if v.block == nil {
		return nil
	}
	return v.block.data[v.start:v.end:v.end]
}

// Exclusive reports whether v holds the only reference to its block, in which case the block's bytes
// can be modified in place without affecting any other view
func (v View) Exclusive() bool {
	return v.block != nil && v.block.RefCount() == 1
}
