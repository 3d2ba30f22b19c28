package mbuf

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/memkit/memorykit/memutils"
	"golang.org/x/exp/slices"
)

// blockTracker is the diagnostic layer of a pool: a registry of active blocks and, optionally, the
// provenance of each block's latest acquisition or reference. Pools without diagnostics have a nil
// tracker and never call into it.
type blockTracker struct {
	captureProvenance bool
	active            *swiss.Map[int, *Block]
}

func newBlockTracker(captureProvenance bool) *blockTracker {
	return &blockTracker{
		captureProvenance: captureProvenance,
		active:            swiss.NewMap[int, *Block](42),
	}
}

func captureProvenance(skip int, block *Block, event string) error {
	return errors.NewWithDepthf(skip+1, "block %d %s", block.id, event)
}

func provenanceString(provenance error) string {
	if provenance == nil {
		return ""
	}
	return fmt.Sprintf("%+v", provenance)
}

func (t *blockTracker) Register(block *Block, skip int) {
	if _, found := t.active.Get(block.id); found {
		panic(corruptionf("block %d was acquired while already registered as active", block.id))
	}
	t.active.Put(block.id, block)

	if t.captureProvenance {
		block.provenance = captureProvenance(skip+1, block, "acquired")
	}
}

func (t *blockTracker) Referenced(block *Block, skip int) {
	if t.captureProvenance {
		block.provenance = captureProvenance(skip+1, block, fmt.Sprintf("referenced (%d references)", block.refCount))
	}
}

func (t *blockTracker) Unregister(block *Block) {
	if !t.active.Delete(block.id) {
		panic(corruptionf("block %d was released but it was not registered as active", block.id))
	}
	block.provenance = nil
}

// ActiveBlocks returns every active block in order of block ID
func (t *blockTracker) ActiveBlocks() []*Block {
	ids := make([]int, 0, t.active.Count())
	t.active.Iter(func(id int, block *Block) bool {
		ids = append(ids, id)
		return false
	})
	slices.Sort(ids)

	blocks := make([]*Block, 0, len(ids))
	for _, id := range ids {
		block, _ := t.active.Get(id)
		blocks = append(blocks, block)
	}
	return blocks
}

func (t *blockTracker) Validate(pool *Pool) error {
	if t.active.Count() != pool.activeCount {
		return errors.Newf("the pool has %d active blocks, but %d are registered", pool.activeCount, t.active.Count())
	}

	var err error
	t.active.Iter(func(id int, block *Block) bool {
		switch {
		case block.id != id:
			err = errors.Newf("block %d is registered under id %d", block.id, id)
		case block.magic != blockMagic:
			err = errors.Newf("active block %d has guard %#x", id, block.magic)
		case block.pool != pool:
			err = errors.Newf("active block %d is not owned by this pool", id)
		case block.refCount < 1:
			err = errors.Newf("active block %d has no live references", id)
		}
		return err != nil
	})

	return err
}

func (t *blockTracker) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	t.active.Iter(func(id int, block *Block) bool {
		stats.AddReferences(block.refCount)
		return false
	})
}

func (t *blockTracker) PrintActiveBlocks(json *jwriter.ObjectState) {
	arrayState := json.Name("ActiveBlocks").Array()
	defer arrayState.End()

	for _, block := range t.ActiveBlocks() {
		obj := arrayState.Object()

		obj.Name("ID").Int(block.id)
		obj.Name("RefCount").Int(block.refCount)
		if block.provenance != nil {
			obj.Name("Provenance").String(provenanceString(block.provenance))
		}

		obj.End()
	}
}
