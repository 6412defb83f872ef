package bsptree

import "github.com/scigolib/bsptree/internal/core"

// scratchPool holds the reusable partition lists of one build. Left
// partitions ping-pong between two buffers selected by depth parity;
// right partitions need one buffer per depth because a right list
// must survive until its sibling's whole subtree has been processed.
//
// The pool is exclusively owned by one build and released with it;
// two concurrent builds require independent pools.
type scratchPool struct {
	left  [2][]int32
	right [core.MaxTreeDepth][]int32

	// Per-primitive interval bounds, filled only by the Balanced
	// policy and the BVH builder.
	minVals []Vector3
	maxVals []Vector3
}

func newScratchPool(n int) *scratchPool {
	p := &scratchPool{}
	p.left[0] = make([]int32, 0, n)
	p.left[1] = make([]int32, 0, n)
	return p
}

// childLists returns the cleared left and right buffers for
// partitioning the children of a node at the given depth.
func (p *scratchPool) childLists(depth int) (left, right []int32) {
	return p.left[(depth+1)%2][:0], p.right[depth][:0]
}

// storeChildLists saves the grown buffers back so their capacity is
// reused by later siblings at the same parity/depth.
func (p *scratchPool) storeChildLists(depth int, left, right []int32) {
	p.left[(depth+1)%2] = left
	p.right[depth] = right
}

// prepareBounds fills per-primitive min/max vectors.
func (p *scratchPool) prepareBounds(bounds []AABB) {
	p.minVals = make([]Vector3, len(bounds))
	p.maxVals = make([]Vector3, len(bounds))
	for i, b := range bounds {
		p.minVals[i] = b.Min
		p.maxVals[i] = b.Max
	}
}

// release drops the per-build allocations. The pool itself is not
// reused across builds.
func (p *scratchPool) release() {
	p.left[0], p.left[1] = nil, nil
	for i := range p.right {
		p.right[i] = nil
	}
	p.minVals, p.maxVals = nil, nil
}
