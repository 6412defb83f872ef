package bsptree

import (
	"fmt"

	set3 "github.com/TomTonic/Set3"

	"github.com/scigolib/bsptree/internal/core"
)

// Validate checks the structural invariants of a built or reloaded
// k-d tree:
//
//   - every inner node's axis tag is 1..3 and its child pair lies
//     within the node array, after the parent (prefix order)
//   - every leaf's primitive range lies within the index array and
//     references only valid triangles
//   - node accounting holds: numNodes = 2*numInner + 1 and
//     numLeafs = numInner + 1
//   - every triangle index appears in at least one leaf (straddlers
//     may appear in several)
func (t *KDTree) Validate() error {
	numInner, numLeafs := 0, 0
	seen := set3.Empty[int32]()

	for i, n := range t.nodes {
		if n.IsLeaf() {
			numLeafs++
			start, count := n.IndexOffset(), int64(n.Count())
			if start < 0 || start+count > int64(len(t.indices)) {
				return fmt.Errorf("node %d: leaf range [%d,%d) outside index array of %d",
					i, start, start+count, len(t.indices))
			}
			for _, idx := range t.indices[start : start+count] {
				if idx < 0 || idx >= t.info.NumTris {
					return fmt.Errorf("node %d: triangle index %d out of range", i, idx)
				}
				seen.Add(idx)
			}
			continue
		}

		numInner++
		if a := n.Axis(); a < 1 || a > 3 {
			return fmt.Errorf("node %d: invalid axis tag %d", i, a)
		}
		child := n.ChildOffset() / core.KDNodeSize
		if child <= int64(i) || child+1 >= int64(len(t.nodes)) {
			return fmt.Errorf("node %d: child pair %d violates prefix order", i, child)
		}
	}

	if numInner+numLeafs != int(t.info.NumNodes) || 2*numInner+1 != int(t.info.NumNodes) {
		return fmt.Errorf("node accounting broken: %d inner, %d leafs, %d total",
			numInner, numLeafs, t.info.NumNodes)
	}
	if numLeafs != int(t.info.NumLeafs) {
		return fmt.Errorf("leaf count mismatch: counted %d, stats say %d", numLeafs, t.info.NumLeafs)
	}

	all := set3.Empty[int32]()
	for i := int32(0); i < t.info.NumTris; i++ {
		all.Add(i)
	}
	if !seen.Equals(all) {
		return fmt.Errorf("leaf coverage broken: %d of %d triangles reachable",
			seen.Size(), t.info.NumTris)
	}
	return nil
}

// Validate checks the structural invariants of a BVH:
//
//   - leaf tags and child offsets are well formed, children follow
//     their parent (prefix order)
//   - every node's box encloses the boxes of all primitives
//     reachable through it
//   - leaf partitions are disjoint and cover every primitive exactly
//     once
func (t *BVHTree) Validate() error {
	if len(t.nodes) == 0 {
		if t.info.NumNodes != 0 {
			return fmt.Errorf("empty node array but stats say %d nodes", t.info.NumNodes)
		}
		return nil
	}

	seen := set3.Empty[int32]()
	if err := t.validateNode(0, seen); err != nil {
		return err
	}

	all := set3.Empty[int32]()
	for i := int32(0); i < t.info.NumTris; i++ {
		all.Add(i)
	}
	if !seen.Equals(all) {
		return fmt.Errorf("leaf partition broken: %d of %d primitives covered",
			seen.Size(), t.info.NumTris)
	}
	return nil
}

func (t *BVHTree) validateNode(node int32, seen *set3.Set3[int32]) error {
	n := t.nodes[node]
	box := AABB{Min: n.Min, Max: n.Max}

	if n.IsLeaf() {
		start, count := n.IndexOffset(), int64(n.Count())
		if start < 0 || start+count > int64(len(t.indices)) {
			return fmt.Errorf("node %d: leaf range [%d,%d) outside index array of %d",
				node, start, start+count, len(t.indices))
		}
		for _, idx := range t.indices[start : start+count] {
			if idx < 0 || int(idx) >= len(t.voxels) {
				return fmt.Errorf("node %d: primitive index %d out of range", node, idx)
			}
			if seen.Contains(idx) {
				return fmt.Errorf("node %d: primitive %d appears in two leaves", node, idx)
			}
			seen.Add(idx)
			if !box.Encloses(t.voxels[idx].Bounds()) {
				return fmt.Errorf("node %d: leaf box does not enclose primitive %d", node, idx)
			}
		}
		return nil
	}

	left := n.LeftOffset() / core.BVHNodeSize
	right := n.RightOffset() / core.BVHNodeSize
	if left <= int64(node) || right != left+1 || right >= int64(len(t.nodes)) {
		return fmt.Errorf("node %d: child pair %d/%d violates prefix order", node, left, right)
	}
	for _, child := range []int64{left, right} {
		c := t.nodes[child]
		if !box.Encloses(AABB{Min: c.Min, Max: c.Max}) {
			// Empty leaves substituted during splicing carry a zero
			// box; they are the one exception.
			if !(c.IsLeaf() && c.Count() == 0) {
				return fmt.Errorf("node %d: box does not enclose child %d", node, child)
			}
		}
		if err := t.validateNode(int32(child), seen); err != nil {
			return err
		}
	}
	return nil
}
